package models

import (
	"time"
)

// PerformanceRecord is one rolling-window sample of realized trade
// performance, reported by the external trade-outcome tracker.
type PerformanceRecord struct {
	WinRate      float64   `json:"win_rate" db:"win_rate"`           // 0..1
	ProfitFactor float64   `json:"profit_factor" db:"profit_factor"` // gross win / gross loss
	SharpeRatio  float64   `json:"sharpe_ratio" db:"sharpe_ratio"`
	MaxDrawdown  float64   `json:"max_drawdown" db:"max_drawdown"` // 0..1
	Period       string    `json:"period" db:"period"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// LifecycleState is the anti-duplication status of one signal identity.
type LifecycleState string

const (
	StateSetup       LifecycleState = "SETUP"
	StateTriggered   LifecycleState = "TRIGGERED"
	StateConfirmed   LifecycleState = "CONFIRMED"
	StateInvalidated LifecycleState = "INVALIDATED"
	StateCooldown    LifecycleState = "COOLDOWN"
)

// SignalRecord is the lifecycle entry tracked per signal identity.
type SignalRecord struct {
	Identity  string         `json:"identity"`
	Symbol    string         `json:"symbol"`
	ModelID   string         `json:"model_id"`
	State     LifecycleState `json:"state"`
	Reason    string         `json:"reason,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Expired reports whether the entry's expiry has passed.
func (r *SignalRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
