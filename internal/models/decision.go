package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskPlan is the sizer's output for one validated decision.
type RiskPlan struct {
	StopLoss     decimal.Decimal `json:"stop_loss"`
	TakeProfit   decimal.Decimal `json:"take_profit"`
	PositionSize decimal.Decimal `json:"position_size"` // notional, quote currency
	Leverage     int             `json:"leverage"`
	RiskReward   float64         `json:"risk_reward"`
}

// Decision is the final object handed to persistence and notification
// collaborators.
type Decision struct {
	ID           string          `json:"id" db:"id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Action       TradeAction     `json:"action" db:"action"`
	Strength     float64         `json:"strength" db:"strength"`
	Confidence   float64         `json:"confidence" db:"confidence"`
	Regime       Regime          `json:"regime" db:"regime"`
	EntryPrice   decimal.Decimal `json:"entry_price" db:"entry_price"`
	StopLoss     decimal.Decimal `json:"stop_loss" db:"stop_loss"`
	TakeProfit   decimal.Decimal `json:"take_profit" db:"take_profit"`
	PositionSize decimal.Decimal `json:"position_size" db:"position_size"`
	Leverage     int             `json:"leverage" db:"leverage"`
	Rationale    string          `json:"rationale" db:"rationale"`
	Models       []string        `json:"models" db:"models"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
