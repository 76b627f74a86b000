package models

import (
	"fmt"
	"math"
	"time"
)

// Regime is the classified structural/volatility state of a market over a
// lookback window. It is recomputed every evaluation cycle.
type Regime string

const (
	RegimeStrongTrend  Regime = "STRONG_TREND"
	RegimeWeakTrend    Regime = "WEAK_TREND"
	RegimeRange        Regime = "RANGE"
	RegimeSqueeze      Regime = "SQUEEZE"
	RegimeVolExpansion Regime = "VOLATILITY_EXPANSION"
)

// Direction is a candidate signal's directional opinion.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// TradeAction is the fused outcome for one symbol and cycle.
type TradeAction string

const (
	ActionLong    TradeAction = "LONG"
	ActionShort   TradeAction = "SHORT"
	ActionNoTrade TradeAction = "NO_TRADE"
)

// SignalCategory tags which evidence family a score point came from. The
// per-category caps below keep correlated indicators from stacking into a
// runaway total.
type SignalCategory string

const (
	CategoryMomentum   SignalCategory = "momentum"
	CategoryStructure  SignalCategory = "structure"
	CategoryVolume     SignalCategory = "volume"
	CategoryVolatility SignalCategory = "volatility"
	CategorySentiment  SignalCategory = "sentiment"
)

// CategoryCaps is the maximum score each category may contribute to a
// candidate's strength.
var CategoryCaps = map[SignalCategory]float64{
	CategoryMomentum:   3.0,
	CategoryStructure:  3.0,
	CategoryVolume:     2.0,
	CategoryVolatility: 2.0,
	CategorySentiment:  2.0,
}

// CandidateSignal is one model's independent directional opinion for one
// cycle. It is never mutated after creation.
type CandidateSignal struct {
	ModelID        string                     `json:"model_id"`
	Symbol         string                     `json:"symbol"`
	Direction      Direction                  `json:"direction"`
	Strength       float64                    `json:"strength"`   // 0..10
	Confidence     float64                    `json:"confidence"` // 0..1
	Category       SignalCategory             `json:"category"`
	CategoryScores map[SignalCategory]float64 `json:"category_scores,omitempty"`
	Price          float64                    `json:"price"`
	Rationale      string                     `json:"rationale"`
	Metadata       map[string]interface{}     `json:"metadata,omitempty"`
	GeneratedAt    time.Time                  `json:"generated_at"`
}

// ApplyCategoryCaps caps every category score, sums them and clamps the
// result into [0,10]. Strength and the capped per-category scores are set on
// the signal.
func (c *CandidateSignal) ApplyCategoryCaps() {
	total := 0.0
	for cat, score := range c.CategoryScores {
		cap, ok := CategoryCaps[cat]
		if ok && score > cap {
			score = cap
		}
		if score < 0 {
			score = 0
		}
		c.CategoryScores[cat] = score
		total += score
	}
	c.Strength = ClampStrength(total)
	c.Confidence = ClampConfidence(c.Confidence)
}

// Identity returns the deterministic lifecycle key for this signal. Price is
// rounded to two decimals and generation time bucketed to the hour so that
// the same logical setup observed across cycles maps to one key.
func (c *CandidateSignal) Identity() string {
	return fmt.Sprintf("%s:%s:%.2f:%d",
		c.Symbol, c.ModelID, math.Round(c.Price*100)/100,
		c.GeneratedAt.UTC().Truncate(time.Hour).Unix())
}

// ClampStrength bounds a strength value into [0,10].
func ClampStrength(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// ClampConfidence bounds a confidence value into [0,1].
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FusionResult is the outcome of fusing one cycle's gated candidates. It is
// derived state, consumed immediately by the validator and sizer.
type FusionResult struct {
	Symbol             string            `json:"symbol"`
	Action             TradeAction       `json:"action"`
	AggregatedStrength float64           `json:"aggregated_strength"`
	Confidence         float64           `json:"confidence"`
	Rationale          string            `json:"rationale"`
	Regime             Regime            `json:"regime"`
	Contributing       []CandidateSignal `json:"contributing,omitempty"`
	FusedAt            time.Time         `json:"fused_at"`
}

// ContributingModels lists the model IDs behind the winning direction.
func (f *FusionResult) ContributingModels() []string {
	ids := make([]string, 0, len(f.Contributing))
	for _, c := range f.Contributing {
		ids = append(ids, c.ModelID)
	}
	return ids
}
