// Package risk converts a validated fusion decision into stop-loss,
// take-profit, leverage, and position size.
package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/detectors"
	"github.com/quantfold/signalforge/internal/indicators"
	"github.com/quantfold/signalforge/internal/models"
)

// Sizing defaults. MaxPositionFraction is the hard cap: no combination of
// inputs may size a position past this share of equity.
const (
	DefaultBaseRiskFraction    = 0.01
	DefaultMaxPositionFraction = 0.05
	DefaultMaxLeverage         = 5

	// anchorBuffer places level-anchored stops a quarter ATR beyond the
	// structure instead of exactly on it.
	anchorBuffer = 0.25

	// fallbackStopFraction sizes the stop when ATR is unavailable.
	fallbackStopFraction = 0.02
)

// Config carries the sizing fractions; zero values fall back to defaults.
type Config struct {
	BaseRiskFraction    float64
	MaxPositionFraction float64
	MaxLeverage         int
}

// Sizer computes risk plans.
type Sizer struct {
	primary models.Timeframe
	cfg     Config
	logger  *logrus.Logger
}

func NewSizer(primary models.Timeframe, cfg Config, logger *logrus.Logger) *Sizer {
	if cfg.BaseRiskFraction <= 0 {
		cfg.BaseRiskFraction = DefaultBaseRiskFraction
	}
	if cfg.MaxPositionFraction <= 0 {
		cfg.MaxPositionFraction = DefaultMaxPositionFraction
	}
	if cfg.MaxLeverage <= 0 {
		cfg.MaxLeverage = DefaultMaxLeverage
	}
	return &Sizer{primary: primary, cfg: cfg, logger: logger}
}

// Size builds the risk plan for a validated decision. The take-profit
// distance is the score's R:R tier applied to the stop distance, floored
// at the adaptive ATR take-profit multiple. The position size is notional
// in quote currency and is hard-capped at MaxPositionFraction of equity
// regardless of every other input, including a degenerate zero stop
// distance.
func (s *Sizer) Size(result *models.FusionResult, view *models.MarketView, equity decimal.Decimal, params adaptive.Snapshot) (*models.RiskPlan, error) {
	if result.Action != models.ActionLong && result.Action != models.ActionShort {
		return nil, fmt.Errorf("cannot size %s decision", result.Action)
	}
	entry, ok := view.LastClose(s.primary)
	if !ok || entry <= 0 {
		return nil, fmt.Errorf("no entry price for %s", result.Symbol)
	}

	atr := indicators.Last(indicators.ATR(view.Frame(s.primary)))
	stop := s.stopPrice(result, entry, atr, params)
	stopDistance := math.Abs(entry - stop)

	rr := riskReward(result.AggregatedStrength)
	tpDistance := stopDistance * rr
	// A stop anchored to nearby structure can leave the tiered target
	// inside the noise; the ATR take-profit multiple is the floor on the
	// target distance.
	if floor := atr * params.ATRTakeProfitMultiplier; floor > tpDistance {
		tpDistance = floor
	}
	takeProfit := entry + tpDistance
	if result.Action == models.ActionShort {
		takeProfit = entry - tpDistance
	}

	maxNotional := equity.Mul(decimal.NewFromFloat(s.cfg.MaxPositionFraction))
	notional := maxNotional
	if stopDistance > 0 {
		stopFraction := stopDistance / entry
		size := equity.Mul(decimal.NewFromFloat(
			s.cfg.BaseRiskFraction * regimeRiskFactor(result.Regime) * result.Confidence / stopFraction))
		if size.LessThan(maxNotional) {
			notional = size
		}
	}
	if notional.IsNegative() {
		notional = decimal.Zero
	}

	plan := &models.RiskPlan{
		StopLoss:     decimal.NewFromFloat(stop),
		TakeProfit:   decimal.NewFromFloat(takeProfit),
		PositionSize: notional,
		Leverage:     s.leverage(result.Regime),
		RiskReward:   rr,
	}
	s.logger.WithFields(logrus.Fields{
		"symbol":      result.Symbol,
		"action":      result.Action,
		"entry":       entry,
		"stop":        stop,
		"take_profit": takeProfit,
		"size":        notional.String(),
		"leverage":    plan.Leverage,
	}).Debug("Risk plan computed")
	return plan, nil
}

// stopPrice anchors the stop by the leading contributing model where its
// metadata names the structure, otherwise a plain ATR multiple from entry.
func (s *Sizer) stopPrice(result *models.FusionResult, entry, atr float64, params adaptive.Snapshot) float64 {
	if atr <= 0 {
		atr = entry * fallbackStopFraction / params.ATRStopMultiplier
		if params.ATRStopMultiplier <= 0 {
			atr = entry * fallbackStopFraction
		}
	}
	distance := atr * params.ATRStopMultiplier
	if distance <= 0 {
		distance = atr
	}

	if anchor, ok := structureAnchor(result); ok {
		buffer := anchorBuffer * atr
		if result.Action == models.ActionLong && anchor-buffer < entry {
			return anchor - buffer
		}
		if result.Action == models.ActionShort && anchor+buffer > entry {
			return anchor + buffer
		}
	}

	if result.Action == models.ActionShort {
		return entry + distance
	}
	return entry - distance
}

// structureAnchor pulls the broken level or band edge from the strongest
// structure-bearing contributor.
func structureAnchor(result *models.FusionResult) (float64, bool) {
	var best *models.CandidateSignal
	for i := range result.Contributing {
		c := &result.Contributing[i]
		switch c.ModelID {
		case detectors.ModelStructureBreak, detectors.ModelKeyLevel, detectors.ModelVolatilityBreakout:
			if best == nil || c.Strength > best.Strength {
				best = c
			}
		}
	}
	if best == nil {
		return 0, false
	}
	key := "level"
	if best.ModelID == detectors.ModelVolatilityBreakout {
		key = "band"
	}
	value, ok := best.Metadata[key].(float64)
	return value, ok && value > 0
}

// riskReward maps the fused score to its take-profit ratio tier.
func riskReward(score float64) float64 {
	switch {
	case score >= 8:
		return 3.0
	case score >= 7:
		return 2.5
	case score >= 6:
		return 2.0
	default:
		return 1.5
	}
}

// regimeRiskFactor scales risk appetite down in choppy or compressed
// conditions.
func regimeRiskFactor(regime models.Regime) float64 {
	switch regime {
	case models.RegimeStrongTrend:
		return 1.0
	case models.RegimeWeakTrend:
		return 0.8
	case models.RegimeVolExpansion:
		return 0.7
	case models.RegimeRange:
		return 0.6
	case models.RegimeSqueeze:
		return 0.5
	default:
		return 0.5
	}
}

func (s *Sizer) leverage(regime models.Regime) int {
	var lev int
	switch regime {
	case models.RegimeStrongTrend:
		lev = 5
	case models.RegimeWeakTrend:
		lev = 4
	case models.RegimeVolExpansion, models.RegimeRange:
		lev = 3
	default:
		lev = 2
	}
	if lev > s.cfg.MaxLeverage {
		lev = s.cfg.MaxLeverage
	}
	return lev
}
