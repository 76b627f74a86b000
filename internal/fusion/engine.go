package fusion

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/models"
)

const (
	// DefaultDecisionMargin is the hysteresis band: the winning direction's
	// adjusted aggregate must beat the other side by this many strength
	// units, or the cycle stays flat.
	DefaultDecisionMargin = 2.0

	trendBoost     = 1.5
	rangeDampening = 0.8
	modelCount     = 6
)

// Engine fuses one cycle's gated candidates into a single decision.
type Engine struct {
	margin float64
	logger *logrus.Logger
}

// NewEngine creates a fusion engine with the given decision margin; zero
// or negative falls back to the default.
func NewEngine(margin float64, logger *logrus.Logger) *Engine {
	if margin <= 0 {
		margin = DefaultDecisionMargin
	}
	return &Engine{margin: margin, logger: logger}
}

// Fuse aggregates candidates into one FusionResult. Zero candidates yield
// NO_TRADE with zero strength and confidence. The result depends only on
// the candidate set, the regime, and the parameter snapshot, never on
// candidate order.
func (e *Engine) Fuse(symbol string, candidates []models.CandidateSignal, regime models.Regime, params adaptive.Snapshot) models.FusionResult {
	result := models.FusionResult{
		Symbol:  symbol,
		Action:  models.ActionNoTrade,
		Regime:  regime,
		FusedAt: time.Now().UTC(),
	}
	if len(candidates) == 0 {
		result.Rationale = "no candidate signals"
		return result
	}

	var longAggregate, shortAggregate float64
	var longSide, shortSide []models.CandidateSignal
	for _, c := range candidates {
		contribution := c.Strength * c.Confidence * regimeFactor(regime, c.Category) * params.ModelWeight(c.ModelID)
		if c.Direction == models.DirectionShort {
			shortAggregate += contribution
			shortSide = append(shortSide, c)
		} else {
			longAggregate += contribution
			longSide = append(longSide, c)
		}
	}

	var winners []models.CandidateSignal
	switch {
	case longAggregate-shortAggregate > e.margin:
		result.Action = models.ActionLong
		result.AggregatedStrength = longAggregate
		winners = longSide
	case shortAggregate-longAggregate > e.margin:
		result.Action = models.ActionShort
		result.AggregatedStrength = shortAggregate
		winners = shortSide
	default:
		result.Rationale = fmt.Sprintf("aggregates within margin (long %.2f, short %.2f, margin %.2f)",
			longAggregate, shortAggregate, e.margin)
		e.logger.WithFields(logrus.Fields{
			"symbol": symbol,
			"long":   longAggregate,
			"short":  shortAggregate,
		}).Debug("Fusion inside hysteresis band")
		return result
	}

	sort.Slice(winners, func(i, j int) bool { return winners[i].ModelID < winners[j].ModelID })
	result.Contributing = winners
	result.Confidence = fusionConfidence(len(winners))
	result.Rationale = summarize(result.Action, winners, regime)

	e.logger.WithFields(logrus.Fields{
		"symbol":     symbol,
		"action":     result.Action,
		"strength":   result.AggregatedStrength,
		"confidence": result.Confidence,
		"regime":     regime,
		"models":     result.ContributingModels(),
	}).Info("Signals fused")
	return result
}

// regimeFactor scales one candidate's contribution: trend-following
// evidence is boosted in a strong trend, breakout-type evidence dampened
// in a range.
func regimeFactor(regime models.Regime, category models.SignalCategory) float64 {
	switch regime {
	case models.RegimeStrongTrend:
		if category == models.CategoryStructure || category == models.CategoryMomentum {
			return trendBoost
		}
	case models.RegimeRange:
		if category == models.CategoryVolatility {
			return rangeDampening
		}
	}
	return 1.0
}

// fusionConfidence is deliberately conservative: even a full house of six
// agreeing models only reaches 0.5.
func fusionConfidence(winners int) float64 {
	c := float64(winners) / modelCount * 0.5
	if c > 1 {
		c = 1
	}
	return c
}

func summarize(action models.TradeAction, winners []models.CandidateSignal, regime models.Regime) string {
	parts := make([]string, 0, len(winners))
	for _, c := range winners {
		parts = append(parts, fmt.Sprintf("%s %.1f/%.2f", c.ModelID, c.Strength, c.Confidence))
	}
	return fmt.Sprintf("%s in %s from %s", action, regime, strings.Join(parts, ", "))
}
