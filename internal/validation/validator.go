// Package validation is the secondary gate between fusion and the sizer:
// five independent checks, all of which must pass before a decision may
// surface.
package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/indicators"
	"github.com/quantfold/signalforge/internal/models"
)

// Defaults for the check thresholds.
const (
	DefaultVolumeFactor      = 1.2
	DefaultMinScore          = 4.0
	DefaultCounterTrendScore = 7.0

	trendPeriod  = 50
	volumePeriod = 20
)

// SafeWindowChecker is the economic-calendar collaborator: it reports
// whether trading a symbol at a moment is safe (no high-impact event).
type SafeWindowChecker interface {
	IsSafeWindow(ctx context.Context, symbol string, at time.Time) (bool, error)
}

// AlwaysSafe is the no-calendar fallback.
type AlwaysSafe struct{}

func (AlwaysSafe) IsSafeWindow(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

// Config carries the validator thresholds; zero values fall back to the
// defaults.
type Config struct {
	VolumeFactor      float64
	MinScore          float64
	CounterTrendScore float64
}

// Validator applies the five checks to a fusion result.
type Validator struct {
	primary models.Timeframe
	cfg     Config
	safe    SafeWindowChecker
	logger  *logrus.Logger
}

func NewValidator(primary models.Timeframe, cfg Config, safe SafeWindowChecker, logger *logrus.Logger) *Validator {
	if cfg.VolumeFactor <= 0 {
		cfg.VolumeFactor = DefaultVolumeFactor
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.CounterTrendScore <= 0 {
		cfg.CounterTrendScore = DefaultCounterTrendScore
	}
	if safe == nil {
		safe = AlwaysSafe{}
	}
	return &Validator{primary: primary, cfg: cfg, safe: safe, logger: logger}
}

// Validate returns true when every check passes; otherwise false with the
// first failing check's reason. A failing safe-window collaborator counts
// as unsafe rather than an error.
func (v *Validator) Validate(ctx context.Context, result *models.FusionResult, view *models.MarketView) (bool, string) {
	if result.Action == models.ActionNoTrade {
		return false, "no trade decision"
	}
	frame := view.Frame(v.primary)
	if len(frame) < volumePeriod+1 {
		return false, "insufficient candles for validation"
	}

	if reason := v.checkPriceAction(result.Action, frame); reason != "" {
		return v.fail(result, reason)
	}
	if reason := v.checkVolume(view); reason != "" {
		return v.fail(result, reason)
	}
	if reason := v.checkSafeWindow(ctx, result); reason != "" {
		return v.fail(result, reason)
	}
	if reason := v.checkTrendAlignment(result, view); reason != "" {
		return v.fail(result, reason)
	}
	if result.AggregatedStrength < v.cfg.MinScore {
		return v.fail(result, fmt.Sprintf("score %.2f below floor %.2f", result.AggregatedStrength, v.cfg.MinScore))
	}
	return true, ""
}

func (v *Validator) fail(result *models.FusionResult, reason string) (bool, string) {
	v.logger.WithFields(logrus.Fields{
		"symbol": result.Symbol,
		"action": result.Action,
		"reason": reason,
	}).Debug("Validation failed")
	return false, reason
}

// checkPriceAction requires the latest bar to close in the decision's
// direction.
func (v *Validator) checkPriceAction(action models.TradeAction, frame []models.Candle) string {
	last := frame[len(frame)-1]
	if action == models.ActionLong && last.Close < last.Open {
		return "latest bar closed against long"
	}
	if action == models.ActionShort && last.Close > last.Open {
		return "latest bar closed against short"
	}
	return ""
}

// checkVolume requires the latest bar's volume to clear the factor times
// the 20-bar average.
func (v *Validator) checkVolume(view *models.MarketView) string {
	volumes := view.Volumes(v.primary)
	avg := indicators.Mean(volumes[:len(volumes)-1], volumePeriod)
	if avg == 0 {
		return "no volume history"
	}
	latest := volumes[len(volumes)-1]
	if latest < avg*v.cfg.VolumeFactor {
		return fmt.Sprintf("volume %.0f below %.1fx of %d-bar average %.0f",
			latest, v.cfg.VolumeFactor, volumePeriod, avg)
	}
	return ""
}

func (v *Validator) checkSafeWindow(ctx context.Context, result *models.FusionResult) string {
	safe, err := v.safe.IsSafeWindow(ctx, result.Symbol, result.FusedAt)
	if err != nil {
		v.logger.WithError(err).WithField("symbol", result.Symbol).Warn("Safe window check errored; treating as unsafe")
		return "safe window check unavailable"
	}
	if !safe {
		return "inside unsafe trading window"
	}
	return ""
}

// checkTrendAlignment requires agreement with the 50-period trend, waived
// when the fused score is strong enough to justify a counter-trend trade.
// Too little history to measure the trend waives the check as well.
func (v *Validator) checkTrendAlignment(result *models.FusionResult, view *models.MarketView) string {
	if result.AggregatedStrength >= v.cfg.CounterTrendScore {
		return ""
	}
	closes := view.Closes(v.primary)
	if len(closes) < trendPeriod {
		return ""
	}
	sma := indicators.Last(indicators.SMA(closes, trendPeriod))
	if sma == 0 {
		return ""
	}
	price := closes[len(closes)-1]
	if result.Action == models.ActionLong && price < sma {
		return fmt.Sprintf("long against %d-period trend (price %.4f < MA %.4f)", trendPeriod, price, sma)
	}
	if result.Action == models.ActionShort && price > sma {
		return fmt.Sprintf("short against %d-period trend (price %.4f > MA %.4f)", trendPeriod, price, sma)
	}
	return ""
}
