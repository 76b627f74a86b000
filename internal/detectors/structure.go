package detectors

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/indicators"
	"github.com/quantfold/signalforge/internal/models"
)

const (
	structureLookback  = 50
	swingWing          = 2
	minBreakFraction   = 0.001 // 0.1% beyond the level
	fullBreakFraction  = 0.006 // break size that earns the full structure score
	structureMinVolume = 20
)

// StructureBreak detects closes through the most recent swing high or low.
// The break must hold for the adaptive confirmation-threshold number of
// bars, which is how a raised threshold after poor performance translates
// into fewer, later entries.
type StructureBreak struct {
	primary models.Timeframe
	logger  *logrus.Logger
}

func NewStructureBreak(primary models.Timeframe, logger *logrus.Logger) *StructureBreak {
	return &StructureBreak{primary: primary, logger: logger}
}

func (d *StructureBreak) ID() string { return ModelStructureBreak }

func (d *StructureBreak) Category() models.SignalCategory { return models.CategoryStructure }

func (d *StructureBreak) AllowedIn(r models.Regime) bool { return allowedIn(d.ID(), r) }

func (d *StructureBreak) Detect(_ context.Context, view *models.MarketView, params adaptive.Snapshot) (*models.CandidateSignal, error) {
	frame := view.Frame(d.primary)
	if len(frame) < structureLookback {
		return nil, nil
	}
	window := frame[len(frame)-structureLookback:]
	confirmBars := params.ConfirmationThreshold
	if confirmBars < 1 {
		confirmBars = 1
	}

	// Swing points must be established before the confirmation window.
	swingHigh, swingLow := recentSwings(window[:len(window)-confirmBars])
	price := window[len(window)-1].Close
	if price == 0 {
		return nil, nil
	}

	var direction models.Direction
	var level float64
	switch {
	case swingHigh > 0 && holdsAbove(window, confirmBars, swingHigh*(1+minBreakFraction)):
		direction = models.DirectionLong
		level = swingHigh
	case swingLow > 0 && holdsBelow(window, confirmBars, swingLow*(1-minBreakFraction)):
		direction = models.DirectionShort
		level = swingLow
	default:
		return nil, nil
	}

	breakPct := math.Abs(price-level) / level
	closes := view.Closes(d.primary)
	volumes := view.Volumes(d.primary)

	scores := map[models.SignalCategory]float64{
		models.CategoryStructure: 3.0 * math.Min(1, breakPct/fullBreakFraction),
		models.CategoryMomentum:  momentumScore(closes, direction),
		models.CategoryVolume:    volumeScore(volumes),
	}

	trend := indicators.TrendStrength(closes, structureMinVolume)
	confidence := 0.4 + 0.4*math.Abs(trend)
	if directionOf(trend) == direction {
		confidence += 0.1
	}

	return newCandidate(view, d.primary, d.ID(), d.Category(), direction, scores, confidence,
		fmt.Sprintf("close %.4f broke %s swing level %.4f and held %d bars",
			price, directionWord(direction), level, confirmBars),
		map[string]interface{}{"level": level, "break_pct": breakPct},
	), nil
}

// recentSwings returns the latest confirmed swing high and swing low in the
// window (0 when none). A swing bar's extreme must exceed the extremes of
// the wing bars on both sides.
func recentSwings(window []models.Candle) (high, low float64) {
	for i := len(window) - 1 - swingWing; i >= swingWing; i-- {
		if high == 0 && isSwingHigh(window, i) {
			high = window[i].High
		}
		if low == 0 && isSwingLow(window, i) {
			low = window[i].Low
		}
		if high != 0 && low != 0 {
			break
		}
	}
	return high, low
}

func isSwingHigh(window []models.Candle, i int) bool {
	for w := 1; w <= swingWing; w++ {
		if window[i].High <= window[i-w].High || window[i].High <= window[i+w].High {
			return false
		}
	}
	return true
}

func isSwingLow(window []models.Candle, i int) bool {
	for w := 1; w <= swingWing; w++ {
		if window[i].Low >= window[i-w].Low || window[i].Low >= window[i+w].Low {
			return false
		}
	}
	return true
}

func holdsAbove(window []models.Candle, bars int, level float64) bool {
	if bars > len(window) {
		return false
	}
	for _, c := range window[len(window)-bars:] {
		if c.Close <= level {
			return false
		}
	}
	return true
}

func holdsBelow(window []models.Candle, bars int, level float64) bool {
	if bars > len(window) {
		return false
	}
	for _, c := range window[len(window)-bars:] {
		if c.Close >= level {
			return false
		}
	}
	return true
}

// momentumScore grades RSI agreement with the break direction on a 0-3
// scale.
func momentumScore(closes []float64, direction models.Direction) float64 {
	rsi := indicators.Last(indicators.RSI(closes, 14))
	if rsi == 0 {
		return 0
	}
	if direction == models.DirectionLong {
		return 3.0 * math.Min(1, math.Max(0, (rsi-50)/25))
	}
	return 3.0 * math.Min(1, math.Max(0, (50-rsi)/25))
}

// volumeScore grades the latest bar's volume against its 20-bar average on
// a 0-2 scale; 2x average earns the full score.
func volumeScore(volumes []float64) float64 {
	if len(volumes) == 0 {
		return 0
	}
	avg := indicators.Mean(volumes[:len(volumes)-1], 20)
	if avg == 0 {
		return 0
	}
	ratio := volumes[len(volumes)-1] / avg
	return 2.0 * math.Min(1, math.Max(0, ratio-1))
}

func directionOf(trend float64) models.Direction {
	if trend < 0 {
		return models.DirectionShort
	}
	return models.DirectionLong
}

func directionWord(d models.Direction) string {
	if d == models.DirectionShort {
		return "below"
	}
	return "above"
}
