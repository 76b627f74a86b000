package detectors

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/models"
)

const (
	keyLevelLookback = 50
	levelTolerance   = 0.003 // levels within 0.3% merge into one
	minLevelTouches  = 2
	maxLevelTouches  = 5
	huntWickFraction = 0.4 // wick share of the bar that marks a rejection
)

// KeyLevel hunts stop-run reversals at well-tested horizontal levels: a bar
// whose wick pierces a level holding at least two prior touches but closes
// back on the original side. A pierce of support that recovers is a long
// (the spring), a pierce of resistance that fails is a short.
type KeyLevel struct {
	primary models.Timeframe
	logger  *logrus.Logger
}

func NewKeyLevel(primary models.Timeframe, logger *logrus.Logger) *KeyLevel {
	return &KeyLevel{primary: primary, logger: logger}
}

func (d *KeyLevel) ID() string { return ModelKeyLevel }

func (d *KeyLevel) Category() models.SignalCategory { return models.CategoryStructure }

func (d *KeyLevel) AllowedIn(r models.Regime) bool { return allowedIn(d.ID(), r) }

func (d *KeyLevel) Detect(_ context.Context, view *models.MarketView, _ adaptive.Snapshot) (*models.CandidateSignal, error) {
	frame := view.Frame(d.primary)
	if len(frame) < keyLevelLookback {
		return nil, nil
	}
	window := frame[len(frame)-keyLevelLookback:]
	last := window[len(window)-1]
	if last.Close == 0 || last.High == last.Low {
		return nil, nil
	}

	// Levels come from the bars before the candidate reversal bar.
	supports, resistances := horizontalLevels(window[:len(window)-1])

	var direction models.Direction
	lv, ok := piercedLevel(supports, last.Low, last.Close, true)
	if ok {
		direction = models.DirectionLong
	} else if lv, ok = piercedLevel(resistances, last.High, last.Close, false); ok {
		direction = models.DirectionShort
	} else {
		return nil, nil
	}
	level, touches := lv.price, lv.touches

	wick := rejectionWick(last, direction)
	if wick < huntWickFraction {
		return nil, nil
	}

	volumes := view.Volumes(d.primary)
	touchScore := float64(touches) / float64(maxLevelTouches)

	scores := map[models.SignalCategory]float64{
		models.CategoryStructure: 3.0 * math.Min(1, touchScore),
		models.CategoryVolume:    volumeScore(volumes),
		models.CategorySentiment: 2.0 * math.Min(1, (wick-huntWickFraction)/(1-huntWickFraction)),
	}

	confidence := 0.35 + 0.1*math.Min(4, float64(touches)) + 0.1*wick
	side := "support"
	if direction == models.DirectionShort {
		side = "resistance"
	}
	return newCandidate(view, d.primary, d.ID(), d.Category(), direction, scores, confidence,
		fmt.Sprintf("stop hunt through %d-touch %s %.4f rejected with %.0f%% wick",
			touches, side, level, wick*100),
		map[string]interface{}{"level": level, "touches": touches, "wick": wick},
	), nil
}

// priceLevel is one clustered horizontal price and how often it was tested.
type priceLevel struct {
	price   float64
	touches int
}

// horizontalLevels clusters swing lows into supports and swing highs into
// resistances in bar order, merging prices within the tolerance. Both
// slices come back sorted ascending by price so the whole pass is
// deterministic for identical input.
func horizontalLevels(window []models.Candle) (supports, resistances []priceLevel) {
	for i := swingWing; i < len(window)-swingWing; i++ {
		if isSwingLow(window, i) {
			supports = mergeLevel(supports, window[i].Low)
		}
		if isSwingHigh(window, i) {
			resistances = mergeLevel(resistances, window[i].High)
		}
	}
	sortLevels(supports)
	sortLevels(resistances)
	return supports, resistances
}

func mergeLevel(levels []priceLevel, price float64) []priceLevel {
	for i := range levels {
		if math.Abs(price-levels[i].price)/levels[i].price <= levelTolerance {
			levels[i].touches++
			return levels
		}
	}
	return append(levels, priceLevel{price: price, touches: 1})
}

func sortLevels(levels []priceLevel) {
	sort.Slice(levels, func(a, b int) bool { return levels[a].price < levels[b].price })
}

// piercedLevel picks the level whose boundary the extreme crossed while the
// close recovered to the original side, requiring the minimum touch count.
// When several levels qualify the best-tested one wins; equal touch counts
// fall to the level nearer the close, so selection never depends on input
// ordering beyond price.
func piercedLevel(levels []priceLevel, extreme, close float64, support bool) (priceLevel, bool) {
	var best priceLevel
	found := false
	for _, lv := range levels {
		if lv.touches < minLevelTouches {
			continue
		}
		pierced := (support && extreme < lv.price && close > lv.price) ||
			(!support && extreme > lv.price && close < lv.price)
		if !pierced {
			continue
		}
		better := !found || lv.touches > best.touches ||
			(lv.touches == best.touches && support && lv.price > best.price) ||
			(lv.touches == best.touches && !support && lv.price < best.price)
		if better {
			best = lv
			found = true
		}
	}
	return best, found
}

// rejectionWick measures the rejection tail as a fraction of the bar range:
// the lower wick for longs, the upper wick for shorts.
func rejectionWick(c models.Candle, direction models.Direction) float64 {
	barRange := c.High - c.Low
	if barRange == 0 {
		return 0
	}
	body := math.Min(c.Open, c.Close)
	if direction == models.DirectionShort {
		return (c.High - math.Max(c.Open, c.Close)) / barRange
	}
	return (body - c.Low) / barRange
}
