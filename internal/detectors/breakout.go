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
	breakoutLookback       = 60
	bollingerPeriod        = 20
	bollingerStdDev        = 2.0
	maxCompressionRatio    = 1.5 // width vs its 50-bar minimum
	breakoutMinVolumeRatio = 1.3
)

// VolatilityBreakout grades breakouts out of Bollinger-band compression.
// The setup needs a genuinely tight band (width near its lookback minimum),
// a close outside the band, and expanding volume; all three feed the score
// so a sloppy breakout from a loose range stays weak.
type VolatilityBreakout struct {
	primary models.Timeframe
	logger  *logrus.Logger
}

func NewVolatilityBreakout(primary models.Timeframe, logger *logrus.Logger) *VolatilityBreakout {
	return &VolatilityBreakout{primary: primary, logger: logger}
}

func (d *VolatilityBreakout) ID() string { return ModelVolatilityBreakout }

func (d *VolatilityBreakout) Category() models.SignalCategory { return models.CategoryVolatility }

func (d *VolatilityBreakout) AllowedIn(r models.Regime) bool { return allowedIn(d.ID(), r) }

func (d *VolatilityBreakout) Detect(_ context.Context, view *models.MarketView, _ adaptive.Snapshot) (*models.CandidateSignal, error) {
	closes := view.Closes(d.primary)
	volumes := view.Volumes(d.primary)
	if len(closes) < breakoutLookback {
		return nil, nil
	}

	middle, upper, lower := indicators.Bollinger(closes, bollingerPeriod, bollingerStdDev)
	if len(middle) < 2 {
		return nil, nil
	}

	widths := make([]float64, len(middle))
	for i := range middle {
		if middle[i] == 0 {
			return nil, nil
		}
		widths[i] = (upper[i] - lower[i]) / middle[i]
	}
	// Compression is judged on the band width just before the breakout bar.
	priorWidth := widths[len(widths)-2]
	minWidth := indicators.Lowest(widths[:len(widths)-1], 50)
	if minWidth == 0 || priorWidth > minWidth*maxCompressionRatio {
		return nil, nil
	}

	price := closes[len(closes)-1]
	var direction models.Direction
	var band float64
	switch {
	case price > indicators.Last(upper):
		direction = models.DirectionLong
		band = indicators.Last(upper)
	case price < indicators.Last(lower):
		direction = models.DirectionShort
		band = indicators.Last(lower)
	default:
		return nil, nil
	}

	volRatio := 0.0
	if avg := indicators.Mean(volumes[:len(volumes)-1], 20); avg > 0 {
		volRatio = volumes[len(volumes)-1] / avg
	}
	if volRatio < breakoutMinVolumeRatio {
		return nil, nil
	}

	compression := math.Min(1, (maxCompressionRatio-priorWidth/minWidth)/(maxCompressionRatio-1))
	breakDistance := math.Abs(price-band) / band

	scores := map[models.SignalCategory]float64{
		models.CategoryVolatility: 2.0 * compression,
		models.CategoryVolume:     2.0 * math.Min(1, (volRatio-1)/1.0),
		models.CategoryMomentum:   momentumScore(closes, direction),
		models.CategoryStructure:  1.5 * math.Min(1, breakDistance/0.004),
	}

	confidence := 0.35 + 0.3*compression + 0.2*math.Min(1, volRatio/2)
	return newCandidate(view, d.primary, d.ID(), d.Category(), direction, scores, confidence,
		fmt.Sprintf("%s breakout from compression (width %.4f vs min %.4f, volume %.1fx)",
			direction, priorWidth, minWidth, volRatio),
		map[string]interface{}{"band": band, "volume_ratio": volRatio},
	), nil
}
