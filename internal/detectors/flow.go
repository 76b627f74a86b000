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
	flowLookback    = 40
	flowWindow      = 20
	flowMinPressure = 0.55 // share of window volume on one side
)

// InstitutionalFlow reads accumulation and distribution footprints from
// on-balance volume and directional volume pressure: OBV climbing while a
// clear majority of traded volume prints on up bars is treated as
// accumulation, the mirror image as distribution.
type InstitutionalFlow struct {
	primary models.Timeframe
	logger  *logrus.Logger
}

func NewInstitutionalFlow(primary models.Timeframe, logger *logrus.Logger) *InstitutionalFlow {
	return &InstitutionalFlow{primary: primary, logger: logger}
}

func (d *InstitutionalFlow) ID() string { return ModelInstitutionalFlow }

func (d *InstitutionalFlow) Category() models.SignalCategory { return models.CategoryVolume }

func (d *InstitutionalFlow) AllowedIn(r models.Regime) bool { return allowedIn(d.ID(), r) }

func (d *InstitutionalFlow) Detect(_ context.Context, view *models.MarketView, _ adaptive.Snapshot) (*models.CandidateSignal, error) {
	closes := view.Closes(d.primary)
	volumes := view.Volumes(d.primary)
	if len(closes) < flowLookback || len(volumes) != len(closes) {
		return nil, nil
	}

	obv := indicators.OBV(closes, volumes)
	if len(obv) < flowWindow {
		return nil, nil
	}
	obvDelta := indicators.Last(obv) - obv[len(obv)-flowWindow]

	upVolume, downVolume := directionalVolume(closes, volumes, flowWindow)
	total := upVolume + downVolume
	if total == 0 {
		return nil, nil
	}
	upShare := upVolume / total

	var direction models.Direction
	var pressure float64
	switch {
	case obvDelta > 0 && upShare >= flowMinPressure:
		direction = models.DirectionLong
		pressure = upShare
	case obvDelta < 0 && (1-upShare) >= flowMinPressure:
		direction = models.DirectionShort
		pressure = 1 - upShare
	default:
		return nil, nil
	}

	// Normalize the OBV move by window volume so the score is comparable
	// across symbols.
	meanVolume := indicators.Mean(volumes, flowWindow)
	if meanVolume == 0 {
		return nil, nil
	}
	obvIntensity := math.Min(1, math.Abs(obvDelta)/(meanVolume*float64(flowWindow)/2))

	scores := map[models.SignalCategory]float64{
		models.CategoryVolume:   2.0 * ((pressure-0.5)/0.3 + obvIntensity) / 2,
		models.CategoryMomentum: momentumScore(closes, direction),
	}
	trend := indicators.TrendStrength(closes, flowWindow)
	if directionOf(trend) == direction {
		scores[models.CategoryStructure] = 1.5 * math.Abs(trend)
	}

	confidence := 0.3 + 0.5*pressure
	word := "accumulation"
	if direction == models.DirectionShort {
		word = "distribution"
	}
	return newCandidate(view, d.primary, d.ID(), d.Category(), direction, scores, confidence,
		fmt.Sprintf("%s footprint: %.0f%% of %d-bar volume on %s bars, OBV delta %.0f",
			word, pressure*100, flowWindow, direction, obvDelta),
		map[string]interface{}{"up_share": upShare, "obv_delta": obvDelta},
	), nil
}

// directionalVolume splits the last n bars' volume by close direction.
func directionalVolume(closes, volumes []float64, n int) (up, down float64) {
	start := len(closes) - n
	if start < 1 {
		start = 1
	}
	for i := start; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			up += volumes[i]
		case closes[i] < closes[i-1]:
			down += volumes[i]
		}
	}
	return up, down
}
