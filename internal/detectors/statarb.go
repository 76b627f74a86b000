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
	statArbWindow  = 30
	statArbEntryZ  = 2.0
	statArbMaxZ    = 3.5
	statArbMinCorr = 0.5
)

// StatArb trades mean reversion of a symbol against its correlated peers:
// when the price ratio to a peer stretches beyond two standard deviations
// of its rolling mean, bet on the ratio snapping back. Requires the peer
// relationship to actually hold (return correlation above a floor) so the
// z-score measures a real spread and not two unrelated walks.
type StatArb struct {
	primary models.Timeframe
	logger  *logrus.Logger
}

func NewStatArb(primary models.Timeframe, logger *logrus.Logger) *StatArb {
	return &StatArb{primary: primary, logger: logger}
}

func (d *StatArb) ID() string { return ModelStatArb }

func (d *StatArb) Category() models.SignalCategory { return models.CategoryMomentum }

func (d *StatArb) AllowedIn(r models.Regime) bool { return allowedIn(d.ID(), r) }

func (d *StatArb) Detect(_ context.Context, view *models.MarketView, _ adaptive.Snapshot) (*models.CandidateSignal, error) {
	closes := view.Closes(d.primary)
	if len(closes) < statArbWindow+1 || len(view.Peers) == 0 {
		return nil, nil
	}

	// Score every peer with enough aligned data, keep the widest spread.
	var best *spreadReading
	for peer, candles := range view.Peers {
		reading := readSpread(closes, peer, candles)
		if reading == nil {
			continue
		}
		if best == nil || math.Abs(reading.zScore) > math.Abs(best.zScore) {
			best = reading
		}
	}
	if best == nil || math.Abs(best.zScore) < statArbEntryZ {
		return nil, nil
	}

	// Stretched high against the peer means short the symbol, and the
	// reverse. Beyond maxZ the spread is treated as a broken relationship,
	// not an opportunity.
	if math.Abs(best.zScore) > statArbMaxZ {
		return nil, nil
	}
	direction := models.DirectionLong
	if best.zScore > 0 {
		direction = models.DirectionShort
	}

	stretch := (math.Abs(best.zScore) - statArbEntryZ) / (statArbMaxZ - statArbEntryZ)
	scores := map[models.SignalCategory]float64{
		models.CategoryMomentum:  3.0 * math.Min(1, 0.5+stretch),
		models.CategorySentiment: 1.5 * best.correlation,
	}

	confidence := 0.25 + 0.35*best.correlation + 0.2*stretch
	return newCandidate(view, d.primary, d.ID(), d.Category(), direction, scores, confidence,
		fmt.Sprintf("ratio vs %s stretched %.1f sigma from its %d-bar mean (corr %.2f)",
			best.peer, best.zScore, statArbWindow, best.correlation),
		map[string]interface{}{"peer": best.peer, "z_score": best.zScore, "correlation": best.correlation},
	), nil
}

type spreadReading struct {
	peer        string
	zScore      float64
	correlation float64
}

// readSpread computes the ratio z-score and return correlation between the
// symbol and one peer over the stat-arb window, or nil when the peer lacks
// data or the relationship is too weak.
func readSpread(closes []float64, peer string, peerCandles []models.Candle) *spreadReading {
	if len(peerCandles) < statArbWindow+1 {
		return nil
	}
	peerCloses := make([]float64, len(peerCandles))
	for i, c := range peerCandles {
		peerCloses[i] = c.Close
	}

	n := statArbWindow + 1
	a := closes[len(closes)-n:]
	b := peerCloses[len(peerCloses)-n:]

	ratios := make([]float64, n)
	for i := 0; i < n; i++ {
		if b[i] == 0 {
			return nil
		}
		ratios[i] = a[i] / b[i]
	}

	mean := indicators.Mean(ratios, n)
	sd := ratioStdDev(ratios, mean)
	if sd == 0 {
		return nil
	}
	z := (ratios[n-1] - mean) / sd

	corr := returnCorrelation(a, b)
	if corr < statArbMinCorr {
		return nil
	}
	return &spreadReading{peer: peer, zScore: z, correlation: corr}
}

func ratioStdDev(ratios []float64, mean float64) float64 {
	variance := 0.0
	for _, r := range ratios {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(ratios))
	return math.Sqrt(variance)
}

// returnCorrelation is the Pearson correlation of bar-over-bar returns.
func returnCorrelation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 3 {
		return 0
	}
	ra := returnsOf(a)
	rb := returnsOf(b)
	if ra == nil || rb == nil {
		return 0
	}

	n := float64(len(ra))
	var sumA, sumB float64
	for i := range ra {
		sumA += ra[i]
		sumB += rb[i]
	}
	meanA, meanB := sumA/n, sumB/n

	var cov, varA, varB float64
	for i := range ra {
		da, db := ra[i]-meanA, rb[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

func returnsOf(values []float64) []float64 {
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			return nil
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}
