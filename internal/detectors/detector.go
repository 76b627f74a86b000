// Package detectors contains the six signal models behind one capability
// contract. Each model independently inspects a symbol's multi-timeframe
// view and emits at most one candidate signal per cycle. Models are
// stateless across calls except for reading the adaptive parameter
// snapshot handed to Detect.
package detectors

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/models"
)

// Model IDs. These are the keys used by the regime gate, the per-model
// adaptive weights, and the lifecycle identity.
const (
	ModelStructureBreak      = "structure_break"
	ModelInstitutionalFlow   = "institutional_flow"
	ModelVolatilityBreakout  = "volatility_breakout"
	ModelKeyLevel            = "key_level"
	ModelSentimentDivergence = "sentiment_divergence"
	ModelStatArb             = "stat_arb"
)

// Detector is the capability contract every signal model implements.
// Detect returns (nil, nil) when the model sees no setup or lacks data;
// an error means the model itself failed and the cycle should skip it.
type Detector interface {
	ID() string
	Category() models.SignalCategory
	AllowedIn(regime models.Regime) bool
	Detect(ctx context.Context, view *models.MarketView, params adaptive.Snapshot) (*models.CandidateSignal, error)
}

// defaultCompat declares which regimes each model natively belongs to.
// The regime gate builds its table from these unless overridden in config.
var defaultCompat = map[string][]models.Regime{
	ModelStructureBreak:      {models.RegimeStrongTrend, models.RegimeWeakTrend, models.RegimeVolExpansion},
	ModelInstitutionalFlow:   {models.RegimeStrongTrend, models.RegimeWeakTrend, models.RegimeVolExpansion},
	ModelVolatilityBreakout:  {models.RegimeSqueeze, models.RegimeVolExpansion},
	ModelKeyLevel:            {models.RegimeStrongTrend, models.RegimeWeakTrend, models.RegimeRange},
	ModelSentimentDivergence: {models.RegimeWeakTrend, models.RegimeRange, models.RegimeSqueeze},
	ModelStatArb:             {models.RegimeRange},
}

// CompatibleRegimes returns the default regime set for a model ID.
func CompatibleRegimes(modelID string) []models.Regime {
	return defaultCompat[modelID]
}

// ModelIDs lists every registered model ID in a stable order.
func ModelIDs() []string {
	return []string{
		ModelStructureBreak,
		ModelInstitutionalFlow,
		ModelVolatilityBreakout,
		ModelKeyLevel,
		ModelSentimentDivergence,
		ModelStatArb,
	}
}

// All builds the full detector list in registration order.
func All(primary models.Timeframe, logger *logrus.Logger) []Detector {
	return []Detector{
		NewStructureBreak(primary, logger),
		NewInstitutionalFlow(primary, logger),
		NewVolatilityBreakout(primary, logger),
		NewKeyLevel(primary, logger),
		NewSentimentDivergence(primary, logger),
		NewStatArb(primary, logger),
	}
}

func allowedIn(modelID string, regime models.Regime) bool {
	for _, r := range defaultCompat[modelID] {
		if r == regime {
			return true
		}
	}
	return false
}

// lastBarTime is the generation timestamp for candidates: the close time
// of the latest primary bar. Using bar time instead of wall time keeps the
// lifecycle identity stable across cycles that see the same bar.
func lastBarTime(view *models.MarketView, tf models.Timeframe) (int, bool) {
	frame := view.Frame(tf)
	if len(frame) == 0 {
		return 0, false
	}
	return len(frame) - 1, true
}

// newCandidate assembles a candidate, applies the per-category caps and
// clamps confidence. Price is the latest close, GeneratedAt the latest
// bar's close time.
func newCandidate(view *models.MarketView, tf models.Timeframe, modelID string,
	category models.SignalCategory, direction models.Direction,
	scores map[models.SignalCategory]float64, confidence float64,
	rationale string, metadata map[string]interface{}) *models.CandidateSignal {

	idx, ok := lastBarTime(view, tf)
	if !ok {
		return nil
	}
	bar := view.Frame(tf)[idx]
	candidate := &models.CandidateSignal{
		ModelID:        modelID,
		Symbol:         view.Symbol,
		Direction:      direction,
		Confidence:     confidence,
		Category:       category,
		CategoryScores: scores,
		Price:          bar.Close,
		Rationale:      rationale,
		Metadata:       metadata,
		GeneratedAt:    bar.CloseTime,
	}
	candidate.ApplyCategoryCaps()
	return candidate
}
