// Package fusion holds the regime gate and the engine that folds gated
// candidate signals into one trade decision per symbol and cycle.
package fusion

import (
	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/detectors"
	"github.com/quantfold/signalforge/internal/models"
)

// Gate is the static regime → allowed-model table. Built once at startup
// from the detectors' compatibility declarations, optionally overridden
// per regime from config; immutable afterwards.
type Gate struct {
	allowed map[models.Regime]map[string]bool
	logger  *logrus.Logger
}

// NewGate builds the gate table. overrides maps a regime name to the full
// replacement model list for that regime; regimes absent from overrides
// keep the detector defaults.
func NewGate(overrides map[string][]string, logger *logrus.Logger) *Gate {
	allowed := make(map[models.Regime]map[string]bool)
	for _, modelID := range detectors.ModelIDs() {
		for _, regime := range detectors.CompatibleRegimes(modelID) {
			if allowed[regime] == nil {
				allowed[regime] = make(map[string]bool)
			}
			allowed[regime][modelID] = true
		}
	}
	for regimeName, modelIDs := range overrides {
		set := make(map[string]bool, len(modelIDs))
		for _, id := range modelIDs {
			set[id] = true
		}
		allowed[models.Regime(regimeName)] = set
	}
	return &Gate{allowed: allowed, logger: logger}
}

// Allows reports whether a model may contribute in a regime.
func (g *Gate) Allows(regime models.Regime, modelID string) bool {
	return g.allowed[regime][modelID]
}

// AllowedModels returns the model IDs permitted in a regime, in the
// registry's stable order.
func (g *Gate) AllowedModels(regime models.Regime) []string {
	var out []string
	for _, id := range detectors.ModelIDs() {
		if g.allowed[regime][id] {
			out = append(out, id)
		}
	}
	return out
}

// Filter splits candidates into those whose model is allowed in the regime
// and those rejected. Rejected candidates are reported so the lifecycle
// manager can invalidate their identities. The engine consults Allows on
// the same gate before running a detector, so under that wiring the
// rejected slice stays empty; it fills only for callers that fuse
// candidates detected under a different regime or gate table, such as
// replays of persisted signals.
func (g *Gate) Filter(regime models.Regime, candidates []models.CandidateSignal) (kept, rejected []models.CandidateSignal) {
	for _, c := range candidates {
		if g.Allows(regime, c.ModelID) {
			kept = append(kept, c)
			continue
		}
		g.logger.WithFields(logrus.Fields{
			"symbol": c.Symbol,
			"model":  c.ModelID,
			"regime": regime,
		}).Debug("Candidate rejected by regime gate")
		rejected = append(rejected, c)
	}
	return kept, rejected
}
