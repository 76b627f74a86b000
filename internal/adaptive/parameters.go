// Package adaptive holds the process-wide tunable thresholds and the
// feedback controller that retunes them from realized performance. The
// parameter set is the only mutable state shared across concurrent symbol
// cycles besides the lifecycle table; every read path goes through an
// immutable Snapshot so a cycle sees one consistent view.
package adaptive

import (
	"sync"
)

// Severity grades how hard a signal identity is parked when it enters
// cooldown.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Bounds for every adjustable parameter. The controller never moves a value
// past these, which is what keeps repeated optimize calls from drifting.
const (
	MinConfirmationThreshold = 1
	MaxConfirmationThreshold = 3
	MaxATRStopMultiplier     = 2.0
	MinModelWeight           = 0.5
)

// Defaults holds the initial values applied at process start and on Reset.
type Defaults struct {
	ConfirmationThreshold   int
	ATRStopMultiplier       float64
	ATRTakeProfitMultiplier float64
	ModelWeight             float64
}

// ParameterSet is the shared threshold state. Mutated only by the
// Controller, read by every other component through Snapshot.
type ParameterSet struct {
	mu sync.RWMutex

	defaults Defaults

	confirmationThreshold   int
	atrStopMultiplier       float64
	atrTakeProfitMultiplier float64
	modelWeights            map[string]float64
	cooldownHours           map[Severity]float64
}

// Snapshot is a value copy of the parameter set taken at the start of a
// cycle step.
type Snapshot struct {
	ConfirmationThreshold   int
	ATRStopMultiplier       float64
	ATRTakeProfitMultiplier float64
	ModelWeights            map[string]float64
	CooldownHours           map[Severity]float64
}

// NewParameterSet builds the shared set with per-model weights for the
// given model IDs.
func NewParameterSet(defaults Defaults, modelIDs []string) *ParameterSet {
	ps := &ParameterSet{defaults: defaults}
	ps.reset(modelIDs)
	return ps
}

func (ps *ParameterSet) reset(modelIDs []string) {
	ps.confirmationThreshold = ps.defaults.ConfirmationThreshold
	ps.atrStopMultiplier = ps.defaults.ATRStopMultiplier
	ps.atrTakeProfitMultiplier = ps.defaults.ATRTakeProfitMultiplier
	ps.modelWeights = make(map[string]float64, len(modelIDs))
	for _, id := range modelIDs {
		ps.modelWeights[id] = ps.defaults.ModelWeight
	}
	ps.cooldownHours = map[Severity]float64{
		SeverityLow:    2,
		SeverityMedium: 4,
		SeverityHigh:   8,
	}
}

// Reset restores every parameter to its default.
func (ps *ParameterSet) Reset() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ids := make([]string, 0, len(ps.modelWeights))
	for id := range ps.modelWeights {
		ids = append(ids, id)
	}
	ps.reset(ids)
}

// Snapshot returns an immutable copy of the current values.
func (ps *ParameterSet) Snapshot() Snapshot {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	weights := make(map[string]float64, len(ps.modelWeights))
	for id, w := range ps.modelWeights {
		weights[id] = w
	}
	cooldowns := make(map[Severity]float64, len(ps.cooldownHours))
	for s, h := range ps.cooldownHours {
		cooldowns[s] = h
	}
	return Snapshot{
		ConfirmationThreshold:   ps.confirmationThreshold,
		ATRStopMultiplier:       ps.atrStopMultiplier,
		ATRTakeProfitMultiplier: ps.atrTakeProfitMultiplier,
		ModelWeights:            weights,
		CooldownHours:           cooldowns,
	}
}

// ModelWeight returns one model's current weight (default 1.0 for unknown
// IDs so a misconfigured gate table cannot zero out a model silently).
func (s Snapshot) ModelWeight(modelID string) float64 {
	if w, ok := s.ModelWeights[modelID]; ok {
		return w
	}
	return 1.0
}

// CooldownDuration returns the configured cooldown hours for a severity.
func (s Snapshot) CooldownDuration(sev Severity) float64 {
	if h, ok := s.CooldownHours[sev]; ok {
		return h
	}
	return s.CooldownHours[SeverityMedium]
}

func (ps *ParameterSet) adjustConfirmationThreshold(delta int) {
	ps.confirmationThreshold += delta
	if ps.confirmationThreshold > MaxConfirmationThreshold {
		ps.confirmationThreshold = MaxConfirmationThreshold
	}
	if ps.confirmationThreshold < MinConfirmationThreshold {
		ps.confirmationThreshold = MinConfirmationThreshold
	}
}

func (ps *ParameterSet) adjustATRStopMultiplier(delta float64) {
	ps.atrStopMultiplier += delta
	if ps.atrStopMultiplier > MaxATRStopMultiplier {
		ps.atrStopMultiplier = MaxATRStopMultiplier
	}
}

func (ps *ParameterSet) reduceModelWeights(delta float64) {
	for id, w := range ps.modelWeights {
		w -= delta
		if w < MinModelWeight {
			w = MinModelWeight
		}
		ps.modelWeights[id] = w
	}
}
