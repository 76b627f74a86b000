package adaptive

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/quantfold/signalforge/internal/models"
)

var testModelIDs = []string{"structure_break", "key_level"}

func testDefaults() Defaults {
	return Defaults{
		ConfirmationThreshold:   2,
		ATRStopMultiplier:       1.5,
		ATRTakeProfitMultiplier: 3.0,
		ModelWeight:             1.0,
	}
}

func newTestController() (*Controller, *ParameterSet) {
	params := NewParameterSet(testDefaults(), testModelIDs)
	return NewController(params, logrus.New()), params
}

func sample(winRate, sharpe, drawdown float64) models.PerformanceRecord {
	return models.PerformanceRecord{
		WinRate:     winRate,
		SharpeRatio: sharpe,
		MaxDrawdown: drawdown,
		Period:      "7d",
		Timestamp:   time.Now(),
	}
}

func TestOptimizeEmptyWindowIsNoOp(t *testing.T) {
	ctrl, params := newTestController()
	before := params.Snapshot()

	ctrl.Optimize()

	assert.Equal(t, before, params.Snapshot())
}

func TestLowWinRateRaisesConfirmationThreshold(t *testing.T) {
	ctrl, params := newTestController()
	ctrl.Record(sample(0.40, 1.2, 0.05))

	ctrl.Optimize()
	assert.Equal(t, 3, params.Snapshot().ConfirmationThreshold)

	// Repeated low win rate samples stay pinned at the cap.
	ctrl.Record(sample(0.35, 1.2, 0.05))
	ctrl.Optimize()
	ctrl.Optimize()
	assert.Equal(t, MaxConfirmationThreshold, params.Snapshot().ConfirmationThreshold)
}

func TestHighWinRateLowersConfirmationThreshold(t *testing.T) {
	ctrl, params := newTestController()
	ctrl.Record(sample(0.70, 1.2, 0.05))

	ctrl.Optimize()
	assert.Equal(t, 1, params.Snapshot().ConfirmationThreshold)

	ctrl.Optimize()
	assert.Equal(t, MinConfirmationThreshold, params.Snapshot().ConfirmationThreshold)
}

func TestLowSharpeWidensStopsBounded(t *testing.T) {
	ctrl, params := newTestController()
	ctrl.Record(sample(0.55, 0.3, 0.05))

	ctrl.Optimize()
	assert.InDelta(t, 1.7, params.Snapshot().ATRStopMultiplier, 1e-9)

	for i := 0; i < 10; i++ {
		ctrl.Optimize()
	}
	assert.InDelta(t, MaxATRStopMultiplier, params.Snapshot().ATRStopMultiplier, 1e-9)
}

func TestHighDrawdownReducesModelWeightsFloored(t *testing.T) {
	ctrl, params := newTestController()
	ctrl.Record(sample(0.55, 1.2, 0.20))

	ctrl.Optimize()
	assert.InDelta(t, 0.9, params.Snapshot().ModelWeight("structure_break"), 1e-9)

	for i := 0; i < 20; i++ {
		ctrl.Optimize()
	}
	snap := params.Snapshot()
	for _, id := range testModelIDs {
		assert.InDelta(t, MinModelWeight, snap.ModelWeight(id), 1e-9)
	}
}

func TestStaleSamplesOutsideLookbackIgnored(t *testing.T) {
	ctrl, params := newTestController()
	old := sample(0.30, 0.1, 0.30)
	old.Timestamp = time.Now().Add(-8 * 24 * time.Hour)
	ctrl.Record(old)

	ctrl.Optimize()

	snap := params.Snapshot()
	assert.Equal(t, 2, snap.ConfirmationThreshold)
	assert.InDelta(t, 1.5, snap.ATRStopMultiplier, 1e-9)
}

func TestWindowBoundedAtThirty(t *testing.T) {
	ctrl, _ := newTestController()
	for i := 0; i < 45; i++ {
		ctrl.Record(sample(0.5, 1.0, 0.02))
	}
	assert.Equal(t, maxWindowSize, ctrl.WindowSize())
}

func TestResetRestoresDefaults(t *testing.T) {
	ctrl, params := newTestController()
	ctrl.Record(sample(0.30, 0.2, 0.25))
	ctrl.Optimize()

	params.Reset()
	snap := params.Snapshot()
	assert.Equal(t, 2, snap.ConfirmationThreshold)
	assert.InDelta(t, 1.5, snap.ATRStopMultiplier, 1e-9)
	assert.InDelta(t, 1.0, snap.ModelWeight("key_level"), 1e-9)
}

func TestSnapshotIsACopy(t *testing.T) {
	_, params := newTestController()
	snap := params.Snapshot()
	snap.ModelWeights["structure_break"] = 0.0

	assert.InDelta(t, 1.0, params.Snapshot().ModelWeight("structure_break"), 1e-9)
}
