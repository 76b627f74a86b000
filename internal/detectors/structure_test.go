package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/signalforge/internal/models"
)

// breakoutFixture builds 60 bars of sideways price with one swing high at
// 102, then breaksAbove bars closing at 103 at the end.
func breakoutFixture(breaksAbove int) *models.MarketView {
	bars := flatBars(60, 100)
	bars[40].high = 102
	for i := 60 - breaksAbove; i < 60; i++ {
		bars[i] = bar{open: 102.8, high: 103.5, low: 102.5, close: 103, volume: 250}
	}
	return viewFor(candlesOf(bars))
}

func TestStructureBreakDetectsHeldBreakout(t *testing.T) {
	d := NewStructureBreak(models.Timeframe1h, testLogger())
	signal, err := d.Detect(context.Background(), breakoutFixture(3), testParams())

	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, ModelStructureBreak, signal.ModelID)
	assert.Equal(t, models.DirectionLong, signal.Direction)
	assert.Equal(t, models.CategoryStructure, signal.Category)
	assert.Greater(t, signal.Strength, 3.0)
	assert.InDelta(t, 102.0, signal.Metadata["level"].(float64), 1e-9)
}

func TestStructureBreakRespectsConfirmationThreshold(t *testing.T) {
	d := NewStructureBreak(models.Timeframe1h, testLogger())

	params := testParams()
	params.ConfirmationThreshold = 3
	// Only two bars hold above the level, one short of the threshold.
	signal, err := d.Detect(context.Background(), breakoutFixture(2), params)
	require.NoError(t, err)
	assert.Nil(t, signal)

	params.ConfirmationThreshold = 2
	signal, err = d.Detect(context.Background(), breakoutFixture(2), params)
	require.NoError(t, err)
	assert.NotNil(t, signal)
}

func TestStructureBreakNilWithoutSwingLevels(t *testing.T) {
	d := NewStructureBreak(models.Timeframe1h, testLogger())
	signal, err := d.Detect(context.Background(), viewFor(candlesOf(flatBars(60, 100))), testParams())

	require.NoError(t, err)
	assert.Nil(t, signal)
}

func TestStructureBreakShortSide(t *testing.T) {
	bars := flatBars(60, 100)
	bars[40].low = 98
	for i := 57; i < 60; i++ {
		bars[i] = bar{open: 97.2, high: 97.5, low: 96.5, close: 97, volume: 250}
	}
	d := NewStructureBreak(models.Timeframe1h, testLogger())
	signal, err := d.Detect(context.Background(), viewFor(candlesOf(bars)), testParams())

	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, models.DirectionShort, signal.Direction)
	assert.InDelta(t, 98.0, signal.Metadata["level"].(float64), 1e-9)
}
