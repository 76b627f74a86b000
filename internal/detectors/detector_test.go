package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testParams() adaptive.Snapshot {
	return adaptive.NewParameterSet(adaptive.Defaults{
		ConfirmationThreshold:   2,
		ATRStopMultiplier:       1.5,
		ATRTakeProfitMultiplier: 3.0,
		ModelWeight:             1.0,
	}, ModelIDs()).Snapshot()
}

// bar builds one candle; volume defaults to 100 unless overridden by the
// builder helpers below.
type bar struct {
	open, high, low, close, volume float64
}

func candlesOf(bars []bar) []models.Candle {
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(bars))
	for i, b := range bars {
		v := b.volume
		if v == 0 {
			v = 100
		}
		out[i] = models.Candle{
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			Open:      b.open,
			High:      b.high,
			Low:       b.low,
			Close:     b.close,
			Volume:    v,
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
		}
	}
	return out
}

func flatBars(n int, price float64) []bar {
	out := make([]bar, n)
	for i := range out {
		out[i] = bar{open: price, high: price + 0.5, low: price - 0.5, close: price}
	}
	return out
}

func viewFor(candles []models.Candle) *models.MarketView {
	return &models.MarketView{
		Symbol: "BTC/USDT",
		Frames: map[models.Timeframe][]models.Candle{models.Timeframe1h: candles},
	}
}

func TestRegistryListsSixUniqueModels(t *testing.T) {
	all := All(models.Timeframe1h, testLogger())
	require.Len(t, all, 6)

	seen := make(map[string]bool)
	for i, d := range all {
		assert.Equal(t, ModelIDs()[i], d.ID())
		assert.False(t, seen[d.ID()])
		seen[d.ID()] = true
	}
}

func TestRegimeCompatibilityIsStatic(t *testing.T) {
	all := All(models.Timeframe1h, testLogger())
	for _, d := range all {
		expected := CompatibleRegimes(d.ID())
		require.NotEmpty(t, expected, d.ID())
		for _, regime := range expected {
			assert.True(t, d.AllowedIn(regime), "%s in %s", d.ID(), regime)
		}
	}

	// Spot checks on exclusions.
	assert.False(t, All(models.Timeframe1h, testLogger())[2].AllowedIn(models.RegimeStrongTrend))
	assert.False(t, All(models.Timeframe1h, testLogger())[5].AllowedIn(models.RegimeSqueeze))
}

func TestAllDetectorsSafeOnEmptyView(t *testing.T) {
	view := viewFor(nil)
	for _, d := range All(models.Timeframe1h, testLogger()) {
		signal, err := d.Detect(context.Background(), view, testParams())
		assert.NoError(t, err, d.ID())
		assert.Nil(t, signal, d.ID())
	}
}

func TestAllDetectorsSafeOnShortView(t *testing.T) {
	view := viewFor(candlesOf(flatBars(5, 100)))
	for _, d := range All(models.Timeframe1h, testLogger()) {
		signal, err := d.Detect(context.Background(), view, testParams())
		assert.NoError(t, err, d.ID())
		assert.Nil(t, signal, d.ID())
	}
}

func TestCandidateBoundsWheneverEmitted(t *testing.T) {
	// A flat market should produce no signals at all; any candidate that
	// does surface from any fixture must respect the declared ranges.
	view := viewFor(candlesOf(flatBars(80, 100)))
	for _, d := range All(models.Timeframe1h, testLogger()) {
		signal, err := d.Detect(context.Background(), view, testParams())
		require.NoError(t, err, d.ID())
		if signal == nil {
			continue
		}
		assert.GreaterOrEqual(t, signal.Strength, 0.0)
		assert.LessOrEqual(t, signal.Strength, 10.0)
		assert.GreaterOrEqual(t, signal.Confidence, 0.0)
		assert.LessOrEqual(t, signal.Confidence, 1.0)
	}
}
