package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
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

func testSizer() *Sizer {
	return NewSizer(models.Timeframe1h, Config{}, testLogger())
}

func testSnapshot() adaptive.Snapshot {
	return adaptive.Snapshot{ATRStopMultiplier: 1.5, ATRTakeProfitMultiplier: 3.0}
}

// viewAt builds 30 bars with a constant 2.0 true range closing at price.
func viewAt(price float64) *models.MarketView {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, 30)
	for i := range candles {
		candles[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     price, High: price + 1, Low: price - 1, Close: price,
			Volume:    100,
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
		}
	}
	return &models.MarketView{
		Symbol: "BTC/USDT",
		Frames: map[models.Timeframe][]models.Candle{models.Timeframe1h: candles},
	}
}

func fused(action models.TradeAction, strength, confidence float64, regime models.Regime) *models.FusionResult {
	return &models.FusionResult{
		Symbol:             "BTC/USDT",
		Action:             action,
		AggregatedStrength: strength,
		Confidence:         confidence,
		Regime:             regime,
	}
}

func TestSizeLongPlan(t *testing.T) {
	s := testSizer()
	plan, err := s.Size(fused(models.ActionLong, 6.5, 0.4, models.RegimeStrongTrend),
		viewAt(100), decimal.NewFromInt(10000), testSnapshot())

	require.NoError(t, err)
	// ATR is 2.0 on a constant-range fixture: stop 100-3, take profit at
	// the 2.0 tier for a 6.5 score.
	stop, _ := plan.StopLoss.Float64()
	tp, _ := plan.TakeProfit.Float64()
	assert.InDelta(t, 97.0, stop, 1e-6)
	assert.InDelta(t, 106.0, tp, 1e-6)
	assert.Equal(t, 2.0, plan.RiskReward)
	assert.Equal(t, 5, plan.Leverage)

	// risk 1% x factor 1.0 x conf 0.4 / (3/100) = 13.3% of equity, above
	// the 5% cap.
	size, _ := plan.PositionSize.Float64()
	assert.InDelta(t, 500.0, size, 1e-6)
}

func TestSizeShortMirrorsStops(t *testing.T) {
	s := testSizer()
	plan, err := s.Size(fused(models.ActionShort, 8.2, 0.3, models.RegimeWeakTrend),
		viewAt(100), decimal.NewFromInt(10000), testSnapshot())

	require.NoError(t, err)
	stop, _ := plan.StopLoss.Float64()
	tp, _ := plan.TakeProfit.Float64()
	assert.InDelta(t, 103.0, stop, 1e-6)
	assert.InDelta(t, 91.0, tp, 1e-6) // 3.0 R:R tier at score >= 8
	assert.Equal(t, 3.0, plan.RiskReward)
	assert.Equal(t, 4, plan.Leverage)
}

func TestPositionSizeBelowCapWhenStopIsWide(t *testing.T) {
	s := testSizer()
	// Range regime factor 0.6, confidence 0.2: 1% x 0.6 x 0.2 / 0.03 = 4%
	// of equity, under the cap.
	plan, err := s.Size(fused(models.ActionLong, 6, 0.2, models.RegimeRange),
		viewAt(100), decimal.NewFromInt(10000), testSnapshot())

	require.NoError(t, err)
	size, _ := plan.PositionSize.Float64()
	assert.InDelta(t, 400.0, size, 1e-6)
	assert.Equal(t, 3, plan.Leverage)
}

func TestHardCapSurvivesAdversarialInputs(t *testing.T) {
	s := testSizer()
	// Perfect score and confidence with a collapsing stop distance: the
	// 5% cap must hold.
	params := testSnapshot()
	params.ATRStopMultiplier = 1e-9

	plan, err := s.Size(fused(models.ActionLong, 10, 1.0, models.RegimeStrongTrend),
		viewAt(100), decimal.NewFromInt(10000), params)

	require.NoError(t, err)
	size, _ := plan.PositionSize.Float64()
	assert.LessOrEqual(t, size, 500.0+1e-6)
}

func TestZeroATRFallsBackToFractionalStop(t *testing.T) {
	s := testSizer()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, 30)
	for i := range candles {
		candles[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     100, High: 100, Low: 100, Close: 100,
			Volume:    100,
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
		}
	}
	view := &models.MarketView{
		Symbol: "BTC/USDT",
		Frames: map[models.Timeframe][]models.Candle{models.Timeframe1h: candles},
	}

	plan, err := s.Size(fused(models.ActionLong, 6, 0.4, models.RegimeStrongTrend),
		view, decimal.NewFromInt(10000), testSnapshot())

	require.NoError(t, err)
	stop, _ := plan.StopLoss.Float64()
	assert.InDelta(t, 98.0, stop, 1e-6)
}

func TestAnchoredStopUsesBrokenLevel(t *testing.T) {
	s := testSizer()
	result := fused(models.ActionLong, 7, 0.4, models.RegimeStrongTrend)
	result.Contributing = []models.CandidateSignal{{
		ModelID:  "structure_break",
		Strength: 7,
		Metadata: map[string]interface{}{"level": 99.0},
	}}

	plan, err := s.Size(result, viewAt(100), decimal.NewFromInt(10000), testSnapshot())

	require.NoError(t, err)
	// Stop sits a quarter ATR (0.5) under the broken level.
	stop, _ := plan.StopLoss.Float64()
	assert.InDelta(t, 98.5, stop, 1e-6)
	assert.Equal(t, 2.5, plan.RiskReward)
}

func TestTakeProfitFloorsAtATRMultipleWhenStopIsTight(t *testing.T) {
	s := testSizer()
	result := fused(models.ActionLong, 7, 0.4, models.RegimeStrongTrend)
	result.Contributing = []models.CandidateSignal{{
		ModelID:  "structure_break",
		Strength: 7,
		Metadata: map[string]interface{}{"level": 99.0},
	}}

	// The anchored stop sits 1.5 from entry, so the 2.5 tier alone would
	// target 103.75; the take-profit multiple (ATR 2.0 x 3.0) lifts the
	// target to 106.
	plan, err := s.Size(result, viewAt(100), decimal.NewFromInt(10000), testSnapshot())
	require.NoError(t, err)
	tp, _ := plan.TakeProfit.Float64()
	assert.InDelta(t, 106.0, tp, 1e-6)

	// Without the multiple the tiered target stands.
	params := testSnapshot()
	params.ATRTakeProfitMultiplier = 0
	plan, err = s.Size(result, viewAt(100), decimal.NewFromInt(10000), params)
	require.NoError(t, err)
	tp, _ = plan.TakeProfit.Float64()
	assert.InDelta(t, 103.75, tp, 1e-6)
}

func TestSizeRejectsNoTrade(t *testing.T) {
	s := testSizer()
	_, err := s.Size(fused(models.ActionNoTrade, 0, 0, models.RegimeRange),
		viewAt(100), decimal.NewFromInt(10000), testSnapshot())
	assert.Error(t, err)
}

func TestSizeRejectsEmptyView(t *testing.T) {
	s := testSizer()
	_, err := s.Size(fused(models.ActionLong, 6, 0.4, models.RegimeRange),
		&models.MarketView{Symbol: "BTC/USDT"}, decimal.NewFromInt(10000), testSnapshot())
	assert.Error(t, err)
}
