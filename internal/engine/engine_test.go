package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/detectors"
	"github.com/quantfold/signalforge/internal/fusion"
	"github.com/quantfold/signalforge/internal/lifecycle"
	"github.com/quantfold/signalforge/internal/models"
	"github.com/quantfold/signalforge/internal/regime"
	"github.com/quantfold/signalforge/internal/risk"
	"github.com/quantfold/signalforge/internal/validation"
)

type fakeProvider struct {
	candles map[string][]models.Candle
	err     error
}

func (f *fakeProvider) Candles(_ context.Context, symbol string, _ models.Timeframe, _ int) ([]models.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candles[symbol], nil
}

type fakeEquity struct{ value decimal.Decimal }

func (f *fakeEquity) AccountEquity(context.Context) (decimal.Decimal, error) {
	return f.value, nil
}

type captureSink struct {
	mu        sync.Mutex
	decisions []*models.Decision
}

func (s *captureSink) Publish(_ context.Context, d *models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.decisions)
}

type alwaysSafe struct{}

func (alwaysSafe) IsSafeWindow(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// breakoutCandles is 60 sideways bars with a swing high at 102 and three
// closing bars at 103 on expanded volume: a held structure break in a
// weak uptrend.
func breakoutCandles() []models.Candle {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, 60)
	for i := range out {
		out[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     100, High: 100.5, Low: 99.5, Close: 100,
			Volume:    100,
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
		}
	}
	out[40].High = 102
	for i := 57; i < 60; i++ {
		out[i].Open = 102.8
		out[i].High = 103.5
		out[i].Low = 102.5
		out[i].Close = 103
		out[i].Volume = 250
	}
	return out
}

func newTestEngine(provider CandleProvider, sink DecisionSink, gateOverrides map[string][]string, extra ...detectors.Detector) (*Engine, *adaptive.ParameterSet) {
	logger := testLogger()
	params := adaptive.NewParameterSet(adaptive.Defaults{
		ConfirmationThreshold:   1,
		ATRStopMultiplier:       1.5,
		ATRTakeProfitMultiplier: 3.0,
		ModelWeight:             1.0,
	}, detectors.ModelIDs())

	ds := detectors.All(models.Timeframe1h, logger)
	if len(extra) > 0 {
		ds = extra
	}
	deps := Deps{
		Provider:   provider,
		Equity:     &fakeEquity{value: decimal.NewFromInt(10000)},
		Sinks:      []DecisionSink{sink},
		Classifier: regime.NewClassifier(models.Timeframe1h, logger),
		Detectors:  ds,
		Gate:       fusion.NewGate(gateOverrides, logger),
		Fuser:      fusion.NewEngine(2.0, logger),
		Validator:  validation.NewValidator(models.Timeframe1h, validation.Config{}, alwaysSafe{}, logger),
		Manager:    lifecycle.NewManager(lifecycle.NewMemoryStore(), lifecycle.DefaultTTL, logger),
		Sizer:      risk.NewSizer(models.Timeframe1h, risk.Config{}, logger),
		Params:     params,
		Controller: adaptive.NewController(params, logger),
	}
	cfg := Config{
		Symbols:          []string{"BTC/USDT"},
		Timeframes:       []models.Timeframe{models.Timeframe1h},
		PrimaryTimeframe: models.Timeframe1h,
		CandleLimit:      100,
		CycleInterval:    time.Minute,
	}
	return New(cfg, deps, logger), params
}

func TestCyclePublishesDecisionOnCleanBreakout(t *testing.T) {
	sink := &captureSink{}
	provider := &fakeProvider{candles: map[string][]models.Candle{"BTC/USDT": breakoutCandles()}}
	engine, _ := newTestEngine(provider, sink, nil)

	engine.Cycle(context.Background())

	require.Equal(t, 1, sink.count())
	decision := sink.decisions[0]
	assert.Equal(t, models.ActionLong, decision.Action)
	assert.Equal(t, "BTC/USDT", decision.Symbol)
	assert.Contains(t, decision.Models, detectors.ModelStructureBreak)
	assert.Equal(t, models.RegimeWeakTrend, decision.Regime)
	assert.True(t, decision.PositionSize.IsPositive())
	assert.NotEmpty(t, decision.ID)
	assert.True(t, decision.StopLoss.LessThan(decision.EntryPrice))
	assert.True(t, decision.TakeProfit.GreaterThan(decision.EntryPrice))
}

func TestCooldownBlocksRepeatDecisionSameBar(t *testing.T) {
	sink := &captureSink{}
	provider := &fakeProvider{candles: map[string][]models.Candle{"BTC/USDT": breakoutCandles()}}
	engine, _ := newTestEngine(provider, sink, nil)

	engine.Cycle(context.Background())
	engine.Cycle(context.Background())
	engine.Cycle(context.Background())

	// The same bar data yields the same signal identity, which is cooling
	// down after the first publish.
	assert.Equal(t, 1, sink.count())
}

func TestEvaluateSymbolPropagatesProviderError(t *testing.T) {
	sink := &captureSink{}
	provider := &fakeProvider{err: errors.New("gateway down")}
	engine, params := newTestEngine(provider, sink, nil)

	err := engine.EvaluateSymbol(context.Background(), "BTC/USDT", params.Snapshot())
	assert.Error(t, err)
	assert.Equal(t, 0, sink.count())
}

type panicDetector struct{}

func (panicDetector) ID() string                      { return "panicky" }
func (panicDetector) Category() models.SignalCategory { return models.CategoryMomentum }
func (panicDetector) AllowedIn(models.Regime) bool    { return true }
func (panicDetector) Detect(context.Context, *models.MarketView, adaptive.Snapshot) (*models.CandidateSignal, error) {
	panic("model bug")
}

func TestDetectorPanicIsIsolated(t *testing.T) {
	sink := &captureSink{}
	provider := &fakeProvider{candles: map[string][]models.Candle{"BTC/USDT": breakoutCandles()}}
	engine, params := newTestEngine(provider, sink,
		map[string][]string{"WEAK_TREND": {"panicky"}}, panicDetector{})

	err := engine.EvaluateSymbol(context.Background(), "BTC/USDT", params.Snapshot())
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.count())
}

func TestNoTradeOnEmptyMarket(t *testing.T) {
	sink := &captureSink{}
	provider := &fakeProvider{candles: map[string][]models.Candle{"BTC/USDT": nil}}
	engine, _ := newTestEngine(provider, sink, nil)

	engine.Cycle(context.Background())
	assert.Equal(t, 0, sink.count())
}
