// Package engine runs the evaluation pipeline: per symbol, candles flow
// through regime classification, gated detection, fusion, validation,
// lifecycle admission, and sizing into a published decision. Symbols are
// evaluated in parallel; within one symbol the steps are sequential.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/detectors"
	"github.com/quantfold/signalforge/internal/fusion"
	"github.com/quantfold/signalforge/internal/lifecycle"
	"github.com/quantfold/signalforge/internal/models"
	"github.com/quantfold/signalforge/internal/regime"
	"github.com/quantfold/signalforge/internal/risk"
	"github.com/quantfold/signalforge/internal/validation"
)

// CandleProvider is the exchange/data collaborator.
type CandleProvider interface {
	Candles(ctx context.Context, symbol string, timeframe models.Timeframe, limit int) ([]models.Candle, error)
}

// EquityProvider is the account/ledger collaborator.
type EquityProvider interface {
	AccountEquity(ctx context.Context) (decimal.Decimal, error)
}

// DecisionSink consumes published decisions (persistence, notification).
type DecisionSink interface {
	Publish(ctx context.Context, decision *models.Decision) error
}

// RegimeRecorder observes each cycle's classification. The Redis regime
// cache satisfies this.
type RegimeRecorder interface {
	Set(ctx context.Context, symbol string, regime models.Regime, classifiedAt time.Time) error
}

// Config selects what the engine evaluates and how often.
type Config struct {
	Symbols          []string
	Timeframes       []models.Timeframe
	PrimaryTimeframe models.Timeframe
	CandleLimit      int
	CycleInterval    time.Duration
	PeerSymbols      map[string][]string
}

// Engine owns one deployment's evaluation loop.
type Engine struct {
	cfg        Config
	provider   CandleProvider
	equity     EquityProvider
	sinks      []DecisionSink
	classifier *regime.Classifier
	detectors  []detectors.Detector
	gate       *fusion.Gate
	fuser      *fusion.Engine
	validator  *validation.Validator
	manager    *lifecycle.Manager
	sizer      *risk.Sizer
	params     *adaptive.ParameterSet
	controller *adaptive.Controller
	regimes    RegimeRecorder
	logger     *logrus.Logger
	tracer     trace.Tracer
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Provider   CandleProvider
	Equity     EquityProvider
	Sinks      []DecisionSink
	Classifier *regime.Classifier
	Detectors  []detectors.Detector
	Gate       *fusion.Gate
	Fuser      *fusion.Engine
	Validator  *validation.Validator
	Manager    *lifecycle.Manager
	Sizer      *risk.Sizer
	Params     *adaptive.ParameterSet
	Controller *adaptive.Controller
	Regimes    RegimeRecorder
}

func New(cfg Config, deps Deps, logger *logrus.Logger) *Engine {
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 100
	}
	if cfg.PrimaryTimeframe == "" {
		cfg.PrimaryTimeframe = models.Timeframe1h
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 5 * time.Minute
	}
	return &Engine{
		cfg:        cfg,
		provider:   deps.Provider,
		equity:     deps.Equity,
		sinks:      deps.Sinks,
		classifier: deps.Classifier,
		detectors:  deps.Detectors,
		gate:       deps.Gate,
		fuser:      deps.Fuser,
		validator:  deps.Validator,
		manager:    deps.Manager,
		sizer:      deps.Sizer,
		params:     deps.Params,
		controller: deps.Controller,
		regimes:    deps.Regimes,
		logger:     logger,
		tracer:     otel.Tracer("signalforge/engine"),
	}
}

// Run evaluates immediately, then on every tick until the context ends.
func (e *Engine) Run(ctx context.Context) {
	e.Cycle(ctx)
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Cycle(ctx)
		}
	}
}

// Cycle retunes parameters from accumulated performance, then evaluates
// every configured symbol in parallel.
func (e *Engine) Cycle(ctx context.Context) {
	ctx, span := e.tracer.Start(ctx, "engine.cycle")
	defer span.End()

	e.controller.Optimize()
	snapshot := e.params.Snapshot()

	var wg sync.WaitGroup
	for _, symbol := range e.cfg.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			if err := e.EvaluateSymbol(ctx, symbol, snapshot); err != nil {
				e.logger.WithError(err).WithField("symbol", symbol).Warn("Symbol evaluation failed")
			}
		}(symbol)
	}
	wg.Wait()
}

// EvaluateSymbol runs the full sequential pipeline for one symbol.
func (e *Engine) EvaluateSymbol(ctx context.Context, symbol string, params adaptive.Snapshot) error {
	ctx, span := e.tracer.Start(ctx, "engine.evaluate_symbol",
		trace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	view, err := e.buildView(ctx, symbol)
	if err != nil {
		return err
	}

	marketRegime := e.classifier.Classify(view)
	span.SetAttributes(attribute.String("regime", string(marketRegime)))
	if e.regimes != nil {
		if err := e.regimes.Set(ctx, symbol, marketRegime, time.Now().UTC()); err != nil {
			e.logger.WithError(err).WithField("symbol", symbol).Debug("Failed to record regime")
		}
	}

	candidates := e.detect(ctx, view, marketRegime, params)

	kept, rejected := e.gate.Filter(marketRegime, candidates)
	for _, c := range rejected {
		if err := e.manager.Invalidate(ctx, c.Identity(), fmt.Sprintf("model %s gated out in %s", c.ModelID, marketRegime)); err != nil {
			e.logger.WithError(err).Warn("Failed to invalidate gated signal")
		}
	}
	admissible := e.admit(ctx, kept)

	result := e.fuser.Fuse(symbol, admissible, marketRegime, params)
	if result.Action == models.ActionNoTrade {
		return nil
	}

	if ok, reason := e.validator.Validate(ctx, &result, view); !ok {
		for _, c := range result.Contributing {
			if err := e.manager.Invalidate(ctx, c.Identity(), reason); err != nil {
				e.logger.WithError(err).Warn("Failed to invalidate signal")
			}
		}
		return nil
	}
	for _, c := range result.Contributing {
		if err := e.manager.Trigger(ctx, c.Identity(), "fusion and validation passed"); err != nil {
			e.logger.WithError(err).WithField("identity", c.Identity()).Warn("Failed to trigger signal")
		}
	}
	if len(result.Contributing) >= params.ConfirmationThreshold {
		for _, c := range result.Contributing {
			if err := e.manager.Confirm(ctx, c.Identity(), "corroboration threshold met"); err != nil {
				e.logger.WithError(err).WithField("identity", c.Identity()).Debug("Confirmation skipped")
			}
		}
	}

	decision, err := e.buildDecision(ctx, &result, view, params)
	if err != nil {
		return err
	}
	e.publish(ctx, decision)

	// Published identities cool down so the same setup cannot re-fire
	// every cycle.
	for _, c := range result.Contributing {
		if err := e.manager.Cooldown(ctx, c.Identity(), adaptive.SeverityMedium, params, "decision published"); err != nil {
			e.logger.WithError(err).Warn("Failed to cool down signal")
		}
	}
	return nil
}

// buildView fetches all configured frames plus the symbol's peers.
func (e *Engine) buildView(ctx context.Context, symbol string) (*models.MarketView, error) {
	view := &models.MarketView{
		Symbol: symbol,
		Frames: make(map[models.Timeframe][]models.Candle, len(e.cfg.Timeframes)),
	}
	for _, tf := range e.cfg.Timeframes {
		candles, err := e.provider.Candles(ctx, symbol, tf, e.cfg.CandleLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s %s candles: %w", symbol, tf, err)
		}
		view.Frames[tf] = candles
	}
	peers := e.cfg.PeerSymbols[symbol]
	if len(peers) > 0 {
		view.Peers = make(map[string][]models.Candle, len(peers))
		for _, peer := range peers {
			candles, err := e.provider.Candles(ctx, peer, e.cfg.PrimaryTimeframe, e.cfg.CandleLimit)
			if err != nil {
				// A missing peer only degrades the cross-symbol model.
				e.logger.WithError(err).WithField("peer", peer).Debug("Peer candles unavailable")
				continue
			}
			view.Peers[peer] = candles
		}
	}
	return view, nil
}

/// detect runs every gate-allowed detector, isolating failures: a panic or
// error in one model degrades signal count, never the cycle.
func (e *Engine) detect(ctx context.Context, view *models.MarketView, marketRegime models.Regime, params adaptive.Snapshot) []models.CandidateSignal {
	var out []models.CandidateSignal
	for _, d := range e.detectors {
		if !e.gate.Allows(marketRegime, d.ID()) {
			continue
		}
		signal, err := e.safeDetect(ctx, d, view, params)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"symbol": view.Symbol,
				"model":  d.ID(),
			}).Warn("Signal model failed; skipping")
			continue
		}
		if signal != nil {
			out = append(out, *signal)
		}
	}
	return out
}

func (e *Engine) safeDetect(ctx context.Context, d detectors.Detector, view *models.MarketView, params adaptive.Snapshot) (signal *models.CandidateSignal, err error) {
	defer func() {
		if r := recover(); r != nil {
			signal = nil
			err = fmt.Errorf("model %s panicked: %v", d.ID(), r)
		}
	}()
	return d.Detect(ctx, view, params)
}

// admit tracks first sightings and drops candidates the lifecycle manager
// refuses to reprocess.
func (e *Engine) admit(ctx context.Context, candidates []models.CandidateSignal) []models.CandidateSignal {
	var out []models.CandidateSignal
	for _, c := range candidates {
		identity := c.Identity()
		ok, err := e.manager.CanProcess(ctx, identity)
		if err != nil {
			e.logger.WithError(err).WithField("identity", identity).Warn("Lifecycle lookup failed; dropping candidate")
			continue
		}
		if !ok {
			e.logger.WithField("identity", identity).Debug("Candidate blocked by lifecycle state")
			continue
		}
		if err := e.manager.Track(ctx, &c); err != nil {
			e.logger.WithError(err).WithField("identity", identity).Warn("Failed to track candidate")
			continue
		}
		out = append(out, c)
	}
	return out
}

func (e *Engine) buildDecision(ctx context.Context, result *models.FusionResult, view *models.MarketView, params adaptive.Snapshot) (*models.Decision, error) {
	equity, err := e.equity.AccountEquity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account equity: %w", err)
	}
	plan, err := e.sizer.Size(result, view, equity, params)
	if err != nil {
		return nil, err
	}
	entry, _ := view.LastClose(e.cfg.PrimaryTimeframe)
	return &models.Decision{
		ID:           uuid.New().String(),
		Symbol:       result.Symbol,
		Action:       result.Action,
		Strength:     result.AggregatedStrength,
		Confidence:   result.Confidence,
		Regime:       result.Regime,
		EntryPrice:   decimal.NewFromFloat(entry),
		StopLoss:     plan.StopLoss,
		TakeProfit:   plan.TakeProfit,
		PositionSize: plan.PositionSize,
		Leverage:     plan.Leverage,
		Rationale:    result.Rationale,
		Models:       result.ContributingModels(),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (e *Engine) publish(ctx context.Context, decision *models.Decision) {
	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, decision); err != nil {
			e.logger.WithError(err).WithField("decision", decision.ID).Warn("Decision sink failed")
		}
	}
	e.logger.WithFields(logrus.Fields{
		"decision": decision.ID,
		"symbol":   decision.Symbol,
		"action":   decision.Action,
		"strength": decision.Strength,
		"regime":   decision.Regime,
	}).Info("Decision published")
}
