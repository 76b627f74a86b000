package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/api"
	"github.com/quantfold/signalforge/internal/cache"
	"github.com/quantfold/signalforge/internal/config"
	"github.com/quantfold/signalforge/internal/database"
	"github.com/quantfold/signalforge/internal/detectors"
	"github.com/quantfold/signalforge/internal/engine"
	"github.com/quantfold/signalforge/internal/fusion"
	"github.com/quantfold/signalforge/internal/lifecycle"
	"github.com/quantfold/signalforge/internal/logging"
	"github.com/quantfold/signalforge/internal/marketdata"
	"github.com/quantfold/signalforge/internal/models"
	"github.com/quantfold/signalforge/internal/notifier"
	"github.com/quantfold/signalforge/internal/regime"
	"github.com/quantfold/signalforge/internal/risk"
	"github.com/quantfold/signalforge/internal/telemetry"
	"github.com/quantfold/signalforge/internal/validation"
)

// repositorySink adapts the decision repository to the engine's sink
// contract.
type repositorySink struct {
	repo *database.DecisionRepository
}

func (s *repositorySink) Publish(ctx context.Context, decision *models.Decision) error {
	return s.repo.SaveDecision(ctx, decision)
}

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryProvider, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Environment)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize telemetry")
	}
	defer func() {
		if err := telemetryProvider.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("Telemetry shutdown failed")
		}
	}()

	db, err := database.NewPostgresConnection(cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	redisClient, err := database.NewRedisConnection(cfg.Redis, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	gateway := marketdata.NewClient(cfg.Gateway, logger)
	if err := gateway.HealthCheck(ctx); err != nil {
		// Startup proceeds; the first cycle will retry.
		logger.WithError(err).Warn("Market data gateway not ready")
	}

	repo := database.NewDecisionRepository(db.Pool)
	regimeCache := cache.NewRedisRegimeCache(redisClient.Client, time.Hour, logger)

	params := adaptive.NewParameterSet(adaptive.Defaults{
		ConfirmationThreshold:   cfg.Adaptive.ConfirmationThreshold,
		ATRStopMultiplier:       cfg.Adaptive.ATRStopMultiplier,
		ATRTakeProfitMultiplier: cfg.Adaptive.ATRTakeProfitMultiplier,
		ModelWeight:             cfg.Adaptive.ModelWeight,
	}, detectors.ModelIDs())
	controller := adaptive.NewController(params, logger)

	primary := models.Timeframe(cfg.Engine.PrimaryTimeframe)
	timeframes := make([]models.Timeframe, len(cfg.Engine.Timeframes))
	for i, tf := range cfg.Engine.Timeframes {
		timeframes[i] = models.Timeframe(tf)
	}

	var store lifecycle.Store
	if cfg.Lifecycle.UseRedis {
		store = lifecycle.NewRedisStore(redisClient.Client)
	} else {
		store = lifecycle.NewMemoryStore()
	}
	ttl, _ := time.ParseDuration(cfg.Lifecycle.TTL)
	sweepInterval, _ := time.ParseDuration(cfg.Lifecycle.SweepInterval)
	cycleInterval, _ := time.ParseDuration(cfg.Engine.CycleInterval)
	manager := lifecycle.NewManager(store, ttl, logger)

	classifier := regime.NewClassifier(primary, logger)

	sinks := []engine.DecisionSink{&repositorySink{repo: repo}}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, notifier.NewTelegramNotifier(cfg.Telegram, logger))
	}

	eng := engine.New(engine.Config{
		Symbols:          cfg.Engine.Symbols,
		Timeframes:       timeframes,
		PrimaryTimeframe: primary,
		CandleLimit:      cfg.Engine.CandleLimit,
		CycleInterval:    cycleInterval,
		PeerSymbols:      buildPeerMap(cfg.Engine.Symbols, cfg.Engine.PeerSymbols),
	}, engine.Deps{
		Provider:   gateway,
		Equity:     gateway,
		Sinks:      sinks,
		Classifier: classifier,
		Detectors:  detectors.All(primary, logger),
		Gate:       fusion.NewGate(cfg.Fusion.GateOverrides, logger),
		Fuser:      fusion.NewEngine(cfg.Fusion.DecisionMargin, logger),
		Validator: validation.NewValidator(primary, validation.Config{
			VolumeFactor:      cfg.Validation.VolumeFactor,
			MinScore:          cfg.Validation.MinScore,
			CounterTrendScore: cfg.Validation.CounterTrendScore,
		}, gateway, logger),
		Manager: manager,
		Sizer: risk.NewSizer(primary, risk.Config{
			BaseRiskFraction:    cfg.Risk.BaseRiskFraction,
			MaxPositionFraction: cfg.Risk.MaxPositionFraction,
			MaxLeverage:         cfg.Risk.MaxLeverage,
		}, logger),
		Params:     params,
		Controller: controller,
		Regimes:    regimeCache,
	}, logger)

	go eng.Run(ctx)
	go manager.StartSweeper(ctx, sweepInterval)

	sampler := telemetry.NewResourceSampler(logger)
	go sampler.Run(ctx, time.Minute)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.Deps{
		Store:       repo,
		Regimes:     classifier,
		RegimeCache: regimeCache,
		Params:      params,
		Controller:  controller,
		Database:    db,
		Redis:       redisClient,
	}, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server exited")
}

// buildPeerMap gives every evaluated symbol the configured peer list minus
// itself, for the cross-symbol model.
func buildPeerMap(symbols, peers []string) map[string][]string {
	if len(peers) == 0 {
		return nil
	}
	out := make(map[string][]string, len(symbols))
	for _, symbol := range symbols {
		var list []string
		for _, peer := range peers {
			if peer != symbol {
				list = append(list, peer)
			}
		}
		if len(list) > 0 {
			out[symbol] = list
		}
	}
	return out
}
