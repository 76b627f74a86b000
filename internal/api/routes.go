// Package api exposes the read-only HTTP surface: health, recent decisions,
// current adaptive parameters, cached regimes, and performance ingestion.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/cache"
	"github.com/quantfold/signalforge/internal/models"
)

// DecisionStore is the persistence collaborator for decision reads and
// performance writes.
type DecisionStore interface {
	LatestDecisions(ctx context.Context, limit int) ([]models.Decision, error)
	SavePerformance(ctx context.Context, record *models.PerformanceRecord) error
}

// RegimeSource answers current-regime queries when the cache misses.
type RegimeSource interface {
	Last(symbol string) (models.Regime, bool)
}

// HealthChecker is implemented by the database and redis connections.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Services  Services  `json:"services"`
}

type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// Deps bundles the API's collaborators.
type Deps struct {
	Store       DecisionStore
	Regimes     RegimeSource
	RegimeCache *cache.RedisRegimeCache
	Params      *adaptive.ParameterSet
	Controller  *adaptive.Controller
	Database    HealthChecker
	Redis       HealthChecker
}

// SetupRoutes wires all endpoints onto the router.
func SetupRoutes(router *gin.Engine, deps Deps, logger *logrus.Logger) {
	router.Use(otelgin.Middleware("signalforge"))

	router.GET("/health", healthCheck(deps))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/decisions", getDecisions(deps, logger))
		v1.GET("/params", getParams(deps))
		// Wildcard because symbols carry a slash (BTC/USDT).
		v1.GET("/regimes/*symbol", getRegime(deps))
		v1.POST("/performance", postPerformance(deps, logger))
	}
}

func healthCheck(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC(),
			Services:  Services{Database: "ok", Redis: "ok"},
		}
		status := http.StatusOK
		if deps.Database != nil {
			if err := deps.Database.HealthCheck(c.Request.Context()); err != nil {
				response.Services.Database = "unavailable"
				response.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.HealthCheck(c.Request.Context()); err != nil {
				response.Services.Redis = "unavailable"
				response.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, response)
	}
}

func getDecisions(deps Deps, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > 500 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 500"})
				return
			}
			limit = parsed
		}
		decisions, err := deps.Store.LatestDecisions(c.Request.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("Failed to load decisions")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load decisions"})
			return
		}
		if decisions == nil {
			decisions = []models.Decision{}
		}
		c.JSON(http.StatusOK, gin.H{"decisions": decisions, "count": len(decisions)})
	}
}

func getParams(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot := deps.Params.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"confirmation_threshold":     snapshot.ConfirmationThreshold,
			"atr_stop_multiplier":        snapshot.ATRStopMultiplier,
			"atr_take_profit_multiplier": snapshot.ATRTakeProfitMultiplier,
			"model_weights":              snapshot.ModelWeights,
			"cooldown_hours":             snapshot.CooldownHours,
			"performance_window":         deps.Controller.WindowSize(),
		})
	}
}

func getRegime(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := strings.TrimPrefix(c.Param("symbol"), "/")

		if deps.RegimeCache != nil {
			if entry, ok := deps.RegimeCache.Get(c.Request.Context(), symbol); ok {
				c.JSON(http.StatusOK, entry)
				return
			}
		}
		if regime, ok := deps.Regimes.Last(symbol); ok {
			c.JSON(http.StatusOK, cache.RegimeEntry{Symbol: symbol, Regime: regime})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not evaluated yet"})
	}
}

// postPerformance feeds realized trade statistics back into the adaptive
// controller and the performance log.
func postPerformance(deps Deps, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var record models.PerformanceRecord
		if err := c.ShouldBindJSON(&record); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid performance record: " + err.Error()})
			return
		}
		if record.Timestamp.IsZero() {
			record.Timestamp = time.Now().UTC()
		}
		deps.Controller.Record(record)
		if deps.Store != nil {
			if err := deps.Store.SavePerformance(c.Request.Context(), &record); err != nil {
				// The controller already has the sample; persistence is
				// best-effort.
				logger.WithError(err).Warn("Failed to persist performance record")
			}
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "recorded", "window": deps.Controller.WindowSize()})
	}
}
