package adaptive

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/models"
)

// Optimization thresholds. Every rule is one-directional and bounded by the
// caps in parameters.go.
const (
	maxWindowSize = 30
	lookback      = 7 * 24 * time.Hour

	lowWinRate   = 0.45
	highWinRate  = 0.65
	lowSharpe    = 0.8
	highDrawdown = 0.15

	atrStopStep     = 0.2
	modelWeightStep = 0.1
)

// Controller ingests rolling trade performance and retunes the shared
// parameter set. Record is called by the external trade-outcome tracker;
// Optimize is invoked once per scheduling period.
type Controller struct {
	mu     sync.Mutex
	window []models.PerformanceRecord
	params *ParameterSet
	logger *logrus.Logger
}

// NewController creates a controller bound to the shared parameter set.
func NewController(params *ParameterSet, logger *logrus.Logger) *Controller {
	return &Controller{
		params: params,
		logger: logger,
	}
}

// Record appends a performance sample, evicting the oldest entry once the
// window holds 30.
func (c *Controller) Record(rec models.PerformanceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = append(c.window, rec)
	if len(c.window) > maxWindowSize {
		c.window = c.window[len(c.window)-maxWindowSize:]
	}
}

// WindowSize returns the number of retained samples.
func (c *Controller) WindowSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.window)
}

// Optimize applies the feedback rules to the parameter set. It is a no-op
// on an empty window or when no sample falls inside the 7-day lookback.
func (c *Controller) Optimize() {
	c.mu.Lock()
	recent := c.recentLocked(time.Now())
	c.mu.Unlock()

	if len(recent) == 0 {
		return
	}

	var winRateSum, sharpeSum, worstDrawdown float64
	for _, rec := range recent {
		winRateSum += rec.WinRate
		sharpeSum += rec.SharpeRatio
		if rec.MaxDrawdown > worstDrawdown {
			worstDrawdown = rec.MaxDrawdown
		}
	}
	meanWinRate := winRateSum / float64(len(recent))
	meanSharpe := sharpeSum / float64(len(recent))

	c.params.mu.Lock()
	defer c.params.mu.Unlock()

	if meanWinRate < lowWinRate {
		c.params.adjustConfirmationThreshold(1)
	} else if meanWinRate > highWinRate {
		c.params.adjustConfirmationThreshold(-1)
	}

	if meanSharpe < lowSharpe {
		c.params.adjustATRStopMultiplier(atrStopStep)
	}

	if worstDrawdown > highDrawdown {
		c.params.reduceModelWeights(modelWeightStep)
	}

	c.logger.WithFields(logrus.Fields{
		"samples":                len(recent),
		"mean_win_rate":          meanWinRate,
		"mean_sharpe":            meanSharpe,
		"worst_drawdown":         worstDrawdown,
		"confirmation_threshold": c.params.confirmationThreshold,
		"atr_stop_multiplier":    c.params.atrStopMultiplier,
	}).Info("Adaptive parameters optimized")
}

func (c *Controller) recentLocked(now time.Time) []models.PerformanceRecord {
	cutoff := now.Add(-lookback)
	recent := make([]models.PerformanceRecord, 0, len(c.window))
	for _, rec := range c.window {
		if rec.Timestamp.After(cutoff) {
			recent = append(recent, rec)
		}
	}
	return recent
}
