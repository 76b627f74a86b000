// Package regime classifies a symbol's market state from its primary
// timeframe candles. The classification drives which signal models are
// allowed to contribute in the same cycle, so it runs first.
package regime

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/indicators"
	"github.com/quantfold/signalforge/internal/models"
)

const (
	// minCandles is the warm-up requirement on the primary timeframe.
	// Below it the classifier returns RANGE, the safe default.
	minCandles = 50

	// A steady climb ending ~4% above the 50-period EMA runs only ~1.5%
	// past the faster 20-period one, so the short-MA check is a same-side
	// confirmation, not a second distance hurdle.
	strongTrendShortDev = 0.015
	strongTrendLongDev  = 0.03
	weakTrendLongDev    = 0.015

	squeezeATRRatio   = 1.2
	expansionATRRatio = 1.5
)

// Classifier computes the regime for one symbol per cycle and remembers
// the most recent result per symbol.
type Classifier struct {
	primary models.Timeframe
	logger  *logrus.Logger

	mu   sync.RWMutex
	last map[string]models.Regime
}

// NewClassifier creates a classifier reading candles from the given
// primary timeframe.
func NewClassifier(primary models.Timeframe, logger *logrus.Logger) *Classifier {
	return &Classifier{
		primary: primary,
		logger:  logger,
		last:    make(map[string]models.Regime),
	}
}

// Classify returns the regime for the view's symbol. Checks run in a fixed
// priority order: strong trend, weak trend, squeeze, volatility expansion,
// then RANGE as the fallthrough. Trend is checked before the volatility
// states so a clean directional move with steady ATR reads as a trend
// rather than a squeeze.
func (c *Classifier) Classify(view *models.MarketView) models.Regime {
	regime := c.classify(view)

	c.mu.Lock()
	c.last[view.Symbol] = regime
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"symbol": view.Symbol,
		"regime": regime,
	}).Debug("Market regime classified")

	return regime
}

// Last returns the most recently classified regime for a symbol, if any.
func (c *Classifier) Last(symbol string) (models.Regime, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	regime, ok := c.last[symbol]
	return regime, ok
}

func (c *Classifier) classify(view *models.MarketView) models.Regime {
	frame := view.Frame(c.primary)
	if len(frame) < minCandles {
		return models.RegimeRange
	}
	closes := view.Closes(c.primary)
	price := closes[len(closes)-1]
	if price == 0 {
		return models.RegimeRange
	}

	ema20 := indicators.Last(indicators.EMA(closes, 20))
	ema50 := indicators.Last(indicators.EMA(closes, 50))
	if ema20 == 0 || ema50 == 0 {
		return models.RegimeRange
	}

	dev20 := (price - ema20) / ema20
	dev50 := (price - ema50) / ema50

	// Both deviations on the same side and past their thresholds.
	sameSide := (dev20 > 0) == (dev50 > 0)
	if sameSide && math.Abs(dev20) > strongTrendShortDev && math.Abs(dev50) > strongTrendLongDev {
		return models.RegimeStrongTrend
	}
	if math.Abs(dev50) >= weakTrendLongDev && math.Abs(dev50) < strongTrendLongDev {
		return models.RegimeWeakTrend
	}

	atrSeries := indicators.ATR(frame)
	if len(atrSeries) > 0 {
		currentATR := indicators.Last(atrSeries)
		minATR := indicators.Lowest(atrSeries, minCandles)
		if minATR > 0 && currentATR <= minATR*squeezeATRRatio {
			return models.RegimeSqueeze
		}
		if len(atrSeries) >= 20 {
			recent := indicators.Mean(atrSeries, 5)
			prior := indicators.Mean(atrSeries[:len(atrSeries)-5], 15)
			if prior > 0 && recent > prior*expansionATRRatio {
				return models.RegimeVolExpansion
			}
		}
	}

	return models.RegimeRange
}
