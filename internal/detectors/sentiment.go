package detectors

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/quantfold/signalforge/internal/adaptive"
	"github.com/quantfold/signalforge/internal/indicators"
	"github.com/quantfold/signalforge/internal/models"
)

const (
	sentimentLookback   = 40
	divergenceWindow    = 14
	rsiPeriod           = 14
	oversoldThreshold   = 35.0
	overboughtThreshold = 65.0
)

// SentimentDivergence fades crowd extremes: RSI pinned in oversold or
// overbought territory while price momentum and RSI momentum disagree. A
// lower price low with a higher RSI low is a bullish divergence, the
// mirror image bearish. RSI stands in for positioning sentiment since the
// core sees only candles.
type SentimentDivergence struct {
	primary models.Timeframe
	logger  *logrus.Logger
}

func NewSentimentDivergence(primary models.Timeframe, logger *logrus.Logger) *SentimentDivergence {
	return &SentimentDivergence{primary: primary, logger: logger}
}

func (d *SentimentDivergence) ID() string { return ModelSentimentDivergence }

func (d *SentimentDivergence) Category() models.SignalCategory { return models.CategorySentiment }

func (d *SentimentDivergence) AllowedIn(r models.Regime) bool { return allowedIn(d.ID(), r) }

func (d *SentimentDivergence) Detect(_ context.Context, view *models.MarketView, _ adaptive.Snapshot) (*models.CandidateSignal, error) {
	closes := view.Closes(d.primary)
	if len(closes) < sentimentLookback {
		return nil, nil
	}
	rsiSeries := indicators.RSI(closes, rsiPeriod)
	if len(rsiSeries) < divergenceWindow {
		return nil, nil
	}

	rsi := indicators.Last(rsiSeries)
	priceNow := indicators.Last(closes)
	priceThen := closes[len(closes)-divergenceWindow]
	rsiThen := rsiSeries[len(rsiSeries)-divergenceWindow]
	if priceThen == 0 {
		return nil, nil
	}
	priceChange := (priceNow - priceThen) / priceThen
	rsiChange := rsi - rsiThen

	var direction models.Direction
	var extremity float64
	switch {
	case rsi <= oversoldThreshold && priceChange < 0 && rsiChange > 0:
		direction = models.DirectionLong
		extremity = (oversoldThreshold - rsi) / oversoldThreshold
	case rsi >= overboughtThreshold && priceChange > 0 && rsiChange < 0:
		direction = models.DirectionShort
		extremity = (rsi - overboughtThreshold) / (100 - overboughtThreshold)
	default:
		return nil, nil
	}

	divergence := math.Min(1, math.Abs(rsiChange)/15)
	scores := map[models.SignalCategory]float64{
		models.CategorySentiment: 2.0 * math.Min(1, 0.5+extremity),
		models.CategoryMomentum:  2.5 * divergence,
	}

	confidence := 0.3 + 0.3*extremity + 0.2*divergence
	kind := "bullish"
	if direction == models.DirectionShort {
		kind = "bearish"
	}
	return newCandidate(view, d.primary, d.ID(), d.Category(), direction, scores, confidence,
		fmt.Sprintf("%s divergence: price %+.2f%% over %d bars while RSI moved %+.1f to %.1f",
			kind, priceChange*100, divergenceWindow, rsiChange, rsi),
		map[string]interface{}{"rsi": rsi, "price_change": priceChange, "rsi_change": rsiChange},
	), nil
}
