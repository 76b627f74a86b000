// Package indicators wraps cinar/indicator/v2 with slice-in/slice-out
// helpers over candle data. All functions are pure and deterministic; when
// the input is shorter than the indicator's warm-up window they return nil
// rather than failing. Outputs are trailing-aligned: result[len-1] always
// describes the most recent bar.
package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/cinar/indicator/v2/volume"

	"github.com/quantfold/signalforge/internal/models"
)

// SMA computes a simple moving average.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	return helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
}

// EMA computes an exponential moving average.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	return helper.ChanToSlice(ema.Compute(helper.SliceToChan(values)))
}

// RSI computes the relative strength index.
func RSI(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period+1 {
		return nil
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return helper.ChanToSlice(rsi.Compute(helper.SliceToChan(values)))
}

// MACD computes the MACD line and its signal line.
func MACD(values []float64, fast, slow, signal int) ([]float64, []float64) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(values) < slow+signal {
		return nil, nil
	}
	macd := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdLine, signalLine := macd.Compute(helper.SliceToChan(values))
	return helper.ChanToSlice(macdLine), helper.ChanToSlice(signalLine)
}

// Bollinger computes middle/upper/lower bands for the given period and
// standard-deviation multiple. The band math on top of the SMA is
// hand-rolled because the library's band type does not expose a
// configurable deviation multiple over slices.
func Bollinger(values []float64, period int, stdDev float64) (middle, upper, lower []float64) {
	sma := SMA(values, period)
	if sma == nil {
		return nil, nil, nil
	}
	upper = make([]float64, len(sma))
	lower = make([]float64, len(sma))
	for i := range sma {
		window := values[i : i+period]
		sd := stdDevOf(window, sma[i])
		upper[i] = sma[i] + stdDev*sd
		lower[i] = sma[i] - stdDev*sd
	}
	return sma, upper, lower
}

// ATR computes the average true range from candle data using the library's
// default smoothing period.
func ATR(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	atr := volatility.NewAtr[float64]()
	return helper.ChanToSlice(atr.Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	))
}

// OBV computes on-balance volume from closes and volumes.
func OBV(closes, volumes []float64) []float64 {
	if len(closes) < 2 || len(closes) != len(volumes) {
		return nil
	}
	obv := volume.NewObv[float64]()
	return helper.ChanToSlice(obv.Compute(
		helper.SliceToChan(closes),
		helper.SliceToChan(volumes),
	))
}

// TrendStrength measures directional persistence of the last period closes
// as a normalized regression slope weighted by fit quality. The result is
// in [-1,1]: +1 is a perfectly clean ascent, -1 a clean descent, 0 noise.
func TrendStrength(closes []float64, period int) float64 {
	if period < 2 || len(closes) < period {
		return 0
	}
	window := closes[len(closes)-period:]
	n := float64(period)

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range window {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	meanY := sumY / n
	if meanY == 0 {
		return 0
	}

	// R^2 of the fit dampens strength when price is noisy around the line.
	var ssTot, ssRes float64
	intercept := meanY - slope*(sumX/n)
	for i, y := range window {
		fit := intercept + slope*float64(i)
		ssTot += (y - meanY) * (y - meanY)
		ssRes += (y - fit) * (y - fit)
	}
	r2 := 1.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	if r2 < 0 {
		r2 = 0
	}

	// Normalize slope to percent-per-bar and saturate at 0.5%/bar.
	pctPerBar := slope / meanY
	normalized := pctPerBar / 0.005
	if normalized > 1 {
		normalized = 1
	}
	if normalized < -1 {
		normalized = -1
	}
	return normalized * r2
}

// Last returns the final value of a series, or 0 when empty.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// Mean averages the last n values (or all of them when n exceeds length).
func Mean(values []float64, n int) float64 {
	if len(values) == 0 || n <= 0 {
		return 0
	}
	if n > len(values) {
		n = len(values)
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// Lowest returns the minimum of the last n values.
func Lowest(values []float64, n int) float64 {
	if len(values) == 0 || n <= 0 {
		return 0
	}
	if n > len(values) {
		n = len(values)
	}
	low := values[len(values)-n]
	for _, v := range values[len(values)-n:] {
		if v < low {
			low = v
		}
	}
	return low
}

// Highest returns the maximum of the last n values.
func Highest(values []float64, n int) float64 {
	if len(values) == 0 || n <= 0 {
		return 0
	}
	if n > len(values) {
		n = len(values)
	}
	high := values[len(values)-n]
	for _, v := range values[len(values)-n:] {
		if v > high {
			high = v
		}
	}
	return high
}

func stdDevOf(window []float64, mean float64) float64 {
	if len(window) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range window {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(window))
	return math.Sqrt(variance)
}
