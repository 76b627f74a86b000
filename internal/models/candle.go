package models

import (
	"time"
)

// Timeframe identifies a candle interval.
type Timeframe string

const (
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Candle represents one OHLCV bar. Candles are immutable once produced and
// ordered ascending by open time.
type Candle struct {
	Symbol    string    `json:"symbol"`
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

// MarketView is one symbol's multi-timeframe candle data for a single
// evaluation cycle. Frame lengths are independent per timeframe. Peers holds
// primary-timeframe candles for correlated symbols, used by the cross-symbol
// model only.
type MarketView struct {
	Symbol string                 `json:"symbol"`
	Frames map[Timeframe][]Candle `json:"frames"`
	Peers  map[string][]Candle    `json:"peers,omitempty"`
}

// Frame returns the candle sequence for a timeframe, or nil when absent.
func (v *MarketView) Frame(tf Timeframe) []Candle {
	if v == nil || v.Frames == nil {
		return nil
	}
	return v.Frames[tf]
}

// Closes extracts close prices for a timeframe in candle order.
func (v *MarketView) Closes(tf Timeframe) []float64 {
	frame := v.Frame(tf)
	if len(frame) == 0 {
		return nil
	}
	closes := make([]float64, len(frame))
	for i, c := range frame {
		closes[i] = c.Close
	}
	return closes
}

// Volumes extracts volumes for a timeframe in candle order.
func (v *MarketView) Volumes(tf Timeframe) []float64 {
	frame := v.Frame(tf)
	if len(frame) == 0 {
		return nil
	}
	volumes := make([]float64, len(frame))
	for i, c := range frame {
		volumes[i] = c.Volume
	}
	return volumes
}

// LastClose returns the most recent close on a timeframe and whether the
// frame had any candles at all.
func (v *MarketView) LastClose(tf Timeframe) (float64, bool) {
	frame := v.Frame(tf)
	if len(frame) == 0 {
		return 0, false
	}
	return frame[len(frame)-1].Close, true
}
