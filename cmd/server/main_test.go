package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantfold/signalforge/internal/engine"
)

func TestBuildPeerMap(t *testing.T) {
	symbols := []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}
	peers := []string{"BTC/USDT", "ETH/USDT"}

	out := buildPeerMap(symbols, peers)

	assert.Equal(t, []string{"ETH/USDT"}, out["BTC/USDT"])
	assert.Equal(t, []string{"BTC/USDT"}, out["ETH/USDT"])
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, out["SOL/USDT"])
}

func TestBuildPeerMapEmpty(t *testing.T) {
	assert.Nil(t, buildPeerMap([]string{"BTC/USDT"}, nil))
}

func TestRepositorySinkIsDecisionSink(t *testing.T) {
	var _ engine.DecisionSink = (*repositorySink)(nil)
}
