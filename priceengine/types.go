// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package priceengine computes token prices from pool reserve/sqrtPrice
// state, converts them to USD through a BNB reference and recursive
// agent-token dependencies, and aggregates across a token's pools with
// outlier rejection and priority weighting, per spec.md §4.4.
package priceengine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/pricefanout/pooldecoder"
)

// Pair identifies the numeraire asset a pool prices its monitored token
// against, per spec.md §3 "TokenBinding".
type Pair string

const (
	PairWBNB  Pair = "WBNB"
	PairUSDT  Pair = "USDT"
	PairUSDC  Pair = "USDC"
	PairBUSD  Pair = "BUSD"
	PairDAI   Pair = "DAI"
	PairAgent Pair = "AGENT"
)

// StablePairs is the set of USD-pegged stable pairs, per spec.md §4.4
// "Pair→USD conversion".
var StablePairs = map[Pair]bool{
	PairUSDT: true,
	PairUSDC: true,
	PairBUSD: true,
	PairDAI:  true,
}

// PoolBinding is one entry in a TokenBinding's pool list, per spec.md §3.
type PoolBinding struct {
	PoolAddress common.Address
	Pair        Pair
	AgentSymbol string // set when Pair == PairAgent
	Priority    int
	FeeTier     uint32 // V3 only
	PoolType    pooldecoder.Type
}

// TokenConfig carries the static, non-price attributes of a monitored
// token, per spec.md §3 "TokenBinding.config".
type TokenConfig struct {
	Symbol          string
	Name            string
	FallbackDecimals uint8
	Pools           []PoolBinding
}

// TokenBinding is the live registration of a monitored token, per
// spec.md §3.
type TokenBinding struct {
	TokenAddress   common.Address
	Config         TokenConfig
	Pools          []*pooldecoder.Pool
	LastPrice      float64
	LastUpdateCall time.Time
	IsDynamic      bool
}

// PriceSource describes one contributor to an agent token's price, per
// spec.md §3 "AgentTokenEntry". Pool is the live pool backing this
// source; MonitoredIsToken0 tells PriceInPair which side the agent
// token occupies.
type PriceSource struct {
	Pool              *pooldecoder.Pool
	MonitoredIsToken0 bool
	Pair              Pair
	PairAddress       common.Address // set when Pair == PairAgent
}

// AgentTokenEntry is a registered agent token and its cached price, per
// spec.md §3. priceUSD/timestamp are guarded by Engine's agent-cache
// lock, not by AgentTokenEntry itself — see agent.go.
type AgentTokenEntry struct {
	Symbol       string
	TokenAddress common.Address
	PriceSources []PriceSource
	priceUSD     float64
	timestamp    time.Time
}

// PriceSample is one pool's contribution to a token's aggregate price,
// per spec.md §3.
type PriceSample struct {
	PriceUSD    float64
	PriceBNB    float64
	PoolAddress common.Address
	Description string
	Pair        Pair
	Priority    int
}

// TokenPrice is the cached, externally-published output, per spec.md §3.
type TokenPrice struct {
	TokenAddress common.Address
	Symbol       string
	Name         string
	PriceUSD     float64
	PriceBNB     float64
	PoolCount    int
	Pools        []PriceSample
	Timestamp    time.Time
}
