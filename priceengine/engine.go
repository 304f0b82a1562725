// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package priceengine

import (
	"context"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/pricefanout/addr"
)

// ErrorRecorder is the minimal sink Engine needs for the metrics error
// ring, per spec.md §4.9. Implemented by the metrics package; kept as
// an interface here to avoid a package-import cycle.
type ErrorRecorder interface {
	RecordError(kind, message string)
}

// Config carries the tunables Engine needs, per spec.md §4.4 and §6
// "Configuration". Zero values fall back to the spec's stated
// defaults.
type Config struct {
	BNBRefreshInterval  time.Duration
	AgentPriceCacheTTL  time.Duration
	PriceUpdateThreshold float64
	CoalesceWindow      time.Duration
}

func (c Config) withDefaults() Config {
	if c.BNBRefreshInterval <= 0 {
		c.BNBRefreshInterval = DefaultBNBRefreshInterval
	}
	if c.AgentPriceCacheTTL <= 0 {
		c.AgentPriceCacheTTL = DefaultAgentPriceCacheTTL
	}
	if c.PriceUpdateThreshold <= 0 {
		c.PriceUpdateThreshold = DefaultPriceUpdateThreshold
	}
	if c.CoalesceWindow <= 0 {
		c.CoalesceWindow = DefaultCoalesceWindow
	}
	return c
}

// Engine is the price computation core of spec.md §4.4: per-pool
// pricing, BNB reference, agent-token recursion, token-level
// aggregation, and broadcast-threshold gating.
type Engine struct {
	log    log.Logger
	errors ErrorRecorder

	bnbMu      sync.RWMutex
	bnbUSD     float64
	bnbUpdated time.Time
	bnbInterval time.Duration
	bnbPools   []ReferencePool

	agentMu       sync.Mutex
	agentEntries  map[string]*AgentTokenEntry // keyed by addr.Key
	agentBySymbol map[string]*AgentTokenEntry // keyed by symbol
	agentCacheTTL time.Duration

	priceMu        sync.RWMutex
	lastPrice      map[string]float64
	lastUpdateCall map[string]time.Time

	threshold      float64
	coalesceWindow time.Duration
}

// NewEngine constructs an Engine with the given reference pools, agent
// registry, and tunables.
func NewEngine(cfg Config, bnbPools []ReferencePool, agentEntries []*AgentTokenEntry, errors ErrorRecorder, logger log.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Root()
	}

	entries := make(map[string]*AgentTokenEntry, len(agentEntries))
	bySymbol := make(map[string]*AgentTokenEntry, len(agentEntries))
	for _, e := range agentEntries {
		entries[addr.Key(e.TokenAddress)] = e
		bySymbol[e.Symbol] = e
	}

	return &Engine{
		log:            logger,
		errors:         errors,
		bnbInterval:    cfg.BNBRefreshInterval,
		bnbPools:       bnbPools,
		agentEntries:   entries,
		agentBySymbol:  bySymbol,
		agentCacheTTL:  cfg.AgentPriceCacheTTL,
		lastPrice:      make(map[string]float64),
		lastUpdateCall: make(map[string]time.Time),
		threshold:      cfg.PriceUpdateThreshold,
		coalesceWindow: cfg.CoalesceWindow,
	}
}

// AggregateToken implements spec.md §4.4 "Token-level aggregation":
// per-pool USD prices, outlier rejection across the USD samples, then
// priority-weighted averages (weight = 1/priority) for both USD and
// BNB.
func (e *Engine) AggregateToken(ctx context.Context, binding *TokenBinding) TokenPrice {
	bnbUSD := e.BNBUSD(ctx)

	type sample struct {
		PriceSample
		usd float64
	}
	var samples []sample

	for i, pool := range binding.Pools {
		if !pool.HasLiquidity() {
			continue
		}
		if i >= len(binding.Config.Pools) {
			continue
		}
		pb := binding.Config.Pools[i]

		monitoredIsToken0 := pool.IsToken0(binding.TokenAddress)
		priceInPair := PriceInPair(pool, monitoredIsToken0)
		if priceInPair <= 0 {
			continue
		}

		priceUSD, priceBNB := e.convertPairToUSD(ctx, pb.Pair, pb.AgentSymbol, priceInPair, bnbUSD, nil)
		if priceUSD <= 0 {
			continue
		}

		samples = append(samples, sample{
			PriceSample: PriceSample{
				PriceUSD:    priceUSD,
				PriceBNB:    priceBNB,
				PoolAddress: pool.Address,
				Pair:        pb.Pair,
				Priority:    pb.Priority,
			},
			usd: priceUSD,
		})
	}

	usdValues := make([]float64, len(samples))
	for i, s := range samples {
		usdValues[i] = s.usd
	}
	retainedUSD := RejectOutliers(usdValues)
	retainedSet := make(map[float64]bool, len(retainedUSD))
	for _, v := range retainedUSD {
		retainedSet[v] = true
	}

	var surviving []PriceSample
	var weightedUSD, weightedBNB, totalWeight float64
	for _, s := range samples {
		if !retainedSet[s.usd] {
			continue
		}
		weight := 1.0
		if s.Priority > 0 {
			weight = 1.0 / float64(s.Priority)
		}
		weightedUSD += s.PriceUSD * weight
		weightedBNB += s.PriceBNB * weight
		totalWeight += weight
		surviving = append(surviving, s.PriceSample)
	}

	tp := TokenPrice{
		TokenAddress: binding.TokenAddress,
		Symbol:       binding.Config.Symbol,
		Name:         binding.Config.Name,
		Pools:        surviving,
		PoolCount:    len(surviving),
		Timestamp:    time.Now(),
	}
	if totalWeight > 0 {
		tp.PriceUSD = weightedUSD / totalWeight
		tp.PriceBNB = weightedBNB / totalWeight
	}
	return tp
}

// ConvertPairToUSD exposes the spec.md §4.4 "Pair→USD conversion" rule
// for callers outside aggregation, e.g. the coordinator's synchronous
// swap-event price lookup.
func (e *Engine) ConvertPairToUSD(ctx context.Context, pair Pair, agentSymbol string, priceInPair float64) (priceUSD, priceBNB float64) {
	return e.convertPairToUSD(ctx, pair, agentSymbol, priceInPair, e.BNBUSD(ctx), nil)
}

// convertPairToUSD implements spec.md §4.4 "Pair→USD conversion".
// callStack is threaded through only for the agent-token branch's
// cycle guard.
func (e *Engine) convertPairToUSD(ctx context.Context, pair Pair, agentSymbol string, priceInPair, bnbUSD float64, callStack []string) (priceUSD, priceBNB float64) {
	switch {
	case pair == PairWBNB:
		return priceInPair * bnbUSD, priceInPair
	case StablePairs[pair]:
		if bnbUSD <= 0 {
			return priceInPair, 0
		}
		return priceInPair, priceInPair / bnbUSD
	case pair == PairAgent:
		agentUSD := e.agentPriceBySymbol(ctx, agentSymbol, callStack)
		usd := priceInPair * agentUSD
		if bnbUSD <= 0 {
			return usd, 0
		}
		return usd, usd / bnbUSD
	default:
		return 0, 0
	}
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}
