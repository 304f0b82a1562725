// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package priceengine

import (
	"context"
	"time"

	"github.com/luxfi/pricefanout/addr"
)

// DefaultAgentPriceCacheTTL is agentPriceCacheTTL from spec.md §4.4
// "Agent tokens".
const DefaultAgentPriceCacheTTL = 10 * time.Second

// agentPriceBySymbol resolves an agent token's USD price by the symbol
// recorded on a PoolBinding. Unknown symbols resolve to zero.
func (e *Engine) agentPriceBySymbol(ctx context.Context, symbol string, callStack []string) float64 {
	e.agentMu.Lock()
	entry, ok := e.agentBySymbol[symbol]
	e.agentMu.Unlock()
	if !ok {
		return 0
	}
	return e.agentPrice(ctx, entry, callStack)
}

// agentPrice implements spec.md §4.4 "Agent tokens" algorithm
// `agentPrice(addr, callStack)`:
//  1. If addr ∈ callStack, return 0 and log a cycle.
//  2. If cached and age < agentPriceCacheTTL, return cached.
//  3. Else, for each source compute pair-denominated price, convert to
//     USD recursively with callStack ⊕ addr, collect positives,
//     outlier-filter, arithmetic-mean; cache with timestamp.
func (e *Engine) agentPrice(ctx context.Context, entry *AgentTokenEntry, callStack []string) float64 {
	key := addr.Key(entry.TokenAddress)

	for _, seen := range callStack {
		if seen == key {
			e.log.Warn("agent price cycle detected, returning zero for this branch", "token", entry.TokenAddress, "symbol", entry.Symbol)
			if e.errors != nil {
				e.errors.RecordError("cyclic", "agent price cycle at "+entry.Symbol)
			}
			return 0
		}
	}

	e.agentMu.Lock()
	if !entry.timestamp.IsZero() && time.Since(entry.timestamp) < e.agentCacheTTL {
		cached := entry.priceUSD
		e.agentMu.Unlock()
		return cached
	}
	e.agentMu.Unlock()

	nextStack := append(append([]string{}, callStack...), key)

	bnbUSD := e.BNBUSD(ctx)

	var samples []float64
	for _, src := range entry.PriceSources {
		if src.Pool == nil || !src.Pool.HasLiquidity() {
			continue
		}
		priceInPair := PriceInPair(src.Pool, src.MonitoredIsToken0)
		if priceInPair <= 0 {
			continue
		}

		var usd float64
		switch {
		case src.Pair == PairWBNB:
			usd = priceInPair * bnbUSD
		case StablePairs[src.Pair]:
			usd = priceInPair
		case src.Pair == PairAgent:
			pairEntry, ok := e.agentEntries[addr.Key(src.PairAddress)]
			if !ok {
				continue
			}
			usd = priceInPair * e.agentPrice(ctx, pairEntry, nextStack)
		default:
			continue
		}
		if usd > 0 {
			samples = append(samples, usd)
		}
	}

	result := mean(RejectOutliers(samples))

	e.agentMu.Lock()
	entry.priceUSD = result
	entry.timestamp = time.Now()
	e.agentMu.Unlock()

	return result
}
