// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package priceengine

import (
	"context"
	"time"

	"github.com/luxfi/pricefanout/pooldecoder"
)

const (
	// DefaultBNBRefreshInterval is updateBnbPriceInterval from spec.md
	// §4.4 "BNB/USD reference".
	DefaultBNBRefreshInterval = 60 * time.Second

	// DefaultBNBColdStart is used only before the first successful
	// refresh; spec.md §4.4 permits "a configured default on cold start".
	DefaultBNBColdStart = 600.0
)

// ReferencePool is one configured BNB/USD source pool, per spec.md §4.4
// "BNB/USD reference. Computed from a configured list of reference V3
// pools."
type ReferencePool struct {
	Pool           *pooldecoder.Pool
	StableIsToken0 bool
}

// SetBNBPools replaces the configured reference pool set. The
// coordinator calls this with freshly reloaded pool state right before
// each RefreshBNB tick, keeping the chain-client RPC concern out of
// priceengine.
func (e *Engine) SetBNBPools(pools []ReferencePool) {
	e.bnbMu.Lock()
	e.bnbPools = pools
	e.bnbMu.Unlock()
}

// BNBUSD returns the current BNB/USD reference, refreshing it first if
// stale.
func (e *Engine) BNBUSD(ctx context.Context) float64 {
	e.bnbMu.RLock()
	stale := time.Since(e.bnbUpdated) >= e.bnbInterval
	current := e.bnbUSD
	e.bnbMu.RUnlock()

	if stale {
		e.RefreshBNB(ctx)
		e.bnbMu.RLock()
		current = e.bnbUSD
		e.bnbMu.RUnlock()
	}
	return current
}

// RefreshBNB recomputes the BNB/USD reference from the configured
// reference pools, per spec.md §4.4: derive each source's price as in
// the V3 rule (inverting when the stable is token0), outlier-reject
// across sources, then arithmetic mean. On total failure the prior
// value is retained.
func (e *Engine) RefreshBNB(_ context.Context) {
	e.bnbMu.RLock()
	pools := e.bnbPools
	e.bnbMu.RUnlock()

	if len(pools) == 0 {
		e.bnbMu.Lock()
		if e.bnbUSD == 0 {
			e.bnbUSD = DefaultBNBColdStart
		}
		e.bnbUpdated = time.Now()
		e.bnbMu.Unlock()
		return
	}

	var samples []float64
	for _, rp := range pools {
		p := PriceInPairV3(rp.Pool, !rp.StableIsToken0)
		if p <= 0 {
			continue
		}
		samples = append(samples, p)
	}

	e.bnbMu.Lock()
	defer e.bnbMu.Unlock()

	if len(samples) == 0 {
		e.log.Warn("bnb reference refresh found no usable sources, retaining prior value", "prior", e.bnbUSD)
		if e.bnbUSD == 0 {
			e.bnbUSD = DefaultBNBColdStart
		}
		e.bnbUpdated = time.Now()
		return
	}

	retained := RejectOutliers(samples)
	e.bnbUSD = mean(retained)
	e.bnbUpdated = time.Now()
}
