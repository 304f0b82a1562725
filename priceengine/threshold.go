// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package priceengine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/pricefanout/addr"
)

const (
	// DefaultPriceUpdateThreshold is priceUpdateThreshold from spec.md
	// §4.4 "Broadcast threshold".
	DefaultPriceUpdateThreshold = 0.001

	// DefaultCoalesceWindow is the 100 ms dedup window from spec.md
	// §4.4/§9 "Threshold coalescing".
	DefaultCoalesceWindow = 100 * time.Millisecond
)

// ShouldBroadcast implements spec.md §4.4 "Broadcast threshold":
// maintain lastPrice per token, broadcast iff the prior price was zero
// or the relative change meets priceUpdateThreshold. The cache is
// always updated regardless of the decision.
func (e *Engine) ShouldBroadcast(token common.Address, newPrice float64) bool {
	key := addr.Key(token)

	e.priceMu.Lock()
	defer e.priceMu.Unlock()

	old := e.lastPrice[key]
	e.lastPrice[key] = newPrice

	if old == 0 {
		return true
	}
	delta := (newPrice - old) / old
	if delta < 0 {
		delta = -delta
	}
	return delta >= e.threshold
}

// Coalesce implements spec.md §9 "Threshold coalescing": a dedup
// heuristic, not a correctness gate — if the last handlePriceUpdate
// call for this token was within the coalesce window, the caller
// should drop this call.
func (e *Engine) Coalesce(token common.Address) bool {
	key := addr.Key(token)
	now := time.Now()

	e.priceMu.Lock()
	defer e.priceMu.Unlock()

	last, ok := e.lastUpdateCall[key]
	e.lastUpdateCall[key] = now
	if ok && now.Sub(last) < e.coalesceWindow {
		return true
	}
	return false
}

// LastPrice returns the cached last price for token, or 0 if unknown.
func (e *Engine) LastPrice(token common.Address) float64 {
	key := addr.Key(token)
	e.priceMu.RLock()
	defer e.priceMu.RUnlock()
	return e.lastPrice[key]
}
