// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package pooldecoder

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/luxfi/log"

	"github.com/luxfi/pricefanout/addr"
)

// DefaultDecimals is used whenever decimals() cannot be read, per
// spec.md §4.2 "Decimals resolution".
const DefaultDecimals uint8 = 18

// DecimalsResolver caches per-address token decimals, short-circuiting
// on a static table of known-stable addresses before falling back to an
// on-chain decimals() call, per spec.md §4.2.
type DecimalsResolver struct {
	caller Caller
	known  map[string]uint8
	cache  *lru.Cache
	log    log.Logger
}

// NewDecimalsResolver builds a resolver. known maps normalized
// (addr.Key) addresses to a fixed decimals value that never requires an
// RPC round trip (e.g. the wrapped native asset, major stables).
func NewDecimalsResolver(caller Caller, known map[string]uint8, cacheSize int) *DecimalsResolver {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	c, _ := lru.New(cacheSize)
	return &DecimalsResolver{
		caller: caller,
		known:  known,
		cache:  c,
		log:    log.Root(),
	}
}

// Resolve returns the decimals for token, consulting the known table,
// then the cache, then the chain; on any on-chain failure it logs a
// warning and returns DefaultDecimals, never an error, matching the
// "skip this pool" vs. "degrade this field" split in spec.md §7.
func (d *DecimalsResolver) Resolve(ctx context.Context, token common.Address) uint8 {
	key := addr.Key(token)

	if dec, ok := d.known[key]; ok {
		return dec
	}
	if v, ok := d.cache.Get(key); ok {
		return v.(uint8)
	}

	out, err := callAndUnpack1(ctx, d.caller, abiDecimals, "decimals", token)
	if err != nil {
		d.log.Warn("decimals() call failed, using default", "token", key, "default", DefaultDecimals, "err", err)
		return DefaultDecimals
	}
	vals, err := abiDecimals.Unpack("decimals", out)
	if err != nil || len(vals) == 0 {
		d.log.Warn("decimals() unpack failed, using default", "token", key, "default", DefaultDecimals, "err", err)
		return DefaultDecimals
	}
	dec := vals[0].(uint8)
	d.cache.Add(key, dec)
	return dec
}
