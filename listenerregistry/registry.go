// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package listenerregistry tracks the live pool subscriptions backing
// each monitored token, per spec.md §4.5. Every allocation returns a
// teardown thunk that is the sole release path, per spec.md §9 "Scoped
// resource release".
package listenerregistry

import (
	"context"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/log"

	"github.com/luxfi/pricefanout/addr"
	"github.com/luxfi/pricefanout/pooldecoder"
	"github.com/luxfi/pricefanout/priceengine"
)

// ListenerHandle is one live subscription backing a token's pool, per
// spec.md §3. Teardown is the sole release path for whatever resources
// Subscribe allocated.
type ListenerHandle struct {
	Key      string // addr.ListenerKey(pool, token)
	Pool     common.Address
	Token    common.Address
	Teardown func()
}

// Subscriber is implemented by the coordinator: it knows how to attach
// a swap-log handler to a pool and return a teardown thunk.
type Subscriber interface {
	SubscribePool(ctx context.Context, pool common.Address, token common.Address) (teardown func(), err error)
}

// PoolLoader loads a pool's identity and live state for one binding
// entry. Supplied by the coordinator, which knows the pool's protocol
// family (V2/V3/alt) and holds the chain client.
type PoolLoader func(ctx context.Context, pb priceengine.PoolBinding, token common.Address) (*pooldecoder.Pool, error)

// Broadcaster is implemented by the fan-out layer.
type Broadcaster interface {
	BroadcastPriceUpdate(tp priceengine.TokenPrice)
}

// Registry is the spec.md §4.5 listener registry.
type Registry struct {
	log         log.Logger
	subscriber  Subscriber
	engine      *priceengine.Engine
	broadcaster Broadcaster

	mu       sync.Mutex
	bindings map[string]*priceengine.TokenBinding // keyed by addr.Key(token)
	handles  map[string]*ListenerHandle           // keyed by addr.ListenerKey(pool, token)
}

// New constructs a Registry.
func New(subscriber Subscriber, engine *priceengine.Engine, broadcaster Broadcaster, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.Root()
	}
	return &Registry{
		log:         logger,
		subscriber:  subscriber,
		engine:      engine,
		broadcaster: broadcaster,
		bindings:    make(map[string]*priceengine.TokenBinding),
		handles:     make(map[string]*ListenerHandle),
	}
}

// AddToken implements spec.md §4.5 "addToken(addr)": idempotent,
// refreshes BNB if stale, loads each pool, filters to those with
// liquidity and validated containment, computes the initial price,
// subscribes, stores handles, and broadcasts if non-zero.
func (r *Registry) AddToken(ctx context.Context, token common.Address, config priceengine.TokenConfig, load PoolLoader) (*priceengine.TokenPrice, error) {
	key := addr.Key(token)

	r.mu.Lock()
	if existing, ok := r.bindings[key]; ok {
		r.mu.Unlock()
		tp := r.engine.AggregateToken(ctx, existing)
		return &tp, nil
	}
	r.mu.Unlock()

	r.engine.BNBUSD(ctx) // lazily refreshes if stale

	binding := &priceengine.TokenBinding{TokenAddress: token, Config: config}

	var validPools []priceengine.PoolBinding
	for _, pb := range config.Pools {
		pool, err := load(ctx, pb, token)
		if err != nil {
			r.log.Warn("listenerregistry: pool load failed, skipping", "pool", pb.PoolAddress, "token", token, "err", err)
			continue
		}
		if pool == nil || !pool.HasLiquidity() || !pool.Contains(token) {
			continue
		}
		binding.Pools = append(binding.Pools, pool)
		validPools = append(validPools, pb)
	}
	binding.Config.Pools = validPools

	if len(binding.Pools) == 0 {
		r.log.Warn("listenerregistry: no live pools for token, refusing to add", "token", token)
		return nil, nil
	}

	for _, pb := range validPools {
		teardown, err := r.subscriber.SubscribePool(ctx, pb.PoolAddress, token)
		if err != nil {
			r.log.Error("listenerregistry: subscribe failed", "pool", pb.PoolAddress, "err", err)
			continue
		}
		handleKey := addr.ListenerKey(pb.PoolAddress, token)
		r.sweepDuplicates(handleKey)
		r.mu.Lock()
		r.handles[handleKey] = &ListenerHandle{Key: handleKey, Pool: pb.PoolAddress, Token: token, Teardown: teardown}
		r.mu.Unlock()
	}

	tp := r.engine.AggregateToken(ctx, binding)
	binding.LastPrice = tp.PriceUSD
	binding.LastUpdateCall = time.Now()

	r.mu.Lock()
	r.bindings[key] = binding
	r.mu.Unlock()

	if tp.PriceUSD != 0 && r.broadcaster != nil {
		r.broadcaster.BroadcastPriceUpdate(tp)
	}
	return &tp, nil
}

// AddDynamicToken implements spec.md §4.5 "addDynamicToken(input)": the
// same flow as AddToken, with isDynamic recorded so RemoveToken's
// callers know this binding came from the dynamic REST path rather
// than static configuration.
func (r *Registry) AddDynamicToken(ctx context.Context, token common.Address, config priceengine.TokenConfig, load PoolLoader) (*priceengine.TokenPrice, error) {
	tp, err := r.AddToken(ctx, token, config, load)
	if err != nil || tp == nil {
		return tp, err
	}
	r.mu.Lock()
	if b, ok := r.bindings[addr.Key(token)]; ok {
		b.IsDynamic = true
	}
	r.mu.Unlock()
	return tp, nil
}

// RemoveToken implements spec.md §4.5 "removeToken(addr)": tears down
// every handle whose pool|token key ends with lower(addr) and drops the
// binding. The price cache is not held here; the coordinator evicts its
// own cache entry when it removes a token.
func (r *Registry) RemoveToken(token common.Address) bool {
	key := addr.Key(token)
	suffix := "|" + key

	r.mu.Lock()
	_, existed := r.bindings[key]
	delete(r.bindings, key)

	var toTeardown []*ListenerHandle
	for k, h := range r.handles {
		if strings.HasSuffix(k, suffix) {
			toTeardown = append(toTeardown, h)
			delete(r.handles, k)
		}
	}
	r.mu.Unlock()

	for _, h := range toTeardown {
		h.Teardown()
	}
	return existed
}

// OnReconnect implements spec.md §4.5 "onReconnect()": re-invokes
// addToken semantics for each stored binding without recomputing its
// config.
func (r *Registry) OnReconnect(ctx context.Context, load PoolLoader) {
	r.mu.Lock()
	bindings := make([]*priceengine.TokenBinding, 0, len(r.bindings))
	for _, b := range r.bindings {
		bindings = append(bindings, b)
	}
	r.mu.Unlock()

	for _, b := range bindings {
		r.RemoveToken(b.TokenAddress)
		if _, err := r.AddToken(ctx, b.TokenAddress, b.Config, load); err != nil {
			r.log.Error("listenerregistry: reconnect re-add failed", "token", b.TokenAddress, "err", err)
		}
	}
}

// sweepDuplicates implements spec.md §4.5's duplicate-listener guard:
// before adding a listener, sweep the map for any entry whose key
// lower-cases to the same value and tear it down, protecting against
// case-inconsistent keys from earlier insertions.
func (r *Registry) sweepDuplicates(handleKey string) {
	want := addr.KeyString(handleKey)

	r.mu.Lock()
	var stale []*ListenerHandle
	for k, h := range r.handles {
		if k != handleKey && addr.KeyString(k) == want {
			stale = append(stale, h)
			delete(r.handles, k)
		}
	}
	r.mu.Unlock()

	for _, h := range stale {
		r.log.Warn("listenerregistry: tearing down case-inconsistent duplicate listener", "key", h.Key)
		h.Teardown()
	}
}

// HandleCount returns the number of live listener handles, for
// metrics/tests.
func (r *Registry) HandleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Binding returns the stored binding for a token, if any.
func (r *Registry) Binding(token common.Address) (*priceengine.TokenBinding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[addr.Key(token)]
	return b, ok
}

// MonitoredTokens returns the addresses of every currently bound token.
func (r *Registry) MonitoredTokens() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]common.Address, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b.TokenAddress)
	}
	return out
}

// ActivePools returns the distinct set of pool addresses with at least
// one live handle. Several tokens can share a pool (e.g. both sides of
// a pair independently monitored), so the handle map's keys can repeat
// a pool address — this collapses them.
func (r *Registry) ActivePools() mapset.Set[common.Address] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := mapset.NewThreadUnsafeSet[common.Address]()
	for _, h := range r.handles {
		out.Add(h.Pool)
	}
	return out
}
