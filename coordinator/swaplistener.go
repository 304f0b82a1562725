// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/pricefanout/addr"
	"github.com/luxfi/pricefanout/pooldecoder"
	"github.com/luxfi/pricefanout/priceengine"
)

// SwapListener is a single pool subscription raised independently of
// price aggregation, per spec.md §6 "startSwapListener": a mempool/
// swap-event watch scoped to one (tokenAddress, poolAddress) pair, with
// an optional userAddress filter applied in the mempool tracker.
type SwapListener struct {
	TokenAddress common.Address
	PoolAddress  common.Address
	Protocol     string
	PairType     string
	UserAddress  common.Address

	teardown func()
}

// protocolToPoolType maps the spec.md §6 protocol tag to the pool
// family pooldecoder understands, per spec.md §9 "dynamic dispatch
// over a closed set."
func protocolToPoolType(protocol string) (pooldecoder.Type, bool) {
	switch protocol {
	case "uniswapv2":
		return pooldecoder.TypeV2, true
	case "aerodromev2":
		return pooldecoder.TypeV2Alt, true
	case "uniswapv3":
		return pooldecoder.TypeV3, true
	case "aerodromev3", "slipstream":
		return pooldecoder.TypeV3Alt, true
	default:
		return pooldecoder.TypeUnknown, false
	}
}

// StartSwapListener implements spec.md §6's `startSwapListener` REST
// operation: loads and subscribes a single pool outside of any
// TokenConfig, optionally scoping mempool matches to userAddress.
func (c *Coordinator) StartSwapListener(ctx context.Context, tokenAddress, poolAddress common.Address, protocol, pairType string, userAddress common.Address) (*SwapListener, error) {
	poolType, ok := protocolToPoolType(protocol)
	if !ok {
		return nil, fmt.Errorf("coordinator: unknown protocol %q", protocol)
	}

	key := addr.Key(tokenAddress)
	c.mu.Lock()
	if existing, ok := c.swapListeners[key]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.mu.Unlock()

	pb := priceengine.PoolBinding{PoolAddress: poolAddress, PoolType: poolType}
	pool, err := c.loadPool(ctx, pb, tokenAddress)
	if err != nil {
		return nil, err
	}
	if !pool.Contains(tokenAddress) {
		return nil, fmt.Errorf("coordinator: pool %s does not contain token %s", poolAddress, tokenAddress)
	}

	teardown, err := c.SubscribePool(ctx, poolAddress, tokenAddress)
	if err != nil {
		return nil, err
	}

	listener := &SwapListener{
		TokenAddress: tokenAddress,
		PoolAddress:  poolAddress,
		Protocol:     protocol,
		PairType:     pairType,
		UserAddress:  userAddress,
		teardown:     teardown,
	}

	c.mu.Lock()
	c.swapListeners[key] = listener
	c.mu.Unlock()
	return listener, nil
}

// StopSwapListener implements spec.md §6's `stopSwapListener`.
func (c *Coordinator) StopSwapListener(tokenAddress common.Address) bool {
	key := addr.Key(tokenAddress)

	c.mu.Lock()
	listener, ok := c.swapListeners[key]
	if ok {
		delete(c.swapListeners, key)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	listener.teardown()
	c.mempool.RemoveForToken(tokenAddress)
	return true
}

// GetSwapListener implements spec.md §6's `getSwapListener`.
func (c *Coordinator) GetSwapListener(tokenAddress common.Address) (*SwapListener, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.swapListeners[addr.Key(tokenAddress)]
	return l, ok
}

// GetActiveSwapListeners implements spec.md §6's `getActiveSwapListeners`.
func (c *Coordinator) GetActiveSwapListeners() []*SwapListener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*SwapListener, 0, len(c.swapListeners))
	for _, l := range c.swapListeners {
		out = append(out, l)
	}
	return out
}
