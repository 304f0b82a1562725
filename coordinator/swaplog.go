// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/luxfi/pricefanout/addr"
	"github.com/luxfi/pricefanout/fanout"
	"github.com/luxfi/pricefanout/metrics"
	"github.com/luxfi/pricefanout/pooldecoder"
	"github.com/luxfi/pricefanout/priceengine"
	"github.com/luxfi/pricefanout/swapclassifier"
)

// handleSwapLog implements spec.md §5's structured swap-event handler:
// (i) decode synchronously from the log and apply the swap to the
// pool's reserves (V2) or sqrtPriceX96/liquidity (V3), (ii) emit
// swap-event immediately without awaiting RPCs, (iii) spawn one
// background task that recomputes the token price and then resolves the
// transaction sender for a follow-up swap-update.
func (c *Coordinator) handleSwapLog(ctx context.Context, poolAddr, token common.Address, l types.Log) {
	if c.metrics != nil {
		c.metrics.IncCounter(metrics.CounterEventsReceived)
	}

	c.mu.RLock()
	entry, ok := c.poolToToken[addr.Key(poolAddr)]
	cfg, hasCfg := c.tokenConfigs[addr.Key(token)]
	c.mu.RUnlock()
	if !ok || !hasCfg {
		return
	}
	pool := entry.pool

	var info swapclassifier.SwapInfo
	if pool.Type.IsV3() {
		swapLog, err := pooldecoder.DecodeV3SwapLog(l)
		if err != nil {
			return
		}
		pool.SetV3State(swapLog.SqrtPriceX96, swapLog.Liquidity)
		info = swapclassifier.ClassifyV3(swapLog, entry.isToken0)
	} else {
		swapLog, err := pooldecoder.DecodeV2SwapLog(l)
		if err != nil {
			return
		}
		r0, r1 := pool.Reserves()
		r0.Add(r0, swapLog.Amount0In).Sub(r0, swapLog.Amount0Out)
		r1.Add(r1, swapLog.Amount1In).Sub(r1, swapLog.Amount1Out)
		pool.SetReserves(r0, r1)
		info = swapclassifier.ClassifyV2(swapLog, entry.isToken0)
	}

	tokenDecimals, pairDecimals := pool.Decimals0, pool.Decimals1
	if entry.isToken0 {
		tokenDecimals, pairDecimals = pool.Decimals0, pool.Decimals1
	} else {
		tokenDecimals, pairDecimals = pool.Decimals1, pool.Decimals0
	}
	info.TokenAmountHuman = swapclassifier.ToHuman(info.TokenAmountRaw, tokenDecimals)
	info.PairAmountHuman = swapclassifier.ToHuman(info.PairAmountRaw, pairDecimals)

	pb := bindingForPool(cfg, poolAddr)
	priceUSD, priceBNB := c.engine.ConvertPairToUSD(ctx, pb.Pair, pb.AgentSymbol, priceengine.PriceInPair(pool, entry.isToken0))

	eventType := "sell"
	if info.IsBuy {
		eventType = "buy"
	}

	var amountBNB, pairSymbol string
	if pb.Pair == priceengine.PairWBNB {
		amountBNB = info.PairAmountHuman
		pairSymbol = "WBNB"
	} else {
		pairSymbol = string(pb.Pair)
	}

	valueUSD := priceUSD * swapclassifier.ToFloat(info.TokenAmountRaw, tokenDecimals)

	c.hub.BroadcastSwapEvent(addr.Key(token), fanout.SwapEvent{
		TokenAddress: addr.Key(token),
		Symbol:       cfg.Symbol,
		PoolAddress:  addr.Key(poolAddr),
		TxHash:       l.TxHash.Hex(),
		Type:         eventType,
		Sender:       "",
		AmountBNB:    amountBNB,
		AmountToken:  info.TokenAmountHuman,
		PairSymbol:   pairSymbol,
		PairAmount:   info.PairAmountHuman,
		PriceUSD:     priceUSD,
		ValueUSD:     valueUSD,
		Timestamp:    time.Now().UnixMilli(),
	})

	go c.refreshAfterSwap(ctx, token, poolAddr, l.TxHash, priceBNB)
}

func (c *Coordinator) refreshAfterSwap(ctx context.Context, token, poolAddr common.Address, txHash common.Hash, _ float64) {
	if c.engine.Coalesce(token) {
		return
	}

	b, ok := c.registry.Binding(token)
	if !ok {
		return
	}

	tp := c.engine.AggregateToken(ctx, b)
	if c.engine.ShouldBroadcast(token, tp.PriceUSD) {
		c.hub.BroadcastPriceUpdate(tp)
	}
	c.mu.Lock()
	c.priceCache[addr.Key(token)] = tp
	c.mu.Unlock()

	tx, err := c.chain.GetTransaction(ctx, txHash)
	if err != nil || tx == nil {
		return
	}
	// The sender is recovered from the transaction signature, the same
	// way runMempoolWatch resolves pending-transaction senders.
	chainID, err := c.chain.ChainID(ctx)
	if err != nil {
		return
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return
	}
	c.hub.BroadcastSwapUpdate(addr.Key(token), txHash.Hex(), addr.Key(from))
}

func bindingForPool(cfg priceengine.TokenConfig, poolAddr common.Address) priceengine.PoolBinding {
	for _, pb := range cfg.Pools {
		if pb.PoolAddress == poolAddr {
			return pb
		}
	}
	return priceengine.PoolBinding{}
}
