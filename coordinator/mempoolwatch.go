// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/luxfi/pricefanout/addr"
	"github.com/luxfi/pricefanout/chainclient"
)

// runMempoolWatch implements spec.md §4.6's mempool-match path at the
// transport level: subscribes to the node's newPendingTransactions
// vendor extension and hands every pending tx whose To() address is a
// tracked pool to the mempool tracker. Degrades to a one-time Warn and
// returns if the node does not support the extension, per spec.md §9.
func (c *Coordinator) runMempoolWatch(ctx context.Context) {
	chainID, err := c.chain.ChainID(ctx)
	if err != nil {
		c.log.Warn("coordinator: chain id unavailable, mempool watch disabled", "err", err)
		return
	}
	signer := types.LatestSignerForChainID(chainID)

	feed, sub, err := c.chain.SubscribePendingTransactions(ctx)
	if err != nil {
		c.log.Warn("coordinator: mempool watch disabled, node lacks newPendingTransactions", "err", err)
		return
	}
	defer sub.Unsubscribe()

	ch := make(chan any, 256)
	feedSub := feed.Subscribe(ch)
	defer feedSub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Err():
			return
		case raw := <-ch:
			notice, ok := raw.(chainclient.PendingTxNotice)
			if !ok {
				continue
			}
			c.handlePendingNotice(ctx, notice, signer)
		}
	}
}

func (c *Coordinator) handlePendingNotice(ctx context.Context, notice chainclient.PendingTxNotice, signer types.Signer) {
	tx := notice.Tx
	if tx == nil {
		var err error
		tx, err = c.chain.GetTransaction(ctx, notice.Hash)
		if err != nil || tx == nil {
			return
		}
	}
	if tx.To() == nil {
		return
	}

	token, _, ok := c.TokenForPool(*tx.To())
	if !ok {
		return
	}

	from, err := types.Sender(signer, tx)
	if err != nil {
		return
	}

	c.mu.RLock()
	listener := c.swapListeners[addr.Key(token)]
	c.mu.RUnlock()

	userFilter := common.Address{}
	if listener != nil {
		userFilter = listener.UserAddress
	}

	c.mempool.HandlePendingTx(ctx, tx, from, userFilter)
}
