// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type blockingWaiter struct{}

func (blockingWaiter) WaitForTransaction(ctx context.Context, _ common.Hash) (*types.Receipt, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingEmitter struct {
	pending  []PendingSwap
	replaced []common.Hash
}

func (e *recordingEmitter) EmitPending(s PendingSwap)                         { e.pending = append(e.pending, s) }
func (e *recordingEmitter) EmitConfirmed(PendingSwap, uint64, uint64, uint64) {}
func (e *recordingEmitter) EmitFailed(PendingSwap, uint64, string, uint64)    {}
func (e *recordingEmitter) EmitReplaced(s PendingSwap, newHash common.Hash, _ uint64) {
	e.replaced = append(e.replaced, newHash)
}

type fixedIndex struct {
	pool     common.Address
	token    common.Address
	isToken0 bool
}

func (f fixedIndex) TokenForPool(pool common.Address) (common.Address, bool, bool) {
	if pool != f.pool {
		return common.Address{}, false, false
	}
	return f.token, f.isToken0, true
}

func newPendingTx(nonce uint64, to common.Address, data []byte) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce: nonce,
		To:    &to,
		Data:  data,
	})
}

// routerCalldata returns calldata that starts with a known router
// selector, which the tracker records with an unknown operation. tail
// makes otherwise identical transactions hash differently.
func routerCalldata(tail byte) []byte {
	sel := selectorOf("swapExactETHForTokens(uint256,address[],address,uint256)")
	return append(sel[:], tail)
}

func TestHandlePendingTxTracksNewEntry(t *testing.T) {
	pool := common.HexToAddress("0x000000000000000000000000000000000000d0")
	token := common.HexToAddress("0x00000000000000000000000000000000000ad1")
	sender := common.HexToAddress("0x00000000000000000000000000000000005e41")

	index := fixedIndex{pool: pool, token: token, isToken0: true}
	emitter := &recordingEmitter{}
	tracker := New(blockingWaiter{}, emitter, index, nil)

	tx := newPendingTx(1, pool, routerCalldata(0x01))
	tracker.HandlePendingTx(context.Background(), tx, sender, common.Address{})

	require.Len(t, emitter.pending, 1)
	require.Equal(t, tx.Hash(), emitter.pending[0].TxHash)
	require.Equal(t, uint64(1), emitter.pending[0].Nonce)
	require.Equal(t, StatePending, emitter.pending[0].State)
}

func TestHandlePendingTxDetectsReplacement(t *testing.T) {
	pool := common.HexToAddress("0x000000000000000000000000000000000000d0")
	token := common.HexToAddress("0x00000000000000000000000000000000000ad1")
	sender := common.HexToAddress("0x00000000000000000000000000000000005e41")

	index := fixedIndex{pool: pool, token: token, isToken0: true}
	emitter := &recordingEmitter{}
	tracker := New(blockingWaiter{}, emitter, index, nil)

	first := newPendingTx(7, pool, routerCalldata(0x01))
	tracker.HandlePendingTx(context.Background(), first, sender, common.Address{})

	second := newPendingTx(7, pool, routerCalldata(0x02))
	tracker.HandlePendingTx(context.Background(), second, sender, common.Address{})

	require.Len(t, emitter.replaced, 1)
	require.Equal(t, second.Hash(), emitter.replaced[0])

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.NotContains(t, tracker.pending, first.Hash())
	require.Contains(t, tracker.pending, second.Hash())
	require.Equal(t, StatePending, tracker.pending[second.Hash()].State)
}

func TestHandlePendingTxIgnoresUnrelatedPool(t *testing.T) {
	pool := common.HexToAddress("0x000000000000000000000000000000000000d0")
	other := common.HexToAddress("0x00000000000000000000000000000000000fff")
	token := common.HexToAddress("0x00000000000000000000000000000000000ad1")
	sender := common.HexToAddress("0x00000000000000000000000000000000005e41")

	index := fixedIndex{pool: pool, token: token, isToken0: true}
	emitter := &recordingEmitter{}
	tracker := New(blockingWaiter{}, emitter, index, nil)

	tx := newPendingTx(1, other, routerCalldata(0x01))
	tracker.HandlePendingTx(context.Background(), tx, sender, common.Address{})

	require.Empty(t, emitter.pending)
	require.Zero(t, tracker.Count())
}
