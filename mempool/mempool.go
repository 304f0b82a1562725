// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mempool tracks pending transactions matched against
// monitored pools through their pending/confirmed/failed/replaced/
// timedOut lifecycle, per spec.md §4.6. The state-machine-over-a-
// single-writer-map shape is grounded on the teacher's
// core/txpool.TxPool, which holds transaction state behind its own
// lock and republishes transitions over an event.Feed rather than
// letting callers reach into its internals.
package mempool

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/luxfi/log"

	"github.com/luxfi/pricefanout/addr"
)

// State is a pending transaction's position in the spec.md §4.6 state
// machine.
type State int

const (
	StatePending State = iota
	StateConfirmed
	StateFailed
	StateReplaced
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	case StateReplaced:
		return "replaced"
	case StateTimedOut:
		return "timedOut"
	default:
		return "unknown"
	}
}

// Operation is the buy/sell/unknown direction a selector decode can
// establish ahead of the confirmed log, per spec.md §4.6.
type Operation string

const (
	OperationBuy     Operation = "buy"
	OperationSell    Operation = "sell"
	OperationUnknown Operation = "unknown"
)

// Protocol identifies the router/pool family a selector belongs to.
type Protocol string

const (
	ProtocolUniswapV2    Protocol = "uniswapv2"
	ProtocolUniswapV3    Protocol = "uniswapv3"
	ProtocolAerodromeV2  Protocol = "aerodromev2"
	ProtocolAerodromeV3  Protocol = "aerodromev3"
	ProtocolSlipstream   Protocol = "slipstream"
	ProtocolRouter       Protocol = "router"
	ProtocolPoolDirectV3 Protocol = "pool-direct-v3"
)

// PendingSwap is a transaction tracked through the mempool state
// machine, per spec.md §4.6.
type PendingSwap struct {
	TxHash       common.Hash
	TokenAddress common.Address
	PoolAddress  common.Address
	UserAddress  common.Address
	Nonce        uint64
	Operation    Operation
	Protocol     Protocol
	State        State
	DetectedAt   time.Time

	ReplacedBy common.Hash
}

// DefaultTimeout is the 5-minute pending timer from spec.md §4.6.
const DefaultTimeout = 5 * time.Minute

// Emitter is implemented by the confirmation/fan-out layers. Methods
// are best-effort from the tracker's point of view.
type Emitter interface {
	EmitPending(s PendingSwap)
	EmitConfirmed(s PendingSwap, blockNumber uint64, gasUsed uint64, status uint64)
	EmitFailed(s PendingSwap, blockNumber uint64, reason string, status uint64)
	EmitReplaced(s PendingSwap, newHash common.Hash, status uint64)
}

// ReceiptWaiter fetches confirmation for a pending hash. Implemented by
// chainclient.Client.
type ReceiptWaiter interface {
	WaitForTransaction(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// PoolIndex resolves a pool address to the monitored token and the
// bool flag the selector table needs (isToken0), supplied by the
// coordinator from the listener registry.
type PoolIndex interface {
	TokenForPool(pool common.Address) (token common.Address, isToken0 bool, ok bool)
}

// Tracker is the spec.md §4.6 mempool tracker: single-writer pending
// table with background per-key confirm-watchers, matching spec.md §5
// "Shared resources".
type Tracker struct {
	log     log.Logger
	waiter  ReceiptWaiter
	emitter Emitter
	index   PoolIndex
	timeout time.Duration

	mu      sync.Mutex
	pending map[common.Hash]*PendingSwap
}

// New constructs a Tracker.
func New(waiter ReceiptWaiter, emitter Emitter, index PoolIndex, logger log.Logger) *Tracker {
	if logger == nil {
		logger = log.Root()
	}
	return &Tracker{
		log:     logger,
		waiter:  waiter,
		emitter: emitter,
		index:   index,
		timeout: DefaultTimeout,
		pending: make(map[common.Hash]*PendingSwap),
	}
}

// HandlePendingTx implements spec.md §4.6's mempool-match path:
// classifies the transaction via the selector table (transactions whose
// selector is not in the table are ignored), records it as pending,
// emits swap.pending, and spawns a background watcher that resolves to
// confirmed/failed/timedOut.
func (t *Tracker) HandlePendingTx(ctx context.Context, tx *types.Transaction, from common.Address, userFilter common.Address) {
	if tx.To() == nil || len(tx.Data()) < 4 {
		return
	}

	pool := *tx.To()
	token, isToken0, ok := t.index.TokenForPool(pool)
	if !ok {
		return
	}

	if userFilter != (common.Address{}) && from != userFilter {
		return
	}

	var selector [4]byte
	copy(selector[:], tx.Data()[:4])

	entry, known := selectorTable[selector]
	if !known {
		return
	}
	operation := OperationUnknown
	if entry.decode != nil {
		operation = entry.decode(tx.Data(), isToken0)
	}

	newHash := tx.Hash()
	nonce := tx.Nonce()

	// A new pending tx from the same sender at the same nonce as one
	// already tracked is a replacement (speed-up or cancel), per
	// spec.md §4.6's "replaced" row, not an independent new swap.
	t.mu.Lock()
	var replacedHash common.Hash
	var isReplacement bool
	if _, exists := t.pending[newHash]; !exists {
		for hash, existing := range t.pending {
			if existing.State == StatePending && existing.UserAddress == from && existing.Nonce == nonce {
				replacedHash = hash
				isReplacement = true
				break
			}
		}
	}
	t.mu.Unlock()

	if isReplacement {
		t.HandleReplacement(replacedHash, newHash)
		go t.watch(ctx, newHash)
		return
	}

	swap := &PendingSwap{
		TxHash:       newHash,
		TokenAddress: token,
		PoolAddress:  pool,
		UserAddress:  from,
		Nonce:        nonce,
		Operation:    operation,
		Protocol:     entry.protocol,
		State:        StatePending,
		DetectedAt:   time.Now(),
	}

	t.mu.Lock()
	t.pending[swap.TxHash] = swap
	t.mu.Unlock()

	t.emitter.EmitPending(*swap)
	go t.watch(ctx, swap.TxHash)
}

func (t *Tracker) watch(ctx context.Context, hash common.Hash) {
	watchCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	receipt, err := t.waiter.WaitForTransaction(watchCtx, hash)

	t.mu.Lock()
	swap, ok := t.pending[hash]
	t.mu.Unlock()
	if !ok {
		return // removed (e.g. token teardown) while we were waiting
	}

	if err != nil {
		t.transitionTimedOut(swap)
		return
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		t.transitionConfirmed(swap, receipt)
	} else {
		t.transitionFailed(swap, receipt, "execution reverted")
	}
}

func (t *Tracker) transitionConfirmed(swap *PendingSwap, receipt *types.Receipt) {
	t.mu.Lock()
	swap.State = StateConfirmed
	delete(t.pending, swap.TxHash)
	t.mu.Unlock()
	t.emitter.EmitConfirmed(*swap, receipt.BlockNumber.Uint64(), receipt.GasUsed, receipt.Status)
}

func (t *Tracker) transitionFailed(swap *PendingSwap, receipt *types.Receipt, reason string) {
	t.mu.Lock()
	swap.State = StateFailed
	delete(t.pending, swap.TxHash)
	t.mu.Unlock()
	t.emitter.EmitFailed(*swap, receipt.BlockNumber.Uint64(), reason, receipt.Status)
}

func (t *Tracker) transitionTimedOut(swap *PendingSwap) {
	t.mu.Lock()
	if swap.State != StatePending {
		t.mu.Unlock()
		return
	}
	swap.State = StateTimedOut
	delete(t.pending, swap.TxHash)
	t.mu.Unlock()
}

// HandleReplacement implements spec.md §4.6's "replaced" row: a new
// transaction from the same sender/nonce displaces oldHash. Tracking
// moves to newHash, which continues in pending.
func (t *Tracker) HandleReplacement(oldHash, newHash common.Hash) {
	t.mu.Lock()
	swap, ok := t.pending[oldHash]
	if !ok {
		t.mu.Unlock()
		return
	}
	swap.State = StateReplaced
	swap.ReplacedBy = newHash
	delete(t.pending, oldHash)

	next := &PendingSwap{
		TxHash:       newHash,
		TokenAddress: swap.TokenAddress,
		PoolAddress:  swap.PoolAddress,
		UserAddress:  swap.UserAddress,
		Nonce:        swap.Nonce,
		Operation:    swap.Operation,
		Protocol:     swap.Protocol,
		State:        StatePending,
		DetectedAt:   time.Now(),
	}
	t.pending[newHash] = next
	t.mu.Unlock()

	t.emitter.EmitReplaced(*swap, newHash, 0)
}

// RemoveForToken drops every pending entry for a token's pools, per
// spec.md §4.5 "if a mempool entry refers to any of its pools, also
// remove it."
func (t *Tracker) RemoveForToken(token common.Address) {
	tokenKey := addr.Key(token)
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, s := range t.pending {
		if addr.Key(s.TokenAddress) == tokenKey {
			delete(t.pending, h)
		}
	}
}

// Count returns the number of pending entries, for metrics.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
