// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// ChainID implements the eth_chainId RPC method required by spec.md §6.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var hex hexutil.Big
	if err := c.Call(ctx, "eth_chainId", []any{}, &hex); err != nil {
		return nil, err
	}
	return (*big.Int)(&hex), nil
}

// BlockNumber implements the eth_blockNumber RPC method.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var hex hexutil.Uint64
	if err := c.Call(ctx, "eth_blockNumber", []any{}, &hex); err != nil {
		return 0, err
	}
	return uint64(hex), nil
}

type callMsgJSON struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	Data string `json:"data,omitempty"`
}

// CallContract implements the eth_call RPC method. It satisfies
// pooldecoder.Caller.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m := callMsgJSON{Data: hexutil.Encode(msg.Data)}
	if msg.To != nil {
		m.To = msg.To.Hex()
	}
	if msg.From != (common.Address{}) {
		m.From = msg.From.Hex()
	}

	var result hexutil.Bytes
	if err := c.Call(ctx, "eth_call", []any{m, "latest"}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTransaction implements eth_getTransactionByHash.
func (c *Client) GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, "eth_getTransactionByHash", []any{hash}, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("chainclient: transaction %s not found", hash)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("chainclient: decode transaction %s: %w", hash, err)
	}
	return tx, nil
}

// GetTransactionReceipt implements eth_getTransactionReceipt.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, "eth_getTransactionReceipt", []any{hash}, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	receipt := new(types.Receipt)
	if err := json.Unmarshal(raw, receipt); err != nil {
		return nil, fmt.Errorf("chainclient: decode receipt %s: %w", hash, err)
	}
	return receipt, nil
}

// WaitForTransaction polls for a transaction receipt, racing against a
// 5-minute timer per spec.md §5 "waitForTransaction is raced against a
// 5-minute timer; the first to resolve wins and the other side is
// abandoned."
func (c *Client) WaitForTransaction(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chainclient: wait for transaction %s: %w", hash, ctx.Err())
		case <-ticker.C:
			receipt, err := c.GetTransactionReceipt(ctx, hash)
			if err != nil {
				continue
			}
			if receipt != nil {
				return receipt, nil
			}
		}
	}
}

// logFilterParams mirrors the eth_subscribe("logs", {address, topics})
// filter object from spec.md §6.
type logFilterParams struct {
	Address []common.Address `json:"address,omitempty"`
	Topics  [][]common.Hash  `json:"topics,omitempty"`
}

// SubscribeLogs subscribes to matching logs and republishes them
// through an event.Feed, mirroring the teacher's event.Feed/
// event.Subscription idiom used for subpool event dispatch in
// core/txpool.go.
func (c *Client) SubscribeLogs(ctx context.Context, address common.Address, topics [][]common.Hash) (*event.Feed, event.Subscription, error) {
	filter := logFilterParams{Address: []common.Address{address}, Topics: topics}
	subID, raw, err := c.Subscribe(ctx, "logs", filter)
	if err != nil {
		return nil, nil, err
	}

	feed := new(event.Feed)
	sub := event.NewSubscription(func(quit <-chan struct{}) error {
		for {
			select {
			case data, ok := <-raw:
				if !ok {
					return nil
				}
				var l types.Log
				if err := json.Unmarshal(data, &l); err != nil {
					continue
				}
				feed.Send(l)
			case <-quit:
				_ = c.Unsubscribe(context.Background(), subID)
				return nil
			}
		}
	})
	return feed, sub, nil
}

// PendingTxNotice is the payload of a newPendingTransactions
// subscription entry: either the bare hash or the full transaction,
// depending on node configuration.
type PendingTxNotice struct {
	Hash common.Hash
	Tx   *types.Transaction // nil when the node only sends hashes
}

// SubscribePendingTransactions subscribes to the vendor
// newPendingTransactions extension, per spec.md §9 "the mempool
// subscription uses a vendor extension... On nodes that do not
// support it, the tracker must degrade cleanly to log-only mode."
func (c *Client) SubscribePendingTransactions(ctx context.Context) (*event.Feed, event.Subscription, error) {
	subID, raw, err := c.Subscribe(ctx, "newPendingTransactions", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("chainclient: pending-tx subscription unsupported: %w", err)
	}

	feed := new(event.Feed)
	sub := event.NewSubscription(func(quit <-chan struct{}) error {
		for {
			select {
			case data, ok := <-raw:
				if !ok {
					return nil
				}
				notice := decodePendingTxNotice(data)
				feed.Send(notice)
			case <-quit:
				_ = c.Unsubscribe(context.Background(), subID)
				return nil
			}
		}
	})
	return feed, sub, nil
}

func decodePendingTxNotice(data json.RawMessage) PendingTxNotice {
	var hash common.Hash
	if err := json.Unmarshal(data, &hash); err == nil {
		return PendingTxNotice{Hash: hash}
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalJSON(data); err == nil {
		return PendingTxNotice{Hash: tx.Hash(), Tx: tx}
	}
	return PendingTxNotice{}
}
