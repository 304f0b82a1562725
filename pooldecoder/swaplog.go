// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package pooldecoder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// V2SwapLog is the decoded payload of a V2 Swap event, per spec.md §4.2
// "Swap-log decoding".
type V2SwapLog struct {
	Sender     common.Address
	To         common.Address
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
}

// DecodeV2SwapLog decodes a Uniswap-V2-shaped Swap log: sender and to
// are indexed (topics[1], topics[2]); the four amounts are ABI-encoded
// in Data.
func DecodeV2SwapLog(l types.Log) (*V2SwapLog, error) {
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("v2 swap log: expected 3 topics, got %d", len(l.Topics))
	}
	vals, err := abiSwapV2Event.Unpack("Swap", l.Data)
	if err != nil || len(vals) < 4 {
		return nil, fmt.Errorf("v2 swap log: unpack data: %w", err)
	}
	return &V2SwapLog{
		Sender:     common.HexToAddress(l.Topics[1].Hex()),
		To:         common.HexToAddress(l.Topics[2].Hex()),
		Amount0In:  vals[0].(*big.Int),
		Amount1In:  vals[1].(*big.Int),
		Amount0Out: vals[2].(*big.Int),
		Amount1Out: vals[3].(*big.Int),
	}, nil
}

// V3SwapLog is the decoded payload of a V3 Swap event, per spec.md §4.2.
// Amount0/Amount1 are signed: negative means the asset left the pool.
type V3SwapLog struct {
	Sender       common.Address
	Recipient    common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         *big.Int
}

// DecodeV3SwapLog decodes a Uniswap-V3-shaped Swap log.
func DecodeV3SwapLog(l types.Log) (*V3SwapLog, error) {
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("v3 swap log: expected 3 topics, got %d", len(l.Topics))
	}
	vals, err := abiSwapV3Event.Unpack("Swap", l.Data)
	if err != nil || len(vals) < 5 {
		return nil, fmt.Errorf("v3 swap log: unpack data: %w", err)
	}
	return &V3SwapLog{
		Sender:       common.HexToAddress(l.Topics[1].Hex()),
		Recipient:    common.HexToAddress(l.Topics[2].Hex()),
		Amount0:      vals[0].(*big.Int),
		Amount1:      vals[1].(*big.Int),
		SqrtPriceX96: vals[2].(*big.Int),
		Liquidity:    vals[3].(*big.Int),
		Tick:         vals[4].(*big.Int),
	}, nil
}
