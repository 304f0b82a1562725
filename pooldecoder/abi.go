// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package pooldecoder

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Caller is the minimal go-ethereum contract-calling surface this
// package needs. ethclient.Client and the chainclient package both
// satisfy it, the same role bind.ContractCaller plays for generated
// bindings — this package hand-writes its ABI fragments instead of
// running abigen, since it only ever calls a handful of fixed methods.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Minimal ABI fragments for the methods this service calls. Kept as
// hand-written JSON rather than a generated binding.
const (
	abiToken0JSON       = `[{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"type":"function"}]`
	abiToken1JSON       = `[{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"type":"function"}]`
	abiDecimalsJSON     = `[{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}]`
	abiGetReservesJSON  = `[{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"type":"function"}]`
	abiFeeJSON          = `[{"constant":true,"inputs":[],"name":"fee","outputs":[{"name":"","type":"uint24"}],"type":"function"}]`
	abiLiquidityJSON    = `[{"constant":true,"inputs":[],"name":"liquidity","outputs":[{"name":"","type":"uint128"}],"type":"function"}]`
	abiTickSpacingJSON  = `[{"constant":true,"inputs":[],"name":"tickSpacing","outputs":[{"name":"","type":"int24"}],"type":"function"}]`
	abiSlot0StdJSON     = `[{"constant":true,"inputs":[],"name":"slot0","outputs":[{"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},{"name":"observationIndex","type":"uint16"},{"name":"observationCardinality","type":"uint16"},{"name":"observationCardinalityNext","type":"uint16"},{"name":"feeProtocol","type":"uint8"},{"name":"unlocked","type":"bool"}],"type":"function"}]`
	abiSlot0NarrowJSON  = `[{"constant":true,"inputs":[],"name":"slot0","outputs":[{"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"}],"type":"function"}]`
	abiSwapV2EventJSON  = `[{"anonymous":false,"inputs":[{"indexed":false,"name":"amount0In","type":"uint256"},{"indexed":false,"name":"amount1In","type":"uint256"},{"indexed":false,"name":"amount0Out","type":"uint256"},{"indexed":false,"name":"amount1Out","type":"uint256"}],"name":"Swap","type":"event"}]`
	abiSwapV3EventJSON  = `[{"anonymous":false,"inputs":[{"indexed":false,"name":"amount0","type":"int256"},{"indexed":false,"name":"amount1","type":"int256"},{"indexed":false,"name":"sqrtPriceX96","type":"uint160"},{"indexed":false,"name":"liquidity","type":"uint128"},{"indexed":false,"name":"tick","type":"int24"}],"name":"Swap","type":"event"}]`
)

var (
	abiToken0      = mustParseABI(abiToken0JSON)
	abiToken1      = mustParseABI(abiToken1JSON)
	abiDecimals    = mustParseABI(abiDecimalsJSON)
	abiGetReserves = mustParseABI(abiGetReservesJSON)
	abiFee         = mustParseABI(abiFeeJSON)
	abiLiquidity   = mustParseABI(abiLiquidityJSON)
	abiTickSpacing = mustParseABI(abiTickSpacingJSON)
	abiSlot0Std    = mustParseABI(abiSlot0StdJSON)
	abiSlot0Narrow = mustParseABI(abiSlot0NarrowJSON)
	abiSwapV2Event = mustParseABI(abiSwapV2EventJSON)
	abiSwapV3Event = mustParseABI(abiSwapV3EventJSON)
)

func mustParseABI(js string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic(fmt.Sprintf("pooldecoder: invalid embedded ABI: %v", err))
	}
	return parsed
}

func callAndUnpack1(ctx context.Context, c Caller, a abi.ABI, method string, addr common.Address) ([]byte, error) {
	data, err := a.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, addr, err)
	}
	return out, nil
}

func callAddress(ctx context.Context, c Caller, a abi.ABI, method string, addr common.Address) (common.Address, error) {
	out, err := callAndUnpack1(ctx, c, a, method, addr)
	if err != nil {
		return common.Address{}, err
	}
	vals, err := a.Unpack(method, out)
	if err != nil || len(vals) == 0 {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals[0].(common.Address), nil
}
