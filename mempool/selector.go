// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// decoderFunc attempts to classify buy/sell from calldata for a
// pool-direct V2 call, per spec.md §4.6: "For a V2 pool-direct call,
// attempt to decode (amount0Out, amount1Out, to, data); if isToken0,
// operation is buy when amount0Out > 0 else sell; symmetric for
// token1." Router and V3-direct calls resolve to unknown.
type decoderFunc func(data []byte, isToken0 bool) Operation

// selectorTable is the closed dispatch table from spec.md §4.6: "the
// known router and pool-direct swap selectors are classified; unknown
// selectors are ignored." Selectors are the first 4 bytes of
// known swap-shaped calldata.
var selectorTable = map[[4]byte]struct {
	protocol Protocol
	decode   decoderFunc
}{
	selectorOf("swap(uint256,uint256,address,bytes)"): {ProtocolUniswapV2, decodeV2PoolDirectSwap},
	selectorOf("swap(address,bool,int256,uint160,bytes)"): {ProtocolPoolDirectV3, nil},

	selectorOf("swapExactTokensForTokens(uint256,uint256,address[],address,uint256)"):          {ProtocolRouter, nil},
	selectorOf("swapTokensForExactTokens(uint256,uint256,address[],address,uint256)"):          {ProtocolRouter, nil},
	selectorOf("swapExactETHForTokens(uint256,address[],address,uint256)"):                     {ProtocolRouter, nil},
	selectorOf("swapExactTokensForETH(uint256,uint256,address[],address,uint256)"):             {ProtocolRouter, nil},
	selectorOf("swapExactTokensForTokensSupportingFeeOnTransferTokens(uint256,uint256,address[],address,uint256)"): {ProtocolRouter, nil},
	selectorOf("swapExactETHForTokensSupportingFeeOnTransferTokens(uint256,address[],address,uint256)"):            {ProtocolRouter, nil},
	selectorOf("swapExactTokensForETHSupportingFeeOnTransferTokens(uint256,uint256,address[],address,uint256)"):    {ProtocolRouter, nil},
	selectorOf("exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))"): {ProtocolUniswapV3, nil},
	selectorOf("exactOutputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))"): {ProtocolUniswapV3, nil},
	selectorOf("exactInput(bytes,address,uint256,uint256,uint256)"):                            {ProtocolUniswapV3, nil},
}

var v2SwapDirectABI = mustParseSelectorABI(`[{"name":"swap","type":"function","inputs":[{"name":"amount0Out","type":"uint256"},{"name":"amount1Out","type":"uint256"},{"name":"to","type":"address"},{"name":"data","type":"bytes"}]}]`)

func mustParseSelectorABI(js string) abi.ABI {
	parsed, err := abi.JSON(stringsReader(js))
	if err != nil {
		panic("mempool: invalid embedded selector ABI: " + err.Error())
	}
	return parsed
}

func decodeV2PoolDirectSwap(data []byte, isToken0 bool) Operation {
	if len(data) < 4 {
		return OperationUnknown
	}
	vals, err := v2SwapDirectABI.Methods["swap"].Inputs.Unpack(data[4:])
	if err != nil || len(vals) < 2 {
		return OperationUnknown
	}
	amount0Out, ok0 := vals[0].(*big.Int)
	amount1Out, ok1 := vals[1].(*big.Int)
	if !ok0 || !ok1 {
		return OperationUnknown
	}

	if isToken0 {
		if amount0Out.Sign() > 0 {
			return OperationBuy
		}
		return OperationSell
	}
	if amount1Out.Sign() > 0 {
		return OperationBuy
	}
	return OperationSell
}
