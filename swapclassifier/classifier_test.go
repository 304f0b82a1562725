// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package swapclassifier

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/pricefanout/pooldecoder"
)

func scale(whole int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), pow10(decimals))
}

func TestClassifyV2BuyMonitoredToken0(t *testing.T) {
	l := &pooldecoder.V2SwapLog{
		Amount0In:  big.NewInt(0),
		Amount1In:  scale(1, 17), // 0.1 WBNB in
		Amount0Out: scale(10, 18),
		Amount1Out: big.NewInt(0),
	}
	got := ClassifyV2(l, true)
	require.True(t, got.IsBuy)
	require.Zero(t, got.TokenAmountRaw.Cmp(scale(10, 18)))
	require.Zero(t, got.PairAmountRaw.Cmp(scale(1, 17)))
}

func TestClassifyV2SellMonitoredToken1(t *testing.T) {
	l := &pooldecoder.V2SwapLog{
		Amount0In:  big.NewInt(0),
		Amount1In:  scale(5, 18),
		Amount0Out: scale(3, 18),
		Amount1Out: big.NewInt(0),
	}
	// Monitored is token1: sell means amount1In > 0, tokenRaw=amount1In, pairRaw=amount0Out
	got := ClassifyV2(l, false)
	require.False(t, got.IsBuy)
	require.Zero(t, got.TokenAmountRaw.Cmp(scale(5, 18)))
	require.Zero(t, got.PairAmountRaw.Cmp(scale(3, 18)))
}

func TestClassifyV3SignConvention(t *testing.T) {
	// monitored = token0, amount0 negative => buy
	l := &pooldecoder.V3SwapLog{
		Amount0: big.NewInt(-1_000_000),
		Amount1: big.NewInt(1),
	}
	got := ClassifyV3(l, true)
	require.True(t, got.IsBuy)
	require.Zero(t, got.TokenAmountRaw.Cmp(big.NewInt(1_000_000)))
}

func TestClassifyV3SellMonitoredToken1(t *testing.T) {
	// monitored = token1: positive amount1 => leaving trader going into pool => sell
	l := &pooldecoder.V3SwapLog{
		Amount0: big.NewInt(-5),
		Amount1: big.NewInt(7),
	}
	got := ClassifyV3(l, false)
	require.False(t, got.IsBuy)
	require.Zero(t, got.TokenAmountRaw.Cmp(big.NewInt(7)))
	require.Zero(t, got.PairAmountRaw.Cmp(big.NewInt(5)))
}

func TestV2RoundTripReconstructsDesignatedSide(t *testing.T) {
	amount0Out := big.NewInt(42_000_000)
	amount1In := scale(7, 15)
	l := &pooldecoder.V2SwapLog{
		Amount0In:  big.NewInt(0),
		Amount1In:  amount1In,
		Amount0Out: amount0Out,
		Amount1Out: big.NewInt(0),
	}
	got := ClassifyV2(l, true)
	require.True(t, got.IsBuy)
	require.Zero(t, got.TokenAmountRaw.Cmp(amount0Out))
	require.Zero(t, got.PairAmountRaw.Cmp(amount1In))
}

func TestToHumanFormatting(t *testing.T) {
	require.Equal(t, "10.0000", ToHuman(scale(10, 18), 18))
	require.Equal(t, "0.1000", ToHuman(scale(1, 17), 18))

	small := ToHuman(big.NewInt(1), 18) // 1e-18
	require.Contains(t, small, "e")

	// Values between 0.0001 and 0.01 must still render in scientific
	// notation per spec.md §4.3, even though %g's own exponent cutoff
	// (-4) would otherwise let this range print fixed.
	boundary := ToHuman(scale(5, 15), 18) // 0.005
	require.Contains(t, boundary, "e")

	large := ToHuman(scale(1_500_000, 18), 18)
	require.Contains(t, large, ",")
}
