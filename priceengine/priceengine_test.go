// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package priceengine

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/pricefanout/pooldecoder"
)

func TestRejectOutliersPassesThroughSmallSets(t *testing.T) {
	require.Equal(t, []float64{5000}, RejectOutliers([]float64{5000}))
	require.Equal(t, []float64{100, 200}, RejectOutliers([]float64{100, 200}))
}

func TestRejectOutliersDropsBeyondTwoStddev(t *testing.T) {
	// mean 916.67, population stddev 1826.12: 5000 is 4083.33 from the
	// mean, beyond 2σ = 3652.24.
	samples := []float64{100, 101, 99, 100, 100, 5000}
	retained := RejectOutliers(samples)
	require.NotContains(t, retained, 5000.0)
	require.ElementsMatch(t, []float64{100, 101, 99, 100, 100}, retained)
}

// spec.md §8 scenario 1: V2 buy, MON (token0, 18 dec) / WBNB (token1, 18
// dec), reserves (1000e18, 10e18). Pair-denominated price is
// 10e18/1000e18 = 0.01 BNB/MON.
func TestPriceInPairV2Scenario1(t *testing.T) {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	reserve0 := new(big.Int).Mul(big.NewInt(1000), scale)
	reserve1 := new(big.Int).Mul(big.NewInt(10), scale)
	p := &pooldecoder.Pool{Type: pooldecoder.TypeV2, Decimals0: 18, Decimals1: 18}
	p.SetReserves(reserve0, reserve1)

	got := PriceInPairV2(p, true)
	require.InDelta(t, 0.01, got, 1e-12)
}

// spec.md §8 scenario 2: V3 sell, monitored = token1, sqrtPriceX96 =
// 2^96 (P = 1.0), decimals0 = 6, decimals1 = 18. After decimal adjust
// P·10^(6-18) = 1e-12; monitored is token1 so priceInPair = 1e12.
func TestPriceInPairV3Scenario2(t *testing.T) {
	sqrtPriceX96 := new(big.Int).Lsh(big.NewInt(1), 96)
	p := &pooldecoder.Pool{Type: pooldecoder.TypeV3, Decimals0: 6, Decimals1: 18}
	p.SetV3State(sqrtPriceX96, big.NewInt(1))

	got := PriceInPairV3(p, false)
	require.InDelta(t, 1e12, got, 1e12*1e-9)
}

func TestShouldBroadcastThreshold(t *testing.T) {
	e := NewEngine(Config{}, nil, nil, nil, nil)
	token := common.HexToAddress("0x1000000000000000000000000000000000bEEF")

	require.True(t, e.ShouldBroadcast(token, 6.00), "first price is always broadcast")
	require.False(t, e.ShouldBroadcast(token, 6.0001), "0.0017%% change is below the default 0.1%% threshold")
	require.True(t, e.ShouldBroadcast(token, 6.12), "2%% change clears the default 0.1%% threshold")
}

// spec.md §8 scenario 3: agent cycle. A pairs with B; B pairs with A.
// agentPrice(A, []) must terminate and resolve to 0, with one
// cycle-warning recorded.
type recordingErrors struct {
	kinds []string
}

func (r *recordingErrors) RecordError(kind, _ string) {
	r.kinds = append(r.kinds, kind)
}

func TestAgentPriceCycleTerminatesAtZero(t *testing.T) {
	addrA := common.HexToAddress("0xA000000000000000000000000000000000000A")
	addrB := common.HexToAddress("0xB000000000000000000000000000000000000B")

	poolAB := &pooldecoder.Pool{Type: pooldecoder.TypeV2}
	poolAB.SetReserves(big.NewInt(100), big.NewInt(100))
	poolBA := &pooldecoder.Pool{Type: pooldecoder.TypeV2}
	poolBA.SetReserves(big.NewInt(100), big.NewInt(100))

	entryA := &AgentTokenEntry{
		Symbol:       "A",
		TokenAddress: addrA,
		PriceSources: []PriceSource{{Pool: poolAB, MonitoredIsToken0: true, Pair: PairAgent, PairAddress: addrB}},
	}
	entryB := &AgentTokenEntry{
		Symbol:       "B",
		TokenAddress: addrB,
		PriceSources: []PriceSource{{Pool: poolBA, MonitoredIsToken0: true, Pair: PairAgent, PairAddress: addrA}},
	}

	errs := &recordingErrors{}
	e := NewEngine(Config{}, nil, []*AgentTokenEntry{entryA, entryB}, errs, nil)

	got := e.agentPriceBySymbol(context.Background(), "A", nil)
	require.Equal(t, 0.0, got)
	require.Contains(t, errs.kinds, "cyclic")
}
