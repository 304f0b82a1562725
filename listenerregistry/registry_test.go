// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package listenerregistry

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/luxfi/pricefanout/pooldecoder"
	"github.com/luxfi/pricefanout/priceengine"
)

// TestMain uses goleak to verify tests in this package do not leak
// goroutines, matching the teacher's core package convention.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestPool(token common.Address) *pooldecoder.Pool {
	p := &pooldecoder.Pool{
		Address: common.HexToAddress("0x0000000000000000000000000000000000beef"),
		Token0:  token,
		Token1:  common.HexToAddress("0x000000000000000000000000000000deadbeef"),
		Type:    pooldecoder.TypeV2,
	}
	p.SetReserves(big.NewInt(1_000_000), big.NewInt(1_000_000))
	return p
}

func TestAddTokenSubscribesAndDedupesPools(t *testing.T) {
	token := common.HexToAddress("0x1000000000000000000000000000000000bEEF")
	engine := priceengine.NewEngine(priceengine.Config{}, nil, nil, nil, nil)

	var teardowns int
	subscriber := subscriberFunc(func(_ context.Context, _ common.Address, _ common.Address) (func(), error) {
		return func() { teardowns++ }, nil
	})

	r := New(subscriber, engine, nil, nil)
	load := func(_ context.Context, pb priceengine.PoolBinding, tok common.Address) (*pooldecoder.Pool, error) {
		return newTestPool(tok), nil
	}

	cfg := priceengine.TokenConfig{Pools: []priceengine.PoolBinding{{PoolAddress: newTestPool(token).Address, Pair: priceengine.PairUSDT}}}

	_, err := r.AddToken(context.Background(), token, cfg, load)
	require.NoError(t, err)
	require.Equal(t, 1, r.ActivePools().Cardinality())

	require.True(t, r.RemoveToken(token))
	require.Equal(t, 1, teardowns)
	require.Equal(t, 0, r.ActivePools().Cardinality())
}

func TestAddTokenIdempotent(t *testing.T) {
	token := common.HexToAddress("0x2000000000000000000000000000000000bEEF")
	engine := priceengine.NewEngine(priceengine.Config{}, nil, nil, nil, nil)
	subscriber := subscriberFunc(func(_ context.Context, _ common.Address, _ common.Address) (func(), error) {
		return func() {}, nil
	})
	r := New(subscriber, engine, nil, nil)
	load := func(_ context.Context, pb priceengine.PoolBinding, tok common.Address) (*pooldecoder.Pool, error) {
		return newTestPool(tok), nil
	}
	cfg := priceengine.TokenConfig{Pools: []priceengine.PoolBinding{{PoolAddress: newTestPool(token).Address, Pair: priceengine.PairUSDT}}}

	_, err := r.AddToken(context.Background(), token, cfg, load)
	require.NoError(t, err)
	_, err = r.AddToken(context.Background(), token, cfg, load)
	require.NoError(t, err)
	require.Equal(t, 1, r.ActivePools().Cardinality())
}

type subscriberFunc func(ctx context.Context, pool common.Address, token common.Address) (func(), error)

func (f subscriberFunc) SubscribePool(ctx context.Context, pool common.Address, token common.Address) (func(), error) {
	return f(ctx, pool, token)
}
