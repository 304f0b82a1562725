// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package pooldecoder

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/log"
)

// LoadV2 reads token0, token1, and reserves for a constant-product pool,
// per spec.md §4.2 "V2 load".
func LoadV2(ctx context.Context, c Caller, decimals *DecimalsResolver, poolAddr, monitored common.Address, alt bool) (*Pool, error) {
	token0, err := callAddress(ctx, c, abiToken0, "token0", poolAddr)
	if err != nil {
		return nil, fmt.Errorf("load v2 pool %s: %w", poolAddr, err)
	}
	token1, err := callAddress(ctx, c, abiToken1, "token1", poolAddr)
	if err != nil {
		return nil, fmt.Errorf("load v2 pool %s: %w", poolAddr, err)
	}

	p := &Pool{
		Address: poolAddr,
		Type:    TypeV2,
		Token0:  token0,
		Token1:  token1,
	}
	if alt {
		p.Type = TypeV2Alt
	}
	if monitored != (common.Address{}) && !p.Contains(monitored) {
		return nil, fmt.Errorf("%w: %s not in pool %s", ErrTokenNotInPool, monitored, poolAddr)
	}

	p.Decimals0 = decimals.Resolve(ctx, token0)
	p.Decimals1 = decimals.Resolve(ctx, token1)

	r0, r1, err := getReserves(ctx, c, poolAddr)
	if err != nil {
		return nil, fmt.Errorf("load v2 pool %s: %w", poolAddr, err)
	}
	p.SetReserves(r0, r1)
	return p, nil
}

func getReserves(ctx context.Context, c Caller, poolAddr common.Address) (*big.Int, *big.Int, error) {
	out, err := callAndUnpack1(ctx, c, abiGetReserves, "getReserves", poolAddr)
	if err != nil {
		return nil, nil, err
	}
	vals, err := abiGetReserves.Unpack("getReserves", out)
	if err != nil || len(vals) < 2 {
		return nil, nil, fmt.Errorf("unpack getReserves: %w", err)
	}
	return vals[0].(*big.Int), vals[1].(*big.Int), nil
}

// LoadV3 reads token0, token1, fee, liquidity, and slot0 for a
// concentrated-liquidity pool, per spec.md §4.2 "V3 load". slot0 is
// attempted in three shapes, first match wins, per the same section.
func LoadV3(ctx context.Context, c Caller, decimals *DecimalsResolver, poolAddr, monitored common.Address, alt bool) (*Pool, error) {
	token0, err := callAddress(ctx, c, abiToken0, "token0", poolAddr)
	if err != nil {
		return nil, fmt.Errorf("load v3 pool %s: %w", poolAddr, err)
	}
	token1, err := callAddress(ctx, c, abiToken1, "token1", poolAddr)
	if err != nil {
		return nil, fmt.Errorf("load v3 pool %s: %w", poolAddr, err)
	}

	p := &Pool{
		Address: poolAddr,
		Type:    TypeV3,
		Token0:  token0,
		Token1:  token1,
	}
	if alt {
		p.Type = TypeV3Alt
	}
	if monitored != (common.Address{}) && !p.Contains(monitored) {
		return nil, fmt.Errorf("%w: %s not in pool %s", ErrTokenNotInPool, monitored, poolAddr)
	}

	p.Decimals0 = decimals.Resolve(ctx, token0)
	p.Decimals1 = decimals.Resolve(ctx, token1)

	// fee and tickSpacing are uint24/int24 on-chain; go-ethereum's abi
	// package represents those as *big.Int since the width has no
	// native Go counterpart.
	if out, err := callAndUnpack1(ctx, c, abiFee, "fee", poolAddr); err == nil {
		if vals, err := abiFee.Unpack("fee", out); err == nil && len(vals) > 0 {
			p.Fee = uint32(vals[0].(*big.Int).Uint64())
		}
	}
	if out, err := callAndUnpack1(ctx, c, abiTickSpacing, "tickSpacing", poolAddr); err == nil {
		if vals, err := abiTickSpacing.Unpack("tickSpacing", out); err == nil && len(vals) > 0 {
			p.TickSpacing = int32(vals[0].(*big.Int).Int64())
		}
	}

	liquidity, err := getLiquidity(ctx, c, poolAddr)
	if err != nil {
		return nil, fmt.Errorf("load v3 pool %s: %w", poolAddr, err)
	}

	sqrtPriceX96, err := getSlot0SqrtPrice(ctx, c, poolAddr)
	if err != nil {
		return nil, fmt.Errorf("load v3 pool %s: %w", poolAddr, err)
	}

	p.SetV3State(sqrtPriceX96, liquidity)
	return p, nil
}

func getLiquidity(ctx context.Context, c Caller, poolAddr common.Address) (*big.Int, error) {
	out, err := callAndUnpack1(ctx, c, abiLiquidity, "liquidity", poolAddr)
	if err != nil {
		return nil, err
	}
	vals, err := abiLiquidity.Unpack("liquidity", out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("unpack liquidity: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// getSlot0SqrtPrice attempts (a) the standard 7-tuple, (b) the narrower
// 2-tuple variant, (c) a raw ABI-less read of the first 32 bytes as
// unsigned (at least 64 bytes required) — the first that decodes wins,
// per spec.md §4.2.
func getSlot0SqrtPrice(ctx context.Context, c Caller, poolAddr common.Address) (*big.Int, error) {
	l := log.Root()

	data, err := abiSlot0Std.Pack("slot0")
	if err != nil {
		return nil, err
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &poolAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("slot0 call: %w", err)
	}

	if vals, err := abiSlot0Std.Unpack("slot0", raw); err == nil && len(vals) > 0 {
		return vals[0].(*big.Int), nil
	}
	l.Debug("slot0 standard 7-tuple decode failed, trying narrow variant", "pool", poolAddr)

	if vals, err := abiSlot0Narrow.Unpack("slot0", raw); err == nil && len(vals) > 0 {
		return vals[0].(*big.Int), nil
	}
	l.Debug("slot0 narrow variant decode failed, trying raw slice", "pool", poolAddr)

	if len(raw) >= 64 {
		// Raw ABI-less slice: first word unsigned (sqrtPriceX96 fits in
		// 160 bits, so uint256 is the exact right width here). The
		// second word (tick) is not decoded; the price model does not
		// use it.
		sqrtPriceX96 := new(uint256.Int).SetBytes(raw[0:32])
		return sqrtPriceX96.ToBig(), nil
	}

	return nil, fmt.Errorf("slot0: no decode variant matched %d-byte response", len(raw))
}
