// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pooldecoder implements the closed set of pool variants this
// service understands — V2, V3, and their sibling families — each with
// its own (load, decode, classifySwap) trio, per spec.md §4.2 and the
// "dynamic dispatch over a closed set" design note in spec.md §9.
package pooldecoder

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Type identifies a pool's ABI family. New variants are added by
// extending this set, not by introducing an open interface hierarchy —
// see spec.md §9 "Dynamic dispatch over pool variants".
type Type int

const (
	TypeUnknown Type = iota
	TypeV2
	TypeV3
	TypeV2Alt
	TypeV3Alt
)

func (t Type) String() string {
	switch t {
	case TypeV2:
		return "v2"
	case TypeV3:
		return "v3"
	case TypeV2Alt:
		return "v2-alt"
	case TypeV3Alt:
		return "v3-alt"
	default:
		return "unknown"
	}
}

// IsV3 reports whether t uses concentrated-liquidity (sqrtPriceX96) state
// rather than constant-product reserves.
func (t Type) IsV3() bool {
	return t == TypeV3 || t == TypeV3Alt
}

var ErrTokenNotInPool = errors.New("pooldecoder: token not in pool")

// Pool is the immutable identity plus mutable reserve/price state of a
// single on-chain pool, per spec.md §3.
type Pool struct {
	Address common.Address
	Type    Type

	Token0 common.Address
	Token1 common.Address

	Decimals0 uint8
	Decimals1 uint8

	// V3-only static attributes.
	Fee         uint32
	TickSpacing int32

	mu sync.RWMutex

	// V2 mutable state.
	reserve0 *big.Int
	reserve1 *big.Int

	// V3 mutable state.
	sqrtPriceX96 *big.Int
	liquidity    *big.Int
}

// IsToken0 reports whether token is this pool's token0. It returns false
// both for token1 and for a token that is in neither slot; callers must
// validate containment with Contains before relying on this.
func (p *Pool) IsToken0(token common.Address) bool {
	return token == p.Token0
}

// Contains reports whether token is one of the pool's two assets.
func (p *Pool) Contains(token common.Address) bool {
	return token == p.Token0 || token == p.Token1
}

// PairOf returns the non-monitored side of the pool for the given
// monitored token, and whether the monitored token was found at all.
func (p *Pool) PairOf(token common.Address) (common.Address, bool) {
	switch token {
	case p.Token0:
		return p.Token1, true
	case p.Token1:
		return p.Token0, true
	default:
		return common.Address{}, false
	}
}

// SetReserves updates V2 reserve state. Callers are responsible for the
// per-token serialization spec.md §5 requires; Pool itself only
// guarantees its own field consistency.
func (p *Pool) SetReserves(r0, r1 *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserve0 = new(big.Int).Set(r0)
	p.reserve1 = new(big.Int).Set(r1)
}

// Reserves returns a snapshot of the V2 reserve state.
func (p *Pool) Reserves() (r0, r1 *big.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.reserve0 == nil || p.reserve1 == nil {
		return big.NewInt(0), big.NewInt(0)
	}
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
}

// SetV3State updates V3 sqrtPriceX96/liquidity state.
func (p *Pool) SetV3State(sqrtPriceX96, liquidity *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sqrtPriceX96 = new(big.Int).Set(sqrtPriceX96)
	if liquidity != nil {
		p.liquidity = new(big.Int).Set(liquidity)
	}
}

// V3State returns a snapshot of the V3 state.
func (p *Pool) V3State() (sqrtPriceX96, liquidity *big.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sp := p.sqrtPriceX96
	if sp == nil {
		sp = big.NewInt(0)
	}
	lq := p.liquidity
	if lq == nil {
		lq = big.NewInt(0)
	}
	return new(big.Int).Set(sp), new(big.Int).Set(lq)
}

// HasLiquidity implements the spec.md §3 derived attribute: for V2, both
// reserves must be positive; for V3, liquidity must be positive.
func (p *Pool) HasLiquidity() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.Type.IsV3() {
		return p.liquidity != nil && p.liquidity.Sign() > 0
	}
	return p.reserve0 != nil && p.reserve1 != nil &&
		p.reserve0.Sign() > 0 && p.reserve1.Sign() > 0
}
