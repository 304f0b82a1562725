// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package priceengine

import (
	"math/big"

	"github.com/luxfi/pricefanout/pooldecoder"
)

// q96Squared is 2^192, the denominator of the V3 price formula.
var q96Squared = new(big.Int).Lsh(big.NewInt(1), 192)

const fixedPointScale = 1e18

var fixedPointScaleInt = big.NewInt(int64(fixedPointScale))

// PriceInPairV2 implements spec.md §4.4 V2 rule:
// priceInPair = (reservePair/10^decimalsPair) / (reserveToken/10^decimalsToken).
func PriceInPairV2(p *pooldecoder.Pool, monitoredIsToken0 bool) float64 {
	r0, r1 := p.Reserves()

	var reserveToken, reserveTokenOther *big.Int
	var decToken, decOther uint8
	if monitoredIsToken0 {
		reserveToken, reserveTokenOther = r0, r1
		decToken, decOther = p.Decimals0, p.Decimals1
	} else {
		reserveToken, reserveTokenOther = r1, r0
		decToken, decOther = p.Decimals1, p.Decimals0
	}

	if reserveToken.Sign() == 0 {
		return 0
	}

	tokenHuman := toFloat(reserveToken, decToken)
	pairHuman := toFloat(reserveTokenOther, decOther)
	if tokenHuman == 0 {
		return 0
	}
	return pairHuman / tokenHuman
}

// PriceInPairV3 implements spec.md §4.4 V3 rule: P = (sqrtPriceX96/2^96)^2,
// adjusted by 10^(decimals0-decimals1), inverted when the monitored token
// is token1.
func PriceInPairV3(p *pooldecoder.Pool, monitoredIsToken0 bool) float64 {
	sqrtPriceX96, _ := p.V3State()
	if sqrtPriceX96.Sign() == 0 {
		return 0
	}

	// numerator = sqrtPriceX96^2 * 10^18, computed in big-integer
	// arithmetic so the square (up to 320 bits) never loses precision,
	// then divided by 2^192 before the final float conversion — per
	// spec.md §4.4's "fixed-point bridge, then divide float by 10^18".
	squared := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	numerator := new(big.Int).Mul(squared, fixedPointScaleInt)
	ratio := new(big.Int).Quo(numerator, q96Squared)

	ratioFloat := new(big.Float).SetInt(ratio)
	scale := new(big.Float).SetFloat64(fixedPointScale)
	priceFloat := new(big.Float).Quo(ratioFloat, scale)
	p0, _ := priceFloat.Float64()

	decimalAdjust := decimalAdjustment(p.Decimals0, p.Decimals1)
	p0 *= decimalAdjust

	if monitoredIsToken0 {
		return p0
	}
	if p0 == 0 {
		return 0
	}
	return 1 / p0
}

func decimalAdjustment(decimals0, decimals1 uint8) float64 {
	diff := int(decimals0) - int(decimals1)
	result := 1.0
	if diff >= 0 {
		for i := 0; i < diff; i++ {
			result *= 10
		}
		return result
	}
	for i := 0; i < -diff; i++ {
		result /= 10
	}
	return result
}

func toFloat(raw *big.Int, decimals uint8) float64 {
	f := new(big.Float).SetPrec(128).SetInt(raw)
	scale := new(big.Float).SetPrec(128).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, scale)
	v, _ := f.Float64()
	return v
}

// PriceInPair dispatches to the V2 or V3 rule based on the pool's type.
func PriceInPair(p *pooldecoder.Pool, monitoredIsToken0 bool) float64 {
	if p.Type.IsV3() {
		return PriceInPairV3(p, monitoredIsToken0)
	}
	return PriceInPairV2(p, monitoredIsToken0)
}
