// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package swapclassifier

import (
	"fmt"
	"math"
	"math/big"

	"golang.org/x/text/message"
)

// ToFloat divides raw by 10^decimals and returns the plain float64,
// bypassing the display formatting ToHuman applies. Callers that need
// an arithmetic value (e.g. a USD notional) must use this instead of
// parsing ToHuman's output, which may be in scientific notation.
func ToFloat(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		raw = big.NewInt(0)
	}
	f := new(big.Float).SetPrec(128).SetInt(raw)
	scale := new(big.Float).SetPrec(128).SetInt(pow10(decimals))
	f.Quo(f, scale)
	v, _ := f.Float64()
	return v
}

// ToHuman divides raw by 10^decimals and formats it per spec.md §4.3:
// scientific with 4 significant digits below 0.01, 4-decimal fixed below
// 1000, thousands-grouped 2-decimal otherwise.
func ToHuman(raw *big.Int, decimals uint8) string {
	v := ToFloat(raw, decimals)
	abs := math.Abs(v)

	switch {
	case abs != 0 && abs < 0.01:
		// %e, not %g: %g only switches to scientific notation once the
		// exponent drops below -4, so values like 0.005 would otherwise
		// print fixed ("0.0050") instead of scientific per spec.md §4.3.
		return fmt.Sprintf("%.3e", v)
	case abs < 1000:
		return fmt.Sprintf("%.4f", v)
	default:
		p := message.NewPrinter(message.MatchLanguage("en"))
		return p.Sprintf("%.2f", v)
	}
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
