// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package swapclassifier turns a decoded pool swap log into the
// direction and amounts of the monitored token's side of the trade, per
// spec.md §4.3.
package swapclassifier

import (
	"math/big"

	"github.com/luxfi/pricefanout/pooldecoder"
)

// EventType distinguishes which pool family produced a SwapInfo.
type EventType int

const (
	EventV2 EventType = iota
	EventV3
)

// SwapInfo is the classifier's output, per spec.md §3 "PriceSample"
// sibling type and §4.3.
type SwapInfo struct {
	IsBuy           bool
	TokenAmountRaw  *big.Int
	PairAmountRaw   *big.Int
	TokenAmountHuman string
	PairAmountHuman  string
	EventType        EventType
}

// ClassifyV2 implements spec.md §4.3's V2 rule. monitoredIsToken0
// indicates which side of the pool the monitored token sits on.
func ClassifyV2(l *pooldecoder.V2SwapLog, monitoredIsToken0 bool) SwapInfo {
	var isBuy bool
	var tokenRaw, pairRaw *big.Int

	if monitoredIsToken0 {
		if l.Amount0Out.Sign() > 0 {
			isBuy = true
			tokenRaw, pairRaw = l.Amount0Out, l.Amount1In
		} else {
			isBuy = false
			tokenRaw, pairRaw = l.Amount0In, l.Amount1Out
		}
	} else {
		if l.Amount1Out.Sign() > 0 {
			isBuy = true
			tokenRaw, pairRaw = l.Amount1Out, l.Amount0In
		} else {
			isBuy = false
			tokenRaw, pairRaw = l.Amount1In, l.Amount0Out
		}
	}

	return SwapInfo{
		IsBuy:          isBuy,
		TokenAmountRaw: new(big.Int).Set(tokenRaw),
		PairAmountRaw:  new(big.Int).Set(pairRaw),
		EventType:      EventV2,
	}
}

// ClassifyV3 implements spec.md §4.3's V3 rule: buy iff the monitored
// side's signed amount is negative (leaving the pool to the trader).
func ClassifyV3(l *pooldecoder.V3SwapLog, monitoredIsToken0 bool) SwapInfo {
	var monitoredAmount, pairAmount *big.Int
	if monitoredIsToken0 {
		monitoredAmount, pairAmount = l.Amount0, l.Amount1
	} else {
		monitoredAmount, pairAmount = l.Amount1, l.Amount0
	}

	isBuy := monitoredAmount.Sign() < 0

	return SwapInfo{
		IsBuy:          isBuy,
		TokenAmountRaw: new(big.Int).Abs(monitoredAmount),
		PairAmountRaw:  new(big.Int).Abs(pairAmount),
		EventType:      EventV3,
	}
}
