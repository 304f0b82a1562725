// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package fanout

import (
	"fmt"

	"github.com/luxfi/pricefanout/priceengine"
)

// envelope is the common server->client message shape, per spec.md §6.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type clientMessage struct {
	Type         string `json:"type"`
	TokenAddress string `json:"tokenAddress"`
}

type features struct {
	V2Support          bool `json:"v2Support"`
	V3Support          bool `json:"v3Support"`
	PancakeswapSupport bool `json:"pancakeswapSupport"`
	MultiPoolSupport   bool `json:"multiPoolSupport"`
	DynamicBNBPrice    bool `json:"dynamicBnbPrice"`
	Caching            bool `json:"caching"`
	MetricsTracking    bool `json:"metricsTracking"`
	BuySellDetection   bool `json:"buySellDetection"`
}

type welcomeMessage struct {
	Message  string   `json:"message"`
	SocketID string   `json:"socketId"`
	Service  string   `json:"service"`
	Features features `json:"features"`
}

type subscribedMessage struct {
	TokenAddress string                   `json:"tokenAddress"`
	CurrentPrice *priceengine.TokenPrice `json:"currentPrice"`
	Room         string                   `json:"room"`
}

type unsubscribedMessage struct {
	TokenAddress string `json:"tokenAddress"`
}

type formatted struct {
	PriceUSD string `json:"priceUSD"`
	PriceBNB string `json:"priceBNB"`
}

type priceUpdateMessage struct {
	TokenAddress string                    `json:"tokenAddress"`
	Symbol       string                    `json:"symbol"`
	Name         string                    `json:"name"`
	PriceUSD     float64                   `json:"priceUSD"`
	PriceBNB     float64                   `json:"priceBNB"`
	PoolCount    int                       `json:"poolCount"`
	Pools        []priceengine.PriceSample `json:"pools"`
	Timestamp    int64                     `json:"timestamp"`
	Formatted    formatted                 `json:"formatted"`
}

// SwapEvent is the spec.md §6 swap-event payload. Sender is empty on
// the first, synchronous emission and resolved in a follow-up
// swap-update, per spec.md §9 "Open questions".
type SwapEvent struct {
	TokenAddress string  `json:"tokenAddress"`
	Symbol       string  `json:"symbol"`
	PoolAddress  string  `json:"poolAddress"`
	TxHash       string  `json:"txHash"`
	Type         string  `json:"type"` // "buy" | "sell"
	Sender       string  `json:"sender"`
	AmountBNB    string  `json:"amountBNB"`
	AmountToken  string  `json:"amountToken"`
	PairSymbol   string  `json:"pairSymbol"`
	PairAmount   string  `json:"pairAmount"`
	PriceUSD     float64 `json:"priceUSD"`
	ValueUSD     float64 `json:"valueUSD"`
	Timestamp    int64   `json:"timestamp"`
}

type swapUpdateMessage struct {
	TxHash string `json:"txHash"`
	Sender string `json:"sender"`
}

type heartbeatMetrics struct {
	PriceUpdates   uint64 `json:"priceUpdates"`
	CacheHits      uint64 `json:"cacheHits"`
	EventsReceived uint64 `json:"eventsReceived"`
}

type heartbeatMessage struct {
	Timestamp       int64            `json:"timestamp"`
	MonitoredTokens int              `json:"monitoredTokens"`
	Uptime          float64          `json:"uptime"`
	Metrics         heartbeatMetrics `json:"metrics"`
}

type pongMessage struct {
	Time int64 `json:"time"`
}

type errorMessage struct {
	Message string `json:"message"`
}

type allPricesMessage struct {
	Prices []priceengine.TokenPrice `json:"prices"`
}

func formatUSD(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
