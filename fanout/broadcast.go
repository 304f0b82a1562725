// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/luxfi/pricefanout/addr"
	"github.com/luxfi/pricefanout/priceengine"
)

// BroadcastPriceUpdate implements spec.md §4.7 "price-update → room-only."
func (h *Hub) BroadcastPriceUpdate(tp priceengine.TokenPrice) {
	room := addr.Room(tp.TokenAddress)
	msg := priceUpdateMessage{
		TokenAddress: addr.Key(tp.TokenAddress),
		Symbol:       tp.Symbol,
		Name:         tp.Name,
		PriceUSD:     tp.PriceUSD,
		PriceBNB:     tp.PriceBNB,
		PoolCount:    tp.PoolCount,
		Pools:        tp.Pools,
		Timestamp:    tp.Timestamp.UnixMilli(),
		Formatted:    formatted{PriceUSD: formatUSD(tp.PriceUSD), PriceBNB: formatUSD(tp.PriceBNB)},
	}
	h.broadcastRoom(room, envelope{Type: "price-update", Payload: msg})
}

// BroadcastSwapEvent implements spec.md §4.7 "swap-event → room-only,
// emitted synchronously on log arrival with the data already in hand."
func (h *Hub) BroadcastSwapEvent(tokenAddr string, event SwapEvent) {
	room := "token:" + tokenAddr
	h.broadcastRoom(room, envelope{Type: "swap-event", Payload: event})
	if h.metrics != nil {
		h.metrics.IncCounter("eventsReceived")
	}
}

// BroadcastSwapUpdate implements the spec.md §6 follow-up "swap-update"
// once the transaction's real sender is resolved.
func (h *Hub) BroadcastSwapUpdate(tokenAddr, txHash, sender string) {
	room := "token:" + tokenAddr
	h.broadcastRoom(room, envelope{Type: "swap-update", Payload: swapUpdateMessage{TxHash: txHash, Sender: sender}})
}

func (h *Hub) broadcastRoom(room string, e envelope) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	h.mu.RLock()
	members := h.rooms[room]
	sessions := make([]*ClientSession, 0, len(members))
	for _, s := range members {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		select {
		case s.send <- data:
		default:
			h.log.Warn("fanout: room broadcast buffer full, dropping", "room", room, "session", s.ID)
		}
	}
}

func (h *Hub) broadcastGlobal(e envelope) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	h.mu.RLock()
	sessions := make([]*ClientSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		select {
		case s.send <- data:
		default:
		}
	}
}

// RunHeartbeat implements spec.md §4.7 "Every 30 s a heartbeat with
// {uptime, monitoredTokens, metrics} is fanned out to all sessions."
// It runs until ctx is canceled.
func (h *Hub) RunHeartbeat(ctx context.Context, monitoredTokens func() int) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var metrics heartbeatMetrics
			if h.metrics != nil {
				snap := h.metrics.Snapshot()
				metrics = heartbeatMetrics{
					PriceUpdates:   snap["priceUpdates"],
					CacheHits:      snap["cacheHits"],
					EventsReceived: snap["eventsReceived"],
				}
			}
			h.broadcastGlobal(envelope{Type: "heartbeat", Payload: heartbeatMessage{
				Timestamp:       time.Now().UnixMilli(),
				MonitoredTokens: monitoredTokens(),
				Uptime:          time.Since(h.start).Seconds(),
				Metrics:         metrics,
			}})
		}
	}
}

// RunStaleReaper implements spec.md §4.7 "Every 30 s the stale reaper
// walks sessions; any with now − lastPing > 60 s is forcibly
// disconnected," and spec.md §8's testable property that such sessions
// are absent from the table within ≤ 30 s.
func (h *Hub) RunStaleReaper(ctx context.Context) {
	ticker := time.NewTicker(staleReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reapStale()
		}
	}
}

func (h *Hub) reapStale() {
	now := time.Now()

	h.mu.RLock()
	var stale []*ClientSession
	for _, s := range h.sessions {
		s.mu.Lock()
		last := s.lastPing
		s.mu.Unlock()
		if now.Sub(last) > staleThreshold {
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		h.log.Info("fanout: reaping stale session", "session", s.ID)
		h.disconnect(s)
	}
}
