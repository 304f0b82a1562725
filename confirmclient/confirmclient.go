// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package confirmclient is a best-effort WebSocket client that forwards
// mempool lifecycle envelopes to a downstream consumer, per spec.md
// §4.8 and §6 "Outbound confirmation envelope".
package confirmclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/luxfi/log"

	"github.com/luxfi/pricefanout/mempool"
)

// Client is a best-effort downstream emitter. When disconnected, emit
// drops the envelope and increments a warning counter rather than
// blocking or retrying inline, per spec.md §4.8 "emit(envelope) is
// best-effort: when disconnected, drop with a warning counter."
type Client struct {
	log log.Logger
	url string

	mu      sync.Mutex
	conn    *websocket.Conn
	dropped uint64
}

// New constructs a confirmclient.Client. If url is empty, Connect never
// dials and every Emit call is dropped and counted in Dropped — the
// downstream consumer is optional per spec.md §6
// "Configuration: optional downstream consumer URL".
func New(url string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Root()
	}
	return &Client{log: logger, url: url}
}

// Connect dials the downstream consumer. Failure is logged, not fatal;
// subsequent Emit calls simply keep dropping until a later Connect
// succeeds.
func (c *Client) Connect(ctx context.Context) {
	if c.url == "" {
		return
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		c.log.Warn("confirmclient: connect failed, will operate in drop mode", "url", c.url, "err", err)
		return
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) emit(v any) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Warn("confirmclient: write failed, dropping envelope", "err", err)
		c.mu.Lock()
		c.conn = nil
		c.dropped++
		c.mu.Unlock()
	}
}

// Dropped returns the count of envelopes dropped while disconnected.
func (c *Client) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

type pendingEnvelope struct {
	Event          string `json:"event"`
	TxHash         string `json:"txHash"`
	TokenAddress   string `json:"tokenAddress"`
	PoolAddress    string `json:"poolAddress"`
	UserAddress    string `json:"userAddress"`
	Operation      string `json:"operation"`
	Status         string `json:"status"`
	Protocol       string `json:"protocol"`
	Timestamp      int64  `json:"timestamp"`
	DetectionTime  int64  `json:"detectionTime"`
}

type confirmedEnvelope struct {
	TxHash       string `json:"txHash"`
	BlockNumber  uint64 `json:"blockNumber"`
	GasUsed      uint64 `json:"gasUsed"`
	TokenAddress string `json:"tokenAddress"`
	PoolAddress  string `json:"poolAddress"`
	UserAddress  string `json:"userAddress"`
	Operation    string `json:"operation"`
	Status       uint64 `json:"status"`
	Protocol     string `json:"protocol"`
	Timestamp    int64  `json:"timestamp"`
}

type failedEnvelope struct {
	Event       string `json:"event"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Reason      string `json:"reason"`
	Status      uint64 `json:"status"`
	Timestamp   int64  `json:"timestamp"`
}

type replacedEnvelope struct {
	Event     string `json:"event"`
	OldTxHash string `json:"oldTxHash"`
	NewTxHash string `json:"newTxHash"`
	Status    uint64 `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// EmitPending implements the swap:pending envelope from spec.md §6.
func (c *Client) EmitPending(s mempool.PendingSwap) {
	c.emit(pendingEnvelope{
		Event:         "swap:pending",
		TxHash:        s.TxHash.Hex(),
		TokenAddress:  s.TokenAddress.Hex(),
		PoolAddress:   s.PoolAddress.Hex(),
		UserAddress:   s.UserAddress.Hex(),
		Operation:     string(s.Operation),
		Status:        "pending",
		Protocol:      string(s.Protocol),
		Timestamp:     time.Now().UnixMilli(),
		DetectionTime: s.DetectedAt.UnixMilli(),
	})
}

// EmitConfirmed implements spec.md §4.8's confirmed envelope fields.
func (c *Client) EmitConfirmed(s mempool.PendingSwap, blockNumber, gasUsed, status uint64) {
	c.emit(confirmedEnvelope{
		TxHash:       s.TxHash.Hex(),
		BlockNumber:  blockNumber,
		GasUsed:      gasUsed,
		TokenAddress: s.TokenAddress.Hex(),
		PoolAddress:  s.PoolAddress.Hex(),
		UserAddress:  s.UserAddress.Hex(),
		Operation:    string(s.Operation),
		Status:       status,
		Protocol:     string(s.Protocol),
		Timestamp:    time.Now().UnixMilli(),
	})
}

// EmitFailed implements the swap:failed envelope from spec.md §6.
func (c *Client) EmitFailed(s mempool.PendingSwap, blockNumber uint64, reason string, status uint64) {
	c.emit(failedEnvelope{
		Event:       "swap:failed",
		TxHash:      s.TxHash.Hex(),
		BlockNumber: blockNumber,
		Reason:      reason,
		Status:      status,
		Timestamp:   time.Now().UnixMilli(),
	})
}

// EmitReplaced implements the swap:replaced envelope from spec.md §6.
func (c *Client) EmitReplaced(s mempool.PendingSwap, newHash common.Hash, status uint64) {
	c.emit(replacedEnvelope{
		Event:     "swap:replaced",
		OldTxHash: s.TxHash.Hex(),
		NewTxHash: newHash.Hex(),
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	})
}
