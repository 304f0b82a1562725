// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chainclient implements the persistent JSON-RPC-over-WebSocket
// transport to an EVM-compatible node, per spec.md §6 "Node transport".
// Request/response correlation follows the pendingRequests map pattern
// used by the teacher's network.Network for synchronous request/reply
// over an asynchronous transport.
package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"
)

var (
	ErrClosed        = fmt.Errorf("chainclient: closed")
	ErrMaxReconnects = fmt.Errorf("chainclient: max reconnect attempts exceeded")
)

// Config carries Client's dial and retry tunables.
type Config struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	DialTimeout          time.Duration
	RequestTimeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	return c
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	Method  string          `json:"method"` // present on subscription notifications
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type subscriptionParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// Client is a persistent WebSocket JSON-RPC client with subscription
// fan-out, per spec.md §6 "Node transport" and §5 "Reconnect is bounded
// by maxReconnectAttempts".
type Client struct {
	cfg Config
	log log.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
	closed bool

	nextID uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan rpcResponse

	subsMu sync.Mutex
	subs   map[string]chan json.RawMessage // subscription id -> notification channel

	reconnectAttempts int32
	reconnected       chan struct{}
}

// Dial connects to url and starts the read pump.
func Dial(ctx context.Context, cfg Config, logger log.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Root()
	}
	c := &Client{
		cfg:         cfg,
		log:         logger,
		pending:     make(map[uint64]chan rpcResponse),
		subs:        make(map[string]chan json.RawMessage),
		reconnected: make(chan struct{}, 1),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	go c.readPump()
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("chainclient: dial %s: %w", c.cfg.URL, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	atomic.StoreInt32(&c.reconnectAttempts, 0)
	return nil
}

// Call issues a synchronous JSON-RPC call and unmarshals the result
// into out (a pointer), if non-nil.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}

	id := atomic.AddUint64(&c.nextID, 1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: paramsJSON}

	replyCh := make(chan rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = replyCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.send(req); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	select {
	case resp, ok := <-replyCh:
		if !ok {
			return ErrClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		return json.Unmarshal(resp.Result, out)
	case <-callCtx.Done():
		return fmt.Errorf("chainclient: call %s timed out: %w", method, callCtx.Err())
	}
}

func (c *Client) send(req rpcRequest) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed || c.conn == nil {
		return ErrClosed
	}
	return c.conn.WriteJSON(req)
}

// Subscribe issues eth_subscribe and returns a channel of raw
// notification payloads plus the subscription id for unsubscribe.
func (c *Client) Subscribe(ctx context.Context, subType string, extra any) (string, <-chan json.RawMessage, error) {
	var params []any
	if extra != nil {
		params = []any{subType, extra}
	} else {
		params = []any{subType}
	}

	var subID string
	if err := c.Call(ctx, "eth_subscribe", params, &subID); err != nil {
		return "", nil, err
	}

	ch := make(chan json.RawMessage, 64)
	c.subsMu.Lock()
	c.subs[subID] = ch
	c.subsMu.Unlock()
	return subID, ch, nil
}

// Unsubscribe tears down a subscription's server side registration and
// closes its channel.
func (c *Client) Unsubscribe(ctx context.Context, subID string) error {
	var ok bool
	err := c.Call(ctx, "eth_unsubscribe", []any{subID}, &ok)

	c.subsMu.Lock()
	if ch, found := c.subs[subID]; found {
		close(ch)
		delete(c.subs, subID)
	}
	c.subsMu.Unlock()
	return err
}

func (c *Client) readPump() {
	for {
		c.connMu.Lock()
		conn := c.conn
		closed := c.closed
		c.connMu.Unlock()
		if closed {
			return
		}
		if conn == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn("chainclient: read error, reconnecting", "err", err)
			c.connMu.Lock()
			c.conn = nil
			c.connMu.Unlock()
			if !c.reconnect() {
				return
			}
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.Debug("chainclient: malformed frame", "err", err)
			continue
		}

		if resp.Method == "eth_subscription" {
			var sp subscriptionParams
			if err := json.Unmarshal(resp.Params, &sp); err == nil {
				c.subsMu.Lock()
				ch, ok := c.subs[sp.Subscription]
				c.subsMu.Unlock()
				if ok {
					select {
					case ch <- sp.Result:
					default:
						c.log.Warn("chainclient: subscription channel full, dropping notification", "subscription", sp.Subscription)
					}
				}
			}
			continue
		}

		c.pendingMu.Lock()
		replyCh, ok := c.pending[resp.ID]
		c.pendingMu.Unlock()
		if ok {
			replyCh <- resp
		}
	}
}

// reconnect performs a bounded, exponential-backoff reconnect. It
// returns false once maxReconnectAttempts is exceeded or the client
// has been closed, per spec.md §5 "Reconnect is bounded by
// maxReconnectAttempts".
func (c *Client) reconnect() bool {
	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		return false
	}
	c.connMu.Unlock()

	attempt := atomic.AddInt32(&c.reconnectAttempts, 1)
	if int(attempt) > c.cfg.MaxReconnectAttempts {
		c.log.Error("chainclient: exceeded max reconnect attempts, giving up", "attempts", attempt)
		return false
	}

	delay := c.cfg.ReconnectBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > c.cfg.ReconnectMaxDelay {
		delay = c.cfg.ReconnectMaxDelay
	}
	c.log.Warn("chainclient: reconnecting", "attempt", attempt, "delay", delay)
	time.Sleep(delay)

	if err := c.connect(context.Background()); err != nil {
		c.log.Warn("chainclient: reconnect attempt failed", "attempt", attempt, "err", err)
		return true // keep trying, caller loop will call reconnect again
	}
	c.log.Info("chainclient: reconnected")

	select {
	case c.reconnected <- struct{}{}:
	default:
	}
	return true
}

// Reconnected returns a channel that receives a notification each time
// the transport re-establishes its connection after a drop, per
// spec.md §4.1 "On transport close: set connected=false, notify
// registry to resubscribe." The channel is buffered 1 and coalesces
// back-to-back reconnects into a single pending notification — a
// caller only needs to know "has at least one reconnect happened since
// I last checked", not how many.
func (c *Client) Reconnected() <-chan struct{} {
	return c.reconnected
}

// Close shuts the client down, canceling all pending requests and
// subscriptions, per the teacher's Network.Shutdown pattern.
func (c *Client) Close() error {
	c.connMu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
