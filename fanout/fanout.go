// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fanout implements the pub/sub WebSocket layer clients
// connect to, per spec.md §4.7 and §6 "Inbound client protocol".
package fanout

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/luxfi/log"

	"github.com/luxfi/pricefanout/addr"
	"github.com/luxfi/pricefanout/priceengine"
)

const (
	heartbeatInterval = 30 * time.Second
	staleReapInterval = 30 * time.Second
	staleThreshold    = 60 * time.Second

	writeWait = 10 * time.Second
	pongWait  = 90 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Registry is the token-lifecycle and price-cache surface the hub needs.
// It is implemented by coordinator.Coordinator; declaring it here keeps
// fanout from importing the coordinator or listenerregistry packages.
type Registry interface {
	AddToken(tokenAddr common.Address) (*priceengine.TokenPrice, error)
	RemoveToken(tokenAddr common.Address) bool
	CachedPrice(tokenAddr common.Address) (priceengine.TokenPrice, bool)
	GetCachedPrices() []priceengine.TokenPrice
}

// ClientSession is one connected WebSocket client, per spec.md §4.7
// "Client session table keyed by session id."
type ClientSession struct {
	ID   string
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	rooms      map[string]bool
	lastPing   time.Time
	closedOnce sync.Once
}

// Hub owns the client session table and room membership, per spec.md
// §4.7.
type Hub struct {
	log      log.Logger
	registry Registry
	metrics  MetricsSink
	start    time.Time

	mu       sync.RWMutex
	sessions map[string]*ClientSession
	rooms    map[string]map[string]*ClientSession // room -> session id -> session
}

// MetricsSink is the minimal metrics surface the hub touches.
type MetricsSink interface {
	IncCounter(name string)
	Snapshot() map[string]uint64
}

// New constructs a Hub.
func New(registry Registry, metrics MetricsSink, logger log.Logger) *Hub {
	if logger == nil {
		logger = log.Root()
	}
	return &Hub{
		log:      logger,
		registry: registry,
		metrics:  metrics,
		start:    time.Now(),
		sessions: make(map[string]*ClientSession),
		rooms:    make(map[string]map[string]*ClientSession),
	}
}

// ServeHTTP upgrades a request to a WebSocket session and runs its
// read/write pumps until disconnect.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("fanout: upgrade failed", "err", err)
		return
	}

	session := &ClientSession{
		ID:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, 64),
		rooms:    make(map[string]bool),
		lastPing: time.Now(),
	}

	h.mu.Lock()
	h.sessions[session.ID] = session
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncCounter("wsConnections")
	}

	h.sendWelcome(session)

	go h.writePump(session)
	h.readPump(session)
}

func (h *Hub) sendWelcome(s *ClientSession) {
	h.sendTo(s, envelope{
		Type: "welcome",
		Payload: welcomeMessage{
			Message:  "connected",
			SocketID: s.ID,
			Service:  "pricefanout",
			Features: features{
				V2Support:          true,
				V3Support:          true,
				PancakeswapSupport: true,
				MultiPoolSupport:   true,
				DynamicBNBPrice:    true,
				Caching:            true,
				MetricsTracking:    true,
				BuySellDetection:   true,
			},
		},
	})
}

func (h *Hub) readPump(s *ClientSession) {
	defer h.disconnect(s)

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(s, data)
	}
}

func (h *Hub) writePump(s *ClientSession) {
	ticker := time.NewTicker(writeWait)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleMessage(s *ClientSession, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(s, "malformed message")
		return
	}

	switch msg.Type {
	case "subscribe":
		h.handleSubscribe(s, msg.TokenAddress)
	case "unsubscribe":
		h.handleUnsubscribe(s, msg.TokenAddress)
	case "ping":
		s.mu.Lock()
		s.lastPing = time.Now()
		s.mu.Unlock()
		h.sendTo(s, envelope{Type: "pong", Payload: pongMessage{Time: time.Now().UnixMilli()}})
	case "get-all-prices":
		h.handleGetAllPrices(s)
	default:
		h.sendError(s, "unknown message type")
	}
}

func (h *Hub) handleSubscribe(s *ClientSession, tokenAddr string) {
	token, ok := addr.Parse(tokenAddr)
	if !ok {
		h.sendError(s, "invalid token address")
		return
	}
	room := addr.Room(token)

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*ClientSession)
	}
	h.rooms[room][s.ID] = s
	h.mu.Unlock()

	s.mu.Lock()
	s.rooms[room] = true
	s.mu.Unlock()

	tp, err := h.registry.AddToken(token)
	var current *priceengine.TokenPrice
	if err == nil {
		current = tp
	}

	h.sendTo(s, envelope{Type: "subscribed", Payload: subscribedMessage{
		TokenAddress: addr.Key(token),
		CurrentPrice: current,
		Room:         room,
	}})
}

func (h *Hub) handleUnsubscribe(s *ClientSession, tokenAddr string) {
	token, ok := addr.Parse(tokenAddr)
	if !ok {
		h.sendError(s, "invalid token address")
		return
	}
	room := addr.Room(token)

	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	empty := len(h.rooms[room]) == 0
	h.mu.Unlock()

	s.mu.Lock()
	delete(s.rooms, room)
	s.mu.Unlock()

	if empty {
		h.registry.RemoveToken(token)
	}

	h.sendTo(s, envelope{Type: "unsubscribed", Payload: unsubscribedMessage{TokenAddress: addr.Key(token)}})
}

// handleGetAllPrices answers spec.md §6's "get-all-prices" with every
// monitored token's cached price, not just the ones this session has
// subscribed to — the message is named "all", not "my", and spec.md §6
// lists all-prices{prices[]} as the flat, non-session-scoped array also
// returned by the REST getCachedPrices operation.
func (h *Hub) handleGetAllPrices(s *ClientSession) {
	h.sendTo(s, envelope{Type: "all-prices", Payload: allPricesMessage{Prices: h.registry.GetCachedPrices()}})
}

func (h *Hub) sendError(s *ClientSession, message string) {
	h.sendTo(s, envelope{Type: "error", Payload: errorMessage{Message: message}})
}

func (h *Hub) sendTo(s *ClientSession, e envelope) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	default:
		h.log.Warn("fanout: session send buffer full, dropping message", "session", s.ID)
	}
}

func (h *Hub) disconnect(s *ClientSession) {
	s.closedOnce.Do(func() {
		h.mu.Lock()
		delete(h.sessions, s.ID)
		s.mu.Lock()
		for room := range s.rooms {
			if members, ok := h.rooms[room]; ok {
				delete(members, s.ID)
				if len(members) == 0 {
					delete(h.rooms, room)
				}
			}
		}
		s.mu.Unlock()
		h.mu.Unlock()

		close(s.send)
		s.conn.Close()
	})
}
