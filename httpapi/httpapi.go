// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package httpapi is the minimal net/http binding demonstrating the
// spec.md §6 REST surface mapped 1:1 onto coordinator.Coordinator
// methods. Routing, validation, and rate limiting of any real
// complexity are explicitly out of scope per spec.md §1 — this exists
// only so cmd/pricefanout has something to serve.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/log"

	"github.com/luxfi/pricefanout/coordinator"
)

var errInvalidAddress = errors.New("httpapi: invalid or missing address")

// Handler wires the coordinator's REST-mapped operations to plain
// net/http routes.
type Handler struct {
	coord        *coordinator.Coordinator
	log          log.Logger
	showInternal bool // !IsProduction — per spec.md §6 "NODE_ENV gating stack traces"
	mux          *http.ServeMux
}

// New builds an http.Handler serving the spec.md §6 REST surface under
// /api/, delegating the WebSocket upgrade at /ws to coord.Hub() and
// metrics at /metrics to the caller (mounted separately, see
// cmd/pricefanout/main.go).
func New(coord *coordinator.Coordinator, showInternal bool, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.Root()
	}
	h := &Handler{coord: coord, log: logger, showInternal: showInternal, mux: http.NewServeMux()}
	h.routes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.mux.ServeHTTP(w, r) }

func (h *Handler) routes() {
	h.mux.HandleFunc("/api/tokens/add", h.handleAddToken)
	h.mux.HandleFunc("/api/tokens/add-dynamic", h.handleAddDynamicTokens)
	h.mux.HandleFunc("/api/tokens/remove-dynamic", h.handleRemoveDynamicToken)
	h.mux.HandleFunc("/api/listeners/start", h.handleStartSwapListener)
	h.mux.HandleFunc("/api/listeners/stop", h.handleStopSwapListener)
	h.mux.HandleFunc("/api/listeners/get", h.handleGetSwapListener)
	h.mux.HandleFunc("/api/listeners", h.handleGetActiveSwapListeners)
	h.mux.HandleFunc("/api/prices/get", h.handleGetTokenPrice)
	h.mux.HandleFunc("/api/prices", h.handleGetCachedPrices)
	h.mux.HandleFunc("/api/tokens", h.handleGetMonitoredTokens)
	h.mux.HandleFunc("/api/metrics", h.handleGetMetrics)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("httpapi: response encode failed", "err", err)
	}
}

// writeError implements spec.md §6's NODE_ENV gate: production hides
// the underlying error text behind a fixed message.
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	message := "internal error"
	if h.showInternal {
		message = err.Error()
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}

func parseAddress(s string) (common.Address, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func (h *Handler) addressParam(r *http.Request) (common.Address, bool) {
	return parseAddress(r.URL.Query().Get("address"))
}
