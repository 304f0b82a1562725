// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/luxfi/pricefanout/coordinator"
)

// handleAddToken implements spec.md §6's `addToken(addr) -> TokenPrice
// | null`.
func (h *Handler) handleAddToken(w http.ResponseWriter, r *http.Request) {
	token, ok := h.addressParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	tp, err := h.coord.AddToken(token)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tp)
}

type tokenSpecPayload struct {
	Specs []coordinator.TokenSpec `json:"specs"`
}

// handleAddDynamicTokens implements spec.md §6's `addDynamicTokens`.
func (h *Handler) handleAddDynamicTokens(w http.ResponseWriter, r *http.Request) {
	var payload tokenSpecPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	results := h.coord.AddDynamicTokens(payload.Specs)
	h.writeJSON(w, http.StatusOK, results)
}

// handleRemoveDynamicToken implements spec.md §6's `removeDynamicToken`.
func (h *Handler) handleRemoveDynamicToken(w http.ResponseWriter, r *http.Request) {
	token, ok := h.addressParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"removed": h.coord.RemoveDynamicToken(token)})
}

type startListenerPayload struct {
	TokenAddress string `json:"tokenAddress"`
	PoolAddress  string `json:"poolAddress"`
	Protocol     string `json:"protocol"`
	PairType     string `json:"pairType"`
	UserAddress  string `json:"userAddress"`
}

// handleStartSwapListener implements spec.md §6's `startSwapListener`.
func (h *Handler) handleStartSwapListener(w http.ResponseWriter, r *http.Request) {
	var payload startListenerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	token, ok := parseAddress(payload.TokenAddress)
	if !ok {
		h.writeError(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	pool, ok := parseAddress(payload.PoolAddress)
	if !ok {
		h.writeError(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	user, _ := parseAddress(payload.UserAddress) // zero address means "no filter"

	listener, err := h.coord.StartSwapListener(r.Context(), token, pool, payload.Protocol, payload.PairType, user)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listener)
}

// handleStopSwapListener implements spec.md §6's `stopSwapListener`.
func (h *Handler) handleStopSwapListener(w http.ResponseWriter, r *http.Request) {
	token, ok := h.addressParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"stopped": h.coord.StopSwapListener(token)})
}

// handleGetSwapListener implements spec.md §6's `getSwapListener`.
func (h *Handler) handleGetSwapListener(w http.ResponseWriter, r *http.Request) {
	token, ok := h.addressParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	listener, ok := h.coord.GetSwapListener(token)
	if !ok {
		h.writeJSON(w, http.StatusOK, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, listener)
}

// handleGetActiveSwapListeners implements spec.md §6's
// `getActiveSwapListeners`.
func (h *Handler) handleGetActiveSwapListeners(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coord.GetActiveSwapListeners())
}

// handleGetTokenPrice implements spec.md §6's `getTokenPrice`.
func (h *Handler) handleGetTokenPrice(w http.ResponseWriter, r *http.Request) {
	token, ok := h.addressParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	tp, ok := h.coord.GetTokenPrice(token)
	if !ok {
		h.writeJSON(w, http.StatusOK, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, tp)
}

// handleGetCachedPrices implements spec.md §6's `getCachedPrices`.
func (h *Handler) handleGetCachedPrices(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coord.GetCachedPrices())
}

// handleGetMonitoredTokens implements spec.md §6's `getMonitoredTokens`.
func (h *Handler) handleGetMonitoredTokens(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coord.GetMonitoredTokens())
}

// handleGetMetrics implements spec.md §6's `getMetrics`.
func (h *Handler) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coord.GetMetrics())
}
