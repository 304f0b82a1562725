// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package addr provides the single normalization helper every
// address-keyed map in this module is required to use, so that
// checksummed and lowercase variants of the same address can never
// coexist as distinct keys (see spec.md §3 Invariants).
package addr

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Key returns the canonical lowercase-hex form of a, suitable for use as
// a map key. It is the only place in this module that should decide what
// "normalized" means for an address.
func Key(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// KeyString normalizes an arbitrary hex string the same way Key does,
// without requiring the caller to parse it into a common.Address first.
// Invalid input is lowercased as-is; callers that need validation should
// parse with common.HexToAddress and check IsValid first.
func KeyString(s string) string {
	return strings.ToLower(s)
}

// IsValid reports whether s parses as a 20-byte hex address.
func IsValid(s string) bool {
	return common.IsHexAddress(s)
}

// Parse normalizes and parses s into a common.Address, reporting false
// if s is not a well-formed address.
func Parse(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// ListenerKey builds the ListenerHandle registry key: lower(poolAddress)
// joined with lower(tokenAddress), per spec.md §3.
func ListenerKey(pool, token common.Address) string {
	return Key(pool) + "|" + Key(token)
}

// Room builds the fan-out room name for a token, per spec.md §6.
func Room(token common.Address) string {
	return "token:" + Key(token)
}
