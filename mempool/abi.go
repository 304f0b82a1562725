// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// selectorOf computes the 4-byte function selector for a canonical
// Solidity signature, the same derivation go-ethereum's abi.Method
// uses internally (keccak256(signature)[:4]).
func selectorOf(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
