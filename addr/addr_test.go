// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package addr

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestKeyIsAlwaysLowercase(t *testing.T) {
	mixed := common.HexToAddress("0xAbCd000000000000000000000000000000001234")
	k := Key(mixed)
	require.Equal(t, k, KeyString(k))
	require.NotContains(t, k, "A")
	require.NotContains(t, k, "B")
}

func TestKeyStableAcrossCaseVariants(t *testing.T) {
	a := common.HexToAddress("0x000000000000000000000000000000000000aBcD")
	b := common.HexToAddress("0x000000000000000000000000000000000000ABCD")
	require.Equal(t, Key(a), Key(b))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, ok := Parse("not-an-address")
	require.False(t, ok)

	got, ok := Parse("0x000000000000000000000000000000000000dEaD")
	require.True(t, ok)
	require.Equal(t, "0x000000000000000000000000000000000000dead", Key(got))
}

func TestListenerKeyAndRoom(t *testing.T) {
	pool := common.HexToAddress("0x0000000000000000000000000000000000AAAA")
	token := common.HexToAddress("0x0000000000000000000000000000000000BBBB")
	require.Equal(t, "0x000000000000000000000000000000000000aaaa|0x000000000000000000000000000000000000bbbb", ListenerKey(pool, token))
	require.Equal(t, "token:0x000000000000000000000000000000000000bbbb", Room(token))
}
