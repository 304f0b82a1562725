// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "github.com/ethereum/go-ethereum/common"

// Static configuration, per spec.md §6 "Static configuration:
// addresses of known stables and wrapped native, agent-token registry,
// BNB reference pool set, decimals/defaults." Addresses below are the
// canonical BSC mainnet deployments.

// WrappedNative is WBNB.
var WrappedNative = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")

// KnownStables maps the stablecoins this service treats as USD-pegged
// pair tokens to their on-chain addresses.
var KnownStables = map[string]common.Address{
	"USDT": common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"),
	"USDC": common.HexToAddress("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"),
	"BUSD": common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56"),
	"DAI":  common.HexToAddress("0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3"),
}

// DecimalsOverride seeds pooldecoder.DecimalsResolver's known map for
// addresses whose on-chain decimals() call is nonstandard or whose
// value is already well known, avoiding an RPC round trip.
var DecimalsOverride = map[common.Address]uint8{
	WrappedNative: 18,
}

// ReferencePoolAddress is one configured BNB/USD reference V3 pool
// address plus which side holds the stable, per spec.md §4.4 "BNB/USD
// reference."
type ReferencePoolAddress struct {
	Pool           common.Address
	StableIsToken0 bool
}

// BNBReferencePools is the configured list of reference V3 pools used
// to compute the BNB/USD price.
var BNBReferencePools = []ReferencePoolAddress{
	{Pool: common.HexToAddress("0x172fcD41E0913e95784454622d1c3724f546f849"), StableIsToken0: true}, // WBNB/USDT
	{Pool: common.HexToAddress("0x92b7807bF19b7DDdf89b706143896d05228f3121"), StableIsToken0: true}, // WBNB/USDC
}

// AgentTokenSeed describes one statically registered agent token
// before its PriceSources are wired up with live *pooldecoder.Pool
// instances by the coordinator.
type AgentTokenSeed struct {
	Symbol       string
	TokenAddress common.Address
}

// AgentTokenRegistry is the static seed list for agent tokens, per
// spec.md §4.4 "Agent tokens: A registry of tokens whose USD price is
// derived from multiple sources."
var AgentTokenRegistry = []AgentTokenSeed{}

// DefaultFallbackDecimals is used when a token's decimals() call fails
// and no override is configured.
const DefaultFallbackDecimals uint8 = 18
