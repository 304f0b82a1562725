// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config builds the service's runtime configuration from flags
// and environment variables, per spec.md §6 "Configuration", following
// the teacher's BuildFlagSet/BuildViper/BuildConfig layering (see
// cmd/simulator's config package).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag keys, mirroring the teacher's *Key constant convention.
const (
	NodeWSSURLKey       = "node-wss-url"
	ListenPortKey        = "listen-port"
	DownstreamURLKey     = "downstream-url"
	DownstreamPathKey    = "downstream-path"
	NodeEnvKey           = "node-env"
	BNBRefreshIntervalKey = "bnb-refresh-interval"
	AgentCacheTTLKey     = "agent-cache-ttl"
	PriceThresholdKey    = "price-update-threshold"
	MaxReconnectKey      = "max-reconnect-attempts"
)

// BuildFlagSet declares the service's command-line flags, mirroring
// spec.md §6 "Environment inputs: node WSS URL (required), listen
// port, optional downstream consumer URL and path, optional NODE_ENV."
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("pricefanout", pflag.ContinueOnError)

	fs.String(NodeWSSURLKey, "", "WebSocket JSON-RPC URL of the upstream EVM node (required)")
	fs.Int(ListenPortKey, 8080, "port the client-facing WebSocket/REST surface listens on")
	fs.String(DownstreamURLKey, "", "optional downstream confirmation-consumer WebSocket URL")
	fs.String(DownstreamPathKey, "", "optional downstream consumer path")
	fs.String(NodeEnvKey, "production", "deployment environment; gates stack traces in error responses")
	fs.Duration(BNBRefreshIntervalKey, 60*time.Second, "BNB/USD reference refresh interval")
	fs.Duration(AgentCacheTTLKey, 10*time.Second, "agent-token price cache TTL")
	fs.Float64(PriceThresholdKey, 0.001, "relative price delta required to broadcast a price-update")
	fs.Int(MaxReconnectKey, 10, "bounded reconnect attempts to the upstream node")

	return fs
}

// BuildViper layers environment variables over parsed flags, per the
// teacher's config.BuildViper idiom: flags take precedence, then
// PRICEFANOUT_-prefixed environment variables, then defaults.
func BuildViper(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("pricefanout")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	return v, nil
}

// Config is the fully resolved runtime configuration.
type Config struct {
	NodeWSSURL          string
	ListenPort           int
	DownstreamURL        string
	DownstreamPath       string
	NodeEnv              string
	BNBRefreshInterval   time.Duration
	AgentCacheTTL        time.Duration
	PriceUpdateThreshold float64
	MaxReconnectAttempts int
}

// BuildConfig validates and materializes a Config from a populated
// viper instance.
func BuildConfig(v *viper.Viper) (Config, error) {
	nodeURL := cast.ToString(v.Get(NodeWSSURLKey))
	if nodeURL == "" {
		return Config{}, fmt.Errorf("config: %s is required", NodeWSSURLKey)
	}

	return Config{
		NodeWSSURL:           nodeURL,
		ListenPort:           cast.ToInt(v.Get(ListenPortKey)),
		DownstreamURL:        cast.ToString(v.Get(DownstreamURLKey)),
		DownstreamPath:       cast.ToString(v.Get(DownstreamPathKey)),
		NodeEnv:              cast.ToString(v.Get(NodeEnvKey)),
		BNBRefreshInterval:   cast.ToDuration(v.Get(BNBRefreshIntervalKey)),
		AgentCacheTTL:        cast.ToDuration(v.Get(AgentCacheTTLKey)),
		PriceUpdateThreshold: cast.ToFloat64(v.Get(PriceThresholdKey)),
		MaxReconnectAttempts: cast.ToInt(v.Get(MaxReconnectKey)),
	}, nil
}

// IsProduction reports whether stack traces should be withheld from
// error responses, per spec.md §6 "NODE_ENV gating stack traces in
// error responses."
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.NodeEnv, "production")
}
