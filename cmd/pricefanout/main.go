// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// pricefanout runs the real-time price and swap-event fan-out service:
// a persistent node WebSocket, the price engine, the listener registry,
// the mempool tracker, and the client-facing fan-out hub, per spec.md.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"

	"github.com/luxfi/pricefanout/chainclient"
	"github.com/luxfi/pricefanout/config"
	"github.com/luxfi/pricefanout/confirmclient"
	"github.com/luxfi/pricefanout/coordinator"
	"github.com/luxfi/pricefanout/httpapi"
	"github.com/luxfi/pricefanout/metrics"
	"github.com/luxfi/pricefanout/priceengine"
)

const clientIdentifier = "pricefanout"

var app = &cli.App{
	Name:  clientIdentifier,
	Usage: "real-time AMM price and swap-event fan-out service",
}

func init() {
	app.Action = run
	app.Before = func(_ *cli.Context) error {
		log.SetDefault(log.Root())
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(_ *cli.Context) error {
	fs := config.BuildFlagSet()
	v, err := config.BuildViper(fs, os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("couldn't build viper: %w", err)
	}

	cfg, err := config.BuildConfig(v)
	if err != nil {
		return err
	}

	logger := log.Root()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	chain, err := chainclient.Dial(ctx, chainclient.Config{
		URL:                  cfg.NodeWSSURL,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, logger)
	if err != nil {
		return fmt.Errorf("dial node: %w", err)
	}
	defer chain.Close()

	metricsReg := metrics.New()

	engine := priceengine.NewEngine(priceengine.Config{
		BNBRefreshInterval:   cfg.BNBRefreshInterval,
		AgentPriceCacheTTL:   cfg.AgentCacheTTL,
		PriceUpdateThreshold: cfg.PriceUpdateThreshold,
	}, nil, nil, metricsReg, logger)

	confirm := confirmclient.New(cfg.DownstreamURL, logger)
	confirm.Connect(ctx)

	coord := coordinator.New(chain, engine, metricsReg, confirm, logger)
	coord.ConfigureBNBReferencePools(config.BNBReferencePools)

	api := httpapi.New(coord, !cfg.IsProduction(), logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", coord.Hub())
	mux.Handle("/api/", api)
	mux.Handle("/metrics", promhttp.HandlerFor(metricsReg.Gatherer(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ListenPort),
		Handler: mux,
	}

	go coord.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.BNBRefreshInterval)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("pricefanout listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
