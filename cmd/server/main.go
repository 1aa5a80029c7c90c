package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agreex/internal/app"
	"agreex/internal/config"
	"agreex/internal/escrow"
	"agreex/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	registry, err := app.Chains(cfg)
	if err != nil {
		log.Fatalf("chains error: %v", err)
	}

	dexClient, err := app.DEX(cfg)
	if err != nil {
		log.Fatalf("dex client error: %v", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	contracts, closeContracts, err := app.ContractStore(startCtx, cfg)
	if err != nil {
		cancelStart()
		log.Fatalf("contract store error: %v", err)
	}
	defer closeContracts()

	replay, closeReplay, err := app.ReplayStore(startCtx, cfg)
	cancelStart()
	if err != nil {
		log.Fatalf("idempotency store error: %v", err)
	}
	defer closeReplay()

	manager := escrow.NewManager(contracts, dexClient, registry)
	manager.Logger = logger

	verifier := app.Verifier(registry, logger)

	apiServer := server.NewServer(cfg, server.Dependencies{
		Chains:    registry,
		Escrow:    manager,
		Verifier:  verifier,
		DEX:       dexClient,
		Contracts: contracts,
		Replay:    replay,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(ctx)
}
