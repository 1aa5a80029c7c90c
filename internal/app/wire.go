package app

import (
	"context"
	"fmt"
	"log/slog"

	"agreex/internal/chains"
	"agreex/internal/config"
	"agreex/internal/dex"
	"agreex/internal/escrow"
	"agreex/internal/idempotency"
	"agreex/internal/okxauth"
	"agreex/internal/verification"
)

// Chains returns the registry from CHAINS_FILE, or the built-in table.
func Chains(cfg *config.AppConfig) (*chains.Registry, error) {
	if cfg.Service.ChainsFile == "" {
		return chains.Default(), nil
	}
	registry, err := chains.LoadFile(cfg.Service.ChainsFile)
	if err != nil {
		return nil, fmt.Errorf("load chains file: %w", err)
	}
	return registry, nil
}

// DEX picks the aggregator client once: simulated payloads or the signed
// HTTP client. Nothing downstream branches on the mode again.
func DEX(cfg *config.AppConfig) (dex.Client, error) {
	if cfg.OKX.Simulate {
		return dex.SimulatedClient{MilestoneState: cfg.OKX.MilestoneStatus}, nil
	}
	client, err := dex.NewHTTPClient(dex.HTTPClientConfig{
		BaseURL: cfg.OKX.BaseURL,
		Timeout: cfg.OKX.Timeout,
		Signer: &okxauth.Signer{
			APIKey:     cfg.OKX.APIKey,
			SecretKey:  cfg.OKX.SecretKey,
			Passphrase: cfg.OKX.Passphrase,
			ProjectID:  cfg.OKX.ProjectID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dex client: %w", err)
	}
	return client, nil
}

// Verifier builds the verification orchestrator. Block stamps are always the
// placeholder heights, in live mode too: verification never reads a chain.
func Verifier(registry *chains.Registry, logger *slog.Logger) *verification.Verifier {
	v := verification.NewVerifier(registry, chains.SimulatedBlocks{})
	v.Logger = logger
	return v
}

// ContractStore returns Postgres when CONTRACT_STORE_DSN is set, memory otherwise.
func ContractStore(ctx context.Context, cfg *config.AppConfig) (escrow.Store, func(), error) {
	if cfg.Storage.ContractDSN == "" {
		return escrow.NewMemoryStore(), func() {}, nil
	}
	store, err := escrow.NewPostgresStore(ctx, cfg.Storage.ContractDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("contract store: %w", err)
	}
	return store, store.Close, nil
}

// ReplayStore returns Postgres when IDEMPOTENCY_DSN is set, memory otherwise.
func ReplayStore(ctx context.Context, cfg *config.AppConfig) (idempotency.Store, func(), error) {
	if cfg.Storage.IdempotencyDSN == "" {
		return idempotency.NewMemoryStore(), func() {}, nil
	}
	store, err := idempotency.NewPostgresStore(ctx, cfg.Storage.IdempotencyDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("idempotency store: %w", err)
	}
	return store, store.Close, nil
}
