package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ward-wallet/ward-wallet/internal/api"
	"github.com/ward-wallet/ward-wallet/internal/app"
	"github.com/ward-wallet/ward-wallet/internal/bus"
	"github.com/ward-wallet/ward-wallet/internal/chain"
	"github.com/ward-wallet/ward-wallet/internal/config"
	"github.com/ward-wallet/ward-wallet/internal/ledger"
	"github.com/ward-wallet/ward-wallet/internal/logger"
	"github.com/ward-wallet/ward-wallet/internal/middleware"
	"github.com/ward-wallet/ward-wallet/internal/policy"
	"github.com/ward-wallet/ward-wallet/internal/seedvault"
	"github.com/ward-wallet/ward-wallet/internal/session"
	"github.com/ward-wallet/ward-wallet/internal/storage"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// sessionSweepInterval controls how often expired sessions are evicted in
// bulk. Individual sessions are also evicted lazily on lookup.
const sessionSweepInterval = 5 * time.Minute

// recentActivities adapts the activity repository to the bus seeding
// interface.
type recentActivities struct {
	repo *storage.ActivityRepository
}

func (r *recentActivities) RecentActivities(ctx context.Context) ([]*types.ActivityRecord, error) {
	return r.repo.ListRecent(ctx, 100)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Initialize database
	store, err := storage.New(cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	slog.Info("connected to database")

	// Initialize the seed vault backend
	provider, err := seedvault.NewProvider(&seedvault.ProviderConfig{
		Provider:          cfg.VaultProvider,
		LocalMasterKeyHex: cfg.LocalMasterKeyHex,
		AWSKMSKeyID:       cfg.AWSKMSKeyID,
		AWSKMSRegion:      cfg.AWSKMSRegion,
		VaultAddress:      cfg.VaultAddress,
		VaultToken:        cfg.VaultToken,
		VaultTransitKey:   cfg.VaultTransitKeyName,
	})
	if err != nil {
		slog.Error("failed to initialize seed vault", "error", err)
		os.Exit(1)
	}
	vault := seedvault.New(provider)

	slog.Info("initialized seed vault", "provider", cfg.VaultProvider)

	// Initialize chain node clients
	ethClient, err := chain.NewEthClient(cfg.EthRPCURL)
	if err != nil {
		slog.Error("failed to connect to Ethereum node", "error", err)
		os.Exit(1)
	}
	solClient, err := chain.NewSolClient(cfg.SolanaRPCURL)
	if err != nil {
		slog.Error("failed to connect to Solana node", "error", err)
		os.Exit(1)
	}
	registry := chain.NewRegistry(ethClient, solClient)

	slog.Info("connected to chain nodes", "eth_chain_id", ethClient.ChainID())

	// Repositories
	walletRepo := storage.NewWalletRepository(store)
	shareRepo := storage.NewRecoveryShareRepository(store)
	activityRepo := storage.NewActivityRepository(store)
	policyRepo := storage.NewPolicyRepository(store)
	sessionRepo := storage.NewSessionRepository(store)

	sessions := session.NewStore(sessionRepo)
	spendLedger := ledger.New(activityRepo)
	policyEngine := policy.NewEngine()

	// Activity bus and pending-transaction watcher
	hub := bus.NewHub(&recentActivities{repo: activityRepo}, cfg.HeartbeatInterval, slog.Default())
	watcher := chain.NewWatcher(registry, activityRepo, hub, cfg.WatcherInterval, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)
	go sweepSessions(ctx, sessions)

	// Initialize application services
	walletService := app.NewWalletService(
		walletRepo, shareRepo, activityRepo, policyRepo,
		sessions, spendLedger, hub, registry,
		vault, policyEngine, ethClient.ChainID(),
	)

	// Initialize middleware
	sessionAuth := middleware.NewSessionAuth(sessions)
	guardianAuth := middleware.NewGuardianAuth(cfg.GuardianJWTSecret)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitEnabled)

	// Initialize API server
	server := api.NewServer(cfg, walletService, sessionAuth, guardianAuth, rateLimiter, hub.ServeWS)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Wait for either server error or shutdown signal
	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during shutdown", "error", err)
			slog.Warn("forcing shutdown")
		}

		slog.Info("server stopped")
	}
}

func sweepSessions(ctx context.Context, sessions *session.Store) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted, err := sessions.EvictExpired(ctx)
			if err != nil {
				slog.Warn("session sweep failed", "error", err)
				continue
			}
			if evicted > 0 {
				slog.Info("evicted expired sessions", "count", evicted)
			}
		}
	}
}
