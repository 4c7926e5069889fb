package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/pipeline"
	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/proposal"
	proposalmemory "github.com/sgajbi/lotus-advise-sub000/internal/advisory/proposal/store/memory"
	proposalpostgres "github.com/sgajbi/lotus-advise-sub000/internal/advisory/proposal/store/postgres"
	"github.com/sgajbi/lotus-advise-sub000/internal/canonical"
	"github.com/sgajbi/lotus-advise-sub000/internal/config"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/orchestrator"
	"github.com/sgajbi/lotus-advise-sub000/internal/httpapi"
	"github.com/sgajbi/lotus-advise-sub000/internal/idgen"
	dpmlog "github.com/sgajbi/lotus-advise-sub000/internal/obs/log"
	"github.com/sgajbi/lotus-advise-sub000/internal/policy"
	policypostgres "github.com/sgajbi/lotus-advise-sub000/internal/policy/store/postgres"
	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
	"github.com/sgajbi/lotus-advise-sub000/internal/supportability/async"
	"github.com/sgajbi/lotus-advise-sub000/internal/supportability/idempotency"
	supportabilitymemory "github.com/sgajbi/lotus-advise-sub000/internal/supportability/store/memory"
	supportabilitypostgres "github.com/sgajbi/lotus-advise-sub000/internal/supportability/store/postgres"
	supportabilitysqlite "github.com/sgajbi/lotus-advise-sub000/internal/supportability/store/sqlite"
)

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the rebalance/advisory HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file layered under environment overrides")
	return cmd
}

func runServe(cfg config.Config) error {
	dpmlog.Init(term.IsTerminal(int(os.Stdout.Fd())), zerolog.InfoLevel)
	logger := dpmlog.Logger()

	if reasons := cfg.Validate(); len(reasons) > 0 {
		for _, r := range reasons {
			logger.Error().Str("reason", r).Msg("startup guardrail failed")
		}
		return fmt.Errorf("config validation failed: %v", reasons)
	}

	store, err := buildSupportabilityStore(cfg)
	if err != nil {
		return fmt.Errorf("build supportability store: %w", err)
	}

	catalog, err := buildPolicyCatalog(cfg)
	if err != nil {
		return fmt.Errorf("build policy catalog: %w", err)
	}

	proposalStore, err := buildProposalStore(cfg)
	if err != nil {
		return fmt.Errorf("build proposal store: %w", err)
	}

	idemService, err := buildIdempotencyService(cfg, store)
	if err != nil {
		return fmt.Errorf("build idempotency service: %w", err)
	}

	asyncManager := async.NewManager(store, cfg.AsyncTTL(), idgen.New)
	asyncManager.Register(supportability.OperationDPMRebalance, rebalanceExecutor)
	asyncManager.Register(supportability.OperationAdvisoryProposal, proposalExecutor)

	deps := httpapi.Dependencies{
		Config:        cfg,
		Store:         store,
		Idempotency:   idemService,
		Async:         asyncManager,
		PolicyCatalog: catalog,
		ProposalStore: proposalStore,
		Now:           time.Now,
	}
	server := httpapi.NewServer(httpapi.DefaultServerConfig(), deps)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go runSweepLoop(sweepCtx, asyncManager, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runSweepLoop periodically purges expired async operations, mirroring the
// Sweep method's own doc comment that a periodic caller should drive it.
func runSweepLoop(ctx context.Context, m *async.Manager, logger *zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := m.Sweep(ctx); err != nil {
				logger.Warn().Err(err).Msg("async sweep failed")
			} else if n > 0 {
				logger.Info().Int("purged", n).Msg("async sweep purged expired operations")
			}
		}
	}
}

func buildSupportabilityStore(cfg config.Config) (supportability.Store, error) {
	switch cfg.SupportabilityBackend {
	case config.BackendInMemory:
		return supportabilitymemory.New(), nil
	case config.BackendPostgres:
		db, err := sqlx.Connect("postgres", cfg.SupportabilityPostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect dpm postgres: %w", err)
		}
		return supportabilitypostgres.New(db), nil
	case config.BackendSQLite:
		if cfg.SupportabilitySQLitePath == "" {
			return nil, fmt.Errorf("DPM_SUPPORTABILITY_SQLITE_PATH is required for DPM_SUPPORTABILITY_STORE_BACKEND=SQLITE")
		}
		store, err := supportabilitysqlite.Open(cfg.SupportabilitySQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open dpm sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown DPM_SUPPORTABILITY_STORE_BACKEND %q", cfg.SupportabilityBackend)
	}
}

func buildProposalStore(cfg config.Config) (proposal.Store, error) {
	switch cfg.ProposalStoreBackend {
	case "IN_MEMORY", "":
		return proposalmemory.New(), nil
	case "POSTGRES":
		db, err := sqlx.Connect("postgres", cfg.ProposalPostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect proposals postgres: %w", err)
		}
		return proposalpostgres.New(db), nil
	default:
		return nil, fmt.Errorf("unknown PROPOSAL_STORE_BACKEND %q", cfg.ProposalStoreBackend)
	}
}

// buildPolicyCatalog resolves the effective Catalog per
// DPM_POLICY_PACK_CATALOG_BACKEND. Packs being disabled entirely still
// needs a non-nil Catalog, since policy.Resolve short-circuits on
// PacksEnabled before ever calling it; an empty Memory catalog is enough.
func buildPolicyCatalog(cfg config.Config) (policy.Catalog, error) {
	if !cfg.PolicyPacksEnabled {
		return policy.Memory{}, nil
	}
	switch cfg.PolicyPackCatalogBackend {
	case "POSTGRES":
		db, err := sqlx.Connect("postgres", cfg.SupportabilityPostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect policy postgres: %w", err)
		}
		return policypostgres.New(db), nil
	default:
		if cfg.PolicyPackCatalogJSON == "" {
			return policy.Memory{}, nil
		}
		return policy.ParseJSONCatalog([]byte(cfg.PolicyPackCatalogJSON))
	}
}

func buildIdempotencyService(cfg config.Config, store supportability.Store) (*idempotency.Service, error) {
	if cfg.IdempotencyCacheBackend == "REDIS" {
		client := redis.NewClient(&redis.Options{Addr: cfg.IdempotencyRedisAddr})
		redisCache := idempotency.NewRedisCache(client, cfg.AsyncTTL())
		return idempotency.NewServiceWithRedis(store, redisCache), nil
	}
	return idempotency.NewService(store, cfg.IdempotencyCacheMaxSize), nil
}

// rebalanceExecutor backs async DPM_REBALANCE operations (spec §4.14):
// request is an orchestrator.Request JSON body, identical to the synchronous
// /rebalance/simulate payload.
func rebalanceExecutor(ctx context.Context, request []byte) ([]byte, error) {
	var req orchestrator.Request
	if err := json.Unmarshal(request, &req); err != nil {
		return nil, fmt.Errorf("malformed rebalance request: %w", err)
	}
	requestHash, err := canonical.RequestHash(req)
	if err != nil {
		return nil, fmt.Errorf("canonicalize rebalance request: %w", err)
	}
	runID := idgen.Prefixed("run")
	result, err := orchestrator.Run(req, runID, "", requestHash, time.Now())
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// proposalExecutor backs async ADVISORY_PROPOSAL operations.
func proposalExecutor(ctx context.Context, request []byte) ([]byte, error) {
	var req pipeline.Request
	if err := json.Unmarshal(request, &req); err != nil {
		return nil, fmt.Errorf("malformed proposal request: %w", err)
	}
	requestHash, err := canonical.RequestHash(req)
	if err != nil {
		return nil, fmt.Errorf("canonicalize proposal request: %w", err)
	}
	runID := idgen.Prefixed("run")
	result := pipeline.Run(req, runID, "", requestHash, time.Now())
	return json.Marshal(result)
}
