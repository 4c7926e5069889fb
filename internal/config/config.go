// Package config loads the service's environment-driven configuration,
// following the teacher's internal/config.LoadGuardsConfig pattern (YAML
// file, now layered with environment overrides per spec §6 "Environment
// configuration").
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PersistenceProfile gates startup guardrails (spec §5 "Profile guardrails").
type PersistenceProfile string

const (
	ProfileLocal      PersistenceProfile = "LOCAL"
	ProfileProduction PersistenceProfile = "PRODUCTION"
)

// StoreBackend selects the supportability/policy store adapter.
type StoreBackend string

const (
	BackendInMemory StoreBackend = "IN_MEMORY"
	BackendSQLite   StoreBackend = "SQLITE"
	BackendPostgres StoreBackend = "POSTGRES"
)

// AsyncExecutionMode selects how async operations are advanced.
type AsyncExecutionMode string

const (
	AsyncInline      AsyncExecutionMode = "INLINE"
	AsyncAcceptOnly  AsyncExecutionMode = "ACCEPT_ONLY"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	PersistenceProfile PersistenceProfile

	SupportabilityBackend      StoreBackend
	SupportabilityPostgresDSN  string
	SupportabilitySQLitePath   string
	SupportabilityRetentionDays int

	IdempotencyReplayEnabled bool
	IdempotencyCacheMaxSize  int
	IdempotencyCacheBackend  string
	IdempotencyRedisAddr     string

	AsyncOperationsEnabled       bool
	AsyncOperationsTTLSeconds    int
	AsyncExecutionMode           AsyncExecutionMode
	AsyncManualExecutionEnabled  bool

	SupportAPIsEnabled            bool
	SupportabilitySummaryAPIs     bool
	LineageAPIsEnabled            bool
	IdempotencyHistoryAPIsEnabled bool

	WorkflowEnabled                     bool
	WorkflowRequiresReviewForStatuses   []string

	PolicyPacksEnabled               bool
	DefaultPolicyPackID              string
	PolicyPackCatalogBackend         string
	PolicyPackCatalogJSON            string
	TenantPolicyPackResolutionEnabled bool
	TenantPolicyPackMapJSON           string

	ProposalStoreBackend                   string
	ProposalPostgresDSN                    string
	ProposalWorkflowLifecycleEnabled       bool
	ProposalStoreEvidenceBundle            bool
	ProposalRequireExpectedState           bool
	ProposalAllowPortfolioChangeOnNewVersion bool
	ProposalRequireSimulationFlag          bool
}

// Default returns the documented defaults (spec §6), before environment
// overrides are applied.
func Default() Config {
	return Config{
		PersistenceProfile: ProfileLocal,

		SupportabilityBackend:       BackendInMemory,
		SupportabilityRetentionDays: 365,

		IdempotencyReplayEnabled: true,
		IdempotencyCacheMaxSize:  1000,
		IdempotencyCacheBackend:  "LRU",

		AsyncOperationsEnabled:      true,
		AsyncOperationsTTLSeconds:   86400,
		AsyncExecutionMode:          AsyncInline,
		AsyncManualExecutionEnabled: true,

		SupportAPIsEnabled:            true,
		SupportabilitySummaryAPIs:     true,
		LineageAPIsEnabled:            true,
		IdempotencyHistoryAPIsEnabled: true,

		WorkflowEnabled:                   false,
		WorkflowRequiresReviewForStatuses: []string{"PENDING_REVIEW"},

		PolicyPacksEnabled:                false,
		TenantPolicyPackResolutionEnabled: false,

		ProposalStoreBackend:             "IN_MEMORY",
		ProposalWorkflowLifecycleEnabled: true,
		ProposalStoreEvidenceBundle:      true,
		ProposalRequireExpectedState:     true,
		ProposalRequireSimulationFlag:    true,
	}
}

// LoadFromEnv starts from Default() and layers the recognized
// DPM_*/APP_*/PROPOSAL_* environment variables (spec §6) on top. A YAML
// base file may optionally be provided first via path; env vars always win.
func LoadFromEnv(yamlPath string) (Config, error) {
	cfg := Default()
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := os.Getenv("APP_PERSISTENCE_PROFILE"); v != "" {
		cfg.PersistenceProfile = PersistenceProfile(v)
	}
	if v := os.Getenv("DPM_SUPPORTABILITY_STORE_BACKEND"); v != "" {
		cfg.SupportabilityBackend = StoreBackend(v)
	}
	if v := os.Getenv("DPM_SUPPORTABILITY_POSTGRES_DSN"); v != "" {
		cfg.SupportabilityPostgresDSN = v
	}
	if v := os.Getenv("DPM_SUPPORTABILITY_SQLITE_PATH"); v != "" {
		cfg.SupportabilitySQLitePath = v
	}
	if v := os.Getenv("DPM_SUPPORTABILITY_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SupportabilityRetentionDays = n
		}
	}
	if v := os.Getenv("DPM_IDEMPOTENCY_REPLAY_ENABLED"); v != "" {
		cfg.IdempotencyReplayEnabled = parseBool(v, cfg.IdempotencyReplayEnabled)
	}
	if v := os.Getenv("DPM_IDEMPOTENCY_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IdempotencyCacheMaxSize = n
		}
	}
	if v := os.Getenv("DPM_IDEMPOTENCY_CACHE_BACKEND"); v != "" {
		cfg.IdempotencyCacheBackend = v
	}
	if v := os.Getenv("DPM_IDEMPOTENCY_REDIS_ADDR"); v != "" {
		cfg.IdempotencyRedisAddr = v
	}
	if v := os.Getenv("DPM_ASYNC_OPERATIONS_ENABLED"); v != "" {
		cfg.AsyncOperationsEnabled = parseBool(v, cfg.AsyncOperationsEnabled)
	}
	if v := os.Getenv("DPM_ASYNC_OPERATIONS_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AsyncOperationsTTLSeconds = n
		}
	}
	if v := os.Getenv("DPM_ASYNC_EXECUTION_MODE"); v != "" {
		mode := AsyncExecutionMode(v)
		if mode != AsyncInline && mode != AsyncAcceptOnly {
			mode = AsyncInline // spec §4.14: invalid mode falls back to INLINE
		}
		cfg.AsyncExecutionMode = mode
	}
	if v := os.Getenv("DPM_ASYNC_MANUAL_EXECUTION_ENABLED"); v != "" {
		cfg.AsyncManualExecutionEnabled = parseBool(v, cfg.AsyncManualExecutionEnabled)
	}
	if v := os.Getenv("DPM_SUPPORT_APIS_ENABLED"); v != "" {
		cfg.SupportAPIsEnabled = parseBool(v, cfg.SupportAPIsEnabled)
	}
	if v := os.Getenv("DPM_SUPPORTABILITY_SUMMARY_APIS_ENABLED"); v != "" {
		cfg.SupportabilitySummaryAPIs = parseBool(v, cfg.SupportabilitySummaryAPIs)
	}
	if v := os.Getenv("DPM_LINEAGE_APIS_ENABLED"); v != "" {
		cfg.LineageAPIsEnabled = parseBool(v, cfg.LineageAPIsEnabled)
	}
	if v := os.Getenv("DPM_IDEMPOTENCY_HISTORY_APIS_ENABLED"); v != "" {
		cfg.IdempotencyHistoryAPIsEnabled = parseBool(v, cfg.IdempotencyHistoryAPIsEnabled)
	}
	if v := os.Getenv("DPM_WORKFLOW_ENABLED"); v != "" {
		cfg.WorkflowEnabled = parseBool(v, cfg.WorkflowEnabled)
	}
	if v := os.Getenv("DPM_WORKFLOW_REQUIRES_REVIEW_FOR_STATUSES"); v != "" {
		cfg.WorkflowRequiresReviewForStatuses = splitCSV(v)
	}
	if v := os.Getenv("DPM_POLICY_PACKS_ENABLED"); v != "" {
		cfg.PolicyPacksEnabled = parseBool(v, cfg.PolicyPacksEnabled)
	}
	if v := os.Getenv("DPM_DEFAULT_POLICY_PACK_ID"); v != "" {
		cfg.DefaultPolicyPackID = v
	}
	if v := os.Getenv("DPM_POLICY_PACK_CATALOG_BACKEND"); v != "" {
		cfg.PolicyPackCatalogBackend = v
	}
	if v := os.Getenv("DPM_POLICY_PACK_CATALOG_JSON"); v != "" {
		cfg.PolicyPackCatalogJSON = v
	}
	if v := os.Getenv("DPM_TENANT_POLICY_PACK_RESOLUTION_ENABLED"); v != "" {
		cfg.TenantPolicyPackResolutionEnabled = parseBool(v, cfg.TenantPolicyPackResolutionEnabled)
	}
	if v := os.Getenv("DPM_TENANT_POLICY_PACK_MAP_JSON"); v != "" {
		cfg.TenantPolicyPackMapJSON = v
	}
	if v := os.Getenv("PROPOSAL_STORE_BACKEND"); v != "" {
		cfg.ProposalStoreBackend = v
	}
	if v := os.Getenv("PROPOSAL_POSTGRES_DSN"); v != "" {
		cfg.ProposalPostgresDSN = v
	}
	if v := os.Getenv("PROPOSAL_WORKFLOW_LIFECYCLE_ENABLED"); v != "" {
		cfg.ProposalWorkflowLifecycleEnabled = parseBool(v, cfg.ProposalWorkflowLifecycleEnabled)
	}
	if v := os.Getenv("PROPOSAL_STORE_EVIDENCE_BUNDLE"); v != "" {
		cfg.ProposalStoreEvidenceBundle = parseBool(v, cfg.ProposalStoreEvidenceBundle)
	}
	if v := os.Getenv("PROPOSAL_REQUIRE_EXPECTED_STATE"); v != "" {
		cfg.ProposalRequireExpectedState = parseBool(v, cfg.ProposalRequireExpectedState)
	}
	if v := os.Getenv("PROPOSAL_ALLOW_PORTFOLIO_CHANGE_ON_NEW_VERSION"); v != "" {
		cfg.ProposalAllowPortfolioChangeOnNewVersion = parseBool(v, cfg.ProposalAllowPortfolioChangeOnNewVersion)
	}
	if v := os.Getenv("PROPOSAL_REQUIRE_SIMULATION_FLAG"); v != "" {
		cfg.ProposalRequireSimulationFlag = parseBool(v, cfg.ProposalRequireSimulationFlag)
	}

	return cfg, nil
}

// Validate enforces the production guardrails of spec §5 "Profile
// guardrails", returning the exact reason-code strings a failed startup
// should exit with.
func (c Config) Validate() []string {
	var reasons []string
	if c.PersistenceProfile != ProfileProduction {
		return reasons
	}
	if c.SupportabilityBackend != BackendPostgres {
		reasons = append(reasons, "PERSISTENCE_PROFILE_REQUIRES_DPM_POSTGRES")
	} else if c.SupportabilityPostgresDSN == "" {
		reasons = append(reasons, "PERSISTENCE_PROFILE_REQUIRES_DPM_POSTGRES_DSN")
	}
	if c.ProposalStoreBackend != "POSTGRES" {
		reasons = append(reasons, "PERSISTENCE_PROFILE_REQUIRES_ADVISORY_POSTGRES")
	} else if c.ProposalPostgresDSN == "" {
		reasons = append(reasons, "PERSISTENCE_PROFILE_REQUIRES_ADVISORY_POSTGRES_DSN")
	}
	if c.PolicyPacksEnabled {
		if c.PolicyPackCatalogBackend != "POSTGRES" {
			reasons = append(reasons, "PERSISTENCE_PROFILE_REQUIRES_POLICY_PACK_POSTGRES")
		}
	}
	return reasons
}

// AsyncTTL returns the async operation TTL as a time.Duration.
func (c Config) AsyncTTL() time.Duration {
	return time.Duration(c.AsyncOperationsTTLSeconds) * time.Second
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
