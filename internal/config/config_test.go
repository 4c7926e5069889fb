package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchSpec(t *testing.T) {
	c := Default()
	require.Equal(t, ProfileLocal, c.PersistenceProfile)
	require.True(t, c.IdempotencyReplayEnabled)
	require.Equal(t, 1000, c.IdempotencyCacheMaxSize)
	require.Equal(t, 86400, c.AsyncOperationsTTLSeconds)
	require.Equal(t, AsyncInline, c.AsyncExecutionMode)
	require.False(t, c.WorkflowEnabled)
	require.Equal(t, []string{"PENDING_REVIEW"}, c.WorkflowRequiresReviewForStatuses)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DPM_IDEMPOTENCY_CACHE_MAX_SIZE", "42")
	t.Setenv("DPM_ASYNC_EXECUTION_MODE", "ACCEPT_ONLY")
	t.Setenv("DPM_WORKFLOW_ENABLED", "true")

	c, err := LoadFromEnv("")
	require.NoError(t, err)
	require.Equal(t, 42, c.IdempotencyCacheMaxSize)
	require.Equal(t, AsyncAcceptOnly, c.AsyncExecutionMode)
	require.True(t, c.WorkflowEnabled)
}

func TestInvalidAsyncModeFallsBackToInline(t *testing.T) {
	t.Setenv("DPM_ASYNC_EXECUTION_MODE", "BOGUS")
	c, err := LoadFromEnv("")
	require.NoError(t, err)
	require.Equal(t, AsyncInline, c.AsyncExecutionMode)
}

func TestProductionGuardrails(t *testing.T) {
	c := Default()
	c.PersistenceProfile = ProfileProduction
	reasons := c.Validate()
	require.Contains(t, reasons, "PERSISTENCE_PROFILE_REQUIRES_DPM_POSTGRES")
	require.Contains(t, reasons, "PERSISTENCE_PROFILE_REQUIRES_ADVISORY_POSTGRES")
}

func TestProductionGuardrailsPassWhenConfigured(t *testing.T) {
	c := Default()
	c.PersistenceProfile = ProfileProduction
	c.SupportabilityBackend = BackendPostgres
	c.SupportabilityPostgresDSN = "postgres://x"
	c.ProposalStoreBackend = "POSTGRES"
	c.ProposalPostgresDSN = "postgres://y"
	require.Empty(t, c.Validate())
}
