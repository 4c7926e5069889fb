package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

func TestSaveAndGetRunRoundTrips(t *testing.T) {
	store := New()
	run := supportability.Run{
		RunID: "run-1", CorrelationID: "corr-1", RequestHash: "hash-1",
		PortfolioID: "P1", OperationType: supportability.OperationDPMRebalance,
		Status: "EXECUTION_READY", CreatedAt: time.Unix(1700000000, 0),
	}
	require.NoError(t, store.SaveRun(context.Background(), run))

	got, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, run, got)

	byCorr, err := store.GetRunByCorrelation(context.Background(), "corr-1")
	require.NoError(t, err)
	require.Equal(t, run, byCorr)

	byHash, err := store.GetRunByRequestHash(context.Background(), "hash-1")
	require.NoError(t, err)
	require.Equal(t, run, byHash)
}

func TestGetRunNotFound(t *testing.T) {
	store := New()
	_, err := store.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, supportability.ErrNotFound)
}

func TestListRunsPaginatesWithCursor(t *testing.T) {
	store := New()
	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		run := supportability.Run{
			RunID:     "run-" + string(rune('a'+i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Status:    "EXECUTION_READY",
		}
		require.NoError(t, store.SaveRun(context.Background(), run))
	}

	page1, err := store.ListRuns(context.Background(), supportability.Filters{}, supportability.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1.Runs, 2)
	require.Equal(t, "run-a", page1.Runs[0].RunID)
	require.Equal(t, "run-b", page1.Runs[1].RunID)
	require.NotEmpty(t, page1.NextCursor)

	page2, err := store.ListRuns(context.Background(), supportability.Filters{}, supportability.Page{Limit: 2, Cursor: page1.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2.Runs, 2)
	require.Equal(t, "run-c", page2.Runs[0].RunID)
	require.Equal(t, "run-d", page2.Runs[1].RunID)

	page3, err := store.ListRuns(context.Background(), supportability.Filters{}, supportability.Page{Limit: 2, Cursor: page2.NextCursor})
	require.NoError(t, err)
	require.Len(t, page3.Runs, 1)
	require.Empty(t, page3.NextCursor)
}

func TestSaveIdempotencyDetectsConflict(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.SaveIdempotency(ctx, supportability.IdempotencyRecord{Key: "k1", RequestHash: "h1"}))
	err := store.SaveIdempotency(ctx, supportability.IdempotencyRecord{Key: "k1", RequestHash: "h2"})
	require.ErrorIs(t, err, supportability.ErrIdempotencyKeyConflict)
}

func TestPurgeExpiredRunsCascadesToArtifactsAndDecisions(t *testing.T) {
	store := New()
	ctx := context.Background()
	old := time.Unix(1600000000, 0)
	run := supportability.Run{RunID: "old-run", CreatedAt: old, Status: "EXECUTION_READY"}
	require.NoError(t, store.SaveRun(ctx, run))
	require.NoError(t, store.SaveRunArtifact(ctx, supportability.RunArtifact{RunID: "old-run", Name: "result", CreatedAt: old}))
	require.NoError(t, store.AppendWorkflowDecision(ctx, supportability.WorkflowDecision{RunID: "old-run", CreatedAt: old}))

	purged, err := store.PurgeExpiredRuns(ctx, 30, time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.Equal(t, 1, purged)

	_, err = store.GetRun(ctx, "old-run")
	require.ErrorIs(t, err, supportability.ErrNotFound)

	decisions, err := store.ListWorkflowDecisionsByRun(ctx, "old-run")
	require.NoError(t, err)
	require.Empty(t, decisions)
}

func TestSupportabilitySummaryAggregatesCounts(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.SaveRun(ctx, supportability.Run{RunID: "r1", Status: "EXECUTION_READY", CreatedAt: time.Unix(1700000000, 0)}))
	require.NoError(t, store.SaveRun(ctx, supportability.Run{RunID: "r2", Status: "BLOCKED", CreatedAt: time.Unix(1700000100, 0)}))
	require.NoError(t, store.CreateAsyncOperation(ctx, supportability.AsyncOperation{OperationID: "op1", Status: supportability.AsyncSucceeded}))

	summary, err := store.SupportabilitySummary(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.TotalRuns)
	require.Equal(t, 1, summary.RunsByStatus["EXECUTION_READY"])
	require.Equal(t, 1, summary.RunsByStatus["BLOCKED"])
	require.Equal(t, 1, summary.TotalAsyncOperations)
}
