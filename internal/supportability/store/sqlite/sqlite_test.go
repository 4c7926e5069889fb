package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "supportability.db")
	store, err := Open(path)
	require.NoError(t, err)
	return store
}

func TestSaveAndGetRunRoundTrips(t *testing.T) {
	store := openTestStore(t)
	run := supportability.Run{
		RunID: "run-1", CorrelationID: "corr-1", RequestHash: "hash-1",
		PortfolioID: "P1", OperationType: supportability.OperationDPMRebalance,
		Status: "EXECUTION_READY", CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, store.SaveRun(context.Background(), run))

	got, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, run.RunID, got.RunID)
	require.True(t, run.CreatedAt.Equal(got.CreatedAt))

	byCorr, err := store.GetRunByCorrelation(context.Background(), "corr-1")
	require.NoError(t, err)
	require.Equal(t, run.RunID, byCorr.RunID)

	byHash, err := store.GetRunByRequestHash(context.Background(), "hash-1")
	require.NoError(t, err)
	require.Equal(t, run.RunID, byHash.RunID)
}

func TestGetRunNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, supportability.ErrNotFound)
}

func TestSaveRunUpsertsStatusOnConflict(t *testing.T) {
	store := openTestStore(t)
	run := supportability.Run{RunID: "run-1", Status: "PENDING_REVIEW", CreatedAt: time.Unix(1700000000, 0).UTC()}
	require.NoError(t, store.SaveRun(context.Background(), run))

	run.Status = "EXECUTION_READY"
	require.NoError(t, store.SaveRun(context.Background(), run))

	got, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, supportability.RunStatus("EXECUTION_READY"), got.Status)
}

func TestIdempotencyConflictOnDifferentRequestHash(t *testing.T) {
	store := openTestStore(t)
	now := time.Unix(1700000000, 0).UTC()
	require.NoError(t, store.SaveIdempotency(context.Background(), supportability.IdempotencyRecord{
		Key: "key-1", RequestHash: "hash-a", RunID: "run-1", CreatedAt: now,
	}))

	err := store.SaveIdempotency(context.Background(), supportability.IdempotencyRecord{
		Key: "key-1", RequestHash: "hash-b", RunID: "run-2", CreatedAt: now,
	})
	require.ErrorIs(t, err, supportability.ErrIdempotencyKeyConflict)
}

func TestWorkflowDecisionsFilterByCorrelationID(t *testing.T) {
	store := openTestStore(t)
	now := time.Unix(1700000000, 0).UTC()
	require.NoError(t, store.AppendWorkflowDecision(context.Background(), supportability.WorkflowDecision{
		RunID: "run-1", CorrelationID: "corr-1", FromStatus: "BLOCKED", ToStatus: "PENDING_REVIEW",
		ActorID: "actor-1", ActionCode: "REQUEST_CHANGES", CreatedAt: now,
	}))
	require.NoError(t, store.AppendWorkflowDecision(context.Background(), supportability.WorkflowDecision{
		RunID: "run-2", CorrelationID: "corr-2", FromStatus: "BLOCKED", ToStatus: "APPROVED",
		ActorID: "actor-2", ActionCode: "APPROVE", CreatedAt: now,
	}))

	decisions, err := store.ListWorkflowDecisions(context.Background(), supportability.Filters{CorrelationID: "corr-1"}, supportability.Page{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	require.Equal(t, "run-1", decisions[0].RunID)
}

func TestPurgeExpiredRunsRemovesOldRunsAndDependents(t *testing.T) {
	store := openTestStore(t)
	now := time.Unix(1700000000, 0).UTC()
	old := supportability.Run{RunID: "run-old", Status: "EXECUTION_READY", CreatedAt: now.AddDate(0, 0, -30)}
	fresh := supportability.Run{RunID: "run-fresh", Status: "EXECUTION_READY", CreatedAt: now}
	require.NoError(t, store.SaveRun(context.Background(), old))
	require.NoError(t, store.SaveRun(context.Background(), fresh))
	require.NoError(t, store.AppendLineageEdge(context.Background(), supportability.LineageEdge{
		FromEntityID: "run-old", ToEntityID: "ref-1", Relation: "REFERENCE_MODEL", CreatedAt: old.CreatedAt,
	}))

	n, err := store.PurgeExpiredRuns(context.Background(), 7, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = store.GetRun(context.Background(), "run-old")
	require.ErrorIs(t, err, supportability.ErrNotFound)

	edges, err := store.ListLineageEdges(context.Background(), "run-old")
	require.NoError(t, err)
	require.Empty(t, edges)
}
