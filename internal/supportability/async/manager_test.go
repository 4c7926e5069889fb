package async

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
	"github.com/sgajbi/lotus-advise-sub000/internal/supportability/store/memory"
)

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

func TestSubmitInlineRunsToCompletionSynchronously(t *testing.T) {
	store := memory.New()
	mgr := NewManager(store, time.Hour, sequentialIDs("op"))
	mgr.Register(supportability.OperationDPMRebalance, func(_ context.Context, req []byte) ([]byte, error) {
		return append([]byte("result:"), req...), nil
	})

	op, err := mgr.Submit(context.Background(), supportability.OperationDPMRebalance, "corr-1", ModeInline, []byte("req"))
	require.NoError(t, err)
	require.Equal(t, supportability.AsyncSucceeded, op.Status)
	require.Equal(t, "result:req", string(op.Result))
}

func TestSubmitAcceptOnlyStaysPendingUntilExecute(t *testing.T) {
	store := memory.New()
	mgr := NewManager(store, time.Hour, sequentialIDs("op"))
	mgr.Register(supportability.OperationAdvisoryProposal, func(_ context.Context, _ []byte) ([]byte, error) {
		return []byte("done"), nil
	})

	op, err := mgr.Submit(context.Background(), supportability.OperationAdvisoryProposal, "corr-2", ModeAcceptOnly, []byte("req"))
	require.NoError(t, err)
	require.Equal(t, supportability.AsyncPending, op.Status)

	executed, err := mgr.Execute(context.Background(), op.OperationID)
	require.NoError(t, err)
	require.Equal(t, supportability.AsyncSucceeded, executed.Status)
	require.Equal(t, "done", string(executed.Result))
}

func TestExecuteOnNonPendingOperationIsRejected(t *testing.T) {
	store := memory.New()
	mgr := NewManager(store, time.Hour, sequentialIDs("op"))
	mgr.Register(supportability.OperationDPMRebalance, func(_ context.Context, _ []byte) ([]byte, error) {
		return []byte("ok"), nil
	})

	op, err := mgr.Submit(context.Background(), supportability.OperationDPMRebalance, "corr-3", ModeInline, []byte("req"))
	require.NoError(t, err)

	_, err = mgr.Execute(context.Background(), op.OperationID)
	require.True(t, errors.Is(err, ErrNotExecutable))
}

func TestInvalidModeFallsBackToInline(t *testing.T) {
	store := memory.New()
	mgr := NewManager(store, time.Hour, sequentialIDs("op"))
	mgr.Register(supportability.OperationDPMRebalance, func(_ context.Context, _ []byte) ([]byte, error) {
		return []byte("ok"), nil
	})

	op, err := mgr.Submit(context.Background(), supportability.OperationDPMRebalance, "corr-4", Mode("NOT_A_MODE"), []byte("req"))
	require.NoError(t, err)
	require.Equal(t, supportability.AsyncSucceeded, op.Status)
}

func TestFailingExecutorRecordsFailureReason(t *testing.T) {
	store := memory.New()
	mgr := NewManager(store, time.Hour, sequentialIDs("op"))
	mgr.Register(supportability.OperationDPMRebalance, func(_ context.Context, _ []byte) ([]byte, error) {
		return nil, errors.New("boom")
	})

	op, err := mgr.Submit(context.Background(), supportability.OperationDPMRebalance, "corr-5", ModeInline, []byte("req"))
	require.NoError(t, err)
	require.Equal(t, supportability.AsyncFailed, op.Status)
	require.Equal(t, "boom", op.FailureReason)
}

func TestSweepPurgesTerminalOperationsPastTTL(t *testing.T) {
	store := memory.New()
	fixedNow := time.Unix(1700000000, 0)
	mgr := NewManager(store, time.Minute, sequentialIDs("op"), WithClock(func() time.Time { return fixedNow }))
	mgr.Register(supportability.OperationDPMRebalance, func(_ context.Context, _ []byte) ([]byte, error) {
		return []byte("ok"), nil
	})

	op, err := mgr.Submit(context.Background(), supportability.OperationDPMRebalance, "corr-6", ModeInline, []byte("req"))
	require.NoError(t, err)

	purged, err := store.PurgeExpiredAsyncOperations(context.Background(), time.Minute, fixedNow.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, purged)

	_, err = mgr.Get(context.Background(), op.OperationID)
	require.ErrorIs(t, err, supportability.ErrNotFound)
}
