package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

type fakeStore struct {
	records map[string]supportability.IdempotencyRecord
	history map[string][]supportability.IdempotencyRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]supportability.IdempotencyRecord{}, history: map[string][]supportability.IdempotencyRecord{}}
}

func (f *fakeStore) GetIdempotencyByKey(_ context.Context, key string) (supportability.IdempotencyRecord, error) {
	rec, ok := f.records[key]
	if !ok {
		return supportability.IdempotencyRecord{}, supportability.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) SaveIdempotency(_ context.Context, rec supportability.IdempotencyRecord) error {
	f.records[rec.Key] = rec
	return nil
}

func (f *fakeStore) AppendIdempotencyHistory(_ context.Context, rec supportability.IdempotencyRecord) error {
	f.history[rec.Key] = append(f.history[rec.Key], rec)
	return nil
}

func (f *fakeStore) ListIdempotencyHistory(_ context.Context, key string) ([]supportability.IdempotencyRecord, error) {
	return f.history[key], nil
}

func TestServiceCheckFreshWhenKeyUnseen(t *testing.T) {
	svc := NewService(newFakeStore(), 100)
	outcome, _, err := svc.Check(context.Background(), "key-1", "hash-a", true)
	require.NoError(t, err)
	require.Equal(t, OutcomeFresh, outcome)
}

func TestServiceCheckReplaysSameHash(t *testing.T) {
	svc := NewService(newFakeStore(), 100)
	now := time.Unix(1700000000, 0)
	require.NoError(t, svc.Record(context.Background(), "key-1", "hash-a", "run-1", []byte(`{"ok":true}`), now))

	outcome, rec, err := svc.Check(context.Background(), "key-1", "hash-a", true)
	require.NoError(t, err)
	require.Equal(t, OutcomeReplay, outcome)
	require.Equal(t, []byte(`{"ok":true}`), rec.ResponseBody)
}

func TestServiceCheckConflictsOnDifferentHash(t *testing.T) {
	svc := NewService(newFakeStore(), 100)
	now := time.Unix(1700000000, 0)
	require.NoError(t, svc.Record(context.Background(), "key-1", "hash-a", "run-1", []byte(`{}`), now))

	outcome, _, err := svc.Check(context.Background(), "key-1", "hash-b", true)
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, outcome)
}

func TestServiceCheckRecomputesWhenReplayDisabled(t *testing.T) {
	svc := NewService(newFakeStore(), 100)
	now := time.Unix(1700000000, 0)
	require.NoError(t, svc.Record(context.Background(), "key-1", "hash-a", "run-1", []byte(`{}`), now))

	outcome, _, err := svc.Check(context.Background(), "key-1", "hash-a", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeFresh, outcome, "same hash but replay disabled should still recompute")
}

func TestServiceHistoryReturnsAllRecordedVersions(t *testing.T) {
	svc := NewService(newFakeStore(), 100)
	now := time.Unix(1700000000, 0)
	require.NoError(t, svc.Record(context.Background(), "key-1", "hash-a", "run-1", []byte(`{}`), now))
	require.NoError(t, svc.Record(context.Background(), "key-1", "hash-a", "run-1", []byte(`{}`), now.Add(time.Minute)))

	history, err := svc.History(context.Background(), "key-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
}
