package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

// Service is the idempotency decision layer callers (internal/httpapi) go
// through: it checks the in-process (or Redis) cache first, falls back to
// the durable Store on a cache miss, and records history on every write.
type Service struct {
	store Store
	cache localCache
}

// localCache is satisfied by both *Cache and an adapter over *RedisCache, so
// Service doesn't care which backend DPM_IDEMPOTENCY_CACHE_BACKEND selected.
type localCache interface {
	Get(ctx context.Context, key string) (supportability.IdempotencyRecord, bool, error)
	Put(ctx context.Context, rec supportability.IdempotencyRecord) error
}

// Store is the subset of supportability.Store the idempotency service needs.
type Store interface {
	GetIdempotencyByKey(ctx context.Context, key string) (supportability.IdempotencyRecord, error)
	SaveIdempotency(ctx context.Context, rec supportability.IdempotencyRecord) error
	AppendIdempotencyHistory(ctx context.Context, rec supportability.IdempotencyRecord) error
	ListIdempotencyHistory(ctx context.Context, key string) ([]supportability.IdempotencyRecord, error)
}

// lruAdapter makes *Cache satisfy localCache without an explicit context
// plumbing requirement (the in-process LRU doesn't need one).
type lruAdapter struct{ cache *Cache }

func (a lruAdapter) Get(_ context.Context, key string) (supportability.IdempotencyRecord, bool, error) {
	rec, ok := a.cache.Get(key)
	return rec, ok, nil
}

func (a lruAdapter) Put(_ context.Context, rec supportability.IdempotencyRecord) error {
	a.cache.Put(rec)
	return nil
}

type redisAdapter struct{ cache *RedisCache }

func (a redisAdapter) Get(ctx context.Context, key string) (supportability.IdempotencyRecord, bool, error) {
	return a.cache.Get(ctx, key)
}

func (a redisAdapter) Put(ctx context.Context, rec supportability.IdempotencyRecord) error {
	return a.cache.Put(ctx, rec)
}

// NewService builds a Service with an in-process bounded LRU front cache.
func NewService(store Store, cacheMaxSize int) *Service {
	return &Service{store: store, cache: lruAdapter{cache: NewCache(cacheMaxSize)}}
}

// NewServiceWithRedis builds a Service fronted by a distributed Redis cache
// (DPM_IDEMPOTENCY_CACHE_BACKEND=REDIS).
func NewServiceWithRedis(store Store, redisCache *RedisCache) *Service {
	return &Service{store: store, cache: redisAdapter{cache: redisCache}}
}

// Outcome is what the caller should do with a request carrying an
// Idempotency-Key header.
type Outcome string

const (
	// OutcomeFresh means no prior record exists; the caller should run the
	// request and call Record with the result.
	OutcomeFresh Outcome = "FRESH"
	// OutcomeReplay means an identical request (same hash) was already
	// processed; the caller should return the stored response verbatim.
	OutcomeReplay Outcome = "REPLAY"
	// OutcomeConflict means the key was reused with a different request
	// hash (spec §4.13, IDEMPOTENCY_KEY_CONFLICT, HTTP 409).
	OutcomeConflict Outcome = "CONFLICT"
)

// Check resolves what to do for (key, requestHash). replayEnabled comes from
// the resolved policy pack (internal/policy.ReplayEnabled) or config
// default; when false, history is still consulted for conflict detection
// but a matching hash is never replayed — the caller always recomputes.
func (s *Service) Check(ctx context.Context, key, requestHash string, replayEnabled bool) (Outcome, supportability.IdempotencyRecord, error) {
	if key == "" {
		return OutcomeFresh, supportability.IdempotencyRecord{}, nil
	}

	rec, found, err := s.cache.Get(ctx, key)
	if err != nil || !found {
		rec, err = s.store.GetIdempotencyByKey(ctx, key)
		if errors.Is(err, supportability.ErrNotFound) {
			return OutcomeFresh, supportability.IdempotencyRecord{}, nil
		}
		if err != nil {
			return OutcomeFresh, supportability.IdempotencyRecord{}, err
		}
		found = true
	}
	if !found {
		return OutcomeFresh, supportability.IdempotencyRecord{}, nil
	}

	if rec.RequestHash != requestHash {
		return OutcomeConflict, rec, nil
	}
	if !replayEnabled {
		return OutcomeFresh, supportability.IdempotencyRecord{}, nil
	}
	return OutcomeReplay, rec, nil
}

// Record stores a freshly computed response under key, refreshing both the
// durable store, its history trail, and the front cache.
func (s *Service) Record(ctx context.Context, key, requestHash, runID string, responseBody []byte, now time.Time) error {
	if key == "" {
		return nil
	}
	rec := supportability.IdempotencyRecord{
		Key: key, RequestHash: requestHash, ResponseBody: responseBody, RunID: runID, CreatedAt: now,
	}
	if err := s.store.SaveIdempotency(ctx, rec); err != nil {
		return err
	}
	if err := s.store.AppendIdempotencyHistory(ctx, rec); err != nil {
		return err
	}
	return s.cache.Put(ctx, rec)
}

// History returns the full idempotency history for key (spec §4.13
// list_idempotency_history), regardless of the cache state.
func (s *Service) History(ctx context.Context, key string) ([]supportability.IdempotencyRecord, error) {
	return s.store.ListIdempotencyHistory(ctx, key)
}
