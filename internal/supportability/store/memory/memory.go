// Package memory is the default, in-process supportability.Store adapter
// (DPM_SUPPORTABILITY_STORE_BACKEND=IN_MEMORY), used for local development and tests.
// Modeled on the teacher's lock-guarded in-memory fixtures in
// internal/domain repositories: a sync.RWMutex over plain Go maps/slices,
// never a placeholder.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

// Store is a mutex-guarded, in-memory supportability.Store.
type Store struct {
	mu sync.RWMutex

	runs               map[string]supportability.Run
	runsByCorrelation  map[string]string
	runsByRequestHash  map[string]string
	artifacts          map[string]map[string]supportability.RunArtifact
	idempotency        map[string]supportability.IdempotencyRecord
	idempotencyHistory map[string][]supportability.IdempotencyRecord
	asyncOps           map[string]supportability.AsyncOperation
	workflowDecisions  []supportability.WorkflowDecision
	lineageEdges       map[string][]supportability.LineageEdge
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		runs:               map[string]supportability.Run{},
		runsByCorrelation:  map[string]string{},
		runsByRequestHash:  map[string]string{},
		artifacts:          map[string]map[string]supportability.RunArtifact{},
		idempotency:        map[string]supportability.IdempotencyRecord{},
		idempotencyHistory: map[string][]supportability.IdempotencyRecord{},
		asyncOps:           map[string]supportability.AsyncOperation{},
		lineageEdges:       map[string][]supportability.LineageEdge{},
	}
}

var _ supportability.Store = (*Store)(nil)

func (s *Store) SaveRun(_ context.Context, run supportability.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	if run.CorrelationID != "" {
		s.runsByCorrelation[run.CorrelationID] = run.RunID
	}
	if run.RequestHash != "" {
		s.runsByRequestHash[run.RequestHash] = run.RunID
	}
	return nil
}

func (s *Store) GetRun(_ context.Context, runID string) (supportability.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return supportability.Run{}, supportability.ErrNotFound
	}
	return run, nil
}

func (s *Store) GetRunByCorrelation(ctx context.Context, correlationID string) (supportability.Run, error) {
	s.mu.RLock()
	runID, ok := s.runsByCorrelation[correlationID]
	s.mu.RUnlock()
	if !ok {
		return supportability.Run{}, supportability.ErrNotFound
	}
	return s.GetRun(ctx, runID)
}

func (s *Store) GetRunByRequestHash(ctx context.Context, requestHash string) (supportability.Run, error) {
	s.mu.RLock()
	runID, ok := s.runsByRequestHash[requestHash]
	s.mu.RUnlock()
	if !ok {
		return supportability.Run{}, supportability.ErrNotFound
	}
	return s.GetRun(ctx, runID)
}

func matchesRunFilters(run supportability.Run, f supportability.Filters) bool {
	if !f.From.IsZero() && run.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && run.CreatedAt.After(f.To) {
		return false
	}
	if f.Status != "" && string(run.Status) != f.Status {
		return false
	}
	if f.PortfolioID != "" && run.PortfolioID != f.PortfolioID {
		return false
	}
	if f.RequestHash != "" && run.RequestHash != f.RequestHash {
		return false
	}
	if f.OperationType != "" && string(run.OperationType) != f.OperationType {
		return false
	}
	if f.CorrelationID != "" && run.CorrelationID != f.CorrelationID {
		return false
	}
	return true
}

func (s *Store) ListRuns(_ context.Context, filters supportability.Filters, page supportability.Page) (supportability.RunPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor, err := supportability.DecodeCursor(page.Cursor)
	if err != nil {
		return supportability.RunPage{}, err
	}

	matched := make([]supportability.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if matchesRunFilters(run, filters) {
			matched = append(matched, run)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].RunID < matched[j].RunID
	})

	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}

	out := make([]supportability.Run, 0, limit)
	for _, run := range matched {
		if !cursor.IsZero() && !supportability.AfterCursor(run.CreatedAt, run.RunID, cursor) {
			continue
		}
		out = append(out, run)
		if len(out) == limit {
			break
		}
	}

	next := ""
	if len(out) == limit {
		last := out[len(out)-1]
		idx := -1
		for i, run := range matched {
			if run.RunID == last.RunID {
				idx = i
				break
			}
		}
		if idx >= 0 && idx+1 < len(matched) {
			next = supportability.EncodeCursor(last.CreatedAt, last.RunID)
		}
	}

	return supportability.RunPage{Runs: out, NextCursor: next}, nil
}

func (s *Store) SaveRunArtifact(_ context.Context, artifact supportability.RunArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName, ok := s.artifacts[artifact.RunID]
	if !ok {
		byName = map[string]supportability.RunArtifact{}
		s.artifacts[artifact.RunID] = byName
	}
	byName[artifact.Name] = artifact
	return nil
}

func (s *Store) GetRunArtifact(_ context.Context, runID, name string) (supportability.RunArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byName, ok := s.artifacts[runID]
	if !ok {
		return supportability.RunArtifact{}, supportability.ErrNotFound
	}
	artifact, ok := byName[name]
	if !ok {
		return supportability.RunArtifact{}, supportability.ErrNotFound
	}
	return artifact, nil
}

func (s *Store) SaveIdempotency(_ context.Context, rec supportability.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.idempotency[rec.Key]; ok && existing.RequestHash != rec.RequestHash {
		return supportability.ErrIdempotencyKeyConflict
	}
	s.idempotency[rec.Key] = rec
	return nil
}

func (s *Store) GetIdempotencyByKey(_ context.Context, key string) (supportability.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idempotency[key]
	if !ok {
		return supportability.IdempotencyRecord{}, supportability.ErrNotFound
	}
	return rec, nil
}

func (s *Store) AppendIdempotencyHistory(_ context.Context, rec supportability.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotencyHistory[rec.Key] = append(s.idempotencyHistory[rec.Key], rec)
	return nil
}

func (s *Store) ListIdempotencyHistory(_ context.Context, key string) ([]supportability.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.idempotencyHistory[key]
	out := make([]supportability.IdempotencyRecord, len(history))
	copy(out, history)
	return out, nil
}

func (s *Store) CreateAsyncOperation(_ context.Context, op supportability.AsyncOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asyncOps[op.OperationID] = op
	return nil
}

func (s *Store) UpdateAsyncOperation(_ context.Context, op supportability.AsyncOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.asyncOps[op.OperationID]; !ok {
		return supportability.ErrNotFound
	}
	s.asyncOps[op.OperationID] = op
	return nil
}

func (s *Store) GetAsyncOperation(_ context.Context, operationID string) (supportability.AsyncOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.asyncOps[operationID]
	if !ok {
		return supportability.AsyncOperation{}, supportability.ErrNotFound
	}
	return op, nil
}

func (s *Store) ListAsyncOperations(_ context.Context, filters supportability.Filters, page supportability.Page) ([]supportability.AsyncOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]supportability.AsyncOperation, 0, len(s.asyncOps))
	for _, op := range s.asyncOps {
		if filters.Status != "" && string(op.Status) != filters.Status {
			continue
		}
		if filters.OperationType != "" && string(op.OperationType) != filters.OperationType {
			continue
		}
		if filters.CorrelationID != "" && op.CorrelationID != filters.CorrelationID {
			continue
		}
		matched = append(matched, op)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })

	if page.Limit > 0 && len(matched) > page.Limit {
		matched = matched[:page.Limit]
	}
	return matched, nil
}

func (s *Store) PurgeExpiredAsyncOperations(_ context.Context, ttl time.Duration, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, op := range s.asyncOps {
		if op.Status != supportability.AsyncSucceeded && op.Status != supportability.AsyncFailed {
			continue
		}
		if now.Sub(op.UpdatedAt) >= ttl {
			delete(s.asyncOps, id)
			purged++
		}
	}
	return purged, nil
}

func (s *Store) AppendWorkflowDecision(_ context.Context, dec supportability.WorkflowDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflowDecisions = append(s.workflowDecisions, dec)
	return nil
}

func (s *Store) ListWorkflowDecisions(_ context.Context, filters supportability.Filters, page supportability.Page) ([]supportability.WorkflowDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]supportability.WorkflowDecision, 0)
	for _, dec := range s.workflowDecisions {
		if filters.ActorID != "" && dec.ActorID != filters.ActorID {
			continue
		}
		if filters.Action != "" && dec.ActionCode != filters.Action {
			continue
		}
		if filters.ReasonCode != "" && dec.ReasonCode != filters.ReasonCode {
			continue
		}
		if filters.CorrelationID != "" && dec.CorrelationID != filters.CorrelationID {
			continue
		}
		matched = append(matched, dec)
	}
	if page.Limit > 0 && len(matched) > page.Limit {
		matched = matched[:page.Limit]
	}
	return matched, nil
}

func (s *Store) ListWorkflowDecisionsByRun(_ context.Context, runID string) ([]supportability.WorkflowDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]supportability.WorkflowDecision, 0)
	for _, dec := range s.workflowDecisions {
		if dec.RunID == runID {
			out = append(out, dec)
		}
	}
	return out, nil
}

func (s *Store) AppendLineageEdge(_ context.Context, edge supportability.LineageEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lineageEdges[edge.FromEntityID] = append(s.lineageEdges[edge.FromEntityID], edge)
	if edge.ToEntityID != edge.FromEntityID {
		s.lineageEdges[edge.ToEntityID] = append(s.lineageEdges[edge.ToEntityID], edge)
	}
	return nil
}

func (s *Store) ListLineageEdges(_ context.Context, entityID string) ([]supportability.LineageEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edges := s.lineageEdges[entityID]
	out := make([]supportability.LineageEdge, len(edges))
	copy(out, edges)
	return out, nil
}

func (s *Store) SupportabilitySummary(_ context.Context) (supportability.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := supportability.Summary{
		RunsByStatus:  map[string]int{},
		AsyncByStatus: map[string]int{},
	}
	for _, run := range s.runs {
		summary.TotalRuns++
		summary.RunsByStatus[string(run.Status)]++
		if summary.OldestRunAt.IsZero() || run.CreatedAt.Before(summary.OldestRunAt) {
			summary.OldestRunAt = run.CreatedAt
		}
		if run.CreatedAt.After(summary.NewestRunAt) {
			summary.NewestRunAt = run.CreatedAt
		}
	}
	for _, op := range s.asyncOps {
		summary.TotalAsyncOperations++
		summary.AsyncByStatus[string(op.Status)]++
	}
	return summary, nil
}

func (s *Store) PurgeExpiredRuns(_ context.Context, retentionDays int, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.AddDate(0, 0, -retentionDays)
	purged := 0
	for id, run := range s.runs {
		if run.CreatedAt.After(cutoff) {
			continue
		}
		delete(s.runs, id)
		if run.CorrelationID != "" {
			delete(s.runsByCorrelation, run.CorrelationID)
		}
		if run.RequestHash != "" {
			delete(s.runsByRequestHash, run.RequestHash)
		}
		delete(s.artifacts, id)
		delete(s.lineageEdges, id)

		kept := s.workflowDecisions[:0:0]
		for _, dec := range s.workflowDecisions {
			if dec.RunID != id {
				kept = append(kept, dec)
			}
		}
		s.workflowDecisions = kept
		purged++
	}
	return purged, nil
}
