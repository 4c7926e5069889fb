package supportability

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by every single-record lookup when nothing
// matches.
var ErrNotFound = errors.New("supportability: not found")

// ErrIdempotencyKeyConflict is returned by SaveIdempotency when the same key
// is reused with a different request hash (spec §4.13,
// IDEMPOTENCY_KEY_CONFLICT).
var ErrIdempotencyKeyConflict = errors.New("supportability: idempotency key conflict")

// Store is the adapter-agnostic persistence port (spec §4.12). store/memory
// and store/postgres both implement it; internal/httpapi and
// internal/supportability/async depend only on this interface.
type Store interface {
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
	GetRunByCorrelation(ctx context.Context, correlationID string) (Run, error)
	GetRunByRequestHash(ctx context.Context, requestHash string) (Run, error)
	ListRuns(ctx context.Context, filters Filters, page Page) (RunPage, error)

	SaveRunArtifact(ctx context.Context, artifact RunArtifact) error
	GetRunArtifact(ctx context.Context, runID, name string) (RunArtifact, error)

	SaveIdempotency(ctx context.Context, rec IdempotencyRecord) error
	GetIdempotencyByKey(ctx context.Context, key string) (IdempotencyRecord, error)
	AppendIdempotencyHistory(ctx context.Context, rec IdempotencyRecord) error
	ListIdempotencyHistory(ctx context.Context, key string) ([]IdempotencyRecord, error)

	CreateAsyncOperation(ctx context.Context, op AsyncOperation) error
	UpdateAsyncOperation(ctx context.Context, op AsyncOperation) error
	GetAsyncOperation(ctx context.Context, operationID string) (AsyncOperation, error)
	ListAsyncOperations(ctx context.Context, filters Filters, page Page) ([]AsyncOperation, error)
	PurgeExpiredAsyncOperations(ctx context.Context, ttl time.Duration, now time.Time) (int, error)

	AppendWorkflowDecision(ctx context.Context, dec WorkflowDecision) error
	ListWorkflowDecisions(ctx context.Context, filters Filters, page Page) ([]WorkflowDecision, error)
	ListWorkflowDecisionsByRun(ctx context.Context, runID string) ([]WorkflowDecision, error)

	AppendLineageEdge(ctx context.Context, edge LineageEdge) error
	ListLineageEdges(ctx context.Context, entityID string) ([]LineageEdge, error)

	SupportabilitySummary(ctx context.Context) (Summary, error)
	PurgeExpiredRuns(ctx context.Context, retentionDays int, now time.Time) (int, error)
}
