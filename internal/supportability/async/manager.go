// Package async implements the Async Operation Manager (spec §4.14): a
// submitted unit of work moves PENDING -> RUNNING -> {SUCCEEDED, FAILED}.
// INLINE mode runs the whole transition synchronously inside Submit;
// ACCEPT_ONLY mode stops at PENDING and a later Execute call advances it.
// Terminal operations expire after a TTL, purged opportunistically (rate
// limited via golang.org/x/time/rate, matching the teacher's rate-limited
// background sweep pattern) or via an explicit Sweep call.
package async

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

// Mode selects how Submit advances a freshly created operation.
type Mode string

const (
	ModeInline     Mode = "INLINE"
	ModeAcceptOnly Mode = "ACCEPT_ONLY"
)

// ErrNotExecutable is returned by Execute when the operation is not PENDING
// (spec §4.14, DPM_ASYNC_OPERATION_NOT_EXECUTABLE, HTTP 409).
var ErrNotExecutable = errors.New("async: operation is not executable")

// Executor performs the actual unit of work for one operation type and
// returns the serialized result, or an error recorded as FailureReason.
type Executor func(ctx context.Context, request []byte) ([]byte, error)

// Manager is the async operation state machine, backed by a
// supportability.Store for durability.
type Manager struct {
	store      supportability.Store
	executors  map[supportability.OperationType]Executor
	ttl        time.Duration
	newID      func() string
	now        func() time.Time
	sweepLimit *rate.Sometimes
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithClock overrides the time source (tests only); defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a Manager. ttl is the ASYNC_OPERATIONS_TTL_SECONDS
// duration after which terminal operations are eligible for purge. newID
// generates operation ids (internal/idgen.New in production).
func NewManager(store supportability.Store, ttl time.Duration, newID func() string, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		executors:  map[supportability.OperationType]Executor{},
		ttl:        ttl,
		newID:      newID,
		now:        time.Now,
		sweepLimit: &rate.Sometimes{Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register binds an Executor to an operation type. Submit and Execute look
// this up to run the actual work; an unregistered type is a programming
// error, not a request error.
func (m *Manager) Register(opType supportability.OperationType, exec Executor) {
	m.executors[opType] = exec
}

// Submit creates a new operation and, for INLINE mode (or any mode the
// manager doesn't recognize — spec §4.14 "invalid mode falls back to
// INLINE"), runs it to completion before returning.
func (m *Manager) Submit(ctx context.Context, opType supportability.OperationType, correlationID string, mode Mode, request []byte) (supportability.AsyncOperation, error) {
	now := m.now()
	op := supportability.AsyncOperation{
		OperationID:   m.newID(),
		CorrelationID: correlationID,
		OperationType: opType,
		Status:        supportability.AsyncPending,
		Request:       request,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.CreateAsyncOperation(ctx, op); err != nil {
		return supportability.AsyncOperation{}, fmt.Errorf("async: create operation: %w", err)
	}

	m.maybeSweep(ctx)

	if mode != ModeAcceptOnly {
		return m.run(ctx, op)
	}
	return op, nil
}

// Execute advances an ACCEPT_ONLY operation that is still PENDING. A
// non-PENDING operation returns ErrNotExecutable.
func (m *Manager) Execute(ctx context.Context, operationID string) (supportability.AsyncOperation, error) {
	op, err := m.store.GetAsyncOperation(ctx, operationID)
	if err != nil {
		return supportability.AsyncOperation{}, err
	}
	if op.Status != supportability.AsyncPending {
		return supportability.AsyncOperation{}, ErrNotExecutable
	}
	return m.run(ctx, op)
}

func (m *Manager) run(ctx context.Context, op supportability.AsyncOperation) (supportability.AsyncOperation, error) {
	op.Status = supportability.AsyncRunning
	op.UpdatedAt = m.now()
	if err := m.store.UpdateAsyncOperation(ctx, op); err != nil {
		return supportability.AsyncOperation{}, fmt.Errorf("async: mark running: %w", err)
	}

	exec, ok := m.executors[op.OperationType]
	if !ok {
		op.Status = supportability.AsyncFailed
		op.FailureReason = fmt.Sprintf("async: no executor registered for %s", op.OperationType)
		op.UpdatedAt = m.now()
		_ = m.store.UpdateAsyncOperation(ctx, op)
		return op, nil
	}

	result, err := exec(ctx, op.Request)
	op.UpdatedAt = m.now()
	if err != nil {
		op.Status = supportability.AsyncFailed
		op.FailureReason = err.Error()
	} else {
		op.Status = supportability.AsyncSucceeded
		op.Result = result
	}
	if updErr := m.store.UpdateAsyncOperation(ctx, op); updErr != nil {
		return supportability.AsyncOperation{}, fmt.Errorf("async: record outcome: %w", updErr)
	}
	return op, nil
}

// Get returns the current state of an operation (spec §4.14 get_operation).
func (m *Manager) Get(ctx context.Context, operationID string) (supportability.AsyncOperation, error) {
	return m.store.GetAsyncOperation(ctx, operationID)
}

// List returns operations matching filters (spec §4.14 list_operations).
func (m *Manager) List(ctx context.Context, filters supportability.Filters, page supportability.Page) ([]supportability.AsyncOperation, error) {
	return m.store.ListAsyncOperations(ctx, filters, page)
}

// Sweep purges terminal operations older than the configured TTL,
// unconditionally (bypassing the opportunistic rate limit); a periodic
// caller (cmd/dpmservice's background loop) uses this directly.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.store.PurgeExpiredAsyncOperations(ctx, m.ttl, m.now())
}

// maybeSweep runs Sweep at most once per the manager's rate-limit interval,
// so a hot Submit path doesn't turn every call into a full table scan.
func (m *Manager) maybeSweep(ctx context.Context) {
	m.sweepLimit.Do(func() { _, _ = m.Sweep(ctx) })
}
