// Package sqlite is the SQLite-backed supportability.Store
// (DPM_SUPPORTABILITY_STORE_BACKEND=SQLITE), the single-file persistence
// option for local/dev profiles that still want durability across process
// restarts without standing up Postgres (spec §5 "Profile guardrails", §6
// "Environment configuration"). Schema/DDL is applied inline at New rather
// than through internal/migration, which is scoped to Postgres's advisory
// locks and schema_migrations bookkeeping; a single-writer SQLite file has
// no concurrent-deployer problem to serialize against.
//
// Modeled on the teacher's pack sibling aristath-sentinel, whose
// portfolio/history_repository.go opens a database/sql "sqlite3" handle via
// github.com/mattn/go-sqlite3; this adapter wraps that same driver with
// jmoiron/sqlx and a circuit breaker, keeping the column layout and query
// shapes of internal/supportability/store/postgres so the three adapters
// stay interchangeable behind supportability.Store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sony/gobreaker"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

const queryTimeout = 3 * time.Second

const schemaDDL = `
CREATE TABLE IF NOT EXISTS dpm_supportability_runs (
	run_id          TEXT PRIMARY KEY,
	correlation_id  TEXT NOT NULL,
	idempotency_key TEXT NOT NULL DEFAULT '',
	request_hash    TEXT NOT NULL,
	portfolio_id    TEXT NOT NULL,
	operation_type  TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS dpm_supportability_runs_correlation_idx ON dpm_supportability_runs (correlation_id);
CREATE INDEX IF NOT EXISTS dpm_supportability_runs_request_hash_idx ON dpm_supportability_runs (request_hash);
CREATE INDEX IF NOT EXISTS dpm_supportability_runs_portfolio_idx ON dpm_supportability_runs (portfolio_id, created_at);

CREATE TABLE IF NOT EXISTS dpm_supportability_run_artifacts (
	run_id     TEXT NOT NULL,
	name       TEXT NOT NULL,
	mode       TEXT NOT NULL,
	content    BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (run_id, name)
);

CREATE TABLE IF NOT EXISTS dpm_idempotency_records (
	idempotency_key TEXT PRIMARY KEY,
	request_hash    TEXT NOT NULL,
	response_body   BLOB NOT NULL,
	run_id          TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dpm_idempotency_history (
	idempotency_key TEXT NOT NULL,
	request_hash    TEXT NOT NULL,
	response_body   BLOB NOT NULL,
	run_id          TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS dpm_idempotency_history_key_idx ON dpm_idempotency_history (idempotency_key, created_at);

CREATE TABLE IF NOT EXISTS dpm_async_operations (
	operation_id    TEXT PRIMARY KEY,
	correlation_id  TEXT NOT NULL,
	operation_type  TEXT NOT NULL,
	status          TEXT NOT NULL,
	request         BLOB NOT NULL,
	result          BLOB,
	failure_reason  TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS dpm_async_operations_status_idx ON dpm_async_operations (status, updated_at);

CREATE TABLE IF NOT EXISTS dpm_workflow_decisions (
	run_id         TEXT NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT '',
	from_status    TEXT NOT NULL,
	to_status      TEXT NOT NULL,
	actor_id       TEXT NOT NULL,
	action_code    TEXT NOT NULL,
	reason_code    TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS dpm_workflow_decisions_run_idx ON dpm_workflow_decisions (run_id, created_at);
CREATE INDEX IF NOT EXISTS dpm_workflow_decisions_correlation_idx ON dpm_workflow_decisions (correlation_id);

CREATE TABLE IF NOT EXISTS dpm_lineage_edges (
	from_entity_id TEXT NOT NULL,
	to_entity_id   TEXT NOT NULL,
	relation       TEXT NOT NULL,
	created_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS dpm_lineage_edges_from_idx ON dpm_lineage_edges (from_entity_id);
CREATE INDEX IF NOT EXISTS dpm_lineage_edges_to_idx ON dpm_lineage_edges (to_entity_id);
`

// Store is a supportability.Store backed by a single SQLite file.
type Store struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker
}

// Open opens (creating if absent) the SQLite database at path, applies the
// schema DDL, and returns a ready Store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("supportability: open sqlite db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // go-sqlite3 serializes writers anyway; avoid SQLITE_BUSY churn
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("supportability: apply sqlite schema: %w", err)
	}
	return New(db), nil
}

// New wraps an already-open db with a circuit breaker, matching the
// teacher's infra/breakers settings shape.
func New(db *sqlx.DB) *Store {
	st := gobreaker.Settings{
		Name:        "supportability_store_sqlite",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Store{db: db, breaker: gobreaker.NewCircuitBreaker(st)}
}

var _ supportability.Store = (*Store)(nil)

func (s *Store) execute(fn func(ctx context.Context) error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		return nil, fn(ctx)
	})
	return err
}

type runRow struct {
	RunID          string    `db:"run_id"`
	CorrelationID  string    `db:"correlation_id"`
	IdempotencyKey string    `db:"idempotency_key"`
	RequestHash    string    `db:"request_hash"`
	PortfolioID    string    `db:"portfolio_id"`
	OperationType  string    `db:"operation_type"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

func toRunRow(r supportability.Run) runRow {
	return runRow{
		RunID:          r.RunID,
		CorrelationID:  r.CorrelationID,
		IdempotencyKey: r.IdempotencyKey,
		RequestHash:    r.RequestHash,
		PortfolioID:    r.PortfolioID,
		OperationType:  string(r.OperationType),
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt,
	}
}

func (r runRow) toRun() supportability.Run {
	return supportability.Run{
		RunID:          r.RunID,
		CorrelationID:  r.CorrelationID,
		IdempotencyKey: r.IdempotencyKey,
		RequestHash:    r.RequestHash,
		PortfolioID:    r.PortfolioID,
		OperationType:  supportability.OperationType(r.OperationType),
		Status:         supportability.RunStatus(r.Status),
		CreatedAt:      r.CreatedAt,
	}
}

func (s *Store) SaveRun(_ context.Context, run supportability.Run) error {
	row := toRunRow(run)
	return s.execute(func(ctx context.Context) error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO dpm_supportability_runs
				(run_id, correlation_id, idempotency_key, request_hash, portfolio_id, operation_type, status, created_at)
			VALUES
				(:run_id, :correlation_id, :idempotency_key, :request_hash, :portfolio_id, :operation_type, :status, :created_at)
			ON CONFLICT (run_id) DO UPDATE SET status = excluded.status`, row)
		if err != nil {
			return fmt.Errorf("supportability: save run %s: %w", run.RunID, err)
		}
		return nil
	})
}

func (s *Store) getRunByColumn(column, value string) (supportability.Run, error) {
	var row runRow
	err := s.execute(func(ctx context.Context) error {
		query := fmt.Sprintf(`SELECT run_id, correlation_id, idempotency_key, request_hash, portfolio_id, operation_type, status, created_at
			FROM dpm_supportability_runs WHERE %s = ?`, column)
		e := s.db.GetContext(ctx, &row, query, value)
		if e == sql.ErrNoRows {
			return supportability.ErrNotFound
		}
		return e
	})
	if err != nil {
		return supportability.Run{}, err
	}
	return row.toRun(), nil
}

func (s *Store) GetRun(_ context.Context, runID string) (supportability.Run, error) {
	return s.getRunByColumn("run_id", runID)
}

func (s *Store) GetRunByCorrelation(_ context.Context, correlationID string) (supportability.Run, error) {
	return s.getRunByColumn("correlation_id", correlationID)
}

func (s *Store) GetRunByRequestHash(_ context.Context, requestHash string) (supportability.Run, error) {
	return s.getRunByColumn("request_hash", requestHash)
}

func (s *Store) ListRuns(_ context.Context, filters supportability.Filters, page supportability.Page) (supportability.RunPage, error) {
	cursor, err := supportability.DecodeCursor(page.Cursor)
	if err != nil {
		return supportability.RunPage{}, err
	}
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT run_id, correlation_id, idempotency_key, request_hash, portfolio_id, operation_type, status, created_at
		FROM dpm_supportability_runs WHERE 1=1`
	args := []interface{}{}
	add := func(clause string, val interface{}) {
		args = append(args, val)
		query += fmt.Sprintf(" AND %s ?", clause)
	}
	if !filters.From.IsZero() {
		add("created_at >=", filters.From)
	}
	if !filters.To.IsZero() {
		add("created_at <=", filters.To)
	}
	if filters.Status != "" {
		add("status =", filters.Status)
	}
	if filters.PortfolioID != "" {
		add("portfolio_id =", filters.PortfolioID)
	}
	if filters.RequestHash != "" {
		add("request_hash =", filters.RequestHash)
	}
	if filters.OperationType != "" {
		add("operation_type =", filters.OperationType)
	}
	if filters.CorrelationID != "" {
		add("correlation_id =", filters.CorrelationID)
	}
	if !cursor.IsZero() {
		args = append(args, cursor.CreatedAt, cursor.ID)
		query += " AND (created_at, run_id) > (?, ?)"
	}
	query += " ORDER BY created_at ASC, run_id ASC"
	args = append(args, limit+1)
	query += " LIMIT ?"

	var rows []runRow
	err = s.execute(func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return supportability.RunPage{}, fmt.Errorf("supportability: list runs: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	out := make([]supportability.Run, len(rows))
	for i, r := range rows {
		out[i] = r.toRun()
	}
	next := ""
	if hasMore {
		last := out[len(out)-1]
		next = supportability.EncodeCursor(last.CreatedAt, last.RunID)
	}
	return supportability.RunPage{Runs: out, NextCursor: next}, nil
}

type artifactRow struct {
	RunID     string    `db:"run_id"`
	Name      string    `db:"name"`
	Mode      string    `db:"mode"`
	Content   []byte    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) SaveRunArtifact(_ context.Context, artifact supportability.RunArtifact) error {
	row := artifactRow{
		RunID: artifact.RunID, Name: artifact.Name, Mode: string(artifact.Mode),
		Content: artifact.Content, CreatedAt: artifact.CreatedAt,
	}
	return s.execute(func(ctx context.Context) error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO dpm_supportability_run_artifacts (run_id, name, mode, content, created_at)
			VALUES (:run_id, :name, :mode, :content, :created_at)
			ON CONFLICT (run_id, name) DO UPDATE SET mode = excluded.mode, content = excluded.content`, row)
		return err
	})
}

func (s *Store) GetRunArtifact(_ context.Context, runID, name string) (supportability.RunArtifact, error) {
	var row artifactRow
	err := s.execute(func(ctx context.Context) error {
		e := s.db.GetContext(ctx, &row, `SELECT run_id, name, mode, content, created_at
			FROM dpm_supportability_run_artifacts WHERE run_id = ? AND name = ?`, runID, name)
		if e == sql.ErrNoRows {
			return supportability.ErrNotFound
		}
		return e
	})
	if err != nil {
		return supportability.RunArtifact{}, err
	}
	return supportability.RunArtifact{
		RunID: row.RunID, Name: row.Name, Mode: supportability.ArtifactMode(row.Mode),
		Content: row.Content, CreatedAt: row.CreatedAt,
	}, nil
}

type idempotencyRow struct {
	Key          string    `db:"idempotency_key"`
	RequestHash  string    `db:"request_hash"`
	ResponseBody []byte    `db:"response_body"`
	RunID        string    `db:"run_id"`
	CreatedAt    time.Time `db:"created_at"`
}

func (s *Store) SaveIdempotency(_ context.Context, rec supportability.IdempotencyRecord) error {
	return s.execute(func(ctx context.Context) error {
		var existing string
		err := s.db.GetContext(ctx, &existing, `SELECT request_hash FROM dpm_idempotency_records WHERE idempotency_key = ?`, rec.Key)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if err == nil && existing != rec.RequestHash {
			return supportability.ErrIdempotencyKeyConflict
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO dpm_idempotency_records (idempotency_key, request_hash, response_body, run_id, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (idempotency_key) DO UPDATE SET response_body = excluded.response_body, run_id = excluded.run_id`,
			rec.Key, rec.RequestHash, rec.ResponseBody, rec.RunID, rec.CreatedAt)
		return err
	})
}

func (s *Store) GetIdempotencyByKey(_ context.Context, key string) (supportability.IdempotencyRecord, error) {
	var row idempotencyRow
	err := s.execute(func(ctx context.Context) error {
		e := s.db.GetContext(ctx, &row, `SELECT idempotency_key, request_hash, response_body, run_id, created_at
			FROM dpm_idempotency_records WHERE idempotency_key = ?`, key)
		if e == sql.ErrNoRows {
			return supportability.ErrNotFound
		}
		return e
	})
	if err != nil {
		return supportability.IdempotencyRecord{}, err
	}
	return supportability.IdempotencyRecord{
		Key: row.Key, RequestHash: row.RequestHash, ResponseBody: row.ResponseBody,
		RunID: row.RunID, CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Store) AppendIdempotencyHistory(_ context.Context, rec supportability.IdempotencyRecord) error {
	return s.execute(func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO dpm_idempotency_history (idempotency_key, request_hash, response_body, run_id, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.Key, rec.RequestHash, rec.ResponseBody, rec.RunID, rec.CreatedAt)
		return err
	})
}

func (s *Store) ListIdempotencyHistory(_ context.Context, key string) ([]supportability.IdempotencyRecord, error) {
	var rows []idempotencyRow
	err := s.execute(func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, `SELECT idempotency_key, request_hash, response_body, run_id, created_at
			FROM dpm_idempotency_history WHERE idempotency_key = ? ORDER BY created_at ASC`, key)
	})
	if err != nil {
		return nil, fmt.Errorf("supportability: list idempotency history: %w", err)
	}
	out := make([]supportability.IdempotencyRecord, len(rows))
	for i, r := range rows {
		out[i] = supportability.IdempotencyRecord{
			Key: r.Key, RequestHash: r.RequestHash, ResponseBody: r.ResponseBody,
			RunID: r.RunID, CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

type asyncRow struct {
	OperationID   string    `db:"operation_id"`
	CorrelationID string    `db:"correlation_id"`
	OperationType string    `db:"operation_type"`
	Status        string    `db:"status"`
	Request       []byte    `db:"request"`
	Result        []byte    `db:"result"`
	FailureReason string    `db:"failure_reason"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func toAsyncRow(op supportability.AsyncOperation) asyncRow {
	return asyncRow{
		OperationID: op.OperationID, CorrelationID: op.CorrelationID,
		OperationType: string(op.OperationType), Status: string(op.Status),
		Request: op.Request, Result: op.Result, FailureReason: op.FailureReason,
		CreatedAt: op.CreatedAt, UpdatedAt: op.UpdatedAt,
	}
}

func (r asyncRow) toOp() supportability.AsyncOperation {
	return supportability.AsyncOperation{
		OperationID: r.OperationID, CorrelationID: r.CorrelationID,
		OperationType: supportability.OperationType(r.OperationType), Status: supportability.AsyncStatus(r.Status),
		Request: r.Request, Result: r.Result, FailureReason: r.FailureReason,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateAsyncOperation(_ context.Context, op supportability.AsyncOperation) error {
	row := toAsyncRow(op)
	return s.execute(func(ctx context.Context) error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO dpm_async_operations
				(operation_id, correlation_id, operation_type, status, request, result, failure_reason, created_at, updated_at)
			VALUES
				(:operation_id, :correlation_id, :operation_type, :status, :request, :result, :failure_reason, :created_at, :updated_at)`, row)
		return err
	})
}

func (s *Store) UpdateAsyncOperation(_ context.Context, op supportability.AsyncOperation) error {
	row := toAsyncRow(op)
	return s.execute(func(ctx context.Context) error {
		res, err := s.db.NamedExecContext(ctx, `
			UPDATE dpm_async_operations
			SET status = :status, result = :result, failure_reason = :failure_reason, updated_at = :updated_at
			WHERE operation_id = :operation_id`, row)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return supportability.ErrNotFound
		}
		return nil
	})
}

func (s *Store) GetAsyncOperation(_ context.Context, operationID string) (supportability.AsyncOperation, error) {
	var row asyncRow
	err := s.execute(func(ctx context.Context) error {
		e := s.db.GetContext(ctx, &row, `SELECT operation_id, correlation_id, operation_type, status, request, result, failure_reason, created_at, updated_at
			FROM dpm_async_operations WHERE operation_id = ?`, operationID)
		if e == sql.ErrNoRows {
			return supportability.ErrNotFound
		}
		return e
	})
	if err != nil {
		return supportability.AsyncOperation{}, err
	}
	return row.toOp(), nil
}

func (s *Store) ListAsyncOperations(_ context.Context, filters supportability.Filters, page supportability.Page) ([]supportability.AsyncOperation, error) {
	query := `SELECT operation_id, correlation_id, operation_type, status, request, result, failure_reason, created_at, updated_at
		FROM dpm_async_operations WHERE 1=1`
	args := []interface{}{}
	add := func(clause string, val interface{}) {
		args = append(args, val)
		query += fmt.Sprintf(" AND %s ?", clause)
	}
	if filters.Status != "" {
		add("status =", filters.Status)
	}
	if filters.OperationType != "" {
		add("operation_type =", filters.OperationType)
	}
	if filters.CorrelationID != "" {
		add("correlation_id =", filters.CorrelationID)
	}
	query += " ORDER BY created_at ASC"
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += " LIMIT ?"

	var rows []asyncRow
	err := s.execute(func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("supportability: list async operations: %w", err)
	}
	out := make([]supportability.AsyncOperation, len(rows))
	for i, r := range rows {
		out[i] = r.toOp()
	}
	return out, nil
}

func (s *Store) PurgeExpiredAsyncOperations(_ context.Context, ttl time.Duration, now time.Time) (int, error) {
	var n int64
	err := s.execute(func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM dpm_async_operations
			WHERE status IN ('SUCCEEDED','FAILED') AND updated_at <= ?`, now.Add(-ttl))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("supportability: purge expired async operations: %w", err)
	}
	return int(n), nil
}

type workflowRow struct {
	RunID         string    `db:"run_id"`
	CorrelationID string    `db:"correlation_id"`
	FromStatus    string    `db:"from_status"`
	ToStatus      string    `db:"to_status"`
	ActorID       string    `db:"actor_id"`
	ActionCode    string    `db:"action_code"`
	ReasonCode    string    `db:"reason_code"`
	CreatedAt     time.Time `db:"created_at"`
}

func (s *Store) AppendWorkflowDecision(_ context.Context, dec supportability.WorkflowDecision) error {
	return s.execute(func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO dpm_workflow_decisions (run_id, correlation_id, from_status, to_status, actor_id, action_code, reason_code, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			dec.RunID, dec.CorrelationID, dec.FromStatus, dec.ToStatus, dec.ActorID, dec.ActionCode, dec.ReasonCode, dec.CreatedAt)
		return err
	})
}

func (s *Store) ListWorkflowDecisions(_ context.Context, filters supportability.Filters, page supportability.Page) ([]supportability.WorkflowDecision, error) {
	query := `SELECT run_id, correlation_id, from_status, to_status, actor_id, action_code, reason_code, created_at
		FROM dpm_workflow_decisions WHERE 1=1`
	args := []interface{}{}
	add := func(clause string, val interface{}) {
		args = append(args, val)
		query += fmt.Sprintf(" AND %s ?", clause)
	}
	if filters.ActorID != "" {
		add("actor_id =", filters.ActorID)
	}
	if filters.Action != "" {
		add("action_code =", filters.Action)
	}
	if filters.ReasonCode != "" {
		add("reason_code =", filters.ReasonCode)
	}
	if filters.CorrelationID != "" {
		add("correlation_id =", filters.CorrelationID)
	}
	query += " ORDER BY created_at ASC"
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += " LIMIT ?"

	var rows []workflowRow
	err := s.execute(func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("supportability: list workflow decisions: %w", err)
	}
	out := make([]supportability.WorkflowDecision, len(rows))
	for i, r := range rows {
		out[i] = supportability.WorkflowDecision{
			RunID: r.RunID, CorrelationID: r.CorrelationID, FromStatus: r.FromStatus, ToStatus: r.ToStatus,
			ActorID: r.ActorID, ActionCode: r.ActionCode, ReasonCode: r.ReasonCode, CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

func (s *Store) ListWorkflowDecisionsByRun(_ context.Context, runID string) ([]supportability.WorkflowDecision, error) {
	var rows []workflowRow
	err := s.execute(func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, `SELECT run_id, correlation_id, from_status, to_status, actor_id, action_code, reason_code, created_at
			FROM dpm_workflow_decisions WHERE run_id = ? ORDER BY created_at ASC`, runID)
	})
	if err != nil {
		return nil, fmt.Errorf("supportability: list workflow decisions by run: %w", err)
	}
	out := make([]supportability.WorkflowDecision, len(rows))
	for i, r := range rows {
		out[i] = supportability.WorkflowDecision{
			RunID: r.RunID, CorrelationID: r.CorrelationID, FromStatus: r.FromStatus, ToStatus: r.ToStatus,
			ActorID: r.ActorID, ActionCode: r.ActionCode, ReasonCode: r.ReasonCode, CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

func (s *Store) AppendLineageEdge(_ context.Context, edge supportability.LineageEdge) error {
	return s.execute(func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO dpm_lineage_edges (from_entity_id, to_entity_id, relation, created_at)
			VALUES (?, ?, ?, ?)`,
			edge.FromEntityID, edge.ToEntityID, edge.Relation, edge.CreatedAt)
		return err
	})
}

func (s *Store) ListLineageEdges(_ context.Context, entityID string) ([]supportability.LineageEdge, error) {
	var rows []struct {
		FromEntityID string    `db:"from_entity_id"`
		ToEntityID   string    `db:"to_entity_id"`
		Relation     string    `db:"relation"`
		CreatedAt    time.Time `db:"created_at"`
	}
	err := s.execute(func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, `SELECT from_entity_id, to_entity_id, relation, created_at
			FROM dpm_lineage_edges WHERE from_entity_id = ? OR to_entity_id = ? ORDER BY created_at ASC`, entityID, entityID)
	})
	if err != nil {
		return nil, fmt.Errorf("supportability: list lineage edges: %w", err)
	}
	out := make([]supportability.LineageEdge, len(rows))
	for i, r := range rows {
		out[i] = supportability.LineageEdge{FromEntityID: r.FromEntityID, ToEntityID: r.ToEntityID, Relation: r.Relation, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

func (s *Store) SupportabilitySummary(_ context.Context) (supportability.Summary, error) {
	summary := supportability.Summary{RunsByStatus: map[string]int{}, AsyncByStatus: map[string]int{}}
	err := s.execute(func(ctx context.Context) error {
		var runRows []struct {
			Status string `db:"status"`
			Count  int    `db:"count"`
		}
		if err := s.db.SelectContext(ctx, &runRows, `SELECT status, COUNT(*) AS count FROM dpm_supportability_runs GROUP BY status`); err != nil {
			return err
		}
		for _, r := range runRows {
			summary.RunsByStatus[r.Status] = r.Count
			summary.TotalRuns += r.Count
		}

		var asyncRows []struct {
			Status string `db:"status"`
			Count  int    `db:"count"`
		}
		if err := s.db.SelectContext(ctx, &asyncRows, `SELECT status, COUNT(*) AS count FROM dpm_async_operations GROUP BY status`); err != nil {
			return err
		}
		for _, r := range asyncRows {
			summary.AsyncByStatus[r.Status] = r.Count
			summary.TotalAsyncOperations += r.Count
		}

		var oldest sql.NullTime
		if err := s.db.GetContext(ctx, &oldest, `SELECT MIN(created_at) FROM dpm_supportability_runs`); err != nil {
			return err
		}
		if oldest.Valid {
			summary.OldestRunAt = oldest.Time
		}
		return nil
	})
	if err != nil {
		return supportability.Summary{}, fmt.Errorf("supportability: summary: %w", err)
	}
	return summary, nil
}

func (s *Store) PurgeExpiredRuns(_ context.Context, retentionDays int, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -retentionDays)
	var n int64
	err := s.execute(func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `DELETE FROM dpm_supportability_runs WHERE created_at <= ?`, cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}

		for _, stmt := range []string{
			`DELETE FROM dpm_supportability_run_artifacts WHERE run_id NOT IN (SELECT run_id FROM dpm_supportability_runs)`,
			`DELETE FROM dpm_workflow_decisions WHERE run_id NOT IN (SELECT run_id FROM dpm_supportability_runs)`,
			`DELETE FROM dpm_lineage_edges WHERE from_entity_id NOT IN (SELECT run_id FROM dpm_supportability_runs)
				AND to_entity_id NOT IN (SELECT run_id FROM dpm_supportability_runs)`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("supportability: purge expired runs: %w", err)
	}
	return int(n), nil
}
