// Package postgres is the Postgres-backed supportability.Store
// (DPM_SUPPORTABILITY_STORE_BACKEND=POSTGRES), used in any profile beyond local
// dev (spec §5 "Profile guardrails"). Modeled directly on the teacher's
// internal/persistence/postgres/trades_repo.go and internal/policy's own
// store/postgres adapter: sqlx.DB, context-bounded queries, a circuit
// breaker wrapping every call, *pq.Error code inspection on writes.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

const queryTimeout = 3 * time.Second

// Store is a supportability.Store backed by the "dpm" migration namespace's
// tables (dpm_supportability_runs, dpm_supportability_run_artifacts,
// dpm_idempotency_records, dpm_idempotency_history, dpm_async_operations,
// dpm_workflow_decisions, dpm_lineage_edges; spec §6, internal/migration).
type Store struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker
}

// New wraps db with a circuit breaker, tripping after 5 consecutive
// failures, matching the teacher's infra/breakers settings shape.
func New(db *sqlx.DB) *Store {
	st := gobreaker.Settings{
		Name:        "supportability_store",
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
			ON CONFLICT (run_id) DO UPDATE SET status = EXCLUDED.status`, row)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok {
				return fmt.Errorf("supportability: save run %s: %s (%s)", run.RunID, pqErr.Message, pqErr.Code)
			}
			return fmt.Errorf("supportability: save run %s: %w", run.RunID, err)
		}
		return nil
	})
}

func (s *Store) getRunByColumn(column, value string) (supportability.Run, error) {
	var row runRow
	err := s.execute(func(ctx context.Context) error {
		query := fmt.Sprintf(`SELECT run_id, correlation_id, idempotency_key, request_hash, portfolio_id, operation_type, status, created_at
			FROM dpm_supportability_runs WHERE %s = $1`, column)
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
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
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
		query += fmt.Sprintf(" AND (created_at, run_id) > ($%d, $%d)", len(args)-1, len(args))
	}
	query += " ORDER BY created_at ASC, run_id ASC"
	args = append(args, limit+1)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

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
			ON CONFLICT (run_id, name) DO UPDATE SET mode = EXCLUDED.mode, content = EXCLUDED.content`, row)
		return err
	})
}

func (s *Store) GetRunArtifact(_ context.Context, runID, name string) (supportability.RunArtifact, error) {
	var row artifactRow
	err := s.execute(func(ctx context.Context) error {
		e := s.db.GetContext(ctx, &row, `SELECT run_id, name, mode, content, created_at
			FROM dpm_supportability_run_artifacts WHERE run_id = $1 AND name = $2`, runID, name)
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
		err := s.db.GetContext(ctx, &existing, `SELECT request_hash FROM dpm_idempotency_records WHERE idempotency_key = $1`, rec.Key)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if err == nil && existing != rec.RequestHash {
			return supportability.ErrIdempotencyKeyConflict
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO dpm_idempotency_records (idempotency_key, request_hash, response_body, run_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (idempotency_key) DO UPDATE SET response_body = EXCLUDED.response_body, run_id = EXCLUDED.run_id`,
			rec.Key, rec.RequestHash, rec.ResponseBody, rec.RunID, rec.CreatedAt)
		return err
	})
}

func (s *Store) GetIdempotencyByKey(_ context.Context, key string) (supportability.IdempotencyRecord, error) {
	var row idempotencyRow
	err := s.execute(func(ctx context.Context) error {
		e := s.db.GetContext(ctx, &row, `SELECT idempotency_key, request_hash, response_body, run_id, created_at
			FROM dpm_idempotency_records WHERE idempotency_key = $1`, key)
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
			VALUES ($1, $2, $3, $4, $5)`,
			rec.Key, rec.RequestHash, rec.ResponseBody, rec.RunID, rec.CreatedAt)
		return err
	})
}

func (s *Store) ListIdempotencyHistory(_ context.Context, key string) ([]supportability.IdempotencyRecord, error) {
	var rows []idempotencyRow
	err := s.execute(func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, `SELECT idempotency_key, request_hash, response_body, run_id, created_at
			FROM dpm_idempotency_history WHERE idempotency_key = $1 ORDER BY created_at ASC`, key)
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
			FROM dpm_async_operations WHERE operation_id = $1`, operationID)
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
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
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
	query += fmt.Sprintf(" LIMIT $%d", len(args))

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
			WHERE status IN ('SUCCEEDED','FAILED') AND updated_at <= $1`, now.Add(-ttl))
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
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
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
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
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
	query += fmt.Sprintf(" LIMIT $%d", len(args))

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
			FROM dpm_workflow_decisions WHERE run_id = $1 ORDER BY created_at ASC`, runID)
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
			VALUES ($1, $2, $3, $4)`,
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
			FROM dpm_lineage_edges WHERE from_entity_id = $1 OR to_entity_id = $1 ORDER BY created_at ASC`, entityID)
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

		return s.db.GetContext(ctx, &summary.OldestRunAt, `SELECT COALESCE(MIN(created_at), now()) FROM dpm_supportability_runs`)
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

		res, err := tx.ExecContext(ctx, `DELETE FROM dpm_supportability_runs WHERE created_at <= $1`, cutoff)
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
