// Package postgres is the Postgres-backed proposal.Store
// (PROPOSAL_STORE_BACKEND=POSTGRES), used in any profile beyond local dev
// (spec §5 "Profile guardrails"). The whole aggregate (versions, events,
// approvals) is stored as one JSON document per row, the same pattern
// internal/policy/store/postgres uses for policy_packs, against the
// "proposals" migration namespace's table (internal/migration).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"

	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/proposal"
)

const queryTimeout = 3 * time.Second

// Store is a proposal.Store backed by the proposals table.
type Store struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker
}

// New wraps db with a circuit breaker, tripping after 5 consecutive
// failures, matching the other Postgres adapters in this repo.
func New(db *sqlx.DB) *Store {
	st := gobreaker.Settings{
		Name:        "proposal_store",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Store{db: db, breaker: gobreaker.NewCircuitBreaker(st)}
}

var _ proposal.Store = (*Store)(nil)

func (s *Store) execute(fn func(ctx context.Context) error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		return nil, fn(ctx)
	})
	return err
}

type row struct {
	ProposalID  string `db:"proposal_id"`
	PortfolioID string `db:"portfolio_id"`
	State       string `db:"state"`
	Document    []byte `db:"document"`
}

// Save upserts the whole aggregate as one document.
func (s *Store) Save(ctx context.Context, p *proposal.Proposal) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("proposal store: marshal %s: %w", p.ProposalID, err)
	}
	return s.execute(func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO proposals (proposal_id, portfolio_id, state, document, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (proposal_id) DO UPDATE SET
				portfolio_id = EXCLUDED.portfolio_id,
				state = EXCLUDED.state,
				document = EXCLUDED.document,
				updated_at = now()
		`, p.ProposalID, p.PortfolioID, string(p.State), doc)
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("proposal store: save %s (pq code %s): %w", p.ProposalID, pqErr.Code, err)
		}
		return err
	})
}

// Get loads one proposal by id.
func (s *Store) Get(ctx context.Context, proposalID string) (*proposal.Proposal, error) {
	var r row
	err := s.execute(func(ctx context.Context) error {
		return s.db.GetContext(ctx, &r, `SELECT proposal_id, portfolio_id, state, document FROM proposals WHERE proposal_id = $1`, proposalID)
	})
	if err == sql.ErrNoRows {
		return nil, proposal.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("proposal store: get %s: %w", proposalID, err)
	}
	var p proposal.Proposal
	if err := json.Unmarshal(r.Document, &p); err != nil {
		return nil, fmt.Errorf("proposal store: unmarshal %s: %w", proposalID, err)
	}
	return &p, nil
}

// List returns proposals matching filters, ordered by proposal_id,
// paginated by a cursor that is the raw last-seen proposal_id (unlike
// store/memory, the cursor is not encoded). NextCursor is set whenever a
// full page of limit rows is returned, so a final page of exactly limit
// rows is followed by one empty page.
func (s *Store) List(ctx context.Context, filters proposal.ListFilters, page proposal.Page) (proposal.ResultPage, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT proposal_id, portfolio_id, state, document FROM proposals WHERE proposal_id > $1`
	args := []interface{}{page.Cursor}
	argN := 2
	if filters.PortfolioID != "" {
		query += fmt.Sprintf(" AND portfolio_id = $%d", argN)
		args = append(args, filters.PortfolioID)
		argN++
	}
	if filters.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argN)
		args = append(args, string(filters.State))
		argN++
	}
	query += fmt.Sprintf(" ORDER BY proposal_id ASC LIMIT $%d", argN)
	args = append(args, limit)

	var rows []row
	err := s.execute(func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return proposal.ResultPage{}, fmt.Errorf("proposal store: list: %w", err)
	}

	out := make([]*proposal.Proposal, 0, len(rows))
	for _, r := range rows {
		var p proposal.Proposal
		if err := json.Unmarshal(r.Document, &p); err != nil {
			return proposal.ResultPage{}, fmt.Errorf("proposal store: unmarshal %s: %w", r.ProposalID, err)
		}
		out = append(out, &p)
	}

	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ProposalID
	}
	return proposal.ResultPage{Proposals: out, NextCursor: next}, nil
}
