// Package postgres is the Postgres-backed policy pack catalog, used when
// DPM_POLICY_PACK_CATALOG_BACKEND=POSTGRES (spec §4.15, §5 "Profile
// guardrails"). Modeled directly on the teacher's
// internal/persistence/postgres/trades_repo.go: sqlx.DB, context-bounded
// queries, a circuit breaker wrapping every call.
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

	"github.com/sgajbi/lotus-advise-sub000/internal/policy"
)

const queryTimeout = 3 * time.Second

type row struct {
	ID       string `db:"id"`
	Document []byte `db:"document"`
}

// Store is a policy.Catalog backed by a `policy_packs` table, created by
// the "dpm" migration namespace (internal/migration).
type Store struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker
}

// New wraps db with a circuit breaker named like the teacher's store
// breakers, tripping after 5 consecutive failures.
func New(db *sqlx.DB) *Store {
	st := gobreaker.Settings{
		Name:        "policy_pack_catalog",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Store{db: db, breaker: gobreaker.NewCircuitBreaker(st)}
}

// Lookup implements policy.Catalog.
func (s *Store) Lookup(id string) (policy.Pack, bool) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.lookup(id)
	})
	if err != nil {
		return policy.Pack{}, false
	}
	pack, ok := result.(policy.Pack)
	return pack, ok
}

func (s *Store) lookup(id string) (policy.Pack, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var r row
	err := s.db.GetContext(ctx, &r, `SELECT id, document FROM policy_packs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return policy.Pack{}, fmt.Errorf("policy: pack %s not found", id)
	}
	if err != nil {
		return policy.Pack{}, fmt.Errorf("policy: lookup pack %s: %w", id, err)
	}

	var pack policy.Pack
	if err := json.Unmarshal(r.Document, &pack); err != nil {
		return policy.Pack{}, fmt.Errorf("policy: decode pack %s: %w", id, err)
	}
	return pack, nil
}

// List implements policy.Catalog, returning every pack row ordered by id.
func (s *Store) List() []policy.Pack {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.list()
	})
	if err != nil {
		return nil
	}
	packs, _ := result.([]policy.Pack)
	return packs
}

func (s *Store) list() ([]policy.Pack, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, document FROM policy_packs ORDER BY id`); err != nil {
		return nil, fmt.Errorf("policy: list packs: %w", err)
	}
	packs := make([]policy.Pack, 0, len(rows))
	for _, r := range rows {
		var pack policy.Pack
		if err := json.Unmarshal(r.Document, &pack); err != nil {
			return nil, fmt.Errorf("policy: decode pack %s: %w", r.ID, err)
		}
		packs = append(packs, pack)
	}
	return packs, nil
}

// Upsert writes pack's JSON document, used by the catalog admin path and by
// tests seeding a known pack.
func (s *Store) Upsert(pack policy.Pack) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	doc, err := json.Marshal(pack)
	if err != nil {
		return fmt.Errorf("policy: encode pack %s: %w", pack.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policy_packs (id, document)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document`,
		pack.ID, doc)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("policy: upsert pack %s: %s (%s)", pack.ID, pqErr.Message, pqErr.Code)
		}
		return fmt.Errorf("policy: upsert pack %s: %w", pack.ID, err)
	}
	return nil
}
