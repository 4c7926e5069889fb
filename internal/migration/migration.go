// Package migration applies forward-only SQL migrations to a Postgres
// database, organized by namespace, following the teacher's
// internal/persistence/postgres adapters for sqlx.DB use and error
// wrapping (spec §6 "Environment configuration").
//
// Each namespace's migrations are embedded Go literals rather than files on
// disk, since cmd/dpmservice ships as a single static binary; Apply walks
// them in ascending Version order inside one transaction per migration.
package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
)

// Migration is one forward-only schema change within a namespace.
type Migration struct {
	Namespace string
	Version   int
	Name      string
	SQL       string
}

// Checksum is the hex SHA-256 of the migration body, recorded in
// schema_migrations and compared on every run to detect drift between what
// was applied and what the running binary ships.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.SQL))
	return hex.EncodeToString(sum[:])
}

// ErrChecksumMismatch is returned, wrapped with the offending namespace and
// version, when a previously applied migration's checksum no longer matches
// the one the binary ships (spec §6).
type ErrChecksumMismatch struct {
	Namespace string
	Version   int
}

func (e *ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("POSTGRES_MIGRATION_CHECKSUM_MISMATCH:%s:%d", e.Namespace, e.Version)
}

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	namespace TEXT NOT NULL,
	version   INTEGER NOT NULL,
	name      TEXT NOT NULL,
	checksum  TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, version)
)`

// Runner applies Migrations against a Postgres database.
type Runner struct {
	db *sqlx.DB
}

// NewRunner wraps db. The caller owns db's lifecycle.
func NewRunner(db *sqlx.DB) *Runner {
	return &Runner{db: db}
}

// appliedRow mirrors one schema_migrations row.
type appliedRow struct {
	Version  int    `db:"version"`
	Checksum string `db:"checksum"`
}

// Apply runs every pending migration in namespace, in ascending Version
// order, inside a namespace-scoped Postgres advisory lock that serializes
// concurrent runners (spec §6 "Concurrency"). pg_advisory_lock waits with
// no timeout rather than failing on contention; Postgres itself
// queues the lock request, so no separate retry loop is needed here.
//
// Every already-applied migration's recorded checksum is compared against
// the one the binary computes for the same (namespace, version); a mismatch
// aborts the whole run without applying anything further, since it signals
// the deployed schema no longer matches what this binary expects.
func (r *Runner) Apply(namespace string, migrations []Migration) error {
	if _, err := r.db.Exec(schemaMigrationsDDL); err != nil {
		return fmt.Errorf("migration: ensure schema_migrations: %w", err)
	}

	lockKey := namespaceLockKey(namespace)
	if _, err := r.db.Exec(`SELECT pg_advisory_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("migration: acquire advisory lock for namespace %s: %w", namespace, err)
	}
	defer r.db.Exec(`SELECT pg_advisory_unlock($1)`, lockKey)

	var applied []appliedRow
	if err := r.db.Select(&applied, `SELECT version, checksum FROM schema_migrations WHERE namespace = $1`, namespace); err != nil {
		return fmt.Errorf("migration: load applied versions for namespace %s: %w", namespace, err)
	}
	appliedChecksum := make(map[int]string, len(applied))
	for _, a := range applied {
		appliedChecksum[a.Version] = a.Checksum
	}

	ordered := append([]Migration(nil), migrations...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	for _, m := range ordered {
		if m.Namespace != namespace {
			continue
		}
		if existing, ok := appliedChecksum[m.Version]; ok {
			if existing != m.Checksum() {
				return &ErrChecksumMismatch{Namespace: namespace, Version: m.Version}
			}
			continue
		}

		tx, err := r.db.Beginx()
		if err != nil {
			return fmt.Errorf("migration: begin tx for %s/%d: %w", namespace, m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration: apply %s/%d (%s): %w", namespace, m.Version, m.Name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (namespace, version, name, checksum) VALUES ($1, $2, $3, $4)`,
			namespace, m.Version, m.Name, m.Checksum(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration: record %s/%d: %w", namespace, m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration: commit %s/%d: %w", namespace, m.Version, err)
		}
	}

	return nil
}

// namespaceLockKey derives a stable bigint advisory-lock key from a
// namespace name, the same way Postgres's own hashtext() would, without
// requiring a round trip: FNV-1a folded into an int64.
func namespaceLockKey(namespace string) int64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(namespace); i++ {
		h ^= uint64(namespace[i])
		h *= 1099511628211
	}
	return int64(h)
}
