package migration

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockRunner(t *testing.T) (*Runner, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewRunner(sqlxDB), mock, func() { db.Close() }
}

func TestApplyRunsPendingMigrationsInOrder(t *testing.T) {
	runner, mock, closeFn := newMockRunner(t)
	defer closeFn()

	migrations := []Migration{
		{Namespace: "dpm", Version: 1, Name: "first", SQL: "CREATE TABLE a (id TEXT)"},
		{Namespace: "dpm", Version: 2, Name: "second", SQL: "CREATE TABLE b (id TEXT)"},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, checksum FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "checksum"}))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, runner.Apply("dpm", migrations))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySkipsAlreadyAppliedMatchingChecksum(t *testing.T) {
	runner, mock, closeFn := newMockRunner(t)
	defer closeFn()

	m := Migration{Namespace: "dpm", Version: 1, Name: "first", SQL: "CREATE TABLE a (id TEXT)"}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, checksum FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "checksum"}).AddRow(1, m.Checksum()))
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, runner.Apply("dpm", []Migration{m}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyReturnsChecksumMismatch(t *testing.T) {
	runner, mock, closeFn := newMockRunner(t)
	defer closeFn()

	m := Migration{Namespace: "dpm", Version: 1, Name: "first", SQL: "CREATE TABLE a (id TEXT)"}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, checksum FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "checksum"}).AddRow(1, "stale-checksum"))
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))

	err := runner.Apply("dpm", []Migration{m})
	require.Error(t, err)
	require.EqualError(t, err, "POSTGRES_MIGRATION_CHECKSUM_MISMATCH:dpm:1")
}

func TestChecksumStableForIdenticalSQL(t *testing.T) {
	a := Migration{Namespace: "dpm", Version: 1, Name: "x", SQL: "CREATE TABLE t (id TEXT)"}
	b := Migration{Namespace: "dpm", Version: 1, Name: "x", SQL: "CREATE TABLE t (id TEXT)"}
	require.Equal(t, a.Checksum(), b.Checksum())
}
