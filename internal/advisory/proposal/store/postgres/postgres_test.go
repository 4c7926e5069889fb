package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/proposal"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return New(sqlxDB), mock, func() { db.Close() }
}

func TestSaveUpsertsDocument(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	p := proposal.New("prop-1", "port-1", proposal.ProposalVersion{ArtifactHash: "h1"}, time.Now())

	mock.ExpectExec("INSERT INTO proposals").
		WithArgs("prop-1", "port-1", "DRAFT", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Save(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsNotFound(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectQuery("SELECT proposal_id, portfolio_id, state, document FROM proposals").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"proposal_id", "portfolio_id", "state", "document"}))

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, proposal.ErrNotFound)
}

func TestGetRoundTripsDocument(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	p := proposal.New("prop-1", "port-1", proposal.ProposalVersion{ArtifactHash: "h1"}, time.Now())
	doc, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT proposal_id, portfolio_id, state, document FROM proposals").
		WithArgs("prop-1").
		WillReturnRows(sqlmock.NewRows([]string{"proposal_id", "portfolio_id", "state", "document"}).
			AddRow("prop-1", "port-1", "DRAFT", doc))

	got, err := store.Get(context.Background(), "prop-1")
	require.NoError(t, err)
	require.Equal(t, "prop-1", got.ProposalID)
	require.Equal(t, proposal.StateDraft, got.State)
}

func TestListFiltersByPortfolioAndState(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	p := proposal.New("prop-1", "port-1", proposal.ProposalVersion{ArtifactHash: "h1"}, time.Now())
	doc, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT proposal_id, portfolio_id, state, document FROM proposals WHERE proposal_id > \\$1 AND portfolio_id = \\$2 AND state = \\$3").
		WithArgs("", "port-1", "DRAFT", 50).
		WillReturnRows(sqlmock.NewRows([]string{"proposal_id", "portfolio_id", "state", "document"}).
			AddRow("prop-1", "port-1", "DRAFT", doc))

	page, err := store.List(context.Background(), proposal.ListFilters{PortfolioID: "port-1", State: proposal.StateDraft}, proposal.Page{})
	require.NoError(t, err)
	require.Len(t, page.Proposals, 1)
	require.Equal(t, "prop-1", page.Proposals[0].ProposalID)
	require.Empty(t, page.NextCursor)
}
