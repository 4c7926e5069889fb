package proposal

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no proposal matches.
var ErrNotFound = errors.New("proposal: not found")

// ListFilters narrows List (spec §6 "GET /rebalance/proposals").
type ListFilters struct {
	PortfolioID string
	State       State
}

// Page is a cursor-paginated request, following the same contract as
// internal/supportability.Page.
type Page struct {
	Cursor string
	Limit  int
}

// ResultPage is one page of proposals plus the cursor to request the next
// one (empty when this page is the last).
type ResultPage struct {
	Proposals  []*Proposal
	NextCursor string
}

// Store is the proposal aggregate's persistence port. Two adapters exist:
// store/memory (config.ProposalStoreBackend="IN_MEMORY") and store/postgres
// (config.ProposalStoreBackend="POSTGRES"), the latter following
// internal/supportability/store/postgres's gobreaker + sqlx pattern.
type Store interface {
	Save(ctx context.Context, p *Proposal) error
	Get(ctx context.Context, proposalID string) (*Proposal, error)
	List(ctx context.Context, filters ListFilters, page Page) (ResultPage, error)
}
