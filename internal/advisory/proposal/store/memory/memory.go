// Package memory is the in-process proposal.Store adapter
// (config.ProposalStoreBackend="IN_MEMORY"), grounded on the same
// mutex-guarded map pattern as internal/supportability/store/memory.
package memory

import (
	"context"
	"encoding/base64"
	"sort"
	"sync"

	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/proposal"
)

// Store is a mutex-guarded in-memory proposal.Store.
type Store struct {
	mu        sync.RWMutex
	proposals map[string]*proposal.Proposal
}

var _ proposal.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{proposals: map[string]*proposal.Proposal{}}
}

// Save inserts or replaces a proposal by ProposalID.
func (s *Store) Save(_ context.Context, p *proposal.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ProposalID] = p
	return nil
}

// Get returns the proposal with the given id.
func (s *Store) Get(_ context.Context, proposalID string) (*proposal.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[proposalID]
	if !ok {
		return nil, proposal.ErrNotFound
	}
	return p, nil
}

// List returns proposals matching filters, ordered by ProposalID, paginated
// by an opaque cursor over the last-seen ProposalID.
func (s *Store) List(_ context.Context, filters proposal.ListFilters, page proposal.Page) (proposal.ResultPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*proposal.Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		if filters.PortfolioID != "" && p.PortfolioID != filters.PortfolioID {
			continue
		}
		if filters.State != "" && p.State != filters.State {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ProposalID < matched[j].ProposalID })

	after := ""
	if page.Cursor != "" {
		decoded, err := decodeCursor(page.Cursor)
		if err != nil {
			return proposal.ResultPage{}, err
		}
		after = decoded
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}

	out := make([]*proposal.Proposal, 0, limit)
	for _, p := range matched {
		if after != "" && p.ProposalID <= after {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}

	next := ""
	if len(out) == limit {
		lastIdx := -1
		for i, p := range matched {
			if p.ProposalID == out[len(out)-1].ProposalID {
				lastIdx = i
				break
			}
		}
		if lastIdx >= 0 && lastIdx+1 < len(matched) {
			next = encodeCursor(out[len(out)-1].ProposalID)
		}
	}

	return proposal.ResultPage{Proposals: out, NextCursor: next}, nil
}

func encodeCursor(proposalID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(proposalID))
}

func decodeCursor(token string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
