package proposal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
)

func TestNewProposalStartsInDraftWithVersionOne(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New("PR1", "PORT1", ProposalVersion{ArtifactHash: "sha256:abc"}, now)
	require.Equal(t, StateDraft, p.State)
	require.Equal(t, 1, p.VersionNo)
	require.Len(t, p.Versions, 1)
}

func TestTransitionAppliesAllowedAction(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New("PR1", "PORT1", ProposalVersion{}, now)

	event, err := p.Transition(StateDraft, ActionApprove, "OK", "", "advisor-1", "corr-1", "evt-1", now)
	require.NoError(t, err)
	require.Equal(t, StateRiskReview, p.State)
	require.Equal(t, StateDraft, event.FromState)
	require.Equal(t, StateRiskReview, event.ToState)
}

func TestTransitionRejectsDisallowedAction(t *testing.T) {
	now := time.Now()
	p := New("PR1", "PORT1", ProposalVersion{}, now)
	p.State = StateExecuted

	_, err := p.Transition(StateExecuted, ActionApprove, "", "", "advisor-1", "corr-1", "evt-1", now)
	require.Error(t, err)
	require.Contains(t, err.Error(), "DPM_PROPOSAL_TRANSITION_INVALID")
}

func TestTransitionRejectsStaleExpectedState(t *testing.T) {
	now := time.Now()
	p := New("PR1", "PORT1", ProposalVersion{}, now)

	_, err := p.Transition(StateRiskReview, ActionApprove, "", "", "advisor-1", "corr-1", "evt-1", now)
	require.Error(t, err)
	require.Contains(t, err.Error(), "DPM_PROPOSAL_STATE_CONFLICT")
}

func TestAddVersionBumpsVersionNoWithoutChangingState(t *testing.T) {
	now := time.Now()
	p := New("PR1", "PORT1", ProposalVersion{}, now)
	v := p.AddVersion(ProposalVersion{ArtifactHash: "sha256:def"}, now)
	require.Equal(t, 2, v.VersionNo)
	require.Equal(t, StateDraft, p.State)
	require.Len(t, p.Versions, 2)
}

func TestInitialGateMapsToProposalState(t *testing.T) {
	require.Equal(t, StateComplianceReview, InitialGate(model.GateComplianceReviewRequired))
	require.Equal(t, StateRiskReview, InitialGate(model.GateRiskReviewRequired))
	require.Equal(t, StateAwaitingClientConsent, InitialGate(model.GateClientConsentRequired))
	require.Equal(t, StateExecutionReady, InitialGate(model.GateExecutionReady))
}

func TestIsTerminal(t *testing.T) {
	require.False(t, IsTerminal(StateDraft))
	require.True(t, IsTerminal(StateExecuted))
	require.True(t, IsTerminal(StateRejected))
}
