// Package proposal implements the advisory proposal aggregate's workflow
// state machine: allowed transitions are a static table, and every
// transition is optimistic-concurrency checked against the caller's
// expected current state (spec §3 "Proposal aggregate", §9 REDESIGN FLAGS
// "Workflow state machine").
package proposal

import (
	"fmt"
	"time"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
)

// State is one state of the proposal aggregate (spec §3).
type State string

const (
	StateDraft                  State = "DRAFT"
	StateRiskReview             State = "RISK_REVIEW"
	StateComplianceReview       State = "COMPLIANCE_REVIEW"
	StateAwaitingClientConsent  State = "AWAITING_CLIENT_CONSENT"
	StateExecutionReady         State = "EXECUTION_READY"
	StateExecuted               State = "EXECUTED"
	StateRejected               State = "REJECTED"
	StateCancelled              State = "CANCELLED"
	StateExpired                State = "EXPIRED"
)

// Action is a workflow decision recorded against a proposal (spec §3
// WorkflowDecision).
type Action string

const (
	ActionApprove        Action = "APPROVE"
	ActionReject         Action = "REJECT"
	ActionRequestChanges Action = "REQUEST_CHANGES"
	ActionCancel         Action = "CANCEL"
	ActionExpire         Action = "EXPIRE"
	ActionExecute        Action = "EXECUTE"
)

// transitions is the static allowed-transition table (spec §9 REDESIGN
// FLAGS): (current state, action) -> next state. Any pair absent from this
// table is rejected.
var transitions = map[State]map[Action]State{
	StateDraft: {
		ActionApprove:        StateRiskReview,
		ActionReject:         StateRejected,
		ActionRequestChanges: StateDraft,
		ActionCancel:         StateCancelled,
	},
	StateRiskReview: {
		ActionApprove:        StateComplianceReview,
		ActionReject:         StateRejected,
		ActionRequestChanges: StateDraft,
		ActionCancel:         StateCancelled,
	},
	StateComplianceReview: {
		ActionApprove:        StateAwaitingClientConsent,
		ActionReject:         StateRejected,
		ActionRequestChanges: StateDraft,
		ActionCancel:         StateCancelled,
	},
	StateAwaitingClientConsent: {
		ActionApprove: StateExecutionReady,
		ActionReject:  StateRejected,
		ActionCancel:  StateCancelled,
	},
	StateExecutionReady: {
		ActionExecute: StateExecuted,
		ActionCancel:  StateCancelled,
		ActionExpire:  StateExpired,
	},
}

// ProposalVersion is an immutable snapshot of a simulation result attached
// to a proposal (spec §3).
type ProposalVersion struct {
	VersionNo         int
	ArtifactHash      string
	RequestHash       string
	ArtifactJSON      string
	EvidenceBundleJSON string
	GateDecisionJSON  string
	StatusAtCreation  model.RunStatus
	CreatedAt         time.Time
}

// WorkflowEvent is one append-only entry in a proposal's event log.
type WorkflowEvent struct {
	EventID     string
	ProposalID  string
	FromState   State
	ToState     State
	Action      Action
	ReasonCode  string
	Comment     string
	ActorID     string
	OccurredAt  time.Time
	CorrelationID string
}

// Approval is a recorded sign-off against a specific proposal version.
type Approval struct {
	ApprovalID string
	ProposalID string
	VersionNo  int
	ActorID    string
	DecidedAt  time.Time
}

// Proposal is the in-memory aggregate: current state/version plus the
// append-only logs backing it.
type Proposal struct {
	ProposalID  string
	PortfolioID string
	State       State
	VersionNo   int
	Versions    []ProposalVersion
	Events      []WorkflowEvent
	Approvals   []Approval
	LastEventAt time.Time
}

// New creates a DRAFT proposal with its first version attached.
func New(proposalID, portfolioID string, firstVersion ProposalVersion, now time.Time) *Proposal {
	firstVersion.VersionNo = 1
	firstVersion.CreatedAt = now
	return &Proposal{
		ProposalID:  proposalID,
		PortfolioID: portfolioID,
		State:       StateDraft,
		VersionNo:   1,
		Versions:    []ProposalVersion{firstVersion},
		LastEventAt: now,
	}
}

// AddVersion appends a new immutable version without changing state,
// bumping version_no (spec §6 "POST .../versions").
func (p *Proposal) AddVersion(v ProposalVersion, now time.Time) ProposalVersion {
	p.VersionNo++
	v.VersionNo = p.VersionNo
	v.CreatedAt = now
	p.Versions = append(p.Versions, v)
	return v
}

// Transition applies action against expectedState (optimistic concurrency,
// spec §9 REDESIGN FLAGS) and, on success, appends the resulting
// WorkflowEvent. Returns DPM_PROPOSAL_STATE_CONFLICT when expectedState
// does not match the current state, and DPM_PROPOSAL_TRANSITION_INVALID
// when the (state, action) pair has no entry in the transition table.
func (p *Proposal) Transition(expectedState State, action Action, reasonCode, comment, actorID, correlationID, eventID string, now time.Time) (WorkflowEvent, error) {
	if p.State != expectedState {
		return WorkflowEvent{}, fmt.Errorf("DPM_PROPOSAL_STATE_CONFLICT: expected %s, was %s", expectedState, p.State)
	}
	allowed, ok := transitions[p.State]
	if !ok {
		return WorkflowEvent{}, fmt.Errorf("DPM_PROPOSAL_TRANSITION_INVALID: %s has no allowed transitions", p.State)
	}
	next, ok := allowed[action]
	if !ok {
		return WorkflowEvent{}, fmt.Errorf("DPM_PROPOSAL_TRANSITION_INVALID: %s not allowed from %s", action, p.State)
	}

	event := WorkflowEvent{
		EventID:       eventID,
		ProposalID:    p.ProposalID,
		FromState:     p.State,
		ToState:       next,
		Action:        action,
		ReasonCode:    reasonCode,
		Comment:       comment,
		ActorID:       actorID,
		OccurredAt:    now,
		CorrelationID: correlationID,
	}
	p.State = next
	p.LastEventAt = now
	p.Events = append(p.Events, event)
	return event, nil
}

// RecordApproval appends an Approval against the proposal's current
// version (spec §6 "POST .../approvals").
func (p *Proposal) RecordApproval(approvalID, actorID string, now time.Time) Approval {
	approval := Approval{
		ApprovalID: approvalID,
		ProposalID: p.ProposalID,
		VersionNo:  p.VersionNo,
		ActorID:    actorID,
		DecidedAt:  now,
	}
	p.Approvals = append(p.Approvals, approval)
	return approval
}

// IsTerminal reports whether state has no outgoing transitions.
func IsTerminal(s State) bool {
	_, ok := transitions[s]
	return !ok
}

// InitialGate derives the starting DRAFT-successor state a fresh
// simulation result routes to, mirroring the workflow gate's routing
// values (spec §4.8) onto proposal states.
func InitialGate(gate model.GateValue) State {
	switch gate {
	case model.GateComplianceReviewRequired:
		return StateComplianceReview
	case model.GateRiskReviewRequired:
		return StateRiskReview
	case model.GateClientConsentRequired:
		return StateAwaitingClientConsent
	case model.GateExecutionReady:
		return StateExecutionReady
	default:
		return StateDraft
	}
}
