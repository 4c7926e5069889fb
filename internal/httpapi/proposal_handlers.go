package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/pipeline"
	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/proposal"
	"github.com/sgajbi/lotus-advise-sub000/internal/canonical"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/idgen"
	"github.com/sgajbi/lotus-advise-sub000/internal/policy"
)

// evidenceBundle is the packaged proof-of-work attached to a proposal
// version: the hashes a reviewer (or a later audit) checks the artifact
// against, independent of whatever storage backend ends up holding it
// (spec §3 ProposalVersion "evidence_bundle_json").
type evidenceBundle struct {
	Hashes struct {
		RequestHash  string `json:"request_hash"`
		ArtifactHash string `json:"artifact_hash"`
	} `json:"hashes"`
	GeneratedAt time.Time `json:"generated_at"`
}

// proposalArtifactResponse is the body of POST /rebalance/proposals/artifact:
// a packaging-only preview of a proposal simulation, with no run or
// proposal persisted. A client reviews this before deciding to open a
// proposal via POST /rebalance/proposals (spec §6, §2 advisory pipeline
// "artifact builder").
type proposalArtifactResponse struct {
	Artifact       model.ProposalResult `json:"artifact"`
	RequestHash    string               `json:"request_hash"`
	ArtifactHash   string               `json:"artifact_hash"`
	EvidenceBundle evidenceBundle       `json:"evidence_bundle"`
}

// ProposalArtifact handles POST /rebalance/proposals/artifact.
func (h *Handlers) ProposalArtifact(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeValidationError(w, "could not read request body")
		return
	}
	var req pipeline.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeValidationError(w, "malformed request body: "+err.Error())
		return
	}

	requestHash, err := canonical.RequestHash(req)
	if err != nil {
		writeValidationError(w, "could not canonicalize request: "+err.Error())
		return
	}
	correlationID := correlationIDFrom(r)
	resolution := h.resolvePolicy(r)
	req.Options = policy.ApplyToOptions(req.Options, resolution.Pack)

	runID := idgen.Prefixed("run")
	now := h.deps.Now()
	result := pipeline.Run(req, runID, correlationID, requestHash, now)

	artifactHash, err := canonical.ArtifactHash(result, "created_at")
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	bundle := evidenceBundle{GeneratedAt: now}
	bundle.Hashes.RequestHash = requestHash
	bundle.Hashes.ArtifactHash = artifactHash

	writeJSON(w, http.StatusOK, proposalArtifactResponse{
		Artifact: result, RequestHash: requestHash, ArtifactHash: artifactHash, EvidenceBundle: bundle,
	})
}

// evidenceBundleJSON marshals the request/artifact hash pair guarded by
// PROPOSAL_STORE_EVIDENCE_BUNDLE; an empty string when the feature is off
// leaves ProposalVersion.EvidenceBundleJSON at its zero value.
func (h *Handlers) evidenceBundleJSON(requestHash, artifactHash string, now time.Time) (string, error) {
	if !h.deps.Config.ProposalStoreEvidenceBundle {
		return "", nil
	}
	bundle := evidenceBundle{GeneratedAt: now}
	bundle.Hashes.RequestHash = requestHash
	bundle.Hashes.ArtifactHash = artifactHash
	out, err := json.Marshal(bundle)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (h *Handlers) proposalLifecycleEnabled(w http.ResponseWriter) bool {
	if !h.deps.Config.ProposalWorkflowLifecycleEnabled {
		writeFeatureDisabled(w, "DPM_PROPOSAL_WORKFLOW_LIFECYCLE_DISABLED")
		return false
	}
	return true
}

// createProposalRequest is the body of POST /rebalance/proposals: a
// proposal is always opened from a prior simulation result (spec §6 "a
// proposal's first version is the simulation that created it").
type createProposalRequest struct {
	PortfolioID  string              `json:"portfolio_id"`
	Artifact     model.ProposalResult `json:"artifact"`
	RequestHash  string              `json:"request_hash"`
}

// CreateProposal handles POST /rebalance/proposals.
func (h *Handlers) CreateProposal(w http.ResponseWriter, r *http.Request) {
	if !h.proposalLifecycleEnabled(w) {
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeValidationError(w, "could not read request body")
		return
	}
	var req createProposalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeValidationError(w, "malformed request body: "+err.Error())
		return
	}
	if h.deps.Config.ProposalRequireSimulationFlag && req.Artifact.RunID == "" {
		writeValidationError(w, "artifact must be a prior simulation result (run_id missing)")
		return
	}

	now := h.deps.Now()
	artifactJSON, err := json.Marshal(req.Artifact)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	artifactHash, err := canonical.ArtifactHash(req.Artifact, "created_at")
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	gateJSON := []byte("null")
	if req.Artifact.GateDecision != nil {
		gateJSON, err = json.Marshal(req.Artifact.GateDecision)
		if err != nil {
			writeInternalError(w, err.Error())
			return
		}
	}
	evidenceJSON, err := h.evidenceBundleJSON(req.RequestHash, artifactHash, now)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	version := proposal.ProposalVersion{
		ArtifactHash:       artifactHash,
		RequestHash:        req.RequestHash,
		ArtifactJSON:       string(artifactJSON),
		EvidenceBundleJSON: evidenceJSON,
		GateDecisionJSON:   string(gateJSON),
		StatusAtCreation:   req.Artifact.Status,
	}

	proposalID := idgen.Prefixed("prop")
	p := proposal.New(proposalID, req.PortfolioID, version, now)
	if req.Artifact.GateDecision != nil {
		p.State = proposal.InitialGate(req.Artifact.GateDecision.Gate)
	}

	if err := h.deps.ProposalStore.Save(r.Context(), p); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetProposal handles GET /rebalance/proposals/{id}.
func (h *Handlers) GetProposal(w http.ResponseWriter, r *http.Request) {
	if !h.proposalLifecycleEnabled(w) {
		return
	}
	p, err := h.deps.ProposalStore.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListProposals handles GET /rebalance/proposals.
func (h *Handlers) ListProposals(w http.ResponseWriter, r *http.Request) {
	if !h.proposalLifecycleEnabled(w) {
		return
	}
	q := r.URL.Query()
	filters := proposal.ListFilters{
		PortfolioID: q.Get("portfolio_id"),
		State:       proposal.State(q.Get("state")),
	}
	page := proposal.Page{Cursor: q.Get("cursor")}
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			page.Limit = n
		}
	}
	result, err := h.deps.ProposalStore.List(r.Context(), filters, page)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetProposalVersion handles GET /rebalance/proposals/{id}/versions/{n}.
func (h *Handlers) GetProposalVersion(w http.ResponseWriter, r *http.Request) {
	if !h.proposalLifecycleEnabled(w) {
		return
	}
	vars := mux.Vars(r)
	p, err := h.deps.ProposalStore.Get(r.Context(), vars["id"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	n, err := strconv.Atoi(vars["n"])
	if err != nil {
		writeValidationError(w, "version number must be an integer")
		return
	}
	for _, v := range p.Versions {
		if v.VersionNo == n {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	writeNotFound(w, "no such version")
}

type addVersionRequest struct {
	Artifact    model.ProposalResult `json:"artifact"`
	RequestHash string               `json:"request_hash"`
}

// AddProposalVersion handles POST /rebalance/proposals/{id}/versions (spec
// §6): appends an immutable version without changing workflow state.
func (h *Handlers) AddProposalVersion(w http.ResponseWriter, r *http.Request) {
	if !h.proposalLifecycleEnabled(w) {
		return
	}
	id := mux.Vars(r)["id"]
	p, err := h.deps.ProposalStore.Get(r.Context(), id)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeValidationError(w, "could not read request body")
		return
	}
	var req addVersionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeValidationError(w, "malformed request body: "+err.Error())
		return
	}

	now := h.deps.Now()
	artifactJSON, err := json.Marshal(req.Artifact)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	artifactHash, err := canonical.ArtifactHash(req.Artifact, "created_at")
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	gateJSON := []byte("null")
	if req.Artifact.GateDecision != nil {
		gateJSON, err = json.Marshal(req.Artifact.GateDecision)
		if err != nil {
			writeInternalError(w, err.Error())
			return
		}
	}
	evidenceJSON, err := h.evidenceBundleJSON(req.RequestHash, artifactHash, now)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	version := p.AddVersion(proposal.ProposalVersion{
		ArtifactHash:       artifactHash,
		RequestHash:        req.RequestHash,
		ArtifactJSON:       string(artifactJSON),
		EvidenceBundleJSON: evidenceJSON,
		GateDecisionJSON:   string(gateJSON),
		StatusAtCreation:   req.Artifact.Status,
	}, now)

	if err := h.deps.ProposalStore.Save(r.Context(), p); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, version)
}

type transitionRequest struct {
	ExpectedState string `json:"expected_state"`
	Action        string `json:"action"`
	ReasonCode    string `json:"reason_code"`
	Comment       string `json:"comment"`
	ActorID       string `json:"actor_id"`
}

// TransitionProposal handles POST /rebalance/proposals/{id}/transitions
// (spec §6, §9 REDESIGN FLAGS "Workflow state machine").
func (h *Handlers) TransitionProposal(w http.ResponseWriter, r *http.Request) {
	if !h.proposalLifecycleEnabled(w) {
		return
	}
	id := mux.Vars(r)["id"]
	p, err := h.deps.ProposalStore.Get(r.Context(), id)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeValidationError(w, "could not read request body")
		return
	}
	var req transitionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeValidationError(w, "malformed request body: "+err.Error())
		return
	}
	if h.deps.Config.ProposalRequireExpectedState && req.ExpectedState == "" {
		writeValidationError(w, "expected_state is required")
		return
	}

	correlationID := correlationIDFrom(r)
	event, err := p.Transition(
		proposal.State(req.ExpectedState), proposal.Action(req.Action),
		req.ReasonCode, req.Comment, req.ActorID, correlationID,
		idgen.Prefixed("event"), h.deps.Now(),
	)
	if err != nil {
		writeConflict(w, err.Error())
		return
	}
	if err := h.deps.ProposalStore.Save(r.Context(), p); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, event)
}

type approvalRequest struct {
	ActorID string `json:"actor_id"`
}

// ApproveProposal handles POST /rebalance/proposals/{id}/approvals.
func (h *Handlers) ApproveProposal(w http.ResponseWriter, r *http.Request) {
	if !h.proposalLifecycleEnabled(w) {
		return
	}
	id := mux.Vars(r)["id"]
	p, err := h.deps.ProposalStore.Get(r.Context(), id)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeValidationError(w, "could not read request body")
		return
	}
	var req approvalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeValidationError(w, "malformed request body: "+err.Error())
		return
	}

	approval := p.RecordApproval(idgen.Prefixed("approval"), req.ActorID, h.deps.Now())
	if err := h.deps.ProposalStore.Save(r.Context(), p); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, approval)
}
