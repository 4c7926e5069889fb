package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/pipeline"
	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/proposal"
	"github.com/sgajbi/lotus-advise-sub000/internal/canonical"
	"github.com/sgajbi/lotus-advise-sub000/internal/config"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/orchestrator"
	"github.com/sgajbi/lotus-advise-sub000/internal/idgen"
	"github.com/sgajbi/lotus-advise-sub000/internal/obs/metrics"
	"github.com/sgajbi/lotus-advise-sub000/internal/policy"
	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
	"github.com/sgajbi/lotus-advise-sub000/internal/supportability/async"
	"github.com/sgajbi/lotus-advise-sub000/internal/supportability/idempotency"
)

// Dependencies bundles everything a Handlers needs; cmd/dpmservice builds
// one of these from config.Config and passes it to NewServer.
type Dependencies struct {
	Config        config.Config
	Store         supportability.Store
	Idempotency   *idempotency.Service
	Async         *async.Manager
	PolicyCatalog policy.Catalog
	ProposalStore proposal.Store
	Now           func() time.Time
}

// Handlers holds the resolved Dependencies for every registered route.
type Handlers struct {
	deps Dependencies
}

// NewHandlers builds a Handlers, defaulting Now to time.Now.
func NewHandlers(deps Dependencies) *Handlers {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handlers{deps: deps}
}

func (h *Handlers) registerRoutes(r *mux.Router) {
	r.HandleFunc("/rebalance/simulate", h.RebalanceSimulate).Methods(http.MethodPost)
	r.HandleFunc("/rebalance/analyze", h.RebalanceAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/rebalance/analyze/async", h.RebalanceAnalyzeAsync).Methods(http.MethodPost)

	r.HandleFunc("/rebalance/operations/stream", h.RebalanceOperationsStream).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/operations/{id}", h.GetOperation).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/operations/by-correlation/{cid}", h.GetOperationByCorrelation).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/operations/{id}/execute", h.ExecuteOperation).Methods(http.MethodPost)
	r.HandleFunc("/rebalance/operations", h.ListOperations).Methods(http.MethodGet)

	r.HandleFunc("/rebalance/runs/{id}", h.GetRun).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs/by-correlation/{cid}", h.GetRunByCorrelation).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs/idempotency/{key}", h.GetRunByIdempotencyKey).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs/by-request-hash/{hash}", h.GetRunByRequestHash).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs", h.ListRuns).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs/{id}/artifact", h.GetRunArtifact).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs/{id}/support-bundle", h.GetSupportBundle).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs/by-correlation/{cid}/support-bundle", h.GetSupportBundleByCorrelation).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs/idempotency/{key}/support-bundle", h.GetSupportBundleByIdempotency).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs/by-operation/{operation_id}/support-bundle", h.GetSupportBundleByOperation).Methods(http.MethodGet)

	r.HandleFunc("/rebalance/runs/{id}/workflow", h.GetRunWorkflow).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs/{id}/workflow/actions", h.PostRunWorkflowAction).Methods(http.MethodPost)
	r.HandleFunc("/rebalance/runs/{id}/workflow/history", h.ListWorkflowDecisionsForRun).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs/by-correlation/{cid}/workflow", h.GetRunWorkflowByCorrelation).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/runs/idempotency/{key}/workflow", h.GetRunWorkflowByIdempotency).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/workflow/decisions", h.ListWorkflowDecisions).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/workflow/decisions/by-correlation/{cid}", h.ListWorkflowDecisionsByCorrelation).Methods(http.MethodGet)

	r.HandleFunc("/rebalance/supportability/summary", h.SupportabilitySummary).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/lineage/{entity_id}", h.GetLineage).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/idempotency/{key}/history", h.GetIdempotencyHistory).Methods(http.MethodGet)

	r.HandleFunc("/rebalance/policies/effective", h.PolicyEffective).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/policies/catalog", h.PolicyCatalogList).Methods(http.MethodGet)

	r.HandleFunc("/rebalance/proposals/simulate", h.ProposalSimulate).Methods(http.MethodPost)
	r.HandleFunc("/rebalance/proposals/artifact", h.ProposalArtifact).Methods(http.MethodPost)

	r.HandleFunc("/rebalance/proposals", h.CreateProposal).Methods(http.MethodPost)
	r.HandleFunc("/rebalance/proposals", h.ListProposals).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/proposals/{id}", h.GetProposal).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/proposals/{id}/versions/{n}", h.GetProposalVersion).Methods(http.MethodGet)
	r.HandleFunc("/rebalance/proposals/{id}/versions", h.AddProposalVersion).Methods(http.MethodPost)
	r.HandleFunc("/rebalance/proposals/{id}/transitions", h.TransitionProposal).Methods(http.MethodPost)
	r.HandleFunc("/rebalance/proposals/{id}/approvals", h.ApproveProposal).Methods(http.MethodPost)
}

func (h *Handlers) metricsHandler() http.Handler {
	return promhttp.Handler()
}

// Healthz reports process liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports whether the backing store is reachable.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store == nil {
		writeServiceUnavailable(w, "DPM_STORE_NOT_CONFIGURED")
		return
	}
	if _, err := h.deps.Store.SupportabilitySummary(r.Context()); err != nil {
		writeServiceUnavailable(w, "DPM_STORE_UNREACHABLE: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func correlationIDFrom(r *http.Request) string {
	return idgen.CorrelationIDOrNew(r.Header.Get("X-Correlation-Id"))
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func (h *Handlers) resolvePolicy(r *http.Request) policy.Resolution {
	return policy.Resolve(policy.Input{
		PacksEnabled:        h.deps.Config.PolicyPacksEnabled,
		Catalog:             h.deps.PolicyCatalog,
		RequestPolicyPackID: r.Header.Get("X-Policy-Pack-Id"),
		TenantPolicyPackID:  r.Header.Get("X-Tenant-Policy-Pack-Id"),
		GlobalDefaultPackID: h.deps.Config.DefaultPolicyPackID,
	})
}

// RebalanceSimulate handles POST /rebalance/simulate (spec §6).
func (h *Handlers) RebalanceSimulate(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		writeValidationError(w, "Idempotency-Key header is required")
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeValidationError(w, "could not read request body")
		return
	}

	var req orchestrator.Request
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
	replayEnabled := policy.ReplayEnabled(resolution.Pack, h.deps.Config.IdempotencyReplayEnabled)

	ctx := r.Context()
	outcome, rec, err := h.deps.Idempotency.Check(ctx, idempotencyKey, requestHash, replayEnabled)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	switch outcome {
	case idempotency.OutcomeConflict:
		metrics.IdempotencyHits.WithLabelValues("conflict").Inc()
		writeConflict(w, "IDEMPOTENCY_KEY_CONFLICT: request hash mismatch")
		return
	case idempotency.OutcomeReplay:
		metrics.IdempotencyHits.WithLabelValues("replay").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(rec.ResponseBody)
		return
	}
	metrics.IdempotencyHits.WithLabelValues("miss").Inc()

	runID := idgen.Prefixed("run")
	now := h.deps.Now()
	result, err := orchestrator.Run(req, runID, correlationID, requestHash, now)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	metrics.RunsTotal.WithLabelValues("dpm", string(result.Status)).Inc()
	if result.GateDecision != nil {
		metrics.GateDecisions.WithLabelValues(string(result.GateDecision.Gate)).Inc()
	}

	responseBody, err := json.Marshal(result)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	if err := h.persistRun(ctx, supportability.Run{
		RunID: runID, CorrelationID: correlationID, IdempotencyKey: idempotencyKey,
		RequestHash: requestHash, PortfolioID: req.PortfolioID,
		OperationType: supportability.OperationDPMRebalance, Status: supportability.RunStatus(result.Status),
		CreatedAt: now,
	}, responseBody); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if err := h.deps.Idempotency.Record(ctx, idempotencyKey, requestHash, runID, responseBody, now); err != nil {
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) persistRun(ctx context.Context, run supportability.Run, responseBody []byte) error {
	if err := h.deps.Store.SaveRun(ctx, run); err != nil {
		return err
	}
	return h.deps.Store.SaveRunArtifact(ctx, supportability.RunArtifact{
		RunID: run.RunID, Name: "result", Mode: supportability.ArtifactPersisted,
		Content: responseBody, CreatedAt: run.CreatedAt,
	})
}

// scenarioNamePattern bounds /rebalance/analyze scenario keys (spec §6).
var scenarioNamePattern = regexp.MustCompile(`^[a-z0-9_\-]{1,64}$`)

// analyzeScenario is one named scenario in a /rebalance/analyze batch
// (spec §6 "batch of named scenarios under a shared snapshot").
type analyzeScenario struct {
	Options model.EngineOptions `json:"options"`
}

type analyzeRequest struct {
	PortfolioID    string                     `json:"portfolio_id"`
	Portfolio      model.PortfolioSnapshot    `json:"portfolio"`
	MarketData     model.MarketDataSnapshot   `json:"market_data"`
	Shelf          []model.ShelfEntry         `json:"shelf"`
	ModelPortfolio model.ModelPortfolio       `json:"model_portfolio"`
	Scenarios      map[string]analyzeScenario `json:"scenarios"`
}

// RebalanceAnalyze handles POST /rebalance/analyze (spec §6, §8 batch
// scenario isolation: a scenario whose options fail canonicalization or
// whose engine run errors is recorded under failed_scenarios without
// aborting the rest of the batch). A scenario name that fails validation
// rejects the whole request with a 422.
func (h *Handlers) RebalanceAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeValidationError(w, "could not read request body")
		return
	}
	var req analyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeValidationError(w, "malformed request body: "+err.Error())
		return
	}
	if len(req.Scenarios) > 20 {
		writeValidationError(w, "at most 20 scenarios are permitted per batch")
		return
	}

	names := make([]string, 0, len(req.Scenarios))
	for name := range req.Scenarios {
		if !scenarioNamePattern.MatchString(name) {
			writeValidationError(w, "scenario name \""+name+"\" does not match [a-z0-9_-]{1,64}")
			return
		}
		names = append(names, name)
	}
	sort.Strings(names)

	correlationID := correlationIDFrom(r)
	now := h.deps.Now()
	results := map[string]model.RebalanceResult{}
	failed := map[string]string{}

	for _, name := range names {
		scenario := req.Scenarios[name]
		engineReq := orchestrator.Request{
			PortfolioID: req.PortfolioID, Portfolio: req.Portfolio, MarketData: req.MarketData,
			Shelf: req.Shelf, ModelPortfolio: req.ModelPortfolio, Options: scenario.Options,
		}
		hash, err := canonical.RequestHash(engineReq)
		if err != nil {
			failed[name] = "INVALID_OPTIONS:" + err.Error()
			continue
		}
		runID := idgen.Prefixed("run")
		result, err := orchestrator.Run(engineReq, runID, correlationID, hash, now)
		if err != nil {
			failed[name] = "SCENARIO_EXECUTION_ERROR:" + err.Error()
			continue
		}
		results[name] = result
	}

	warnings := []string{}
	if len(failed) > 0 && len(results) > 0 {
		warnings = append(warnings, "PARTIAL_BATCH_FAILURE")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":          results,
		"failed_scenarios": failed,
		"warnings":         warnings,
	})
}

// RebalanceAnalyzeAsync handles POST /rebalance/analyze/async (spec §6,
// 202 with operation resource).
func (h *Handlers) RebalanceAnalyzeAsync(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeValidationError(w, "could not read request body")
		return
	}
	correlationID := correlationIDFrom(r)
	mode := async.ModeInline
	if h.deps.Config.AsyncExecutionMode == config.AsyncAcceptOnly {
		mode = async.ModeAcceptOnly
	}

	op, err := h.deps.Async.Submit(r.Context(), supportability.OperationDPMRebalance, correlationID, mode, body)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	metrics.AsyncOperations.WithLabelValues(string(op.OperationType), string(op.Status)).Inc()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"operation_id": op.OperationID,
		"status":       op.Status,
		"execute_url":  "/rebalance/operations/" + op.OperationID + "/execute",
	})
}

func (h *Handlers) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	op, err := h.deps.Async.Get(r.Context(), id)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (h *Handlers) GetOperationByCorrelation(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	ops, err := h.deps.Async.List(r.Context(), supportability.Filters{CorrelationID: cid}, supportability.Page{Limit: 1})
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if len(ops) == 0 {
		writeNotFound(w, "no operation for correlation id "+cid)
		return
	}
	writeJSON(w, http.StatusOK, ops[0])
}

func (h *Handlers) ExecuteOperation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	op, err := h.deps.Async.Execute(r.Context(), id)
	if err != nil {
		if err == async.ErrNotExecutable {
			writeConflict(w, "DPM_ASYNC_OPERATION_NOT_EXECUTABLE")
			return
		}
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (h *Handlers) ListOperations(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	ops, err := h.deps.Async.List(r.Context(), filtersFromQuery(r), page)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"operations": ops})
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.Store.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) GetRunByCorrelation(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.Store.GetRunByCorrelation(r.Context(), mux.Vars(r)["cid"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) GetRunByIdempotencyKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	rec, err := h.deps.Store.GetIdempotencyByKey(r.Context(), key)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	run, err := h.deps.Store.GetRun(r.Context(), rec.RunID)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) GetRunByRequestHash(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.Store.GetRunByRequestHash(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	page, err := h.deps.Store.ListRuns(r.Context(), filtersFromQuery(r), pageFromQuery(r))
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) GetRunArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.deps.Store.GetRunArtifact(r.Context(), mux.Vars(r)["id"], "result")
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(artifact.Content)
}

func (h *Handlers) GetSupportBundle(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Config.SupportAPIsEnabled {
		writeFeatureDisabled(w, "DPM_SUPPORT_APIS_DISABLED")
		return
	}
	bundle, err := supportability.BuildBundle(r.Context(), h.deps.Store, mux.Vars(r)["id"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (h *Handlers) ListWorkflowDecisionsForRun(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Config.WorkflowEnabled {
		writeFeatureDisabled(w, "DPM_WORKFLOW_DISABLED")
		return
	}
	decisions, err := h.deps.Store.ListWorkflowDecisionsByRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decisions": decisions})
}

func (h *Handlers) ListWorkflowDecisions(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Config.WorkflowEnabled {
		writeFeatureDisabled(w, "DPM_WORKFLOW_DISABLED")
		return
	}
	decisions, err := h.deps.Store.ListWorkflowDecisions(r.Context(), filtersFromQuery(r), pageFromQuery(r))
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decisions": decisions})
}

func (h *Handlers) SupportabilitySummary(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Config.SupportabilitySummaryAPIs {
		writeFeatureDisabled(w, "DPM_SUPPORTABILITY_SUMMARY_APIS_DISABLED")
		return
	}
	summary, err := h.deps.Store.SupportabilitySummary(r.Context())
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) GetLineage(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Config.LineageAPIsEnabled {
		writeFeatureDisabled(w, "DPM_LINEAGE_APIS_DISABLED")
		return
	}
	edges, err := h.deps.Store.ListLineageEdges(r.Context(), mux.Vars(r)["entity_id"])
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"edges": edges})
}

func (h *Handlers) GetIdempotencyHistory(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Config.IdempotencyHistoryAPIsEnabled {
		writeFeatureDisabled(w, "DPM_IDEMPOTENCY_HISTORY_APIS_DISABLED")
		return
	}
	history, err := h.deps.Idempotency.History(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (h *Handlers) PolicyEffective(w http.ResponseWriter, r *http.Request) {
	resolution := h.resolvePolicy(r)
	writeJSON(w, http.StatusOK, resolution)
}

// PolicyCatalogList handles GET /rebalance/policies/catalog (spec §6): the
// full set of named packs an operator can reference by id.
func (h *Handlers) PolicyCatalogList(w http.ResponseWriter, r *http.Request) {
	if h.deps.PolicyCatalog == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"packs": []policy.Pack{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"packs": h.deps.PolicyCatalog.List()})
}

func (h *Handlers) supportBundleForRun(w http.ResponseWriter, r *http.Request, runID string) {
	if !h.deps.Config.SupportAPIsEnabled {
		writeFeatureDisabled(w, "DPM_SUPPORT_APIS_DISABLED")
		return
	}
	bundle, err := supportability.BuildBundle(r.Context(), h.deps.Store, runID)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// GetSupportBundleByCorrelation handles
// GET /rebalance/runs/by-correlation/{cid}/support-bundle (spec §6).
func (h *Handlers) GetSupportBundleByCorrelation(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.Store.GetRunByCorrelation(r.Context(), mux.Vars(r)["cid"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	h.supportBundleForRun(w, r, run.RunID)
}

// GetSupportBundleByIdempotency handles
// GET /rebalance/runs/idempotency/{key}/support-bundle (spec §6).
func (h *Handlers) GetSupportBundleByIdempotency(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Store.GetIdempotencyByKey(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	h.supportBundleForRun(w, r, rec.RunID)
}

// GetSupportBundleByOperation handles
// GET /rebalance/runs/by-operation/{operation_id}/support-bundle (spec §6):
// an async operation's result is the run it produced, resolved via the
// operation's correlation id.
func (h *Handlers) GetSupportBundleByOperation(w http.ResponseWriter, r *http.Request) {
	op, err := h.deps.Async.Get(r.Context(), mux.Vars(r)["operation_id"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	run, err := h.deps.Store.GetRunByCorrelation(r.Context(), op.CorrelationID)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	h.supportBundleForRun(w, r, run.RunID)
}

// runWorkflowView is the current derived workflow state for one run (spec
// §3 "current workflow_status is derived").
type runWorkflowView struct {
	RunID          string                          `json:"run_id"`
	WorkflowStatus string                          `json:"workflow_status"`
	LatestDecision *supportability.WorkflowDecision `json:"latest_decision,omitempty"`
}

// deriveWorkflowStatus folds a run's status and its append-only decision
// history into the current NOT_REQUIRED/PENDING_REVIEW/APPROVED/REJECTED
// value (spec §3 WorkflowDecision "current workflow_status is derived").
func (h *Handlers) deriveWorkflowStatus(run supportability.Run, decisions []supportability.WorkflowDecision) string {
	if len(decisions) > 0 {
		return decisions[len(decisions)-1].ToStatus
	}
	for _, s := range h.deps.Config.WorkflowRequiresReviewForStatuses {
		if s == string(run.Status) {
			return "PENDING_REVIEW"
		}
	}
	return "NOT_REQUIRED"
}

func (h *Handlers) workflowViewForRun(ctx context.Context, runID string) (runWorkflowView, error) {
	run, err := h.deps.Store.GetRun(ctx, runID)
	if err != nil {
		return runWorkflowView{}, err
	}
	decisions, err := h.deps.Store.ListWorkflowDecisionsByRun(ctx, runID)
	if err != nil {
		return runWorkflowView{}, err
	}
	view := runWorkflowView{RunID: runID, WorkflowStatus: h.deriveWorkflowStatus(run, decisions)}
	if len(decisions) > 0 {
		view.LatestDecision = &decisions[len(decisions)-1]
	}
	return view, nil
}

// GetRunWorkflow handles GET /rebalance/runs/{id}/workflow (spec §6).
func (h *Handlers) GetRunWorkflow(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Config.WorkflowEnabled {
		writeFeatureDisabled(w, "DPM_WORKFLOW_DISABLED")
		return
	}
	view, err := h.workflowViewForRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetRunWorkflowByCorrelation handles
// GET /rebalance/runs/by-correlation/{cid}/workflow (spec §6).
func (h *Handlers) GetRunWorkflowByCorrelation(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Config.WorkflowEnabled {
		writeFeatureDisabled(w, "DPM_WORKFLOW_DISABLED")
		return
	}
	run, err := h.deps.Store.GetRunByCorrelation(r.Context(), mux.Vars(r)["cid"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	view, err := h.workflowViewForRun(r.Context(), run.RunID)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetRunWorkflowByIdempotency handles
// GET /rebalance/runs/idempotency/{key}/workflow (spec §6).
func (h *Handlers) GetRunWorkflowByIdempotency(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Config.WorkflowEnabled {
		writeFeatureDisabled(w, "DPM_WORKFLOW_DISABLED")
		return
	}
	rec, err := h.deps.Store.GetIdempotencyByKey(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	view, err := h.workflowViewForRun(r.Context(), rec.RunID)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// workflowActionRequest is the body of POST .../workflow/actions.
type workflowActionRequest struct {
	Action     string `json:"action"`
	ReasonCode string `json:"reason_code"`
	Comment    string `json:"comment"`
	ActorID    string `json:"actor_id"`
}

var workflowActionNextStatus = map[string]string{
	"APPROVE":         "APPROVED",
	"REJECT":          "REJECTED",
	"REQUEST_CHANGES": "PENDING_REVIEW",
}

// PostRunWorkflowAction handles POST /rebalance/runs/{id}/workflow/actions
// (spec §6, §3 WorkflowDecision): records a reviewer decision against a
// run, appending to the workflow decision history.
func (h *Handlers) PostRunWorkflowAction(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Config.WorkflowEnabled {
		writeFeatureDisabled(w, "DPM_WORKFLOW_DISABLED")
		return
	}
	runID := mux.Vars(r)["id"]
	run, err := h.deps.Store.GetRun(r.Context(), runID)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	view, err := h.workflowViewForRun(r.Context(), runID)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeValidationError(w, "could not read request body")
		return
	}
	var req workflowActionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeValidationError(w, "malformed request body: "+err.Error())
		return
	}
	toStatus, ok := workflowActionNextStatus[req.Action]
	if !ok {
		writeValidationError(w, "action must be one of APPROVE, REJECT, REQUEST_CHANGES")
		return
	}

	decision := supportability.WorkflowDecision{
		RunID: runID, CorrelationID: run.CorrelationID, FromStatus: view.WorkflowStatus, ToStatus: toStatus,
		ActorID: req.ActorID, ActionCode: req.Action, ReasonCode: req.ReasonCode,
		CreatedAt: h.deps.Now(),
	}
	if err := h.deps.Store.AppendWorkflowDecision(r.Context(), decision); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// ListWorkflowDecisionsByCorrelation handles
// GET /rebalance/workflow/decisions/by-correlation/{cid} (spec §6 "global
// listings").
func (h *Handlers) ListWorkflowDecisionsByCorrelation(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Config.WorkflowEnabled {
		writeFeatureDisabled(w, "DPM_WORKFLOW_DISABLED")
		return
	}
	filters := filtersFromQuery(r)
	filters.CorrelationID = mux.Vars(r)["cid"]
	decisions, err := h.deps.Store.ListWorkflowDecisions(r.Context(), filters, pageFromQuery(r))
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decisions": decisions})
}

// ProposalSimulate handles POST /rebalance/proposals/simulate (spec §6).
func (h *Handlers) ProposalSimulate(w http.ResponseWriter, r *http.Request) {
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
	metrics.RunsTotal.WithLabelValues("advisory", string(result.Status)).Inc()

	responseBody, err := json.Marshal(result)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if err := h.persistRun(r.Context(), supportability.Run{
		RunID: runID, CorrelationID: correlationID, RequestHash: requestHash,
		PortfolioID: req.PortfolioID, OperationType: supportability.OperationAdvisoryProposal,
		Status: supportability.RunStatus(result.Status), CreatedAt: now,
	}, responseBody); err != nil {
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func pageFromQuery(r *http.Request) supportability.Page {
	q := r.URL.Query()
	page := supportability.Page{Cursor: q.Get("cursor")}
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			page.Limit = n
		}
	}
	return page
}

func filtersFromQuery(r *http.Request) supportability.Filters {
	q := r.URL.Query()
	return supportability.Filters{
		Status:        q.Get("status"),
		PortfolioID:   q.Get("portfolio_id"),
		RequestHash:   q.Get("request_hash"),
		OperationType: q.Get("operation_type"),
		CorrelationID: q.Get("correlation_id"),
		ActorID:       q.Get("actor_id"),
		Action:        q.Get("action"),
		ReasonCode:    q.Get("reason_code"),
	}
}
