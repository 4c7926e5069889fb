package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/proposal"
	proposalmemory "github.com/sgajbi/lotus-advise-sub000/internal/advisory/proposal/store/memory"
	"github.com/sgajbi/lotus-advise-sub000/internal/config"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/idgen"
	"github.com/sgajbi/lotus-advise-sub000/internal/policy"
	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
	"github.com/sgajbi/lotus-advise-sub000/internal/supportability/async"
	"github.com/sgajbi/lotus-advise-sub000/internal/supportability/idempotency"
	supportabilitymemory "github.com/sgajbi/lotus-advise-sub000/internal/supportability/store/memory"
)

func testDeps() Dependencies {
	store := supportabilitymemory.New()
	return Dependencies{
		Config:        config.Default(),
		Store:         store,
		Idempotency:   idempotency.NewService(store, 100),
		Async:         async.NewManager(store, time.Hour, idgen.New),
		PolicyCatalog: policy.Memory{},
		ProposalStore: proposalmemory.New(),
		Now:           func() time.Time { return time.Unix(0, 0) },
	}
}

func validRebalanceBody() []byte {
	body := map[string]interface{}{
		"portfolio_id": "P1",
		"portfolio": map[string]interface{}{
			"portfolio_id":  "P1",
			"base_currency": "SGD",
			"cash":          []map[string]interface{}{{"currency": "SGD", "amount": map[string]interface{}{"amount": "100000", "currency": "SGD"}}},
		},
		"market_data": map[string]interface{}{
			"prices": []map[string]interface{}{{"instrument_id": "EQ1", "price": map[string]interface{}{"amount": "10.00", "currency": "SGD"}}},
		},
		"shelf":           []map[string]interface{}{{"instrument_id": "EQ1", "status": "APPROVED", "asset_class": "EQUITY"}},
		"model_portfolio": map[string]interface{}{"EQ1": "0.9"},
		"options":         model.Defaults(),
	}
	b, _ := json.Marshal(body)
	return b
}

func TestHealthzReturnsOK(t *testing.T) {
	h := NewHandlers(testDeps())
	w := httptest.NewRecorder()
	h.Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestReadyzReportsStoreReachable(t *testing.T) {
	h := NewHandlers(testDeps())
	w := httptest.NewRecorder()
	h.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRebalanceSimulateRequiresIdempotencyKey(t *testing.T) {
	h := NewHandlers(testDeps())
	req := httptest.NewRequest(http.MethodPost, "/rebalance/simulate", bytes.NewReader(validRebalanceBody()))
	w := httptest.NewRecorder()
	h.RebalanceSimulate(w, req)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRebalanceSimulateReplaysIdenticalRequest(t *testing.T) {
	h := NewHandlers(testDeps())
	body := validRebalanceBody()

	req1 := httptest.NewRequest(http.MethodPost, "/rebalance/simulate", bytes.NewReader(body))
	req1.Header.Set("Idempotency-Key", "key-1")
	w1 := httptest.NewRecorder()
	h.RebalanceSimulate(w1, req1)
	require.Equal(t, http.StatusOK, w1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/rebalance/simulate", bytes.NewReader(body))
	req2.Header.Set("Idempotency-Key", "key-1")
	w2 := httptest.NewRecorder()
	h.RebalanceSimulate(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)
	require.JSONEq(t, w1.Body.String(), w2.Body.String())
}

func TestRebalanceSimulateConflictsOnReusedKeyDifferentBody(t *testing.T) {
	h := NewHandlers(testDeps())

	req1 := httptest.NewRequest(http.MethodPost, "/rebalance/simulate", bytes.NewReader(validRebalanceBody()))
	req1.Header.Set("Idempotency-Key", "key-2")
	w1 := httptest.NewRecorder()
	h.RebalanceSimulate(w1, req1)
	require.Equal(t, http.StatusOK, w1.Code)

	other := validRebalanceBody()
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(other, &decoded))
	decoded["portfolio_id"] = "P2"
	otherBody, _ := json.Marshal(decoded)

	req2 := httptest.NewRequest(http.MethodPost, "/rebalance/simulate", bytes.NewReader(otherBody))
	req2.Header.Set("Idempotency-Key", "key-2")
	w2 := httptest.NewRecorder()
	h.RebalanceSimulate(w2, req2)
	require.Equal(t, http.StatusConflict, w2.Code)
}

func TestProposalSimulateRunsAdvisoryPipeline(t *testing.T) {
	h := NewHandlers(testDeps())
	body := map[string]interface{}{
		"portfolio_id": "P1",
		"portfolio": map[string]interface{}{
			"portfolio_id":  "P1",
			"base_currency": "SGD",
			"cash":          []map[string]interface{}{{"currency": "SGD", "amount": map[string]interface{}{"amount": "100000", "currency": "SGD"}}},
		},
		"market_data": map[string]interface{}{},
		"shelf":       []map[string]interface{}{},
		"options":     model.Defaults(),
	}
	b, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/rebalance/proposals/simulate", bytes.NewReader(b))
	w := httptest.NewRecorder()
	h.ProposalSimulate(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateProposalThenGet(t *testing.T) {
	deps := testDeps()
	h := NewHandlers(deps)

	p := proposal.New("prop-x", "P1", proposal.ProposalVersion{ArtifactHash: "h"}, time.Unix(0, 0))
	require.NoError(t, deps.ProposalStore.Save(httptest.NewRequest(http.MethodGet, "/", nil).Context(), p))

	req := httptest.NewRequest(http.MethodGet, "/rebalance/proposals/prop-x", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "prop-x"})
	w := httptest.NewRecorder()
	h.GetProposal(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPolicyCatalogListReturnsPacks(t *testing.T) {
	deps := testDeps()
	deps.PolicyCatalog = policy.Memory{
		"pack-a": policy.Pack{ID: "pack-a"},
	}
	h := NewHandlers(deps)

	req := httptest.NewRequest(http.MethodGet, "/rebalance/policies/catalog", nil)
	w := httptest.NewRecorder()
	h.PolicyCatalogList(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var decoded struct {
		Packs []policy.Pack `json:"packs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	require.Len(t, decoded.Packs, 1)
	require.Equal(t, "pack-a", decoded.Packs[0].ID)
}

func TestRunWorkflowDisabledByDefault(t *testing.T) {
	h := NewHandlers(testDeps())
	req := httptest.NewRequest(http.MethodGet, "/rebalance/runs/run-1/workflow", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "run-1"})
	w := httptest.NewRecorder()
	h.GetRunWorkflow(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostRunWorkflowActionRecordsDecision(t *testing.T) {
	deps := testDeps()
	deps.Config.WorkflowEnabled = true
	h := NewHandlers(deps)

	run := supportability.Run{
		RunID: "run-1", CorrelationID: "corr-1", Status: "PENDING_REVIEW", CreatedAt: time.Unix(0, 0),
	}
	require.NoError(t, deps.Store.SaveRun(httptest.NewRequest(http.MethodGet, "/", nil).Context(), run))

	body, _ := json.Marshal(map[string]string{"action": "APPROVE", "actor_id": "reviewer-1"})
	req := httptest.NewRequest(http.MethodPost, "/rebalance/runs/run-1/workflow/actions", bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"id": "run-1"})
	w := httptest.NewRecorder()
	h.PostRunWorkflowAction(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	view, err := h.workflowViewForRun(req.Context(), "run-1")
	require.NoError(t, err)
	require.Equal(t, "APPROVED", view.WorkflowStatus)

	listReq := httptest.NewRequest(http.MethodGet, "/rebalance/workflow/decisions/by-correlation/corr-1", nil)
	listReq = mux.SetURLVars(listReq, map[string]string{"cid": "corr-1"})
	listW := httptest.NewRecorder()
	h.ListWorkflowDecisionsByCorrelation(listW, listReq)
	require.Equal(t, http.StatusOK, listW.Code)
}

func TestProposalArtifactDoesNotPersistRun(t *testing.T) {
	deps := testDeps()
	h := NewHandlers(deps)
	body := map[string]interface{}{
		"portfolio_id": "P1",
		"portfolio": map[string]interface{}{
			"portfolio_id":  "P1",
			"base_currency": "SGD",
			"cash":          []map[string]interface{}{{"currency": "SGD", "amount": map[string]interface{}{"amount": "100000", "currency": "SGD"}}},
		},
		"market_data": map[string]interface{}{},
		"shelf":       []map[string]interface{}{},
		"options":     model.Defaults(),
	}
	b, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/rebalance/proposals/artifact", bytes.NewReader(b))
	w := httptest.NewRecorder()
	h.ProposalArtifact(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	page, err := deps.Store.ListRuns(req.Context(), supportability.Filters{}, supportability.Page{})
	require.NoError(t, err)
	require.Empty(t, page.Runs)
}
