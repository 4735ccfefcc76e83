package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/graflow/graflow"
)

// newTestServer wires a MemoryStore-backed stack the way
// cmd/orchestrator/main.go does, minus a Publisher (the one QUEUED task
// definition, in TestServerPauseResumeCancel, gets no dispatch message).
func newTestServer(t *testing.T) (*Server, graflow.Store) {
	t.Helper()
	store := graflow.NewMemoryStore()
	bus := graflow.NewInProcessEventBus()
	registry := graflow.NewRegistry()
	workflows := graflow.NewWorkflowService(store, graflow.MemoryTxManager{}, bus, nil)
	tasks := graflow.NewTaskService(store, graflow.MemoryTxManager{}, registry, bus, graflow.DefaultRetryPolicy(), nil)
	reviews := graflow.NewReviewService(store, graflow.MemoryTxManager{}, tasks, bus, nil)
	strategies := graflow.NewStrategyRegistry()
	strategies.Register(graflow.StrategySequential, graflow.NewSequentialStrategy(tasks, workflows, reviews, nil))
	pool := graflow.NewWorkerPool(2)
	engine := graflow.NewEngine(store, workflows, tasks, strategies, reviews, pool, bus, nil)
	monitor := graflow.NewMonitor(workflows, store)
	return NewServer(store, workflows, reviews, engine, monitor), store
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestServerSaveAndGetWorkflowDefinition(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Mux()

	rr := doJSON(t, mux, http.MethodPost, "/api/workflow-definitions", saveDefinitionRequest{
		Name:         "order-flow",
		StrategyType: graflow.StrategySequential,
		Tasks: []*graflow.TaskDefinition{
			{ID: "charge", Type: "charge", ExecutionOrder: 0, Configuration: map[string]string{}},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("POST /api/workflow-definitions: status=%d body=%s", rr.Code, rr.Body.String())
	}
	var def graflow.WorkflowDefinition
	if err := json.Unmarshal(rr.Body.Bytes(), &def); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if def.ID == "" {
		t.Fatal("expected a generated ID on the saved definition")
	}

	rr = doJSON(t, mux, http.MethodGet, "/api/workflow-definitions/"+def.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/workflow-definitions/{id}: status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestServerGetWorkflowDefinitionNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doJSON(t, s.Mux(), http.MethodGet, "/api/workflow-definitions/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestServerListWorkflowDefinitions(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Mux()
	doJSON(t, mux, http.MethodPost, "/api/workflow-definitions", saveDefinitionRequest{Name: "a", StrategyType: graflow.StrategySequential})
	doJSON(t, mux, http.MethodPost, "/api/workflow-definitions", saveDefinitionRequest{Name: "b", StrategyType: graflow.StrategySequential})

	rr := doJSON(t, mux, http.MethodGet, "/api/workflow-definitions", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var defs []*graflow.WorkflowDefinition
	if err := json.Unmarshal(rr.Body.Bytes(), &defs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(defs) != 2 {
		t.Errorf("len(defs) = %d, want 2", len(defs))
	}
}

func TestServerDeleteWorkflowDefinition(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Mux()
	rr := doJSON(t, mux, http.MethodPost, "/api/workflow-definitions", saveDefinitionRequest{Name: "a", StrategyType: graflow.StrategySequential})
	var def graflow.WorkflowDefinition
	_ = json.Unmarshal(rr.Body.Bytes(), &def)

	rr = doJSON(t, mux, http.MethodDelete, "/api/workflow-definitions/"+def.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodGet, "/api/workflow-definitions/"+def.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want 404", rr.Code)
	}
}

func TestServerSaveDefinitionMalformedBodyIs400(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/workflow-definitions", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestServerStartWorkflowCreatesExecution(t *testing.T) {
	s, store := newTestServer(t)
	mux := s.Mux()

	ctx := context.Background()
	def := &graflow.WorkflowDefinition{
		Name:         "flow",
		StrategyType: graflow.StrategySequential,
		Tasks: []*graflow.TaskDefinition{
			{ID: "t1", Type: "noop", ExecutionOrder: 0, ExecutionMode: graflow.ExecutionModeLocal, Configuration: map[string]string{}},
		},
	}
	if err := store.SaveWorkflowDefinition(ctx, def); err != nil {
		t.Fatalf("SaveWorkflowDefinition: %v", err)
	}

	rr := doJSON(t, mux, http.MethodPost, "/api/workflow-executions", startWorkflowRequest{WorkflowDefinitionID: def.ID, CorrelationID: "c1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("POST /api/workflow-executions: status=%d body=%s", rr.Code, rr.Body.String())
	}
	var we graflow.WorkflowExecution
	if err := json.Unmarshal(rr.Body.Bytes(), &we); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if we.ID == "" {
		t.Fatal("expected a generated workflow execution ID")
	}

	rr = doJSON(t, mux, http.MethodGet, "/api/workflow-executions/by-correlation/c1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET by-correlation: status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestServerStartWorkflowUnknownDefinitionIs404(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doJSON(t, s.Mux(), http.MethodPost, "/api/workflow-executions", startWorkflowRequest{WorkflowDefinitionID: "missing"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestServerListExecutionsByStatusRequiresQueryParam(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doJSON(t, s.Mux(), http.MethodGet, "/api/workflow-executions", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when status query param is missing", rr.Code)
	}
}

func TestServerListExecutionsByStatus(t *testing.T) {
	s, store := newTestServer(t)
	mux := s.Mux()
	ctx := context.Background()
	def := &graflow.WorkflowDefinition{Name: "flow", StrategyType: graflow.StrategySequential}
	_ = store.SaveWorkflowDefinition(ctx, def)
	rr := doJSON(t, mux, http.MethodPost, "/api/workflow-executions", startWorkflowRequest{WorkflowDefinitionID: def.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("start: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, mux, http.MethodGet, "/api/workflow-executions?status=COMPLETED", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var list []*graflow.WorkflowExecution
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("len(list) = %d, want 1 COMPLETED execution", len(list))
	}
}

func TestServerPauseResumeCancel(t *testing.T) {
	s, store := newTestServer(t)
	mux := s.Mux()
	ctx := context.Background()
	def := &graflow.WorkflowDefinition{
		Name:         "long-flow",
		StrategyType: graflow.StrategySequential,
		Tasks: []*graflow.TaskDefinition{
			{ID: "t1", Type: "queued", ExecutionOrder: 0, ExecutionMode: graflow.ExecutionModeQueued, Configuration: map[string]string{}},
		},
	}
	_ = store.SaveWorkflowDefinition(ctx, def)
	rr := doJSON(t, mux, http.MethodPost, "/api/workflow-executions", startWorkflowRequest{WorkflowDefinitionID: def.ID})
	var we graflow.WorkflowExecution
	_ = json.Unmarshal(rr.Body.Bytes(), &we)

	rr = doJSON(t, mux, http.MethodPost, "/api/workflow-executions/"+we.ID+"/pause", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pause: status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, mux, http.MethodPost, "/api/workflow-executions/"+we.ID+"/resume", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("resume: status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, mux, http.MethodPost, "/api/workflow-executions/"+we.ID+"/cancel", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestServerPendingReviewsAndDecision(t *testing.T) {
	s, store := newTestServer(t)
	mux := s.Mux()
	ctx := context.Background()
	def := &graflow.WorkflowDefinition{
		Name:         "review-flow",
		StrategyType: graflow.StrategySequential,
		Tasks: []*graflow.TaskDefinition{
			{ID: "t1", Type: "publish", ExecutionOrder: 0, ExecutionMode: graflow.ExecutionModeLocal, RequireUserReview: true, Configuration: map[string]string{}},
		},
	}
	_ = store.SaveWorkflowDefinition(ctx, def)
	rr := doJSON(t, mux, http.MethodPost, "/api/workflow-executions", startWorkflowRequest{WorkflowDefinitionID: def.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("start: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, mux, http.MethodGet, "/api/review-points/pending", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pending reviews: status=%d body=%s", rr.Code, rr.Body.String())
	}
	var pending []*graflow.UserReviewPoint
	if err := json.Unmarshal(rr.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}

	rr = doJSON(t, mux, http.MethodPost, "/api/review-points/"+pending[0].ID+"/decision", reviewDecisionRequest{
		Decision: graflow.ReviewDecisionApprove,
		Reviewer: "alice",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("submit decision: status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestServerSubmitDecisionMalformedBodyIs400(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/review-points/rp1/decision", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestServerStatsSummaryAndActive(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Mux()

	rr := doJSON(t, mux, http.MethodGet, "/api/stats/summary", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stats/summary: status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, mux, http.MethodGet, "/api/stats/active", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stats/active: status=%d body=%s", rr.Code, rr.Body.String())
	}
}
