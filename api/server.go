package api

import (
	"net/http"

	"github.com/graflow/graflow"
)

// Server is the thin REST surface over graflow's services, grounded on
// the teacher's api/server.go Mux wiring. It exists to fix the method
// names spec.md §6 names, not to be a complete REST API.
type Server struct {
	store     graflow.Store
	workflows *graflow.WorkflowService
	reviews   *graflow.ReviewService
	engine    *graflow.Engine
	monitor   *graflow.Monitor
}

func NewServer(store graflow.Store, workflows *graflow.WorkflowService, reviews *graflow.ReviewService, engine *graflow.Engine, monitor *graflow.Monitor) *Server {
	return &Server{
		store:     store,
		workflows: workflows,
		reviews:   reviews,
		engine:    engine,
		monitor:   monitor,
	}
}

// Mux builds the ServeMux, one route per spec.md §6 operation.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/workflow-definitions", s.handleListDefinitions)
	mux.HandleFunc("POST /api/workflow-definitions", s.handleSaveDefinition)
	mux.HandleFunc("GET /api/workflow-definitions/{id}", s.handleGetDefinition)
	mux.HandleFunc("DELETE /api/workflow-definitions/{id}", s.handleDeleteDefinition)

	mux.HandleFunc("POST /api/workflow-executions", s.handleStartWorkflow)
	mux.HandleFunc("GET /api/workflow-executions", s.handleListByStatus)
	mux.HandleFunc("GET /api/workflow-executions/{id}", s.handleGetExecution)
	mux.HandleFunc("GET /api/workflow-executions/by-correlation/{correlationId}", s.handleGetByCorrelationID)
	mux.HandleFunc("POST /api/workflow-executions/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /api/workflow-executions/{id}/resume", s.handleResume)
	mux.HandleFunc("POST /api/workflow-executions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/workflow-executions/{id}/retry", s.handleRetry)
	mux.HandleFunc("POST /api/workflow-executions/{id}/retry-subset", s.handleRetrySubset)

	mux.HandleFunc("GET /api/review-points/pending", s.handlePendingReviews)
	mux.HandleFunc("POST /api/review-points/{id}/decision", s.handleSubmitDecision)

	mux.HandleFunc("GET /api/stats/summary", s.handleStatsSummary)
	mux.HandleFunc("GET /api/stats/active", s.handleStatsActive)

	return mux
}
