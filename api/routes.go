package api

import (
	"encoding/json"
	"net/http"

	"github.com/graflow/graflow"
)

// --- workflow definitions (CRUD) ---

func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.store.ListWorkflowDefinitions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, defs)
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := s.store.GetWorkflowDefinition(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, def)
}

func (s *Server) handleSaveDefinition(w http.ResponseWriter, r *http.Request) {
	var req saveDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &graflow.ValidationError{Message: "malformed request body: " + err.Error()})
		return
	}
	def := &graflow.WorkflowDefinition{
		Name:         req.Name,
		Description:  req.Description,
		Version:      req.Version,
		StrategyType: req.StrategyType,
		Tasks:        req.Tasks,
	}
	if err := s.store.SaveWorkflowDefinition(r.Context(), def); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, def)
}

func (s *Server) handleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteWorkflowDefinition(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- workflow executions ---

func (s *Server) handleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req startWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &graflow.ValidationError{Message: "malformed request body: " + err.Error()})
		return
	}
	def, err := s.store.GetWorkflowDefinition(r.Context(), req.WorkflowDefinitionID)
	if err != nil {
		writeError(w, err)
		return
	}
	we, err := s.workflows.Start(r.Context(), def, req.CorrelationID, req.Variables)
	if err != nil {
		writeError(w, err)
		return
	}
	s.engine.ExecuteWorkflow(r.Context(), we.ID)
	writeJSON(w, we)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	we, err := s.workflows.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, we)
}

func (s *Server) handleGetByCorrelationID(w http.ResponseWriter, r *http.Request) {
	we, err := s.workflows.GetByCorrelationID(r.Context(), r.PathValue("correlationId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, we)
}

func (s *Server) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	status := graflow.WorkflowStatus(r.URL.Query().Get("status"))
	if status == "" {
		writeError(w, &graflow.ValidationError{Message: "status query parameter is required"})
		return
	}
	list, err := s.workflows.ListByStatus(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	we, err := s.workflows.Pause(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, we)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	we, err := s.workflows.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.engine.ExecuteWorkflow(r.Context(), we.ID)
	writeJSON(w, we)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	we, err := s.workflows.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, we)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	we, err := s.workflows.RetryExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.engine.ExecuteWorkflow(r.Context(), we.ID)
	writeJSON(w, we)
}

func (s *Server) handleRetrySubset(w http.ResponseWriter, r *http.Request) {
	var req retrySubsetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &graflow.ValidationError{Message: "malformed request body: " + err.Error()})
		return
	}
	defIDs := make([]string, 0, len(req.TaskExecutionIDs))
	for _, teID := range req.TaskExecutionIDs {
		te, err := s.store.GetTaskExecution(r.Context(), teID)
		if err != nil {
			writeError(w, err)
			return
		}
		defIDs = append(defIDs, te.TaskDefinitionID)
	}
	we, err := s.workflows.RetryExecutionSubset(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.engine.ExecuteTaskSubset(r.Context(), we.ID, defIDs)
	writeJSON(w, we)
}

// --- review points ---

func (s *Server) handlePendingReviews(w http.ResponseWriter, r *http.Request) {
	list, err := s.reviews.PendingReviews(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleSubmitDecision(w http.ResponseWriter, r *http.Request) {
	var req reviewDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &graflow.ValidationError{Message: "malformed request body: " + err.Error()})
		return
	}
	rp, err := s.reviews.SubmitReview(r.Context(), r.PathValue("id"), req.Decision, req.Reviewer, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, rp)
}

// --- stats ---

func (s *Server) handleStatsSummary(w http.ResponseWriter, r *http.Request) {
	stats, err := s.monitor.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleStatsActive(w http.ResponseWriter, r *http.Request) {
	active, err := s.monitor.Active(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, active)
}
