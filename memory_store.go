package graflow

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store, grounded on the teacher's
// memory_store.go: a set of mutex-guarded maps, adequate for tests and
// single-process deployments that don't need durability across restarts.
type MemoryStore struct {
	mu sync.RWMutex

	definitions        map[string]*WorkflowDefinition
	definitionsByNameV map[string]string // "name@version" -> id

	executions map[string]*WorkflowExecution
	byCorrID   map[string]string

	tasks map[string]*TaskExecution

	reviews map[string]*UserReviewPoint
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		definitions:        make(map[string]*WorkflowDefinition),
		definitionsByNameV: make(map[string]string),
		executions:         make(map[string]*WorkflowExecution),
		byCorrID:           make(map[string]string),
		tasks:              make(map[string]*TaskExecution),
		reviews:            make(map[string]*UserReviewPoint),
	}
}

var _ Store = (*MemoryStore)(nil)

func nameVersionKey(name string, version int) string {
	return name + "@" + strconv.Itoa(version)
}

func cloneWorkflowDefinition(d *WorkflowDefinition) *WorkflowDefinition {
	cp := *d
	cp.Tasks = make([]*TaskDefinition, len(d.Tasks))
	for i, t := range d.Tasks {
		tc := *t
		tc.Configuration = cloneStrMap(t.Configuration)
		cp.Tasks[i] = &tc
	}
	return &cp
}

func cloneStrMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneWorkflowExecution(we *WorkflowExecution) *WorkflowExecution {
	cp := *we
	cp.Variables = cloneStrMap(we.Variables)
	return &cp
}

func cloneTaskExecution(te *TaskExecution) *TaskExecution {
	cp := *te
	cp.Inputs = cloneStrMap(te.Inputs)
	cp.Outputs = cloneStrMap(te.Outputs)
	return &cp
}

func cloneReviewPoint(rp *UserReviewPoint) *UserReviewPoint {
	cp := *rp
	return &cp
}

func (s *MemoryStore) SaveWorkflowDefinition(_ context.Context, def *WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	s.definitions[def.ID] = cloneWorkflowDefinition(def)
	s.definitionsByNameV[nameVersionKey(def.Name, def.Version)] = def.ID
	return nil
}

func (s *MemoryStore) GetWorkflowDefinition(_ context.Context, id string) (*WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.definitions[id]
	if !ok {
		return nil, &NotFoundError{Kind: "WorkflowDefinition", ID: id}
	}
	return cloneWorkflowDefinition(d), nil
}

func (s *MemoryStore) GetWorkflowDefinitionByNameVersion(_ context.Context, name string, version int) (*WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.definitionsByNameV[nameVersionKey(name, version)]
	if !ok {
		return nil, &NotFoundError{Kind: "WorkflowDefinition", ID: nameVersionKey(name, version)}
	}
	return cloneWorkflowDefinition(s.definitions[id]), nil
}

func (s *MemoryStore) ListWorkflowDefinitions(_ context.Context) ([]*WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*WorkflowDefinition, 0, len(s.definitions))
	for _, d := range s.definitions {
		out = append(out, cloneWorkflowDefinition(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeleteWorkflowDefinition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.definitions[id]
	if !ok {
		return &NotFoundError{Kind: "WorkflowDefinition", ID: id}
	}
	delete(s.definitions, id)
	delete(s.definitionsByNameV, nameVersionKey(d.Name, d.Version))
	return nil
}

func (s *MemoryStore) CreateWorkflowExecution(_ context.Context, we *WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if we.ID == "" {
		we.ID = uuid.New().String()
	}
	for _, existing := range s.executions {
		if existing.CorrelationID == we.CorrelationID {
			return &ValidationError{Message: "correlationId already in use: " + we.CorrelationID}
		}
	}
	now := time.Now().UTC()
	we.CreatedAt = now
	we.UpdatedAt = now
	s.executions[we.ID] = cloneWorkflowExecution(we)
	s.byCorrID[we.CorrelationID] = we.ID
	return nil
}

func (s *MemoryStore) GetWorkflowExecution(_ context.Context, id string) (*WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	we, ok := s.executions[id]
	if !ok {
		return nil, &NotFoundError{Kind: "WorkflowExecution", ID: id}
	}
	return cloneWorkflowExecution(we), nil
}

func (s *MemoryStore) GetWorkflowExecutionByCorrelationID(_ context.Context, correlationID string) (*WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCorrID[correlationID]
	if !ok {
		return nil, &NotFoundError{Kind: "WorkflowExecution", ID: correlationID}
	}
	return cloneWorkflowExecution(s.executions[id]), nil
}

func (s *MemoryStore) ListWorkflowExecutionsByStatus(_ context.Context, status WorkflowStatus) ([]*WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*WorkflowExecution
	for _, we := range s.executions {
		if we.Status == status {
			out = append(out, cloneWorkflowExecution(we))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) FindCompletedOlderThan(_ context.Context, before time.Time) ([]*WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*WorkflowExecution
	for _, we := range s.executions {
		if we.Status.IsTerminal() && we.CompletedAt != nil && we.CompletedAt.Before(before) {
			out = append(out, cloneWorkflowExecution(we))
		}
	}
	return out, nil
}

func (s *MemoryStore) FindPausedOlderThan(_ context.Context, before time.Time) ([]*WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*WorkflowExecution
	for _, we := range s.executions {
		if we.Status == WorkflowStatusPaused && we.StartedAt != nil && we.StartedAt.Before(before) {
			out = append(out, cloneWorkflowExecution(we))
		}
	}
	return out, nil
}

func (s *MemoryStore) FindActiveByDefinitionName(_ context.Context, name string) ([]*WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*WorkflowExecution
	for _, we := range s.executions {
		if we.Status.IsTerminal() {
			continue
		}
		def, ok := s.definitions[we.WorkflowDefinitionID]
		if ok && def.Name == name {
			out = append(out, cloneWorkflowExecution(we))
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateWorkflowExecution(_ context.Context, we *WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[we.ID]; !ok {
		return &NotFoundError{Kind: "WorkflowExecution", ID: we.ID}
	}
	we.UpdatedAt = time.Now().UTC()
	s.executions[we.ID] = cloneWorkflowExecution(we)
	return nil
}

func (s *MemoryStore) DeleteWorkflowExecution(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	we, ok := s.executions[id]
	if !ok {
		return &NotFoundError{Kind: "WorkflowExecution", ID: id}
	}
	if !we.Status.IsTerminal() {
		return &StateError{Message: "cannot delete workflow execution not in a terminal state: " + string(we.Status)}
	}
	delete(s.executions, id)
	delete(s.byCorrID, we.CorrelationID)
	for tid, t := range s.tasks {
		if t.WorkflowExecutionID == id {
			delete(s.tasks, tid)
		}
	}
	for rid, r := range s.reviews {
		if r.WorkflowExecutionID == id {
			delete(s.reviews, rid)
		}
	}
	return nil
}

func (s *MemoryStore) CreateTaskExecution(_ context.Context, te *TaskExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if te.ID == "" {
		te.ID = uuid.New().String()
	}
	te.CreatedAt = time.Now().UTC()
	s.tasks[te.ID] = cloneTaskExecution(te)
	return nil
}

func (s *MemoryStore) GetTaskExecution(_ context.Context, id string) (*TaskExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, &NotFoundError{Kind: "TaskExecution", ID: id}
	}
	return cloneTaskExecution(t), nil
}

func (s *MemoryStore) ListTaskExecutionsByWorkflow(_ context.Context, workflowExecutionID string) ([]*TaskExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TaskExecution
	for _, t := range s.tasks {
		if t.WorkflowExecutionID == workflowExecutionID {
			out = append(out, cloneTaskExecution(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateTaskExecution(_ context.Context, te *TaskExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[te.ID]; !ok {
		return &NotFoundError{Kind: "TaskExecution", ID: te.ID}
	}
	s.tasks[te.ID] = cloneTaskExecution(te)
	return nil
}

func (s *MemoryStore) TasksToRetry(_ context.Context, now time.Time) ([]*TaskExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TaskExecution
	for _, t := range s.tasks {
		if t.Status == TaskStatusAwaitingRetry && t.NextRetryAt != nil && !t.NextRetryAt.After(now) {
			out = append(out, cloneTaskExecution(t))
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateReviewPoint(_ context.Context, rp *UserReviewPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rp.ID == "" {
		rp.ID = uuid.New().String()
	}
	rp.CreatedAt = time.Now().UTC()
	s.reviews[rp.ID] = cloneReviewPoint(rp)
	return nil
}

func (s *MemoryStore) GetReviewPoint(_ context.Context, id string) (*UserReviewPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, &NotFoundError{Kind: "UserReviewPoint", ID: id}
	}
	return cloneReviewPoint(r), nil
}

func (s *MemoryStore) UpdateReviewPoint(_ context.Context, rp *UserReviewPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[rp.ID]; !ok {
		return &NotFoundError{Kind: "UserReviewPoint", ID: rp.ID}
	}
	s.reviews[rp.ID] = cloneReviewPoint(rp)
	return nil
}

func (s *MemoryStore) PendingReviewPoints(_ context.Context) ([]*UserReviewPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*UserReviewPoint
	for _, r := range s.reviews {
		if r.IsOpen() {
			out = append(out, cloneReviewPoint(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
