package graflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// TaskExecutor is the capability contract every task handler must satisfy:
// a task-type selector and an execute method that turns a definition plus
// the run's context into a result map.
type TaskExecutor interface {
	TaskType() string
	Execute(ctx context.Context, def *TaskDefinition, ec *ExecutionContext) (map[string]string, error)
}

// Registry maps a task-type string to its executor.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]TaskExecutor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]TaskExecutor)}
}

// Register adds e under e.TaskType(), replacing any prior registration.
func (r *Registry) Register(e TaskExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.TaskType()] = e
}

// Lookup returns the executor for taskType, if registered.
func (r *Registry) Lookup(taskType string) (TaskExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[taskType]
	return e, ok
}

// BaseExecutor provides the shared executor behavior spec.md §4.3 calls
// for: required-config validation, `${}` substitution over configuration,
// and post-processing. Composed into concrete executors rather than
// subclassed.
type BaseExecutor struct {
	RequiredKeys []string
}

// Prepare validates required configuration keys and returns the
// variable-substituted configuration ready for dispatch.
func (b BaseExecutor) Prepare(def *TaskDefinition, ec *ExecutionContext) (map[string]string, error) {
	for _, k := range b.RequiredKeys {
		if _, ok := def.Configuration[k]; !ok {
			return nil, &ValidationError{Message: fmt.Sprintf("task %s missing required config key %q", def.Name, k)}
		}
	}
	return ec.SubstituteMap(def.Configuration), nil
}

// PostProcess stamps executionTimestamp onto a result map and returns it.
func (b BaseExecutor) PostProcess(result map[string]string) map[string]string {
	if result == nil {
		result = make(map[string]string)
	}
	result["executionTimestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	return result
}

// recoveringExecutor wraps a TaskExecutor so a panic inside Execute is
// converted into a retriable ExecutorError instead of crashing the worker.
type recoveringExecutor struct {
	inner TaskExecutor
}

func WrapRecovering(e TaskExecutor) TaskExecutor { return recoveringExecutor{inner: e} }

func (r recoveringExecutor) TaskType() string { return r.inner.TaskType() }

func (r recoveringExecutor) Execute(ctx context.Context, def *TaskDefinition, ec *ExecutionContext) (result map[string]string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ExecutorError{Cause: fmt.Errorf("panic in executor %s: %v\n%s", r.inner.TaskType(), p, debug.Stack())}
		}
	}()
	return r.inner.Execute(ctx, def, ec)
}
