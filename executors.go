package graflow

import "context"

// FuncTaskExecutor adapts a plain closure to the TaskExecutor contract.
// Grounded on the teacher's JSONHandler wrapper; used heavily in tests and
// for simple in-process task types.
type FuncTaskExecutor struct {
	Type string
	Base BaseExecutor
	Fn   func(ctx context.Context, config map[string]string, ec *ExecutionContext) (map[string]string, error)
}

func (f *FuncTaskExecutor) TaskType() string { return f.Type }

func (f *FuncTaskExecutor) Execute(ctx context.Context, def *TaskDefinition, ec *ExecutionContext) (map[string]string, error) {
	cfg, err := f.Base.Prepare(def, ec)
	if err != nil {
		return nil, err
	}
	out, err := f.Fn(ctx, cfg, ec)
	if err != nil {
		return nil, &ExecutorError{Cause: err}
	}
	return f.Base.PostProcess(out), nil
}
