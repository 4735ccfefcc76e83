package graflow

// StepOption customizes a TaskDefinition at the point Builder.Task creates
// it, grounded on the teacher's StepOption/BuilderOption pair.
type StepOption func(*TaskDefinition)

func WithRetryLimit(n int) StepOption {
	return func(td *TaskDefinition) { td.RetryLimit = n }
}

func WithTimeoutSeconds(n int) StepOption {
	return func(td *TaskDefinition) { td.TimeoutSeconds = n }
}

func WithExecutionMode(mode ExecutionMode) StepOption {
	return func(td *TaskDefinition) { td.ExecutionMode = mode }
}

func WithRequireUserReview() StepOption {
	return func(td *TaskDefinition) { td.RequireUserReview = true }
}

func WithConditionalExpression(expr string) StepOption {
	return func(td *TaskDefinition) { td.ConditionalExpression = expr }
}

func WithConfig(key, value string) StepOption {
	return func(td *TaskDefinition) {
		if td.Configuration == nil {
			td.Configuration = make(map[string]string)
		}
		td.Configuration[key] = value
	}
}
