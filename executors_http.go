package graflow

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPTaskExecutor dispatches a single HTTP request per task. Its output
// keys are statusCode, body and success (plus error on a non-2xx status);
// response headers are not returned. Non-2xx is
// returned as {success:false, statusCode, error}, never as a Go error:
// per spec.md §7, a non-2xx response does not auto-fail the task.
type HTTPTaskExecutor struct {
	Base   BaseExecutor
	Client *http.Client
}

// NewHTTPTaskExecutor returns an executor with required config keys
// "method" and "url" and a 60s default client timeout.
func NewHTTPTaskExecutor() *HTTPTaskExecutor {
	return &HTTPTaskExecutor{
		Base:   BaseExecutor{RequiredKeys: []string{"method", "url"}},
		Client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (h *HTTPTaskExecutor) TaskType() string { return "http" }

func (h *HTTPTaskExecutor) Execute(ctx context.Context, def *TaskDefinition, ec *ExecutionContext) (map[string]string, error) {
	cfg, err := h.Base.Prepare(def, ec)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(cfg["method"])
	url := cfg["url"]
	var body io.Reader
	if b, ok := cfg["body"]; ok {
		body = strings.NewReader(b)
	}

	reqCtx := ctx
	if def.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(def.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return nil, &ExecutorError{Cause: err}
	}
	if ct, ok := cfg["contentType"]; ok {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		// network failure / timeout: retriable.
		return nil, &ExecutorError{Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExecutorError{Cause: err}
	}

	result := map[string]string{
		"statusCode": strconv.Itoa(resp.StatusCode),
		"body":       string(respBody),
		"success":    strconv.FormatBool(resp.StatusCode >= 200 && resp.StatusCode < 300),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result["error"] = "non-2xx status: " + resp.Status
	}
	return h.Base.PostProcess(result), nil
}
