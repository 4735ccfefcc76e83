package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/graflow/graflow"
)

// ErrorResponse is the JSON body written on any handler failure, grounded
// on the teacher's api/errors.go.
type ErrorResponse struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	_ = json.NewEncoder(w).Encode(ErrorResponse{Message: err.Error()})
}

// statusFor maps graflow's typed error hierarchy onto an HTTP status,
// the same kind of mapping the teacher does with pgx.ErrNoRows inline in
// each handler, generalized here since graflow's errors carry their own
// identity instead of a single sentinel.
func statusFor(err error) int {
	var notFound *graflow.NotFoundError
	var validation *graflow.ValidationError
	var state *graflow.StateError
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &state):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
