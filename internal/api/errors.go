package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/KaramelBytes/fileflow-cli/internal/correlation"
	"github.com/KaramelBytes/fileflow-cli/internal/dataset"
	"github.com/KaramelBytes/fileflow-cli/internal/logging"
	"github.com/KaramelBytes/fileflow-cli/internal/rules"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("bad request")

// classify maps an error to its status code and machine-readable code.
func classify(err error) (int, string) {
	var re *dataset.RecordError
	var ce *correlation.CellError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, rules.ErrInvalidRule), errors.Is(err, rules.ErrUnknownKind):
		return http.StatusBadRequest, "invalid_rule"
	case errors.Is(err, rules.ErrUnknownColumn), errors.Is(err, rules.ErrColumnRange):
		return http.StatusNotFound, "unknown_column"
	case errors.Is(err, correlation.ErrNotQuantitative):
		return http.StatusUnprocessableEntity, "not_quantitative"
	case errors.Is(err, correlation.ErrEmpty):
		return http.StatusUnprocessableEntity, "no_values"
	case errors.As(err, &ce):
		return http.StatusUnprocessableEntity, "invalid_number"
	case errors.As(err, &re):
		return http.StatusUnprocessableEntity, "malformed_record"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	}
	return http.StatusInternalServerError, "internal"
}

// respondError logs err with the request id and writes the JSON envelope.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
	)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Code: code})
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Warn("json encode error", "error", err)
	}
}
