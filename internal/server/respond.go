package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/fieldline/orbit/internal/store"
	"github.com/fieldline/orbit/internal/upstream"
)

// defaultLimit and maxLimit bound list endpoints.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries machine-readable field errors, surfaced as
// 422.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}

	return fmt.Sprintf("validation failed: %s: %s", e.Fields[0].Field, e.Fields[0].Message)
}

// fieldErr builds a single-field ValidationError.
func fieldErr(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encErr := json.NewEncoder(w).Encode(v)
	if encErr != nil {
		// The status line is out; nothing useful left to do.
		_ = encErr
	}
}

// writeError maps err onto the API status taxonomy: missing rows are
// 404, rejected input 422, an exhausted upstream 502, everything else
// 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *ValidationError
		transient  *upstream.TransientError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: validation.Fields})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.As(err, &transient):
		s.logger.Warn("upstream exhausted", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

// instrument wraps a handler with per-route RED metrics when they are
// configured.
func (s *Server) instrument(route string, h httprouter.Handle) httprouter.Handle {
	if s.metrics == nil {
		return h
	}

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		start := time.Now()

		decInflight := s.metrics.TrackInflight(r.Context(), route)
		defer decInflight()

		h(w, r, p)

		s.metrics.RecordRequest(r.Context(), route, "ok", time.Since(start))
	}
}

// limitParam parses ?limit=, clamped to [1, maxLimit].
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fieldErr("limit", "must be a positive integer")
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	return limit, nil
}

// intQuery parses an optional non-negative integer query parameter.
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fieldErr(name, "must be a non-negative integer")
	}

	return v, nil
}

// int64Query parses a required positive int64 query parameter.
func int64Query(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fieldErr(name, "is required")
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return 0, fieldErr(name, "must be a positive integer")
	}

	return v, nil
}

// pathID parses a positive integer path segment.
func pathID(p httprouter.Params, name string) (int64, error) {
	v, err := strconv.ParseInt(p.ByName(name), 10, 64)
	if err != nil || v < 1 {
		return 0, fieldErr(name, "must be a positive integer")
	}

	return v, nil
}
