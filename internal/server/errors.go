package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ciricc/court-transcriber/internal/audio"
	"github.com/ciricc/court-transcriber/internal/export"
	"github.com/ciricc/court-transcriber/internal/pipeline"
	"github.com/ciricc/court-transcriber/internal/storage"
)

var (
	errMissingFile = errors.New("multipart field \"file\" is required")
	errBadQuery    = errors.New("invalid query parameter")
	errBadBody     = errors.New("invalid request body")
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrSegmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, errMissingFile),
		errors.Is(err, errBadQuery),
		errors.Is(err, errBadBody),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, audio.ErrInvalidWav),
		errors.Is(err, audio.ErrUnsupportedFormat),
		errors.Is(err, audio.ErrEmptyBuffer):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", code, "error", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
