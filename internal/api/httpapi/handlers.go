package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/quranload/audiocore/internal/app/merge"
)

// StatusClientClosedRequest is returned when the caller went away before the merge settled.
const StatusClientClosedRequest = 499

// maxLogEntries caps the limit query parameter of /debug/logs.
const maxLogEntries = 1000

// maxMergeRequestBytes bounds the POST /v1/merge body.
const maxMergeRequestBytes = 1 << 20

// MergeRequest is the body of POST /v1/merge.
type MergeRequest struct {
	Fragments []string `json:"fragments"`
}

// MergeResponse is the body returned by POST /v1/merge.
type MergeResponse struct {
	Status      string `json:"status"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// LogsResponse is the body returned by GET /debug/logs.
type LogsResponse struct {
	Entries  []json.RawMessage `json:"entries"`
	Held     int               `json:"held"`     // lines currently in the ring
	Capacity int               `json:"capacity"` // lines the ring can hold
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req MergeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxMergeRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, code, MergeResponse{
			Status: merge.StatusFailed.String(),
			Error:  "invalid request body: " + err.Error(),
		})
		return
	}

	result := s.merger.Concatenate(r.Context(), req.Fragments)

	resp := MergeResponse{
		Status:      result.Status.String(),
		Output:      result.Path,
		Diagnostics: result.Diagnostics,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}

	code := mergeStatusCode(result)
	if code != http.StatusOK {
		zlog.Debug().Msgf("httpapi: merge not completed: status=%s code=%d", result.Status, code)
	}
	writeJSON(w, code, resp)
}

// mergeStatusCode maps a merge result to an HTTP status.
func mergeStatusCode(result merge.Result) int {
	switch {
	case result.OK():
		return http.StatusOK
	case result.Status == merge.StatusCancelled:
		return StatusClientClosedRequest
	case errors.Is(result.Err, merge.ErrNoFragments), errors.Is(result.Err, merge.ErrInvalidFragment):
		return http.StatusBadRequest
	case errors.Is(result.Err, merge.ErrMergeFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLogEntries)
	}

	resp := LogsResponse{Entries: []json.RawMessage{}}
	if s.logs != nil {
		resp.Held = s.logs.Len()
		resp.Capacity = s.logs.Cap()
		for _, line := range s.logs.Entries(limit) {
			if json.Valid([]byte(line)) {
				resp.Entries = append(resp.Entries, json.RawMessage(line))
				continue
			}
			quoted, _ := json.Marshal(line)
			resp.Entries = append(resp.Entries, quoted)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs != nil {
		s.logs.Reset()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Msgf("httpapi: failed to write response: error=%v", err)
	}
}
