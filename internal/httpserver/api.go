package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ephemeral-paste/internal/metrics"
	"ephemeral-paste/internal/paste"
)

// expiresAtLayout renders instants as UTC ISO-8601 with millisecond precision.
const expiresAtLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	msgNotFound = "paste not found"
	msgInternal = "internal server error"
)

// createRequest keeps raw values so type mismatches produce the same
// field-specific messages as out-of-range values.
type createRequest struct {
	Content    json.RawMessage `json:"content"`
	TTLSeconds json.RawMessage `json:"ttl_seconds"`
	MaxViews   json.RawMessage `json:"max_views"`
}

type createResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type pasteResponse struct {
	Content        string  `json:"content"`
	RemainingViews *int64  `json:"remaining_views"`
	ExpiresAt      *string `json:"expires_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	OK bool `json:"ok"`
}

func (req createRequest) params() (paste.CreateParams, error) {
	var out paste.CreateParams
	if len(req.Content) == 0 || json.Unmarshal(req.Content, &out.Content) != nil {
		return out, &paste.ValidationError{Field: "content", Message: "content must be a non-empty string"}
	}
	ttl, ok := optionalInt(req.TTLSeconds)
	if !ok {
		return out, &paste.ValidationError{Field: "ttl_seconds", Message: "ttl_seconds must be an integer >= 1"}
	}
	maxViews, ok := optionalInt(req.MaxViews)
	if !ok {
		return out, &paste.ValidationError{Field: "max_views", Message: "max_views must be an integer >= 1"}
	}
	out.TTLSeconds = ttl
	out.MaxViews = maxViews
	return out, nil
}

// optionalInt accepts an absent or null value, or a bare JSON integer.
func optionalInt(raw json.RawMessage) (*int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil, false
	}
	return &n, true
}

func (s *Server) handleAPICreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxBytes)+4096)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: s.tooLargeMessage()})
			return
		}
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be a JSON object"})
		return
	}

	params, err := req.params()
	if err == nil && len(params.Content) > s.maxBytes {
		err = &paste.ValidationError{Field: "content", Message: s.tooLargeMessage()}
	}
	if err != nil {
		s.metrics.Rejected()
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	created, err := s.service.Create(r.Context(), params)
	if err != nil {
		if paste.IsValidation(err) {
			s.metrics.Rejected()
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.apiServerError(w, r, err)
		return
	}
	s.metrics.Created()
	s.logger.Debug("paste created", "id", created.ID, "expires", created.HasExpiration(), "limited", created.HasViewLimit())

	s.writeJSON(w, http.StatusOK, createResponse{ID: created.ID, URL: s.canonicalURL(r, created.ID)})
}

func (s *Server) handleAPIGet(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Retrieve(r.Context(), chi.URLParam(r, "id"), requestNow(r))
	if err != nil {
		if paste.IsNotFound(err) {
			s.metrics.Retrieval(metrics.OutcomeNotFound)
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: msgNotFound})
			return
		}
		s.metrics.Retrieval(metrics.OutcomeUnavailable)
		s.apiServerError(w, r, err)
		return
	}
	s.metrics.Retrieval(metrics.OutcomeOK)

	s.writeJSON(w, http.StatusOK, pasteResponse{
		Content:        view.Paste.Content,
		RemainingViews: view.RemainingViews,
		ExpiresAt:      formatExpiry(view.ExpiresAt()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.HealthCheck(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{OK: false})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{OK: true})
}

func (s *Server) apiServerError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("internal error", "error", err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgInternal})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("write json", "error", err)
	}
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("content exceeds %d byte limit", s.maxBytes)
}

func formatExpiry(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(expiresAtLayout)
	return &v
}
