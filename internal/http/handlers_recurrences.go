package http

import (
	"net/http"
	"sync/atomic"

	"ledger/internal/core"
)

type activeRequest struct {
	Active *bool `json:"active"`
}

type materializeRequest struct {
	Month core.YearMonth `json:"month"`
}

type materializeResponse struct {
	Month   core.YearMonth `json:"month"`
	Created int            `json:"created"`
}

func (s *Server) handleListRecurrences(w http.ResponseWriter, r *http.Request) {
	recs, err := s.ledger.ListRecurrences(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(recs))
}

func (s *Server) handleCreateRecurrence(w http.ResponseWriter, r *http.Request) {
	var rec core.Recurrence
	if err := decodeJSON(w, r, &rec, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.ledger.CreateRecurrence(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleSetRecurrenceActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req activeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Active == nil {
		s.writeError(w, r, badRequest("field \"active\" is required"))
		return
	}
	if err := s.ledger.SetRecurrenceActive(r.Context(), id, *req.Active); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": *req.Active})
}

// handleMaterialize posts the active recurrences due in the requested month.
// Running it twice for the same month creates nothing the second time.
func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	var req materializeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.materializer.Materialize(r.Context(), req.Month)
	atomic.AddInt64(&s.appMetrics.recurrencesPosted, int64(created))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, materializeResponse{Month: req.Month, Created: created})
}
