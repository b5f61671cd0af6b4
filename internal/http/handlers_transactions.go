package http

import (
	"net/http"
	"sync/atomic"

	"ledger/internal/core"
	"ledger/internal/services"
)

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

type statusRequest struct {
	IDs    []int64     `json:"ids"`
	Status core.Status `json:"status"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth("month", r.URL.Query().Get("month"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	txs, err := s.ledger.ListTransactions(r.Context(), month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(txs))
}

// handleRecordTransaction answers with every row written; an installment
// purchase yields one row per leg.
func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var in services.TransactionInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.ledger.RecordTransaction(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.transactionsRecorded, int64(len(rows)))
	writeJSON(w, http.StatusCreated, rows)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.ledger.DeleteTransactions(r.Context(), req.IDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleSetTransactionStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.ledger.SetTransactionStatus(r.Context(), req.IDs, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// Transfers

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := s.ledger.ListTransfers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(transfers))
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var t core.Transfer
	if err := decodeJSON(w, r, &t, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.ledger.CreateTransfer(r.Context(), t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteTransfer(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
