package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"ledger/internal/core"
	"ledger/internal/services"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(accounts))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var a core.Account
	if err := decodeJSON(w, r, &a, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.ledger.CreateAccount(r.Context(), a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var a core.Account
	if err := decodeJSON(w, r, &a, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	a.ID = id
	if err := s.ledger.UpdateAccount(r.Context(), a); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteAccount(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	view, err := s.reports.Balances(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view.Accounts = orEmpty(view.Accounts)
	writeJSON(w, http.StatusOK, view)
}

// Cards

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.ledger.ListCards(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(cards))
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var c core.Card
	if err := decodeJSON(w, r, &c, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.ledger.CreateCard(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteCard(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatementMonths(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	months, err := s.reports.StatementMonths(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(months))
}

// statementRef reads the card id and statement month from the path.
func statementRef(r *http.Request) (int64, core.YearMonth, error) {
	id, err := pathID(r)
	if err != nil {
		return 0, core.YearMonth{}, err
	}
	month, err := parseMonth("month", mux.Vars(r)["month"])
	if err != nil {
		return 0, core.YearMonth{}, err
	}
	return id, month, nil
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	id, month, err := statementRef(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.reports.Statement(r.Context(), id, month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePayStatement(w http.ResponseWriter, r *http.Request) {
	id, month, err := statementRef(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in services.PaymentInput
	if err := decodeJSON(w, r, &in, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.ledger.PayStatement(r.Context(), id, month, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}
