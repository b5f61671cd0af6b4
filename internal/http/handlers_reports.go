package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"ledger/internal/core"
)

var errInvalidDays = errors.New("days must be a positive integer")

// Goals

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.ledger.ListGoals(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(goals))
}

func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	var g core.Goal
	if err := decodeJSON(w, r, &g, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.ledger.SetGoal(r.Context(), g)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleActiveGoal(w http.ResponseWriter, r *http.Request) {
	g, err := s.ledger.ActiveGoal(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleGoalPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.reports.GoalPlan(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Category rules

func (s *Server) handleListCategoryRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.ledger.ListCategoryRules(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rules))
}

func (s *Server) handleUpsertCategoryRule(w http.ResponseWriter, r *http.Request) {
	var rule core.CategoryRule
	if err := decodeJSON(w, r, &rule, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := s.ledger.UpsertCategoryRule(r.Context(), rule)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteCategoryRule(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteCategoryRule(r.Context(), mux.Vars(r)["category"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reports

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth("month", r.URL.Query().Get("month"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.reports.MonthlySummary(r.Context(), month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary.ByCategory = orEmpty(summary.ByCategory)
	summary.ByClass = orEmpty(summary.ByClass)
	summary.ByAccount = orEmpty(summary.ByAccount)
	summary.ByCard = orEmpty(summary.ByCard)
	writeJSON(w, http.StatusOK, summary)
}

// handleProjection accepts an optional starting balance and horizon in days.
func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var initial *core.Money
	if v := strings.TrimSpace(q.Get("initial")); v != "" {
		m, err := core.ParseMoney(v)
		if err != nil {
			s.writeError(w, r, core.Invalid("initial", err))
			return
		}
		initial = &m
	}

	days := 0
	if v := strings.TrimSpace(q.Get("days")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, core.Invalid("days", errInvalidDays))
			return
		}
		days = n
	}

	view, err := s.reports.Projection(r.Context(), initial, days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view.Points = orEmpty(view.Points)
	writeJSON(w, http.StatusOK, view)
}
