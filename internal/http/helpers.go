package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"ledger/internal/core"
	"ledger/internal/log"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// badRequestError marks input that could not be decoded at all.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code. Internal failures are logged and
// their details kept out of the response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var bad *badRequestError
	status := http.StatusInternalServerError
	errorType := log.ErrorTypeInternal
	switch {
	case errors.As(err, &bad):
		status, errorType = http.StatusBadRequest, log.ErrorTypeValidation
	case core.IsValidation(err):
		status, errorType = http.StatusUnprocessableEntity, log.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		status, errorType = http.StatusNotFound, log.ErrorTypeNotFound
	case errors.Is(err, core.ErrReferenced), errors.Is(err, core.ErrDuplicateRecurrence):
		status, errorType = http.StatusConflict, log.ErrorTypeConflict
	}

	logger := log.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, r.Method,
			log.NewFields().WithErrorType(errorType).WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", ""))
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	logger.DebugContext(r.Context(), "Request rejected", log.FieldError, err.Error(), log.FieldErrorType, errorType)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeJSON reads exactly one JSON value from the body into v. An empty
// body leaves v untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			return badRequest("request body is empty")
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &syntaxErr):
			return badRequest("malformed JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return badRequest("invalid value for field %q", typeErr.Field)
		case errors.As(err, &maxErr):
			return badRequest("request body too large")
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			return badRequest("%s", strings.TrimPrefix(err.Error(), "json: "))
		}
		// Field decoders such as Date and Money report domain errors.
		return badRequest("invalid request body: %v", err)
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON value")
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id %q", mux.Vars(r)["id"])
	}
	return id, nil
}

// parseMonth parses a YYYY-MM value; an empty string yields the zero month.
func parseMonth(field, s string) (core.YearMonth, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.YearMonth{}, nil
	}
	ym, err := core.ParseYearMonth(s)
	if err != nil {
		return core.YearMonth{}, core.Invalid(field, err)
	}
	return ym, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
