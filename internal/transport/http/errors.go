package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"lesson-quiz-service/internal/domain"
)

// apiError is the JSON error body: {"error":{"code","message"}}.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorTable = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrQuizNotFound, http.StatusNotFound, "QUIZ_NOT_FOUND"},
	{domain.ErrNoQuiz, http.StatusNotFound, "NO_QUIZ"},
	{domain.ErrLedgerNotFound, http.StatusNotFound, "LEDGER_NOT_FOUND"},
	{domain.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
	{domain.ErrSessionClosed, http.StatusConflict, "SESSION_CLOSED"},
	{domain.ErrInvalidLedger, http.StatusUnprocessableEntity, "INVALID_LEDGER"},
	{domain.ErrIndexOutOfRange, http.StatusUnprocessableEntity, "INDEX_OUT_OF_RANGE"},
	{domain.ErrOptionNotFound, http.StatusUnprocessableEntity, "OPTION_NOT_FOUND"},
	{domain.ErrInvalidQuestion, http.StatusUnprocessableEntity, "INVALID_QUESTION"},
	{domain.ErrInvalidTimeLimit, http.StatusBadRequest, "INVALID_TIME_LIMIT"},
	{domain.ErrTransport, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
}

// classify maps domain errors onto HTTP status codes and stable error codes.
func classify(err error) apiError {
	var already *apiError
	if errors.As(err, &already) {
		return *already
	}
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			msg := err.Error()
			if e.status == http.StatusBadGateway {
				msg = "upstream service unavailable"
			}
			return apiError{Status: e.status, Code: e.code, Message: msg}
		}
	}
	return apiError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "internal server error"}
}

func (e *apiError) Error() string { return e.Code + ": " + e.Message }

func badRequest(msg string) error {
	return &apiError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: msg}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := classify(err)
	if appErr.Status >= 500 {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, appErr.Status, map[string]apiError{"error": appErr})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}
