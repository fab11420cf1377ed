package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates no quiz has been generated for the lesson yet.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuiz is returned when a lesson has a quiz with no questions; sessions never start on it.
	ErrNoQuiz = errors.New("no quiz available")
	// ErrSessionNotFound is returned when an attempt id does not match a live session.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned when a command reaches a session that already ended.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrLedgerNotFound indicates there is no finished (or unconsumed) answer ledger for an attempt.
	ErrLedgerNotFound = errors.New("answer ledger not found")
	// ErrInvalidLedger indicates the ledger does not line up with the question set.
	ErrInvalidLedger = errors.New("invalid answer ledger")
	// ErrIndexOutOfRange indicates a ledger access outside the question set.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrOptionNotFound indicates a selected text is not one of the question's options.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidQuestion indicates malformed quiz content.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrInvalidTimeLimit indicates a non-positive per-question time limit.
	ErrInvalidTimeLimit = errors.New("invalid question time limit")
	// ErrTransport matches any *TransportError via errors.Is.
	ErrTransport = errors.New("transport error")
)

// TransportError wraps a failed call to a collaborator (lesson backend, database, cache).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// NewTransportError wraps err unless it already carries a domain meaning.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrQuizNotFound) || errors.Is(err, ErrLedgerNotFound) || errors.Is(err, ErrTransport) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
