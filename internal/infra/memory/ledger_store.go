package memory

import (
	"context"
	"sync"

	"lesson-quiz-service/internal/domain"
)

// LedgerStore keeps finished ledgers in process, keyed by lesson and attempt.
// Each ledger can be taken exactly once.
type LedgerStore struct {
	mu      sync.Mutex
	ledgers map[string][]domain.AnswerRecord
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{ledgers: make(map[string][]domain.AnswerRecord)}
}

func (s *LedgerStore) Save(_ context.Context, c domain.Completion) error {
	ledger := make([]domain.AnswerRecord, len(c.Ledger))
	copy(ledger, c.Ledger)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[key(c.LessonID, c.AttemptID)] = ledger
	return nil
}

func (s *LedgerStore) Take(_ context.Context, lessonID, attemptID string) ([]domain.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(lessonID, attemptID)
	ledger, ok := s.ledgers[k]
	if !ok {
		return nil, domain.ErrLedgerNotFound
	}
	delete(s.ledgers, k)
	return ledger, nil
}

func key(lessonID, attemptID string) string {
	return lessonID + "/" + attemptID
}
