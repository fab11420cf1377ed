package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lesson-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// LedgerStore hands finished ledgers to whichever instance serves the results request.
// Ledgers live under quiz:ledger:{lessonID}:{attemptID} and are consumed with GETDEL,
// so each one is read at most once. Unclaimed ledgers expire after ttl.
type LedgerStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLedgerStore(client *redis.Client, ttl time.Duration) *LedgerStore {
	return &LedgerStore{client: client, ttl: ttl}
}

func (s *LedgerStore) Save(ctx context.Context, c domain.Completion) error {
	payload, err := json.Marshal(c.Ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := s.client.Set(ctx, s.key(c.LessonID, c.AttemptID), payload, s.ttl).Err(); err != nil {
		return domain.NewTransportError("save ledger", err)
	}
	return nil
}

func (s *LedgerStore) Take(ctx context.Context, lessonID, attemptID string) ([]domain.AnswerRecord, error) {
	raw, err := s.client.GetDel(ctx, s.key(lessonID, attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrLedgerNotFound
	}
	if err != nil {
		return nil, domain.NewTransportError("take ledger", err)
	}
	var ledger []domain.AnswerRecord
	if err := json.Unmarshal(raw, &ledger); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidLedger, err)
	}
	return ledger, nil
}

func (s *LedgerStore) key(lessonID, attemptID string) string {
	return "quiz:ledger:" + lessonID + ":" + attemptID
}
