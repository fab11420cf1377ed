package app

import (
	"fmt"

	"lesson-quiz-service/internal/domain"
)

// AnswerLedger holds one AnswerRecord per question, index-aligned with the QuestionSet.
// Its length is fixed at creation and every slot starts Unanswered.
type AnswerLedger struct {
	records []domain.AnswerRecord
}

func NewAnswerLedger(n int) *AnswerLedger {
	return &AnswerLedger{records: make([]domain.AnswerRecord, n)}
}

func (l *AnswerLedger) Len() int { return len(l.records) }

// Record overwrites the answer at index.
func (l *AnswerLedger) Record(index int, answer domain.AnswerRecord) error {
	if index < 0 || index >= len(l.records) {
		return fmt.Errorf("%w: record %d of %d", domain.ErrIndexOutOfRange, index, len(l.records))
	}
	l.records[index] = answer
	return nil
}

// Get returns the record at index, Unanswered if nothing was recorded.
func (l *AnswerLedger) Get(index int) (domain.AnswerRecord, error) {
	if index < 0 || index >= len(l.records) {
		return domain.AnswerRecord{}, fmt.Errorf("%w: get %d of %d", domain.ErrIndexOutOfRange, index, len(l.records))
	}
	return l.records[index], nil
}

// Serializable returns a copy suitable for handing across the persistence boundary.
func (l *AnswerLedger) Serializable() []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, len(l.records))
	copy(out, l.records)
	return out
}
