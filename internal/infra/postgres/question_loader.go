package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lesson-quiz-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads a lesson's generated MCQs from the lesson_quizzes JSONB column.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestionSet(ctx context.Context, lessonID string) (domain.QuestionSet, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT mcqs FROM lesson_quizzes WHERE lesson_id=$1`, lessonID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionSet{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuestionSet{}, domain.NewTransportError("load questions", err)
	}

	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("unmarshal questions for lesson %s: %w", lessonID, err)
	}
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}
	return domain.QuestionSet{LessonID: lessonID, Questions: questions}, nil
}

// SaveQuestionSet stores or replaces a lesson's questions.
func (l *QuestionLoader) SaveQuestionSet(ctx context.Context, set domain.QuestionSet) error {
	for _, q := range set.Questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("lesson %s question %q: %w", set.LessonID, q.Prompt, err)
		}
	}
	raw, err := json.Marshal(set.Questions)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO lesson_quizzes (lesson_id, mcqs) VALUES ($1, $2)
		ON CONFLICT (lesson_id) DO UPDATE SET mcqs = EXCLUDED.mcqs, updated_at = now()`,
		set.LessonID, raw)
	if err != nil {
		return domain.NewTransportError("save questions", err)
	}
	return nil
}
