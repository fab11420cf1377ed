package postgres

import (
	"context"
	"database/sql"
	"time"

	"lesson-quiz-service/internal/domain"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type resultRow struct {
	bun.BaseModel `bun:"table:quiz_results"`

	ID             int64                `bun:"id,pk,autoincrement"`
	LessonID       string               `bun:"lesson_id,notnull"`
	AttemptID      *string              `bun:"attempt_id"`
	CorrectAnswers int                  `bun:"correct_answers,notnull"`
	TotalQuestions int                  `bun:"total_questions,notnull"`
	Answers        []domain.ResultEntry `bun:"answers,type:jsonb,notnull"`
	CreatedAt      time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// ResultStore archives scored results in quiz_results.
type ResultStore struct {
	db *bun.DB
}

// OpenDB opens a bun handle over the pgdriver connector.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

// RecordResult inserts a result. Re-scoring the same attempt is a no-op.
func (s *ResultStore) RecordResult(ctx context.Context, result domain.Result) error {
	row := &resultRow{
		LessonID:       result.LessonID,
		CorrectAnswers: result.CorrectCount,
		TotalQuestions: result.TotalQuestions,
		Answers:        result.PerQuestion,
	}
	if result.AttemptID != "" {
		row.AttemptID = &result.AttemptID
	}
	_, err := s.db.NewInsert().Model(row).On("CONFLICT (attempt_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return domain.NewTransportError("record result", err)
	}
	return nil
}

// RecentResults returns the latest archived results of a lesson, newest first.
func (s *ResultStore) RecentResults(ctx context.Context, lessonID string, limit int) ([]domain.Result, error) {
	var rows []resultRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("lesson_id = ?", lessonID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, domain.NewTransportError("recent results", err)
	}
	out := make([]domain.Result, 0, len(rows))
	for _, row := range rows {
		r := domain.Result{
			LessonID:       row.LessonID,
			TotalQuestions: row.TotalQuestions,
			CorrectCount:   row.CorrectAnswers,
			PerQuestion:    row.Answers,
		}
		if row.AttemptID != nil {
			r.AttemptID = *row.AttemptID
		}
		out = append(out, r)
	}
	return out, nil
}
