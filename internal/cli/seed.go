package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"lesson-quiz-service/internal/config"
	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/infra/postgres"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewSeedCmd loads question sets from a JSON file into lesson_quizzes.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert lesson quizzes from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "config/quizzes.json", `JSON array of {"lessonId","mcqs"}`)
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var sets []domain.QuestionSet
	if err := json.Unmarshal(data, &sets); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader := postgres.NewQuestionLoader(pool)
	for _, set := range sets {
		if err := loader.SaveQuestionSet(ctx, set); err != nil {
			return fmt.Errorf("seed lesson %s: %w", set.LessonID, err)
		}
		log.Printf("seeded lesson %s (%d questions)", set.LessonID, set.Len())
	}
	return nil
}
