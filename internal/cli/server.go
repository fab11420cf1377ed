package cli

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lesson-quiz-service/internal/app"
	"lesson-quiz-service/internal/config"
	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/explain"
	"lesson-quiz-service/internal/infra/amqp"
	"lesson-quiz-service/internal/infra/lessonapi"
	"lesson-quiz-service/internal/infra/memory"
	"lesson-quiz-service/internal/infra/postgres"
	infraredis "lesson-quiz-service/internal/infra/redis"
	"lesson-quiz-service/internal/llm"
	transport "lesson-quiz-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Printf("close: %v", err)
			}
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, redisClient)
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestionSets())
	switch {
	case cfg.Lessons.BaseURL != "":
		loader = lessonapi.NewClient(cfg.Lessons.BaseURL, cfg.Lessons.Token, config.TTLDuration(cfg.Lessons.Timeout, 10*time.Second))
	case pool != nil:
		loader = postgres.NewQuestionLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	ledgerTTL := config.TTLDuration(cfg.Quiz.LedgerTTL, time.Hour)
	var (
		questions app.QuestionRepository
		ledgers   app.LedgerStore
		sessions  app.SessionRepository
	)
	if redisClient != nil {
		questions = infraredis.NewQuestionRepository(redisClient, loader, quizTTL)
		ledgers = infraredis.NewLedgerStore(redisClient, ledgerTTL)
		sessions = infraredis.NewSessionStore(redisClient, redisTTL)
	} else {
		questions = memory.NewQuestionRepository(loader, quizTTL)
		ledgers = memory.NewLedgerStore()
		sessions = memory.NewSessionStore()
	}

	quiz := app.NewQuizService(sessions, questions, ledgers, app.QuizConfig{
		TimeLimit:            cfg.Quiz.TimeLimit,
		HonorPendingOnExpiry: cfg.Quiz.HonorPendingOnExpiry,
	})
	if cfg.AMQP.URL != "" {
		publisher, err := amqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		closers = append(closers, publisher)
		quiz.WithPublisher(publisher)
	}

	explainer, err := newExplainer(cfg)
	if err != nil {
		return err
	}
	if explainer != nil && redisClient != nil {
		explainer = infraredis.NewExplanationCache(redisClient, explainer, config.TTLDuration(cfg.Explanations.CacheTTL, 24*time.Hour))
	}

	resultOpts := app.ResultOptions{
		Explainer:      explainer,
		ExplainTimeout: config.TTLDuration(cfg.Explanations.Timeout, 30*time.Second),
	}
	apiOpts := transport.APIOptions{InlineWait: config.TTLDuration(cfg.Explanations.InlineWait, 0)}
	if cfg.Postgres.URL != "" {
		db := postgres.OpenDB(cfg.Postgres.URL)
		closers = append(closers, db)
		store := postgres.NewResultStore(db)
		resultOpts.Recorder = store
		apiOpts.History = store
	}
	results := app.NewResultService(questions, ledgers, resultOpts)

	router := transport.NewRouter(
		transport.NewAPI(questions, results, apiOpts),
		transport.NewWSHandler(quiz, results),
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset: it would cut websocket sessions longer than the timeout.
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newExplainer returns nil when explanations are disabled.
func newExplainer(cfg config.Config) (app.Explainer, error) {
	ex := cfg.Explanations
	switch ex.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderHTTP:
		base := ex.BaseURL
		if base == "" {
			base = cfg.Lessons.BaseURL
		}
		return lessonapi.NewClient(base, cfg.Lessons.Token, config.TTLDuration(ex.Timeout, 30*time.Second)), nil
	}

	provider, err := llm.NewProvider(llm.Config{
		Provider: ex.Provider,
		Model:    ex.Model,
		APIKey:   ex.APIKey,
		BaseURL:  ex.BaseURL,
		Retry:    llm.DefaultRetry(),
	})
	if err != nil {
		return nil, err
	}
	if mock, ok := provider.(*llm.MockProvider); ok {
		mock.Fallback = explain.Placeholder
	}
	log.Printf("explanations via %s (%s)", ex.Provider, provider.ModelID())
	return explain.NewLLMExplainer(provider), nil
}

// sampleQuestionSets backs the service when neither Postgres nor the lesson API is configured.
func sampleQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"lesson-1": {
			LessonID: "lesson-1",
			Questions: []domain.Question{
				{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
				{ID: "q2", Prompt: "What is the capital of France?", Options: []string{"Paris", "Rome", "Madrid"}, CorrectAnswer: "Paris"},
				{ID: "q3", Prompt: "Which planet is closest to the sun?", Options: []string{"Venus", "Mercury", "Mars"}, CorrectAnswer: "Mercury"},
			},
		},
	}
}
