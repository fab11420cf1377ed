package app

import (
	"context"
	"log"
	"time"

	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/metrics"

	"github.com/google/uuid"
)

// SessionRepository abstracts where live sessions are tracked (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(attemptID string) (*Session, bool)
	Delete(attemptID string)
}

// QuestionRepository loads the question set of a lesson (from cache/backing store).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, lessonID string) (domain.QuestionSet, error)
}

// CompletionPublisher announces finished attempts.
type CompletionPublisher interface {
	PublishCompletion(ctx context.Context, completion domain.Completion) error
}

// QuizConfig holds service-wide session settings.
type QuizConfig struct {
	TimeLimit            int
	HonorPendingOnExpiry bool
	// PersistTimeout bounds the ledger handoff at completion.
	PersistTimeout time.Duration
	// Ticker overrides the countdown ticker (tests).
	Ticker TickerFunc
}

// StartOptions overrides service defaults for one attempt.
type StartOptions struct {
	TimeLimit int
}

// QuizService contains the quiz session use cases.
type QuizService struct {
	sessions  SessionRepository
	questions QuestionRepository
	ledgers   LedgerStore
	publisher CompletionPublisher
	cfg       QuizConfig
}

func NewQuizService(store SessionRepository, questions QuestionRepository, ledgers LedgerStore, cfg QuizConfig) *QuizService {
	if cfg.TimeLimit == 0 {
		cfg.TimeLimit = 30
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	return &QuizService{sessions: store, questions: questions, ledgers: ledgers, cfg: cfg}
}

// WithPublisher sets the completion publisher.
func (s *QuizService) WithPublisher(p CompletionPublisher) *QuizService {
	s.publisher = p
	return s
}

// Start loads the lesson's questions and opens a new attempt at Active(0).
// Lessons without questions fail with ErrQuizNotFound or ErrNoQuiz and never start a session.
func (s *QuizService) Start(ctx context.Context, lessonID string, opts StartOptions) (*Session, error) {
	questions, err := s.questions.GetQuestionSet(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	questions.LessonID = lessonID

	limit := s.cfg.TimeLimit
	if opts.TimeLimit != 0 {
		limit = opts.TimeLimit
	}

	session, err := NewSession(uuid.NewString(), questions, SessionOptions{
		TimeLimit:            limit,
		HonorPendingOnExpiry: s.cfg.HonorPendingOnExpiry,
		Ticker:               s.cfg.Ticker,
		OnComplete:           s.complete,
	})
	if err != nil {
		return nil, err
	}
	s.sessions.Put(session)
	metrics.SessionsStarted.Inc()
	log.Printf("attempt %s started for lesson %s (%d questions, %ds each)", session.ID(), lessonID, questions.Len(), limit)
	return session, nil
}

// Select sets the pending answer for the attempt's current question.
func (s *QuizService) Select(ctx context.Context, attemptID, option string) (domain.SessionState, error) {
	session, err := s.session(attemptID)
	if err != nil {
		return domain.SessionState{}, err
	}
	if err := session.Select(ctx, option); err != nil {
		return session.State(), err
	}
	return session.State(), nil
}

// Submit locks the current answer without advancing.
func (s *QuizService) Submit(ctx context.Context, attemptID string) (domain.SessionState, error) {
	session, err := s.session(attemptID)
	if err != nil {
		return domain.SessionState{}, err
	}
	if err := session.Submit(ctx); err != nil {
		return session.State(), err
	}
	return session.State(), nil
}

// Advance finalizes the current question and moves on. On the last question the
// ledger is handed off before Advance returns.
func (s *QuizService) Advance(ctx context.Context, attemptID string) (domain.SessionState, error) {
	session, err := s.session(attemptID)
	if err != nil {
		return domain.SessionState{}, err
	}
	if err := session.Advance(ctx); err != nil {
		return session.State(), err
	}
	return session.State(), nil
}

// State returns the latest snapshot of a live attempt.
func (s *QuizService) State(_ context.Context, attemptID string) (domain.SessionState, error) {
	session, err := s.session(attemptID)
	if err != nil {
		return domain.SessionState{}, err
	}
	return session.State(), nil
}

// Subscribe returns a channel that receives state updates for an attempt.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, attemptID string) (<-chan domain.SessionState, func(), error) {
	session, err := s.session(attemptID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Abandon stops an unfinished attempt and its countdown. Unknown or finished attempts are ignored.
func (s *QuizService) Abandon(ctx context.Context, attemptID string) {
	session, ok := s.sessions.Get(attemptID)
	if !ok {
		return
	}
	if _, done := session.Completion(); !done {
		if err := session.Abandon(ctx); err != nil {
			log.Printf("abandon attempt %s: %v", attemptID, err)
		} else {
			metrics.SessionsAbandoned.Inc()
			log.Printf("attempt %s abandoned", attemptID)
		}
	}
	s.sessions.Delete(attemptID)
}

func (s *QuizService) session(attemptID string) (*Session, error) {
	session, ok := s.sessions.Get(attemptID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// complete runs on the session goroutine when the last question is finalized.
// A failed ledger save is returned so the final command reports it; the attempt is
// not announced since its results cannot be read.
func (s *QuizService) complete(c domain.Completion) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()
	defer s.sessions.Delete(c.AttemptID)

	if err := s.ledgers.Save(ctx, c); err != nil {
		log.Printf("persist ledger for attempt %s: %v", c.AttemptID, err)
		return domain.NewTransportError("persist ledger", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishCompletion(ctx, c); err != nil {
			log.Printf("publish completion for attempt %s: %v", c.AttemptID, err)
		}
	}
	metrics.SessionsCompleted.Inc()
	log.Printf("attempt %s complete: %d/%d", c.AttemptID, c.Score, len(c.Ledger))
	return nil
}
