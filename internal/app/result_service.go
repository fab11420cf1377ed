package app

import (
	"context"
	"log"
	"time"

	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/metrics"
)

// LedgerStore carries finished ledgers from a session to the results activation.
// Take returns ErrLedgerNotFound when nothing is stored or it was already consumed.
type LedgerStore interface {
	Save(ctx context.Context, completion domain.Completion) error
	Take(ctx context.Context, lessonID, attemptID string) ([]domain.AnswerRecord, error)
}

// ResultRecorder archives scored results.
type ResultRecorder interface {
	RecordResult(ctx context.Context, result domain.Result) error
}

// ResultOptions holds the optional collaborators of a ResultService.
type ResultOptions struct {
	Explainer      Explainer
	Recorder       ResultRecorder
	ExplainTimeout time.Duration
}

// ResultService scores finished ledgers and fetches explanations for wrong answers.
type ResultService struct {
	questions QuestionRepository
	ledgers   LedgerStore
	opts      ResultOptions
}

func NewResultService(questions QuestionRepository, ledgers LedgerStore, opts ResultOptions) *ResultService {
	if opts.ExplainTimeout <= 0 {
		opts.ExplainTimeout = 30 * time.Second
	}
	return &ResultService{questions: questions, ledgers: ledgers, opts: opts}
}

// ForAttempt consumes the stored ledger of a finished attempt and scores it.
// The returned channel yields the result once more with explanations merged, then closes;
// the first result is complete and usable without waiting for it.
func (s *ResultService) ForAttempt(ctx context.Context, lessonID, attemptID string) (domain.Result, <-chan domain.Result, error) {
	// Load questions first so a transport failure does not burn the read-once ledger.
	questions, err := s.questions.GetQuestionSet(ctx, lessonID)
	if err != nil {
		return domain.Result{}, nil, err
	}
	ledger, err := s.ledgers.Take(ctx, lessonID, attemptID)
	if err != nil {
		return domain.Result{}, nil, err
	}
	metrics.ResultsComputed.WithLabelValues("attempt").Inc()
	return s.compute(ctx, questions, lessonID, attemptID, ledger)
}

// FromLedger scores a ledger supplied by the client.
func (s *ResultService) FromLedger(ctx context.Context, lessonID string, ledger []domain.AnswerRecord) (domain.Result, <-chan domain.Result, error) {
	questions, err := s.questions.GetQuestionSet(ctx, lessonID)
	if err != nil {
		return domain.Result{}, nil, err
	}
	metrics.ResultsComputed.WithLabelValues("ledger").Inc()
	return s.compute(ctx, questions, lessonID, "", ledger)
}

// Explanations asks the configured explainer for a batch of prompts.
func (s *ResultService) Explanations(ctx context.Context, prompts []string) (map[string]string, error) {
	if s.opts.Explainer == nil || len(prompts) == 0 {
		return map[string]string{}, nil
	}
	return s.opts.Explainer.Explain(ctx, prompts)
}

func (s *ResultService) compute(ctx context.Context, questions domain.QuestionSet, lessonID, attemptID string, ledger []domain.AnswerRecord) (domain.Result, <-chan domain.Result, error) {
	questions.LessonID = lessonID
	result, err := Score(questions, ledger)
	if err != nil {
		return domain.Result{}, nil, err
	}
	result.AttemptID = attemptID

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.RecordResult(ctx, result); err != nil {
			log.Printf("archive result for lesson %s: %v", lessonID, err)
		}
	}
	return result, s.explainAsync(result), nil
}

func (s *ResultService) explainAsync(result domain.Result) <-chan domain.Result {
	out := make(chan domain.Result, 1)
	if s.opts.Explainer == nil || len(WrongPrompts(result)) == 0 {
		out <- result
		close(out)
		return out
	}

	go func() {
		defer close(out)
		// Detached from the request: explanations outlive the call that scored the ledger.
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ExplainTimeout)
		defer cancel()

		explained, err := Explain(ctx, s.opts.Explainer, result)
		if err != nil {
			metrics.ExplanationFailures.Inc()
			log.Printf("explanations unavailable for lesson %s: %v", result.LessonID, err)
		}
		out <- explained
	}()
	return out
}
