package app

import (
	"context"
	"fmt"

	"lesson-quiz-service/internal/domain"
)

// Explainer returns explanation text keyed by question prompt for one batch of prompts.
type Explainer interface {
	Explain(ctx context.Context, prompts []string) (map[string]string, error)
}

// Score checks a finished ledger against the authoritative question set.
// The ledger must line up with the questions one-to-one; it is never padded or truncated.
func Score(questions domain.QuestionSet, ledger []domain.AnswerRecord) (domain.Result, error) {
	if len(ledger) != questions.Len() {
		return domain.Result{}, fmt.Errorf("%w: %d answers for %d questions", domain.ErrInvalidLedger, len(ledger), questions.Len())
	}

	result := domain.Result{
		LessonID:       questions.LessonID,
		TotalQuestions: questions.Len(),
		PerQuestion:    make([]domain.ResultEntry, 0, questions.Len()),
	}
	for i, q := range questions.Questions {
		answer := ledger[i]
		correct := answer.Matches(q.CorrectAnswer)
		if correct {
			result.CorrectCount++
		}
		result.PerQuestion = append(result.PerQuestion, domain.ResultEntry{
			Question:      q.Prompt,
			UserAnswer:    answer,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     correct,
		})
	}
	return result, nil
}

// WrongPrompts returns the distinct prompts of incorrect entries in question order.
func WrongPrompts(result domain.Result) []string {
	seen := make(map[string]struct{})
	var prompts []string
	for _, entry := range result.PerQuestion {
		if entry.IsCorrect {
			continue
		}
		if _, ok := seen[entry.Question]; ok {
			continue
		}
		seen[entry.Question] = struct{}{}
		prompts = append(prompts, entry.Question)
	}
	return prompts
}

// WithExplanations returns a copy of result with explanations merged into incorrect entries.
func WithExplanations(result domain.Result, explanations map[string]string) domain.Result {
	out := result
	out.PerQuestion = make([]domain.ResultEntry, len(result.PerQuestion))
	for i, entry := range result.PerQuestion {
		if !entry.IsCorrect {
			if text, ok := explanations[entry.Question]; ok {
				entry.Explanation = text
			}
		}
		out.PerQuestion[i] = entry
	}
	return out
}

// Explain issues a single batched request for every incorrect entry. On failure the
// original result is returned alongside the error.
func Explain(ctx context.Context, explainer Explainer, result domain.Result) (domain.Result, error) {
	prompts := WrongPrompts(result)
	if explainer == nil || len(prompts) == 0 {
		return result, nil
	}
	explanations, err := explainer.Explain(ctx, prompts)
	if err != nil {
		return result, fmt.Errorf("explain %d questions: %w", len(prompts), err)
	}
	return WithExplanations(result, explanations), nil
}
