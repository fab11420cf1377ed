package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Question models an MCQ question whose correct answer is one of its options.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// Validate checks that options are unique and the correct answer is one of them.
func (q Question) Validate() error {
	if len(q.Options) == 0 {
		return fmt.Errorf("%w: question %q has no options", ErrInvalidQuestion, q.ID)
	}
	seen := make(map[string]struct{}, len(q.Options))
	found := false
	for _, opt := range q.Options {
		if _, dup := seen[opt]; dup {
			return fmt.Errorf("%w: question %q repeats option %q", ErrInvalidQuestion, q.ID, opt)
		}
		seen[opt] = struct{}{}
		if opt == q.CorrectAnswer {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: question %q correct answer is not an option", ErrInvalidQuestion, q.ID)
	}
	return nil
}

// HasOption reports whether text is one of the question's options.
func (q Question) HasOption(text string) bool {
	for _, opt := range q.Options {
		if opt == text {
			return true
		}
	}
	return false
}

// QuestionSet is the ordered, immutable quiz for one lesson.
type QuestionSet struct {
	LessonID  string     `json:"lessonId"`
	Questions []Question `json:"mcqs"`
}

func (s QuestionSet) Len() int { return len(s.Questions) }

// Validate reports ErrNoQuiz for an empty set and ErrInvalidQuestion for malformed content.
func (s QuestionSet) Validate() error {
	if len(s.Questions) == 0 {
		return ErrNoQuiz
	}
	for _, q := range s.Questions {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AnswerRecord is either Unanswered or the selected option text.
// It serializes as the option string, or null when unanswered.
type AnswerRecord struct {
	option   string
	answered bool
}

// Unanswered is the record for a question that was never answered.
func Unanswered() AnswerRecord { return AnswerRecord{} }

// Selected is the record for a chosen option.
func Selected(option string) AnswerRecord { return AnswerRecord{option: option, answered: true} }

// Option returns the selected text and whether the question was answered.
func (a AnswerRecord) Option() (string, bool) { return a.option, a.answered }

func (a AnswerRecord) Answered() bool { return a.answered }

// Matches reports whether the record equals correct. Unanswered never matches.
func (a AnswerRecord) Matches(correct string) bool {
	return a.answered && a.option == correct
}

func (a AnswerRecord) String() string {
	if !a.answered {
		return "<unanswered>"
	}
	return a.option
}

func (a AnswerRecord) MarshalJSON() ([]byte, error) {
	if !a.answered {
		return []byte("null"), nil
	}
	return json.Marshal(a.option)
}

func (a *AnswerRecord) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = Unanswered()
		return nil
	}
	var option string
	if err := json.Unmarshal(data, &option); err != nil {
		return err
	}
	*a = Selected(option)
	return nil
}

// Phase is the state of a quiz session machine.
type Phase int

const (
	PhaseActive   Phase = iota // accepting selections for the current question
	PhaseLocked                // current answer finalized, waiting to advance
	PhaseComplete              // every question finalized
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseLocked:
		return "locked"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// SessionState is a snapshot of a running quiz session.
type SessionState struct {
	AttemptID        string  `json:"attemptId"`
	CurrentIndex     int     `json:"currentIndex"`
	TotalQuestions   int     `json:"totalQuestions"`
	RemainingSeconds int     `json:"remainingSeconds"`
	Score            int     `json:"score"`
	Phase            Phase   `json:"phase"`
	Pending          *string `json:"pending,omitempty"`
}

// Completion is handed across the persistence boundary when a session finishes.
type Completion struct {
	LessonID  string         `json:"lessonId"`
	AttemptID string         `json:"attemptId"`
	Ledger    []AnswerRecord `json:"userAnswers"`
	Score     int            `json:"score"`
}

// ResultEntry is the per-question review line of a Result.
type ResultEntry struct {
	Question      string       `json:"question"`
	UserAnswer    AnswerRecord `json:"userAnswer"`
	CorrectAnswer string       `json:"correctAnswer"`
	IsCorrect     bool         `json:"isCorrect"`
	Explanation   string       `json:"explanation,omitempty"`
}

// Result is the scored outcome of a finished ledger. Values are never mutated after construction;
// adding explanations produces a new Result.
type Result struct {
	LessonID       string        `json:"lessonId,omitempty"`
	AttemptID      string        `json:"attemptId,omitempty"`
	TotalQuestions int           `json:"totalQuestions"`
	CorrectCount   int           `json:"correctAnswers"`
	PerQuestion    []ResultEntry `json:"answers"`
}
