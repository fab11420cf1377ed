package app

import (
	"fmt"

	"lesson-quiz-service/internal/domain"
)

// Countdown is the timer contract the machine drives.
type Countdown interface {
	Start(limit int) uint64
	Stop()
}

// MachineConfig holds per-session machine settings.
type MachineConfig struct {
	// TimeLimit is the per-question countdown in seconds.
	TimeLimit int
	// HonorPendingOnExpiry finalizes the pending selection on expiry instead of Unanswered.
	HonorPendingOnExpiry bool
}

// Machine is the quiz session state machine: Active(i) -> Locked(i) -> Active(i+1) ... -> Complete.
// It is not safe for concurrent use; Session serializes every call onto one goroutine.
type Machine struct {
	questions domain.QuestionSet
	ledger    *AnswerLedger
	timer     Countdown
	cfg       MachineConfig

	index      int
	remaining  int
	score      int
	phase      domain.Phase
	pending    *string
	generation uint64
}

// NewMachine enters Active(0) and starts the countdown. An empty question set never
// produces a machine.
func NewMachine(questions domain.QuestionSet, timer Countdown, cfg MachineConfig) (*Machine, error) {
	if err := questions.Validate(); err != nil {
		return nil, err
	}
	if cfg.TimeLimit < 1 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidTimeLimit, cfg.TimeLimit)
	}
	m := &Machine{
		questions: questions,
		ledger:    NewAnswerLedger(questions.Len()),
		timer:     timer,
		cfg:       cfg,
		phase:     domain.PhaseActive,
	}
	m.startCountdown()
	return m, nil
}

// Select sets the pending answer for the current question. Later selections overwrite
// earlier ones. Selections outside Active are ignored and report false.
func (m *Machine) Select(option string) (bool, error) {
	if m.phase != domain.PhaseActive {
		return false, nil
	}
	if !m.current().HasOption(option) {
		return false, fmt.Errorf("%w: %q", domain.ErrOptionNotFound, option)
	}
	m.pending = &option
	return true, nil
}

// Submit finalizes the pending selection and enters Locked without advancing.
func (m *Machine) Submit() (bool, error) {
	if m.phase != domain.PhaseActive {
		return false, nil
	}
	return true, m.finalize(m.pendingRecord())
}

// Advance finalizes the current question if still Active, then moves to the next
// question or to Complete. It reports false when the machine is already Complete.
func (m *Machine) Advance() (bool, error) {
	switch m.phase {
	case domain.PhaseComplete:
		return false, nil
	case domain.PhaseActive:
		if err := m.finalize(m.pendingRecord()); err != nil {
			return false, err
		}
	}
	m.proceed()
	return true, nil
}

// TimerExpired handles the countdown reaching zero. Events from a stale countdown, or
// arriving after the question was locked, are ignored.
func (m *Machine) TimerExpired(generation uint64) (bool, error) {
	if m.phase != domain.PhaseActive || generation != m.generation {
		return false, nil
	}
	record := domain.Unanswered()
	if m.cfg.HonorPendingOnExpiry {
		record = m.pendingRecord()
	}
	if err := m.finalize(record); err != nil {
		return false, err
	}
	m.proceed()
	return true, nil
}

// Tick records the remaining seconds reported by the current countdown.
func (m *Machine) Tick(generation uint64, remaining int) bool {
	if m.phase != domain.PhaseActive || generation != m.generation {
		return false
	}
	m.remaining = remaining
	return true
}

// Stop halts the countdown; used when a session is abandoned.
func (m *Machine) Stop() {
	m.timer.Stop()
}

func (m *Machine) Phase() domain.Phase { return m.phase }

func (m *Machine) Score() int { return m.score }

// Ledger returns a copy of the answers finalized so far.
func (m *Machine) Ledger() []domain.AnswerRecord { return m.ledger.Serializable() }

// State returns a snapshot of the machine.
func (m *Machine) State() domain.SessionState {
	state := domain.SessionState{
		CurrentIndex:     m.index,
		TotalQuestions:   m.questions.Len(),
		RemainingSeconds: m.remaining,
		Score:            m.score,
		Phase:            m.phase,
	}
	if m.pending != nil {
		pending := *m.pending
		state.Pending = &pending
	}
	return state
}

func (m *Machine) current() domain.Question {
	return m.questions.Questions[m.index]
}

func (m *Machine) pendingRecord() domain.AnswerRecord {
	if m.pending == nil {
		return domain.Unanswered()
	}
	return domain.Selected(*m.pending)
}

// finalize commits record for the current question, scores it, and locks.
func (m *Machine) finalize(record domain.AnswerRecord) error {
	if err := m.ledger.Record(m.index, record); err != nil {
		return err
	}
	if record.Matches(m.current().CorrectAnswer) {
		m.score++
	}
	m.pending = nil
	m.phase = domain.PhaseLocked
	m.timer.Stop()
	return nil
}

func (m *Machine) proceed() {
	if m.index+1 < m.questions.Len() {
		m.index++
		m.phase = domain.PhaseActive
		m.startCountdown()
		return
	}
	m.phase = domain.PhaseComplete
	m.remaining = 0
	m.timer.Stop()
}

func (m *Machine) startCountdown() {
	m.remaining = m.cfg.TimeLimit
	m.generation = m.timer.Start(m.cfg.TimeLimit)
}
