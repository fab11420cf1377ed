package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/metrics"
)

// SessionOptions configures a single quiz attempt.
type SessionOptions struct {
	TimeLimit            int
	HonorPendingOnExpiry bool
	// Ticker overrides the one-second ticker (tests).
	Ticker TickerFunc
	// Now overrides the clock (tests).
	Now func() time.Time
	// OnComplete runs on the session goroutine once the last question is finalized,
	// before the final command returns. Its error is returned by that command and kept in Err.
	OnComplete func(domain.Completion) error
}

type commandKind int

const (
	cmdSelect commandKind = iota
	cmdSubmit
	cmdAdvance
	cmdAbandon
)

type command struct {
	kind   commandKind
	option string
	reply  chan error
}

// Session runs one Machine on its own goroutine. User commands and timer events feed
// a single loop, so transitions never run concurrently.
type Session struct {
	id         string
	lessonID   string
	timeLimit  int
	createdAt  time.Time
	machine    *Machine
	onComplete func(domain.Completion) error
	questions  domain.QuestionSet

	commands    chan command
	timerEvents chan TimerEvent
	done        chan struct{}

	mu          sync.RWMutex
	state       domain.SessionState
	completion  *domain.Completion
	handoffErr  error
	abandoned   bool
	closed      bool
	subscribers map[chan domain.SessionState]struct{}
}

// NewSession validates the question set, enters Active(0) and starts the event loop.
func NewSession(attemptID string, questions domain.QuestionSet, opts SessionOptions) (*Session, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timerEvents := make(chan TimerEvent)
	timer := NewCountdownTimer(timerEvents, opts.Ticker)
	machine, err := NewMachine(questions, timer, MachineConfig{
		TimeLimit:            opts.TimeLimit,
		HonorPendingOnExpiry: opts.HonorPendingOnExpiry,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:          attemptID,
		lessonID:    questions.LessonID,
		timeLimit:   opts.TimeLimit,
		createdAt:   now(),
		machine:     machine,
		onComplete:  opts.OnComplete,
		questions:   questions,
		commands:    make(chan command),
		timerEvents: timerEvents,
		done:        make(chan struct{}),
		subscribers: make(map[chan domain.SessionState]struct{}),
	}
	s.state = s.snapshot()
	go s.loop()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) LessonID() string { return s.lessonID }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Questions is the question set this attempt runs on.
func (s *Session) Questions() domain.QuestionSet { return s.questions }

// Err reports a failed completion handoff, nil otherwise.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handoffErr
}

// TimeLimit is the per-question countdown in seconds.
func (s *Session) TimeLimit() int { return s.timeLimit }

// Done is closed once the session completes or is abandoned.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the latest published snapshot.
func (s *Session) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Completion returns the finished ledger once the session is Complete.
func (s *Session) Completion() (domain.Completion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.completion == nil {
		return domain.Completion{}, false
	}
	return *s.completion, true
}

func (s *Session) Select(ctx context.Context, option string) error {
	return s.dispatch(ctx, command{kind: cmdSelect, option: option})
}

func (s *Session) Submit(ctx context.Context) error {
	return s.dispatch(ctx, command{kind: cmdSubmit})
}

func (s *Session) Advance(ctx context.Context) error {
	return s.dispatch(ctx, command{kind: cmdAdvance})
}

// Abandon stops the countdown and ends the session without a completion.
func (s *Session) Abandon(ctx context.Context) error {
	err := s.dispatch(ctx, command{kind: cmdAbandon})
	if errors.Is(err, domain.ErrSessionClosed) {
		return nil
	}
	return err
}

// Subscribe returns a channel of state snapshots, starting with the current one.
// The channel is closed when the session ends or cancel is called.
func (s *Session) Subscribe() (<-chan domain.SessionState, func()) {
	ch := make(chan domain.SessionState, 8)

	s.mu.Lock()
	ch <- s.state
	if s.closed {
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) dispatch(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.commands <- cmd:
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		var reply chan error
		var err error

		select {
		case cmd := <-s.commands:
			reply = cmd.reply
			err = s.apply(cmd)
		case ev := <-s.timerEvents:
			s.applyTimer(ev)
		}

		s.publish()
		terminal := s.abandoned || s.machine.Phase() == domain.PhaseComplete
		if terminal {
			if handoffErr := s.finish(); err == nil {
				err = handoffErr
			}
		}
		if reply != nil {
			reply <- err
		}
		if terminal {
			return
		}
	}
}

func (s *Session) apply(cmd command) error {
	var err error
	switch cmd.kind {
	case cmdSelect:
		_, err = s.machine.Select(cmd.option)
	case cmdSubmit:
		_, err = s.machine.Submit()
	case cmdAdvance:
		_, err = s.machine.Advance()
	case cmdAbandon:
		s.machine.Stop()
		s.abandoned = true
	}
	return err
}

func (s *Session) applyTimer(ev TimerEvent) {
	if !ev.Expired {
		s.machine.Tick(ev.Generation, ev.Remaining)
		return
	}
	applied, err := s.machine.TimerExpired(ev.Generation)
	if err != nil {
		log.Printf("attempt %s: expiry failed: %v", s.id, err)
		return
	}
	if applied {
		metrics.QuestionsExpired.Inc()
	}
}

func (s *Session) snapshot() domain.SessionState {
	state := s.machine.State()
	state.AttemptID = s.id
	return state
}

func (s *Session) publish() {
	state := s.snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	for ch := range s.subscribers {
		select {
		case ch <- state:
		default:
			// Slow subscriber: drop the oldest snapshot so the latest always lands.
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
}

func (s *Session) finish() error {
	var handoffErr error
	if !s.abandoned {
		completion := domain.Completion{
			LessonID:  s.lessonID,
			AttemptID: s.id,
			Ledger:    s.machine.Ledger(),
			Score:     s.machine.Score(),
		}
		s.mu.Lock()
		s.completion = &completion
		s.mu.Unlock()
		if s.onComplete != nil {
			handoffErr = s.onComplete(completion)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.handoffErr = handoffErr
	s.closed = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	return handoffErr
}
