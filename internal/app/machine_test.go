package app

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"lesson-quiz-service/internal/domain"
)

type fakeCountdown struct {
	generation uint64
	starts     []int
	stops      int
	running    bool
}

func (f *fakeCountdown) Start(limit int) uint64 {
	f.generation++
	f.starts = append(f.starts, limit)
	f.running = true
	return f.generation
}

func (f *fakeCountdown) Stop() {
	f.stops++
	f.running = false
}

func arithmeticSet(n int) domain.QuestionSet {
	set := domain.QuestionSet{LessonID: "lesson-1"}
	for i := 0; i < n; i++ {
		set.Questions = append(set.Questions, domain.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Prompt:        fmt.Sprintf("%d+%d?", i, i),
			Options:       []string{fmt.Sprint(2*i - 1), fmt.Sprint(2 * i), fmt.Sprint(2*i + 1)},
			CorrectAnswer: fmt.Sprint(2 * i),
		})
	}
	return set
}

func twoPlusTwo() domain.QuestionSet {
	return domain.QuestionSet{
		LessonID: "lesson-1",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "2+2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
		},
	}
}

func newTestMachine(t *testing.T, set domain.QuestionSet, cfg MachineConfig) (*Machine, *fakeCountdown) {
	t.Helper()
	if cfg.TimeLimit == 0 {
		cfg.TimeLimit = 30
	}
	timer := &fakeCountdown{}
	m, err := NewMachine(set, timer, cfg)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m, timer
}

func TestMachineRejectsEmptyQuiz(t *testing.T) {
	timer := &fakeCountdown{}
	if _, err := NewMachine(domain.QuestionSet{LessonID: "l"}, timer, MachineConfig{TimeLimit: 30}); !errors.Is(err, domain.ErrNoQuiz) {
		t.Fatalf("expected ErrNoQuiz, got %v", err)
	}
	if len(timer.starts) != 0 {
		t.Fatalf("countdown must not start without questions")
	}
	if _, err := NewMachine(twoPlusTwo(), timer, MachineConfig{}); !errors.Is(err, domain.ErrInvalidTimeLimit) {
		t.Fatalf("expected ErrInvalidTimeLimit, got %v", err)
	}
}

func TestMachineStartsActiveWithCountdown(t *testing.T) {
	m, timer := newTestMachine(t, arithmeticSet(2), MachineConfig{TimeLimit: 60})
	state := m.State()
	if state.Phase != domain.PhaseActive || state.CurrentIndex != 0 || state.RemainingSeconds != 60 || state.Score != 0 {
		t.Fatalf("unexpected initial state %+v", state)
	}
	if !timer.running || len(timer.starts) != 1 || timer.starts[0] != 60 {
		t.Fatalf("expected a 60s countdown, got %+v", timer)
	}
}

func TestMachineAdvanceReachesComplete(t *testing.T) {
	for n := 1; n <= 5; n++ {
		m, timer := newTestMachine(t, arithmeticSet(n), MachineConfig{})
		for i := 0; i < n; i++ {
			if m.Phase() == domain.PhaseComplete {
				t.Fatalf("n=%d: completed early at %d", n, i)
			}
			if applied, err := m.Advance(); err != nil || !applied {
				t.Fatalf("n=%d: advance %d: applied=%v err=%v", n, i, applied, err)
			}
		}
		if m.Phase() != domain.PhaseComplete {
			t.Fatalf("n=%d: expected complete, got %s", n, m.Phase())
		}
		if got := len(m.Ledger()); got != n {
			t.Fatalf("n=%d: ledger has %d records", n, got)
		}
		// No Active(N): the last advance must not start another countdown.
		if len(timer.starts) != n || timer.running {
			t.Fatalf("n=%d: expected %d countdowns and none running, got %+v", n, n, timer)
		}
	}
}

func TestMachineLastSelectionWins(t *testing.T) {
	m, _ := newTestMachine(t, twoPlusTwo(), MachineConfig{})
	if _, err := m.Select("3"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := m.Select("4"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := m.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	ledger := m.Ledger()
	if opt, _ := ledger[0].Option(); opt != "4" {
		t.Fatalf("expected last selection 4, got %v", ledger[0])
	}
	if m.Score() != 1 {
		t.Fatalf("expected score 1, got %d", m.Score())
	}
}

func TestMachineExpiryWithoutSelectionIsUnanswered(t *testing.T) {
	m, timer := newTestMachine(t, arithmeticSet(2), MachineConfig{})
	applied, err := m.TimerExpired(timer.generation)
	if err != nil || !applied {
		t.Fatalf("expiry: applied=%v err=%v", applied, err)
	}
	ledger := m.Ledger()
	if ledger[0].Answered() {
		t.Fatalf("expected unanswered, got %v", ledger[0])
	}
	if m.Score() != 0 {
		t.Fatalf("unanswered must not score, got %d", m.Score())
	}
	state := m.State()
	if state.Phase != domain.PhaseActive || state.CurrentIndex != 1 || state.RemainingSeconds != 30 {
		t.Fatalf("expected Active(1) with a fresh countdown, got %+v", state)
	}
}

func TestMachineExpiryDiscardsPendingByDefault(t *testing.T) {
	m, timer := newTestMachine(t, twoPlusTwo(), MachineConfig{})
	_, _ = m.Select("4")
	_, _ = m.TimerExpired(timer.generation)
	if m.Ledger()[0].Answered() || m.Score() != 0 {
		t.Fatalf("expected pending selection discarded on expiry, ledger=%v score=%d", m.Ledger(), m.Score())
	}
	if m.Phase() != domain.PhaseComplete {
		t.Fatalf("expected complete, got %s", m.Phase())
	}
}

func TestMachineExpiryCanHonorPending(t *testing.T) {
	m, timer := newTestMachine(t, twoPlusTwo(), MachineConfig{HonorPendingOnExpiry: true})
	_, _ = m.Select("4")
	_, _ = m.TimerExpired(timer.generation)
	if opt, _ := m.Ledger()[0].Option(); opt != "4" || m.Score() != 1 {
		t.Fatalf("expected pending selection kept, ledger=%v score=%d", m.Ledger(), m.Score())
	}
}

func TestMachineSelectAfterLockIsIgnored(t *testing.T) {
	m, _ := newTestMachine(t, arithmeticSet(2), MachineConfig{})
	_, _ = m.Select("-1")
	if applied, err := m.Submit(); err != nil || !applied {
		t.Fatalf("submit: applied=%v err=%v", applied, err)
	}
	if m.Phase() != domain.PhaseLocked {
		t.Fatalf("expected locked, got %s", m.Phase())
	}

	applied, err := m.Select("0")
	if err != nil || applied {
		t.Fatalf("select after lock: applied=%v err=%v", applied, err)
	}
	if opt, _ := m.Ledger()[0].Option(); opt != "-1" {
		t.Fatalf("late selection changed the ledger: %v", m.Ledger()[0])
	}

	// Advancing from Locked must not score the question twice.
	if _, err := m.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if m.Score() != 0 || m.State().CurrentIndex != 1 {
		t.Fatalf("unexpected state after advance %+v", m.State())
	}
}

func TestMachineSubmitIsIdempotent(t *testing.T) {
	m, _ := newTestMachine(t, arithmeticSet(2), MachineConfig{})
	_, _ = m.Select("0")
	_, _ = m.Submit()
	if applied, _ := m.Submit(); applied {
		t.Fatalf("second submit should be ignored")
	}
	if m.Score() != 1 {
		t.Fatalf("expected single increment, got %d", m.Score())
	}
}

func TestMachineIgnoresStaleExpiry(t *testing.T) {
	m, timer := newTestMachine(t, arithmeticSet(3), MachineConfig{})
	stale := timer.generation
	_, _ = m.Select("0")
	_, _ = m.Advance()

	applied, err := m.TimerExpired(stale)
	if err != nil || applied {
		t.Fatalf("stale expiry: applied=%v err=%v", applied, err)
	}
	if m.State().CurrentIndex != 1 || m.Ledger()[1].Answered() {
		t.Fatalf("stale expiry changed state %+v", m.State())
	}

	// Expiry while locked is ignored too.
	_, _ = m.Submit()
	if applied, _ := m.TimerExpired(timer.generation); applied {
		t.Fatalf("expiry while locked should be ignored")
	}
	if m.Phase() != domain.PhaseLocked {
		t.Fatalf("expected still locked, got %s", m.Phase())
	}
}

func TestMachineIgnoresEventsAfterComplete(t *testing.T) {
	m, timer := newTestMachine(t, twoPlusTwo(), MachineConfig{})
	_, _ = m.Advance()
	if applied, _ := m.Advance(); applied {
		t.Fatalf("advance after complete should be ignored")
	}
	if applied, _ := m.TimerExpired(timer.generation); applied {
		t.Fatalf("expiry after complete should be ignored")
	}
	if applied, _ := m.Select("4"); applied {
		t.Fatalf("select after complete should be ignored")
	}
	if m.Tick(timer.generation, 3) {
		t.Fatalf("tick after complete should be ignored")
	}
}

func TestMachineRejectsUnknownOption(t *testing.T) {
	m, _ := newTestMachine(t, twoPlusTwo(), MachineConfig{})
	if _, err := m.Select("42"); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound, got %v", err)
	}
	if m.State().Pending != nil {
		t.Fatalf("rejected option must not become pending")
	}
}

func TestMachineTickTracksCurrentCountdown(t *testing.T) {
	m, timer := newTestMachine(t, arithmeticSet(2), MachineConfig{})
	if !m.Tick(timer.generation, 29) || m.State().RemainingSeconds != 29 {
		t.Fatalf("expected remaining 29, got %+v", m.State())
	}
	if m.Tick(timer.generation+1, 5) {
		t.Fatalf("tick from unknown generation should be ignored")
	}
}

// The incrementally accumulated score must equal the aggregator's count on the same ledger.
func TestMachineScoreMatchesAggregator(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for run := 0; run < 200; run++ {
		set := arithmeticSet(1 + rnd.Intn(8))
		m, timer := newTestMachine(t, set, MachineConfig{HonorPendingOnExpiry: run%2 == 0})

		for m.Phase() != domain.PhaseComplete {
			q := set.Questions[m.State().CurrentIndex]
			for k := rnd.Intn(3); k > 0; k-- {
				_, _ = m.Select(q.Options[rnd.Intn(len(q.Options))])
			}
			switch rnd.Intn(4) {
			case 0:
				_, _ = m.TimerExpired(timer.generation)
			case 1:
				_, _ = m.Submit()
				_, _ = m.Select(q.Options[0])
				_, _ = m.TimerExpired(timer.generation)
				_, _ = m.Advance()
			default:
				_, _ = m.Advance()
			}
		}

		result, err := Score(set, m.Ledger())
		if err != nil {
			t.Fatalf("run %d: score: %v", run, err)
		}
		if result.CorrectCount != m.Score() {
			t.Fatalf("run %d: aggregator counted %d, machine scored %d", run, result.CorrectCount, m.Score())
		}
	}
}
