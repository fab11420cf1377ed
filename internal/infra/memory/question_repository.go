package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"lesson-quiz-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a lesson's question set from a backing store (Postgres, lesson API).
type QuestionLoader interface {
	LoadQuestionSet(ctx context.Context, lessonID string) (domain.QuestionSet, error)
}

// QuestionRepository caches question sets with TTL to avoid repeated loader hits.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedSet
}

type cachedSet struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

func (r *QuestionRepository) GetQuestionSet(ctx context.Context, lessonID string) (domain.QuestionSet, error) {
	if set, ok := r.cached(lessonID); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(lessonID, func() (interface{}, error) {
		if set, ok := r.cached(lessonID); ok {
			return set, nil
		}

		set, err := r.loader.LoadQuestionSet(ctx, lessonID)
		if err != nil {
			return domain.QuestionSet{}, err
		}
		set.LessonID = lessonID
		// Empty sets are not cached so a freshly generated quiz shows up immediately.
		if set.Len() == 0 {
			return set, nil
		}

		r.mu.Lock()
		r.cache[lessonID] = cachedSet{
			set:       set,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (r *QuestionRepository) cached(lessonID string) (domain.QuestionSet, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[lessonID]; ok && entry.expiresAt.After(now) {
		return entry.set, true
	}
	return domain.QuestionSet{}, false
}

func (r *QuestionRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	sets map[string]domain.QuestionSet
}

func NewStaticQuestionLoader(sets map[string]domain.QuestionSet) *StaticQuestionLoader {
	return &StaticQuestionLoader{sets: sets}
}

func (l *StaticQuestionLoader) LoadQuestionSet(_ context.Context, lessonID string) (domain.QuestionSet, error) {
	if set, ok := l.sets[lessonID]; ok {
		return set, nil
	}
	return domain.QuestionSet{}, domain.ErrQuizNotFound
}
