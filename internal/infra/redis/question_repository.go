package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/infra/memory"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionRepository caches whole question sets in Redis and falls back to a loader on miss.
// Sets are stored as JSON: SET quiz:{lessonID}:questions {set} EX ttl
type QuestionRepository struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuestionSet(ctx context.Context, lessonID string) (domain.QuestionSet, error) {
	if set, ok := r.cached(ctx, lessonID); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(lessonID, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if set, ok := r.cached(ctx, lessonID); ok {
			return set, nil
		}

		set, err := r.loader.LoadQuestionSet(ctx, lessonID)
		if err != nil {
			return domain.QuestionSet{}, err
		}
		set.LessonID = lessonID
		if set.Len() == 0 {
			return set, nil
		}

		payload, err := json.Marshal(set)
		if err != nil {
			return domain.QuestionSet{}, err
		}
		// A failed cache write only costs a reload next time.
		if err := r.client.Set(ctx, r.key(lessonID), payload, r.ttlWithJitter()).Err(); err != nil {
			log.Printf("cache questions for lesson %s: %v", lessonID, err)
		}
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

// Invalidate drops the cached set so a regenerated quiz is picked up.
func (r *QuestionRepository) Invalidate(ctx context.Context, lessonID string) error {
	if err := r.client.Del(ctx, r.key(lessonID)).Err(); err != nil {
		return domain.NewTransportError("invalidate questions", err)
	}
	return nil
}

func (r *QuestionRepository) cached(ctx context.Context, lessonID string) (domain.QuestionSet, bool) {
	raw, err := r.client.Get(ctx, r.key(lessonID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("read cached questions for lesson %s: %v", lessonID, err)
		}
		return domain.QuestionSet{}, false
	}
	var set domain.QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil || set.Len() == 0 {
		return domain.QuestionSet{}, false
	}
	set.LessonID = lessonID
	return set, true
}

func (r *QuestionRepository) key(lessonID string) string {
	return "quiz:" + lessonID + ":questions"
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
