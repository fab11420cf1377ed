package redis

import (
	"context"
	"log"
	"sync"
	"time"

	"lesson-quiz-service/internal/app"

	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of SessionRepository.
// Sessions own a goroutine and a countdown, so they stay in the local map; Redis
// holds a liveness marker per attempt (quiz:attempt:{id} -> lessonID) that other
// instances and operators can inspect.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	// best-effort liveness marker
	if err := s.client.Set(context.Background(), s.key(session.ID()), session.LessonID(), s.ttl).Err(); err != nil {
		log.Printf("mark attempt %s live: %v", session.ID(), err)
	}
}

func (s *SessionStore) Get(attemptID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[attemptID]
	return session, ok
}

func (s *SessionStore) Delete(attemptID string) {
	s.mu.Lock()
	_, ok := s.sessions[attemptID]
	delete(s.sessions, attemptID)
	s.mu.Unlock()
	if ok {
		_ = s.client.Del(context.Background(), s.key(attemptID)).Err()
	}
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) key(attemptID string) string {
	return "quiz:attempt:" + attemptID
}
