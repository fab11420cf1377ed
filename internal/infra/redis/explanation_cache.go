package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"lesson-quiz-service/internal/app"
	"lesson-quiz-service/internal/metrics"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ExplanationCache remembers explanations per question prompt so repeated wrong
// answers on the same quiz do not hit the model again.
// Stored as: SET quiz:explain:{sha256(prompt)} {text} EX ttl
type ExplanationCache struct {
	client *redis.Client
	inner  app.Explainer
	ttl    time.Duration
	sf     singleflight.Group
}

func NewExplanationCache(client *redis.Client, inner app.Explainer, ttl time.Duration) *ExplanationCache {
	return &ExplanationCache{client: client, inner: inner, ttl: ttl}
}

func (c *ExplanationCache) Explain(ctx context.Context, prompts []string) (map[string]string, error) {
	out := make(map[string]string, len(prompts))
	if len(prompts) == 0 {
		return out, nil
	}

	keys := make([]string, len(prompts))
	for i, p := range prompts {
		keys[i] = c.key(p)
	}
	var missing []string
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		log.Printf("read cached explanations: %v", err)
		missing = prompts
	} else {
		for i, v := range values {
			if text, ok := v.(string); ok && text != "" {
				out[prompts[i]] = text
				metrics.ExplanationCacheHits.Inc()
				continue
			}
			missing = append(missing, prompts[i])
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	// Identical batches in flight (e.g. a retried results request) share one model call.
	result, err, _ := c.sf.Do(strings.Join(missing, "\x00"), func() (interface{}, error) {
		fresh, err := c.inner.Explain(ctx, missing)
		if err != nil {
			return nil, err
		}
		pipe := c.client.Pipeline()
		for prompt, text := range fresh {
			pipe.Set(ctx, c.key(prompt), text, c.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("cache %d explanations: %v", len(fresh), err)
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	for prompt, text := range result.(map[string]string) {
		out[prompt] = text
	}
	return out, nil
}

func (c *ExplanationCache) key(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "quiz:explain:" + hex.EncodeToString(sum[:])
}
