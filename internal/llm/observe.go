package llm

import (
	"context"
	"log"
	"time"

	"lesson-quiz-service/internal/metrics"
)

// ObservedProvider logs and counts every request that reaches the inner provider.
type ObservedProvider struct {
	inner Provider
}

func WithObservation(p Provider) Provider {
	return &ObservedProvider{inner: p}
}

func (o *ObservedProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := o.inner.Generate(ctx, req)
	elapsed := time.Since(start)
	metrics.LLMLatency.Observe(elapsed.Seconds())

	if err != nil {
		metrics.LLMRequests.WithLabelValues(o.inner.ModelID(), "error").Inc()
		log.Printf("llm %s request failed after %s: %v", o.inner.ModelID(), elapsed.Round(time.Millisecond), err)
		return nil, err
	}
	metrics.LLMRequests.WithLabelValues(o.inner.ModelID(), "ok").Inc()
	log.Printf("llm %s answered in %s (%d in / %d out tokens)", resp.Model, elapsed.Round(time.Millisecond), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp, nil
}

func (o *ObservedProvider) ModelID() string { return o.inner.ModelID() }
