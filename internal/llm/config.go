package llm

import (
	"fmt"
	"time"
)

// Config selects and configures the model behind explanations.
type Config struct {
	// Provider is one of "openai", "anthropic" or "mock".
	Provider string
	Model    string
	APIKey   string
	// BaseURL points the OpenAI client at a compatible gateway.
	BaseURL string
	Retry   RetryConfig
}

type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: time.Second,
		MaxWait:     8 * time.Second,
		Multiplier:  2.0,
	}
}

func (c Config) Validate() error {
	switch c.Provider {
	case "openai", "anthropic":
		if c.APIKey == "" {
			return fmt.Errorf("api key is required for the %s provider", c.Provider)
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}
