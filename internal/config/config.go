package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz         QuizConfig         `yaml:"quiz"`
	Lessons      LessonsConfig      `yaml:"lessons"`
	Explanations ExplanationsConfig `yaml:"explanations"`
	AMQP         struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
}

type QuizConfig struct {
	TTL                  string `yaml:"ttl"`
	TimeLimit            int    `yaml:"time_limit"`
	HonorPendingOnExpiry bool   `yaml:"honor_pending_on_expiry"`
	LedgerTTL            string `yaml:"ledger_ttl"`
}

// LessonsConfig points at the upstream lesson API that owns generated quizzes.
type LessonsConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

type ExplanationsConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"`
	InlineWait string `yaml:"inline_wait"`
	CacheTTL   string `yaml:"cache_ttl"`
}

const (
	ProviderNone      = "none"
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderHTTP      = "http"
)

const (
	DefaultTimeLimit    = 30
	MaxTimeLimit        = 600
	DefaultAMQPExchange = "quiz.events"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Redis.TTL = "30m"
	cfg.Quiz = QuizConfig{TTL: "10m", TimeLimit: DefaultTimeLimit, LedgerTTL: "1h"}
	cfg.Lessons.Timeout = "10s"
	cfg.Explanations = ExplanationsConfig{Provider: ProviderNone, Timeout: "30s", CacheTTL: "24h"}
	cfg.AMQP.Exchange = DefaultAMQPExchange
	return cfg
}

// Load reads a .env file if present, then YAML config from path over the defaults,
// then applies environment overrides. A missing config file is not an error.
func Load(path string) (Config, error) {
	// .env is optional; production sets the environment directly.
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("config %s not found, using defaults", path)
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Redis.Addr = envOr("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Postgres.URL = envOr("POSTGRES_URL", cfg.Postgres.URL)
	cfg.AMQP.URL = envOr("AMQP_URL", cfg.AMQP.URL)
	cfg.Lessons.Token = envOr("LESSON_API_TOKEN", cfg.Lessons.Token)
	cfg.Quiz.TimeLimit = envIntOr("QUIZ_TIME_LIMIT", cfg.Quiz.TimeLimit)

	if cfg.Explanations.APIKey == "" {
		switch cfg.Explanations.Provider {
		case ProviderOpenAI:
			cfg.Explanations.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			cfg.Explanations.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	if c.Quiz.TimeLimit < 1 || c.Quiz.TimeLimit > MaxTimeLimit {
		return fmt.Errorf("quiz.time_limit must be between 1 and %d, got %d", MaxTimeLimit, c.Quiz.TimeLimit)
	}
	switch c.Explanations.Provider {
	case "", ProviderNone, ProviderMock:
	case ProviderOpenAI, ProviderAnthropic:
		if c.Explanations.APIKey == "" {
			return fmt.Errorf("explanations.api_key required for provider %q", c.Explanations.Provider)
		}
	case ProviderHTTP:
		if c.Explanations.BaseURL == "" && c.Lessons.BaseURL == "" {
			return errors.New("explanations.base_url or lessons.base_url required for provider \"http\"")
		}
	default:
		return fmt.Errorf("unknown explanations.provider %q", c.Explanations.Provider)
	}
	for name, raw := range map[string]string{
		"redis.ttl":                c.Redis.TTL,
		"quiz.ttl":                 c.Quiz.TTL,
		"quiz.ledger_ttl":          c.Quiz.LedgerTTL,
		"lessons.timeout":          c.Lessons.Timeout,
		"explanations.timeout":     c.Explanations.Timeout,
		"explanations.inline_wait": c.Explanations.InlineWait,
		"explanations.cache_ttl":   c.Explanations.CacheTTL,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Printf("invalid value for %s=%q, using %d", key, v, def)
	}
	return def
}
