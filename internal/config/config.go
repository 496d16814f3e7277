// Package config loads process configuration from .env files and the
// environment. It is read once at startup.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DomainTravel = "travel"
	DomainMovies = "movies"

	BackendInProcess = "inprocess"
	BackendDynamoDB  = "dynamodb"
	BackendRedis     = "redis"

	defaultModel = "gpt-3.5-turbo-0125"

	openAITokenParam  = "/open-ai-token"
	contentTokenParam = "/content-api-token"
)

type Config struct {
	Domain string

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	TaggerModel     string
	RouterModel     string
	SummarizerModel string

	ContentAPIBaseURL       string
	ContentAPIToken         string
	ContentAPIRatePerMinute int
	ContentAPIBurst         int
	ImageBaseURL            string

	LLMTimeout   time.Duration
	ToolTimeout  time.Duration
	StoreTimeout time.Duration

	MemoryBackend string
	MemoryWindow  int
	MemoryCommit  string
	MemoryTTL     time.Duration
	StateTable    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MaxToolHops       int
	MaxQuestionLength int

	ParamPrefix string
	LogLevel    string
}

// Load reads the given .env files (missing files are skipped, existing
// environment variables win) and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Domain: strings.ToLower(strings.TrimSpace(v.GetString("ASSISTANT_DOMAIN"))),

		OpenAIAPIKey:    strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		OpenAIBaseURL:   strings.TrimSpace(v.GetString("OPENAI_BASE_URL")),
		TaggerModel:     v.GetString("TAGGER_MODEL"),
		RouterModel:     v.GetString("ROUTER_MODEL"),
		SummarizerModel: v.GetString("SUMMARIZER_MODEL"),

		ContentAPIBaseURL:       strings.TrimSpace(v.GetString("CONTENT_API_BASE_URL")),
		ContentAPIToken:         strings.TrimSpace(v.GetString("CONTENT_API_TOKEN")),
		ContentAPIRatePerMinute: v.GetInt("CONTENT_API_RATE_PER_MINUTE"),
		ContentAPIBurst:         v.GetInt("CONTENT_API_BURST"),
		ImageBaseURL:            v.GetString("IMAGE_BASE_URL"),

		LLMTimeout:   v.GetDuration("LLM_TIMEOUT"),
		ToolTimeout:  v.GetDuration("TOOL_TIMEOUT"),
		StoreTimeout: v.GetDuration("STORE_TIMEOUT"),

		MemoryBackend: strings.ToLower(strings.TrimSpace(v.GetString("MEMORY_BACKEND"))),
		MemoryWindow:  v.GetInt("MEMORY_WINDOW"),
		MemoryCommit:  strings.ToLower(strings.TrimSpace(v.GetString("MEMORY_COMMIT"))),
		MemoryTTL:     v.GetDuration("MEMORY_TTL"),
		StateTable:    v.GetString("STATE_TABLE"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		MaxToolHops:       v.GetInt("MAX_TOOL_HOPS"),
		MaxQuestionLength: v.GetInt("MAX_QUESTION_LENGTH"),

		ParamPrefix: strings.TrimRight(strings.TrimSpace(v.GetString("PARAM_PREFIX")), "/"),
		LogLevel:    v.GetString("LOG_LEVEL"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TAGGER_MODEL", defaultModel)
	v.SetDefault("ROUTER_MODEL", defaultModel)
	v.SetDefault("SUMMARIZER_MODEL", defaultModel)
	v.SetDefault("CONTENT_API_RATE_PER_MINUTE", 120)
	v.SetDefault("CONTENT_API_BURST", 5)
	v.SetDefault("LLM_TIMEOUT", 30*time.Second)
	v.SetDefault("TOOL_TIMEOUT", 10*time.Second)
	v.SetDefault("STORE_TIMEOUT", 5*time.Second)
	v.SetDefault("MEMORY_BACKEND", BackendInProcess)
	v.SetDefault("MEMORY_WINDOW", 0)
	v.SetDefault("MEMORY_COMMIT", "on_success")
	v.SetDefault("MEMORY_TTL", 30*24*time.Hour)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MAX_TOOL_HOPS", 1)
	v.SetDefault("MAX_QUESTION_LENGTH", 500)
	v.SetDefault("LOG_LEVEL", "info")
}

// Validate checks everything except credentials, which may still arrive from
// the parameter store.
func (c *Config) Validate() error {
	var errs []error
	switch c.Domain {
	case DomainTravel, DomainMovies:
	case "":
		errs = append(errs, errors.New("ASSISTANT_DOMAIN is required"))
	default:
		errs = append(errs, fmt.Errorf("ASSISTANT_DOMAIN %q is not one of travel, movies", c.Domain))
	}
	if c.ContentAPIBaseURL == "" {
		errs = append(errs, errors.New("CONTENT_API_BASE_URL is required"))
	}
	switch c.MemoryBackend {
	case BackendInProcess:
	case BackendDynamoDB:
		if strings.TrimSpace(c.StateTable) == "" {
			errs = append(errs, errors.New("STATE_TABLE is required for the dynamodb memory backend"))
		}
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis memory backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("MEMORY_BACKEND %q is not one of inprocess, dynamodb, redis", c.MemoryBackend))
	}
	if c.MemoryCommit != "on_success" && c.MemoryCommit != "after_tagging" {
		errs = append(errs, fmt.Errorf("MEMORY_COMMIT %q is not one of on_success, after_tagging", c.MemoryCommit))
	}
	if c.MemoryWindow < 0 {
		errs = append(errs, errors.New("MEMORY_WINDOW must not be negative"))
	}
	if c.MaxToolHops < 1 {
		errs = append(errs, errors.New("MAX_TOOL_HOPS must be at least 1"))
	}
	if c.MaxQuestionLength < 1 {
		errs = append(errs, errors.New("MAX_QUESTION_LENGTH must be positive"))
	}
	if c.LLMTimeout <= 0 || c.ToolTimeout <= 0 || c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TokenGetter reads a {"token": "..."} credential parameter.
type TokenGetter interface {
	GetToken(ctx context.Context, name string) (string, error)
}

// NeedsCredentials reports whether a credential is missing from the environment.
func (c *Config) NeedsCredentials() bool {
	return c.OpenAIAPIKey == "" || c.ContentAPIToken == ""
}

// ResolveCredentials fills missing credentials from the parameter store under
// ParamPrefix and fails if any credential is still missing afterwards.
func (c *Config) ResolveCredentials(ctx context.Context, params TokenGetter) error {
	if c.NeedsCredentials() && c.ParamPrefix != "" && params != nil {
		if c.OpenAIAPIKey == "" {
			token, err := params.GetToken(ctx, c.ParamPrefix+openAITokenParam)
			if err != nil {
				return fmt.Errorf("config: load language model token: %w", err)
			}
			c.OpenAIAPIKey = token
		}
		if c.ContentAPIToken == "" {
			token, err := params.GetToken(ctx, c.ParamPrefix+contentTokenParam)
			if err != nil {
				return fmt.Errorf("config: load content api token: %w", err)
			}
			c.ContentAPIToken = token
		}
	}
	var errs []error
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.ContentAPIToken == "" {
		errs = append(errs, errors.New("CONTENT_API_TOKEN is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
