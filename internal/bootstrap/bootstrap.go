// Package bootstrap wires configuration into a ready AskService.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"concierge-agent/internal/config"
	"concierge-agent/internal/integrations/contentapi"
	"concierge-agent/internal/integrations/openai"
	"concierge-agent/internal/integrations/paramstore"
	"concierge-agent/internal/profiles/movies"
	"concierge-agent/internal/profiles/travel"
	"concierge-agent/internal/repository"
	"concierge-agent/internal/usecase"
)

var loadAWSConfig = func(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

// App is the wired service plus the resources it holds open.
type App struct {
	Ask     *usecase.AskService
	closers []func() error
}

// Close releases held connections.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// New builds the AskService described by cfg. Missing credentials are read
// from the parameter store when a prefix is configured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{}
	awsLoader := &lazyAWS{}

	var params config.TokenGetter
	if cfg.NeedsCredentials() && cfg.ParamPrefix != "" {
		awsCfg, err := awsLoader.load(ctx)
		if err != nil {
			return nil, err
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		params = ps
	}
	if err := cfg.ResolveCredentials(ctx, params); err != nil {
		return nil, err
	}

	llm, err := openai.NewClient(cfg.OpenAIAPIKey, openai.WithBaseURL(cfg.OpenAIBaseURL))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	content, err := contentapi.New(cfg.ContentAPIBaseURL, cfg.ContentAPIToken,
		contentapi.WithRateLimit(cfg.ContentAPIRatePerMinute, cfg.ContentAPIBurst))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	profile, err := buildProfile(cfg, content)
	if err != nil {
		return nil, err
	}
	memory, err := buildMemory(ctx, cfg, awsLoader, app)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	commit, err := usecase.ParseCommitPolicy(cfg.MemoryCommit)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	ask, err := usecase.NewAskService(llm, memory, profile, usecase.Options{
		TaggerModel:     cfg.TaggerModel,
		RouterModel:     cfg.RouterModel,
		SummarizerModel: cfg.SummarizerModel,
		LLMTimeout:      cfg.LLMTimeout,
		ToolTimeout:     cfg.ToolTimeout,
		StoreTimeout:    cfg.StoreTimeout,
		MemoryWindow:    cfg.MemoryWindow,
		MaxToolHops:     cfg.MaxToolHops,
		Commit:          commit,
		MaxQuestionLen:  cfg.MaxQuestionLength,
		Logger:          logger,
	})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	app.Ask = ask
	logger.Info("assistant ready", "domain", profile.Name, "memory", cfg.MemoryBackend, "tools", profile.Tools.Names())
	return app, nil
}

func buildProfile(cfg *config.Config, content *contentapi.Client) (usecase.Profile, error) {
	switch cfg.Domain {
	case config.DomainTravel:
		return travel.New(content)
	case config.DomainMovies:
		return movies.New(content, cfg.ImageBaseURL)
	default:
		return usecase.Profile{}, fmt.Errorf("bootstrap: unknown domain %q", cfg.Domain)
	}
}

func buildMemory(ctx context.Context, cfg *config.Config, awsLoader *lazyAWS, app *App) (usecase.MemoryStore, error) {
	switch cfg.MemoryBackend {
	case config.BackendInProcess:
		return repository.NewMemoryStore(), nil
	case config.BackendDynamoDB:
		awsCfg, err := awsLoader.load(ctx)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable, cfg.MemoryTTL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return store, nil
	case config.BackendRedis:
		rdb, err := repository.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		app.closers = append(app.closers, rdb.Close)
		store, err := repository.NewRedisStore(rdb, cfg.MemoryTTL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown memory backend %q", cfg.MemoryBackend)
	}
}

// lazyAWS loads the shared AWS config at most once, and only if a component
// needs it.
type lazyAWS struct {
	cfg    aws.Config
	loaded bool
}

func (l *lazyAWS) load(ctx context.Context) (aws.Config, error) {
	if l.loaded {
		return l.cfg, nil
	}
	cfg, err := loadAWSConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load AWS config: %w", err)
	}
	l.cfg, l.loaded = cfg, true
	return cfg, nil
}
