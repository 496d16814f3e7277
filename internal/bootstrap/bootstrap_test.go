package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/require"

	"concierge-agent/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Domain:                  config.DomainTravel,
		OpenAIAPIKey:            "sk-test",
		TaggerModel:             "m",
		RouterModel:             "m",
		SummarizerModel:         "m",
		ContentAPIBaseURL:       "https://content.example",
		ContentAPIToken:         "ct",
		ContentAPIRatePerMinute: 120,
		ContentAPIBurst:         5,
		LLMTimeout:              time.Second,
		ToolTimeout:             time.Second,
		StoreTimeout:            time.Second,
		MemoryBackend:           config.BackendInProcess,
		MemoryCommit:            "on_success",
		MaxToolHops:             1,
		MaxQuestionLength:       500,
	}
}

func stubAWS(t *testing.T, cfg aws.Config, err error) *int {
	t.Helper()
	orig := loadAWSConfig
	t.Cleanup(func() { loadAWSConfig = orig })
	calls := 0
	loadAWSConfig = func(context.Context) (aws.Config, error) {
		calls++
		return cfg, err
	}
	return &calls
}

func TestNew_InProcessTravel(t *testing.T) {
	calls := stubAWS(t, aws.Config{}, errors.New("must not be called"))

	app, err := New(context.Background(), baseConfig(), nil)
	require.NoError(t, err)
	require.Equal(t, "travel", app.Ask.Domain())
	require.Zero(t, *calls)
	require.NoError(t, app.Close())
}

func TestNew_LogsReadyOnce(t *testing.T) {
	stubAWS(t, aws.Config{}, errors.New("must not be called"))
	var buf bytes.Buffer
	logger := config.NewLogger(&buf, "info", false)

	app, err := New(context.Background(), baseConfig(), logger)
	require.NoError(t, err)
	defer app.Close()

	require.Equal(t, 1, strings.Count(buf.String(), "assistant ready"))
	require.Contains(t, buf.String(), "domain=travel")
}

func TestNew_MoviesWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := baseConfig()
	cfg.Domain = config.DomainMovies
	cfg.MemoryBackend = config.BackendRedis
	cfg.RedisAddr = mr.Addr()
	cfg.MemoryCommit = "after_tagging"

	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Equal(t, "movies", app.Ask.Domain())
	require.NoError(t, app.Close())
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := baseConfig()
	cfg.MemoryBackend = config.BackendRedis
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "redis")
}

func TestNew_DynamoDBLoadsAWSConfigOnce(t *testing.T) {
	calls := stubAWS(t, aws.Config{Region: "us-east-1"}, nil)
	cfg := baseConfig()
	cfg.MemoryBackend = config.BackendDynamoDB
	cfg.StateTable = "conversations"

	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, app.Ask)
	require.Equal(t, 1, *calls)
}

func TestNew_AWSConfigFailure(t *testing.T) {
	stubAWS(t, aws.Config{}, errors.New("no region"))
	cfg := baseConfig()
	cfg.MemoryBackend = config.BackendDynamoDB
	cfg.StateTable = "conversations"

	_, err := New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "load AWS config")
}

func TestNew_ResolvesCredentialsFromParameterStore(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "AmazonSSM.GetParameter", r.Header.Get("X-Amz-Target"))
		var in struct {
			Name string `json:"Name"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		requested = append(requested, in.Name)
		value, _ := json.Marshal(map[string]string{"token": "from-ssm"})
		w.Header().Set("Content-Type", "application/x-amz-json-1.1")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Parameter": map[string]any{"Name": in.Name, "Value": string(value)},
		})
	}))
	defer srv.Close()

	stubAWS(t, aws.Config{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		HTTPClient:   srv.Client(),
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "secret"}, nil
		}),
	}, nil)

	cfg := baseConfig()
	cfg.OpenAIAPIKey = ""
	cfg.ContentAPIToken = ""
	cfg.ParamPrefix = "/concierge/test"

	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, app.Ask)
	require.Equal(t, "from-ssm", cfg.OpenAIAPIKey)
	require.Equal(t, "from-ssm", cfg.ContentAPIToken)
	require.Equal(t, []string{"/concierge/test/open-ai-token", "/concierge/test/content-api-token"}, requested)
}

func TestNew_MissingCredentialsIsFatal(t *testing.T) {
	cfg := baseConfig()
	cfg.OpenAIAPIKey = ""

	_, err := New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "OPENAI_API_KEY")
}
