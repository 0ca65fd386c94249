package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgxbridge/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func layoutConfig(endpoint string) domain.AzureConfig {
	return domain.AzureConfig{
		Endpoint:     endpoint,
		APIKey:       "test-key",
		RateLimit:    100,
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     10,
	}
}

// layoutServer simulates the Document Intelligence analyze + poll flow.
// Each poll consumes the next status; the last one repeats.
func layoutServer(t *testing.T, statuses []string, content string) (*httptest.Server, *int) {
	t.Helper()
	polls := 0

	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if r.Method == http.MethodPost && strings.Contains(r.URL.Path, ":analyze") {
			assert.Contains(t, r.URL.Path, "prebuilt-layout")
			w.Header().Set("Operation-Location", ts.URL+"/operations/op-1")
			w.WriteHeader(http.StatusAccepted)
			return
		}

		if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/operations/") {
			status := statuses[len(statuses)-1]
			if polls < len(statuses) {
				status = statuses[polls]
			}
			polls++

			op := map[string]any{"status": status}
			if status == "succeeded" {
				op["analyzeResult"] = map[string]any{"content": content}
			}
			if status == "failed" {
				op["error"] = map[string]any{"code": "InvalidContent", "message": "unsupported file"}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(op)
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(ts.Close)
	return ts, &polls
}

func TestNewAzureLayoutClient_RequiresCredentials(t *testing.T) {
	_, err := NewAzureLayoutClient(domain.AzureConfig{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint and api_key")
}

func TestAzureLayoutClient_Name(t *testing.T) {
	client, err := NewAzureLayoutClient(layoutConfig("https://example.invalid"), testLogger())
	require.NoError(t, err)
	assert.Equal(t, "document_intelligence", client.Name())
}

func TestAzureLayoutClient_ExtractText(t *testing.T) {
	ts, polls := layoutServer(t, []string{"running", "running", "succeeded"}, "Pharmacogenomics Report\nCYP2C19\n*1/*2")
	client, err := NewAzureLayoutClient(layoutConfig(ts.URL), testLogger())
	require.NoError(t, err)

	text, err := client.ExtractText(context.Background(), []byte("%PDF-1.7 fake"))

	require.NoError(t, err)
	assert.Contains(t, text, "CYP2C19")
	assert.Equal(t, 3, *polls)
}

func TestAzureLayoutClient_ExtractText_AnalysisFailed(t *testing.T) {
	ts, _ := layoutServer(t, []string{"failed"}, "")
	client, err := NewAzureLayoutClient(layoutConfig(ts.URL), testLogger())
	require.NoError(t, err)

	_, err = client.ExtractText(context.Background(), []byte("doc"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidContent")
}

func TestAzureLayoutClient_ExtractText_SubmitRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(ts.Close)
	client, err := NewAzureLayoutClient(layoutConfig(ts.URL), testLogger())
	require.NoError(t, err)

	_, err = client.ExtractText(context.Background(), []byte("doc"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestAzureLayoutClient_ExtractText_MissingOperationLocation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(ts.Close)
	client, err := NewAzureLayoutClient(layoutConfig(ts.URL), testLogger())
	require.NoError(t, err)

	_, err = client.ExtractText(context.Background(), []byte("doc"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Operation-Location")
}

func TestAzureLayoutClient_ExtractText_PollExhaustion(t *testing.T) {
	ts, _ := layoutServer(t, []string{"running"}, "")
	cfg := layoutConfig(ts.URL)
	cfg.MaxPolls = 3
	client, err := NewAzureLayoutClient(cfg, testLogger())
	require.NoError(t, err)

	_, err = client.ExtractText(context.Background(), []byte("doc"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not complete after 3 polls")
}

func TestAzureLayoutClient_CircuitBreakerOpens(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)
	client, err := NewAzureLayoutClient(layoutConfig(ts.URL), testLogger())
	require.NoError(t, err)

	// Three straight failures trip the breaker.
	for i := 0; i < 3; i++ {
		_, err = client.ExtractText(context.Background(), []byte("doc"))
		require.Error(t, err)
	}

	_, err = client.ExtractText(context.Background(), []byte("doc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestNewAnthropicExtractor_RequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewAnthropicExtractor(domain.AnthropicConfig{}, testLogger())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestAnthropicExtractor_Name(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	extractor, err := NewAnthropicExtractor(domain.AnthropicConfig{APIKey: "test"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "azure_openai_llm", extractor.Name())
}

func TestDecodeFacts(t *testing.T) {
	raw := "```json\n" + `[
		{"gene": "CYP2C19", "genotype": "*1/*2", "metabolizer_status": "Intermediate Metabolizer"},
		{"gene": "cyp2d6", "genotype": "*4/*4", "metabolizer_status": "Poor Metabolizer"}
	]` + "\n```"

	facts, err := decodeFacts(raw)

	require.NoError(t, err)
	require.Len(t, facts, 13)
	assert.Equal(t, domain.RawGeneFact{Gene: "CYP2C19", Genotype: "*1/*2", Phenotype: "Intermediate Metabolizer"}, facts[0])
	assert.Equal(t, "CYP2D6", facts[1].Gene)

	sentinels := 0
	for _, f := range facts {
		if f.Genotype == domain.NotFound && f.Phenotype == domain.NotFound {
			sentinels++
		}
	}
	assert.Equal(t, 11, sentinels)
}

func TestDecodeFacts_EmptyArray(t *testing.T) {
	facts, err := decodeFacts("[]")

	require.NoError(t, err)
	require.Len(t, facts, 13)
	for _, f := range facts {
		assert.Equal(t, domain.NotFound, f.Genotype)
		assert.Equal(t, domain.NotFound, f.Phenotype)
	}
}

func TestDecodeFacts_InvalidJSON(t *testing.T) {
	_, err := decodeFacts("The report mentions CYP2C19 but I cannot produce JSON.")

	require.Error(t, err)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", `[{"gene":"TPMT"}]`, `[{"gene":"TPMT"}]`},
		{"json fence", "```json\n[1,2]\n```", "[1,2]"},
		{"fence with padding", "  ```json\n{}\n```  ", "{}"},
		{"trailing fence only", "{}```", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripFences(tt.input))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"rate limited", &anthropic.Error{StatusCode: 429}, true},
		{"server error", &anthropic.Error{StatusCode: 500}, true},
		{"bad request", &anthropic.Error{StatusCode: 400}, false},
		{"generic", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}

func TestSentinelFacts(t *testing.T) {
	facts := sentinelFacts()

	require.Len(t, facts, 13)
	assert.Equal(t, "CYP2B6", facts[0].Gene)
	for _, f := range facts {
		assert.Equal(t, domain.NotFound, f.Genotype)
		assert.Equal(t, domain.NotFound, f.Phenotype)
	}
}

func TestFactsPrompt_ListsVocabulary(t *testing.T) {
	prompt := factsPrompt("some report text")

	for _, gene := range domain.Genes() {
		assert.Contains(t, prompt, gene)
	}
	assert.Contains(t, prompt, "Not found")
	assert.Contains(t, prompt, "JSON array")
}

func TestRedisResultCache_NilIsDisabled(t *testing.T) {
	var cache *RedisResultCache

	result, ok := cache.Get(context.Background(), "pgx:result:abc")
	assert.Nil(t, result)
	assert.False(t, ok)
	assert.NoError(t, cache.Set(context.Background(), "pgx:result:abc", &domain.DocumentResult{}))
	assert.NoError(t, cache.Ping(context.Background()))
	assert.NoError(t, cache.Close())
}

// TestRedisResultCache_RoundTrip needs a reachable redis; set TEST_REDIS_URL
// (e.g. redis://localhost:6379/15) to run it.
func TestRedisResultCache_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping redis integration test")
	}

	cache, err := NewRedisResultCache(domain.RedisConfig{URL: url, DefaultTTL: time.Minute}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	key := fmt.Sprintf("pgx:result:test-%d", time.Now().UnixNano())
	result := &domain.DocumentResult{
		RunID:  "test-run",
		Method: domain.PATTERN_EXTRACTION,
		Facts: []domain.AnnotatedGeneFact{
			{Gene: "CYP2C19", Genotype: "*1/*2", Phenotype: "Intermediate Metabolizer", MatchStatus: domain.EXACT_MATCH},
		},
	}

	require.NoError(t, cache.Set(context.Background(), key, result))

	cached, ok := cache.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, result.RunID, cached.RunID)
	assert.Equal(t, result.Facts, cached.Facts)

	_, ok = cache.Get(context.Background(), key+"-missing")
	assert.False(t, ok)
}
