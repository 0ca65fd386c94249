// Package external hosts clients for the upstream services the pipeline can
// be wired with: Azure Document Intelligence layout OCR, the Anthropic LLM
// candidate extractor, and the redis result cache. The core pipeline never
// imports this package; entrypoints inject these as interfaces.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pgxbridge/internal/domain"
)

const (
	defaultLayoutModel      = "prebuilt-layout"
	defaultLayoutAPIVersion = "2024-02-29-preview"
	defaultPollInterval     = 2 * time.Second
	defaultMaxPolls         = 30
)

// AzureLayoutClient extracts document text through the Azure Document
// Intelligence layout model. Implements domain.TextProvider.
type AzureLayoutClient struct {
	endpoint     string
	apiKey       string
	model        string
	apiVersion   string
	httpClient   *http.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	pollInterval time.Duration
	maxPolls     int
	logger       *logrus.Logger
}

// NewAzureLayoutClient creates a layout client from configuration. Endpoint
// and API key are required; everything else falls back to service defaults.
func NewAzureLayoutClient(cfg domain.AzureConfig, logger *logrus.Logger) (*AzureLayoutClient, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("azure layout client requires endpoint and api_key")
	}

	model := cfg.Model
	if model == "" {
		model = defaultLayoutModel
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultLayoutAPIVersion
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxPolls := cfg.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}

	return &AzureLayoutClient{
		endpoint:     strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:       cfg.APIKey,
		model:        model,
		apiVersion:   apiVersion,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		breaker:      NewBreaker("azure-document-intelligence", logger),
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		logger:       logger,
	}, nil
}

// Name returns the extraction method label this provider produces under.
func (c *AzureLayoutClient) Name() string {
	return string(domain.DOCUMENT_INTELLIGENCE)
}

// ExtractText submits the document for layout analysis and polls the
// operation until it completes, returning the concatenated page content.
func (c *AzureLayoutClient) ExtractText(ctx context.Context, doc []byte) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.analyze(ctx, doc)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return "", fmt.Errorf("document intelligence unavailable (circuit breaker open)")
		}
		return "", err
	}
	return result.(string), nil
}

func (c *AzureLayoutClient) analyze(ctx context.Context, doc []byte) (string, error) {
	operationURL, err := c.submit(ctx, doc)
	if err != nil {
		return "", err
	}
	return c.poll(ctx, operationURL)
}

// submit starts the analysis and returns the Operation-Location to poll.
func (c *AzureLayoutClient) submit(ctx context.Context, doc []byte) (string, error) {
	analyzeURL := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		c.endpoint, c.model, c.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analyzeURL, bytes.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("failed to create analyze request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("analyze submit returned status %d: %s", resp.StatusCode, string(body))
	}

	operationURL := resp.Header.Get("Operation-Location")
	if operationURL == "" {
		return "", fmt.Errorf("analyze response missing Operation-Location header")
	}

	c.logger.WithFields(logrus.Fields{
		"model":       c.model,
		"api_version": c.apiVersion,
		"bytes":       len(doc),
	}).Debug("Layout analysis submitted")

	return operationURL, nil
}

type analyzeOperation struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	AnalyzeResult *struct {
		Content string `json:"content"`
	} `json:"analyzeResult,omitempty"`
}

func (c *AzureLayoutClient) poll(ctx context.Context, operationURL string) (string, error) {
	for attempt := 0; attempt < c.maxPolls; attempt++ {
		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}

		op, err := c.fetchOperation(ctx, operationURL)
		if err != nil {
			return "", err
		}

		switch op.Status {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return "", fmt.Errorf("analyze succeeded without a result")
			}
			return op.AnalyzeResult.Content, nil
		case "failed":
			if op.Error != nil {
				return "", fmt.Errorf("analyze failed: %s: %s", op.Error.Code, op.Error.Message)
			}
			return "", fmt.Errorf("analyze failed")
		}
		// notStarted or running, keep polling.
	}
	return "", fmt.Errorf("analyze did not complete after %d polls", c.maxPolls)
}

func (c *AzureLayoutClient) fetchOperation(ctx context.Context, operationURL string) (*analyzeOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll operation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("operation poll returned status %d: %s", resp.StatusCode, string(body))
	}

	var op analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("failed to decode operation status: %w", err)
	}
	return &op, nil
}
