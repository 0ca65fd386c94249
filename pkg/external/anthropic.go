package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/pgxbridge/internal/domain"
	"github.com/pgxbridge/internal/service"
)

const (
	defaultLLMModel = "claude-3-5-haiku-20241022"
	initialBackoff  = 1 * time.Second

	// Patient metadata sits in the report header; the leading slice of the
	// document is enough context for that call.
	patientContextLimit = 4000

	systemPrompt = "You are a precise medical document parser. Always return valid JSON."
)

// ErrAPIKeyRequired is returned when no Anthropic API key is configured.
var ErrAPIKeyRequired = errors.New("API key required")

// AnthropicExtractor produces structured gene candidates and patient metadata
// from report text via the Anthropic Messages API. Implements
// domain.CandidateProducer.
type AnthropicExtractor struct {
	client     anthropic.Client
	model      anthropic.Model
	maxTokens  int64
	maxRetries int
	backoff    time.Duration
	logger     *logrus.Logger
}

// NewAnthropicExtractor creates an extractor from configuration. Env var
// ANTHROPIC_API_KEY takes precedence over the configured key.
func NewAnthropicExtractor(cfg domain.AnthropicConfig, logger *logrus.Logger) (*AnthropicExtractor, error) {
	apiKey := cfg.APIKey
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or anthropic.api_key", ErrAPIKeyRequired)
	}

	model := cfg.Model
	if model == "" {
		model = defaultLLMModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &AnthropicExtractor{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:      anthropic.Model(model),
		maxTokens:  int64(maxTokens),
		maxRetries: maxRetries,
		backoff:    initialBackoff,
		logger:     logger,
	}, nil
}

// Name returns the extraction method label. The label predates the provider
// switch and stays for downstream compatibility.
func (e *AnthropicExtractor) Name() string {
	return string(domain.LLM_EXTRACTION)
}

// ExtractCandidates asks the model for all 13 vocabulary genes and the
// patient header fields. Any failure degrades to the full sentinel fact set
// and empty patient info, with the error returned for the caller to log.
func (e *AnthropicExtractor) ExtractCandidates(ctx context.Context, text string) ([]domain.RawGeneFact, domain.PatientInfo, error) {
	raw, err := e.callWithRetry(ctx, factsPrompt(text))
	if err != nil {
		return sentinelFacts(), domain.PatientInfo{}, fmt.Errorf("llm extraction failed: %w", err)
	}

	facts, err := decodeFacts(raw)
	if err != nil {
		return sentinelFacts(), domain.PatientInfo{}, err
	}

	return facts, e.extractPatient(ctx, text), nil
}

// extractPatient is best-effort: a failed call degrades to empty info rather
// than failing the gene extraction it rides along with.
func (e *AnthropicExtractor) extractPatient(ctx context.Context, text string) domain.PatientInfo {
	if len(text) > patientContextLimit {
		text = text[:patientContextLimit]
	}

	raw, err := e.callWithRetry(ctx, patientPrompt(text))
	if err != nil {
		e.logger.WithError(err).Warn("LLM patient extraction failed")
		return domain.PatientInfo{}
	}

	var patient domain.PatientInfo
	if err := json.Unmarshal([]byte(stripFences(raw)), &patient); err != nil {
		e.logger.WithError(err).Warn("LLM patient response was not valid JSON")
		return domain.PatientInfo{}
	}
	return patient
}

func (e *AnthropicExtractor) callWithRetry(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0.1),
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := e.backoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := e.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) > 0 && message.Content[0].Type == "text" {
				return message.Content[0].Text, nil
			}
			return "", fmt.Errorf("unexpected response format: no text content")
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("failed after %d attempts: %w", e.maxRetries+1, lastErr)
}

// isRetryable classifies transient failures: rate limits, server errors, and
// network timeouts retry; everything else fails fast.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}

type llmGeneCandidate struct {
	Gene              string `json:"gene"`
	Genotype          string `json:"genotype"`
	MetabolizerStatus string `json:"metabolizer_status"`
}

// decodeFacts parses the model's JSON array and enforces the one-fact-per-
// vocabulary-gene shape.
func decodeFacts(raw string) ([]domain.RawGeneFact, error) {
	var candidates []llmGeneCandidate
	if err := json.Unmarshal([]byte(stripFences(raw)), &candidates); err != nil {
		return nil, fmt.Errorf("failed to decode gene candidates: %w", err)
	}

	facts := make([]domain.RawGeneFact, 0, len(candidates))
	for _, c := range candidates {
		facts = append(facts, domain.RawGeneFact{
			Gene:      c.Gene,
			Genotype:  c.Genotype,
			Phenotype: c.MetabolizerStatus,
		})
	}
	return service.BackfillVocabulary(facts), nil
}

// stripFences removes the markdown code fence models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func sentinelFacts() []domain.RawGeneFact {
	genes := domain.Genes()
	out := make([]domain.RawGeneFact, len(genes))
	for i, gene := range genes {
		out[i] = domain.NewSentinelFact(gene)
	}
	return out
}

func factsPrompt(text string) string {
	return fmt.Sprintf(`You are a pharmacogenomics expert. Extract PGX gene data from the following text content.

Look for these 13 genes: %s

For each gene found, extract:
- gene: Gene name (exactly as listed above)
- genotype: The genotype/allele information
- metabolizer_status: Metabolizer status (e.g., Normal Metabolizer, Poor Metabolizer, etc.)

Return a JSON array with objects for ALL 13 genes. If a gene is not found, use "Not found" for both genotype and metabolizer_status.

Text content:
%s

JSON:`, strings.Join(domain.Genes(), ", "), text)
}

func patientPrompt(text string) string {
	return fmt.Sprintf(`You are a medical document parser. Extract patient information from the following text content from the first page of a PGX report.

Extract the following fields and return them as a JSON object:
- patient_name: Patient's full name
- date_of_birth: Date of birth (any format)
- test: Test name or type
- report_date: Report date
- report_id: Report ID or number
- cohort: Patient cohort or population
- sample_type: Type of sample (blood, saliva, etc.)
- sample_collection_date: When sample was collected
- sample_received_date: When sample was received
- processed_date: When sample was processed
- ordering_clinician: Name of ordering physician/clinician
- npi: NPI number if available
- indication_for_testing: Reason for testing

Return ONLY a valid JSON object with these fields. If a field is not found, use null.

Text content:
%s

JSON:`, text)
}
