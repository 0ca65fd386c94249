package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pgxbridge/internal/domain"
	"github.com/pgxbridge/internal/reference"
)

// Pipeline runs one document through extraction, annotation, and
// categorization. Safe for concurrent use; all state is read-only after
// construction except the annotator's internal lookup cache.
type Pipeline struct {
	extractor *Extractor
	parser    *PatientParser
	annotator *Annotator
	logger    *logrus.Logger

	metrics       domain.MetricsRecorder
	cache         domain.ResultCache
	annotatorOpts []AnnotatorOption
}

// PipelineOption configures optional pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithMetrics wires a metrics recorder into the pipeline and its annotator.
func WithMetrics(m domain.MetricsRecorder) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithResultCache enables content-hash result caching for ProcessText.
func WithResultCache(c domain.ResultCache) PipelineOption {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithAnnotatorOptions forwards options to the embedded annotator.
func WithAnnotatorOptions(opts ...AnnotatorOption) PipelineOption {
	return func(p *Pipeline) {
		p.annotatorOpts = append(p.annotatorOpts, opts...)
	}
}

// NewPipeline builds the processing pipeline around an immutable reference
// table.
func NewPipeline(table *reference.Table, logger *logrus.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{logger: logger}
	for _, opt := range opts {
		opt(p)
	}

	annOpts := p.annotatorOpts
	if p.metrics != nil {
		annOpts = append(annOpts, WithLookupMetrics(p.metrics))
	}

	p.extractor = NewExtractor(logger)
	p.parser = NewPatientParser(logger)
	p.annotator = NewAnnotator(table, logger, annOpts...)
	return p
}

// Annotator exposes the pipeline's annotator for direct single-fact calls.
func (p *Pipeline) Annotator() *Annotator {
	return p.annotator
}

// Extract runs pattern extraction alone, without annotation.
func (p *Pipeline) Extract(text string) []domain.RawGeneFact {
	return p.extractor.Extract(text)
}

// ParsePatient runs patient header parsing alone.
func (p *Pipeline) ParsePatient(text string) domain.PatientInfo {
	return p.parser.Parse(text)
}

// ProcessText runs pattern extraction over raw report text and assembles the
// full document result. Results are cached by content hash when a result
// cache is configured.
func (p *Pipeline) ProcessText(ctx context.Context, method domain.ExtractionMethod, text string) (*domain.DocumentResult, error) {
	start := time.Now()

	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx, CacheKey(method, text)); ok {
			p.logger.WithFields(logrus.Fields{
				"run_id": cached.RunID,
				"method": method.String(),
			}).Debug("Result served from cache")
			return cached, nil
		}
	}

	patient := p.parser.Parse(text)
	raw := p.extractor.Extract(text)
	result := p.assemble(method, patient, raw, start)

	if p.cache != nil {
		if err := p.cache.Set(ctx, CacheKey(method, text), result); err != nil {
			p.logger.WithError(err).Warn("Failed to cache extraction result")
		}
	}
	return result, nil
}

// ProcessCandidates assembles a document result from pre-structured
// candidates, typically produced by an LLM or layout service. The candidate
// list is backfilled so every vocabulary gene appears exactly once.
func (p *Pipeline) ProcessCandidates(ctx context.Context, method domain.ExtractionMethod, patient domain.PatientInfo, candidates []domain.RawGeneFact) (*domain.DocumentResult, error) {
	start := time.Now()
	raw := BackfillVocabulary(candidates)
	return p.assemble(method, patient, raw, start), nil
}

func (p *Pipeline) assemble(method domain.ExtractionMethod, patient domain.PatientInfo, raw []domain.RawGeneFact, start time.Time) *domain.DocumentResult {
	annotated := p.annotator.AnnotateAll(raw)
	stats := Summarize(annotated)
	report := BuildReportData(patient, annotated)

	elapsed := time.Since(start)
	result := &domain.DocumentResult{
		RunID:          uuid.NewString(),
		Method:         method,
		Patient:        patient,
		Facts:          annotated,
		Stats:          stats,
		Report:         report,
		ProcessingTime: elapsed.Seconds(),
		Timestamp:      time.Now().UTC(),
	}

	if p.metrics != nil {
		p.metrics.RecordDocument(method, elapsed)
		for _, f := range annotated {
			p.metrics.RecordFact(f.MatchStatus != domain.NOT_FOUND)
			p.metrics.RecordMatchStatus(f.MatchStatus)
			if f.IsHighRisk {
				p.metrics.RecordHighRisk()
			}
		}
	}

	p.logger.WithFields(logrus.Fields{
		"run_id":     result.RunID,
		"method":     method.String(),
		"cpic_found": stats.Found,
		"high_risk":  stats.HighRisk,
		"match_rate": stats.MatchRate,
	}).Info("Document processed")

	return result
}

// BackfillVocabulary guarantees one fact per vocabulary gene: candidates
// keep their order with gene names normalized and the first occurrence
// winning, then sentinel facts are appended for any vocabulary gene the
// producer missed. Candidates for genes outside the vocabulary are kept.
func BackfillVocabulary(candidates []domain.RawGeneFact) []domain.RawGeneFact {
	seen := make(map[string]bool, len(candidates))
	out := make([]domain.RawGeneFact, 0, len(candidates)+len(domain.Genes()))

	for _, c := range candidates {
		gene := domain.NormalizeGene(c.Gene)
		if gene == "" || seen[gene] {
			continue
		}
		seen[gene] = true
		fact := domain.RawGeneFact{Gene: gene, Genotype: c.Genotype, Phenotype: c.Phenotype}
		if fact.Genotype == "" {
			fact.Genotype = domain.NotFound
		}
		if fact.Phenotype == "" {
			fact.Phenotype = domain.NotFound
		}
		out = append(out, fact)
	}

	for _, gene := range domain.Genes() {
		if !seen[gene] {
			out = append(out, domain.NewSentinelFact(gene))
		}
	}
	return out
}

// CacheKey derives the result-cache key for a method and text pair.
func CacheKey(method domain.ExtractionMethod, text string) string {
	sum := sha256.Sum256([]byte(string(method) + "|" + text))
	return "pgx:result:" + hex.EncodeToString(sum[:])
}
