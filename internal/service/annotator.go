package service

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/pgxbridge/internal/domain"
	"github.com/pgxbridge/internal/reference"
)

// DefaultLookupCacheSize bounds the annotator's memoized lookup cache.
const DefaultLookupCacheSize = 1000

// equivalentPhenotypes maps a lowercased phenotype category to the accepted
// alternate spellings of that call. Matching is bidirectional substring
// containment against the normalized reported phenotype.
var equivalentPhenotypes = map[string][]string{
	"normal":       {"normal metabolizer", "normal function", "normal activity"},
	"intermediate": {"intermediate metabolizer", "intermediate function", "intermediate activity"},
	"poor":         {"poor metabolizer", "poor function", "poor activity", "no function"},
	"rapid":        {"rapid metabolizer", "increased function"},
	"ultrarapid":   {"ultrarapid metabolizer", "ultra-rapid metabolizer", "ultrarapid function"},
	"reduced":      {"reduced activity", "reduced function"},
	"low":          {"low activity", "low function"},
}

type lookupResult struct {
	entry reference.Entry
	ok    bool
}

// Annotator validates extracted gene facts against the CPIC reference table
// and grades how well the reported phenotype agrees with the canonical call.
// Lookups are memoized in a bounded LRU keyed by gene and diplotype.
type Annotator struct {
	table   *reference.Table
	logger  *logrus.Logger
	metrics domain.MetricsRecorder

	cacheSize int
	cache     *lru.Cache[string, lookupResult]
	hits      atomic.Uint64
	misses    atomic.Uint64
}

// AnnotatorOption configures optional annotator behavior.
type AnnotatorOption func(*Annotator)

// WithLookupCacheSize overrides the memoization cache capacity.
func WithLookupCacheSize(size int) AnnotatorOption {
	return func(a *Annotator) {
		if size > 0 {
			a.cacheSize = size
		}
	}
}

// WithLookupMetrics wires cache hit and miss counters to a recorder.
func WithLookupMetrics(m domain.MetricsRecorder) AnnotatorOption {
	return func(a *Annotator) {
		a.metrics = m
	}
}

// NewAnnotator creates an annotator bound to an immutable reference table.
func NewAnnotator(table *reference.Table, logger *logrus.Logger, opts ...AnnotatorOption) *Annotator {
	a := &Annotator{
		table:     table,
		logger:    logger,
		cacheSize: DefaultLookupCacheSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	// lru.New only fails on a non-positive size, which the option guards.
	a.cache, _ = lru.New[string, lookupResult](a.cacheSize)
	return a
}

// Annotate grades one raw fact against the reference table. A fact without a
// usable genotype, or with a diplotype absent from the table, comes back as
// not_found with the CPIC columns left empty.
func (a *Annotator) Annotate(fact domain.RawGeneFact) domain.AnnotatedGeneFact {
	ann := domain.AnnotatedGeneFact{
		Gene:        fact.Gene,
		Genotype:    fact.Genotype,
		Phenotype:   fact.Phenotype,
		MatchStatus: domain.NOT_FOUND,
	}

	if !fact.HasGenotype() {
		ann.ValidationMessage = fmt.Sprintf("Diplotype %s not found in CPIC table for %s", fact.Genotype, fact.Gene)
		return ann
	}

	entry, ok := a.lookup(fact.Gene, fact.Genotype)
	if !ok {
		ann.ValidationMessage = fmt.Sprintf("Diplotype %s not found in CPIC table for %s", fact.Genotype, fact.Gene)
		a.logger.WithFields(logrus.Fields{
			"gene":     fact.Gene,
			"genotype": fact.Genotype,
		}).Debug("Diplotype missing from reference table")
		return ann
	}

	ann.CPICPhenotype = entry.PhenotypeSimplified
	ann.CPICPhenotypeFull = entry.PhenotypeFull
	ann.CPICCategory = entry.Category
	ann.CPICActivityScore = entry.ActivityScore
	ann.CPICEHRPriority = entry.EHRPriority
	ann.IsHighRisk = entry.IsHighRisk()
	ann.MatchStatus, ann.ValidationMessage = validatePhenotype(fact.Phenotype, entry)
	return ann
}

// AnnotateAll annotates facts in order, one output per input.
func (a *Annotator) AnnotateAll(facts []domain.RawGeneFact) []domain.AnnotatedGeneFact {
	out := make([]domain.AnnotatedGeneFact, 0, len(facts))
	for _, fact := range facts {
		out = append(out, a.Annotate(fact))
	}
	return out
}

// CacheStats returns memoized lookup hit and miss counts since construction.
func (a *Annotator) CacheStats() (hits, misses uint64) {
	return a.hits.Load(), a.misses.Load()
}

func (a *Annotator) lookup(gene, genotype string) (reference.Entry, bool) {
	key := domain.NormalizeGene(gene) + "|" + strings.TrimSpace(genotype)
	if res, ok := a.cache.Get(key); ok {
		a.hits.Add(1)
		if a.metrics != nil {
			a.metrics.RecordLookup(true)
		}
		return res.entry, res.ok
	}
	a.misses.Add(1)
	if a.metrics != nil {
		a.metrics.RecordLookup(false)
	}
	entry, ok := a.table.Lookup(gene, genotype)
	a.cache.Add(key, lookupResult{entry: entry, ok: ok})
	return entry, ok
}

// validatePhenotype runs the match cascade: exact, category, equivalent,
// mismatch. Either side missing short-circuits to unknown.
func validatePhenotype(reported string, entry reference.Entry) (domain.MatchStatus, string) {
	reported = strings.TrimSpace(reported)
	simplified := strings.TrimSpace(entry.PhenotypeSimplified)
	if reported == "" || reported == domain.NotFound || simplified == "" {
		return domain.UNKNOWN_MATCH, "Missing data for validation"
	}

	reportedFold := foldPhenotype(reported)
	if reportedFold == foldPhenotype(simplified) {
		return domain.EXACT_MATCH, "Exact match with CPIC standard"
	}

	category := strings.TrimSpace(entry.Category)
	if category != "" && strings.Contains(reportedFold, strings.ToLower(category)) {
		return domain.CATEGORY_MATCH, fmt.Sprintf("Category matches (%s) but format differs", category)
	}

	for _, variant := range equivalentPhenotypes[strings.ToLower(category)] {
		if strings.Contains(reportedFold, variant) || strings.Contains(variant, reportedFold) {
			return domain.EQUIVALENT_MATCH, "Phenotype is equivalent to CPIC standard"
		}
	}

	return domain.MISMATCH, fmt.Sprintf("Reported %q does not match CPIC %q", reported, simplified)
}

// foldPhenotype lowercases and collapses whitespace for comparison.
func foldPhenotype(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Summarize aggregates annotation outcomes across one document's facts.
func Summarize(facts []domain.AnnotatedGeneFact) domain.SummaryStats {
	stats := domain.SummaryStats{TotalGenes: len(facts)}
	for _, f := range facts {
		if f.MatchStatus == domain.NOT_FOUND {
			stats.NotFound++
		} else {
			stats.Found++
		}
		if f.IsHighRisk {
			stats.HighRisk++
		}
		switch f.MatchStatus {
		case domain.EXACT_MATCH:
			stats.ExactMatches++
		case domain.MISMATCH:
			stats.Mismatches++
		}
	}
	if stats.TotalGenes > 0 {
		stats.MatchRate = math.Round(float64(stats.ExactMatches)/float64(stats.TotalGenes)*1000) / 10
	}
	return stats
}
