// Package service implements the fact extraction and reconciliation pipeline:
// pattern-cascade extraction of per-gene facts from report text, annotation
// against the CPIC reference table, priority categorization, and
// cross-method similarity scoring.
package service

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgxbridge/internal/domain"
)

// sectionMarker starts the genotype results section on most report layouts.
// When the marker is missing the whole text is scanned instead.
const sectionMarker = "Patient Genotype"

// lookaheadWindow bounds how many lines after a bare gene symbol are
// inspected for genotype and phenotype values.
const lookaheadWindow = 3

// Extractor turns raw report text into one RawGeneFact per vocabulary gene.
// It never fails: any text shape, including empty, yields 13 facts, with the
// sentinel pair standing in for genes the cascade could not resolve.
type Extractor struct {
	logger     *logrus.Logger
	strategies []extractionStrategy
	geneRegex  map[string][]*regexp.Regexp
}

// extractionStrategy is one stage of the cascade. Stages run in order and
// only fill fields that earlier stages left empty.
type extractionStrategy struct {
	Name  string
	Apply func(text string, facts *factSet)
}

// NewExtractor creates an extractor with the full strategy cascade.
func NewExtractor(logger *logrus.Logger) *Extractor {
	e := &Extractor{
		logger:    logger,
		geneRegex: make(map[string][]*regexp.Regexp, len(domain.Genes())),
	}
	e.compileGenePatterns()
	e.strategies = []extractionStrategy{
		{Name: "section_line_scan", Apply: e.scanSectionLines},
		{Name: "regex_cascade", Apply: e.applyGeneRegexes},
		{Name: "table_fallback", Apply: e.scanTableRows},
	}
	return e
}

// compileGenePatterns builds the per-gene regex cascade, strictest template
// first. The final template is deliberately permissive and only runs when
// everything else missed.
func (e *Extractor) compileGenePatterns() {
	for _, gene := range domain.Genes() {
		g := regexp.QuoteMeta(gene)
		e.geneRegex[gene] = []*regexp.Regexp{
			// Whole line: gene, one genotype token, phenotype with optional suffix.
			regexp.MustCompile(`(?m)^\s*` + g + `\s+(\S+)\s+((?:Normal|Intermediate|Poor|Rapid|Ultra-?rapid)(?:\s+(?:Metabolizer|Function))?|Indeterminate)\s*$`),
			// Anywhere in text, suffix required.
			regexp.MustCompile(g + `\s+(\S+)\s+((?:Normal|Intermediate|Poor|Rapid|Ultra-?rapid)\s+(?:Metabolizer|Function)|Indeterminate)`),
			// Permissive tail for heavily mangled layouts.
			regexp.MustCompile(g + `\s+([^\n]+)\s+([\w\s]+Metabolizer|[\w\s]+Function|Indeterminate)`),
		}
	}
}

// Extract runs the cascade over the text and returns exactly one fact per
// vocabulary gene, in canonical gene order. Idempotent and total.
func (e *Extractor) Extract(text string) []domain.RawGeneFact {
	facts := newFactSet()

	for _, strategy := range e.strategies {
		if facts.complete() {
			break
		}
		strategy.Apply(text, facts)
	}

	results := facts.results()

	found := 0
	for _, f := range results {
		if f.HasGenotype() || f.HasPhenotype() {
			found++
		}
	}
	e.logger.WithFields(logrus.Fields{
		"genes_found": found,
		"genes_total": len(results),
	}).Debug("Pattern extraction completed")

	return results
}

// scanSectionLines is the primary strategy: find the results section (or use
// the whole text), then treat every line holding a bare gene symbol as an
// anchor and look ahead a bounded window for genotype- and phenotype-shaped
// lines. The first matching line per shape wins; the two shapes resolve
// independently and may arrive in either order.
func (e *Extractor) scanSectionLines(text string, facts *factSet) {
	section := text
	if idx := strings.Index(text, sectionMarker); idx >= 0 {
		section = text[idx:]
	}

	lines := strings.Split(section, "\n")
	for i, line := range lines {
		symbol := strings.TrimSpace(line)
		if !domain.IsVocabularyGene(symbol) {
			continue
		}
		gene := domain.NormalizeGene(symbol)

		for j := 1; j <= lookaheadWindow && i+j < len(lines); j++ {
			next := strings.TrimSpace(lines[i+j])
			if next == "" {
				continue
			}
			if isGenotypeShaped(next) {
				facts.setGenotype(gene, next)
			} else if isPhenotypeShaped(next) {
				facts.setPhenotype(gene, next)
			}
		}
	}
}

// isGenotypeShaped reports whether a line looks like allele notation.
// Checked before the phenotype shape; a line counts as only one shape.
func isGenotypeShaped(line string) bool {
	return strings.Contains(line, "*") ||
		strings.Contains(line, "/") ||
		strings.Contains(line, "Reference") ||
		strings.Contains(line, "c.")
}

// isPhenotypeShaped reports whether a line looks like a metabolizer call.
func isPhenotypeShaped(line string) bool {
	return strings.Contains(line, "Metabolizer") ||
		strings.Contains(line, "Function") ||
		strings.Contains(line, "Indeterminate")
}

// applyGeneRegexes is the second strategy: for genes still missing a
// genotype, try the per-gene template cascade against the whole text.
// The first matching template for a gene short-circuits the rest.
func (e *Extractor) applyGeneRegexes(text string, facts *factSet) {
	for _, gene := range domain.Genes() {
		if facts.hasGenotype(gene) {
			continue
		}
		for _, re := range e.geneRegex[gene] {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			facts.setGenotype(gene, strings.TrimSpace(m[1]))
			facts.setPhenotype(gene, canonicalPhenotype(strings.TrimSpace(m[2])))
			break
		}
	}
}

// canonicalPhenotype appends the canonical " Metabolizer" suffix to bare
// category tokens so downstream comparisons are stable. Values that already
// carry a suffix, and Indeterminate, pass through unchanged.
func canonicalPhenotype(phenotype string) string {
	if phenotype == "" || phenotype == "Indeterminate" {
		return phenotype
	}
	if strings.Contains(phenotype, "Metabolizer") || strings.Contains(phenotype, "Function") {
		return phenotype
	}
	return phenotype + " Metabolizer"
}

// tableHeaderShaped detects a tabular results header row.
func tableHeaderShaped(line string) bool {
	l := strings.ToLower(line)
	return strings.Contains(l, "gene") &&
		strings.Contains(l, "genotype") &&
		strings.Contains(l, "metabolizer")
}

// phenotype category keywords recognized by the table fallback.
var categoryKeywords = map[string]bool{
	"normal":       true,
	"intermediate": true,
	"poor":         true,
	"rapid":        true,
	"ultrarapid":   true,
	"ultra-rapid":  true,
}

// scanTableRows is the last strategy: when a "Gene ... Genotype ...
// Metabolizer" header row is present, walk the following lines token-wise.
// The token after a gene symbol is its genotype; later category keywords are
// joined and suffixed to form the phenotype.
func (e *Extractor) scanTableRows(text string, facts *factSet) {
	lines := strings.Split(text, "\n")

	headerAt := -1
	for i, line := range lines {
		if tableHeaderShaped(line) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return
	}

	for _, line := range lines[headerAt+1:] {
		tokens := strings.Fields(line)
		for i, token := range tokens {
			if !domain.IsVocabularyGene(token) {
				continue
			}
			gene := domain.NormalizeGene(token)
			if facts.hasGenotype(gene) {
				continue
			}
			if i+1 < len(tokens) {
				facts.setGenotype(gene, tokens[i+1])
			}
			var categories []string
			for _, rest := range tokens[i+2:] {
				if categoryKeywords[strings.ToLower(rest)] {
					categories = append(categories, rest)
				}
			}
			if len(categories) > 0 {
				facts.setPhenotype(gene, strings.Join(categories, " ")+" Metabolizer")
			}
		}
	}
}

// factSet accumulates per-gene fields across strategies. Fields start empty
// and are only ever set once; the sentinel is substituted at render time.
type factSet struct {
	genotypes  map[string]string
	phenotypes map[string]string
}

func newFactSet() *factSet {
	return &factSet{
		genotypes:  make(map[string]string, len(domain.Genes())),
		phenotypes: make(map[string]string, len(domain.Genes())),
	}
}

func (fs *factSet) setGenotype(gene, value string) {
	if fs.genotypes[gene] == "" && value != "" {
		fs.genotypes[gene] = value
	}
}

func (fs *factSet) setPhenotype(gene, value string) {
	if fs.phenotypes[gene] == "" && value != "" {
		fs.phenotypes[gene] = value
	}
}

func (fs *factSet) hasGenotype(gene string) bool {
	return fs.genotypes[gene] != ""
}

func (fs *factSet) complete() bool {
	for _, gene := range domain.Genes() {
		if fs.genotypes[gene] == "" || fs.phenotypes[gene] == "" {
			return false
		}
	}
	return true
}

// results renders the accumulated fields as one fact per vocabulary gene in
// canonical order, substituting the sentinel for anything unresolved.
func (fs *factSet) results() []domain.RawGeneFact {
	out := make([]domain.RawGeneFact, 0, len(domain.Genes()))
	for _, gene := range domain.Genes() {
		fact := domain.RawGeneFact{
			Gene:      gene,
			Genotype:  fs.genotypes[gene],
			Phenotype: fs.phenotypes[gene],
		}
		if fact.Genotype == "" {
			fact.Genotype = domain.NotFound
		}
		if fact.Phenotype == "" {
			fact.Phenotype = domain.NotFound
		}
		out = append(out, fact)
	}
	return out
}
