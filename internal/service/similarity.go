package service

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/pgxbridge/internal/domain"
)

var (
	collapseRe      = regexp.MustCompile(`\s+`)
	punctuationRe   = regexp.MustCompile(`[^\w\s]`)
	dateSeparatorRe = regexp.MustCompile(`[,\-/]`)
	numericTokenRe  = regexp.MustCompile(`\d+`)
	starAlleleRe    = regexp.MustCompile(`\*\w+`)
	genotypeNoiseRe = regexp.MustCompile(`[(),\s]`)
)

// isAbsentValue treats the extraction sentinels the same as an empty string.
func isAbsentValue(s string) bool {
	return s == "" || s == domain.NotFound || s == "None"
}

// NormalizeText lowercases, collapses whitespace, and strips punctuation.
// Sentinel values normalize to empty.
func NormalizeText(s string) string {
	if isAbsentValue(s) {
		return ""
	}
	s = strings.ToLower(s)
	s = collapseRe.ReplaceAllString(s, " ")
	s = punctuationRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// NormalizeDate rewrites date separators to spaces so that the numeric
// tokens survive regardless of the printed format.
func NormalizeDate(s string) string {
	if isAbsentValue(s) {
		return ""
	}
	s = dateSeparatorRe.ReplaceAllString(s, " ")
	s = collapseRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeGenotype strips parentheses, commas, and whitespace and
// lowercases, leaving the bare allele notation.
func NormalizeGenotype(s string) string {
	if isAbsentValue(s) {
		return ""
	}
	return strings.ToLower(genotypeNoiseRe.ReplaceAllString(s, ""))
}

// TextSimilarity scores two free-text values in [0, 1]. Both empty is full
// agreement, one empty is none. A substring relation between sufficiently
// long values floors the score at 0.8.
func TextSimilarity(a, b string) float64 {
	na, nb := NormalizeText(a), NormalizeText(b)
	if na == "" && nb == "" {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	sim := sequenceRatio(na, nb)
	if utf8.RuneCountInString(na) > 3 && utf8.RuneCountInString(nb) > 3 &&
		(strings.Contains(na, nb) || strings.Contains(nb, na)) {
		sim = math.Max(sim, 0.8)
	}
	return round3(sim)
}

// DateSimilarity scores two date strings. Format differences wash out: the
// numeric tokens are compared as a set, and the better of token overlap and
// character similarity wins, so "Jan 15, 2024" and "01/15/2024" still agree
// on 15 and 2024.
func DateSimilarity(a, b string) float64 {
	na, nb := NormalizeDate(a), NormalizeDate(b)
	if na == "" && nb == "" {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	seq := sequenceRatio(na, nb)
	tokensA := stringSet(numericTokenRe.FindAllString(na, -1))
	tokensB := stringSet(numericTokenRe.FindAllString(nb, -1))
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return round3(seq)
	}
	return round3(math.Max(jaccard(tokensA, tokensB), seq))
}

// GenotypeSimilarity scores two diplotype strings. The raw values are
// checked for emptiness before normalization, so a present sentinel against
// a missing value scores zero rather than full agreement. Star-allele
// notation on both sides compares as allele sets.
func GenotypeSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		if a == "" && b == "" {
			return 1.0
		}
		return 0.0
	}

	na, nb := NormalizeGenotype(a), NormalizeGenotype(b)
	if na == "" && nb == "" {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	if strings.Contains(na, "*") && strings.Contains(nb, "*") {
		allelesA := stringSet(starAlleleRe.FindAllString(na, -1))
		allelesB := stringSet(starAlleleRe.FindAllString(nb, -1))
		if setsEqual(allelesA, allelesB) {
			return 1.0
		}
		return round3(jaccard(allelesA, allelesB))
	}

	return round3(sequenceRatio(na, nb))
}

// FieldSimilarity dispatches to the comparator matching the field name:
// date-like names use the date comparator, genotype names the genotype
// comparator, everything else plain text.
func FieldSimilarity(name, a, b string) float64 {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "date") || strings.Contains(lower, "birth"):
		return DateSimilarity(a, b)
	case strings.Contains(lower, "genotype"):
		return GenotypeSimilarity(a, b)
	default:
		return TextSimilarity(a, b)
	}
}

// ComparePatientInfo scores every field either side populated. A field only
// one side reported compares against empty and scores zero.
func ComparePatientInfo(a, b domain.PatientInfo) map[string]float64 {
	fieldsA, fieldsB := a.Fields(), b.Fields()
	names := make(map[string]bool, len(fieldsA)+len(fieldsB))
	for name := range fieldsA {
		names[name] = true
	}
	for name := range fieldsB {
		names[name] = true
	}

	out := make(map[string]float64, len(names))
	for name := range names {
		out[name] = FieldSimilarity(name, fieldsA[name], fieldsB[name])
	}
	return out
}

// CompareGeneFacts scores per-gene agreement over the union of genes either
// run reported. Duplicate genes within one run keep the first occurrence.
func CompareGeneFacts(a, b []domain.RawGeneFact) map[string]domain.GeneSimilarity {
	factsA, factsB := factsByGene(a), factsByGene(b)
	genes := make(map[string]bool, len(factsA)+len(factsB))
	for gene := range factsA {
		genes[gene] = true
	}
	for gene := range factsB {
		genes[gene] = true
	}

	out := make(map[string]domain.GeneSimilarity, len(genes))
	for gene := range genes {
		fa, fb := factsA[gene], factsB[gene]
		sim := domain.GeneSimilarity{
			Genotype:  GenotypeSimilarity(fa.Genotype, fb.Genotype),
			Phenotype: FieldSimilarity("phenotype", fa.Phenotype, fb.Phenotype),
		}
		sim.Overall = round3((sim.Genotype + sim.Phenotype) / 2)
		out[gene] = sim
	}
	return out
}

// CompareRuns builds the full similarity report between two extraction runs
// of the same document. Symmetric: CompareRuns(a, b) equals CompareRuns(b, a).
func CompareRuns(a, b *domain.DocumentResult) *domain.SimilarityReport {
	report := &domain.SimilarityReport{
		PatientFields: ComparePatientInfo(a.Patient, b.Patient),
		Genes:         CompareGeneFacts(a.RawFacts(), b.RawFacts()),
	}

	if len(report.PatientFields) > 0 {
		var scores []float64
		for _, s := range report.PatientFields {
			scores = append(scores, s)
		}
		report.PatientScore = round3(mean(scores))
	}
	if len(report.Genes) > 0 {
		var scores []float64
		for _, g := range report.Genes {
			scores = append(scores, g.Overall)
		}
		report.GeneScore = round3(mean(scores))
	}

	switch {
	case len(report.PatientFields) > 0 && len(report.Genes) > 0:
		report.OverallScore = round3((report.PatientScore + report.GeneScore) / 2)
	case len(report.Genes) > 0:
		report.OverallScore = report.GeneScore
	default:
		report.OverallScore = report.PatientScore
	}
	return report
}

func factsByGene(facts []domain.RawGeneFact) map[string]domain.RawGeneFact {
	out := make(map[string]domain.RawGeneFact, len(facts))
	for _, f := range facts {
		if _, seen := out[f.Gene]; !seen {
			out[f.Gene] = f
		}
	}
	return out
}

func sequenceRatio(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

func stringSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}

func jaccard(a, b map[string]bool) float64 {
	union := make(map[string]bool, len(a)+len(b))
	intersection := 0
	for v := range a {
		union[v] = true
	}
	for v := range b {
		if a[v] {
			intersection++
		}
		union[v] = true
	}
	if len(union) == 0 {
		return 0.0
	}
	return float64(intersection) / float64(len(union))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
