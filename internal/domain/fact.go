package domain

import (
	"time"
)

// Sentinel values shared across the pipeline.
const (
	// NotFound marks an extraction field with no usable value. Extraction
	// never emits empty strings; absence is always this literal.
	NotFound = "Not found"

	// HighRiskMarker is the EHR priority literal that flags a phenotype as
	// clinically actionable. Comparison against it is exact.
	HighRiskMarker = "Abnormal/Priority/High Risk"
)

// Core Enums

// MatchStatus describes how a reported phenotype relates to the CPIC
// reference phenotype for the same gene and diplotype.
type MatchStatus string

const (
	EXACT_MATCH      MatchStatus = "exact_match"
	CATEGORY_MATCH   MatchStatus = "category_match"
	EQUIVALENT_MATCH MatchStatus = "equivalent_match"
	MISMATCH         MatchStatus = "mismatch"
	NOT_FOUND        MatchStatus = "not_found"
	UNKNOWN_MATCH    MatchStatus = "unknown"
)

// IsValid validates the match status.
func (ms MatchStatus) IsValid() bool {
	switch ms {
	case EXACT_MATCH, CATEGORY_MATCH, EQUIVALENT_MATCH, MISMATCH, NOT_FOUND, UNKNOWN_MATCH:
		return true
	default:
		return false
	}
}

// String returns the string representation of the match status.
func (ms MatchStatus) String() string {
	return string(ms)
}

// PriorityBucket is the clinical urgency grouping used to order findings on
// generated reports.
type PriorityBucket string

const (
	PRIORITY PriorityBucket = "priority"
	STANDARD PriorityBucket = "standard"
	UNKNOWN  PriorityBucket = "unknown"
)

// IsValid validates the priority bucket.
func (pb PriorityBucket) IsValid() bool {
	switch pb {
	case PRIORITY, STANDARD, UNKNOWN:
		return true
	default:
		return false
	}
}

// String returns the string representation of the priority bucket.
func (pb PriorityBucket) String() string {
	return string(pb)
}

// ExtractionMethod identifies which upstream producer yielded a set of facts.
// The values are wire-stable identifiers shared with downstream consumers.
type ExtractionMethod string

const (
	PATTERN_EXTRACTION    ExtractionMethod = "pattern"
	DOCUMENT_INTELLIGENCE ExtractionMethod = "document_intelligence"
	LLM_EXTRACTION        ExtractionMethod = "azure_openai_llm"
)

// IsValid validates the extraction method.
func (em ExtractionMethod) IsValid() bool {
	switch em {
	case PATTERN_EXTRACTION, DOCUMENT_INTELLIGENCE, LLM_EXTRACTION:
		return true
	default:
		return false
	}
}

// String returns the string representation of the extraction method.
func (em ExtractionMethod) String() string {
	return string(em)
}

// Core Data Models

// RawGeneFact is one extracted (gene, genotype, phenotype) triple before
// reference annotation. Absent values carry the NotFound sentinel, never "".
type RawGeneFact struct {
	Gene      string `json:"gene"`
	Genotype  string `json:"genotype"`
	Phenotype string `json:"phenotype"`
}

// NewSentinelFact returns the fact emitted for a gene the extractor could not
// resolve.
func NewSentinelFact(gene string) RawGeneFact {
	return RawGeneFact{Gene: gene, Genotype: NotFound, Phenotype: NotFound}
}

// HasGenotype reports whether the genotype field carries a real value.
func (f RawGeneFact) HasGenotype() bool {
	return f.Genotype != "" && f.Genotype != NotFound
}

// HasPhenotype reports whether the phenotype field carries a real value.
func (f RawGeneFact) HasPhenotype() bool {
	return f.Phenotype != "" && f.Phenotype != NotFound
}

// AnnotatedGeneFact is a RawGeneFact enriched with the CPIC reference entry
// it resolved to and the outcome of phenotype validation. When the lookup
// missed, every CPIC field is empty, IsHighRisk is false, and MatchStatus is
// NOT_FOUND.
type AnnotatedGeneFact struct {
	Gene              string      `json:"gene"`
	Genotype          string      `json:"genotype"`
	Phenotype         string      `json:"phenotype"`
	CPICPhenotype     string      `json:"cpic_phenotype,omitempty"`
	CPICPhenotypeFull string      `json:"cpic_phenotype_full,omitempty"`
	CPICCategory      string      `json:"cpic_category,omitempty"`
	CPICActivityScore string      `json:"cpic_activity_score,omitempty"`
	CPICEHRPriority   string      `json:"cpic_ehr_priority,omitempty"`
	IsHighRisk        bool        `json:"is_high_risk"`
	MatchStatus       MatchStatus `json:"match_status"`
	ValidationMessage string      `json:"validation_message"`
}

// Raw returns the extraction triple the annotation was built from.
func (a AnnotatedGeneFact) Raw() RawGeneFact {
	return RawGeneFact{Gene: a.Gene, Genotype: a.Genotype, Phenotype: a.Phenotype}
}

// SummaryStats aggregates annotation outcomes across one document.
type SummaryStats struct {
	TotalGenes   int     `json:"total_genes"`
	Found        int     `json:"cpic_found"`
	NotFound     int     `json:"cpic_not_found"`
	HighRisk     int     `json:"high_risk_count"`
	ExactMatches int     `json:"exact_matches"`
	Mismatches   int     `json:"mismatches"`
	MatchRate    float64 `json:"match_rate"`
}

// ReportFinding is an annotated fact placed into a priority bucket, carrying
// the medication examples rendered next to it on clinician reports.
type ReportFinding struct {
	AnnotatedGeneFact
	Bucket      PriorityBucket `json:"priority_category"`
	Medications string         `json:"medication_examples,omitempty"`
}

// ReportData groups a document's findings by clinical urgency for template
// population. Order within each bucket follows extraction order.
type ReportData struct {
	Patient  PatientInfo     `json:"patient"`
	Priority []ReportFinding `json:"priority"`
	Standard []ReportFinding `json:"standard"`
	Unknown  []ReportFinding `json:"unknown"`
}

// DocumentResult is the full outcome of processing one document through the
// pipeline: extraction, annotation, categorization, and summary statistics.
type DocumentResult struct {
	RunID          string              `json:"run_id"`
	Method         ExtractionMethod    `json:"extraction_method"`
	Filename       string              `json:"filename,omitempty"`
	Patient        PatientInfo         `json:"patient_info"`
	Facts          []AnnotatedGeneFact `json:"pgx_genes"`
	Stats          SummaryStats        `json:"cpic_summary"`
	Report         ReportData          `json:"report_data"`
	ProcessingTime float64             `json:"processing_time_seconds"`
	Timestamp      time.Time           `json:"timestamp"`
}

// RawFacts returns the extraction triples underlying the annotated facts, in
// document order.
func (r *DocumentResult) RawFacts() []RawGeneFact {
	facts := make([]RawGeneFact, len(r.Facts))
	for i, f := range r.Facts {
		facts[i] = f.Raw()
	}
	return facts
}
