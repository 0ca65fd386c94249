package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchStatus_IsValid(t *testing.T) {
	valid := []MatchStatus{EXACT_MATCH, CATEGORY_MATCH, EQUIVALENT_MATCH, MISMATCH, NOT_FOUND, UNKNOWN_MATCH}
	for _, ms := range valid {
		if !ms.IsValid() {
			t.Errorf("MatchStatus(%q).IsValid() = false, want true", ms)
		}
	}

	for _, ms := range []MatchStatus{"", "partial", "EXACT_MATCH"} {
		if ms.IsValid() {
			t.Errorf("MatchStatus(%q).IsValid() = true, want false", ms)
		}
	}
}

func TestPriorityBucket_IsValid(t *testing.T) {
	for _, pb := range []PriorityBucket{PRIORITY, STANDARD, UNKNOWN} {
		if !pb.IsValid() {
			t.Errorf("PriorityBucket(%q).IsValid() = false, want true", pb)
		}
	}
	if PriorityBucket("urgent").IsValid() {
		t.Error("PriorityBucket(\"urgent\").IsValid() = true, want false")
	}
}

func TestExtractionMethod_IsValid(t *testing.T) {
	for _, em := range []ExtractionMethod{PATTERN_EXTRACTION, DOCUMENT_INTELLIGENCE, LLM_EXTRACTION} {
		if !em.IsValid() {
			t.Errorf("ExtractionMethod(%q).IsValid() = false, want true", em)
		}
	}
	if ExtractionMethod("ocr").IsValid() {
		t.Error("ExtractionMethod(\"ocr\").IsValid() = true, want false")
	}
}

func TestNewSentinelFact(t *testing.T) {
	fact := NewSentinelFact("DPYD")

	assert.Equal(t, "DPYD", fact.Gene)
	assert.Equal(t, NotFound, fact.Genotype)
	assert.Equal(t, NotFound, fact.Phenotype)
	assert.False(t, fact.HasGenotype())
	assert.False(t, fact.HasPhenotype())
}

func TestRawGeneFact_HasValues(t *testing.T) {
	fact := RawGeneFact{Gene: "CYP2C19", Genotype: "*1/*2", Phenotype: NotFound}

	assert.True(t, fact.HasGenotype())
	assert.False(t, fact.HasPhenotype())

	fact.Phenotype = "Intermediate Metabolizer"
	assert.True(t, fact.HasPhenotype())
}

func TestAnnotatedGeneFact_Raw(t *testing.T) {
	ann := AnnotatedGeneFact{
		Gene:          "TPMT",
		Genotype:      "*1/*3A",
		Phenotype:     "Intermediate Metabolizer",
		CPICPhenotype: "Intermediate Metabolizer",
		MatchStatus:   EXACT_MATCH,
	}

	raw := ann.Raw()
	assert.Equal(t, RawGeneFact{Gene: "TPMT", Genotype: "*1/*3A", Phenotype: "Intermediate Metabolizer"}, raw)
}

func TestPatientInfo_Fields(t *testing.T) {
	info := PatientInfo{
		PatientName: "Jane Doe",
		DateOfBirth: "01/02/1980",
		NPI:         "1234567890",
	}

	fields := info.Fields()
	assert.Len(t, fields, 3)
	assert.Equal(t, "Jane Doe", fields["patient_name"])
	assert.Equal(t, "01/02/1980", fields["date_of_birth"])
	assert.Equal(t, "1234567890", fields["npi"])

	assert.False(t, info.IsEmpty())
	assert.True(t, PatientInfo{}.IsEmpty())
}

func TestPatientInfo_SetGet(t *testing.T) {
	var info PatientInfo

	info.Set("ordering_clinician", "Dr. Smith")
	info.Set("report_id", "RPT-001")
	info.Set("unknown_field", "ignored")

	assert.Equal(t, "Dr. Smith", info.OrderingClinician)
	assert.Equal(t, "RPT-001", info.Get("report_id"))
	assert.Equal(t, "", info.Get("unknown_field"))
}
