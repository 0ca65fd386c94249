package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgxbridge/internal/domain"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Intermediate Metabolizer", "intermediate metabolizer"},
		{"  Dr. Sarah   Chen  ", "dr sarah chen"},
		{"Not found", ""},
		{"None", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeText(tt.in))
	}
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "01 15 2024", NormalizeDate("01/15/2024"))
	assert.Equal(t, "2024 01 15", NormalizeDate("2024-01-15"))
	assert.Equal(t, "jan 15 2024", NormalizeDate("Jan 15, 2024"))
	assert.Equal(t, "", NormalizeDate("Not found"))
}

func TestNormalizeGenotype(t *testing.T) {
	assert.Equal(t, "*1/*2", NormalizeGenotype("*1 / *2"))
	assert.Equal(t, "*1/*2", NormalizeGenotype("(*1/*2)"))
	assert.Equal(t, "reference/reference", NormalizeGenotype("Reference/Reference"))
	assert.Equal(t, "", NormalizeGenotype("Not found"))
}

func TestTextSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"both empty", "", "", 1.0},
		{"sentinel equals empty", "Not found", "", 1.0},
		{"one empty", "abc", "", 0.0},
		{"identical after normalization", "Intermediate  Metabolizer", "intermediate metabolizer", 1.0},
		{"punctuation ignored", "Dr. Chen", "Dr Chen", 1.0},
		{"substring boost", "pharmacogenomics panel", "panel", 0.8},
		{"no boost below length gate", "abc", "abc extra", 0.5},
		{"character ratio", "abcd", "abcf", 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextSimilarity(tt.a, tt.b))
		})
	}
}

func TestTextSimilarity_Symmetric(t *testing.T) {
	assert.Equal(t, TextSimilarity("panel", "pharmacogenomics panel"), TextSimilarity("pharmacogenomics panel", "panel"))
}

func TestDateSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"both empty", "", "", 1.0},
		{"one missing", "Not found", "01/15/2024", 0.0},
		{"identical", "01/15/2024", "01/15/2024", 1.0},
		{"same date different separators", "01/15/2024", "2024-01-15", 1.0},
		{"month name versus numeric", "01/15/2024", "Jan 15, 2024", 0.762},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateSimilarity(tt.a, tt.b))
		})
	}
}

func TestGenotypeSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"both raw empty", "", "", 1.0},
		{"one raw empty", "", "*1/*1", 0.0},
		{"both sentinel", "Not found", "Not found", 1.0},
		{"sentinel against raw empty", "Not found", "", 0.0},
		{"sentinel against value", "Not found", "*1/*1", 0.0},
		{"allele order ignored", "*1/*2", "*2/*1", 1.0},
		{"allele overlap", "*1/*2", "*1/*3", 0.333},
		{"parentheses stripped", "(*1/*2)", "*1/*2", 1.0},
		{"inner whitespace stripped", "*1 / *2", "*1/*2", 1.0},
		{"non star alleles use character ratio", "A/A", "G/A", 0.667},
		{"reference call case folded", "Reference/Reference", "REFERENCE/reference", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenotypeSimilarity(tt.a, tt.b))
		})
	}
}

func TestFieldSimilarity_Dispatch(t *testing.T) {
	// Date comparator recognizes the same date across formats.
	assert.Equal(t, 1.0, FieldSimilarity("date_of_birth", "01/15/2024", "2024-01-15"))
	assert.Equal(t, 1.0, FieldSimilarity("sample_collection_date", "01/15/2024", "2024-01-15"))

	// Genotype comparator treats a sentinel against nothing as disagreement,
	// where the text comparator would call it full agreement.
	assert.Equal(t, 0.0, FieldSimilarity("genotype", "Not found", ""))
	assert.Equal(t, 1.0, FieldSimilarity("phenotype", "Not found", ""))
}

func TestComparePatientInfo(t *testing.T) {
	a := domain.PatientInfo{PatientName: "John Smith", DateOfBirth: "01/15/2024"}
	b := domain.PatientInfo{PatientName: "John Smith", ReportID: "RPT-77"}

	scores := ComparePatientInfo(a, b)
	assert.Len(t, scores, 3)
	assert.Equal(t, 1.0, scores["patient_name"])
	assert.Equal(t, 0.0, scores["date_of_birth"])
	assert.Equal(t, 0.0, scores["report_id"])
}

func TestComparePatientInfo_BothEmpty(t *testing.T) {
	scores := ComparePatientInfo(domain.PatientInfo{}, domain.PatientInfo{})
	assert.Empty(t, scores)
}

func TestCompareGeneFacts(t *testing.T) {
	a := []domain.RawGeneFact{
		{Gene: "CYP2C19", Genotype: "*1/*2", Phenotype: "Intermediate Metabolizer"},
		{Gene: "TPMT", Genotype: domain.NotFound, Phenotype: domain.NotFound},
	}
	b := []domain.RawGeneFact{
		{Gene: "CYP2C19", Genotype: "*2/*1", Phenotype: "Intermediate Metabolizer"},
	}

	scores := CompareGeneFacts(a, b)
	assert.Len(t, scores, 2)

	assert.Equal(t, 1.0, scores["CYP2C19"].Genotype)
	assert.Equal(t, 1.0, scores["CYP2C19"].Phenotype)
	assert.Equal(t, 1.0, scores["CYP2C19"].Overall)

	// TPMT exists only on one side with sentinel values: the genotype
	// comparator scores the sentinel against a missing fact as zero, the
	// text comparator scores it as full agreement.
	assert.Equal(t, 0.0, scores["TPMT"].Genotype)
	assert.Equal(t, 1.0, scores["TPMT"].Phenotype)
	assert.Equal(t, 0.5, scores["TPMT"].Overall)
}

func TestCompareRuns(t *testing.T) {
	a := &domain.DocumentResult{
		Patient: domain.PatientInfo{PatientName: "John Smith"},
		Facts: []domain.AnnotatedGeneFact{
			{Gene: "CYP2C19", Genotype: "*1/*2", Phenotype: "Intermediate Metabolizer"},
		},
	}
	b := &domain.DocumentResult{
		Patient: domain.PatientInfo{PatientName: "John Smith"},
		Facts: []domain.AnnotatedGeneFact{
			{Gene: "CYP2C19", Genotype: "*2/*1", Phenotype: "Intermediate Metabolizer"},
		},
	}

	report := CompareRuns(a, b)
	assert.Equal(t, 1.0, report.PatientScore)
	assert.Equal(t, 1.0, report.GeneScore)
	assert.Equal(t, 1.0, report.OverallScore)
}

func TestCompareRuns_Symmetric(t *testing.T) {
	a := &domain.DocumentResult{
		Patient: domain.PatientInfo{PatientName: "John Smith", DateOfBirth: "01/15/2024"},
		Facts: []domain.AnnotatedGeneFact{
			{Gene: "CYP2C19", Genotype: "*1/*2", Phenotype: "Intermediate Metabolizer"},
			{Gene: "TPMT", Genotype: domain.NotFound, Phenotype: domain.NotFound},
		},
	}
	b := &domain.DocumentResult{
		Patient: domain.PatientInfo{PatientName: "Jon Smith"},
		Facts: []domain.AnnotatedGeneFact{
			{Gene: "CYP2C19", Genotype: "*1/*3", Phenotype: "Poor Metabolizer"},
		},
	}

	assert.Equal(t, CompareRuns(a, b), CompareRuns(b, a))
}

func TestCompareRuns_NoPatientInfo(t *testing.T) {
	a := &domain.DocumentResult{
		Facts: []domain.AnnotatedGeneFact{
			{Gene: "CYP2C19", Genotype: "*1/*2", Phenotype: "Intermediate Metabolizer"},
		},
	}
	b := &domain.DocumentResult{
		Facts: []domain.AnnotatedGeneFact{
			{Gene: "CYP2C19", Genotype: "*1/*2", Phenotype: "Intermediate Metabolizer"},
		},
	}

	report := CompareRuns(a, b)
	assert.Empty(t, report.PatientFields)
	assert.Equal(t, 0.0, report.PatientScore)
	assert.Equal(t, 1.0, report.OverallScore)
}
