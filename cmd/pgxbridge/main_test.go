package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgxbridge/internal/domain"
)

const sampleReport = `Pharmacogenomics Report

Patient Name: John Smith
Date of Birth: 03/15/1985

Patient Genotype

CYP2C19
*1/*2
CYP2C19 Intermediate Metabolizer

CYP2D6
CYP2D6 Poor Metabolizer
*4/*4
`

const sampleReference = `Gene,Diplotype,Phenotype_CPIC_Format,Phenotype_Simplified,Phenotype_Category,Activity_Score,EHR_Priority
CYP2C19,*1/*2,Intermediate Metabolizer,CYP2C19 Intermediate Metabolizer,Intermediate,,Abnormal/Priority/High Risk
CYP2D6,*4/*4,Poor Metabolizer,CYP2D6 Poor Metabolizer,Poor,0.0,Abnormal/Priority/High Risk
`

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

// runCLI executes the root command against args and returns stdout. Package
// level flag state is reset afterwards so tests stay independent.
func runCLI(t *testing.T, args ...string) []byte {
	t.Helper()
	t.Cleanup(func() {
		flagConfig, flagReference, flagLogLevel = "", "", "warn"
	})

	var out, errs bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errs)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), "stderr: %s", errs.String())
	return out.Bytes()
}

func TestExtractCommand(t *testing.T) {
	report := writeFile(t, "report.txt", sampleReport)

	out := runCLI(t, "extract", report)

	var got struct {
		Patient domain.PatientInfo   `json:"patient_info"`
		Facts   []domain.RawGeneFact `json:"facts"`
	}
	require.NoError(t, json.Unmarshal(out, &got))

	assert.Equal(t, "John Smith", got.Patient.PatientName)
	assert.Equal(t, "03/15/1985", got.Patient.DateOfBirth)
	require.Len(t, got.Facts, len(domain.Genes()))
	assert.Equal(t, domain.NewSentinelFact("CYP2B6"), got.Facts[0])
	assert.Equal(t, domain.RawGeneFact{
		Gene:      "CYP2C19",
		Genotype:  "*1/*2",
		Phenotype: "CYP2C19 Intermediate Metabolizer",
	}, got.Facts[1])
}

func TestExtractCommand_MissingFile(t *testing.T) {
	var out, errs bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errs)
	rootCmd.SetArgs([]string{"extract", filepath.Join(t.TempDir(), "missing.txt")})

	assert.Error(t, rootCmd.Execute())
}

func TestAnnotateCommand(t *testing.T) {
	report := writeFile(t, "report.txt", sampleReport)
	table := writeFile(t, "cpic.csv", sampleReference)

	out := runCLI(t, "annotate", report, "--reference", table)

	var result domain.DocumentResult
	require.NoError(t, json.Unmarshal(out, &result))

	assert.Equal(t, domain.PATTERN_EXTRACTION, result.Method)
	assert.Equal(t, "report.txt", result.Filename)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Facts, len(domain.Genes()))

	assert.Equal(t, domain.EXACT_MATCH, result.Facts[1].MatchStatus)
	assert.True(t, result.Facts[1].IsHighRisk)
	assert.Equal(t, 2, result.Stats.Found)
	assert.Equal(t, 11, result.Stats.NotFound)
	assert.Equal(t, 2, result.Stats.HighRisk)
	require.Len(t, result.Report.Priority, 2)
	assert.Equal(t, "CYP2C19", result.Report.Priority[0].Gene)
}

func TestCompareCommand(t *testing.T) {
	report := writeFile(t, "report.txt", sampleReport)
	table := writeFile(t, "cpic.csv", sampleReference)

	dir := t.TempDir()
	runA := filepath.Join(dir, "a.json")
	runB := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(runA, runCLI(t, "annotate", report, "--reference", table), 0o600))
	require.NoError(t, os.WriteFile(runB, runCLI(t, "annotate", report, "--reference", table), 0o600))

	out := runCLI(t, "compare", runA, runB)

	var sim domain.SimilarityReport
	require.NoError(t, json.Unmarshal(out, &sim))
	assert.Equal(t, 1.0, sim.OverallScore)
	assert.Equal(t, 1.0, sim.Genes["CYP2C19"].Overall)
	assert.Equal(t, 1.0, sim.PatientFields["patient_name"])
}

func TestCompareCommand_BadJSON(t *testing.T) {
	path := writeFile(t, "garbage.json", "not json")

	var out, errs bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errs)
	rootCmd.SetArgs([]string{"compare", path, path})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestReferenceStatsCommand(t *testing.T) {
	table := writeFile(t, "cpic.csv", sampleReference)

	out := runCLI(t, "reference", "stats", "--reference", table)

	var stats struct {
		Path    string         `json:"path"`
		Rows    int            `json:"rows"`
		Genes   int            `json:"genes"`
		PerGene map[string]int `json:"per_gene"`
	}
	require.NoError(t, json.Unmarshal(out, &stats))

	assert.Equal(t, table, stats.Path)
	assert.Equal(t, 2, stats.Rows)
	assert.Equal(t, 2, stats.Genes)
	assert.Equal(t, 1, stats.PerGene["CYP2C19"])
}
