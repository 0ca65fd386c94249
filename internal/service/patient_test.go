package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const patientHeader = `Pharmacogenomics Report

Patient Name: John Smith
Date of Birth: 03/15/1985
Test: PGx Comprehensive Panel
Report Date: 01/20/2024
Report ID: RPT-2024-0117
Cohort: Cardiology
Sample Type: Whole Blood
Sample Collection Date: 01/12/2024
Sample Received Date: 01/13/2024
Processed Date: 01/18/2024
Ordering Clinician: Dr. Sarah Chen
NPI: 1234567890
Indication for Testing: Clopidogrel therapy
`

func TestPatientParser_Parse_LabeledHeader(t *testing.T) {
	p := NewPatientParser(testLogger())
	info := p.Parse(patientHeader)

	assert.Equal(t, "John Smith", info.PatientName)
	assert.Equal(t, "03/15/1985", info.DateOfBirth)
	assert.Equal(t, "PGx Comprehensive Panel", info.Test)
	assert.Equal(t, "01/20/2024", info.ReportDate)
	assert.Equal(t, "RPT-2024-0117", info.ReportID)
	assert.Equal(t, "Cardiology", info.Cohort)
	assert.Equal(t, "Whole Blood", info.SampleType)
	assert.Equal(t, "01/12/2024", info.SampleCollectionDate)
	assert.Equal(t, "01/13/2024", info.SampleReceivedDate)
	assert.Equal(t, "01/18/2024", info.ProcessedDate)
	assert.Equal(t, "Dr. Sarah Chen", info.OrderingClinician)
	assert.Equal(t, "1234567890", info.NPI)
	assert.Equal(t, "Clopidogrel therapy", info.IndicationForTesting)
}

func TestPatientParser_Parse_Aliases(t *testing.T) {
	text := "DOB: 03/15/1985\nPhysician: Dr. Busch\nAssay: PGx Panel v2\n"
	p := NewPatientParser(testLogger())
	info := p.Parse(text)

	assert.Equal(t, "03/15/1985", info.DateOfBirth)
	assert.Equal(t, "Dr. Busch", info.OrderingClinician)
	assert.Equal(t, "PGx Panel v2", info.Test)
}

func TestPatientParser_Parse_ValueOnNextLine(t *testing.T) {
	text := "Patient Name\nJane Roe\nTest: PGx Panel\n"
	p := NewPatientParser(testLogger())
	info := p.Parse(text)

	assert.Equal(t, "Jane Roe", info.PatientName)
}

func TestPatientParser_Parse_PipeDelimited(t *testing.T) {
	text := "Patient Name | Jane Roe\nReport ID | RPT-77\nTest | PGx Panel\n"
	p := NewPatientParser(testLogger())
	info := p.Parse(text)

	assert.Equal(t, "Jane Roe", info.PatientName)
	assert.Equal(t, "RPT-77", info.ReportID)
	assert.Equal(t, "PGx Panel", info.Test)
}

func TestPatientParser_Parse_RejectsJunkValues(t *testing.T) {
	text := "Cohort: ----\nNPI: ---\nTest: PGx Panel\n"
	p := NewPatientParser(testLogger())
	info := p.Parse(text)

	assert.Empty(t, info.Cohort)
	assert.Empty(t, info.NPI)
	assert.Equal(t, "PGx Panel", info.Test)
}

func TestPatientParser_Parse_CollapsesWhitespace(t *testing.T) {
	text := "Patient Name:   John\t\tSmith\nTest: PGx Panel\n"
	p := NewPatientParser(testLogger())
	info := p.Parse(text)

	assert.Equal(t, "John Smith", info.PatientName)
}

func TestPatientParser_Parse_EmptyText(t *testing.T) {
	p := NewPatientParser(testLogger())
	info := p.Parse("")

	assert.True(t, info.IsEmpty())
}

func TestCleanFieldValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" John  Smith ", "John Smith"},
		{"| RPT-77 |", "RPT-77"},
		{"____", ""},
		{"--", ""},
		{":", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanFieldValue(tt.in))
	}
}
