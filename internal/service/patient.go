package service

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgxbridge/internal/domain"
)

// patientField is one demographic field with its label aliases, most
// specific alias first. Field order mirrors the report header layout.
type patientField struct {
	Name    string
	Aliases []string
}

var patientFields = []patientField{
	{"patient_name", []string{"Patient Name", "Name", "Patient"}},
	{"date_of_birth", []string{"Date of Birth", "DOB", "Birth Date"}},
	{"test", []string{"Test", "Test Type", "Assay"}},
	{"report_date", []string{"Report Date", "Date", "Reported"}},
	{"report_id", []string{"Report ID", "ID", "Report Number"}},
	{"cohort", []string{"Cohort", "Population"}},
	{"sample_type", []string{"Sample Type", "Specimen Type", "Sample"}},
	{"sample_collection_date", []string{"Sample Collection Date", "Collection Date", "Collected"}},
	{"sample_received_date", []string{"Sample Received Date", "Received Date", "Received"}},
	{"processed_date", []string{"Processed Date", "Processing Date", "Processed"}},
	{"ordering_clinician", []string{"Ordering Clinician", "Clinician", "Physician", "Doctor"}},
	{"npi", []string{"NPI", "NPI Number"}},
	{"indication_for_testing", []string{"Indication for Testing", "Indication", "Testing Indication"}},
}

var (
	horizontalSpaceRe = regexp.MustCompile(`[ \t]+`)
	blankLinesRe      = regexp.MustCompile(`\n\s*\n`)
	fieldSpaceRe      = regexp.MustCompile(`\s+`)
	junkValueRe       = regexp.MustCompile(`^[\s\-_|:]+$`)
)

// PatientParser extracts patient demographics from the report header by
// trying labeled-value pattern shapes per field alias. The first pattern
// that yields a usable value wins for that field.
type PatientParser struct {
	logger   *logrus.Logger
	patterns []compiledField
}

type compiledField struct {
	name    string
	regexps []*regexp.Regexp
}

// NewPatientParser compiles the alias pattern table once up front.
func NewPatientParser(logger *logrus.Logger) *PatientParser {
	p := &PatientParser{logger: logger}
	for _, field := range patientFields {
		cf := compiledField{name: field.Name}
		for _, alias := range field.Aliases {
			cf.regexps = append(cf.regexps, aliasPatterns(alias)...)
		}
		p.patterns = append(p.patterns, cf)
	}
	return p
}

// aliasPatterns builds the pattern shapes tried for one alias, in order:
// same-line colon form, next-line form, run-terminated form, and the
// pipe/tab delimited table form.
func aliasPatterns(alias string) []*regexp.Regexp {
	name := regexp.QuoteMeta(alias)
	return []*regexp.Regexp{
		regexp.MustCompile(`(?im)` + name + `\s*:?\s*([^\n\r]+)`),
		regexp.MustCompile(`(?im)` + name + `\s*:?\s*\n\s*([^\n\r]+)`),
		regexp.MustCompile(`(?im)` + name + `\s+([^\n\r\t]+?)(?:\s{2,}|\t|\n|$)`),
		regexp.MustCompile(`(?im)` + name + `\s*(?:\||\t)\s*([^\n\r|]+)`),
	}
}

// Parse pulls whatever demographic fields the text yields. Missing fields
// stay empty; Parse never fails.
func (p *PatientParser) Parse(text string) domain.PatientInfo {
	cleaned := horizontalSpaceRe.ReplaceAllString(text, " ")
	cleaned = blankLinesRe.ReplaceAllString(cleaned, "\n")

	var info domain.PatientInfo
	found := 0
	for _, field := range p.patterns {
		for _, re := range field.regexps {
			m := re.FindStringSubmatch(cleaned)
			if m == nil {
				continue
			}
			value := cleanFieldValue(m[1])
			if value == "" {
				continue
			}
			info.Set(field.name, value)
			found++
			p.logger.WithFields(logrus.Fields{
				"field": field.name,
				"value": value,
			}).Debug("Patient field extracted")
			break
		}
	}

	p.logger.WithField("fields_found", found).Debug("Patient info parsing completed")
	return info
}

// cleanFieldValue normalizes a captured value and rejects junk captures
// consisting only of separator punctuation.
func cleanFieldValue(raw string) string {
	value := fieldSpaceRe.ReplaceAllString(raw, " ")
	value = strings.TrimSpace(strings.Trim(value, "|"))
	if value == "" || junkValueRe.MatchString(value) {
		return ""
	}
	return value
}
