package service

import (
	"strings"

	"github.com/pgxbridge/internal/domain"
)

// priorityMarkers force the priority bucket when present anywhere in the
// EHR priority text.
var priorityMarkers = []string{"abnormal", "high risk", "priority"}

// Categorize assigns the clinical review bucket for one annotated fact.
// CYP2C19 is always priority regardless of its EHR priority text; otherwise
// the bucket follows the priority text, with the priority markers taking
// precedence over the routine markers.
func Categorize(fact domain.AnnotatedGeneFact) domain.PriorityBucket {
	if strings.Contains(strings.ToUpper(fact.Gene), "CYP2C19") {
		return domain.PRIORITY
	}

	priority := strings.ToLower(fact.CPICEHRPriority)
	for _, marker := range priorityMarkers {
		if strings.Contains(priority, marker) {
			return domain.PRIORITY
		}
	}

	if strings.HasPrefix(priority, "normal") ||
		strings.Contains(priority, "routine") ||
		strings.Contains(priority, "low risk") {
		return domain.STANDARD
	}

	return domain.UNKNOWN
}

// BuildReportData buckets annotated facts for clinical review and attaches
// the example medication list per gene. Order within each bucket follows the
// input order.
func BuildReportData(patient domain.PatientInfo, facts []domain.AnnotatedGeneFact) domain.ReportData {
	report := domain.ReportData{Patient: patient}
	for _, fact := range facts {
		finding := domain.ReportFinding{
			AnnotatedGeneFact: fact,
			Bucket:            Categorize(fact),
			Medications:       domain.MedicationExamples(fact.Gene),
		}
		switch finding.Bucket {
		case domain.PRIORITY:
			report.Priority = append(report.Priority, finding)
		case domain.STANDARD:
			report.Standard = append(report.Standard, finding)
		default:
			report.Unknown = append(report.Unknown, finding)
		}
	}
	return report
}
