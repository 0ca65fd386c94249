// Package feedback provides reviewer feedback storage for extraction and
// annotation defects. Reviewers file discrepancies against processed reports;
// tickets move through a small status workflow until resolved.
package feedback

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category classifies what kind of defect a ticket reports.
type Category string

const (
	CategoryParsingError    Category = "parsing_error"
	CategoryAnnotationError Category = "annotation_error"
	CategoryExportError     Category = "export_error"
	CategoryOther           Category = "other"
)

// IsValid reports whether the category is one of the known values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryParsingError, CategoryAnnotationError, CategoryExportError, CategoryOther:
		return true
	default:
		return false
	}
}

// Status tracks a ticket through review.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInReview Status = "in_review"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

// IsValid reports whether the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInReview, StatusResolved, StatusRejected:
		return true
	default:
		return false
	}
}

// Feedback represents one reviewer ticket.
type Feedback struct {
	ID                int64      `json:"id,omitempty"`
	Reference         string     `json:"reference"` // Short public identifier
	Category          Category   `json:"category"`
	Status            Status     `json:"status"`
	Description       string     `json:"description"`
	Gene              string     `json:"gene,omitempty"`
	GenotypeReported  string     `json:"genotype_reported,omitempty"`
	GenotypeExpected  string     `json:"genotype_expected,omitempty"`
	PhenotypeReported string     `json:"phenotype_reported,omitempty"`
	PhenotypeExpected string     `json:"phenotype_expected,omitempty"`
	PatientRef        string     `json:"patient_ref,omitempty"`
	Filename          string     `json:"filename,omitempty"`
	ResolutionNotes   string     `json:"resolution_notes,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Category Category
	Status   Status
	Gene     string
	Limit    int
	Offset   int
}

// Summary aggregates ticket counts for dashboards.
type Summary struct {
	Total      int64            `json:"total"`
	Pending    int64            `json:"pending"`
	ByCategory map[string]int64 `json:"by_category"`
	ByStatus   map[string]int64 `json:"by_status"`
	ByGene     map[string]int64 `json:"by_gene"`
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Submit validates and stores a new ticket. The reference and timestamps
	// are assigned here; an empty status defaults to pending.
	Submit(ctx context.Context, fb *Feedback) error

	// Get retrieves a ticket by its public reference.
	// Returns (nil, nil) when no ticket matches.
	Get(ctx context.Context, reference string) (*Feedback, error)

	// List returns tickets matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Feedback, error)

	// UpdateStatus moves a ticket through the workflow. Resolving stamps
	// ResolvedAt; any other status clears it.
	UpdateStatus(ctx context.Context, reference string, status Status, notes string) error

	// Summary returns aggregate counts across all tickets.
	Summary(ctx context.Context) (*Summary, error)

	// ExportCSV writes all tickets as CSV, newest first.
	ExportCSV(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// NewReference generates a short public identifier for a ticket.
func NewReference() string {
	return uuid.NewString()[:8]
}

// prepareSubmission validates a new ticket and fills generated fields.
func prepareSubmission(fb *Feedback) error {
	if strings.TrimSpace(fb.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if !fb.Category.IsValid() {
		return fmt.Errorf("invalid category: %q", fb.Category)
	}
	if fb.Status == "" {
		fb.Status = StatusPending
	}
	if !fb.Status.IsValid() {
		return fmt.Errorf("invalid status: %q", fb.Status)
	}
	if fb.Reference == "" {
		fb.Reference = NewReference()
	}
	return nil
}

// defaultListLimit applies when a filter carries no explicit limit.
const defaultListLimit = 50

// csvHeader is the column order used by ExportCSV.
var csvHeader = []string{
	"reference", "category", "status", "description", "gene",
	"genotype_reported", "genotype_expected",
	"phenotype_reported", "phenotype_expected",
	"patient_ref", "filename", "resolution_notes",
	"resolved_at", "created_at", "updated_at",
}

// csvRecord renders one ticket in csvHeader order.
func csvRecord(fb *Feedback) []string {
	resolved := ""
	if fb.ResolvedAt != nil {
		resolved = fb.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		fb.Reference, string(fb.Category), string(fb.Status), fb.Description, fb.Gene,
		fb.GenotypeReported, fb.GenotypeExpected,
		fb.PhenotypeReported, fb.PhenotypeExpected,
		fb.PatientRef, fb.Filename, fb.ResolutionNotes,
		resolved,
		fb.CreatedAt.UTC().Format(time.RFC3339),
		fb.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
