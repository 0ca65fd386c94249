package feedback

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/pgxbridge/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL feedback store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL feedback store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// pgPlaceholder numbers Postgres query parameters.
func pgPlaceholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// Submit validates and stores a new ticket.
func (s *PostgresStore) Submit(ctx context.Context, fb *Feedback) error {
	if err := prepareSubmission(fb); err != nil {
		return err
	}

	now := time.Now()
	fb.CreatedAt = now
	fb.UpdatedAt = now

	query := `
		INSERT INTO feedback (
			reference, category, status, description, gene,
			genotype_reported, genotype_expected,
			phenotype_reported, phenotype_expected,
			patient_ref, filename, resolution_notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		fb.Reference, string(fb.Category), string(fb.Status), fb.Description, fb.Gene,
		fb.GenotypeReported, fb.GenotypeExpected,
		fb.PhenotypeReported, fb.PhenotypeExpected,
		fb.PatientRef, fb.Filename, fb.ResolutionNotes,
		now, now,
	).Scan(&fb.ID)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	return nil
}

// Get retrieves a ticket by its public reference.
func (s *PostgresStore) Get(ctx context.Context, reference string) (*Feedback, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+feedbackColumns+" FROM feedback WHERE reference = $1 LIMIT 1",
		reference,
	)

	fb, err := scanFeedback(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return fb, nil
}

// List returns tickets matching the filter, newest first.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*Feedback, error) {
	query, args := buildListQuery(filter, "", pgPlaceholder)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var result []*Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, fb)
	}
	return result, rows.Err()
}

// UpdateStatus moves a ticket through the workflow.
func (s *PostgresStore) UpdateStatus(ctx context.Context, reference string, status Status, notes string) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %q", status)
	}

	now := time.Now()
	var resolvedAt interface{}
	if status == StatusResolved {
		resolvedAt = now
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE feedback SET
			status = $1,
			resolution_notes = $2,
			resolved_at = $3,
			updated_at = $4
		WHERE reference = $5
	`, string(status), notes, resolvedAt, now, reference)
	if err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("feedback %s: %w", reference, domain.ErrNotFound)
	}
	return nil
}

// Summary returns aggregate counts across all tickets.
func (s *PostgresStore) Summary(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		ByCategory: make(map[string]int64),
		ByStatus:   make(map[string]int64),
		ByGene:     make(map[string]int64),
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback").Scan(&summary.Total); err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}

	if err := groupCounts(ctx, s.db, "SELECT category, COUNT(*) FROM feedback GROUP BY category", summary.ByCategory); err != nil {
		return nil, err
	}
	if err := groupCounts(ctx, s.db, "SELECT status, COUNT(*) FROM feedback GROUP BY status", summary.ByStatus); err != nil {
		return nil, err
	}
	if err := groupCounts(ctx, s.db, "SELECT gene, COUNT(*) FROM feedback WHERE gene != '' GROUP BY gene", summary.ByGene); err != nil {
		return nil, err
	}

	summary.Pending = summary.ByStatus[string(StatusPending)]
	return summary, nil
}

// ExportCSV writes all tickets as CSV, newest first.
func (s *PostgresStore) ExportCSV(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, Filter{Limit: maxExportLimit})
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}

	w := csv.NewWriter(writer)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, fb := range all {
		if err := w.Write(csvRecord(fb)); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
