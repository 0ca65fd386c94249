package feedback

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pgxbridge/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite feedback store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Open database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	// Create schema
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// feedbackColumns is the SELECT column order consumed by scanFeedback.
const feedbackColumns = `id, reference, category, status, description, gene,
	genotype_reported, genotype_expected, phenotype_reported, phenotype_expected,
	patient_ref, filename, resolution_notes, resolved_at, created_at, updated_at`

// scanFeedback scans a row into a Feedback struct.
func scanFeedback(s scanner) (*Feedback, error) {
	fb := &Feedback{}
	var category, status string
	var resolvedAt sql.NullTime

	err := s.Scan(
		&fb.ID, &fb.Reference, &category, &status, &fb.Description, &fb.Gene,
		&fb.GenotypeReported, &fb.GenotypeExpected,
		&fb.PhenotypeReported, &fb.PhenotypeExpected,
		&fb.PatientRef, &fb.Filename, &fb.ResolutionNotes,
		&resolvedAt, &fb.CreatedAt, &fb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fb.Category = Category(category)
	fb.Status = Status(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		fb.ResolvedAt = &t
	}
	return fb, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reference TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		description TEXT NOT NULL,
		gene TEXT DEFAULT '',
		genotype_reported TEXT DEFAULT '',
		genotype_expected TEXT DEFAULT '',
		phenotype_reported TEXT DEFAULT '',
		phenotype_expected TEXT DEFAULT '',
		patient_ref TEXT DEFAULT '',
		filename TEXT DEFAULT '',
		resolution_notes TEXT DEFAULT '',
		resolved_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_reference ON feedback(reference);
	CREATE INDEX IF NOT EXISTS idx_feedback_category ON feedback(category);
	CREATE INDEX IF NOT EXISTS idx_feedback_status ON feedback(status);
	CREATE INDEX IF NOT EXISTS idx_feedback_gene ON feedback(gene);
	CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Submit validates and stores a new ticket.
func (s *SQLiteStore) Submit(ctx context.Context, fb *Feedback) error {
	if err := prepareSubmission(fb); err != nil {
		return err
	}

	now := time.Now()
	fb.CreatedAt = now
	fb.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (
			reference, category, status, description, gene,
			genotype_reported, genotype_expected,
			phenotype_reported, phenotype_expected,
			patient_ref, filename, resolution_notes,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		fb.Reference, string(fb.Category), string(fb.Status), fb.Description, fb.Gene,
		fb.GenotypeReported, fb.GenotypeExpected,
		fb.PhenotypeReported, fb.PhenotypeExpected,
		fb.PatientRef, fb.Filename, fb.ResolutionNotes,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	fb.ID = id

	return nil
}

// Get retrieves a ticket by its public reference.
func (s *SQLiteStore) Get(ctx context.Context, reference string) (*Feedback, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+feedbackColumns+" FROM feedback WHERE reference = ? LIMIT 1",
		reference,
	)

	fb, err := scanFeedback(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return fb, nil
}

// List returns tickets matching the filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Feedback, error) {
	query, args := buildListQuery(filter, "?", nil)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
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

// buildListQuery assembles the filtered SELECT shared by both backends.
// placeholder is "?" for SQLite; Postgres passes a numbering function.
func buildListQuery(filter Filter, placeholder string, number func(int) string) (string, []interface{}) {
	var conds []string
	var args []interface{}

	next := func() string {
		if number != nil {
			return number(len(args))
		}
		return placeholder
	}

	if filter.Category != "" {
		args = append(args, string(filter.Category))
		conds = append(conds, "category = "+next())
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, "status = "+next())
	}
	if filter.Gene != "" {
		args = append(args, filter.Gene)
		conds = append(conds, "gene = "+next())
	}

	query := "SELECT " + feedbackColumns + " FROM feedback"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += " LIMIT " + next()
	args = append(args, filter.Offset)
	query += " OFFSET " + next()

	return query, args
}

// UpdateStatus moves a ticket through the workflow.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, reference string, status Status, notes string) error {
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
			status = ?,
			resolution_notes = ?,
			resolved_at = ?,
			updated_at = ?
		WHERE reference = ?
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
func (s *SQLiteStore) Summary(ctx context.Context) (*Summary, error) {
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

// groupCounts fills a map from a two-column (key, count) query.
func groupCounts(ctx context.Context, db *sql.DB, query string, into map[string]int64) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan counts: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportCSV writes all tickets as CSV, newest first.
func (s *SQLiteStore) ExportCSV(ctx context.Context, writer io.Writer) error {
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
