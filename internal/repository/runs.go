// Package repository persists extraction runs to PostgreSQL. A run is stored
// as one extraction_runs row plus one extraction_facts row per gene, keyed by
// the pipeline-issued run id.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pgxbridge/internal/domain"
)

// RunRepository handles extraction run persistence. Implements
// domain.RunArchive.
type RunRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *pgxpool.Pool, logger *logrus.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: logger,
	}
}

// Create archives a document result. The run row and its fact rows are
// written in one transaction.
func (r *RunRepository) Create(ctx context.Context, result *domain.DocumentResult) error {
	if result == nil || result.RunID == "" {
		return fmt.Errorf("archiving run: run_id is empty")
	}

	patientJSON, err := json.Marshal(result.Patient)
	if err != nil {
		return fmt.Errorf("marshaling patient info: %w", err)
	}

	statsJSON, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("marshaling summary stats: %w", err)
	}

	reportJSON, err := json.Marshal(result.Report)
	if err != nil {
		return fmt.Errorf("marshaling report data: %w", err)
	}

	createdAt := result.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	runQuery := `
		INSERT INTO extraction_runs (
			run_id, method, filename, patient, stats, report,
			high_risk_count, processing_seconds, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err = tx.Exec(ctx, runQuery,
		result.RunID,
		string(result.Method),
		result.Filename,
		patientJSON,
		statsJSON,
		reportJSON,
		result.Stats.HighRisk,
		result.ProcessingTime,
		createdAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"run_id": result.RunID,
			"error":  err,
		}).Error("Failed to create extraction run")
		return fmt.Errorf("creating extraction run: %w", err)
	}

	factQuery := `
		INSERT INTO extraction_facts (
			run_id, position, gene, genotype, phenotype,
			cpic_phenotype, cpic_phenotype_full, cpic_category,
			cpic_activity_score, cpic_ehr_priority,
			is_high_risk, match_status, validation_message
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)`

	for i, fact := range result.Facts {
		_, err = tx.Exec(ctx, factQuery,
			result.RunID,
			i,
			fact.Gene,
			fact.Genotype,
			fact.Phenotype,
			fact.CPICPhenotype,
			fact.CPICPhenotypeFull,
			fact.CPICCategory,
			fact.CPICActivityScore,
			fact.CPICEHRPriority,
			fact.IsHighRisk,
			string(fact.MatchStatus),
			fact.ValidationMessage,
		)
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"run_id": result.RunID,
				"gene":   fact.Gene,
				"error":  err,
			}).Error("Failed to create extraction fact")
			return fmt.Errorf("creating extraction fact: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing extraction run: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"run_id":    result.RunID,
		"method":    result.Method,
		"genes":     len(result.Facts),
		"high_risk": result.Stats.HighRisk,
	}).Info("Extraction run archived")

	return nil
}

// GetByID retrieves a run with its facts in extraction order.
func (r *RunRepository) GetByID(ctx context.Context, runID string) (*domain.DocumentResult, error) {
	query := `
		SELECT run_id, method, filename, patient, stats, report,
			   processing_seconds, created_at
		FROM extraction_runs
		WHERE run_id = $1`

	result, err := scanRun(r.db.QueryRow(ctx, query, runID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("run not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"run_id": runID,
			"error":  err,
		}).Error("Failed to get run by ID")
		return nil, fmt.Errorf("getting run by ID: %w", err)
	}

	facts, err := r.loadFacts(ctx, []string{runID})
	if err != nil {
		return nil, err
	}
	result.Facts = facts[runID]

	return result, nil
}

// ListRecent retrieves runs newest first with pagination.
func (r *RunRepository) ListRecent(ctx context.Context, limit, offset int) ([]*domain.DocumentResult, error) {
	query := `
		SELECT run_id, method, filename, patient, stats, report,
			   processing_seconds, created_at
		FROM extraction_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	return r.list(ctx, query, limit, offset)
}

// ListHighRisk retrieves the most recent runs carrying at least one
// high-risk finding.
func (r *RunRepository) ListHighRisk(ctx context.Context, limit int) ([]*domain.DocumentResult, error) {
	query := `
		SELECT run_id, method, filename, patient, stats, report,
			   processing_seconds, created_at
		FROM extraction_runs
		WHERE high_risk_count > 0
		ORDER BY created_at DESC
		LIMIT $1`

	return r.list(ctx, query, limit)
}

func (r *RunRepository) list(ctx context.Context, query string, args ...any) ([]*domain.DocumentResult, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).Error("Failed to list runs")
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var results []*domain.DocumentResult
	var runIDs []string
	for rows.Next() {
		result, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		results = append(results, result)
		runIDs = append(runIDs, result.RunID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	if len(results) == 0 {
		return results, nil
	}

	facts, err := r.loadFacts(ctx, runIDs)
	if err != nil {
		return nil, err
	}
	for _, result := range results {
		result.Facts = facts[result.RunID]
	}

	return results, nil
}

// loadFacts fetches the facts for a set of runs in one query, grouped by run
// id in extraction order.
func (r *RunRepository) loadFacts(ctx context.Context, runIDs []string) (map[string][]domain.AnnotatedGeneFact, error) {
	query := `
		SELECT run_id, gene, genotype, phenotype,
			   cpic_phenotype, cpic_phenotype_full, cpic_category,
			   cpic_activity_score, cpic_ehr_priority,
			   is_high_risk, match_status, validation_message
		FROM extraction_facts
		WHERE run_id = ANY($1)
		ORDER BY run_id, position`

	rows, err := r.db.Query(ctx, query, runIDs)
	if err != nil {
		r.log.WithError(err).Error("Failed to load extraction facts")
		return nil, fmt.Errorf("loading extraction facts: %w", err)
	}
	defer rows.Close()

	facts := make(map[string][]domain.AnnotatedGeneFact, len(runIDs))
	for rows.Next() {
		var runID string
		var fact domain.AnnotatedGeneFact

		err := rows.Scan(
			&runID,
			&fact.Gene,
			&fact.Genotype,
			&fact.Phenotype,
			&fact.CPICPhenotype,
			&fact.CPICPhenotypeFull,
			&fact.CPICCategory,
			&fact.CPICActivityScore,
			&fact.CPICEHRPriority,
			&fact.IsHighRisk,
			&fact.MatchStatus,
			&fact.ValidationMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning fact row: %w", err)
		}

		facts[runID] = append(facts[runID], fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fact rows: %w", err)
	}

	return facts, nil
}

func scanRun(row pgx.Row) (*domain.DocumentResult, error) {
	var result domain.DocumentResult
	var patientJSON, statsJSON, reportJSON []byte

	err := row.Scan(
		&result.RunID,
		&result.Method,
		&result.Filename,
		&patientJSON,
		&statsJSON,
		&reportJSON,
		&result.ProcessingTime,
		&result.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(patientJSON, &result.Patient); err != nil {
		return nil, fmt.Errorf("unmarshaling patient info: %w", err)
	}
	if err := json.Unmarshal(statsJSON, &result.Stats); err != nil {
		return nil, fmt.Errorf("unmarshaling summary stats: %w", err)
	}
	if err := json.Unmarshal(reportJSON, &result.Report); err != nil {
		return nil, fmt.Errorf("unmarshaling report data: %w", err)
	}

	return &result, nil
}
