package domain

import (
	"context"
	"time"
)

// TextProvider turns an uploaded document into raw text. Implementations sit
// in front of layout-analysis services; the pipeline treats the text as
// opaque.
type TextProvider interface {
	Name() string
	ExtractText(ctx context.Context, doc []byte) (string, error)
}

// CandidateProducer extracts pre-structured gene candidates and patient
// metadata from report text, typically via an LLM. Producers must return one
// candidate per vocabulary gene, using the NotFound sentinel for absences.
type CandidateProducer interface {
	Name() string
	ExtractCandidates(ctx context.Context, text string) ([]RawGeneFact, PatientInfo, error)
}

// ResultCache caches processed document results keyed by content hash. A nil
// or disabled cache is a valid no-op dependency.
type ResultCache interface {
	Get(ctx context.Context, key string) (*DocumentResult, bool)
	Set(ctx context.Context, key string, result *DocumentResult) error
	Close() error
}

// MetricsRecorder receives pipeline activity counters. Implementations must
// be safe for concurrent use; a nil recorder disables recording.
type MetricsRecorder interface {
	RecordDocument(method ExtractionMethod, duration time.Duration)
	RecordFact(found bool)
	RecordMatchStatus(status MatchStatus)
	RecordHighRisk()
	RecordLookup(hit bool)
}

// RunArchive persists processed documents for later retrieval. Optional; the
// pipeline runs without one.
type RunArchive interface {
	Create(ctx context.Context, result *DocumentResult) error
	GetByID(ctx context.Context, runID string) (*DocumentResult, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*DocumentResult, error)
	ListHighRisk(ctx context.Context, limit int) ([]*DocumentResult, error)
}
