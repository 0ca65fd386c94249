package feedback

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgxbridge/internal/domain"
)

func TestNewSQLiteStore(t *testing.T) {
	// Create temp directory
	tmpDir, err := os.MkdirTemp("", "feedback-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")

	// Act
	store, err := NewSQLiteStore(dbPath)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	// Verify database file was created
	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_Submit(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	fb := &Feedback{
		Category:          CategoryParsingError,
		Description:       "CYP2D6 genotype extracted from the wrong section",
		Gene:              "CYP2D6",
		GenotypeReported:  "*1/*1",
		GenotypeExpected:  "*4/*4",
		PhenotypeReported: "Normal Metabolizer",
		PhenotypeExpected: "Poor Metabolizer",
		Filename:          "report_0117.pdf",
	}

	// Act
	err := store.Submit(ctx, fb)

	// Assert
	require.NoError(t, err)
	assert.NotZero(t, fb.ID, "ID should be assigned")
	assert.Len(t, fb.Reference, 8, "Reference should be assigned")
	assert.Equal(t, StatusPending, fb.Status, "Status should default to pending")
	assert.False(t, fb.CreatedAt.IsZero(), "CreatedAt should be set")
	assert.False(t, fb.UpdatedAt.IsZero(), "UpdatedAt should be set")
}

func TestSQLiteStore_Submit_Validation(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tests := []struct {
		name    string
		fb      *Feedback
		wantErr string
	}{
		{
			name:    "missing description",
			fb:      &Feedback{Category: CategoryOther},
			wantErr: "description is required",
		},
		{
			name:    "unknown category",
			fb:      &Feedback{Category: "typo_error", Description: "x"},
			wantErr: "invalid category",
		},
		{
			name: "unknown status",
			fb: &Feedback{
				Category:    CategoryOther,
				Status:      "open",
				Description: "x",
			},
			wantErr: "invalid status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Submit(ctx, tt.fb)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSQLiteStore_Get(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	fb := &Feedback{
		Category:    CategoryAnnotationError,
		Description: "CPIC phenotype mismatch flagged for a valid equivalent wording",
		Gene:        "DPYD",
	}
	require.NoError(t, store.Submit(ctx, fb))

	// Act
	retrieved, err := store.Get(ctx, fb.Reference)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, fb.Reference, retrieved.Reference)
	assert.Equal(t, CategoryAnnotationError, retrieved.Category)
	assert.Equal(t, "DPYD", retrieved.Gene)
	assert.Nil(t, retrieved.ResolvedAt)
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Act
	retrieved, err := store.Get(ctx, "deadbeef")

	// Assert
	assert.NoError(t, err)
	assert.Nil(t, retrieved, "Should return nil for not found")
}

func TestSQLiteStore_List_NewestFirst(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	genes := []string{"CYP2C19", "CYP2D6", "TPMT"}
	for _, gene := range genes {
		fb := &Feedback{
			Category:    CategoryParsingError,
			Description: "wrong genotype for " + gene,
			Gene:        gene,
		}
		require.NoError(t, store.Submit(ctx, fb))
	}

	// Act
	list, err := store.List(ctx, Filter{})

	// Assert
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "TPMT", list[0].Gene, "Latest submission should come first")
	assert.Equal(t, "CYP2C19", list[2].Gene)
}

func TestSQLiteStore_List_Filters(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	submissions := []*Feedback{
		{Category: CategoryParsingError, Description: "a", Gene: "CYP2C19"},
		{Category: CategoryParsingError, Description: "b", Gene: "CYP2D6"},
		{Category: CategoryAnnotationError, Description: "c", Gene: "CYP2C19"},
		{Category: CategoryOther, Description: "d"},
	}
	for _, fb := range submissions {
		require.NoError(t, store.Submit(ctx, fb))
	}
	require.NoError(t, store.UpdateStatus(ctx, submissions[0].Reference, StatusResolved, "fixed"))

	// Filter by category
	parsing, err := store.List(ctx, Filter{Category: CategoryParsingError})
	require.NoError(t, err)
	assert.Len(t, parsing, 2)

	// Filter by gene
	cyp2c19, err := store.List(ctx, Filter{Gene: "CYP2C19"})
	require.NoError(t, err)
	assert.Len(t, cyp2c19, 2)

	// Filter by status
	pending, err := store.List(ctx, Filter{Status: StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	// Combined filters
	resolved, err := store.List(ctx, Filter{Category: CategoryParsingError, Status: StatusResolved})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, submissions[0].Reference, resolved[0].Reference)
}

func TestSQLiteStore_List_Pagination(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		fb := &Feedback{
			Category:    CategoryOther,
			Description: "ticket " + string(rune('A'+i)),
		}
		require.NoError(t, store.Submit(ctx, fb))
	}

	// Act - get first page
	page1, err := store.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	// Act - get second page
	page2, err := store.List(ctx, Filter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page2, 2)

	// Act - get third page
	page3, err := store.List(ctx, Filter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page3, 1)
}

func TestSQLiteStore_UpdateStatus_Resolve(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	fb := &Feedback{
		Category:    CategoryParsingError,
		Description: "genotype column misread",
		Gene:        "UGT1A1",
	}
	require.NoError(t, store.Submit(ctx, fb))

	// Act
	err := store.UpdateStatus(ctx, fb.Reference, StatusResolved, "pattern updated")

	// Assert
	require.NoError(t, err)

	retrieved, err := store.Get(ctx, fb.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, retrieved.Status)
	assert.Equal(t, "pattern updated", retrieved.ResolutionNotes)
	require.NotNil(t, retrieved.ResolvedAt)
	assert.WithinDuration(t, time.Now(), *retrieved.ResolvedAt, time.Minute)
}

func TestSQLiteStore_UpdateStatus_RejectLeavesResolvedAtEmpty(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	fb := &Feedback{
		Category:    CategoryOther,
		Description: "duplicate ticket",
	}
	require.NoError(t, store.Submit(ctx, fb))

	// Act
	err := store.UpdateStatus(ctx, fb.Reference, StatusRejected, "duplicate of another ticket")

	// Assert
	require.NoError(t, err)

	retrieved, err := store.Get(ctx, fb.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, retrieved.Status)
	assert.Nil(t, retrieved.ResolvedAt)
}

func TestSQLiteStore_UpdateStatus_UnknownReference(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Act
	err := store.UpdateStatus(ctx, "deadbeef", StatusInReview, "")

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_UpdateStatus_InvalidStatus(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Act
	err := store.UpdateStatus(ctx, "deadbeef", "closed", "")

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")
}

func TestSQLiteStore_Summary(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	submissions := []*Feedback{
		{Category: CategoryParsingError, Description: "a", Gene: "CYP2C19"},
		{Category: CategoryParsingError, Description: "b", Gene: "CYP2C19"},
		{Category: CategoryAnnotationError, Description: "c", Gene: "CYP2D6"},
		{Category: CategoryOther, Description: "d"},
	}
	for _, fb := range submissions {
		require.NoError(t, store.Submit(ctx, fb))
	}
	require.NoError(t, store.UpdateStatus(ctx, submissions[3].Reference, StatusResolved, ""))

	// Act
	summary, err := store.Summary(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.Total)
	assert.Equal(t, int64(3), summary.Pending)
	assert.Equal(t, int64(2), summary.ByCategory[string(CategoryParsingError)])
	assert.Equal(t, int64(1), summary.ByCategory[string(CategoryAnnotationError)])
	assert.Equal(t, int64(3), summary.ByStatus[string(StatusPending)])
	assert.Equal(t, int64(1), summary.ByStatus[string(StatusResolved)])
	assert.Equal(t, int64(2), summary.ByGene["CYP2C19"])
	assert.Equal(t, int64(1), summary.ByGene["CYP2D6"])
	assert.NotContains(t, summary.ByGene, "")
}

func TestSQLiteStore_ExportCSV(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	fb := &Feedback{
		Category:         CategoryParsingError,
		Description:      "tab-separated row not picked up",
		Gene:             "CYP3A5",
		GenotypeReported: "*3/*3",
	}
	require.NoError(t, store.Submit(ctx, fb))

	// Act
	var buf bytes.Buffer
	err := store.ExportCSV(ctx, &buf)

	// Assert
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "reference,category,status,description,gene")
	assert.Contains(t, output, fb.Reference)
	assert.Contains(t, output, "tab-separated row not picked up")
	assert.Contains(t, output, "CYP3A5")
}

// Helper function to create a test store
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "feedback-test-*")
	require.NoError(t, err)

	t.Cleanup(func() {
		os.RemoveAll(tmpDir)
	})

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	return store
}
