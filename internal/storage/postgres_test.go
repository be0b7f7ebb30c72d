package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m365-assessment/assessment-server/internal/models"
)

// newTestStore connects to the database named by DATABASE_URL. Tests that
// need a live database skip when the variable is unset.
func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	store, err := NewPostgresStore(dsn, PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func seedCompletedAssessment(t *testing.T, store *PostgresStore) *models.Assessment {
	t.Helper()
	ctx := context.Background()

	tenantID := uuid.NewString()
	customer := &models.Customer{
		TenantID:     tenantID,
		TenantName:   "Archive Test Tenant",
		TenantDomain: tenantID + ".onmicrosoft.com",
		Status:       models.CustomerStatusActive,
	}
	require.NoError(t, store.CreateCustomer(ctx, customer))

	assessment := &models.Assessment{
		CustomerID: customer.ID,
		TenantID:   tenantID,
		Status:     models.AssessmentStatusCompleted,
		Score:      81,
	}
	require.NoError(t, store.CreateAssessment(ctx, assessment))
	return assessment
}

func TestArchiveAssessmentAfterCompletionWroteHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assessment := seedCompletedAssessment(t, store)

	// Completion writes the history row; archival runs against a pair that
	// already exists and must still delete the active row in one transaction.
	require.NoError(t, store.AppendHistory(ctx, models.HistoryFromAssessment(assessment)))

	require.NoError(t, store.ArchiveAssessment(ctx, assessment.ID))

	_, err := store.GetAssessment(ctx, assessment.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	rows, err := store.ListHistory(ctx, assessment.TenantID, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, assessment.ID, rows[0].AssessmentID)
}

func TestArchiveAssessmentWithoutPriorHistoryRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assessment := seedCompletedAssessment(t, store)

	require.NoError(t, store.ArchiveAssessment(ctx, assessment.ID))

	_, err := store.GetAssessment(ctx, assessment.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	rows, err := store.ListHistory(ctx, assessment.TenantID, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
