package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/m365-assessment/assessment-server/internal/models"
)

const historyColumns = `id, assessment_id, customer_id, tenant_id, date,
	status, score, metrics, recommendations, archived_at`

// AppendHistory inserts one archival row. History rows are never mutated.
func (s *PostgresStore) AppendHistory(ctx context.Context, row *models.AssessmentHistory) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.ArchivedAt.IsZero() {
		row.ArchivedAt = time.Now()
	}

	query := `
		INSERT INTO assessment_history (
			id, assessment_id, customer_id, tenant_id, date, status, score,
			metrics, recommendations, archived_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		row.ID, row.AssessmentID, row.CustomerID, row.TenantID, row.Date,
		row.Status, row.Score, row.Metrics, row.Recommendations, row.ArchivedAt,
	)

	if err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// ListHistory lists history rows, newest first. An empty tenantID lists
// across all tenants.
func (s *PostgresStore) ListHistory(ctx context.Context, tenantID string, limit int) ([]*models.AssessmentHistory, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + historyColumns + `
		FROM assessment_history
		WHERE ($1 = '' OR tenant_id = $1)
		ORDER BY date DESC
		LIMIT $2`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]*models.AssessmentHistory, 0, limit)
	for rows.Next() {
		row := &models.AssessmentHistory{}
		err := rows.Scan(
			&row.ID, &row.AssessmentID, &row.CustomerID, &row.TenantID,
			&row.Date, &row.Status, &row.Score, &row.Metrics,
			&row.Recommendations, &row.ArchivedAt,
		)
		if err != nil {
			return nil, err
		}
		history = append(history, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return history, nil
}

// PruneHistory deletes history rows older than the given time and returns
// how many were removed
func (s *PostgresStore) PruneHistory(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.getDB().ExecContext(ctx,
		"DELETE FROM assessment_history WHERE date < $1", olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ArchiveAssessment atomically copies an assessment into history and deletes
// the active row. Both statements run in one transaction so a crash
// mid-operation leaves the assessment active and unarchived, never lost or
// duplicated.
func (s *PostgresStore) ArchiveAssessment(ctx context.Context, assessmentID uuid.UUID) error {
	if s.tx != nil {
		return s.archiveAssessment(ctx, assessmentID)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}

	txStore := tx.(*PostgresStore)
	if err := txStore.archiveAssessment(ctx, assessmentID); err != nil {
		txStore.Rollback()
		return err
	}

	return txStore.Commit()
}

func (s *PostgresStore) archiveAssessment(ctx context.Context, assessmentID uuid.UUID) error {
	assessment, err := s.GetAssessment(ctx, assessmentID)
	if err != nil {
		return err
	}
	if !assessment.Status.IsCompleted() {
		return fmt.Errorf("%w: only completed assessments can be archived", ErrInvalidData)
	}

	// A history row usually already exists from assessment completion.
	// The insert must not raise a unique violation here: that would abort
	// the surrounding transaction and the delete below could never run.
	if err := s.insertHistoryIfAbsent(ctx, models.HistoryFromAssessment(assessment)); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if err := s.DeleteAssessment(ctx, assessmentID); err != nil {
		return fmt.Errorf("delete active assessment: %w", err)
	}

	return nil
}

// insertHistoryIfAbsent inserts a history row unless one already exists for
// the (assessment, tenant) pair
func (s *PostgresStore) insertHistoryIfAbsent(ctx context.Context, row *models.AssessmentHistory) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.ArchivedAt.IsZero() {
		row.ArchivedAt = time.Now()
	}

	query := `
		INSERT INTO assessment_history (
			id, assessment_id, customer_id, tenant_id, date, status, score,
			metrics, recommendations, archived_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (assessment_id, tenant_id) DO NOTHING`

	_, err := s.getDB().ExecContext(ctx, query,
		row.ID, row.AssessmentID, row.CustomerID, row.TenantID, row.Date,
		row.Status, row.Score, row.Metrics, row.Recommendations, row.ArchivedAt,
	)
	return err
}
