package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/m365-assessment/assessment-server/internal/models"
)

const assessmentColumns = `id, customer_id, tenant_id, date, status, score,
	metrics, recommendations, created_at, completed_at`

// CreateAssessment creates a new assessment
func (s *PostgresStore) CreateAssessment(ctx context.Context, assessment *models.Assessment) error {
	if assessment.ID == uuid.Nil {
		assessment.ID = uuid.New()
	}

	now := time.Now()
	assessment.CreatedAt = now
	if assessment.Date.IsZero() {
		assessment.Date = now
	}
	if assessment.Status == "" {
		assessment.Status = models.AssessmentStatusPending
	}

	query := `
		INSERT INTO assessments (
			id, customer_id, tenant_id, date, status, score, metrics,
			recommendations, created_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		assessment.ID, assessment.CustomerID, assessment.TenantID, assessment.Date,
		assessment.Status, assessment.Score, assessment.Metrics,
		assessment.Recommendations, assessment.CreatedAt, assessment.CompletedAt,
	)

	if err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// scanAssessment scans one assessment row
func scanAssessment(row interface{ Scan(...interface{}) error }) (*models.Assessment, error) {
	assessment := &models.Assessment{}

	err := row.Scan(
		&assessment.ID, &assessment.CustomerID, &assessment.TenantID,
		&assessment.Date, &assessment.Status, &assessment.Score,
		&assessment.Metrics, &assessment.Recommendations,
		&assessment.CreatedAt, &assessment.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return assessment, nil
}

// GetAssessment gets an assessment by ID
func (s *PostgresStore) GetAssessment(ctx context.Context, id uuid.UUID) (*models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`
	return scanAssessment(s.getDB().QueryRowContext(ctx, query, id))
}

// UpdateAssessment updates an assessment
func (s *PostgresStore) UpdateAssessment(ctx context.Context, assessment *models.Assessment) error {
	query := `
		UPDATE assessments SET
			status = $2, score = $3, metrics = $4, recommendations = $5,
			completed_at = $6
		WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		assessment.ID, assessment.Status, assessment.Score, assessment.Metrics,
		assessment.Recommendations, assessment.CompletedAt,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteAssessment deletes an assessment
func (s *PostgresStore) DeleteAssessment(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM assessments WHERE id = $1", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListAssessments lists assessments for a customer
func (s *PostgresStore) ListAssessments(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*models.Assessment, int64, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM assessments WHERE customer_id = $1", customerID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + assessmentColumns + `
		FROM assessments
		WHERE customer_id = $1
		ORDER BY date DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, customerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	assessments := make([]*models.Assessment, 0, limit)
	for rows.Next() {
		assessment, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		assessments = append(assessments, assessment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return assessments, total, nil
}
