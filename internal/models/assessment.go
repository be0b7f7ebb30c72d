package models

import (
	"time"

	"github.com/google/uuid"
)

// AssessmentStatus represents the state of a scoring run
type AssessmentStatus string

const (
	AssessmentStatusPending    AssessmentStatus = "pending"
	AssessmentStatusInProgress AssessmentStatus = "in_progress"
	AssessmentStatusCompleted  AssessmentStatus = "completed"
	// AssessmentStatusCompletedWithErrors marks a run that finished with at
	// least one metric source unavailable (degraded, not failed).
	AssessmentStatusCompletedWithErrors AssessmentStatus = "completed_with_errors"
	AssessmentStatusFailed              AssessmentStatus = "failed"
	AssessmentStatusCancelled           AssessmentStatus = "cancelled"
)

// IsCompleted reports whether the run produced a final score
func (s AssessmentStatus) IsCompleted() bool {
	return s == AssessmentStatusCompleted || s == AssessmentStatusCompletedWithErrors
}

// Assessment represents one scoring run for a customer tenant
type Assessment struct {
	ID         uuid.UUID `json:"id" db:"id"`
	CustomerID uuid.UUID `json:"customerId" db:"customer_id"`
	TenantID   string    `json:"tenantId" db:"tenant_id"`
	Date       time.Time `json:"date" db:"date"`

	Status AssessmentStatus `json:"status" db:"status"`
	Score  int              `json:"score" db:"score"`

	Metrics         Metrics    `json:"metrics" db:"metrics"`
	Recommendations StringList `json:"recommendations" db:"recommendations"`

	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// AssessmentHistory is an append-only archival copy of a completed assessment,
// keyed by (assessmentId, tenantId) and used for trend display. Rows are never
// mutated after insert.
type AssessmentHistory struct {
	ID           uuid.UUID `json:"id" db:"id"`
	AssessmentID uuid.UUID `json:"assessmentId" db:"assessment_id"`
	CustomerID   uuid.UUID `json:"customerId" db:"customer_id"`
	TenantID     string    `json:"tenantId" db:"tenant_id"`
	Date         time.Time `json:"date" db:"date"`

	Status AssessmentStatus `json:"status" db:"status"`
	Score  int              `json:"score" db:"score"`

	Metrics         Metrics    `json:"metrics" db:"metrics"`
	Recommendations StringList `json:"recommendations" db:"recommendations"`

	ArchivedAt time.Time `json:"archivedAt" db:"archived_at"`
}

// HistoryFromAssessment builds the archival row for a completed assessment
func HistoryFromAssessment(a *Assessment) *AssessmentHistory {
	return &AssessmentHistory{
		ID:              uuid.New(),
		AssessmentID:    a.ID,
		CustomerID:      a.CustomerID,
		TenantID:        a.TenantID,
		Date:            a.Date,
		Status:          a.Status,
		Score:           a.Score,
		Metrics:         a.Metrics,
		Recommendations: a.Recommendations,
		ArchivedAt:      time.Now(),
	}
}
