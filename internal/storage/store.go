package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/m365-assessment/assessment-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// CustomerFilters narrows a customer listing
type CustomerFilters struct {
	Status            *models.CustomerStatus
	Limit             int
	ContinuationToken string
}

// CustomerPage is one page of a customer listing. ContinuationToken is empty
// on the last page.
type CustomerPage struct {
	Customers         []*models.Customer `json:"customers"`
	Total             int64              `json:"total"`
	ContinuationToken string             `json:"continuationToken,omitempty"`
}

// CustomerPatch applies partial-update semantics: only non-nil fields change
type CustomerPatch struct {
	TenantName         *string
	ContactEmail       *string
	Notes              *string
	Status             *models.CustomerStatus
	AppRegistration    *models.AppRegistration
	TotalAssessments   *int
	LastAssessmentDate *time.Time
}

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// Customer methods
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	GetCustomerByDomain(ctx context.Context, domain string) (*models.Customer, error)
	GetCustomerByTenantID(ctx context.Context, tenantID string) (*models.Customer, error)
	ListCustomers(ctx context.Context, filters CustomerFilters) (*CustomerPage, error)
	UpdateCustomer(ctx context.Context, id uuid.UUID, patch CustomerPatch) (*models.Customer, error)
	DeleteCustomer(ctx context.Context, id uuid.UUID, hard bool) error

	// Assessment methods
	CreateAssessment(ctx context.Context, assessment *models.Assessment) error
	GetAssessment(ctx context.Context, id uuid.UUID) (*models.Assessment, error)
	UpdateAssessment(ctx context.Context, assessment *models.Assessment) error
	DeleteAssessment(ctx context.Context, id uuid.UUID) error
	ListAssessments(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*models.Assessment, int64, error)

	// Assessment history methods
	AppendHistory(ctx context.Context, row *models.AssessmentHistory) error
	ListHistory(ctx context.Context, tenantID string, limit int) ([]*models.AssessmentHistory, error)
	PruneHistory(ctx context.Context, olderThan time.Time) (int64, error)

	// ArchiveAssessment atomically copies an assessment to history and
	// removes the active row.
	ArchiveAssessment(ctx context.Context, assessmentID uuid.UUID) error

	// Close the store
	Close() error
}

// EncodeContinuationToken encodes a row offset as an opaque token
func EncodeContinuationToken(offset int) string {
	if offset <= 0 {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// DecodeContinuationToken decodes an opaque token back to a row offset.
// An empty token means the first page.
func DecodeContinuationToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed continuation token", ErrInvalidData)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: malformed continuation token", ErrInvalidData)
	}
	return offset, nil
}
