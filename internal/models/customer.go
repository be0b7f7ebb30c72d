package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CustomerStatus represents the lifecycle status of a customer record
type CustomerStatus string

const (
	CustomerStatusActive   CustomerStatus = "active"
	CustomerStatusInactive CustomerStatus = "inactive"
	CustomerStatusPending  CustomerStatus = "pending"
	CustomerStatusDeleted  CustomerStatus = "deleted"
)

// Valid reports whether the status is a known value
func (s CustomerStatus) Valid() bool {
	switch s {
	case CustomerStatusActive, CustomerStatusInactive, CustomerStatusPending, CustomerStatusDeleted:
		return true
	}
	return false
}

// SetupStatus represents the app-registration consent progress for a customer
type SetupStatus string

const (
	SetupStatusPending          SetupStatus = "pending"
	SetupStatusCompleted        SetupStatus = "completed"
	SetupStatusFailed           SetupStatus = "failed"
	SetupStatusNeedsManualSetup SetupStatus = "needs_manual_setup"
)

// AppRegistration holds the Azure AD artifacts created for a customer tenant.
// It is embedded in Customer and persisted as a JSONB column.
type AppRegistration struct {
	ApplicationID      string      `json:"applicationId"`
	ClientID           string      `json:"clientId"`
	ServicePrincipalID string      `json:"servicePrincipalId"`
	Permissions        StringList  `json:"permissions"`
	ConsentURL         *string     `json:"consentUrl,omitempty"`
	SetupStatus        SetupStatus `json:"setupStatus"`
	StatusMessage      string      `json:"statusMessage,omitempty"`
	CreatedDate        time.Time   `json:"createdDate"`
}

// Value implements driver.Valuer interface
func (r *AppRegistration) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner interface
func (r *AppRegistration) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, r)
	case string:
		return json.Unmarshal([]byte(data), r)
	default:
		return fmt.Errorf("cannot scan %T into AppRegistration", value)
	}
}

// Customer represents one assessed Microsoft 365 tenant
type Customer struct {
	ID           uuid.UUID `json:"id" db:"id"`
	TenantID     string    `json:"tenantId" db:"tenant_id"`
	TenantName   string    `json:"tenantName" db:"tenant_name"`
	TenantDomain string    `json:"tenantDomain" db:"tenant_domain"`
	ContactEmail string    `json:"contactEmail,omitempty" db:"contact_email"`
	Notes        string    `json:"notes,omitempty" db:"notes"`

	Status           CustomerStatus `json:"status" db:"status"`
	TotalAssessments int            `json:"totalAssessments" db:"total_assessments"`

	AppRegistration *AppRegistration `json:"appRegistration,omitempty" db:"app_registration"`

	CreatedDate        time.Time  `json:"createdDate" db:"created_date"`
	UpdatedAt          time.Time  `json:"updatedAt" db:"updated_at"`
	LastAssessmentDate *time.Time `json:"lastAssessmentDate,omitempty" db:"last_assessment_date"`
}

// IsDeleted reports whether the customer has been soft-deleted
func (c *Customer) IsDeleted() bool {
	return c.Status == CustomerStatusDeleted
}

// ConsentCompleted reports whether the customer tenant has granted admin consent
func (c *Customer) ConsentCompleted() bool {
	return c.AppRegistration != nil && c.AppRegistration.SetupStatus == SetupStatusCompleted
}
