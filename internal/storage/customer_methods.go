package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m365-assessment/assessment-server/internal/models"
)

const customerColumns = `id, tenant_id, tenant_name, tenant_domain, contact_email,
	notes, status, total_assessments, app_registration, created_date,
	updated_at, last_assessment_date`

// CreateCustomer creates a new customer
func (s *PostgresStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}

	now := time.Now()
	if customer.CreatedDate.IsZero() {
		customer.CreatedDate = now
	}
	customer.UpdatedAt = now

	if customer.Status == "" {
		customer.Status = models.CustomerStatusPending
	}

	query := `
		INSERT INTO customers (
			id, tenant_id, tenant_name, tenant_domain, contact_email, notes,
			status, total_assessments, app_registration, created_date,
			updated_at, last_assessment_date
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		customer.ID, customer.TenantID, customer.TenantName, customer.TenantDomain,
		customer.ContactEmail, customer.Notes, customer.Status,
		customer.TotalAssessments, customer.AppRegistration, customer.CreatedDate,
		customer.UpdatedAt, customer.LastAssessmentDate,
	)

	if err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// scanCustomer scans one customer row
func scanCustomer(row interface{ Scan(...interface{}) error }) (*models.Customer, error) {
	customer := &models.Customer{}
	reg := &models.AppRegistration{}
	var regPresent sql.NullString

	err := row.Scan(
		&customer.ID, &customer.TenantID, &customer.TenantName, &customer.TenantDomain,
		&customer.ContactEmail, &customer.Notes, &customer.Status,
		&customer.TotalAssessments, &regPresent, &customer.CreatedDate,
		&customer.UpdatedAt, &customer.LastAssessmentDate,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if regPresent.Valid {
		if err := reg.Scan(regPresent.String); err != nil {
			return nil, fmt.Errorf("scan app registration: %w", err)
		}
		customer.AppRegistration = reg
	}

	return customer, nil
}

// GetCustomer gets a customer by ID
func (s *PostgresStore) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	return scanCustomer(s.getDB().QueryRowContext(ctx, query, id))
}

// GetCustomerByDomain gets a non-deleted customer by tenant domain
func (s *PostgresStore) GetCustomerByDomain(ctx context.Context, domain string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + `
		FROM customers
		WHERE lower(tenant_domain) = lower($1) AND status <> $2`
	return scanCustomer(s.getDB().QueryRowContext(ctx, query, domain, models.CustomerStatusDeleted))
}

// GetCustomerByTenantID gets a non-deleted customer by Microsoft directory ID
func (s *PostgresStore) GetCustomerByTenantID(ctx context.Context, tenantID string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + `
		FROM customers
		WHERE tenant_id = $1 AND status <> $2`
	return scanCustomer(s.getDB().QueryRowContext(ctx, query, tenantID, models.CustomerStatusDeleted))
}

// ListCustomers lists customers with an optional status filter and
// continuation-token pagination
func (s *PostgresStore) ListCustomers(ctx context.Context, filters CustomerFilters) (*CustomerPage, error) {
	offset, err := DecodeContinuationToken(filters.ContinuationToken)
	if err != nil {
		return nil, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}

	where := "WHERE status <> $1"
	args := []interface{}{models.CustomerStatusDeleted}
	if filters.Status != nil {
		where = "WHERE status = $1"
		args[0] = *filters.Status
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM customers " + where
	if err := s.getDB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, err
	}

	query := `SELECT ` + customerColumns + `
		FROM customers ` + where + `
		ORDER BY created_date DESC
		LIMIT $2 OFFSET $3`
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]*models.Customer, 0, limit)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &CustomerPage{Customers: customers, Total: total}
	if int64(offset+len(customers)) < total {
		page.ContinuationToken = EncodeContinuationToken(offset + len(customers))
	}

	return page, nil
}

// UpdateCustomer applies a partial patch and returns the updated customer
func (s *PostgresStore) UpdateCustomer(ctx context.Context, id uuid.UUID, patch CustomerPatch) (*models.Customer, error) {
	sets := []string{"updated_at = $2"}
	args := []interface{}{id, time.Now()}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.TenantName != nil {
		add("tenant_name", *patch.TenantName)
	}
	if patch.ContactEmail != nil {
		add("contact_email", *patch.ContactEmail)
	}
	if patch.Notes != nil {
		add("notes", *patch.Notes)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.AppRegistration != nil {
		add("app_registration", patch.AppRegistration)
	}
	if patch.TotalAssessments != nil {
		add("total_assessments", *patch.TotalAssessments)
	}
	if patch.LastAssessmentDate != nil {
		add("last_assessment_date", *patch.LastAssessmentDate)
	}

	query := "UPDATE customers SET " + strings.Join(sets, ", ") + " WHERE id = $1"

	result, err := s.getDB().ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicateErr(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return s.GetCustomer(ctx, id)
}

// DeleteCustomer soft-deletes a customer by default; hard removes the row,
// cascading to its assessments
func (s *PostgresStore) DeleteCustomer(ctx context.Context, id uuid.UUID, hard bool) error {
	var result sql.Result
	var err error

	if hard {
		result, err = s.getDB().ExecContext(ctx, "DELETE FROM customers WHERE id = $1", id)
	} else {
		result, err = s.getDB().ExecContext(ctx,
			"UPDATE customers SET status = $2, updated_at = $3 WHERE id = $1 AND status <> $2",
			id, models.CustomerStatusDeleted, time.Now())
	}
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
