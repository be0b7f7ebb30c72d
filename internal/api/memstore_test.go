package api

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m365-assessment/assessment-server/internal/graph"
	"github.com/m365-assessment/assessment-server/internal/models"
	"github.com/m365-assessment/assessment-server/internal/storage"
)

// memStore is an in-memory storage.Store for handler tests. It mirrors the
// Postgres implementation's semantics: ID assignment on create, unique
// tenant_domain/tenant_id among non-deleted customers, a unique
// (assessment_id, tenant_id) pair in history, and patch-style updates.
type memStore struct {
	mu          sync.Mutex
	customers   map[uuid.UUID]*models.Customer
	assessments map[uuid.UUID]*models.Assessment
	history     []*models.AssessmentHistory
}

func newMemStore() *memStore {
	return &memStore{
		customers:   make(map[uuid.UUID]*models.Customer),
		assessments: make(map[uuid.UUID]*models.Assessment),
	}
}

func cloneCustomer(c *models.Customer) *models.Customer {
	out := *c
	if c.AppRegistration != nil {
		reg := *c.AppRegistration
		out.AppRegistration = &reg
	}
	return &out
}

func (m *memStore) BeginTx(ctx context.Context) (storage.Store, error) { return m, nil }
func (m *memStore) Commit() error                                      { return nil }
func (m *memStore) Rollback() error                                    { return nil }
func (m *memStore) Close() error                                       { return nil }

func (m *memStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.customers {
		if existing.IsDeleted() {
			continue
		}
		if strings.EqualFold(existing.TenantDomain, customer.TenantDomain) ||
			existing.TenantID == customer.TenantID {
			return storage.ErrDuplicateKey
		}
	}

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

	m.customers[customer.ID] = cloneCustomer(customer)
	return nil
}

func (m *memStore) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneCustomer(c), nil
}

func (m *memStore) GetCustomerByDomain(ctx context.Context, domain string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.customers {
		if !c.IsDeleted() && strings.EqualFold(c.TenantDomain, domain) {
			return cloneCustomer(c), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) GetCustomerByTenantID(ctx context.Context, tenantID string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.customers {
		if !c.IsDeleted() && c.TenantID == tenantID {
			return cloneCustomer(c), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) ListCustomers(ctx context.Context, filters storage.CustomerFilters) (*storage.CustomerPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset, err := storage.DecodeContinuationToken(filters.ContinuationToken)
	if err != nil {
		return nil, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}

	matched := make([]*models.Customer, 0, len(m.customers))
	for _, c := range m.customers {
		if filters.Status != nil {
			if c.Status != *filters.Status {
				continue
			}
		} else if c.IsDeleted() {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedDate.After(matched[j].CreatedDate)
	})

	total := int64(len(matched))
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	page := &storage.CustomerPage{Total: total}
	for _, c := range matched[offset:end] {
		page.Customers = append(page.Customers, cloneCustomer(c))
	}
	if int64(end) < total {
		page.ContinuationToken = storage.EncodeContinuationToken(end)
	}
	return page, nil
}

func (m *memStore) UpdateCustomer(ctx context.Context, id uuid.UUID, patch storage.CustomerPatch) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	if patch.TenantName != nil {
		c.TenantName = *patch.TenantName
	}
	if patch.ContactEmail != nil {
		c.ContactEmail = *patch.ContactEmail
	}
	if patch.Notes != nil {
		c.Notes = *patch.Notes
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.AppRegistration != nil {
		reg := *patch.AppRegistration
		c.AppRegistration = &reg
	}
	if patch.TotalAssessments != nil {
		c.TotalAssessments = *patch.TotalAssessments
	}
	if patch.LastAssessmentDate != nil {
		d := *patch.LastAssessmentDate
		c.LastAssessmentDate = &d
	}
	c.UpdatedAt = time.Now()

	return cloneCustomer(c), nil
}

func (m *memStore) DeleteCustomer(ctx context.Context, id uuid.UUID, hard bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.customers[id]
	if !ok {
		return storage.ErrNotFound
	}

	if hard {
		delete(m.customers, id)
		for aid, a := range m.assessments {
			if a.CustomerID == id {
				delete(m.assessments, aid)
			}
		}
		return nil
	}

	if c.IsDeleted() {
		return storage.ErrNotFound
	}
	c.Status = models.CustomerStatusDeleted
	c.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) CreateAssessment(ctx context.Context, assessment *models.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

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

	copied := *assessment
	m.assessments[assessment.ID] = &copied
	return nil
}

func (m *memStore) GetAssessment(ctx context.Context, id uuid.UUID) (*models.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assessments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *memStore) UpdateAssessment(ctx context.Context, assessment *models.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.assessments[assessment.ID]; !ok {
		return storage.ErrNotFound
	}
	copied := *assessment
	m.assessments[assessment.ID] = &copied
	return nil
}

func (m *memStore) DeleteAssessment(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.assessments[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.assessments, id)
	return nil
}

func (m *memStore) ListAssessments(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*models.Assessment, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	matched := make([]*models.Assessment, 0)
	for _, a := range m.assessments {
		if a.CustomerID == customerID {
			copied := *a
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Date.After(matched[j].Date)
	})

	total := int64(len(matched))
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *memStore) AppendHistory(ctx context.Context, row *models.AssessmentHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.history {
		if existing.AssessmentID == row.AssessmentID && existing.TenantID == row.TenantID {
			return storage.ErrDuplicateKey
		}
	}

	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.ArchivedAt.IsZero() {
		row.ArchivedAt = time.Now()
	}

	copied := *row
	m.history = append(m.history, &copied)
	return nil
}

func (m *memStore) ListHistory(ctx context.Context, tenantID string, limit int) ([]*models.AssessmentHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	matched := make([]*models.AssessmentHistory, 0)
	for _, row := range m.history {
		if tenantID == "" || row.TenantID == tenantID {
			copied := *row
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Date.After(matched[j].Date)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *memStore) PruneHistory(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.history[:0]
	var pruned int64
	for _, row := range m.history {
		if row.Date.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, row)
	}
	m.history = kept
	return pruned, nil
}

func (m *memStore) ArchiveAssessment(ctx context.Context, assessmentID uuid.UUID) error {
	assessment, err := m.GetAssessment(ctx, assessmentID)
	if err != nil {
		return err
	}
	if !assessment.Status.IsCompleted() {
		return storage.ErrInvalidData
	}
	if !m.hasHistoryRow(assessmentID, assessment.TenantID) {
		if err := m.AppendHistory(ctx, models.HistoryFromAssessment(assessment)); err != nil {
			return err
		}
	}
	return m.DeleteAssessment(ctx, assessmentID)
}

func (m *memStore) hasHistoryRow(assessmentID uuid.UUID, tenantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.history {
		if existing.AssessmentID == assessmentID && existing.TenantID == tenantID {
			return true
		}
	}
	return false
}

// fakeGraph is a scriptable GraphAPI for handler tests
type fakeGraph struct {
	org      *graph.Organization
	orgErr   error
	skus     []graph.SubscribedSKU
	skuErr   error
	score    *graph.SecureScore
	scoreErr error

	createResult *graph.AppRegistrationResult
	createErr    error
	createCalls  int
}

func (f *fakeGraph) GetOrganization(ctx context.Context) (*graph.Organization, error) {
	if f.orgErr != nil {
		return nil, f.orgErr
	}
	if f.org != nil {
		return f.org, nil
	}
	return &graph.Organization{DisplayName: "Test Org"}, nil
}

func (f *fakeGraph) ListSubscribedSKUs(ctx context.Context) ([]graph.SubscribedSKU, error) {
	if f.skuErr != nil {
		return nil, f.skuErr
	}
	return f.skus, nil
}

func (f *fakeGraph) GetSecureScore(ctx context.Context) (*graph.SecureScore, error) {
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}
	if f.score == nil {
		return &graph.SecureScore{CurrentScore: 50, MaxScore: 100}, nil
	}
	return f.score, nil
}

func (f *fakeGraph) CreateAppRegistration(ctx context.Context, displayName, redirectURI string, permissions []string) (*graph.AppRegistrationResult, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createResult != nil {
		return f.createResult, nil
	}
	return &graph.AppRegistrationResult{
		ApplicationID:      "obj-" + uuid.NewString(),
		ClientID:           "app-" + uuid.NewString(),
		ServicePrincipalID: "sp-" + uuid.NewString(),
	}, nil
}

func (f *fakeGraph) CreateEnterpriseApplication(ctx context.Context, targetTenantID, displayName, redirectURI string, permissions []string) (*graph.AppRegistrationResult, error) {
	return f.CreateAppRegistration(ctx, displayName, redirectURI, permissions)
}
