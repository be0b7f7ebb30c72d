package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/m365-assessment/assessment-server/internal/consent"
	"github.com/m365-assessment/assessment-server/internal/models"
	"github.com/m365-assessment/assessment-server/internal/storage"
)

// HandleCreateCustomer creates a customer and triggers app registration in
// the customer tenant. The customer row is created first; a Graph failure
// leaves the registration pending so it can be retriggered later.
func (s *RESTServer) HandleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID     string   `json:"tenantId" validate:"required"`
		TenantName   string   `json:"tenantName" validate:"required"`
		TenantDomain string   `json:"tenantDomain" validate:"required,fqdn"`
		ContactEmail string   `json:"contactEmail" validate:"omitempty,email"`
		Notes        string   `json:"notes"`
		Permissions  []string `json:"permissions"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validateStruct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()

	// Friendly duplicate check; the database unique index is the guarantee
	// against the read-then-write race.
	if _, err := s.store.GetCustomerByDomain(ctx, req.TenantDomain); err == nil {
		s.respondError(w, http.StatusConflict, "a customer with this tenant domain already exists")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.respondInternal(w, err)
		return
	}
	if _, err := s.store.GetCustomerByTenantID(ctx, req.TenantID); err == nil {
		s.respondError(w, http.StatusConflict, "a customer with this tenant ID already exists")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.respondInternal(w, err)
		return
	}

	permissions := req.Permissions
	if len(permissions) == 0 {
		permissions = s.config.Azure.DefaultPermissions
	}

	customer := &models.Customer{
		TenantID:     req.TenantID,
		TenantName:   req.TenantName,
		TenantDomain: req.TenantDomain,
		ContactEmail: req.ContactEmail,
		Notes:        req.Notes,
		Status:       models.CustomerStatusPending,
		AppRegistration: &models.AppRegistration{
			Permissions: permissions,
			SetupStatus: models.SetupStatusPending,
			CreatedDate: time.Now(),
		},
	}

	if err := s.store.CreateCustomer(ctx, customer); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "a customer with this tenant domain or tenant ID already exists")
			return
		}
		s.respondInternal(w, err)
		return
	}

	message := "customer created"
	if err := s.registerCustomerApp(ctx, customer); err != nil {
		log.Warn().
			Err(err).
			Str("customer_id", customer.ID.String()).
			Str("tenant_domain", customer.TenantDomain).
			Msg("App registration failed at customer creation, registration stays pending")
		message = "customer created; app registration failed and can be retriggered"
	}

	s.publisher.CustomerRegistered(customer)

	s.respondMessage(w, http.StatusCreated, customer, message)
}

// registerCustomerApp creates the Azure AD application + service principal
// for a customer and stores the resulting consent URL. The registration stays
// pending until the consent callback confirms admin consent.
func (s *RESTServer) registerCustomerApp(ctx context.Context, customer *models.Customer) error {
	reg := customer.AppRegistration

	gc, err := s.graph(s.config.Azure.TenantID)
	if err != nil {
		reg.StatusMessage = "graph client unavailable: " + err.Error()
		s.saveRegistration(ctx, customer)
		return err
	}

	displayName := fmt.Sprintf("%s (%s)", s.config.Azure.AppDisplayName, customer.TenantDomain)
	result, err := gc.CreateAppRegistration(ctx, displayName, s.config.Azure.RedirectURI, reg.Permissions)
	if err != nil {
		reg.StatusMessage = "app registration failed: " + err.Error()
		s.saveRegistration(ctx, customer)
		return err
	}

	state, err := s.signer.Sign(customer.ID)
	if err != nil {
		reg.StatusMessage = "state token signing failed: " + err.Error()
		s.saveRegistration(ctx, customer)
		return err
	}

	consentURL := consent.BuildConsentURL(customer.TenantID, result.ClientID, s.config.Azure.RedirectURI, state)

	reg.ApplicationID = result.ApplicationID
	reg.ClientID = result.ClientID
	reg.ServicePrincipalID = result.ServicePrincipalID
	reg.ConsentURL = &consentURL
	reg.StatusMessage = "awaiting admin consent"

	return s.saveRegistration(ctx, customer)
}

// saveRegistration persists the customer's registration sub-object
func (s *RESTServer) saveRegistration(ctx context.Context, customer *models.Customer) error {
	updated, err := s.store.UpdateCustomer(ctx, customer.ID, storage.CustomerPatch{
		AppRegistration: customer.AppRegistration,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("customer_id", customer.ID.String()).
			Msg("Failed to persist app registration state")
		return err
	}
	*customer = *updated
	return nil
}

// HandleListCustomers lists customers with an optional status filter and
// continuation-token pagination
func (s *RESTServer) HandleListCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filters := storage.CustomerFilters{
		ContinuationToken: r.URL.Query().Get("continuationToken"),
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.CustomerStatus(raw)
		if !status.Valid() {
			s.respondError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filters.Status = &status
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 200 {
			s.respondError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		filters.Limit = limit
	}

	page, err := s.store.ListCustomers(ctx, filters)
	if err != nil {
		s.respondStoreError(w, err, "customers not found")
		return
	}

	s.respondData(w, http.StatusOK, page)
}

// customerIDFromRequest parses the {id} URL parameter
func customerIDFromRequest(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// HandleGetCustomer gets a customer
func (s *RESTServer) HandleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := customerIDFromRequest(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	customer, err := s.store.GetCustomer(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "customer not found")
		return
	}

	s.respondData(w, http.StatusOK, customer)
}

// HandleUpdateCustomer applies a partial update: only fields present in the
// body change
func (s *RESTServer) HandleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := customerIDFromRequest(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	var req struct {
		TenantName   *string `json:"tenantName" validate:"omitempty,min=1"`
		ContactEmail *string `json:"contactEmail" validate:"omitempty,email"`
		Notes        *string `json:"notes"`
		Status       *string `json:"status" validate:"omitempty,oneof=active inactive pending deleted"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validateStruct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	patch := storage.CustomerPatch{
		TenantName:   req.TenantName,
		ContactEmail: req.ContactEmail,
		Notes:        req.Notes,
	}
	if req.Status != nil {
		status := models.CustomerStatus(*req.Status)
		patch.Status = &status
	}

	customer, err := s.store.UpdateCustomer(r.Context(), id, patch)
	if err != nil {
		s.respondStoreError(w, err, "customer not found")
		return
	}

	s.respondData(w, http.StatusOK, customer)
}

// HandleDeleteCustomer soft-deletes a customer; ?hard=true removes the row
// and cascades to its assessments
func (s *RESTServer) HandleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := customerIDFromRequest(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	hard := r.URL.Query().Get("hard") == "true"

	if err := s.store.DeleteCustomer(r.Context(), id, hard); err != nil {
		s.respondStoreError(w, err, "customer not found")
		return
	}

	s.respondMessage(w, http.StatusOK, nil, "customer deleted")
}

// HandleRetriggerRegistration re-runs app registration for a customer whose
// registration is pending, failed, or flagged for manual setup
func (s *RESTServer) HandleRetriggerRegistration(w http.ResponseWriter, r *http.Request) {
	id, err := customerIDFromRequest(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	ctx := r.Context()

	customer, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		s.respondStoreError(w, err, "customer not found")
		return
	}
	if customer.IsDeleted() {
		s.respondError(w, http.StatusNotFound, "customer not found")
		return
	}
	if customer.ConsentCompleted() {
		s.respondError(w, http.StatusConflict, "app registration is already completed for this customer")
		return
	}

	permissions := s.config.Azure.DefaultPermissions
	if customer.AppRegistration != nil && len(customer.AppRegistration.Permissions) > 0 {
		permissions = customer.AppRegistration.Permissions
	}

	// A fresh registration object restarts the lifecycle at pending.
	customer.AppRegistration = &models.AppRegistration{
		Permissions: permissions,
		SetupStatus: models.SetupStatusPending,
		CreatedDate: time.Now(),
	}

	if err := s.registerCustomerApp(ctx, customer); err != nil {
		s.respondError(w, http.StatusBadGateway, "app registration failed: "+err.Error())
		return
	}

	s.respondMessage(w, http.StatusOK, customer, "app registration recreated, awaiting admin consent")
}

// HandleRepairRegistrations scans all customers for structurally invalid
// registration data and marks them needs_manual_setup
func (s *RESTServer) HandleRepairRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := s.store.ListCustomers(ctx, storage.CustomerFilters{Limit: 200})
	if err != nil {
		s.respondInternal(w, err)
		return
	}

	checked := 0
	repaired := make([]uuid.UUID, 0)

	for {
		for _, customer := range page.Customers {
			checked++
			if !consent.Repair(customer) {
				continue
			}
			if _, err := s.store.UpdateCustomer(ctx, customer.ID, storage.CustomerPatch{
				AppRegistration: customer.AppRegistration,
			}); err != nil {
				s.respondInternal(w, err)
				return
			}
			repaired = append(repaired, customer.ID)
		}

		if page.ContinuationToken == "" {
			break
		}
		page, err = s.store.ListCustomers(ctx, storage.CustomerFilters{
			Limit:             200,
			ContinuationToken: page.ContinuationToken,
		})
		if err != nil {
			s.respondInternal(w, err)
			return
		}
	}

	s.respondData(w, http.StatusOK, map[string]interface{}{
		"checked":  checked,
		"repaired": len(repaired),
		"ids":      repaired,
	})
}
