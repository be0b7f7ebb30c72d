package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/m365-assessment/assessment-server/internal/consent"
	"github.com/m365-assessment/assessment-server/internal/models"
	"github.com/m365-assessment/assessment-server/internal/storage"
)

// consentResult is the outcome of processing one consent callback
type consentResult struct {
	Status   int
	Success  bool
	Title    string
	Detail   string
	Customer *models.Customer
}

// HandleConsentCallback is the browser-facing OAuth redirect target; it
// renders a templated result page
func (s *RESTServer) HandleConsentCallback(w http.ResponseWriter, r *http.Request) {
	result := s.processConsentCallback(r.Context(), r.URL.Query())
	s.renderConsentPage(w, result)
}

// HandleConsentCallbackJSON is the same callback with a JSON envelope, used
// by the SPA when it relays the redirect parameters itself
func (s *RESTServer) HandleConsentCallbackJSON(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	params := r.Form
	if len(params) == 0 {
		params = r.URL.Query()
	}

	result := s.processConsentCallback(r.Context(), params)
	if !result.Success {
		s.respondError(w, result.Status, result.Detail)
		return
	}
	s.respondMessage(w, result.Status, result.Customer, result.Detail)
}

// processConsentCallback validates the redirect parameters and advances the
// registration state machine. An invalid or incomplete callback mutates
// nothing.
func (s *RESTServer) processConsentCallback(ctx context.Context, query url.Values) consentResult {
	params := consent.CallbackParamsFromQuery(query)

	if params.State == "" {
		return consentResult{
			Status: http.StatusBadRequest,
			Title:  "Invalid consent callback",
			Detail: "missing state parameter",
		}
	}

	customerID, err := s.signer.Parse(params.State)
	if err != nil {
		return consentResult{
			Status: http.StatusBadRequest,
			Title:  "Invalid consent callback",
			Detail: "state parameter is invalid or expired",
		}
	}

	customer, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return consentResult{
				Status: http.StatusBadRequest,
				Title:  "Invalid consent callback",
				Detail: "state parameter does not match a known customer",
			}
		}
		return consentResult{
			Status: http.StatusInternalServerError,
			Title:  "Consent processing failed",
			Detail: "could not load customer record",
		}
	}

	outcome, err := params.Evaluate()
	if err != nil {
		// Neither admin_consent nor a code: validation error, no mutation.
		return consentResult{
			Status:   http.StatusBadRequest,
			Title:    "Invalid consent callback",
			Detail:   err.Error(),
			Customer: customer,
		}
	}

	if customer.ConsentCompleted() {
		return consentResult{
			Status:   http.StatusOK,
			Success:  true,
			Title:    "Consent already recorded",
			Detail:   "admin consent for this tenant was already completed",
			Customer: customer,
		}
	}

	reg := customer.AppRegistration
	if reg == nil {
		reg = &models.AppRegistration{SetupStatus: models.SetupStatusPending, CreatedDate: customer.CreatedDate}
		customer.AppRegistration = reg
	}

	if outcome == consent.OutcomeDenied {
		if err := consent.Advance(reg, models.SetupStatusFailed, params.DenialReason()); err != nil {
			log.Warn().
				Err(err).
				Str("customer_id", customer.ID.String()).
				Msg("Cannot record consent denial")
		} else if err := s.saveRegistration(ctx, customer); err != nil {
			return consentResult{
				Status: http.StatusInternalServerError,
				Title:  "Consent processing failed",
				Detail: "could not persist consent outcome",
			}
		}
		return consentResult{
			Status:   http.StatusOK,
			Title:    "Consent was not granted",
			Detail:   params.DenialReason(),
			Customer: customer,
		}
	}

	// Consent granted. If registration never finished (no service
	// principal), finish it now; a Graph failure at this point means consent
	// was granted but setup failed.
	if reg.ServicePrincipalID == "" {
		if err := s.completeRegistration(ctx, customer); err != nil {
			log.Error().
				Err(err).
				Str("customer_id", customer.ID.String()).
				Msg("App registration failed after consent was granted")
			if advErr := consent.Advance(reg, models.SetupStatusFailed, "app registration failed after consent: "+err.Error()); advErr == nil {
				s.saveRegistration(ctx, customer)
			}
			return consentResult{
				Status:   http.StatusOK,
				Title:    "Consent recorded, setup failed",
				Detail:   "admin consent was granted but app registration could not be completed; retrigger registration and consent again",
				Customer: customer,
			}
		}
	}

	if err := consent.Advance(reg, models.SetupStatusCompleted, "admin consent granted"); err != nil {
		return consentResult{
			Status: http.StatusConflict,
			Title:  "Consent processing failed",
			Detail: err.Error(),
		}
	}

	active := models.CustomerStatusActive
	if _, err := s.store.UpdateCustomer(ctx, customer.ID, storage.CustomerPatch{
		Status:          &active,
		AppRegistration: reg,
	}); err != nil {
		return consentResult{
			Status: http.StatusInternalServerError,
			Title:  "Consent processing failed",
			Detail: "could not persist consent outcome",
		}
	}
	customer.Status = active

	log.Info().
		Str("customer_id", customer.ID.String()).
		Str("tenant_id", customer.TenantID).
		Msg("Admin consent completed")

	return consentResult{
		Status:   http.StatusOK,
		Success:  true,
		Title:    "Consent completed",
		Detail:   "the tenant is ready for assessments",
		Customer: customer,
	}
}

// completeRegistration creates the application and service principal for a
// customer whose registration rows were never filled (legacy records or a
// failed creation flow)
func (s *RESTServer) completeRegistration(ctx context.Context, customer *models.Customer) error {
	gc, err := s.graph(s.config.Azure.TenantID)
	if err != nil {
		return err
	}

	reg := customer.AppRegistration
	permissions := reg.Permissions
	if len(permissions) == 0 {
		permissions = s.config.Azure.DefaultPermissions
	}

	displayName := s.config.Azure.AppDisplayName + " (" + customer.TenantDomain + ")"
	result, err := gc.CreateAppRegistration(ctx, displayName, s.config.Azure.RedirectURI, permissions)
	if err != nil {
		return err
	}

	reg.ApplicationID = result.ApplicationID
	reg.ClientID = result.ClientID
	reg.ServicePrincipalID = result.ServicePrincipalID
	reg.Permissions = permissions
	return nil
}
