package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m365-assessment/assessment-server/internal/consent"
	"github.com/m365-assessment/assessment-server/internal/models"
)

// signState produces a state token the server's own signer accepts
func signState(t *testing.T, customerID uuid.UUID) string {
	t.Helper()
	token, err := consent.NewStateSigner(testStateSecret, time.Hour).Sign(customerID)
	require.NoError(t, err)
	return token
}

func postCallback(t *testing.T, s *RESTServer, params url.Values) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/consent-callback?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env apiEnvelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	}
	return rec, env
}

func TestConsentCallbackMissingState(t *testing.T) {
	s := newTestServer(newMemStore(), &fakeGraph{})

	rec, env := postCallback(t, s, url.Values{"admin_consent": {"True"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, "missing state")
}

func TestConsentCallbackInvalidState(t *testing.T) {
	s := newTestServer(newMemStore(), &fakeGraph{})

	rec, env := postCallback(t, s, url.Values{
		"state":         {"garbage"},
		"admin_consent": {"True"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, "invalid or expired")
}

func TestConsentCallbackUnknownCustomer(t *testing.T) {
	s := newTestServer(newMemStore(), &fakeGraph{})

	rec, env := postCallback(t, s, url.Values{
		"state":         {signState(t, uuid.New())},
		"admin_consent": {"True"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, "known customer")
}

func TestConsentCallbackWithoutGrantMutatesNothing(t *testing.T) {
	store := newMemStore()
	s := newTestServer(store, &fakeGraph{})

	customer := createTestCustomer(t, s, "contoso.com", "tenant-1")

	rec, env := postCallback(t, s, url.Values{
		"state": {signState(t, customer.ID)},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)

	// The registration is untouched
	stored, err := store.GetCustomer(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SetupStatusPending, stored.AppRegistration.SetupStatus)
	assert.Equal(t, models.CustomerStatusPending, stored.Status)
}

func TestConsentCallbackGranted(t *testing.T) {
	store := newMemStore()
	s := newTestServer(store, &fakeGraph{})

	customer := createTestCustomer(t, s, "contoso.com", "tenant-1")

	rec, env := postCallback(t, s, url.Values{
		"state":         {signState(t, customer.ID)},
		"admin_consent": {"True"},
		"tenant":        {"tenant-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.True(t, env.Success)

	stored, err := store.GetCustomer(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SetupStatusCompleted, stored.AppRegistration.SetupStatus)
	assert.Equal(t, models.CustomerStatusActive, stored.Status)
}

func TestConsentCallbackGrantedIsIdempotent(t *testing.T) {
	store := newMemStore()
	s := newTestServer(store, &fakeGraph{})

	customer := createTestCustomer(t, s, "contoso.com", "tenant-1")
	params := url.Values{
		"state":         {signState(t, customer.ID)},
		"admin_consent": {"True"},
	}

	rec, _ := postCallback(t, s, params)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := postCallback(t, s, params)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Contains(t, env.Message, "already completed")
}

func TestConsentCallbackDenied(t *testing.T) {
	store := newMemStore()
	s := newTestServer(store, &fakeGraph{})

	customer := createTestCustomer(t, s, "contoso.com", "tenant-1")

	rec, env := postCallback(t, s, url.Values{
		"state":             {signState(t, customer.ID)},
		"error":             {"access_denied"},
		"error_description": {"AADSTS65004: the admin declined"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "admin declined")

	stored, err := store.GetCustomer(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SetupStatusFailed, stored.AppRegistration.SetupStatus)
	assert.Equal(t, models.CustomerStatusPending, stored.Status)
}

func TestConsentCallbackCompletesUnfinishedRegistration(t *testing.T) {
	store := newMemStore()
	gc := &fakeGraph{createErr: assert.AnError}
	s := newTestServer(store, gc)

	// Registration fails at creation; the customer stays pending with no
	// service principal.
	customer := createTestCustomer(t, s, "contoso.com", "tenant-1")
	require.Empty(t, customer.AppRegistration.ServicePrincipalID)

	// Graph recovers before the admin clicks the consent link; the callback
	// finishes the registration itself.
	gc.createErr = nil
	rec, env := postCallback(t, s, url.Values{
		"state":         {signState(t, customer.ID)},
		"admin_consent": {"True"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	stored, err := store.GetCustomer(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SetupStatusCompleted, stored.AppRegistration.SetupStatus)
	assert.NotEmpty(t, stored.AppRegistration.ServicePrincipalID)
}

func TestConsentCallbackRegistrationFailureAfterGrant(t *testing.T) {
	store := newMemStore()
	gc := &fakeGraph{createErr: assert.AnError}
	s := newTestServer(store, gc)

	customer := createTestCustomer(t, s, "contoso.com", "tenant-1")

	rec, env := postCallback(t, s, url.Values{
		"state":         {signState(t, customer.ID)},
		"admin_consent": {"True"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "retrigger")

	stored, err := store.GetCustomer(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SetupStatusFailed, stored.AppRegistration.SetupStatus)
}

func TestConsentCallbackBrowserPage(t *testing.T) {
	store := newMemStore()
	s := newTestServer(store, &fakeGraph{})

	customer := createTestCustomer(t, s, "contoso.com", "tenant-1")

	q := url.Values{
		"state":         {signState(t, customer.ID)},
		"admin_consent": {"True"},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/consent-callback?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Consent completed")
	assert.Contains(t, rec.Body.String(), "contoso.com")
}
