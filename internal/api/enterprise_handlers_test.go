package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m365-assessment/assessment-server/internal/graph"
)

func TestCreateEnterpriseApp(t *testing.T) {
	gc := &fakeGraph{createResult: &graph.AppRegistrationResult{
		ApplicationID:      "obj-1",
		ClientID:           "app-1",
		ServicePrincipalID: "sp-1",
	}}
	s := newTestServer(newMemStore(), gc)

	rec, env := doJSON(t, s, http.MethodPost, "/api/enterprise-app/multi-tenant", map[string]interface{}{
		"targetTenantId": uuid.New().String(),
		"displayName":    "Contoso Assessment App",
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var result map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "obj-1", result["applicationId"])
	assert.Equal(t, "app-1", result["clientId"])
	assert.Equal(t, "sp-1", result["servicePrincipalId"])
}

func TestCreateEnterpriseAppValidation(t *testing.T) {
	gc := &fakeGraph{}
	s := newTestServer(newMemStore(), gc)

	rec, env := doJSON(t, s, http.MethodPost, "/api/enterprise-app/multi-tenant", map[string]interface{}{
		"targetTenantId": "not-a-uuid",
		"displayName":    "Contoso Assessment App",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "targetTenantID must be a valid UUID", env.Error)
	assert.Zero(t, gc.createCalls)

	rec, _ = doJSON(t, s, http.MethodPost, "/api/enterprise-app/multi-tenant", map[string]interface{}{
		"targetTenantId": uuid.New().String(),
		"displayName":    "ab",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateEnterpriseAppPermissionDenied(t *testing.T) {
	gc := &fakeGraph{createErr: &graph.APIError{
		StatusCode: http.StatusForbidden,
		Code:       "Authorization_RequestDenied",
		Message:    "Insufficient privileges",
	}}
	s := newTestServer(newMemStore(), gc)

	rec, env := doJSON(t, s, http.MethodPost, "/api/enterprise-app/multi-tenant", map[string]interface{}{
		"targetTenantId": uuid.New().String(),
		"displayName":    "Contoso Assessment App",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, env.Error, "Application.ReadWrite.All")
}
