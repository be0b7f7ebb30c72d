package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/m365-assessment/assessment-server/internal/graph"
)

// HandleCreateEnterpriseApp creates a multi-tenant app registration whose
// service principal can be consented into a different customer tenant
func (s *RESTServer) HandleCreateEnterpriseApp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetTenantID string   `json:"targetTenantId" validate:"required,uuid"`
		DisplayName    string   `json:"displayName" validate:"required,min=3,max=120"`
		Permissions    []string `json:"permissions"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validateStruct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	permissions := req.Permissions
	if len(permissions) == 0 {
		permissions = s.config.Azure.DefaultPermissions
	}

	gc, err := s.graph(s.config.Azure.TenantID)
	if err != nil {
		s.respondInternal(w, err)
		return
	}

	result, err := gc.CreateEnterpriseApplication(r.Context(), req.TargetTenantID, req.DisplayName, s.config.Azure.RedirectURI, permissions)
	if err != nil {
		if apiErr, ok := graph.AsAPIError(err); ok {
			if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
				s.respondError(w, apiErr.StatusCode,
					"graph rejected the request; verify the service credential has Application.ReadWrite.All")
				return
			}
		}
		s.respondError(w, http.StatusBadGateway, "enterprise application creation failed: "+err.Error())
		return
	}

	log.Info().
		Str("target_tenant_id", req.TargetTenantID).
		Str("client_id", result.ClientID).
		Msg("Enterprise application created")

	s.respondData(w, http.StatusCreated, map[string]interface{}{
		"applicationId":      result.ApplicationID,
		"clientId":           result.ClientID,
		"servicePrincipalId": result.ServicePrincipalID,
	})
}
