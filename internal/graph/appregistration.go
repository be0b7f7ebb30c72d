package graph

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// graphResourceAppID is the well-known resource appId of Microsoft Graph
const graphResourceAppID = "00000003-0000-0000-c000-000000000000"

// applicationRoleIDs maps Graph application permission names to their role IDs
var applicationRoleIDs = map[string]string{
	"Organization.Read.All":   "498476ce-e0fe-48b0-b801-37ba7e2685c6",
	"Directory.Read.All":      "7ab1d382-f21e-4acd-a863-ba3e13f7da61",
	"Reports.Read.All":        "230c1aed-a721-4c5d-9cb4-a90514e508ef",
	"SecurityEvents.Read.All": "bf394140-e372-4bf9-a898-299cfc7564e5",
	"User.Read.All":           "df021288-bdef-4463-88db-98f22de89214",
}

// AppRegistrationResult is the shape returned by app-registration operations
type AppRegistrationResult struct {
	ApplicationID      string
	ClientID           string
	ServicePrincipalID string
}

type applicationResource struct {
	ID    string `json:"id"`
	AppID string `json:"appId"`
}

type servicePrincipalResource struct {
	ID    string `json:"id"`
	AppID string `json:"appId"`
}

type resourceAccess struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type requiredResourceAccess struct {
	ResourceAppID  string           `json:"resourceAppId"`
	ResourceAccess []resourceAccess `json:"resourceAccess"`
}

// buildRequiredResourceAccess resolves permission names to Graph role grants.
// Unknown names are skipped rather than failing the whole registration.
func buildRequiredResourceAccess(permissions []string) requiredResourceAccess {
	rra := requiredResourceAccess{ResourceAppID: graphResourceAppID}
	for _, name := range permissions {
		roleID, ok := applicationRoleIDs[name]
		if !ok {
			log.Warn().Str("permission", name).Msg("Unknown Graph permission, skipping")
			continue
		}
		rra.ResourceAccess = append(rra.ResourceAccess, resourceAccess{ID: roleID, Type: "Role"})
	}
	return rra
}

// newApplicationBody builds the request body for a multi-tenant application
// registration
func newApplicationBody(displayName, redirectURI string, permissions []string) map[string]interface{} {
	return map[string]interface{}{
		"displayName":    displayName,
		"signInAudience": "AzureADMultipleOrgs",
		"web": map[string]interface{}{
			"redirectUris": []string{redirectURI},
		},
		"requiredResourceAccess": []requiredResourceAccess{
			buildRequiredResourceAccess(permissions),
		},
	}
}

// createApplication creates an application object and its service principal.
// If service-principal creation fails after the application was created, the
// application object is deleted again; when that compensating delete also
// fails the orphan is logged and left for operational cleanup.
func (c *Client) createApplication(ctx context.Context, appBody map[string]interface{}) (*AppRegistrationResult, error) {
	var app applicationResource
	if err := c.do(ctx, http.MethodPost, "/applications", appBody, &app); err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}

	var sp servicePrincipalResource
	spBody := map[string]interface{}{"appId": app.AppID}
	if err := c.do(ctx, http.MethodPost, "/servicePrincipals", spBody, &sp); err != nil {
		if delErr := c.do(ctx, http.MethodDelete, "/applications/"+app.ID, nil, nil); delErr != nil {
			log.Error().
				Err(delErr).
				Str("application_id", app.ID).
				Msg("Failed to delete orphaned application after service principal creation failed")
		}
		return nil, fmt.Errorf("create service principal: %w", err)
	}

	return &AppRegistrationResult{
		ApplicationID:      app.ID,
		ClientID:           app.AppID,
		ServicePrincipalID: sp.ID,
	}, nil
}

// CreateAppRegistration registers a multi-tenant application with the given
// Graph permissions and creates its service principal.
func (c *Client) CreateAppRegistration(ctx context.Context, displayName, redirectURI string, permissions []string) (*AppRegistrationResult, error) {
	return c.createApplication(ctx, newApplicationBody(displayName, redirectURI, permissions))
}

// CreateEnterpriseApplication registers a multi-tenant application intended
// for consent inside the target tenant. The application lives in the home
// tenant; the notes field records which customer tenant it was created for.
func (c *Client) CreateEnterpriseApplication(ctx context.Context, targetTenantID, displayName, redirectURI string, permissions []string) (*AppRegistrationResult, error) {
	appBody := newApplicationBody(displayName, redirectURI, permissions)
	appBody["notes"] = fmt.Sprintf("enterprise application for tenant %s", targetTenantID)
	return c.createApplication(ctx, appBody)
}
