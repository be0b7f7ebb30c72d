// Package graph is a thin client for the Microsoft Graph REST API.
//
// Each operation performs one authenticated HTTPS call and returns a parsed
// JSON shape or a typed *APIError. Tokens come from an azcore.TokenCredential
// so tests can substitute a static credential.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	graphScope     = "https://graph.microsoft.com/.default"
)

// Client issues authenticated calls against Microsoft Graph
type Client struct {
	cred       azcore.TokenCredential
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the Graph endpoint (used by tests)
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Graph client from an existing credential
func NewClient(cred azcore.TokenCredential, opts ...Option) *Client {
	c := &Client{
		cred:    cred,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewTenantClient creates a Graph client authenticating as a service
// principal in the given tenant
func NewTenantClient(tenantID, clientID, clientSecret string, opts ...Option) (*Client, error) {
	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("create client secret credential: %w", err)
	}
	return NewClient(cred, opts...), nil
}

// token obtains an access token for the Graph default scope
func (c *Client) token(ctx context.Context) (string, error) {
	tok, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{graphScope},
	})
	if err != nil {
		return "", fmt.Errorf("acquire graph token: %w", err)
	}
	return tok.Token, nil
}

// do performs one Graph call and decodes the response into out (if non-nil)
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

// GetOrganization returns the tenant's organization profile
func (c *Client) GetOrganization(ctx context.Context) (*Organization, error) {
	var list struct {
		Value []Organization `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/organization", nil, &list); err != nil {
		return nil, err
	}
	if len(list.Value) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Code: "OrganizationNotFound", Message: "organization collection is empty"}
	}
	return &list.Value[0], nil
}

// ListSubscribedSKUs returns the tenant's licensed SKUs
func (c *Client) ListSubscribedSKUs(ctx context.Context) ([]SubscribedSKU, error) {
	var list struct {
		Value []SubscribedSKU `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/subscribedSkus", nil, &list); err != nil {
		return nil, err
	}
	return list.Value, nil
}

// GetSecureScore returns the latest secure score document. It fails with a
// 403 APIError when SecurityEvents.Read.All has not been consented; callers
// treat that as a partial failure, not a fatal one.
func (c *Client) GetSecureScore(ctx context.Context) (*SecureScore, error) {
	var list struct {
		Value []SecureScore `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/security/secureScores?$top=1", nil, &list); err != nil {
		return nil, err
	}
	if len(list.Value) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Code: "SecureScoreNotFound", Message: "no secure score documents available"}
	}
	return &list.Value[0], nil
}
