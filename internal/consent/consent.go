// Package consent implements the admin-consent half of the app-registration
// lifecycle: building consent URLs, signing and verifying the OAuth state
// parameter, and evaluating redirect callbacks.
package consent

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/m365-assessment/assessment-server/internal/models"
)

// Callback evaluation errors
var (
	ErrMissingGrant = errors.New("callback carries neither admin_consent nor an authorization code")
	ErrInvalidState = errors.New("invalid or expired state parameter")
)

// StateSigner signs and verifies the OAuth state parameter as an HMAC JWT so
// the consent callback can prove the redirect belongs to a known customer.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewStateSigner creates a state signer. ttl bounds how long a consent link
// stays valid.
func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl}
}

type stateClaims struct {
	jwt.RegisteredClaims
	CustomerID uuid.UUID `json:"customer_id"`
}

// Sign produces a state token bound to a customer
func (s *StateSigner) Sign(customerID uuid.UUID) (string, error) {
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   customerID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "assessment-server",
			ID:        uuid.New().String(),
		},
		CustomerID: customerID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign state token: %w", err)
	}
	return signed, nil
}

// Parse verifies a state token and returns the customer it was issued for
func (s *StateSigner) Parse(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &stateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	claims, ok := token.Claims.(*stateClaims)
	if !ok || !token.Valid || claims.CustomerID == uuid.Nil {
		return uuid.Nil, ErrInvalidState
	}
	return claims.CustomerID, nil
}

// BuildConsentURL returns the Azure AD admin-consent URL for a tenant
func BuildConsentURL(tenantID, clientID, redirectURI, state string) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("state", state)
	q.Set("redirect_uri", redirectURI)
	return fmt.Sprintf("https://login.microsoftonline.com/%s/adminconsent?%s", tenantID, q.Encode())
}

// CallbackParams are the query parameters of an OAuth consent redirect
type CallbackParams struct {
	State            string
	AdminConsent     string
	Code             string
	TenantID         string
	Error            string
	ErrorDescription string
}

// CallbackParamsFromQuery extracts the relevant parameters from a redirect query
func CallbackParamsFromQuery(q url.Values) CallbackParams {
	return CallbackParams{
		State:            q.Get("state"),
		AdminConsent:     q.Get("admin_consent"),
		Code:             q.Get("code"),
		TenantID:         q.Get("tenant"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// Outcome classifies a consent callback
type Outcome int

const (
	// OutcomeGranted means the admin approved the requested permissions
	OutcomeGranted Outcome = iota
	// OutcomeDenied means the admin rejected consent or Azure AD reported an error
	OutcomeDenied
)

// Evaluate classifies callback parameters. A callback with neither
// admin_consent=True nor an authorization code is a validation error and
// must not mutate the customer record.
func (p CallbackParams) Evaluate() (Outcome, error) {
	if p.Error != "" {
		return OutcomeDenied, nil
	}
	if strings.EqualFold(p.AdminConsent, "true") || p.Code != "" {
		return OutcomeGranted, nil
	}
	return 0, ErrMissingGrant
}

// DenialReason is the human-readable reason for a denied callback
func (p CallbackParams) DenialReason() string {
	if p.ErrorDescription != "" {
		return p.ErrorDescription
	}
	if p.Error != "" {
		return p.Error
	}
	return "consent was not granted"
}

// CanTransition reports whether a setup-status transition is allowed.
// Transitions only move forward: pending may become completed or failed,
// completed and failed never change, and needs_manual_setup is terminal
// (only the repair routine sets it).
func CanTransition(from, to models.SetupStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case models.SetupStatusPending:
		return to == models.SetupStatusCompleted || to == models.SetupStatusFailed
	default:
		return false
	}
}

// Advance moves a registration to the given status, enforcing forward-only
// transitions
func Advance(reg *models.AppRegistration, to models.SetupStatus, message string) error {
	if reg == nil {
		return errors.New("customer has no app registration")
	}
	if !CanTransition(reg.SetupStatus, to) {
		return fmt.Errorf("illegal setup status transition %s -> %s", reg.SetupStatus, to)
	}
	reg.SetupStatus = to
	reg.StatusMessage = message
	return nil
}
