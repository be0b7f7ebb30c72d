package consent

import (
	"strings"

	"github.com/m365-assessment/assessment-server/internal/models"
)

// placeholderValues are sentinel strings older handler versions wrote into
// registration fields when a Graph call failed or was stubbed out.
var placeholderValues = map[string]struct{}{
	"":            {},
	"null":        {},
	"undefined":   {},
	"none":        {},
	"error":       {},
	"placeholder": {},
	"debug":       {},
	"pending":     {},
}

func isPlaceholder(v string) bool {
	_, ok := placeholderValues[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// NeedsManualSetup reports whether a customer's stored registration data is
// structurally invalid and requires an operator to re-run registration. It is
// only meaningful for customers whose registration claims to be completed;
// a pending registration legitimately has empty fields.
func NeedsManualSetup(reg *models.AppRegistration) bool {
	if reg == nil {
		return true
	}
	switch reg.SetupStatus {
	case models.SetupStatusPending, models.SetupStatusFailed, models.SetupStatusNeedsManualSetup:
		return false
	}
	return isPlaceholder(reg.ApplicationID) ||
		isPlaceholder(reg.ClientID) ||
		isPlaceholder(reg.ServicePrincipalID)
}

// Repair inspects a customer record and, when its registration data is
// structurally invalid, marks it needs_manual_setup. It returns true when
// the record was changed. needs_manual_setup is terminal: no automatic
// remediation runs afterwards.
func Repair(c *models.Customer) bool {
	if c.AppRegistration == nil {
		c.AppRegistration = &models.AppRegistration{
			SetupStatus:   models.SetupStatusNeedsManualSetup,
			StatusMessage: "registration data missing, re-run registration",
			CreatedDate:   c.CreatedDate,
		}
		return true
	}

	if !NeedsManualSetup(c.AppRegistration) {
		return false
	}

	c.AppRegistration.SetupStatus = models.SetupStatusNeedsManualSetup
	c.AppRegistration.StatusMessage = "registration data is invalid, re-run registration"
	return true
}
