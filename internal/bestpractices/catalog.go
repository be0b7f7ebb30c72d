// Package bestpractices holds the static catalog of recommendation templates
// served by the best-practices endpoint.
package bestpractices

// Practice is one recommendation template
type Practice struct {
	ID             string `json:"id"`
	Category       string `json:"category"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

var catalog = []Practice{
	{
		ID:             "license-low-utilization",
		Category:       "licensing",
		Title:          "Low license utilization",
		Description:    "Less than 70% of purchased licenses are assigned to users.",
		Recommendation: "Review and reallocate unused licenses, or reduce the subscription count at the next renewal.",
	},
	{
		ID:             "license-high-utilization",
		Category:       "licensing",
		Title:          "License pool nearly exhausted",
		Description:    "More than 95% of purchased licenses are assigned.",
		Recommendation: "Consider purchasing additional licenses before onboarding more users.",
	},
	{
		ID:             "secure-score-low",
		Category:       "security",
		Title:          "Secure Score below 70%",
		Description:    "The tenant achieves less than 70% of its attainable Secure Score points.",
		Recommendation: "Review the lowest-scoring controls in the Microsoft 365 Defender portal and enable the recommended settings.",
	},
	{
		ID:             "mfa-admins",
		Category:       "identity",
		Title:          "Require MFA for administrative roles",
		Description:    "Privileged accounts without multi-factor authentication are the most common compromise path.",
		Recommendation: "Enable a conditional access policy requiring MFA for all directory role holders.",
	},
	{
		ID:             "block-legacy-auth",
		Category:       "identity",
		Title:          "Block legacy authentication",
		Description:    "Legacy protocols (IMAP, POP, SMTP AUTH) bypass conditional access and MFA.",
		Recommendation: "Create a conditional access policy blocking legacy authentication clients tenant-wide.",
	},
	{
		ID:             "audit-log-retention",
		Category:       "compliance",
		Title:          "Enable unified audit logging",
		Description:    "Without audit logging, incident investigation is blind.",
		Recommendation: "Turn on the unified audit log and verify retention meets your compliance requirements.",
	},
	{
		ID:             "idle-license-review",
		Category:       "licensing",
		Title:          "Review licenses of inactive users",
		Description:    "Licenses assigned to accounts with no sign-in activity in 90 days are wasted spend.",
		Recommendation: "Run a sign-in activity report and reclaim licenses from dormant accounts.",
	},
	{
		ID:             "secure-score-trend",
		Category:       "security",
		Title:          "Track Secure Score trend",
		Description:    "A sudden score drop usually means a control was disabled or a new workload went unconfigured.",
		Recommendation: "Run assessments on a regular cadence and investigate any downward trend in the history view.",
	},
}

// Catalog returns the full recommendation-template catalog
func Catalog() []Practice {
	out := make([]Practice, len(catalog))
	copy(out, catalog)
	return out
}
