package graph

import (
	"time"

	"github.com/m365-assessment/assessment-server/internal/models"
	"github.com/m365-assessment/assessment-server/internal/scoring"
)

// Organization is the Graph organization profile
type Organization struct {
	ID              string           `json:"id"`
	DisplayName     string           `json:"displayName"`
	VerifiedDomains []VerifiedDomain `json:"verifiedDomains"`
}

// VerifiedDomain is one verified domain of an organization
type VerifiedDomain struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
	IsInitial bool   `json:"isInitial"`
}

// DefaultDomain returns the organization's default domain name, if any
func (o *Organization) DefaultDomain() string {
	for _, d := range o.VerifiedDomains {
		if d.IsDefault {
			return d.Name
		}
	}
	if len(o.VerifiedDomains) > 0 {
		return o.VerifiedDomains[0].Name
	}
	return ""
}

// SubscribedSKU is one licensed product from /subscribedSkus
type SubscribedSKU struct {
	SKUID            string       `json:"skuId"`
	SKUPartNumber    string       `json:"skuPartNumber"`
	CapabilityStatus string       `json:"capabilityStatus"`
	ConsumedUnits    int          `json:"consumedUnits"`
	PrepaidUnits     PrepaidUnits `json:"prepaidUnits"`
}

// PrepaidUnits is the unit breakdown of a subscribed SKU
type PrepaidUnits struct {
	Enabled   int `json:"enabled"`
	Suspended int `json:"suspended"`
	Warning   int `json:"warning"`
}

// SecureScore is one document from /security/secureScores
type SecureScore struct {
	ID              string         `json:"id"`
	AzureTenantID   string         `json:"azureTenantId"`
	CurrentScore    float64        `json:"currentScore"`
	MaxScore        float64        `json:"maxScore"`
	CreatedDateTime time.Time      `json:"createdDateTime"`
	ControlScores   []ControlScore `json:"controlScores"`
}

// ControlScore is the per-control slice of a secure score document
type ControlScore struct {
	ControlName     string  `json:"controlName"`
	ControlCategory string  `json:"controlCategory"`
	Score           float64 `json:"score"`
	Description     string  `json:"description"`
}

// LicenseMetricsFromSKUs derives license metrics from subscribed SKUs
func LicenseMetricsFromSKUs(skus []SubscribedSKU) models.LicenseMetrics {
	var total, assigned int
	breakdown := make([]models.SKUBreakdown, 0, len(skus))

	for _, sku := range skus {
		total += sku.PrepaidUnits.Enabled
		assigned += sku.ConsumedUnits
		breakdown = append(breakdown, models.SKUBreakdown{
			SKUPartNumber: sku.SKUPartNumber,
			Enabled:       sku.PrepaidUnits.Enabled,
			Consumed:      sku.ConsumedUnits,
		})
	}

	return models.LicenseMetrics{
		TotalLicenses:    total,
		AssignedLicenses: assigned,
		UtilizationRate:  scoring.UtilizationRate(assigned, total),
		SKUs:             breakdown,
		Available:        true,
	}
}

// SecureScoreMetrics derives secure-score metrics from the latest document
func SecureScoreMetrics(doc *SecureScore) models.SecureScoreMetrics {
	controls := make([]models.ControlBreakdown, 0, len(doc.ControlScores))
	for _, c := range doc.ControlScores {
		controls = append(controls, models.ControlBreakdown{
			ControlName: c.ControlName,
			Category:    c.ControlCategory,
			Score:       c.Score,
			Description: c.Description,
		})
	}

	return models.SecureScoreMetrics{
		CurrentScore: doc.CurrentScore,
		MaxScore:     doc.MaxScore,
		Percentage:   scoring.Percentage(doc.CurrentScore, doc.MaxScore),
		Controls:     controls,
		Available:    true,
	}
}
