// Package scoring computes the composite security score for an assessment.
//
// The composite is a fixed linear weighting of license utilization (40%) and
// Secure Score percentage (60%). An unavailable metric source contributes 0
// to the composite; there is no confidence adjustment for missing data.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/m365-assessment/assessment-server/internal/models"
)

const (
	licenseWeight     = 0.4
	secureScoreWeight = 0.6
)

// Recommendation thresholds
const (
	lowUtilizationThreshold   = 70
	highUtilizationThreshold  = 95
	lowSecureScoreThreshold   = 70
	maxControlRecommendations = 3
)

// Fixed recommendation strings triggered by the thresholds above
const (
	recLowUtilization  = "License utilization is below 70%: review and reallocate unused licenses"
	recHighUtilization = "License utilization is above 95%: consider purchasing additional licenses"
	recLowSecureScore  = "Secure Score is below 70%: review and enable recommended security controls"
	recFallback        = "Security posture looks healthy: continue monitoring license utilization and Secure Score"
)

// Result is the outcome of one score computation
type Result struct {
	Overall         int      `json:"overall"`
	Recommendations []string `json:"recommendations"`
}

// Compute maps license and secure-score metrics to a 0-100 composite score
// and an ordered list of recommendations. It is deterministic and does no I/O.
func Compute(license models.LicenseMetrics, secure models.SecureScoreMetrics) Result {
	overall := int(math.Round(
		float64(license.UtilizationRate)*licenseWeight +
			float64(secure.Percentage)*secureScoreWeight,
	))

	var recs []string

	if license.Available {
		if license.UtilizationRate < lowUtilizationThreshold {
			recs = append(recs, recLowUtilization)
		}
		if license.UtilizationRate > highUtilizationThreshold {
			recs = append(recs, recHighUtilization)
		}
	}

	if secure.Available {
		if secure.Percentage < lowSecureScoreThreshold {
			recs = append(recs, recLowSecureScore)
		}
		recs = append(recs, controlRecommendations(secure.Controls)...)
	}

	if len(recs) == 0 {
		recs = append(recs, recFallback)
	}

	return Result{Overall: overall, Recommendations: recs}
}

// controlRecommendations generates one recommendation for each of the three
// lowest-scoring controls that still have points left on the table.
func controlRecommendations(controls []models.ControlBreakdown) []string {
	candidates := make([]models.ControlBreakdown, 0, len(controls))
	for _, c := range controls {
		if c.MaxScore > 0 && c.Score >= c.MaxScore {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score < candidates[j].Score
		}
		return candidates[i].ControlName < candidates[j].ControlName
	})

	if len(candidates) > maxControlRecommendations {
		candidates = candidates[:maxControlRecommendations]
	}

	recs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.MaxScore > 0 {
			recs = append(recs, fmt.Sprintf(
				"Improve security control %q (currently %.0f of %.0f points)",
				c.ControlName, c.Score, c.MaxScore))
		} else {
			recs = append(recs, fmt.Sprintf(
				"Improve security control %q (currently %.0f points)",
				c.ControlName, c.Score))
		}
	}
	return recs
}

// UtilizationRate returns round(assigned/total*100), 0 when total is 0
func UtilizationRate(assigned, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(assigned) / float64(total) * 100))
}

// Percentage returns round(current/max*100), 0 when max is 0
func Percentage(current, max float64) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(current / max * 100))
}

// UnavailableLicenseMetrics returns the zeroed sentinel for a failed
// subscribedSkus call
func UnavailableLicenseMetrics(reason string) models.LicenseMetrics {
	return models.LicenseMetrics{
		Available: false,
		Summary:   fmt.Sprintf("license data unavailable: %s", reason),
	}
}

// UnavailableSecureScoreMetrics returns the zeroed sentinel for a failed
// secureScores call
func UnavailableSecureScoreMetrics(reason string) models.SecureScoreMetrics {
	return models.SecureScoreMetrics{
		Available: false,
		Summary:   fmt.Sprintf("secure score unavailable: %s", reason),
	}
}
