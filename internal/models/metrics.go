package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metrics groups the two metric sources feeding the composite score
type Metrics struct {
	License     LicenseMetrics     `json:"license"`
	SecureScore SecureScoreMetrics `json:"secureScore"`
}

// Value implements driver.Valuer interface
func (m Metrics) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner interface
func (m *Metrics) Scan(value interface{}) error {
	if value == nil {
		*m = Metrics{}
		return nil
	}

	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, m)
	case string:
		return json.Unmarshal([]byte(data), m)
	default:
		return fmt.Errorf("cannot scan %T into Metrics", value)
	}
}

// LicenseMetrics summarizes license utilization for a tenant.
// When the subscribedSkus call failed, Available is false, all counts are
// zero and Summary explains why.
type LicenseMetrics struct {
	TotalLicenses    int            `json:"totalLicenses"`
	AssignedLicenses int            `json:"assignedLicenses"`
	UtilizationRate  int            `json:"utilizationRate"`
	SKUs             []SKUBreakdown `json:"skus,omitempty"`
	Available        bool           `json:"available"`
	Summary          string         `json:"summary,omitempty"`
}

// SKUBreakdown is the per-SKU slice of the license metrics
type SKUBreakdown struct {
	SKUPartNumber string `json:"skuPartNumber"`
	Enabled       int    `json:"enabled"`
	Consumed      int    `json:"consumed"`
}

// SecureScoreMetrics summarizes the latest Secure Score document.
// Percentage is rounded and 0 when MaxScore is 0 or the call failed.
type SecureScoreMetrics struct {
	CurrentScore float64            `json:"currentScore"`
	MaxScore     float64            `json:"maxScore"`
	Percentage   int                `json:"percentage"`
	Controls     []ControlBreakdown `json:"controls,omitempty"`
	Available    bool               `json:"available"`
	Summary      string             `json:"summary,omitempty"`
}

// ControlBreakdown is the per-control slice of the secure-score metrics
type ControlBreakdown struct {
	ControlName string  `json:"controlName"`
	Category    string  `json:"category,omitempty"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"maxScore"`
	Description string  `json:"description,omitempty"`
}

// Degraded reports whether at least one metric source was unavailable
func (m Metrics) Degraded() bool {
	return !m.License.Available || !m.SecureScore.Available
}
