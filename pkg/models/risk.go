package models

// Band is the coarse risk bucket a trust score falls into
type Band string

const (
	BandSafe      Band = "safe"
	BandReview    Band = "review"
	BandRisky     Band = "risky"
	BandDangerous Band = "dangerous"
)

// RiskRecord is the joined assessment for one declaration. Never mutated after creation.
type RiskRecord struct {
	Declaration     DependencyDeclaration `json:"declaration"`
	Vulnerabilities []VulnerabilityRecord `json:"vulnerabilities"`
	// VulnerabilityLookupFailed is set when the vulnerability query failed and the
	// empty list above is a fail-open default rather than a clean result.
	VulnerabilityLookupFailed bool             `json:"vulnerability_lookup_failed"`
	Similarity                SimilarityResult `json:"similarity"`
	Age                       AgeResult        `json:"age"`
	TrustScore                int              `json:"trust_score"`
	Deductions                []string         `json:"deductions"`
	Band                      Band             `json:"band"`
}

// RiskDistribution counts records per band
type RiskDistribution struct {
	Safe      int `json:"safe"`
	Review    int `json:"review"`
	Risky     int `json:"risky"`
	Dangerous int `json:"dangerous"`
}

// Add counts one record in band b
func (d *RiskDistribution) Add(b Band) {
	switch b {
	case BandSafe:
		d.Safe++
	case BandReview:
		d.Review++
	case BandRisky:
		d.Risky++
	default:
		d.Dangerous++
	}
}

// Total returns the number of counted records
func (d RiskDistribution) Total() int {
	return d.Safe + d.Review + d.Risky + d.Dangerous
}

// Percent returns the share of band b in [0,100]; 0 for an empty distribution
func (d RiskDistribution) Percent(b Band) float64 {
	total := d.Total()
	if total == 0 {
		return 0
	}
	var n int
	switch b {
	case BandSafe:
		n = d.Safe
	case BandReview:
		n = d.Review
	case BandRisky:
		n = d.Risky
	default:
		n = d.Dangerous
	}
	return float64(n) / float64(total) * 100
}
