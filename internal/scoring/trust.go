// Package scoring turns the three risk signals into a bounded trust score and
// the list of deductions that explain it.
package scoring

import (
	"fmt"

	"github.com/acheong08/sentinel/internal/similarity"
	"github.com/acheong08/sentinel/pkg/models"
)

const (
	BaseScore = 100

	CriticalVulnPenalty = 20
	TyposquatPenalty    = 50
	NewPackagePenalty   = 10

	// NewPackageDays is the age below which a package counts as recently published
	NewPackageDays = 30

	// Lower bounds of each band; anything below RiskyMin is dangerous
	SafeMin   = 80
	ReviewMin = 60
	RiskyMin  = 40
)

// NoRiskFactors is the only explanation line when no deduction applies
const NoRiskFactors = "No risk factors detected"

// Deduction is one applied penalty
type Deduction struct {
	Points int
	Reason string
}

func (d Deduction) String() string {
	return fmt.Sprintf("-%d: %s", d.Points, d.Reason)
}

// Evaluate returns the applicable deductions in the fixed order
// vulnerability, similarity, age.
func Evaluate(vulns []models.VulnerabilityRecord, similarityScore int, isNew bool) []Deduction {
	var deductions []Deduction
	if hasCritical(vulns) {
		deductions = append(deductions, Deduction{CriticalVulnPenalty, "Critical vulnerabilities detected"})
	}
	if similarityScore >= similarity.TyposquatThreshold {
		deductions = append(deductions, Deduction{TyposquatPenalty, "Looks like a typo of a popular package"})
	}
	if isNew {
		deductions = append(deductions, Deduction{NewPackagePenalty, fmt.Sprintf("Very new package (<%d days)", NewPackageDays)})
	}
	return deductions
}

// Score computes the trust score, floored at 0
func Score(vulns []models.VulnerabilityRecord, similarityScore int, isNew bool) int {
	return apply(Evaluate(vulns, similarityScore, isNew))
}

// Explain returns one line per applied deduction, or the NoRiskFactors sentinel
func Explain(vulns []models.VulnerabilityRecord, similarityScore int, isNew bool) []string {
	return explain(Evaluate(vulns, similarityScore, isNew))
}

// Assess computes score and explanation from a single evaluation
func Assess(vulns []models.VulnerabilityRecord, similarityScore int, isNew bool) (int, []string) {
	deductions := Evaluate(vulns, similarityScore, isNew)
	return apply(deductions), explain(deductions)
}

// IsRecent reports whether a known age is below NewPackageDays. Unknown ages are not recent.
func IsRecent(age models.AgeResult) bool {
	return age.Known && age.Days < NewPackageDays
}

// BandFor maps a trust score to its band
func BandFor(score int) models.Band {
	switch {
	case score >= SafeMin:
		return models.BandSafe
	case score >= ReviewMin:
		return models.BandReview
	case score >= RiskyMin:
		return models.BandRisky
	default:
		return models.BandDangerous
	}
}

func apply(deductions []Deduction) int {
	score := BaseScore
	for _, d := range deductions {
		score -= d.Points
	}
	return max(score, 0)
}

func explain(deductions []Deduction) []string {
	if len(deductions) == 0 {
		return []string{NoRiskFactors}
	}
	lines := make([]string, len(deductions))
	for i, d := range deductions {
		lines[i] = d.String()
	}
	return lines
}

func hasCritical(vulns []models.VulnerabilityRecord) bool {
	for _, v := range vulns {
		if v.IsCritical() {
			return true
		}
	}
	return false
}
