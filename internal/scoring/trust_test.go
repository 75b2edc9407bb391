package scoring

import (
	"strings"
	"testing"

	"github.com/acheong08/sentinel/pkg/models"
	"github.com/stretchr/testify/assert"
)

func severity(s string) *string { return &s }

var criticalRCE = models.VulnerabilityRecord{
	ID:       "GHSA-xxxx-yyyy-zzzz",
	Summary:  "Remote code execution",
	Severity: severity("CRITICAL: remote code execution"),
}

func TestScoreNoRisk(t *testing.T) {
	age := models.KnownAge(500)
	score, lines := Assess(nil, 10, IsRecent(age))

	assert.Equal(t, 100, score)
	assert.Equal(t, []string{NoRiskFactors}, lines)
}

func TestScoreAllDeductions(t *testing.T) {
	age := models.KnownAge(5)
	vulns := []models.VulnerabilityRecord{criticalRCE}

	score, lines := Assess(vulns, 95, IsRecent(age))

	assert.Equal(t, 20, score)
	assert.Equal(t, []string{
		"-20: Critical vulnerabilities detected",
		"-50: Looks like a typo of a popular package",
		"-10: Very new package (<30 days)",
	}, lines)
}

func TestCriticalIsCaseSensitiveSubstring(t *testing.T) {
	tests := []struct {
		name     string
		severity *string
		critical bool
	}{
		{"nil severity", nil, false},
		{"exact", severity("CRITICAL"), true},
		{"embedded", severity(`[{"type":"CVSS_V3","score":"CRITICAL"}]`), true},
		{"lowercase", severity("critical"), false},
		{"high", severity("HIGH"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vulns := []models.VulnerabilityRecord{{ID: "X", Severity: tt.severity}}
			expected := 100
			if tt.critical {
				expected = 80
			}
			assert.Equal(t, expected, Score(vulns, 0, false))
		})
	}
}

func TestNonCriticalVulnerabilitiesDoNotDeduct(t *testing.T) {
	vulns := []models.VulnerabilityRecord{
		{ID: "A", Severity: severity("MODERATE")},
		{ID: "B"},
	}
	assert.Equal(t, 100, Score(vulns, 50, false))
}

func TestSimilarityThresholdBoundary(t *testing.T) {
	assert.Equal(t, 100, Score(nil, 89, false))
	assert.Equal(t, 50, Score(nil, 90, false))
	assert.Equal(t, 50, Score(nil, 100, false))
}

func TestIsRecent(t *testing.T) {
	assert.True(t, IsRecent(models.KnownAge(0)))
	assert.True(t, IsRecent(models.KnownAge(29)))
	assert.False(t, IsRecent(models.KnownAge(30)))
	assert.False(t, IsRecent(models.AgeResult{}))
}

// Every combination of the three conditions: score stays in range, equals the
// base minus the listed deductions, and the explanation lines match one to one.
func TestScoreAndExplanationConsistent(t *testing.T) {
	vulnSets := [][]models.VulnerabilityRecord{
		nil,
		{{ID: "low", Severity: severity("LOW")}},
		{criticalRCE},
		{{ID: "low"}, criticalRCE, criticalRCE},
	}
	similarities := []int{0, 45, 89, 90, 94, 100}

	for _, vulns := range vulnSets {
		for _, sim := range similarities {
			for _, isNew := range []bool{false, true} {
				deductions := Evaluate(vulns, sim, isNew)
				score := Score(vulns, sim, isNew)
				lines := Explain(vulns, sim, isNew)

				assert.GreaterOrEqual(t, score, 0)
				assert.LessOrEqual(t, score, 100)

				sum := 0
				for _, d := range deductions {
					sum += d.Points
				}
				assert.Equal(t, max(0, BaseScore-sum), score)

				if len(deductions) == 0 {
					assert.Equal(t, []string{NoRiskFactors}, lines)
					continue
				}

				assert.Len(t, lines, len(deductions))
				assert.NotContains(t, lines, NoRiskFactors)

				// order: vulnerability -> similarity -> age
				var order []int
				for _, line := range lines {
					switch {
					case strings.Contains(line, "vulnerabilit"):
						order = append(order, 0)
					case strings.Contains(line, "typo"):
						order = append(order, 1)
					case strings.Contains(line, "new package"):
						order = append(order, 2)
					}
				}
				assert.Len(t, order, len(lines))
				assert.IsIncreasing(t, order)

				for i, d := range deductions {
					assert.True(t, strings.HasPrefix(lines[i], "-"), lines[i])
					assert.Contains(t, lines[i], d.String())
				}
			}
		}
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		score    int
		expected models.Band
	}{
		{100, models.BandSafe},
		{80, models.BandSafe},
		{79, models.BandReview},
		{60, models.BandReview},
		{59, models.BandRisky},
		{40, models.BandRisky},
		{39, models.BandDangerous},
		{20, models.BandDangerous},
		{0, models.BandDangerous},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, BandFor(tt.score), "score %d", tt.score)
	}
}
