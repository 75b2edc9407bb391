package aggregate

import (
	"errors"

	"github.com/acheong08/sentinel/internal/scoring"
	"github.com/acheong08/sentinel/internal/similarity"
	"github.com/acheong08/sentinel/pkg/models"
)

var errNotFetched = errors.New("no lookup result for package")

// Result is the complete output of one aggregation
type Result struct {
	Records      []models.RiskRecord     `json:"records"`
	Distribution models.RiskDistribution `json:"distribution"`
}

// Aggregator joins fetched signals into risk records. It performs no I/O.
type Aggregator struct {
	References []string
}

// NewAggregator creates an aggregator using the default popular package list
func NewAggregator() *Aggregator {
	return &Aggregator{References: similarity.PopularPackages}
}

// Build creates one record per declaration in declaration order. vulns is keyed by
// DependencyDeclaration.Key and ages by package name; a missing entry is treated
// like a failed lookup.
func (a *Aggregator) Build(
	decls []models.DependencyDeclaration,
	vulns map[string]models.Lookup[[]models.VulnerabilityRecord],
	ages map[string]models.Lookup[int],
) Result {
	records := make([]models.RiskRecord, 0, len(decls))
	for _, decl := range decls {
		vuln, ok := vulns[decl.Key()]
		if !ok {
			vuln = models.Failed[[]models.VulnerabilityRecord](errNotFetched)
		}
		age, ok := ages[decl.Name]
		if !ok {
			age = models.Failed[int](errNotFetched)
		}
		records = append(records, a.Record(decl, vuln, age))
	}

	return Result{
		Records:      records,
		Distribution: Distribute(records),
	}
}

// Record assesses a single declaration
func (a *Aggregator) Record(
	decl models.DependencyDeclaration,
	vuln models.Lookup[[]models.VulnerabilityRecord],
	ageLookup models.Lookup[int],
) models.RiskRecord {
	vulns := vuln.Value
	if vulns == nil {
		vulns = []models.VulnerabilityRecord{}
	}
	sim := similarity.Check(decl.Name, a.References)
	age := models.AgeFrom(ageLookup)

	score, deductions := scoring.Assess(vulns, sim.Score, scoring.IsRecent(age))

	return models.RiskRecord{
		Declaration:               decl,
		Vulnerabilities:           vulns,
		VulnerabilityLookupFailed: !vuln.OK(),
		Similarity:                sim,
		Age:                       age,
		TrustScore:                score,
		Deductions:                deductions,
		Band:                      scoring.BandFor(score),
	}
}

// Distribute counts records per band
func Distribute(records []models.RiskRecord) models.RiskDistribution {
	var d models.RiskDistribution
	for _, r := range records {
		d.Add(scoring.BandFor(r.TrustScore))
	}
	return d
}
