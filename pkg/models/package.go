package models

import "strings"

// DependencyDeclaration is one line of a requirements manifest
type DependencyDeclaration struct {
	Name    string  `json:"name"`              // "requests"
	Version *string `json:"version,omitempty"` // "2.0.0", nil when no comparator was found
}

// NewDeclaration creates a declaration; an empty version means "no constraint"
func NewDeclaration(name, version string) DependencyDeclaration {
	d := DependencyDeclaration{Name: name}
	if version != "" {
		d.Version = &version
	}
	return d
}

// HasVersion reports whether a version constraint was declared
func (d DependencyDeclaration) HasVersion() bool {
	return d.Version != nil
}

// VersionOr returns the declared version or fallback when absent
func (d DependencyDeclaration) VersionOr(fallback string) string {
	if d.Version == nil {
		return fallback
	}
	return *d.Version
}

// Key identifies the declaration for fetch bookkeeping: "requests" or "requests==2.0.0".
// Two declarations with the same key produce identical lookups.
func (d DependencyDeclaration) Key() string {
	if d.Version == nil {
		return d.Name
	}
	return d.Name + "==" + *d.Version
}

// VulnerabilityRecord is a single advisory returned by the vulnerability database
type VulnerabilityRecord struct {
	ID       string  `json:"id"`
	Summary  string  `json:"summary"`
	Severity *string `json:"severity,omitempty"`
}

// IsCritical reports whether the stored severity mentions CRITICAL (case-sensitive)
func (v VulnerabilityRecord) IsCritical() bool {
	return v.Severity != nil && strings.Contains(*v.Severity, "CRITICAL")
}

// SimilarityResult is the best fuzzy match against the popular package list
type SimilarityResult struct {
	Score        int    `json:"score"` // 0-100
	ClosestMatch string `json:"closest_match"`
}

// AgeResult is the number of days since first publication.
// Known is false when the registry lookup failed or the package is unknown.
type AgeResult struct {
	Days  int  `json:"days"`
	Known bool `json:"known"`
}

// KnownAge builds an AgeResult for a successful lookup
func KnownAge(days int) AgeResult {
	return AgeResult{Days: days, Known: true}
}

// DaysOrNil returns a pointer to Days, or nil when the age is unknown
func (a AgeResult) DaysOrNil() *int {
	if !a.Known {
		return nil
	}
	d := a.Days
	return &d
}
