// Package report renders risk records for people and for other tools.
// The trust bar only appears in the terminal table.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/package-url/packageurl-go"

	"github.com/acheong08/sentinel/pkg/models"
)

// AnyVersion is shown when a declaration has no version
const AnyVersion = "Any"

const barWidth = 10

var csvHeader = []string{"package", "version", "purl", "vulnerabilities", "similarity", "closest_match", "age_days", "trust_score", "band", "explanation"}

// Row is the exported view of one risk record
type Row struct {
	Package         string      `json:"package"`
	Version         string      `json:"version"`
	PURL            string      `json:"purl"`
	Vulnerabilities int         `json:"vulnerabilities"`
	Similarity      int         `json:"similarity"`
	ClosestMatch    string      `json:"closest_match"`
	AgeDays         *int        `json:"age_days"`
	TrustScore      int         `json:"trust_score"`
	Band            models.Band `json:"band"`
	Explanation     []string    `json:"explanation"`
}

// Rows converts records to rows, keeping their order
func Rows(records []models.RiskRecord) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = Row{
			Package:         r.Declaration.Name,
			Version:         r.Declaration.VersionOr(AnyVersion),
			PURL:            PURL(r.Declaration),
			Vulnerabilities: len(r.Vulnerabilities),
			Similarity:      r.Similarity.Score,
			ClosestMatch:    r.Similarity.ClosestMatch,
			AgeDays:         r.Age.DaysOrNil(),
			TrustScore:      r.TrustScore,
			Band:            r.Band,
			Explanation:     r.Deductions,
		}
	}
	return rows
}

// PURL returns the package URL of a declaration, e.g. pkg:pypi/requests@2.0.0
func PURL(decl models.DependencyDeclaration) string {
	version := ""
	if decl.HasVersion() {
		version = *decl.Version
	}
	return packageurl.NewPackageURL(packageurl.TypePyPi, "", strings.ToLower(decl.Name), version, nil, "").ToString()
}

// WriteJSON writes rows as an indented JSON array
func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteCSV writes rows as RFC 4180 CSV with one header line
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Package,
			r.Version,
			r.PURL,
			strconv.Itoa(r.Vulnerabilities),
			strconv.Itoa(r.Similarity),
			r.ClosestMatch,
			ageText(r.AgeDays, ""),
			strconv.Itoa(r.TrustScore),
			string(r.Band),
			strings.Join(r.Explanation, "; "),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row for %s: %w", r.Package, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// WriteTable writes the terminal view: the package table with trust bars and
// a distribution summary below it
func WriteTable(w io.Writer, records []models.RiskRecord, dist models.RiskDistribution) error {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Package", "Version", "Vulns", "Similarity", "Closest", "Age (days)", "Trust", "Explanation"})
	for _, r := range Rows(records) {
		tw.AppendRow(table.Row{
			r.Package,
			r.Version,
			r.Vulnerabilities,
			fmt.Sprintf("%d%%", r.Similarity),
			r.ClosestMatch,
			ageText(r.AgeDays, "-"),
			BandColor(r.Band).Sprint(TrustBar(r.TrustScore)),
			strings.Join(r.Explanation, "\n"),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Vulns", Align: text.AlignRight},
		{Name: "Similarity", Align: text.AlignRight},
		{Name: "Age (days)", Align: text.AlignRight},
	})

	_, err := fmt.Fprintf(w, "%s\n%s\n", tw.Render(), DistributionLine(dist))
	if err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

// TrustBar draws score as a fixed-width bar followed by the percentage
func TrustBar(score int) string {
	score = min(max(score, 0), 100)
	filled := score * barWidth / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + fmt.Sprintf(" %3d%%", score)
}

// BandColor maps a band to its terminal colour
func BandColor(b models.Band) text.Colors {
	switch b {
	case models.BandSafe:
		return text.Colors{text.FgGreen}
	case models.BandReview:
		return text.Colors{text.FgYellow}
	case models.BandRisky:
		return text.Colors{text.FgHiRed}
	default:
		return text.Colors{text.FgRed, text.Bold}
	}
}

// DistributionLine summarises how many packages fall in each band
func DistributionLine(d models.RiskDistribution) string {
	parts := []struct {
		label string
		band  models.Band
		n     int
	}{
		{"Safe", models.BandSafe, d.Safe},
		{"Review", models.BandReview, d.Review},
		{"Risky", models.BandRisky, d.Risky},
		{"Dangerous", models.BandDangerous, d.Dangerous},
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = fmt.Sprintf("%s: %d (%.0f%%)", p.label, p.n, d.Percent(p.band))
	}
	return strings.Join(out, " | ")
}

// VulnerabilityDetails lists every vulnerability of every affected package
func VulnerabilityDetails(w io.Writer, records []models.RiskRecord) error {
	for _, r := range records {
		if len(r.Vulnerabilities) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s: %d vulnerabilities\n", r.Declaration.Name, len(r.Vulnerabilities)); err != nil {
			return fmt.Errorf("failed to write details: %w", err)
		}
		for _, v := range r.Vulnerabilities {
			id := v.ID
			if id == "" {
				id = "N/A"
			}
			summary := v.Summary
			if summary == "" {
				summary = "No description"
			}
			if _, err := fmt.Fprintf(w, "  %s: %s\n", id, summary); err != nil {
				return fmt.Errorf("failed to write details: %w", err)
			}
		}
	}
	return nil
}

func ageText(days *int, unknown string) string {
	if days == nil {
		return unknown
	}
	return strconv.Itoa(*days)
}
