package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/acheong08/sentinel/internal/aggregate"
	"github.com/acheong08/sentinel/internal/analysis"
	"github.com/acheong08/sentinel/internal/parser"
	"github.com/acheong08/sentinel/internal/report"
	"github.com/acheong08/sentinel/internal/scan"
	"github.com/acheong08/sentinel/pkg/models"
)

// Output formats
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

type scanFlags struct {
	format     string
	output     string
	noProgress bool
	review     bool
	details    bool
	failBelow  int
}

func NewScanCommand() *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan [requirements.txt|-]",
		Short: "Score every dependency of a requirements file",
		Long: `Scan parses a requirements file and scores each package.

Without an argument it reads requirements.txt from the current directory; "-"
reads from stdin. Failed lookups never abort the scan: a package whose
vulnerabilities could not be fetched is scored as if it had none.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decls, err := readDeclarations(cmd, args)
			if err != nil {
				return err
			}
			return runScan(cmd.Context(), cmd, decls, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", FormatTable, "Output format. Options: table, csv, json")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Do not show a progress bar")
	cmd.Flags().BoolVar(&flags.review, "review", false, "Ask the configured model to review risky and dangerous packages")
	cmd.Flags().BoolVar(&flags.details, "details", false, "List vulnerability details below the table")
	cmd.Flags().IntVar(&flags.failBelow, "fail-below", 0, "Exit with an error if any trust score is below this value")

	return cmd
}

func readDeclarations(cmd *cobra.Command, args []string) ([]models.DependencyDeclaration, error) {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	switch path {
	case "-":
		return parser.ReadRequirements(cmd.InOrStdin())
	case "":
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		found, err := parser.FindRequirements(cwd)
		if err != nil {
			return nil, err
		}
		path = found
	}

	slog.Debug("reading requirements", "path", path)
	return parser.ParseRequirementsFile(path)
}

func runScan(ctx context.Context, cmd *cobra.Command, decls []models.DependencyDeclaration, flags scanFlags) error {
	switch flags.format {
	case FormatTable, FormatCSV, FormatJSON:
	default:
		return fmt.Errorf("unknown format %q", flags.format)
	}

	var reviewer *analysis.Reviewer
	scanner := scan.New(cfg.ScanOptions())
	if flags.review {
		if !cfg.ReviewEnabled() {
			return fmt.Errorf("--review requires OPENAI_API_KEY or SENTINEL_OPENAI_API_KEY")
		}
		var err error
		reviewer, err = analysis.NewReviewer(ctx, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, analysis.DefaultConcurrency, scanner.Registry)
		if err != nil {
			return err
		}
	}

	var bar *progressbar.ProgressBar
	if !flags.noProgress && len(decls) > 0 {
		bar = progressbar.Default(int64(scan.Lookups(decls)), "looking up packages")
		scanner.OnLookup = func(stage, key string, ok bool) {
			bar.Add(1) // nolint: errcheck
		}
	}

	result := scanner.ScanDeclarations(ctx, decls)
	if bar != nil {
		bar.Finish() // nolint: errcheck
	}

	out := cmd.OutOrStdout()
	if flags.output != "" {
		f, err := os.Create(flags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := writeReport(out, result, flags); err != nil {
		return err
	}

	if reviewer != nil {
		reviews := reviewer.ReviewAll(ctx, result.Records, nil)
		if err := writeReviews(cmd.OutOrStdout(), reviews); err != nil {
			return err
		}
	}

	if flags.output != "" {
		slog.Info("report written", "path", flags.output, "format", flags.format)
	}

	if flags.failBelow > 0 {
		for _, r := range result.Records {
			if r.TrustScore < flags.failBelow {
				return fmt.Errorf("%s has trust score %d, below %d", r.Declaration.Name, r.TrustScore, flags.failBelow)
			}
		}
	}
	return nil
}

func writeReport(w io.Writer, result aggregate.Result, flags scanFlags) error {
	switch flags.format {
	case FormatCSV:
		return report.WriteCSV(w, report.Rows(result.Records))
	case FormatJSON:
		return report.WriteJSON(w, report.Rows(result.Records))
	}

	if err := report.WriteTable(w, result.Records, result.Distribution); err != nil {
		return err
	}
	if flags.details {
		return report.VulnerabilityDetails(w, result.Records)
	}
	return nil
}

func writeReviews(w io.Writer, reviews []analysis.Review) error {
	for _, r := range reviews {
		name := r.Record.Declaration.Name
		var err error
		switch {
		case r.Err != nil:
			_, err = fmt.Fprintf(w, "%s: review failed: %v\n", name, r.Err)
		case r.Assessment.IsMalicious:
			_, err = fmt.Fprintf(w, "%s: SUSPICIOUS (confidence %.0f%%): %s\n", name, r.Assessment.Confidence*100, r.Assessment.Justification)
		default:
			_, err = fmt.Fprintf(w, "%s: likely safe (confidence %.0f%%): %s\n", name, r.Assessment.Confidence*100, r.Assessment.Justification)
		}
		if err != nil {
			return fmt.Errorf("failed to write review: %w", err)
		}
	}
	return nil
}
