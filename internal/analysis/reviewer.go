// Package analysis asks a language model for a second opinion on packages the
// deterministic score already marked as risky. Its output is advisory and never
// feeds back into the trust score.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/openaicompat"

	"github.com/acheong08/sentinel/internal/registry"
	"github.com/acheong08/sentinel/pkg/models"
)

// DefaultConcurrency bounds simultaneous model calls
const DefaultConcurrency = 3

var ErrNoAssessment = errors.New("model did not submit an assessment")

const systemPrompt = `You are a security analyst specialising in Python supply chain attacks. You review PyPI packages that an automated scanner flagged as risky and decide whether they look malicious.

The scanner's signals are:
- known vulnerabilities from OSV for the declared version
- name similarity to a popular package (possible typosquatting)
- package age in days (very new packages are riskier)

WHAT TO LOOK FOR:
1. Names one or two edits away from a popular package with unrelated or empty metadata
2. Very recent first upload combined with a popular-looking name
3. Vulnerability summaries that describe malicious code, not ordinary bugs
4. Authors, summaries or home pages that impersonate another project

Legitimate packages often resemble popular names (plugins, forks, companion libraries). A high similarity alone is not proof.

Use fetch_metadata if you need the registry description. Always finish by calling submit_assessment exactly once.`

// MetadataFetcher reads registry metadata for the fetch_metadata tool
type MetadataFetcher interface {
	FetchPackageMetadata(ctx context.Context, name string) (*registry.PackageMetadata, error)
}

// Reviewer runs the model over flagged records
type Reviewer struct {
	model     fantasy.LanguageModel
	semaphore chan struct{}
	metadata  MetadataFetcher
}

// NewReviewer connects to an OpenAI-compatible endpoint. metadata may be nil,
// in which case the model only sees the scanner's signals.
func NewReviewer(ctx context.Context, apiKey, baseURL, modelName string, concurrency int, metadata MetadataFetcher) (*Reviewer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for AI review")
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	provider, err := openaicompat.New(
		openaicompat.WithBaseURL(baseURL),
		openaicompat.WithAPIKey(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	model, err := provider.LanguageModel(ctx, modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to create language model: %w", err)
	}

	return &Reviewer{
		model:     model,
		semaphore: make(chan struct{}, concurrency),
		metadata:  metadata,
	}, nil
}

// NeedsReview reports whether a record falls in the risky or dangerous band
func NeedsReview(r models.RiskRecord) bool {
	return r.Band == models.BandRisky || r.Band == models.BandDangerous
}

// Select returns the indexes of records that need review, in order
func Select(records []models.RiskRecord) []int {
	var idx []int
	for i, r := range records {
		if NeedsReview(r) {
			idx = append(idx, i)
		}
	}
	return idx
}

// ReviewAll reviews every flagged record in parallel. onReview, if set, is
// called as each review finishes. Failures are logged and reported in the
// returned reviews; they never abort the batch. Results are in record order.
func (r *Reviewer) ReviewAll(ctx context.Context, records []models.RiskRecord, onReview func(Review)) []Review {
	selected := Select(records)
	if len(selected) == 0 {
		return nil
	}

	slog.Info("starting AI review", "packages", len(selected), "concurrency", cap(r.semaphore))

	reviews := make([]Review, len(selected))
	var wg sync.WaitGroup
	for slot, i := range selected {
		wg.Add(1)
		go func() {
			defer wg.Done()
			review := Review{Index: i, Record: records[i]}

			select {
			case r.semaphore <- struct{}{}:
				review.Assessment, review.Err = r.Review(ctx, records[i])
				<-r.semaphore
			case <-ctx.Done():
				review.Err = ctx.Err()
			}

			if review.Err != nil {
				slog.Warn("AI review failed", "package", records[i].Declaration.Name, "err", review.Err)
			}
			reviews[slot] = review
			if onReview != nil {
				onReview(review)
			}
		}()
	}
	wg.Wait()

	return reviews
}

// Review asks the model for an assessment of one record
func (r *Reviewer) Review(ctx context.Context, record models.RiskRecord) (SecurityAssessment, error) {
	var (
		report    SecurityAssessment
		submitted bool
	)
	submitTool := fantasy.NewAgentTool(
		"submit_assessment",
		"Submit your security assessment for this package",
		func(_ context.Context, input SecurityAssessment, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
			report = input
			submitted = true
			return fantasy.ToolResponse{
				Type:    string(fantasy.ContentTypeText),
				Content: "Assessment received",
			}, nil
		})

	tools := []fantasy.AgentTool{submitTool}
	if r.metadata != nil {
		tools = append(tools, fantasy.NewAgentTool(
			"fetch_metadata",
			"Fetch the PyPI metadata (summary, author, home page, latest version) of a package",
			func(ctx context.Context, input MetadataInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
				return fetchMetadata(ctx, r.metadata, input)
			}))
	}

	agent := fantasy.NewAgent(r.model, fantasy.WithSystemPrompt(systemPrompt), fantasy.WithTools(tools...))
	result, err := agent.Generate(ctx, fantasy.AgentCall{
		Prompt: formatReviewPrompt(record),
	})
	if err != nil {
		return SecurityAssessment{}, fmt.Errorf("agent generation failed: %w", err)
	}

	slog.Debug("AI review response", "package", record.Declaration.Name, "text", result.Response.Content.Text())

	if !submitted {
		return SecurityAssessment{}, ErrNoAssessment
	}
	report.Confidence = min(max(report.Confidence, 0), 1)

	slog.Info("AI review complete",
		"package", record.Declaration.Name,
		"malicious", report.IsMalicious,
		"confidence", report.Confidence)
	return report, nil
}

func fetchMetadata(ctx context.Context, fetcher MetadataFetcher, input MetadataInput) (fantasy.ToolResponse, error) {
	if input.Package == "" {
		return fantasy.ToolResponse{}, fmt.Errorf("package is required")
	}
	metadata, err := fetcher.FetchPackageMetadata(ctx, input.Package)
	if err != nil {
		return fantasy.ToolResponse{}, err
	}

	out, err := json.Marshal(map[string]any{
		"name":           metadata.Info.Name,
		"latest_version": metadata.Info.Version,
		"summary":        metadata.Info.Summary,
		"author":         metadata.Info.Author,
		"home_page":      metadata.Info.HomePage,
		"files":          len(metadata.URLs),
	})
	if err != nil {
		return fantasy.ToolResponse{}, err
	}
	return fantasy.ToolResponse{
		Type:    string(fantasy.ContentTypeText),
		Content: string(out),
	}, nil
}

// formatReviewPrompt describes the scanner's findings for one record
func formatReviewPrompt(record models.RiskRecord) string {
	var sb strings.Builder

	decl := record.Declaration
	fmt.Fprintf(&sb, "Review the PyPI package: %s (version %s)\n\n", decl.Name, decl.VersionOr("unpinned"))
	fmt.Fprintf(&sb, "Trust score: %d/100 (%s)\n", record.TrustScore, record.Band)

	sb.WriteString("Deductions:\n")
	for _, d := range record.Deductions {
		fmt.Fprintf(&sb, "  - %s\n", d)
	}

	fmt.Fprintf(&sb, "\nClosest popular package: %s (similarity %d%%)\n", record.Similarity.ClosestMatch, record.Similarity.Score)

	if record.Age.Known {
		fmt.Fprintf(&sb, "Age: %d days since first upload\n", record.Age.Days)
	} else {
		sb.WriteString("Age: unknown (registry lookup failed or package not found)\n")
	}

	switch {
	case record.VulnerabilityLookupFailed:
		sb.WriteString("\nVulnerabilities: unknown (lookup failed)\n")
	case len(record.Vulnerabilities) == 0:
		sb.WriteString("\nVulnerabilities: none reported\n")
	default:
		fmt.Fprintf(&sb, "\nVulnerabilities (%d):\n", len(record.Vulnerabilities))
		for _, v := range record.Vulnerabilities {
			severity := "unknown"
			if v.Severity != nil {
				severity = *v.Severity
			}
			fmt.Fprintf(&sb, "  - %s [%s]: %s\n", v.ID, severity, v.Summary)
		}
	}

	sb.WriteString("\nUse the submit_assessment tool to provide your security assessment.")
	return sb.String()
}
