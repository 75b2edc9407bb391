package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/acheong08/sentinel/internal/analysis"
	"github.com/acheong08/sentinel/internal/parser"
	"github.com/acheong08/sentinel/internal/scan"
	"github.com/acheong08/sentinel/pkg/models"
)

// ProgressSender interface for sending progress updates
type ProgressSender interface {
	SendMessage(msg Message)
	SendLog(message, level string)
	SendProgress(percent int, stage, message string)
	SendError(message string, err error)
}

// Reviewer is the optional AI review step, satisfied by *analysis.Reviewer
type Reviewer interface {
	ReviewAll(ctx context.Context, records []models.RiskRecord, onReview func(analysis.Review)) []analysis.Review
}

// Pipeline runs one manifest assessment and streams every step to a sender
type Pipeline struct {
	options  scan.Options
	reviewer Reviewer
	sender   ProgressSender
}

// NewPipeline creates a new pipeline instance. reviewer may be nil.
func NewPipeline(options scan.Options, reviewer Reviewer, sender ProgressSender) *Pipeline {
	return &Pipeline{
		options:  options,
		reviewer: reviewer,
		sender:   sender,
	}
}

// log sends a message to the client and mirrors it to the server log
func (p *Pipeline) log(message, level string) {
	p.sender.SendLog(message, level)

	switch level {
	case "warning":
		slog.Warn(message)
	case "error":
		slog.Error(message)
	default:
		slog.Info(message)
	}
}

func (p *Pipeline) logf(format string, args ...any) {
	p.log(fmt.Sprintf(format, args...), "info")
}

// Run assesses requirements and streams the results. Records are sent in
// declaration order after all lookups have finished.
func (p *Pipeline) Run(ctx context.Context, requirements string) error {
	p.log("Starting analysis...", "info")

	// Step 1: parse
	p.sender.SendProgress(0, StageParse, "Parsing requirements...")
	decls := parser.ParseRequirements(requirements)
	p.sender.SendMessage(NewDeclarationsMessage(decls))
	if len(decls) == 0 {
		p.log("No dependencies found in requirements", "warning")
	} else {
		p.logf("Found %d dependencies to analyze", len(decls))
	}

	// Step 2: fetch vulnerabilities and ages
	scanner := scan.New(p.options)
	total := scan.Lookups(decls)
	var done atomic.Int64
	scanner.OnLookup = func(stage, key string, ok bool) {
		n := int(done.Add(1))
		if !ok {
			p.log(lookupFailure(stage, key), "warning")
		}
		p.sender.SendProgress(5+n*80/total, StageFetch, fmt.Sprintf("Completed %d/%d lookups", n, total))
	}

	p.sender.SendProgress(5, StageFetch, "Querying OSV and PyPI...")
	result := scanner.ScanDeclarations(ctx, decls)
	if err := ctx.Err(); err != nil {
		return err
	}

	// Step 3: stream records in declaration order
	p.sender.SendProgress(85, StageScore, "Scoring packages...")
	for i, record := range result.Records {
		p.sender.SendMessage(NewPackageRiskMessage(i, record))
	}
	p.sender.SendMessage(NewDistributionMessage(result.Distribution))
	p.logf("Safe: %d, Review: %d, Risky: %d, Dangerous: %d",
		result.Distribution.Safe, result.Distribution.Review, result.Distribution.Risky, result.Distribution.Dangerous)

	// Step 4: optional AI review
	if p.reviewer != nil {
		flagged := analysis.Select(result.Records)
		if len(flagged) > 0 {
			p.sender.SendProgress(90, StageReview, fmt.Sprintf("Reviewing %d flagged packages...", len(flagged)))
			p.reviewer.ReviewAll(ctx, result.Records, func(review analysis.Review) {
				p.sender.SendMessage(NewPackageReviewMessage(review))
				p.logReview(review)
			})
		}
	}

	p.sender.SendProgress(100, StageScore, "Analysis complete")
	p.log("Analysis pipeline complete", "success")
	return nil
}

func (p *Pipeline) logReview(review analysis.Review) {
	name := review.Record.Declaration.Name
	switch {
	case review.Err != nil:
		p.log(fmt.Sprintf("AI review failed for %s: %v", name, review.Err), "warning")
	case review.Assessment.IsMalicious:
		p.log(fmt.Sprintf("SUSPICIOUS %s: %s", name, review.Assessment.Justification), "warning")
	default:
		p.log(fmt.Sprintf("LIKELY SAFE %s (confidence=%.0f%%)", name, review.Assessment.Confidence*100), "success")
	}
}

func lookupFailure(stage, key string) string {
	if stage == scan.StageVulnerabilities {
		return fmt.Sprintf("Vulnerability lookup failed for %s; treating as no known vulnerabilities", key)
	}
	return fmt.Sprintf("Age lookup failed for %s; age unknown", key)
}
