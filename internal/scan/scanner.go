// Package scan runs the full assessment for a manifest: parse, fetch both
// signals concurrently, then aggregate in declaration order.
package scan

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/acheong08/sentinel/internal/aggregate"
	"github.com/acheong08/sentinel/internal/metrics"
	"github.com/acheong08/sentinel/internal/osv"
	"github.com/acheong08/sentinel/internal/parser"
	"github.com/acheong08/sentinel/internal/pool"
	"github.com/acheong08/sentinel/internal/registry"
	"github.com/acheong08/sentinel/pkg/models"
)

// Lookup stages reported to OnLookup
const (
	StageVulnerabilities = "vulnerabilities"
	StageAge             = "age"
)

// Options configures a Scanner
type Options struct {
	OSVURL     string
	PyPIURL    string
	Workers    int
	Timeout    time.Duration
	References []string
	Metrics    *metrics.Metrics
}

// Scanner owns the two fetch clients and the aggregator
type Scanner struct {
	OSV        *osv.Client
	Registry   *registry.Client
	Aggregator *aggregate.Aggregator
	Metrics    *metrics.Metrics

	// OnLookup is called from worker goroutines after each external lookup
	OnLookup func(stage, key string, ok bool)
}

// New creates a scanner; zero options fall back to the public endpoints,
// ten workers and a ten second per-request timeout.
func New(opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = pool.DefaultWorkers
	}

	s := &Scanner{
		OSV:        osv.NewClient(opts.OSVURL),
		Registry:   registry.NewClient(opts.PyPIURL),
		Aggregator: aggregate.NewAggregator(),
		Metrics:    opts.Metrics,
	}
	if len(opts.References) > 0 {
		s.Aggregator.References = opts.References
	}

	for _, c := range []*http.Client{s.OSV.HTTPClient, s.Registry.HTTPClient} {
		if opts.Timeout > 0 {
			c.Timeout = opts.Timeout
		}
	}
	s.OSV.Workers = opts.Workers
	s.Registry.Workers = opts.Workers
	s.OSV.Metrics = opts.Metrics
	s.Registry.Metrics = opts.Metrics

	s.OSV.OnDone = func(key string, ok bool) { s.notify(StageVulnerabilities, key, ok) }
	s.Registry.OnDone = func(name string, ok bool) { s.notify(StageAge, name, ok) }
	return s
}

// Scan parses manifest text and assesses every declaration
func (s *Scanner) Scan(ctx context.Context, content string) aggregate.Result {
	return s.ScanDeclarations(ctx, parser.ParseRequirements(content))
}

// ScanDeclarations fetches vulnerabilities and ages as two independent batches
// running side by side, waits for both, and aggregates. It always returns a
// record for every declaration.
func (s *Scanner) ScanDeclarations(ctx context.Context, decls []models.DependencyDeclaration) aggregate.Result {
	start := time.Now()
	names := make([]string, len(decls))
	for i, d := range decls {
		names[i] = d.Name
	}

	var (
		wg    sync.WaitGroup
		vulns map[string]osv.VulnLookup
		ages  map[string]registry.AgeLookup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vulns = s.OSV.QueryAll(ctx, decls)
	}()
	go func() {
		defer wg.Done()
		ages = s.Registry.AgeAll(ctx, names)
	}()
	wg.Wait()

	result := s.Aggregator.Build(decls, vulns, ages)
	s.Metrics.ObserveScan(result.Records)

	slog.Info("scan complete",
		"packages", len(decls),
		"safe", result.Distribution.Safe,
		"review", result.Distribution.Review,
		"risky", result.Distribution.Risky,
		"dangerous", result.Distribution.Dangerous,
		"duration", time.Since(start))
	return result
}

// Lookups returns how many external lookups a scan of decls will issue
func Lookups(decls []models.DependencyDeclaration) int {
	keys := make(map[string]struct{})
	names := make(map[string]struct{})
	for _, d := range decls {
		keys[d.Key()] = struct{}{}
		names[d.Name] = struct{}{}
	}
	return len(keys) + len(names)
}

func (s *Scanner) notify(stage, key string, ok bool) {
	if s.OnLookup != nil {
		s.OnLookup(stage, key, ok)
	}
}
