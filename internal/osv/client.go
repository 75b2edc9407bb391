// Package osv queries the OSV vulnerability database for PyPI packages.
//
// Lookups fail open: a transport error, a non-200 response or an unreadable
// payload yields a failed Lookup whose value is an empty list. Callers that
// score on the value alone will treat the package as having no known
// vulnerabilities, which trades false negatives on transient failures for a
// scan that always completes. The failure stays visible through Lookup.OK.
package osv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/acheong08/sentinel/internal/metrics"
	"github.com/acheong08/sentinel/internal/pool"
	"github.com/acheong08/sentinel/pkg/models"
)

const (
	DefaultBaseURL = "https://api.osv.dev"
	Ecosystem      = "PyPI"

	// DefaultTimeout bounds every single query
	DefaultTimeout = 10 * time.Second
)

// ErrUnexpectedStatus is returned for any non-200 response
var ErrUnexpectedStatus = errors.New("unexpected status")

// VulnLookup is the outcome of one package query
type VulnLookup = models.Lookup[[]models.VulnerabilityRecord]

// Client talks to the OSV query API
type Client struct {
	BaseURL    string
	Workers    int
	HTTPClient *http.Client
	Metrics    *metrics.Metrics

	// OnDone is called from worker goroutines after each query in QueryAll
	OnDone func(key string, ok bool)
}

// NewClient creates a client with the default worker limit and timeout
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Workers: pool.DefaultWorkers,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

type queryRequest struct {
	Package queryPackage `json:"package"`
	Version string       `json:"version,omitempty"`
}

type queryPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type queryResponse struct {
	Vulns []vuln `json:"vulns"`
}

type vuln struct {
	ID       string          `json:"id"`
	Summary  string          `json:"summary"`
	Severity json.RawMessage `json:"severity"`
}

// Query fetches the vulnerabilities for one declaration. It never returns an error;
// failures are reported through the Lookup.
func (c *Client) Query(ctx context.Context, decl models.DependencyDeclaration) VulnLookup {
	start := time.Now()
	vulns, err := c.query(ctx, decl)
	c.Metrics.ObserveLookup(metrics.SourceOSV, err == nil, time.Since(start))

	if err != nil {
		slog.Warn("vulnerability lookup failed, assuming none", "package", decl.Key(), "err", err)
		return VulnLookup{Value: []models.VulnerabilityRecord{}, Err: err}
	}
	return models.Succeeded(vulns)
}

// QueryAll queries every distinct declaration concurrently, bounded by Workers,
// and returns once all queries have finished. Results are keyed by Declaration.Key.
func (c *Client) QueryAll(ctx context.Context, decls []models.DependencyDeclaration) map[string]VulnLookup {
	byKey := make(map[string]models.DependencyDeclaration, len(decls))
	keys := make([]string, 0, len(decls))
	for _, d := range decls {
		byKey[d.Key()] = d
		keys = append(keys, d.Key())
	}

	slog.Debug("querying vulnerabilities", "packages", len(byKey), "workers", c.Workers)
	return pool.Collect(ctx, c.Workers, keys, func(ctx context.Context, key string) VulnLookup {
		result := c.Query(ctx, byKey[key])
		if c.OnDone != nil {
			c.OnDone(key, result.OK())
		}
		return result
	})
}

func (c *Client) query(ctx context.Context, decl models.DependencyDeclaration) ([]models.VulnerabilityRecord, error) {
	payload := queryRequest{
		Package: queryPackage{Name: decl.Name, Ecosystem: Ecosystem},
		Version: decl.VersionOr(""),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	records := make([]models.VulnerabilityRecord, 0, len(out.Vulns))
	for _, v := range out.Vulns {
		records = append(records, models.VulnerabilityRecord{
			ID:       v.ID,
			Summary:  v.Summary,
			Severity: severityText(v.Severity),
		})
	}
	return records, nil
}

// severityText keeps the severity field as stored: a JSON string is unquoted,
// anything else (OSV uses a list of {type, score}) is kept as compact JSON text.
func severityText(raw json.RawMessage) *string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return &s
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		s = string(trimmed)
		return &s
	}
	s = buf.String()
	return &s
}
