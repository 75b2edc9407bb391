package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acheong08/sentinel/internal/metrics"
	"github.com/acheong08/sentinel/internal/pool"
	"github.com/acheong08/sentinel/pkg/models"
)

const (
	DefaultBaseURL = "https://pypi.org"
	DefaultTimeout = 10 * time.Second
)

var (
	ErrNotFound         = errors.New("package not found")
	ErrNoUploads        = errors.New("package has no uploaded files")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// AgeLookup is the outcome of one age query; Value is the age in days
type AgeLookup = models.Lookup[int]

// Client reads package metadata from the PyPI JSON API
type Client struct {
	BaseURL    string
	Workers    int
	HTTPClient *http.Client
	Metrics    *metrics.Metrics

	// Now is the reference instant for ages; defaults to time.Now
	Now func() time.Time

	// OnDone is called from worker goroutines after each lookup in AgeAll
	OnDone func(name string, ok bool)
}

// NewClient creates a PyPI client with the default timeout
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
		Now: time.Now,
	}
}

// PackageMetadata is the subset of /pypi/{name}/json we read
type PackageMetadata struct {
	Info struct {
		Name     string `json:"name"`
		Version  string `json:"version"`
		Summary  string `json:"summary"`
		Author   string `json:"author"`
		HomePage string `json:"home_page"`
	} `json:"info"`
	URLs []ReleaseFile `json:"urls"`
}

// ReleaseFile is one uploaded artifact of the latest release
type ReleaseFile struct {
	Filename   string `json:"filename"`
	UploadTime string `json:"upload_time_iso_8601"`
}

// FetchPackageMetadata fetches package metadata from the PyPI JSON API
func (c *Client) FetchPackageMetadata(ctx context.Context, name string) (*PackageMetadata, error) {
	u := fmt.Sprintf("%s/pypi/%s/json", c.BaseURL, url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var metadata PackageMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &metadata, nil
}

// FirstUpload returns the upload time of the first listed artifact.
// PyPI lists the files of the latest release, so this is an approximation of
// the first publication; it is kept as is rather than scanning all releases.
func (m *PackageMetadata) FirstUpload() (time.Time, error) {
	if len(m.URLs) == 0 {
		return time.Time{}, ErrNoUploads
	}
	raw := m.URLs[0].UploadTime
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: missing upload time", ErrNoUploads)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse upload time %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// Age returns the package age in whole days. It never returns an error;
// an unknown package or failed request yields a failed lookup.
func (c *Client) Age(ctx context.Context, name string) AgeLookup {
	start := time.Now()
	days, err := c.age(ctx, name)
	c.Metrics.ObserveLookup(metrics.SourcePyPI, err == nil, time.Since(start))

	if err != nil {
		slog.Debug("age lookup failed", "package", name, "err", err)
		return models.Failed[int](err)
	}
	return models.Succeeded(days)
}

// AgeAll looks up every distinct name concurrently, bounded by Workers,
// and returns once all lookups have finished.
func (c *Client) AgeAll(ctx context.Context, names []string) map[string]AgeLookup {
	return pool.Collect(ctx, c.Workers, names, func(ctx context.Context, name string) AgeLookup {
		result := c.Age(ctx, name)
		if c.OnDone != nil {
			c.OnDone(name, result.OK())
		}
		return result
	})
}

func (c *Client) age(ctx context.Context, name string) (int, error) {
	metadata, err := c.FetchPackageMetadata(ctx, name)
	if err != nil {
		return 0, err
	}
	uploaded, err := metadata.FirstUpload()
	if err != nil {
		return 0, err
	}
	return DaysSince(uploaded, c.now()), nil
}

func (c *Client) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}

// DaysSince returns whole days elapsed from t to now, never negative
func DaysSince(t, now time.Time) int {
	days := int(now.Sub(t).Hours() / 24)
	return max(days, 0)
}
