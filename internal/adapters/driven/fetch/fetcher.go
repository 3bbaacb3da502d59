package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Fetcher implements the interface.
var _ driven.LinkFetcher = (*Fetcher)(nil)

// Per-link failure causes.
var (
	ErrSkipped           = errors.New("skipped by pattern")
	ErrTooLarge          = errors.New("response exceeds size limit")
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

// Defaults used when Config leaves a field unset.
const (
	DefaultTimeout   = 15 * time.Second
	DefaultMaxBytes  = 50 << 20
	DefaultWorkers   = 4
	DefaultUserAgent = "sercha-rag/1.0"
)

// Config configures a Fetcher.
type Config struct {
	// Timeout bounds each download, including reading the body.
	Timeout time.Duration

	// RequestsPerSecond and Burst size the shared token bucket.
	RequestsPerSecond float64
	Burst             int

	// MaxBytes is the largest body that will be saved.
	MaxBytes int64

	// SkipPatterns are doublestar globs matched against host+path and path.
	SkipPatterns []string

	// Workers bounds concurrent downloads.
	Workers int

	UserAgent string

	// Ext is the suffix of saved files (default .pdf).
	Ext string

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// ConfigFromSettings maps application settings onto a Config.
func ConfigFromSettings(s domain.FetchSettings) Config {
	return Config{
		Timeout:           s.Timeout,
		RequestsPerSecond: s.RequestsPerSecond,
		Burst:             s.Burst,
		MaxBytes:          s.MaxBytes,
		SkipPatterns:      s.SkipPatterns,
	}
}

// Fetcher downloads linked resources one level deep.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *RateLimiter
}

// New creates a Fetcher. It fails only on a malformed skip pattern.
func New(cfg Config) (*Fetcher, error) {
	for _, p := range cfg.SkipPatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid skip pattern %q", p)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Ext == "" {
		cfg.Ext = DefaultExt
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &Fetcher{
		cfg:     cfg,
		client:  client,
		limiter: NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}, nil
}

// Fetch downloads urls into destDir. The i-th URL is saved as the i-th
// generated filename; failed links leave a gap in the sequence.
func (f *Fetcher) Fetch(ctx context.Context, urls []string, destDir string) (*domain.FetchReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := &domain.FetchReport{SavedURLs: make(map[string]string)}
	if len(urls) == 0 {
		return report, nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	names := GenerateFilenames(len(urls), f.cfg.Ext)
	saved := make([]string, len(urls))
	failures := make([]*domain.FetchError, len(urls))

	var g errgroup.Group
	g.SetLimit(f.cfg.Workers)
	for i, rawURL := range urls {
		g.Go(func() error {
			dest := filepath.Join(destDir, names[i])
			if ferr := f.fetchOne(ctx, rawURL, dest); ferr != nil {
				failures[i] = ferr
				return nil
			}
			saved[i] = dest
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i := range urls {
		if failures[i] != nil {
			logger.Warn("fetch: %v", failures[i])
			report.Failures = append(report.Failures, failures[i])
			continue
		}
		report.Saved = append(report.Saved, saved[i])
		report.SavedURLs[saved[i]] = urls[i]
	}
	logger.Debug("fetch: saved %d of %d links to %s", len(report.Saved), len(urls), destDir)
	return report, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, rawURL, dest string) *domain.FetchError {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &domain.FetchError{URL: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &domain.FetchError{URL: rawURL, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)}
	}
	if f.skipped(u) {
		return &domain.FetchError{URL: rawURL, Err: ErrSkipped}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return &domain.FetchError{URL: rawURL, Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return &domain.FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return &domain.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		f.limiter.Backoff(parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
		return &domain.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: domain.ErrRateLimited}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &domain.FetchError{URL: rawURL, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("unexpected status %s", resp.Status)}
	case resp.ContentLength > f.cfg.MaxBytes:
		return &domain.FetchError{URL: rawURL, Err: ErrTooLarge}
	}

	if err := f.save(resp.Body, dest); err != nil {
		return &domain.FetchError{URL: rawURL, Err: err}
	}
	return nil
}

// save streams body into dest through a temporary file, so a partial
// download never appears under the final name.
func (f *Fetcher) save(body io.Reader, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(body, f.cfg.MaxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n > f.cfg.MaxBytes {
		return ErrTooLarge
	}
	return os.Rename(tmp.Name(), dest)
}

func (f *Fetcher) skipped(u *url.URL) bool {
	hostPath := u.Hostname() + u.Path
	path := strings.TrimPrefix(u.Path, "/")
	for _, p := range f.cfg.SkipPatterns {
		if ok, _ := doublestar.Match(p, hostPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}
