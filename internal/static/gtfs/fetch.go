package gtfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errEmptyURL = errors.New("feed url is empty")

// FetchOptions configures a Fetcher. The zero value means one attempt
// against the primary URL only.
type FetchOptions struct {
	// FallbackURL is tried when the primary URL fails
	FallbackURL string

	// MaxRetries is the number of extra attempts per URL on retryable
	// failures (5xx, 429, network errors)
	MaxRetries uint64

	// InitialInterval is the first backoff delay; defaults to 2s
	InitialInterval time.Duration
}

// Fetcher downloads GTFS archives over HTTP
type Fetcher struct {
	client *http.Client
	opts   FetchOptions
}

// NewFetcher creates a Fetcher. A nil client gets a 120s timeout.
func NewFetcher(client *http.Client, opts FetchOptions) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 2 * time.Second
	}
	opts.FallbackURL = strings.TrimSpace(opts.FallbackURL)
	return &Fetcher{client: client, opts: opts}
}

// Fetch performs a single GET and returns the whole body
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, &FetchError{URL: url, Err: errEmptyURL}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return data, nil
}

// Download fetches the feed from url, retrying with exponential backoff when
// MaxRetries > 0, then from the fallback URL if one is configured. It returns
// the archive bytes and the URL that served them.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, string, error) {
	data, err := f.fetchWithRetry(ctx, url)
	if err == nil {
		return data, url, nil
	}

	fallback := f.opts.FallbackURL
	if fallback == "" || strings.EqualFold(fallback, url) || ctx.Err() != nil {
		return nil, "", err
	}

	log.Printf("Warning: primary feed failed (%v), trying fallback %s", err, fallback)
	fbData, fbErr := f.fetchWithRetry(ctx, fallback)
	if fbErr != nil {
		return nil, "", errors.Join(err, fbErr)
	}
	return fbData, fallback, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	if f.opts.MaxRetries == 0 {
		return f.Fetch(ctx, url)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.opts.InitialInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, f.opts.MaxRetries), ctx)

	data, err := backoff.RetryNotifyWithData(
		func() ([]byte, error) {
			data, err := f.Fetch(ctx, url)
			if err != nil && !isRetryable(err) {
				return nil, backoff.Permanent(err)
			}
			return data, err
		},
		b,
		func(err error, d time.Duration) {
			log.Printf("Fetch failed, retrying in %v: %v", d, err)
		},
	)
	if err != nil {
		// A cancelled context surfaces as the bare context error
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{URL: url, Err: err}
		}
		return nil, err
	}
	return data, nil
}

// isRetryable reports whether a fetch failure may succeed on a later attempt
func isRetryable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, errEmptyURL) {
		return false
	}
	switch {
	case fe.StatusCode == 0:
		return true
	case fe.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return fe.StatusCode >= 500
	}
}

// FileSource reads the feed archive from disk instead of over HTTP
type FileSource struct {
	Path string
}

// Download returns the file contents; url is ignored
func (f FileSource) Download(ctx context.Context, url string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", &FetchError{URL: f.Path, Err: err}
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, "", &FetchError{URL: f.Path, Err: err}
	}
	return data, "file://" + f.Path, nil
}
