package scrape

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Extractor fetches a URL and returns its article title and body text.
// Implementations must be safe for concurrent use. Any returned error is
// treated as a row failure; callers never inspect the error type.
type Extractor interface {
	FetchAndExtract(ctx context.Context, url string) (Article, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, url string) (Article, error)

// FetchAndExtract calls f(ctx, url).
func (f ExtractorFunc) FetchAndExtract(ctx context.Context, url string) (Article, error) {
	return f(ctx, url)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator issues identifiers for scrape runs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Page is a fetched HTTP response.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher downloads a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// HTTPError reports a response whose status code is not 2xx.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether a retry may succeed.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= http.StatusInternalServerError
}
