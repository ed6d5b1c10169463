// Package extractor implements scrape.Extractor: it downloads a page through a
// scrape.Fetcher, retrying transient failures, and pulls the article title and
// main body text out of the HTML.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/JakeFAU/articlescraper/internal/metrics"
	"github.com/JakeFAU/articlescraper/internal/scrape"
)

// Extraction failures. Workers record any of them as an ERROR row.
var (
	ErrMalformedURL       = errors.New("malformed url")
	ErrUnsupportedContent = errors.New("unsupported content type")
	ErrEmptyContent       = errors.New("no article text found")
)

// Limiter paces requests per domain.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Config tunes extraction.
type Config struct {
	Retry RetryConfig
	// MinTextLength is the shortest body accepted as an article; defaults to 1.
	MinTextLength int
	Logger        *zap.Logger
}

// Extractor is safe for concurrent use as long as its Fetcher and Limiter are.
type Extractor struct {
	fetcher scrape.Fetcher
	limiter Limiter
	cfg     Config
	logger  *zap.Logger
}

// New wires an Extractor. limiter may be nil.
func New(fetcher scrape.Fetcher, limiter Limiter, cfg Config) (*Extractor, error) {
	if fetcher == nil {
		return nil, errors.New("extractor requires a fetcher")
	}
	if cfg.MinTextLength < 1 {
		cfg.MinTextLength = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		fetcher: fetcher,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.Named("extractor"),
	}, nil
}

// FetchAndExtract downloads rawURL and returns its title and body text.
func (e *Extractor) FetchAndExtract(ctx context.Context, rawURL string) (scrape.Article, error) {
	pageURL, err := parseArticleURL(rawURL)
	if err != nil {
		metrics.ObserveExtractFailure("malformed_url")
		return scrape.Article{}, err
	}

	page, err := e.fetch(ctx, pageURL.String())
	if err != nil {
		return scrape.Article{}, err
	}
	if !isHTML(page) {
		metrics.ObserveExtractFailure("content_type")
		return scrape.Article{}, fmt.Errorf("%w: %s", ErrUnsupportedContent, page.Header.Get("Content-Type"))
	}

	article, err := parseArticle(page.Body, pageURL)
	if err != nil {
		metrics.ObserveExtractFailure("parse")
		return scrape.Article{}, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	if len([]rune(article.Body)) < e.cfg.MinTextLength {
		metrics.ObserveExtractFailure("empty")
		return scrape.Article{}, fmt.Errorf("%s: %w", rawURL, ErrEmptyContent)
	}
	return article, nil
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) (scrape.Page, error) {
	var page scrape.Page
	err := retry(ctx, e.cfg.Retry, func() error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, pageURL); err != nil {
				return err
			}
		}
		p, err := e.fetcher.Fetch(ctx, pageURL)
		metrics.ObserveFetch(pageURL, fetchOutcome(err), len(p.Body))
		if err != nil {
			return err
		}
		page = p
		return nil
	}, isRetryable, func(err error, wait time.Duration) {
		metrics.ObserveRetry(pageURL)
		e.logger.Debug("retrying fetch",
			zap.String("url", pageURL),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return scrape.Page{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	return page, nil
}

func parseArticleURL(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMalformedURL, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q: scheme must be http or https", ErrMalformedURL, rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q: missing host", ErrMalformedURL, rawURL)
	}
	return u, nil
}

func isHTML(page scrape.Page) bool {
	ct := page.Header.Get("Content-Type")
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return true
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func parseArticle(body []byte, pageURL *url.URL) (scrape.Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return scrape.Article{}, fmt.Errorf("load document: %w", err)
	}
	parsed, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		// Pages readability rejects outright can still carry a title.
		return scrape.Article{Title: documentTitle(doc, "")}, nil
	}
	return scrape.Article{
		Title: documentTitle(doc, parsed.Title),
		Body:  normalizeText(parsed.TextContent),
	}, nil
}

// documentTitle prefers og:title, then <title>, then the first h1, then
// whatever readability guessed.
func documentTitle(doc *goquery.Document, fallback string) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if title := collapseSpaces(og); title != "" {
			return title
		}
	}
	if title := collapseSpaces(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if title := collapseSpaces(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	return collapseSpaces(fallback)
}

// normalizeText trims every line and collapses blank runs into one paragraph
// break.
func normalizeText(text string) string {
	var paragraphs []string
	for _, line := range strings.Split(text, "\n") {
		if line = collapseSpaces(line); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, scrape.ErrRequestRefused) {
		return false
	}
	var httpErr *scrape.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Colly wraps transport failures as plain errors; treat them as transient.
	return !errors.Is(err, ErrMalformedURL)
}

func fetchOutcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	var httpErr *scrape.HTTPError
	if errors.As(err, &httpErr) {
		return metrics.OutcomeHTTPError
	}
	return metrics.OutcomeNetwork
}
