// Package crawler fetches single web pages for URL ingestion. Static HTML
// is the fast path; pages that ship only a JavaScript shell escalate to a
// headless browser render.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"docatlas/internal/faults"
	"docatlas/internal/logger"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

var httpTransport = &http.Transport{
	DisableCompression: false,
}

// Fetcher retrieves page content with retry, backoff and a polite
// inter-fetch delay. One Fetcher is shared across the worker pool; mu
// serialises fetches so the delay holds between any two of them.
type Fetcher struct {
	attempts    int
	backoffBase time.Duration
	politeDelay time.Duration
	timeout     time.Duration
	renderWait  time.Duration

	mu        sync.Mutex
	lastFetch time.Time
}

// NewFetcher builds a fetcher with the configured retry policy. attempts is
// the total try count per URL; backoffBase doubles per retry.
func NewFetcher(attempts int, backoffBase, politeDelay time.Duration) *Fetcher {
	return &Fetcher{
		attempts:    attempts,
		backoffBase: backoffBase,
		politeDelay: politeDelay,
		timeout:     30 * time.Second,
		renderWait:  30 * time.Second,
	}
}

// PageContent is a fetched page reduced to its main text.
type PageContent struct {
	URL     string
	Title   string
	Content string
}

// Fetch retrieves one URL, observing the polite delay since the previous
// fetch on this Fetcher. 429 and 5xx responses are retried with exponential
// backoff; a JavaScript-only shell escalates to a headless render.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*PageContent, error) {
	normalized, err := normalizeURL(rawURL)
	if err != nil {
		return nil, faults.Wrapf(faults.Validation, "crawler.Fetch", err, "invalid url %q", rawURL)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if wait := f.politeDelay - time.Since(f.lastFetch); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, faults.Wrap(faults.Transient, "crawler.Fetch", ctx.Err())
		}
	}
	defer func() { f.lastFetch = time.Now() }()

	var lastErr error
	backoff := f.backoffBase
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if attempt > 1 {
			logger.Warn("Retrying URL fetch", "url", normalized, "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, faults.Wrap(faults.Transient, "crawler.Fetch", ctx.Err())
			}
			backoff *= 2
		}

		html, status, err := f.fetchOnce(normalized)
		if err != nil {
			lastErr = err
			continue
		}
		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = faults.Newf(faults.Transient, "crawler.Fetch", "status %d from %s", status, normalized)
			continue
		}
		if status >= 400 {
			return nil, faults.Newf(faults.Upstream, "crawler.Fetch", "status %d from %s", status, normalized)
		}

		page, err := f.pageFromHTML(ctx, normalized, html)
		if err != nil {
			return nil, err
		}
		return page, nil
	}
	return nil, faults.Wrapf(faults.Upstream, "crawler.Fetch", lastErr, "exhausted %d attempts for %s", f.attempts, normalized)
}

// pageFromHTML parses fetched HTML, escalating to a headless render when the
// page looks like a JavaScript-only shell.
func (f *Fetcher) pageFromHTML(ctx context.Context, pageURL, html string) (*PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "crawler.Fetch", err)
	}
	title := strings.TrimSpace(doc.Find("title").Text())
	content := extractMainContent(doc.Selection)

	if isJSShell(html, content) {
		logger.Info("Page looks like a JS shell, escalating to headless render", "url", pageURL)
		rendered, err := f.renderPage(ctx, pageURL)
		if err != nil {
			logger.Warn("Headless render failed, keeping static content", "url", pageURL, "error", err)
		} else {
			rdoc, perr := goquery.NewDocumentFromReader(strings.NewReader(rendered))
			if perr == nil {
				if t := strings.TrimSpace(rdoc.Find("title").Text()); t != "" {
					title = t
				}
				if c := extractMainContent(rdoc.Selection); len(c) > len(content) {
					content = c
				}
			}
		}
	}

	if strings.TrimSpace(content) == "" {
		return nil, faults.Newf(faults.Upstream, "crawler.Fetch", "no readable content at %s", pageURL)
	}
	return &PageContent{URL: pageURL, Title: title, Content: content}, nil
}

// fetchOnce performs one HTTP round trip through colly with browser-like
// headers, manual brotli handling and charset decoding.
func (f *Fetcher) fetchOnce(pageURL string) (string, int, error) {
	c := colly.NewCollector()
	c.WithTransport(httpTransport)
	c.SetRequestTimeout(f.timeout)
	c.UserAgent = browserUA

	var (
		body     string
		status   int
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
	})

	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode

		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
			fetchErr = faults.Newf(faults.Unsupported, "crawler.fetchOnce", "non-HTML content type %q at %s", contentType, pageURL)
			return
		}

		raw := r.Body
		// The standard transport decompresses gzip but not brotli.
		if strings.Contains(r.Headers.Get("Content-Encoding"), "br") {
			if decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(raw))); err == nil {
				raw = decompressed
			}
		}
		if utf8Reader, err := charset.NewReader(bytes.NewReader(raw), contentType); err == nil {
			if decoded, err := io.ReadAll(utf8Reader); err == nil && len(decoded) > 0 {
				raw = decoded
			}
		}
		body = string(raw)
	})

	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
		if status == 0 {
			fetchErr = err
		}
	})

	if err := c.Visit(pageURL); err != nil {
		return "", 0, err
	}
	c.Wait()

	if fetchErr != nil {
		return "", status, fetchErr
	}
	return body, status, nil
}

// jsShellMarkers are the canonical signatures of a client-rendered page that
// shipped no server-side content.
var jsShellMarkers = []string{
	"enable javascript",
	"javascript is required",
	"javascript to run this app",
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	"<noscript>",
}

// isJSShell reports whether the static HTML carries a JS-only shell: a
// marker plus too little extracted content to be the real page.
func isJSShell(html, extracted string) bool {
	if len(strings.TrimSpace(extracted)) >= 200 {
		return false
	}
	lower := strings.ToLower(html)
	for _, marker := range jsShellMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// contentSelectors is the ordered cascade for locating the main content
// element.
var contentSelectors = []string{
	"main",
	"article",
	"[role='main']",
	".main-content",
	".content",
	"#content",
	".post",
	".entry",
	"body",
}

// extractMainContent strips chrome elements and returns the text of the
// first selector in the cascade that yields substantial content.
func extractMainContent(selection *goquery.Selection) string {
	doc := selection.Clone()
	doc.Find("script, style, nav, footer, aside, header").Remove()

	var content strings.Builder
	for _, selector := range contentSelectors {
		found := false
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 100 {
				content.WriteString(text)
				content.WriteString("\n\n")
				found = true
			}
		})
		if found {
			break
		}
	}
	if content.Len() == 0 {
		content.WriteString(doc.Find("body").Text())
	}

	lines := strings.Split(content.String(), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// normalizeURL canonicalises a URL: https default scheme, lowercase
// scheme/host, no fragment, no trailing slash on non-root paths.
func normalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + rawURL)
		if err != nil {
			return "", err
		}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host in %q", rawURL)
	}

	parsed.Fragment = ""
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	if parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}
	return parsed.String(), nil
}
