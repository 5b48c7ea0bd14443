package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://Example.COM/Docs/", "https://example.com/Docs", false},
		{"example.com/page#section", "https://example.com/page", false},
		{"HTTP://example.com", "http://example.com", false},
		{"ftp://example.com/file", "", true},
		{"https://", "", true},
	}
	for _, tc := range cases {
		got, err := normalizeURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("normalizeURL(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeURL(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsJSShell(t *testing.T) {
	shell := `<html><body><div id="root"></div><noscript>You need to enable JavaScript to run this app.</noscript></body></html>`
	if !isJSShell(shell, "") {
		t.Error("empty SPA shell not detected")
	}

	long := strings.Repeat("real server-rendered content. ", 20)
	if isJSShell(shell, long) {
		t.Error("page with substantial content flagged as shell")
	}

	plain := `<html><body><p>short</p></body></html>`
	if isJSShell(plain, "short") {
		t.Error("short page without markers flagged as shell")
	}
}

func TestExtractMainContentCascade(t *testing.T) {
	html := `<html><body>
	<nav>Site navigation with many links and menus that should disappear entirely</nav>
	<main>` + strings.Repeat("The main article text goes here. ", 10) + `</main>
	<footer>Copyright footer text that also should not appear in the extraction</footer>
	</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	content := extractMainContent(doc.Selection)
	if !strings.Contains(content, "main article text") {
		t.Error("main content missing")
	}
	if strings.Contains(content, "navigation") || strings.Contains(content, "Copyright") {
		t.Errorf("chrome elements leaked into content: %q", content)
	}
}

func TestExtractMainContentFallsBackToBody(t *testing.T) {
	html := `<html><body><p>tiny</p></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	if got := extractMainContent(doc.Selection); !strings.Contains(got, "tiny") {
		t.Errorf("body fallback broken, got %q", got)
	}
}

func TestFetchSerialisesConcurrentCallers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head><title>doc</title></head><body><main>%s</main></body></html>",
			strings.Repeat("substantial page content ", 10))
	}))
	defer srv.Close()

	f := NewFetcher(1, time.Millisecond, 25*time.Millisecond)

	const callers = 3
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	start := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	// The first caller pays no delay; each of the other two must wait the
	// full polite delay after the previous fetch finished.
	if elapsed := time.Since(start); elapsed < (callers-1)*25*time.Millisecond {
		t.Fatalf("three concurrent fetches finished in %v; polite delay not enforced across goroutines", elapsed)
	}
}
