package crawler

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// renderPage loads the URL in a headless browser and waits up to the render
// window for a main-content element to appear before reading the DOM.
func (f *Fetcher) renderPage(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.renderWait)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(browserUA),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(pageURL)); err != nil {
		return "", err
	}

	// Main-content wait is best effort; a page without any of the cascade
	// selectors still gets its body read.
	waitCtx, waitCancel := context.WithTimeout(browserCtx, f.renderWait-2*time.Second)
	_ = chromedp.Run(waitCtx, chromedp.WaitVisible("main, article, [role='main'], #content", chromedp.ByQuery))
	waitCancel()

	var html string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}
