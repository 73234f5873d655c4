// Package fetch - browser.go renders JavaScript-heavy guideline pages in a headless browser.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/jonathan/ckd-assistant/internal/logging"
)

// MinContentLength is the shortest extracted guideline text accepted from a
// plain HTTP fetch before falling back to browser rendering.
const MinContentLength = 500

// contentWait bounds how long the browser waits for a publisher's content block.
const contentWait = 10 * time.Second

// ShouldUseBrowser returns true if the extracted text is too short,
// indicating the page is likely rendered client-side.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// renderPlan is what the browser does on a publisher's page before reading it.
type renderPlan struct {
	// waitFor is the content block that signals the guideline text has rendered.
	waitFor string
	// clicks are pressed in order when present: consent banners, then
	// collapsed sections that hide recommendation text.
	clicks []string
}

var consentButtons = []string{
	"#onetrust-accept-btn-handler",
	"button#cookie-accept",
	".cookie-notice button.accept",
	"button[data-cookiebanner='accept_button']",
}

func planFor(p Publisher) renderPlan {
	plan := renderPlan{waitFor: PublisherContentSelectors(p)[0], clicks: append([]string(nil), consentButtons...)}
	switch p {
	case PublisherNICE:
		plan.clicks = append(plan.clicks, "details:not([open]) > summary", "button.accordion__toggle[aria-expanded='false']")
	case PublisherPubMed:
		plan.clicks = append(plan.clicks, "button.show-all", "#abstract .expand-button")
	case PublisherKDIGO:
		plan.clicks = append(plan.clicks, ".elementor-tab-title:not(.elementor-active)")
	case PublisherNKF:
		plan.clicks = append(plan.clicks, "button.accordion-trigger[aria-expanded='false']")
	case PublisherUnknown:
		plan.waitFor = "body"
	}
	return plan
}

// clickAllScript clicks every element matching each selector, ignoring misses.
func clickAllScript(selectors []string) string {
	list, _ := json.Marshal(selectors)
	return fmt.Sprintf(`(() => { let n = 0; for (const s of %s) { document.querySelectorAll(s).forEach(el => { el.click(); n++; }); } return n; })()`, list)
}

// WithBrowser renders a guideline page in a headless browser and returns the
// rendered HTML. It waits for the publisher's content block rather than a fixed
// delay, then opens collapsed sections so their text is captured.
// Requires Chrome/Chromium to be installed on the system.
func WithBrowser(ctx context.Context, url string, timeout time.Duration) (string, error) {
	publisher := DetectPublisher(url)
	plan := planFor(publisher)
	logger := logging.New("fetch")
	logger.DebugContext(ctx, "rendering guideline page", slog.String("url", url), slog.String("publisher", string(publisher)))

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var (
		html    string
		clicked int
	)
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			waitCtx, cancel := context.WithTimeout(ctx, contentWait)
			defer cancel()
			if err := chromedp.WaitVisible(plan.waitFor).Do(waitCtx); err != nil {
				logger.DebugContext(ctx, "content block never appeared", slog.String("selector", plan.waitFor))
			}
			return nil
		}),
		chromedp.Evaluate(clickAllScript(plan.clicks), &clicked),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}

	logger.DebugContext(ctx, "rendered guideline page", slog.String("url", url), slog.Int("bytes", len(html)), slog.Int("expanded", clicked))
	return html, nil
}
