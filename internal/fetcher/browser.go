package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/carhound/carhound/internal/config"
	"github.com/carhound/carhound/internal/types"
)

// BrowserFetcher implements Fetcher using a headless browser via Rod. It
// exists for marketplaces that gate plain HTTP behind JS challenges; the
// rendered DOM still carries the embedded state JSON the source adapters
// decode, so the rest of the pipeline is unaffected by which fetcher runs.
type BrowserFetcher struct {
	browser    *rod.Browser
	ingestCfg  *config.IngestConfig
	useStealth bool
	counters   Counters
	logger     *slog.Logger
	proxyMgr   *ProxyManager
	pool       *pagePool
}

// BrowserOption configures the BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithStealth enables stealth page patches.
func WithStealth() BrowserOption {
	return func(bf *BrowserFetcher) { bf.useStealth = true }
}

// WithBrowserProxy sets the proxy manager for browser traffic.
func WithBrowserProxy(pm *ProxyManager) BrowserOption {
	return func(bf *BrowserFetcher) { bf.proxyMgr = pm }
}

// NewBrowserFetcher launches a headless Chromium and connects to it.
func NewBrowserFetcher(cfg *config.Config, counters Counters, logger *slog.Logger, opts ...BrowserOption) (*BrowserFetcher, error) {
	if counters == nil {
		counters = nopCounters{}
	}

	bf := &BrowserFetcher{
		ingestCfg: &cfg.Ingest,
		counters:  counters,
		logger:    logger.With("component", "browser_fetcher"),
	}

	for _, opt := range opts {
		opt(bf)
	}

	launchURL, err := bf.launchBrowser()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	bf.browser = browser
	bf.pool = newPagePool(cfg.Ingest.Workers)

	bf.logger.Info("browser fetcher ready",
		"max_pages", cfg.Ingest.Workers,
		"stealth", bf.useStealth,
	)

	return bf, nil
}

// launchBrowser starts a Chromium instance with appropriate flags.
func (bf *BrowserFetcher) launchBrowser() (string, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	if bf.proxyMgr != nil {
		proxyURL := bf.proxyMgr.Next()
		if proxyURL != nil {
			l = l.Proxy(proxyURL.String())
		}
	}

	return l.Launch()
}

// Fetch navigates to the target and returns the rendered HTML. Retries
// with the same exponential backoff schedule as the HTTP fetcher.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	target := req.Target()
	var lastErr error

	for attempt := 0; attempt < bf.ingestCfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, bf.ingestCfg.RetryBaseDelay, attempt); err != nil {
				break
			}
		}

		bf.counters.RequestSent()
		resp, err := bf.navigate(ctx, req, target)
		if err == nil {
			resp.Attempts = attempt + 1
			return resp, nil
		}
		lastErr = err
		bf.logger.Warn("browser fetch attempt failed",
			"url", target,
			"attempt", attempt+1,
			"max_attempts", bf.ingestCfg.MaxRetries,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}

	bf.counters.RequestFailed()
	return nil, &types.FetchError{
		URL:      target,
		Kind:     types.FailureUnknown,
		Attempts: bf.ingestCfg.MaxRetries,
		Err:      lastErr,
	}
}

// navigate performs a single rendered page load.
func (bf *BrowserFetcher) navigate(ctx context.Context, req *Request, target string) (*Response, error) {
	start := time.Now()

	page, err := bf.getPage()
	if err != nil {
		return nil, err
	}
	defer bf.putPage(page)

	timeout := bf.ingestCfg.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	page = page.Context(ctx)
	if err := page.Timeout(timeout).Navigate(target); err != nil {
		return nil, err
	}

	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", target, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, err
	}

	if bf.ingestCfg.MinBodySize > 0 && len(html) <= bf.ingestCfg.MinBodySize {
		return nil, &statusError{code: 200, tooSmall: true, size: len(html)}
	}

	finalURL := target
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	bf.logger.Debug("browser fetch complete",
		"url", target,
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)

	// Rod does not expose the navigation status code; a rendered document
	// that passed the size check is treated as a 200.
	return &Response{
		StatusCode: 200,
		Body:       []byte(html),
		FinalURL:   finalURL,
		Duration:   duration,
	}, nil
}

// Close shuts down the browser and releases resources. In-flight fetches
// returning their pages after this point close them instead of pooling.
func (bf *BrowserFetcher) Close() error {
	for _, page := range bf.pool.close() {
		_ = page.Close()
	}
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}

// getPage retrieves a page from the pool or creates a new one.
func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	if page, ok := bf.pool.get(); ok {
		return page, nil
	}
	if bf.useStealth {
		return stealth.Page(bf.browser)
	}
	return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

// putPage returns a page to the pool.
func (bf *BrowserFetcher) putPage(page *rod.Page) {
	// Navigate to blank to free memory from the last page
	_ = page.Navigate("about:blank")

	if !bf.pool.put(page) {
		_ = page.Close() // Pool full or closed
	}
}

// pagePool recycles browser tabs between fetches. All operations are
// mutex-guarded so a page returned by an in-flight fetch during shutdown
// is handed back to the caller for closing instead of racing a closed
// channel.
type pagePool struct {
	mu     sync.Mutex
	closed bool
	pages  []*rod.Page
	size   int
}

func newPagePool(size int) *pagePool {
	return &pagePool{size: size}
}

// get pops a pooled page. ok is false when the pool is empty or closed and
// the caller should create a fresh page.
func (p *pagePool) get() (*rod.Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.pages) == 0 {
		return nil, false
	}
	page := p.pages[len(p.pages)-1]
	p.pages = p.pages[:len(p.pages)-1]
	return page, true
}

// put offers a page back to the pool. It reports false when the pool is
// full or closed; the page then belongs to the caller again.
func (p *pagePool) put(page *rod.Page) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.pages) >= p.size {
		return false
	}
	p.pages = append(p.pages, page)
	return true
}

// close marks the pool closed and returns the pages it still holds. It is
// idempotent; later calls return nothing.
func (p *pagePool) close() []*rod.Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	pages := p.pages
	p.pages = nil
	return pages
}

// sleepBackoff waits out the exponential delay before the given attempt.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	delay := base << (attempt - 1)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
