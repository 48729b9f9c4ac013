package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/carhound/carhound/internal/config"
	"github.com/carhound/carhound/internal/types"
)

// HTTPFetcher implements Fetcher using net/http. Each Fetch performs the
// full retry cycle: up to MaxRetries attempts with exponential backoff
// (base, 2×base, 4×base, ...). A response only counts as success when the
// status is 200 and, if a minimum body size is configured, the body
// exceeds it: marketplaces serve interstitial stub pages with a 200.
type HTTPFetcher struct {
	client     *http.Client
	fetchCfg   *config.FetcherConfig
	ingestCfg  *config.IngestConfig
	proxyMgr   *ProxyManager
	counters   Counters
	logger     *slog.Logger
	userAgents []string
	uaIndex    atomic.Int64
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.Config, counters Counters, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.Fetcher.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Fetcher.MaxIdleConns / 2,
		IdleConnTimeout:     cfg.Fetcher.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.Fetcher.TLSInsecure,
		},
		DisableCompression: true, // We handle decompression ourselves (including brotli)
	}

	var proxyMgr *ProxyManager
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		proxyMgr = NewProxyManager(&cfg.Proxy, logger)
		transport.Proxy = proxyMgr.ProxyFunc()
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !cfg.Fetcher.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= cfg.Fetcher.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", cfg.Fetcher.MaxRedirects)
		}
		return nil
	}

	client := &http.Client{
		Transport:     transport,
		Jar:           jar,
		Timeout:       cfg.Ingest.RequestTimeout,
		CheckRedirect: redirectPolicy,
	}

	if counters == nil {
		counters = nopCounters{}
	}

	return &HTTPFetcher{
		client:     client,
		fetchCfg:   &cfg.Fetcher,
		ingestCfg:  &cfg.Ingest,
		proxyMgr:   proxyMgr,
		counters:   counters,
		logger:     logger.With("component", "http_fetcher"),
		userAgents: cfg.Fetcher.UserAgents,
	}, nil
}

// Fetch executes the request with retries and returns the first successful
// response. On exhaustion it returns a *types.FetchError classifying the
// last failure; the target is then "unavailable", never fatal to the run.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	target := req.Target()
	var lastErr error
	kind := types.FailureUnknown
	status := 0

	for attempt := 0; attempt < f.ingestCfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := f.backoff(ctx, attempt); err != nil {
				break
			}
		}

		resp, err := f.attempt(ctx, req, target)
		if err == nil {
			resp.Attempts = attempt + 1
			if f.proxyMgr != nil {
				f.proxyMgr.NoteSuccess()
			}
			return resp, nil
		}

		lastErr = err
		kind, status = classify(err)
		if kind == types.FailureUnknown && ctx.Err() != nil {
			break
		}

		f.logger.Warn("fetch attempt failed",
			"url", target,
			"attempt", attempt+1,
			"max_attempts", f.ingestCfg.MaxRetries,
			"kind", kind.String(),
			"error", err,
		)

		if f.proxyMgr != nil {
			f.proxyMgr.NoteFailure(err)
		}
	}

	f.counters.RequestFailed()
	return nil, &types.FetchError{
		URL:        target,
		Kind:       kind,
		StatusCode: status,
		Attempts:   f.ingestCfg.MaxRetries,
		Err:        lastErr,
	}
}

// attempt performs a single request on the wire.
func (f *HTTPFetcher) attempt(ctx context.Context, req *Request, target string) (*Response, error) {
	timeout := f.ingestCfg.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	f.setHeaders(httpReq, req)

	start := time.Now()
	f.counters.RequestSent()
	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var reader io.Reader = httpResp.Body
	if f.fetchCfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, f.fetchCfg.MaxBodySize)
	}

	reader, err = decompressReader(httpResp, reader)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &statusError{code: httpResp.StatusCode}
	}
	if f.ingestCfg.MinBodySize > 0 && len(body) <= f.ingestCfg.MinBodySize {
		return nil, &statusError{code: httpResp.StatusCode, tooSmall: true, size: len(body)}
	}

	duration := time.Since(start)
	f.logger.Debug("fetch complete",
		"url", target,
		"status", httpResp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		FinalURL:   httpResp.Request.URL.String(),
		Duration:   duration,
	}, nil
}

// setHeaders applies the header profile, User-Agent rotation, and referer.
func (f *HTTPFetcher) setHeaders(httpReq *http.Request, req *Request) {
	httpReq.Header.Set("User-Agent", f.nextUserAgent())
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Connection", "keep-alive")

	switch req.Profile {
	case ProfileAPI:
		httpReq.Header.Set("Accept", "*/*")
		httpReq.Header.Set("Sec-Fetch-Dest", "empty")
		httpReq.Header.Set("Sec-Fetch-Mode", "cors")
		httpReq.Header.Set("Sec-Fetch-Site", "same-origin")
		httpReq.Header.Set("X-Nextjs-Data", "1")
	default: // ProfileBrowser
		httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		httpReq.Header.Set("Upgrade-Insecure-Requests", "1")
	}

	if req.Referer != "" {
		httpReq.Header.Set("Referer", req.Referer)
	}
}

// backoff sleeps for the exponential delay before the given attempt,
// aborting early on context cancellation.
func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) error {
	return sleepBackoff(ctx, f.ingestCfg.RetryBaseDelay, attempt)
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Type returns the fetcher type identifier.
func (f *HTTPFetcher) Type() string {
	return "http"
}

// nextUserAgent returns the next User-Agent in rotation.
func (f *HTTPFetcher) nextUserAgent() string {
	if len(f.userAgents) == 0 {
		return "carhound/" + config.Version
	}
	idx := f.uaIndex.Add(1) % int64(len(f.userAgents))
	return f.userAgents[idx]
}

// statusError marks an attempt that reached the server but did not qualify
// as a success: non-200 status, or a 200 with a suspiciously small body.
type statusError struct {
	code     int
	tooSmall bool
	size     int
}

func (e *statusError) Error() string {
	if e.tooSmall {
		return fmt.Sprintf("HTTP %d: body too small (%d bytes)", e.code, e.size)
	}
	return fmt.Sprintf("HTTP %d", e.code)
}

// classify maps an attempt error to the terminal failure taxonomy.
func classify(err error) (types.FailureKind, int) {
	var se *statusError
	if errors.As(err, &se) {
		return types.FailureHTTPStatus, se.code
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return types.FailureTimeout, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.FailureTimeout, 0
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return types.FailureConnection, 0
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return types.FailureConnection, 0
		}
		return types.FailureConnection, 0
	}

	return types.FailureUnknown, 0
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
