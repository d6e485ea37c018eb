// Package rod implements the browser-driven link acquisition collaborator
// using Chrome automation. The file host gates real download links behind a
// JavaScript flow, so a direct link is obtained by navigating to the book's
// page, clicking the free-download control, and intercepting the JSON
// response that carries the CDN URL.
package rod

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/mjarosz/bookdl"
	"golang.org/x/sync/semaphore"
)

// DefaultFetchTimeout bounds a single link acquisition, from navigation to
// intercepted response.
const DefaultFetchTimeout = 30 * time.Second

// DefaultConcurrency caps simultaneous browser pages.
const DefaultConcurrency = 3

// linkEndpoints are the site API paths whose responses carry the CDN link.
var linkEndpoints = []string{"get_file_url", "get_down_url"}

// Ensure Fetcher implements bookdl.LinkFetcher at compile time.
var _ bookdl.LinkFetcher = (*Fetcher)(nil)

// Fetcher acquires direct download links with a headless Chrome browser.
// The browser is launched lazily and relaunched whenever the proxy pool
// rotates to a different endpoint, since Chrome takes its proxy
// configuration at launch. Fetcher is safe for concurrent use.
type Fetcher struct {
	timeout  time.Duration
	headless bool
	proxies  bookdl.ProxyPool
	sem      *semaphore.Weighted
	logger   *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	proxy    string // endpoint the current browser was launched with
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithTimeout sets the per-link acquisition timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.timeout = d }
}

// WithHeadless toggles headless mode. Defaults to true.
func WithHeadless(headless bool) FetcherOption {
	return func(f *Fetcher) { f.headless = headless }
}

// WithProxyPool routes browser traffic through the pool's current endpoint.
func WithProxyPool(pool bookdl.ProxyPool) FetcherOption {
	return func(f *Fetcher) { f.proxies = pool }
}

// WithConcurrency caps simultaneous browser pages.
func WithConcurrency(n int64) FetcherOption {
	return func(f *Fetcher) { f.sem = semaphore.NewWeighted(n) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

// NewFetcher creates a Fetcher and launches the browser, so that a
// misconfigured Chrome fails the run up front rather than on the first item.
// Close must be called when the Fetcher is no longer needed.
func NewFetcher(opts ...FetcherOption) (*Fetcher, error) {
	f := &Fetcher{
		timeout:  DefaultFetchTimeout,
		headless: true,
		proxies:  bookdl.NopProxyPool{},
		sem:      semaphore.NewWeighted(DefaultConcurrency),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	endpoint, err := f.proxies.Acquire(context.Background())
	if err != nil {
		return nil, err
	}
	if err := f.launchBrowser(endpoint); err != nil {
		return nil, err
	}
	return f, nil
}

// FetchLink navigates to the book's page, clicks the download control, and
// returns the intercepted CDN link. Concurrent calls are capped by the
// session semaphore so the pipe above can run a wider fan-out without
// over-subscribing the browser.
func (f *Fetcher) FetchLink(ctx context.Context, book *bookdl.Book) (*bookdl.DirectLink, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	browser, err := f.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	link, err := f.extract(ctx, browser, book)
	if err != nil {
		return nil, err
	}

	f.logger.Info("acquired direct link", "title", book.Title, "filename", link.Filename)
	return link, nil
}

// Close releases browser resources.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeBrowser()
}

// ensureBrowser returns a browser launched with the pool's current proxy,
// recycling the old instance when the pool has rotated.
func (f *Fetcher) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	endpoint, err := f.proxies.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil && f.proxy == endpoint {
		return f.browser, nil
	}

	if err := f.closeBrowser(); err != nil {
		f.logger.Warn("closing stale browser", "err", err)
	}
	if err := f.launchBrowser(endpoint); err != nil {
		return nil, err
	}
	return f.browser, nil
}

// launchBrowser starts Chrome, optionally routed through a proxy endpoint.
// Must be called with mu held (or before the Fetcher is shared).
func (f *Fetcher) launchBrowser(endpoint string) error {
	lnchr := launcher.New().
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-dev-shm-usage").
		Leakless(true).
		Headless(f.headless)
	if endpoint != "" {
		lnchr = lnchr.Proxy(endpoint)
	}

	u, err := lnchr.Launch()
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		lnchr.Kill()
		return fmt.Errorf("connecting to browser: %w", err)
	}

	f.browser = browser
	f.launcher = lnchr
	f.proxy = endpoint
	if endpoint != "" {
		f.logger.Info("browser launched through proxy", "endpoint", endpoint)
	}
	return nil
}

// closeBrowser shuts down the current browser and launcher.
// Must be called with mu held.
func (f *Fetcher) closeBrowser() error {
	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.launcher != nil {
		f.launcher.Kill()
		f.launcher = nil
	}
	f.proxy = ""
	return err
}

// extract opens a fresh page, arms the response interceptor, triggers the
// download flow, and waits for the CDN link.
func (f *Fetcher) extract(ctx context.Context, browser *rod.Browser, book *bookdl.Book) (*bookdl.DirectLink, error) {
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, classifyBrowserErr(err)
	}
	defer page.Close()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	page = page.Context(ctx)

	// The interceptor must be armed before navigation: the site fires the
	// link request immediately after the click and the response is gone if
	// nobody is listening.
	linkCh := make(chan *bookdl.DirectLink, 1)
	go page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if !isLinkEndpoint(e.Response.URL) || e.Response.Status != 200 {
			return false
		}
		body, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(page)
		if err != nil {
			return false
		}
		link := ParseLinkResponse(body.Body)
		if link == nil {
			// A non-200 "code" field means no usable link; keep listening.
			return false
		}
		linkCh <- link
		return true
	})()

	if err := page.Navigate(book.Link); err != nil {
		return nil, classifyBrowserErr(err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, classifyBrowserErr(err)
	}
	// The host page is a SPA; give scripts a moment to settle before
	// looking for the control.
	_ = page.WaitIdle(f.timeout / 3)

	if err := clickDownloadControl(page); err != nil {
		return nil, err
	}

	select {
	case link := <-linkCh:
		return link, nil
	case <-ctx.Done():
		return nil, bookdl.Errorf(bookdl.ETRANSIENT, "link fetch timeout for %q", book.Title)
	}
}

func isLinkEndpoint(url string) bool {
	for _, endpoint := range linkEndpoints {
		if strings.Contains(url, endpoint) {
			return true
		}
	}
	return false
}

// clickDownloadControl tries the known selectors for the free-download
// button, most specific first. None of them resolving is the signature of
// an anti-automation block page, so the failure is classified as a proxy
// fault and the caller rotates to a fresh endpoint.
func clickDownloadControl(page *rod.Page) error {
	strategies := []struct {
		selector string
		text     string
	}{
		{selector: "#freeDownloadNormal button", text: "立即下载"},
		{selector: "button", text: "立即下载"},
		{selector: "a", text: "立即下载"},
	}

	for _, s := range strategies {
		el, err := page.Timeout(3 * time.Second).ElementR(s.selector, s.text)
		if err != nil {
			continue
		}
		if err := el.Timeout(5 * time.Second).Click(proto.InputMouseButtonLeft, 1); err != nil {
			continue
		}
		return nil
	}

	return bookdl.Errorf(bookdl.EPROXY, "download control not found")
}

// proxyFaultSignatures are Chrome network error fragments that indicate the
// tunnel, not the site, is broken.
var proxyFaultSignatures = []string{
	"ERR_PROXY_CONNECTION_FAILED",
	"ERR_TUNNEL_CONNECTION_FAILED",
	"ERR_CONNECTION_RESET",
	"ERR_CONNECTION_REFUSED",
	"ERR_CONNECTION_CLOSED",
	"ERR_EMPTY_RESPONSE",
	"ERR_SOCKS_CONNECTION_FAILED",
}

// classifyBrowserErr maps navigation failures onto the failure taxonomy.
func classifyBrowserErr(err error) error {
	if err == nil {
		return nil
	}
	if err == context.DeadlineExceeded || strings.Contains(err.Error(), "context deadline exceeded") {
		return bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "link fetch timeout")
	}
	msg := err.Error()
	for _, sig := range proxyFaultSignatures {
		if strings.Contains(msg, sig) {
			return bookdl.WrapErrorf(err, bookdl.EPROXY, "proxy tunnel fault")
		}
	}
	return bookdl.WrapErrorf(err, bookdl.ETRANSIENT, "browser navigation failed")
}
