// Package proxy maintains a rotating pool of externally-sourced proxy
// endpoints for the link acquisition stage. Candidates are verified
// concurrently against the real target host and served fastest-first;
// endpoints that fail in use are blacklisted for the rest of the run.
package proxy

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/mjarosz/bookdl"
	"golang.org/x/time/rate"
)

const (
	// DefaultVerifyTarget is the host proxies are verified against. Probing
	// the real business site proves the HTTPS CONNECT tunnel works where a
	// generic echo endpoint would not.
	DefaultVerifyTarget = "https://url89.ctfile.com"

	// DefaultVerifyConcurrency bounds the verification fan-out.
	DefaultVerifyConcurrency = 50

	// DefaultVerifyTimeout is the per-candidate probe timeout.
	DefaultVerifyTimeout = 5 * time.Second

	// minFetchInterval is the minimum spacing between two API refills.
	minFetchInterval = 5 * time.Second
)

// ProbeFunc tests a single endpoint and returns its measured latency.
type ProbeFunc func(ctx context.Context, endpoint string) (time.Duration, error)

// Ensure Pool implements bookdl.ProxyPool at compile time.
var _ bookdl.ProxyPool = (*Pool)(nil)

// Pool implements bookdl.ProxyPool backed by either a proxy-list API or a
// local line-delimited file (mutually exclusive). Pool is safe for
// concurrent use.
type Pool struct {
	apiURL            string
	file              string
	probe             ProbeFunc
	verifyConcurrency int
	client            *http.Client
	limiter           *rate.Limiter
	logger            *slog.Logger

	// refillMu serializes refills so a burst of dry Acquires triggers one
	// fetch-and-verify pass instead of many. It is never held together with
	// mu: verification probes the network for seconds and must not block
	// Acquire or Invalidate.
	refillMu sync.Mutex

	mu            sync.Mutex
	current       string
	queue         []string
	blacklist     map[string]struct{}
	fileRound     int
	fileExhausted bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithAPISource configures refills from an HTTP proxy-list API.
func WithAPISource(apiURL string) Option {
	return func(p *Pool) { p.apiURL = apiURL }
}

// WithFileSource configures refills from a local line-delimited file.
func WithFileSource(path string) Option {
	return func(p *Pool) { p.file = path }
}

// WithProbe replaces the verification probe. Used in tests.
func WithProbe(probe ProbeFunc) Option {
	return func(p *Pool) { p.probe = probe }
}

// WithVerifyConcurrency bounds the verification fan-out.
func WithVerifyConcurrency(n int) Option {
	return func(p *Pool) { p.verifyConcurrency = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// NewPool creates a Pool. Exactly one of WithAPISource or WithFileSource
// should be provided; with neither, Acquire always falls back to direct
// connection.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		verifyConcurrency: DefaultVerifyConcurrency,
		blacklist:         make(map[string]struct{}),
		// The API client bypasses any system proxy so the pool is reachable
		// even when the environment routes traffic through a local proxy.
		client:  &http.Client{Timeout: 15 * time.Second, Transport: &http.Transport{Proxy: nil}},
		limiter: rate.NewLimiter(rate.Every(minFetchInterval), 1),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.probe == nil {
		p.probe = tunnelProbe(DefaultVerifyTarget, DefaultVerifyTimeout)
	}
	return p
}

// Acquire returns the current endpoint, advancing to the next verified one
// when none is held. Empty string means no proxy; callers fall back to
// direct connection.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	if endpoint, ok := p.takeReady(); ok {
		return endpoint, nil
	}

	p.refillMu.Lock()
	defer p.refillMu.Unlock()

	// A concurrent Acquire may have finished a refill while this one waited.
	if endpoint, ok := p.takeReady(); ok {
		return endpoint, nil
	}

	verified, err := p.refill(ctx)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, verified...)
	if endpoint := p.dequeueValid(); endpoint != "" {
		p.setCurrent(endpoint)
		return endpoint, nil
	}

	p.logger.Warn("no proxy available, falling back to direct connection")
	return "", nil
}

// takeReady returns the held endpoint, or rotates to the next queued one,
// without triggering a refill.
func (p *Pool) takeReady() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != "" {
		return p.current, true
	}
	if endpoint := p.dequeueValid(); endpoint != "" {
		p.setCurrent(endpoint)
		return endpoint, true
	}
	return "", false
}

// setCurrent records the rotated-to endpoint. Must be called with mu held.
func (p *Pool) setCurrent(endpoint string) {
	p.current = endpoint
	p.logger.Info("proxy rotated", "endpoint", endpoint, "queued", len(p.queue))
}

// Invalidate blacklists the current endpoint and clears it, so the next
// Acquire advances to a fresh one.
func (p *Pool) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.current
	p.current = ""
	if old != "" {
		p.blacklist[old] = struct{}{}
		p.logger.Info("proxy blacklisted",
			"endpoint", old,
			"blacklisted", len(p.blacklist),
			"queued", len(p.queue),
		)
	}
}

// dequeueValid pops the first non-blacklisted endpoint. Must be called with
// mu held.
func (p *Pool) dequeueValid() string {
	for len(p.queue) > 0 {
		candidate := p.queue[0]
		p.queue = p.queue[1:]
		if _, bad := p.blacklist[candidate]; !bad {
			return candidate
		}
	}
	return ""
}

// refill fetches and verifies a fresh batch of endpoints. Must be called
// with refillMu held and mu released: verification probes candidates over
// the network for up to the probe timeout each.
func (p *Pool) refill(ctx context.Context) ([]string, error) {
	switch {
	case p.file != "":
		return p.loadFromFile(ctx)
	case p.apiURL != "":
		return p.fetchFromAPI(ctx)
	}
	return nil, nil
}

// loadFromFile loads the proxy file for another round. Round 1 excludes
// blacklisted entries; later rounds clear the blacklist first, giving
// endpoints that failed transiently a renewed chance. A round that verifies
// zero endpoints marks the source exhausted for the rest of the run.
func (p *Pool) loadFromFile(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	exhausted := p.fileExhausted
	p.mu.Unlock()
	if exhausted {
		return nil, nil
	}

	// Read the file each round so the operator can update it mid-run.
	data, err := os.ReadFile(p.file)
	if err != nil {
		p.logger.Warn("proxy file unreadable", "path", p.file, "err", err)
		p.markFileExhausted()
		return nil, nil
	}

	endpoints := ParseList(string(data))
	if len(endpoints) == 0 {
		p.logger.Warn("proxy file empty", "path", p.file)
		p.markFileExhausted()
		return nil, nil
	}

	p.mu.Lock()
	p.fileRound++
	round := p.fileRound
	if round > 1 {
		p.logger.Info("proxy file reuse round",
			"round", round,
			"cleared", len(p.blacklist),
			"candidates", len(endpoints),
		)
		p.blacklist = make(map[string]struct{})
	}
	candidates := p.withoutBlacklisted(endpoints)
	p.mu.Unlock()

	if len(candidates) == 0 {
		p.markFileExhausted()
		return nil, nil
	}

	verified := p.verify(ctx, candidates)
	if len(verified) == 0 {
		p.logger.Warn("proxy file round verified zero endpoints, giving up")
		p.markFileExhausted()
		return nil, nil
	}

	p.logger.Info("proxy file round complete",
		"round", round,
		"verified", len(verified),
		"candidates", len(candidates),
	)
	return verified, nil
}

// fetchFromAPI pulls a batch from the proxy-list API, rate-limited so the
// source is never hammered, then verifies the result.
func (p *Pool) fetchFromAPI(ctx context.Context) ([]string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("proxy API request failed", "err", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("proxy API returned non-200", "status", resp.StatusCode)
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Warn("proxy API read failed", "err", err)
		return nil, nil
	}

	endpoints := ParseAPIResponse(string(body))
	p.mu.Lock()
	candidates := p.withoutBlacklisted(endpoints)
	p.mu.Unlock()
	p.logger.Info("proxy API batch",
		"fetched", len(endpoints),
		"candidates", len(candidates),
	)
	if len(candidates) == 0 {
		return nil, nil
	}

	verified := p.verify(ctx, candidates)
	p.logger.Info("proxy verification complete",
		"verified", len(verified),
		"candidates", len(candidates),
	)
	return verified, nil
}

func (p *Pool) markFileExhausted() {
	p.mu.Lock()
	p.fileExhausted = true
	p.mu.Unlock()
}

// withoutBlacklisted filters blacklisted endpoints. Must be called with mu
// held.
func (p *Pool) withoutBlacklisted(endpoints []string) []string {
	candidates := endpoints[:0:0]
	for _, e := range endpoints {
		if _, bad := p.blacklist[e]; !bad {
			candidates = append(candidates, e)
		}
	}
	return candidates
}

// tunnelProbe returns the default probe: a HEAD request to the target host
// through the candidate proxy. Any response below the server-error
// threshold proves the tunnel works, even a 403 or 404.
func tunnelProbe(target string, timeout time.Duration) ProbeFunc {
	return func(ctx context.Context, endpoint string) (time.Duration, error) {
		proxyURL, err := url.Parse(endpoint)
		if err != nil {
			return 0, err
		}

		client := &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
		defer client.CloseIdleConnections()

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
		if err != nil {
			return 0, err
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return 0, bookdl.Errorf(bookdl.EPROXY, "probe got HTTP %d", resp.StatusCode)
		}
		return time.Since(start), nil
	}
}
