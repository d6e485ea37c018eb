package bookdl

import "context"

// ProxyPool serves one "current" proxy endpoint at a time, replacing it on
// failure. Endpoints are normalized scheme://host:port strings.
type ProxyPool interface {
	// Acquire returns the current endpoint, advancing to the next verified
	// one (refilling from the configured source if needed) when none is
	// held. An empty string means no proxy is available and callers must
	// fall back to a direct connection; that is not an error.
	Acquire(ctx context.Context) (string, error)

	// Invalidate blacklists the current endpoint, if any, so the next
	// Acquire advances to a fresh one. A blacklisted endpoint is never
	// reissued within the same run, except when a file-backed source
	// starts a new verification round.
	Invalidate()
}

// NopProxyPool is a ProxyPool that always falls back to direct connection.
// Used when no proxy source is configured.
type NopProxyPool struct{}

// Acquire always reports that no proxy is available.
func (NopProxyPool) Acquire(ctx context.Context) (string, error) { return "", nil }

// Invalidate is a no-op.
func (NopProxyPool) Invalidate() {}
