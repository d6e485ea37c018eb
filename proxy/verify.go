package proxy

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// verify probes candidates concurrently and returns the usable ones sorted
// ascending by measured latency, so the queue is consumed fastest-first.
func (p *Pool) verify(ctx context.Context, candidates []string) []string {
	type probeResult struct {
		endpoint string
		latency  time.Duration
	}

	var mu sync.Mutex
	var results []probeResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.verifyConcurrency)

	for _, candidate := range candidates {
		candidate := candidate
		g.Go(func() error {
			latency, err := p.probe(gctx, candidate)
			if err != nil {
				return nil // unusable candidates are simply dropped
			}
			mu.Lock()
			results = append(results, probeResult{endpoint: candidate, latency: latency})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].latency < results[j].latency
	})

	if len(results) > 0 {
		p.logger.Info("proxy latency spread",
			"fastest", results[0].endpoint,
			"fastest_ms", results[0].latency.Milliseconds(),
			"slowest", results[len(results)-1].endpoint,
			"slowest_ms", results[len(results)-1].latency.Milliseconds(),
		)
	}

	verified := make([]string, len(results))
	for i, r := range results {
		verified[i] = r.endpoint
	}
	return verified
}
