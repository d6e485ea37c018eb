package mock

import (
	"context"

	"github.com/mjarosz/bookdl"
)

var _ bookdl.ProxyPool = (*ProxyPool)(nil)

// ProxyPool is a mock implementation of bookdl.ProxyPool.
type ProxyPool struct {
	AcquireFn    func(ctx context.Context) (string, error)
	InvalidateFn func()
}

func (p *ProxyPool) Acquire(ctx context.Context) (string, error) {
	return p.AcquireFn(ctx)
}

func (p *ProxyPool) Invalidate() {
	if p.InvalidateFn != nil {
		p.InvalidateFn()
	}
}
