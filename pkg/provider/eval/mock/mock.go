// Package mock provides a scriptable in-memory eval.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/vivahq/viva/pkg/provider/eval"
)

// Provider is a mock eval.Provider. Configure EvaluateFunc to control
// behaviour; by default every call returns a fixed passing verdict.
//
// All methods are safe for concurrent use.
type Provider struct {
	// EvaluateFunc, when non-nil, is invoked for each Evaluate call.
	EvaluateFunc func(ctx context.Context, req eval.Request) (*eval.Result, error)

	mu       sync.Mutex
	requests []eval.Request
}

// Evaluate implements eval.Provider.
func (p *Provider) Evaluate(ctx context.Context, req eval.Request) (*eval.Result, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.EvaluateFunc != nil {
		return p.EvaluateFunc(ctx, req)
	}
	return &eval.Result{
		Score:     7.5,
		Summary:   "solid answers across the board",
		Strengths: []string{"clear communication"},
	}, nil
}

// Requests returns all requests passed to Evaluate, in call order.
func (p *Provider) Requests() []eval.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]eval.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
