package harvest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/heavy-aggregator/internal/metrics"
)

// Gate is the admission gate bounding in-flight fetches.
type Gate struct {
	sem  *semaphore.Weighted
	size int
}

// NewGate returns a gate admitting size concurrent holders (minimum 1).
func NewGate(size int) *Gate {
	if size <= 0 {
		size = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Acquire blocks until a permit is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire admission permit: %w", err)
	}
	return nil
}

// Release returns a permit.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Size reports the permit count.
func (g *Gate) Size() int {
	return g.size
}

// Result pairs a fetched document with the error that replaced it.
type Result struct {
	Doc *RawDocument
	Err error
}

// Client couples a Fetcher with the gate shared by every fetch of a phase.
type Client struct {
	fetcher Fetcher
	gate    *Gate
	source  string
	logger  *zap.Logger
}

// NewClient wires a fetcher to a gate.
func NewClient(fetcher Fetcher, gate *Gate, source string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = NewGate(1)
	}
	return &Client{fetcher: fetcher, gate: gate, source: source, logger: logger}
}

// Logger exposes the client's logger to adapters.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// Do fetches one request while holding an admission permit.
func (c *Client) Do(ctx context.Context, req Request) (*RawDocument, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release()
	metrics.ObserveInflight(c.source, 1)
	defer metrics.ObserveInflight(c.source, -1)

	doc, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", req.Method, req.URL, err)
	}
	return doc, nil
}

// DoAll fetches every request concurrently, bounded by the gate, and waits
// for all of them. Results are positional: results[i] belongs to reqs[i]
// regardless of completion order.
func (c *Client) DoAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Go(func() {
			doc, err := c.Do(ctx, req)
			results[i] = Result{Doc: doc, Err: err}
		})
	}
	wg.Wait()
	return results
}
