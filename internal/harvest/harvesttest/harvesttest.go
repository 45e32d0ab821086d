// Package harvesttest provides in-memory fakes for harvest interfaces.
package harvesttest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
)

// Fetcher serves canned bodies keyed by "METHOD URL". Unknown requests fail
// with harvest.ErrNoResult, as an exhausted fetcher would.
type Fetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fails map[string]bool
	calls []harvest.Request
	hook  func(harvest.Request)
	inUse int
	peak  int
	delay time.Duration
}

// NewFetcher returns an empty Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{pages: make(map[string]string), fails: make(map[string]bool)}
}

// Get registers a GET response.
func (f *Fetcher) Get(url, body string) *Fetcher {
	return f.Handle(http.MethodGet, url, body)
}

// Post registers a POST response. Form values are not matched.
func (f *Fetcher) Post(url, body string) *Fetcher {
	return f.Handle(http.MethodPost, url, body)
}

// Handle registers a response for method and url.
func (f *Fetcher) Handle(method, url, body string) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[method+" "+url] = body
	return f
}

// Fail makes every request to url give up.
func (f *Fetcher) Fail(url string) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[url] = true
	return f
}

// OnFetch runs hook at the start of every fetch.
func (f *Fetcher) OnFetch(hook func(harvest.Request)) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
	return f
}

// Delay holds every fetch for d so concurrency can be observed.
func (f *Fetcher) Delay(d time.Duration) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// Fetch implements harvest.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, req harvest.Request) (*harvest.RawDocument, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.inUse++
	f.peak = max(f.peak, f.inUse)
	hook, delay := f.hook, f.delay
	body, ok := f.pages[req.Method+" "+req.URL]
	failed := f.fails[req.URL]
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inUse--
		f.mu.Unlock()
	}()

	if hook != nil {
		hook(req)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed || !ok {
		return nil, fmt.Errorf("%w: %s %s", harvest.ErrNoResult, req.Method, req.URL)
	}
	return &harvest.RawDocument{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Body:       []byte(body),
		FetchedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

// Calls returns every request seen, in arrival order.
func (f *Fetcher) Calls() []harvest.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]harvest.Request(nil), f.calls...)
}

// URLs returns the sorted URLs of every request seen.
func (f *Fetcher) URLs() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.URL
	}
	sort.Strings(out)
	return out
}

// Peak reports the highest number of concurrent fetches observed.
func (f *Fetcher) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

// Clock is a fixed harvest.Clock.
type Clock struct {
	T time.Time
}

// Now returns the fixed time.
func (c Clock) Now() time.Time { return c.T }

// Year returns a clock fixed in the given year.
func Year(y int) Clock {
	return Clock{T: time.Date(y, time.June, 1, 12, 0, 0, 0, time.UTC)}
}
