// Package collyfetcher implements harvest.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
	"github.com/JakeFAU/heavy-aggregator/internal/metrics"
)

// Config controls transport, retry and pacing behavior.
type Config struct {
	UserAgent string
	// Proxy is an outbound proxy URL. Empty defers to the environment and
	// "none" forces direct connections.
	Proxy string
	// Headers are sent with every request.
	Headers       http.Header
	Timeout       time.Duration
	Throttle      time.Duration
	RetryCount    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	RetryStatuses []int
}

// DefaultHeaders mirrors what a desktop browser sends for a page load.
func DefaultHeaders() http.Header {
	return http.Header{
		"Accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
		"Accept-Language":           {"en-US,en;q=0.9"},
		"Connection":                {"keep-alive"},
		"Upgrade-Insecure-Requests": {"1"},
	}
}

// Waiter paces requests per host.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

type pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// Fetcher implements harvest.Fetcher with one cloned collector per attempt.
// Clones share the transport and cookie jar, so session state set by one
// request is visible to the next.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	retry         *RetryPolicy
	pauser        pauser
	limiter       Waiter
	logger        *zap.Logger
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithLimiter adds per-host pacing on top of the fixed throttle.
func WithLimiter(w Waiter) Option {
	return func(f *Fetcher) {
		f.limiter = w
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) (*Fetcher, error) {
	transport, err := newHTTPTransport(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit(), colly.IgnoreRobotsTxt())
	c.WithTransport(transport)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)
	if cfg.Headers == nil {
		cfg.Headers = DefaultHeaders()
	}

	f := &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		retry:         NewRetryPolicy(cfg.RetryCount, cfg.BackoffBase, cfg.BackoffMax, cfg.RetryStatuses),
		pauser:        &timerPauseController{},
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.Named("fetcher")
	return f, nil
}

// Fetch performs req, retrying transient failures. It sleeps the configured
// throttle before every attempt. Once retries are exhausted the returned
// error wraps harvest.ErrNoResult; cancellation returns the context error.
func (f *Fetcher) Fetch(ctx context.Context, req harvest.Request) (*harvest.RawDocument, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	var lastErr error
	attempt := 0
	for ; ; attempt++ {
		f.pauser.Pause(ctx, f.cfg.Throttle)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch canceled: %w", err)
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, req.URL); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		doc, status, err := f.do(ctx, req)
		metrics.ObserveFetchAttempt(req.URL, status, time.Since(start))
		if err == nil {
			metrics.ObserveFetchResult(req.URL, "ok")
			return doc, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch canceled: %w", ctxErr)
		}
		lastErr = err
		if !f.retry.ShouldRetry(status, attempt) {
			break
		}
		delay := f.retry.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", req.URL),
			zap.Int("status", status),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		metrics.ObserveRetry(req.URL)
		f.pauser.Pause(ctx, delay)
	}

	metrics.ObserveFetchResult(req.URL, "failed")
	f.logger.Warn("fetch gave up",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Int("attempts", attempt+1),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("%w: %s %s: %w", harvest.ErrNoResult, req.Method, req.URL, lastErr)
}

// errAttemptAbandoned marks an attempt whose request goroutine was left
// running after ctx ended.
var errAttemptAbandoned = errors.New("colly fetch canceled")

type attemptResult struct {
	doc    *harvest.RawDocument
	status int
	err    error
}

func (f *Fetcher) do(ctx context.Context, req harvest.Request) (*harvest.RawDocument, int, error) {
	var result attemptResult
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, req, &result)

	if err := f.runCollector(ctx, collector, req); err != nil {
		// An abandoned request may still be writing result from its hooks.
		if errors.Is(err, errAttemptAbandoned) {
			return nil, 0, err
		}
		if result.err != nil {
			return nil, result.status, result.err
		}
		return nil, result.status, err
	}
	if result.doc == nil {
		return nil, result.status, errors.New("empty response")
	}
	return result.doc, result.doc.StatusCode, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, req harvest.Request, result *attemptResult) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(req, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.doc = &harvest.RawDocument{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			FetchedAt:  time.Now().UTC(),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, req harvest.Request) error {
	var (
		body io.Reader
		hdr  http.Header
	)
	if len(req.Form) > 0 {
		form := url.Values{}
		for k, v := range req.Form {
			form.Set(k, v)
		}
		body = strings.NewReader(form.Encode())
		hdr = http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
	}

	done := make(chan error, 1)
	go func() {
		done <- collector.Request(req.Method, req.URL, body, nil, hdr)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errAttemptAbandoned, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly request failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(req harvest.Request, r *colly.Request) {
	for key, values := range f.cfg.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
	if req.Referer != "" {
		r.Headers.Set("Referer", req.Referer)
	}
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func newHTTPTransport(proxy string) (*http.Transport, error) {
	proxyFunc := http.ProxyFromEnvironment
	switch p := strings.TrimSpace(proxy); {
	case strings.EqualFold(p, "none"):
		proxyFunc = nil
	case p != "":
		u, err := url.Parse(p)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", proxy)
		}
		proxyFunc = http.ProxyURL(u)
	}
	return &http.Transport{
		Proxy: proxyFunc,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}, nil
}
