// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fetch downloads a batch of URLs concurrently and streams the
// results back in completion order.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/seismo-tools/stream2segment/pkg/logging"
	"github.com/seismo-tools/stream2segment/pkg/observability"
	"github.com/sony/gobreaker/v2"
	"go.opencensus.io/plugin/ochttp"
	"go.opencensus.io/stats"
	"go.opencensus.io/trace"
	"golang.org/x/sync/errgroup"
)

// Request is a single request of a batch. Key is returned unchanged with the
// result. Requests with a Body default to POST.
type Request struct {
	Key    any
	URL    string
	Method string
	Body   []byte
	Header http.Header
}

// Result is the outcome of a Request. Exactly one of Body and Err is set.
type Result struct {
	Key  any
	URL  string
	Body []byte
	Err  error
}

// HTTPError is the error of a request answered with a non 2xx status.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP Error %d: %s (url: %s)", e.StatusCode, e.Status, e.URL)
}

// Fetcher executes batches of requests.
type Fetcher struct {
	config *Config
	client *http.Client
	probe  MemoryProbe

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client. The default client traces requests
// with ochttp.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithMemoryProbe sets the probe of the memory guard.
func WithMemoryProbe(p MemoryProbe) Option {
	return func(f *Fetcher) {
		f.probe = p
	}
}

// New creates a Fetcher. When no memory probe is given and the memory guard
// is enabled, the process memory is read from procfs; if that is not
// available the guard is disabled.
func New(ctx context.Context, config *Config, opts ...Option) *Fetcher {
	if config == nil {
		config = DefaultConfig()
	}
	f := &Fetcher{
		config:   config,
		client:   &http.Client{Transport: &ochttp.Transport{}},
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.probe == nil && config.memCheckEnabled() {
		probe, err := NewProcMemoryProbe()
		if err != nil {
			logging.FromContext(ctx).Named("fetch").Warnw("memory guard disabled", "error", err)
		} else {
			f.probe = probe
		}
	}
	return f
}

// Read dispatches the requests on at most Workers goroutines and returns the
// stream of their results. The stream must be closed.
func (f *Fetcher) Read(ctx context.Context, reqs []Request) *Stream {
	ctx, span := trace.StartSpan(ctx, "fetch.Read")
	span.AddAttributes(trace.Int64Attribute("requests", int64(len(reqs))))

	workCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		parent:  ctx,
		cancel:  cancel,
		results: make(chan Result),
		span:    span,
		logger:  logging.FromContext(ctx).Named("fetch"),
	}
	if f.probe != nil && f.config.memCheckEnabled() {
		s.probe = f.probe
		s.checkEvery = f.config.MemCheckEvery
		s.threshold = f.config.MaxMemPercent
	}

	go func() {
		defer close(s.results)

		var g errgroup.Group
		g.SetLimit(f.config.workers())
		for _, r := range reqs {
			// Stop dispatching once the stream is closed.
			if workCtx.Err() != nil {
				break
			}
			r := r
			g.Go(func() error {
				if workCtx.Err() != nil {
					return nil
				}
				res := f.do(workCtx, r)
				select {
				case s.results <- res:
				case <-workCtx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return s
}

func (f *Fetcher) do(ctx context.Context, r Request) Result {
	start := time.Now()
	res := Result{Key: r.Key, URL: r.URL}

	call := func() ([]byte, error) {
		return f.fetch(ctx, r)
	}
	if f.config.BreakerEnabled {
		res.Body, res.Err = f.breaker(r.URL).Execute(call)
	} else {
		res.Body, res.Err = call()
	}

	if res.Err != nil {
		res.Body = nil
		stats.Record(ctx, mRequestFailures.M(1))
		observability.RecordLatency(ctx, start, mRequestLatencyMs, observability.ResultNotOK)
	} else {
		stats.Record(ctx, mResponseBytes.M(int64(len(res.Body))))
		observability.RecordLatency(ctx, start, mRequestLatencyMs, observability.ResultOK)
	}
	return res
}

func (f *Fetcher) fetch(ctx context.Context, r Request) ([]byte, error) {
	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
		if r.Body != nil {
			method = http.MethodPost
		}
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range r.Header {
		req.Header[k] = v
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode), URL: r.URL}
	}

	var buf bytes.Buffer
	block := make([]byte, f.config.blockSize())
	for {
		n, err := resp.Body.Read(block)
		buf.Write(block[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading response (%s read): %w", humanize.IBytes(uint64(buf.Len())), err)
		}
	}
	return buf.Bytes(), nil
}

// breaker returns the circuit breaker of the URL host.
func (f *Fetcher) breaker(rawURL string) *gobreaker.CircuitBreaker[[]byte] {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[host]; ok {
		return cb
	}
	failures := f.config.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    host,
		Timeout: f.config.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// Client errors say nothing about the health of the data-center.
		IsSuccessful: func(err error) bool {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				return httpErr.StatusCode < 500
			}
			return err == nil
		},
	})
	f.breakers[host] = cb
	return cb
}
