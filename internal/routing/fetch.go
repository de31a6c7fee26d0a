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

package routing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seismo-tools/stream2segment/pkg/logging"
	"github.com/sethvargo/go-retry"
	"go.opencensus.io/plugin/ochttp"
	"go.opencensus.io/trace"
)

// Config configures the routing service client.
type Config struct {
	// URL is the full query URL of the routing service, e.g.
	// http://www.orfeus-eu.org/eidaws/routing/1/query?service=dataselect&format=post
	// Empty disables the validator.
	URL         string        `env:"ROUTING_URL" yaml:"url"`
	Timeout     time.Duration `env:"ROUTING_TIMEOUT, default=30s" yaml:"timeout"`
	MaxAttempts uint64        `env:"ROUTING_MAX_ATTEMPTS, default=3" yaml:"max_attempts"`
	Backoff     time.Duration `env:"ROUTING_BACKOFF, default=1s" yaml:"backoff"`
}

// Fetch downloads and parses the routing response. Any failure is logged
// and returns nil: the download then runs without a validator.
func Fetch(ctx context.Context, client *http.Client, config *Config, urlToDC map[string]int64) *Routes {
	logger := logging.FromContext(ctx).Named("routing").With("url", config.URL)

	if config.URL == "" {
		logger.Debug("routing service not configured")
		return nil
	}

	ctx, span := trace.StartSpan(ctx, "routing.Fetch")
	defer span.End()

	if client == nil {
		client = &http.Client{Transport: &ochttp.Transport{}}
	}

	attempts := config.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	base := config.Backoff
	if base <= 0 {
		base = time.Second
	}
	b := retry.WithMaxRetries(attempts-1, retry.NewConstant(base))

	var body []byte
	if err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		body, err = get(ctx, client, config)
		return err
	}); err != nil {
		span.SetStatus(trace.Status{Code: trace.StatusCodeUnavailable, Message: err.Error()})
		logger.Warnw("eida routing service error, working without validator", "error", err)
		return nil
	}

	routes, err := Parse(string(body), urlToDC)
	if err != nil {
		span.SetStatus(trace.Status{Code: trace.StatusCodeInternal, Message: err.Error()})
		logger.Warnw("eida routing service response discarded, working without validator", "error", err)
		return nil
	}
	logger.Infow("eida routing service response parsed", "datacenters", len(routes.rules))
	return routes
}

func get(ctx context.Context, client *http.Client, config *Config) ([]byte, error) {
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, retry.RetryableError(fmt.Errorf("HTTP Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("reading response: %w", err))
	}
	return body, nil
}
