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

package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/gorilla/mux"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"

	"github.com/seismo-tools/stream2segment/pkg/logging"
)

var _ Exporter = (*prometheusExporter)(nil)

type prometheusExporter struct {
	exporter *prometheus.Exporter
	config   *PrometheusConfig
	srv      *http.Server
}

// NewPrometheus creates a new exporter that serves the collected views on
// /metrics for a prometheus scraper.
func NewPrometheus(ctx context.Context, config *PrometheusConfig) (Exporter, error) {
	if config == nil {
		return nil, fmt.Errorf("missing prometheus configuration")
	}

	exporter, err := prometheus.NewExporter(prometheus.Options{
		Namespace: config.Namespace,
		OnError: func(err error) {
			logging.FromContext(ctx).Named("prometheus").Errorw("failed to export metric", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	return &prometheusExporter{exporter: exporter, config: config}, nil
}

func (e *prometheusExporter) StartExporter(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("prometheus")

	trace.ApplyConfig(trace.Config{
		DefaultSampler: trace.ProbabilitySampler(e.config.SampleRate),
	})
	view.RegisterExporter(e.exporter)

	if err := registerViews(); err != nil {
		return fmt.Errorf("failed to start prometheus exporter: %w", err)
	}

	addr := ":" + e.config.Port
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	r := mux.NewRouter()
	r.Handle("/metrics", e.exporter)
	e.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Debugw("metrics endpoint listening", "addr", addr)
		if err := e.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("error while serving metrics endpoint", "error", err)
		}
	}()
	return nil
}

func (e *prometheusExporter) Close() error {
	view.UnregisterExporter(e.exporter)

	if e.srv == nil {
		return nil
	}

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := e.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shutdown metrics endpoint: %w", err)
	}
	return nil
}
