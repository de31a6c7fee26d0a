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

// Package observability sets up and configures observability tools.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"

	"contrib.go.opencensus.io/integrations/ocsql"
	"go.opencensus.io/plugin/ochttp"
	"go.opencensus.io/stats/view"
)

// OCSQLDriverPrefix prefixes the driver names registered by ocsql wrapping.
const OCSQLDriverPrefix = "ocsql"

func defaultViews() []*view.View {
	var ret []*view.View
	ret = append(ret, ochttp.DefaultClientViews...)
	ret = append(ret, ochttp.DefaultServerViews...)

	for _, d := range sql.Drivers() {
		if strings.HasPrefix(d, OCSQLDriverPrefix) {
			ret = append(ret, ocsql.DefaultViews...)
			break
		}
	}
	return ret
}

var collectedViews = struct {
	views []*view.View
	sync.Mutex
}{}

// CollectViews collects all the OpenCensus views so they can be registered
// once the exporter starts.
func CollectViews(views ...*view.View) {
	collectedViews.Lock()
	defer collectedViews.Unlock()
	collectedViews.views = append(collectedViews.views, views...)
}

// AllViews returns the collected views plus the default http and sql views.
func AllViews() []*view.View {
	collectedViews.Lock()
	defer collectedViews.Unlock()
	ret := make([]*view.View, 0, len(collectedViews.views))
	ret = append(ret, collectedViews.views...)
	return append(ret, defaultViews()...)
}

// Exporter defines the minimum shared functionality for an observability
// exporter used by this application.
type Exporter interface {
	io.Closer
	StartExporter(ctx context.Context) error
}

// noopExporter is used when no exporter is configured: views are recorded
// but never registered.
type noopExporter struct{}

func (noopExporter) StartExporter(context.Context) error { return nil }
func (noopExporter) Close() error                        { return nil }

// NewFromEnv returns the observability exporter given the provided
// configuration, or an error if it failed to be created.
func NewFromEnv(config *Config) (Exporter, error) {
	// Create a separate ctx.
	// The main ctx will be canceled when the process is shutting down. Sharing
	// the main ctx prevent the last batch of the metrics to be uploaded.
	ctx := context.Background()
	switch config.ExporterType {
	case ExporterNoop:
		return noopExporter{}, nil
	case ExporterOCAgent:
		return NewAgent(ctx, config.Agent)
	case ExporterPrometheus:
		return NewPrometheus(ctx, config.Prometheus)
	default:
		return nil, fmt.Errorf("unknown observability exporter type %v", config.ExporterType)
	}
}

func registerViews() error {
	for _, v := range AllViews() {
		if err := view.Register(v); err != nil {
			return fmt.Errorf("view registration failed: %w", err)
		}
	}
	return nil
}
