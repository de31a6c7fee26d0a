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
	"fmt"

	"contrib.go.opencensus.io/exporter/ocagent"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"
)

var _ Exporter = (*agentExporter)(nil)

// agentExporter ships traces and views to an OpenCensus agent.
type agentExporter struct {
	agent      *ocagent.Exporter
	sampleRate float64
}

// NewAgent connects to the OpenCensus agent described by config. The
// connection is retried in the background every ReconnectPeriod.
func NewAgent(_ context.Context, config *AgentConfig) (Exporter, error) {
	if config == nil {
		return nil, fmt.Errorf("missing ocagent configuration")
	}

	opts := []ocagent.ExporterOption{
		ocagent.WithServiceName(config.ServiceName),
	}
	if config.Endpoint != "" {
		opts = append(opts, ocagent.WithAddress(config.Endpoint))
	}
	if config.Insecure {
		opts = append(opts, ocagent.WithInsecure())
	}
	if config.ReconnectPeriod > 0 {
		opts = append(opts, ocagent.WithReconnectionPeriod(config.ReconnectPeriod))
	}

	agent, err := ocagent.NewExporter(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating ocagent exporter for %q: %w", config.Endpoint, err)
	}
	return &agentExporter{agent: agent, sampleRate: config.SampleRate}, nil
}

// StartExporter registers the agent for traces and views.
func (e *agentExporter) StartExporter(_ context.Context) error {
	trace.ApplyConfig(trace.Config{DefaultSampler: trace.ProbabilitySampler(e.sampleRate)})
	trace.RegisterExporter(e.agent)
	view.RegisterExporter(e.agent)

	if err := registerViews(); err != nil {
		return fmt.Errorf("starting ocagent exporter: %w", err)
	}
	return nil
}

// Close flushes the pending data and detaches the agent.
func (e *agentExporter) Close() error {
	trace.UnregisterExporter(e.agent)
	view.UnregisterExporter(e.agent)
	if err := e.agent.Stop(); err != nil {
		return fmt.Errorf("stopping ocagent exporter: %w", err)
	}
	return nil
}
