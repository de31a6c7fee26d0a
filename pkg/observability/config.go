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

import "time"

// ExporterType represents a type of observability exporter.
type ExporterType string

const (
	ExporterPrometheus ExporterType = "PROMETHEUS"
	ExporterOCAgent    ExporterType = "OCAGENT"
	ExporterNoop       ExporterType = "NOOP"
)

// Config holds all of the configuration options for the observability
// exporter.
type Config struct {
	ExporterType ExporterType `env:"OBSERVABILITY_EXPORTER, default=NOOP"`

	Agent      *AgentConfig
	Prometheus *PrometheusConfig
}

// AgentConfig holds the configuration options of the OpenCensus agent
// exporter.
type AgentConfig struct {
	SampleRate float64 `env:"TRACE_PROBABILITY, default=0.40"`

	ServiceName     string        `env:"OCAGENT_SERVICE_NAME, default=stream2segment"`
	Endpoint        string        `env:"OCAGENT_TRACE_EXPORTER_ENDPOINT"`
	Insecure        bool          `env:"OCAGENT_INSECURE"`
	ReconnectPeriod time.Duration `env:"OCAGENT_RECONNECT_PERIOD, default=30s"`
}

// PrometheusConfig holds the configuration options for the prometheus
// exporter. Metrics are served on Port under /metrics.
type PrometheusConfig struct {
	SampleRate float64 `env:"TRACE_PROBABILITY, default=0.40"`

	Namespace string `env:"PROMETHEUS_NAMESPACE, default=stream2segment"`
	Port      string `env:"METRICS_PORT, default=9090"`
}
