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

package dstats

import (
	"github.com/seismo-tools/stream2segment/internal/setup"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/observability"
)

// Compile-time check to assert this config matches requirements.
var (
	_ setup.DatabaseConfigProvider              = (*Config)(nil)
	_ setup.ObservabilityExporterConfigProvider = (*Config)(nil)
)

// Config is the configuration of the stats server.
type Config struct {
	Database              database.Config
	ObservabilityExporter observability.Config

	Port string `env:"PORT, default=8080"`

	// MaxGapThreshold is the max gap, in number of samples, above which a
	// saved segment is reported with gaps or overlaps.
	MaxGapThreshold float64 `env:"DSTATS_MAXGAP_THRESHOLD, default=0.5"`
}

// DatabaseConfig returns the database configuration.
func (c *Config) DatabaseConfig() *database.Config {
	return &c.Database
}

// ObservabilityExporterConfig returns the exporter configuration.
func (c *Config) ObservabilityExporterConfig() *observability.Config {
	return &c.ObservabilityExporter
}
