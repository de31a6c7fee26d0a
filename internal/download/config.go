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

package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/seismo-tools/stream2segment/internal/fetch"
	"github.com/seismo-tools/stream2segment/internal/routing"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/observability"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a download run. It is read from the
// environment and optionally from a YAML file, and stored with the run.
type Config struct {
	Database              database.Config      `yaml:"-"`
	ObservabilityExporter observability.Config `yaml:"-"`

	// DataCenters are the FDSN station (or dataselect) web service URLs of
	// the data-centers to query. A bare host is expanded to its fdsnws
	// station URL.
	DataCenters []string `env:"DOWNLOAD_DATACENTERS" yaml:"datacenters"`

	// EventsURL is the FDSN event web service and EventParams extra query
	// parameters (e.g. minmagnitude) sent to it.
	EventsURL   string            `env:"DOWNLOAD_EVENTS_URL, default=https://earthquake.usgs.gov/fdsnws/event/1/query" yaml:"eventws"`
	EventParams map[string]string `env:"DOWNLOAD_EVENT_PARAMS" yaml:"eventws_params,omitempty"`

	Networks  []string `env:"DOWNLOAD_NETWORKS" yaml:"networks,omitempty"`
	Stations  []string `env:"DOWNLOAD_STATIONS" yaml:"stations,omitempty"`
	Locations []string `env:"DOWNLOAD_LOCATIONS" yaml:"locations,omitempty"`
	Channels  []string `env:"DOWNLOAD_CHANNELS" yaml:"channels,omitempty"`

	// Start and End bound the events and the station epochs. Zero values
	// are unbounded.
	Start time.Time `env:"DOWNLOAD_START" yaml:"start"`
	End   time.Time `env:"DOWNLOAD_END" yaml:"end"`

	// MinSampleRate discards the channels with a lower sample rate. Values
	// <= 0 disable the filter.
	MinSampleRate float64 `env:"DOWNLOAD_MIN_SAMPLE_RATE" yaml:"min_sample_rate"`

	// UpdateMetadata updates the stored events, stations and channels
	// instead of only inserting the new ones.
	UpdateMetadata bool `env:"DOWNLOAD_UPDATE_METADATA" yaml:"update_metadata"`

	// ChunkSize is the number of rows written per database transaction.
	ChunkSize int `env:"DOWNLOAD_DB_CHUNK_SIZE, default=100" yaml:"db_chunk_size"`

	// LockTTL bounds the time a run holds the download lock.
	LockTTL time.Duration `env:"DOWNLOAD_LOCK_TTL, default=1h" yaml:"-"`

	Fetch   fetch.Config   `yaml:"fetch"`
	Routing routing.Config `yaml:"routing"`
}

// DatabaseConfig returns the database configuration.
func (c *Config) DatabaseConfig() *database.Config {
	return &c.Database
}

// ObservabilityExporterConfig returns the exporter configuration.
func (c *Config) ObservabilityExporterConfig() *observability.Config {
	return &c.ObservabilityExporter
}

// Validate checks the configuration and normalizes the N/S/L/C parameters.
// All the errors found are returned.
func (c *Config) Validate() error {
	var merr *multierror.Error

	if len(c.DataCenters) == 0 {
		merr = multierror.Append(merr, errors.New("no data-center configured"))
	}
	for _, dc := range c.DataCenters {
		if _, err := NewDataCenterURLs(dc); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if c.EventsURL == "" {
		merr = multierror.Append(merr, errors.New("missing events web service URL"))
	} else if _, err := url.Parse(c.EventsURL); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("invalid events web service URL: %w", err))
	}
	if !c.Start.IsZero() && !c.End.IsZero() && !c.Start.Before(c.End) {
		merr = multierror.Append(merr, fmt.Errorf("start (%s) must be before end (%s)",
			c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339)))
	}
	if c.ChunkSize <= 0 {
		merr = multierror.Append(merr, fmt.Errorf("db chunk size must be positive, got %d", c.ChunkSize))
	}

	for _, p := range []struct {
		name   string
		values *[]string
	}{
		{"networks", &c.Networks},
		{"stations", &c.Stations},
		{"locations", &c.Locations},
		{"channels", &c.Channels},
	} {
		v, err := ParseNSLC(*p.values)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("invalid %s: %w", p.name, err))
			continue
		}
		*p.values = v
	}

	return merr.ErrorOrNil()
}

// YAML returns the configuration as stored in the download table.
func (c *Config) YAML() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}
	return string(b), nil
}

// LoadConfig reads the configuration from l, defaults included, and overlays
// yamlDoc when not empty. Keys set in the document win over the environment,
// zero values included.
func LoadConfig(ctx context.Context, l envconfig.Lookuper, yamlDoc []byte) (*Config, error) {
	var c Config
	if err := envconfig.ProcessWith(ctx, &c, l); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}
	if len(yamlDoc) > 0 {
		if err := c.ParseYAML(yamlDoc); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// ParseYAML overlays the YAML document on c.
func (c *Config) ParseYAML(b []byte) error {
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// DataCenterURLs are the web service URLs of a data-center.
type DataCenterURLs struct {
	Station    string
	Dataselect string
}

// NewDataCenterURLs derives the station and dataselect URLs of a
// data-center from either of them, or from its host.
func NewDataCenterURLs(raw string) (*DataCenterURLs, error) {
	s := strings.TrimRight(strings.TrimSpace(raw), "/")
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid data-center URL %q", raw)
	}

	switch {
	case strings.Contains(u.Path, "/station/"):
		return &DataCenterURLs{
			Station:    s,
			Dataselect: strings.Replace(s, "/station/", "/dataselect/", 1),
		}, nil
	case strings.Contains(u.Path, "/dataselect/"):
		return &DataCenterURLs{
			Station:    strings.Replace(s, "/dataselect/", "/station/", 1),
			Dataselect: s,
		}, nil
	case u.Path == "":
		return &DataCenterURLs{
			Station:    s + "/fdsnws/station/1/query",
			Dataselect: s + "/fdsnws/dataselect/1/query",
		}, nil
	}
	return nil, fmt.Errorf("invalid data-center URL %q: not a FDSN station or dataselect service", raw)
}
