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

package setup_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seismo-tools/stream2segment/internal/setup"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/observability"
	"github.com/sethvargo/go-envconfig"
)

var (
	_ setup.DatabaseConfigProvider              = (*testConfig)(nil)
	_ setup.ObservabilityExporterConfigProvider = (*testConfig)(nil)
	_ setup.Validator                           = (*testConfig)(nil)
)

type testConfig struct {
	Database      database.Config
	Observability observability.Config

	Name    string `env:"TEST_NAME, default=stream2segment"`
	invalid error
}

func (c *testConfig) DatabaseConfig() *database.Config {
	return &c.Database
}

func (c *testConfig) ObservabilityExporterConfig() *observability.Config {
	return &c.Observability
}

func (c *testConfig) Validate() error {
	return c.invalid
}

func sqliteLookuper(t *testing.T, extra map[string]string) envconfig.Lookuper {
	t.Helper()

	path := filepath.Join(t.TempDir(), "setup.sqlite")
	ctx := context.Background()
	if err := database.Migrate(ctx, &database.Config{Driver: database.DriverSQLite, Path: path}, false); err != nil {
		t.Fatal(err)
	}

	m := map[string]string{
		"DB_DRIVER": database.DriverSQLite,
		"DB_PATH":   path,
	}
	for k, v := range extra {
		m[k] = v
	}
	return envconfig.MapLookuper(m)
}

func TestSetupWith(t *testing.T) {
	t.Parallel()

	t.Run("default", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		config := &testConfig{}
		env, err := setup.SetupWith(ctx, config, sqliteLookuper(t, nil))
		if err != nil {
			t.Fatal(err)
		}
		defer env.Close(ctx)

		if got, want := config.Name, "stream2segment"; got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
		if env.Database() == nil {
			t.Errorf("expected db to exist")
		}
		if env.ObservabilityExporter() == nil {
			t.Errorf("expected exporter to exist")
		}
		if err := env.Database().Ping(ctx); err != nil {
			t.Errorf("expected database to be reachable: %v", err)
		}
	})

	t.Run("preset_values_kept", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		config := &testConfig{Name: "from-file"}
		env, err := setup.SetupWith(ctx, config, sqliteLookuper(t, nil))
		if err != nil {
			t.Fatal(err)
		}
		defer env.Close(ctx)

		if got, want := config.Name, "from-file"; got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		wantErr := errors.New("bad config")
		config := &testConfig{invalid: wantErr}
		if _, err := setup.SetupWith(ctx, config, sqliteLookuper(t, nil)); !errors.Is(err, wantErr) {
			t.Errorf("expected %v, got %v", wantErr, err)
		}
	})

	t.Run("unknown_exporter", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		config := &testConfig{}
		lookuper := sqliteLookuper(t, map[string]string{"OBSERVABILITY_EXPORTER": "NOPE"})
		_, err := setup.SetupWith(ctx, config, lookuper)
		if err == nil || !strings.Contains(err.Error(), "unknown observability exporter type") {
			t.Errorf("expected unknown exporter error, got %v", err)
		}
	})
}
