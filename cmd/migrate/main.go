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

// This package is used to apply database migrations.
package main

import (
	"context"
	"fmt"

	"github.com/seismo-tools/stream2segment/internal/buildinfo"
	"github.com/seismo-tools/stream2segment/internal/setup"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
	"github.com/sethvargo/go-signalcontext"
)

type config struct {
	Database database.Config

	// Down reverts all the migrations.
	Down bool `env:"MIGRATE_DOWN"`
}

func main() {
	ctx, done := signalcontext.OnInterrupt()

	logger := logging.NewLoggerFromEnv().
		With("build_id", buildinfo.Stream2Segment.ID()).
		With("build_tag", buildinfo.Stream2Segment.Tag())
	ctx = logging.WithLogger(ctx, logger)

	err := realMain(ctx)
	done()

	if err != nil {
		logger.Fatal(err)
	}
}

func realMain(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	// The config does not provide the database to setup: migrations run on
	// their own connection.
	var cfg config
	env, err := setup.Setup(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}
	defer env.Close(ctx)

	logger.Infow("beginning migration", "down", cfg.Down)
	if err := database.Migrate(ctx, &cfg.Database, cfg.Down); err != nil {
		return fmt.Errorf("database.Migrate: %w", err)
	}
	logger.Info("migration completed")

	return nil
}
