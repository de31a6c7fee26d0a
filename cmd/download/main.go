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

// This package runs the download of the events and station inventory of the
// configured data-centers.
//
// The configuration is read from the environment, optionally preloaded from a
// .env file, and then from the YAML file named by S2S_CONFIG, whose keys win. The process exits 0
// when the download completed or was stopped by policy (e.g. no event found),
// 1 on errors and 2 when interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/seismo-tools/stream2segment/internal/buildinfo"
	"github.com/seismo-tools/stream2segment/internal/download"
	"github.com/seismo-tools/stream2segment/internal/setup"
	"github.com/seismo-tools/stream2segment/pkg/logging"
	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-signalcontext"
)

const (
	configEnvVar = "S2S_CONFIG"

	exitInterrupted = 2
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env file: %v\n", err)
		os.Exit(1)
	}

	ctx, done := signalcontext.OnInterrupt()

	logger := logging.NewLoggerFromEnv().
		With("build_id", buildinfo.Stream2Segment.ID()).
		With("build_tag", buildinfo.Stream2Segment.Tag())
	ctx = logging.WithLogger(ctx, logger)

	code, err := realMain(ctx)
	done()

	if err != nil {
		logger.Error(err)
	}
	os.Exit(code)
}

func realMain(ctx context.Context) (int, error) {
	logger := logging.FromContext(ctx)

	var doc []byte
	if path := os.Getenv(configEnvVar); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return 1, fmt.Errorf("failed to read %s: %w", configEnvVar, err)
		}
		doc = b
		logger.Infow("loading configuration file", "path", path)
	}

	config, err := download.LoadConfig(ctx, envconfig.OsLookuper(), doc)
	if err != nil {
		return 1, fmt.Errorf("download.LoadConfig: %w", err)
	}

	env, err := setup.SetupProcessed(ctx, config)
	if err != nil {
		return 1, fmt.Errorf("setup.SetupProcessed: %w", err)
	}
	defer env.Close(ctx)

	summary := download.New(ctx, env.Database(), config).Run(ctx)
	if ctx.Err() != nil {
		logger.Warnw("download interrupted", "download", summary.DownloadID)
		return exitInterrupted, nil
	}
	return summary.Outcome.ExitCode(), nil
}
