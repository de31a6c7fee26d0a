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

// This package prints the segment statistics of the download runs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/seismo-tools/stream2segment/internal/buildinfo"
	"github.com/seismo-tools/stream2segment/internal/downloadstats"
	"github.com/seismo-tools/stream2segment/internal/setup"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
	"github.com/sethvargo/go-signalcontext"
)

var _ setup.DatabaseConfigProvider = (*config)(nil)

type config struct {
	Database database.Config

	// DownloadIDs restricts the statistics to the given runs. Empty means
	// all runs.
	DownloadIDs     []int64 `env:"DINFO_DOWNLOAD_IDS"`
	MaxGapThreshold float64 `env:"DINFO_MAXGAP_THRESHOLD, default=0.5"`
}

func (c *config) DatabaseConfig() *database.Config {
	return &c.Database
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
	var cfg config
	env, err := setup.Setup(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}
	defer env.Close(ctx)

	report, err := downloadstats.NewReport(ctx, env.Database(), cfg.DownloadIDs, cfg.MaxGapThreshold)
	if err != nil {
		return fmt.Errorf("downloadstats.NewReport: %w", err)
	}
	return report.WriteText(os.Stdout)
}
