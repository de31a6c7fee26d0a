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

// Package download fetches the events, stations and channels of a download
// run and stores them, resolving the stations claimed by more than one
// data-center.
package download

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/seismo-tools/stream2segment/internal/buildinfo"
	"github.com/seismo-tools/stream2segment/internal/dbsync"
	"github.com/seismo-tools/stream2segment/internal/fetch"
	"github.com/seismo-tools/stream2segment/internal/model"
	"github.com/seismo-tools/stream2segment/internal/routing"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
	"github.com/seismo-tools/stream2segment/pkg/observability"
	"go.opencensus.io/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const lockID = "download"

// Summary describes a finished download run.
type Summary struct {
	DownloadID int64
	RunUUID    string
	Events     int
	Channels   []model.ChannelRef
	Outcome    Outcome
}

// Downloader runs downloads against a database.
type Downloader struct {
	db      *database.DB
	config  *Config
	fetcher *fetch.Fetcher
}

// New creates a Downloader. Options are passed to the fetcher.
func New(ctx context.Context, db *database.DB, config *Config, opts ...fetch.Option) *Downloader {
	return &Downloader{
		db:      db,
		config:  config,
		fetcher: fetch.New(ctx, &config.Fetch, opts...),
	}
}

// Run executes a download: it records the run, then fetches and stores the
// data-centers, the events and the channels. The outcome of the first step
// that stops is returned in the summary.
func (d *Downloader) Run(ctx context.Context) *Summary {
	ctx, span := trace.StartSpan(ctx, "download.Run")
	defer span.End()

	start := time.Now()
	summary := &Summary{RunUUID: uuid.New().String()}

	var warnings, errs int64
	logger := logging.FromContext(ctx).Desugar().WithOptions(zap.Hooks(func(e zapcore.Entry) error {
		switch {
		case e.Level >= zapcore.ErrorLevel:
			atomic.AddInt64(&errs, 1)
		case e.Level == zapcore.WarnLevel:
			atomic.AddInt64(&warnings, 1)
		}
		return nil
	})).Sugar().With("run_uuid", summary.RunUUID)
	ctx = logging.WithLogger(ctx, logger)

	summary.Outcome = d.run(ctx, summary)
	summary.Outcome.Log(ctx)

	if summary.DownloadID > 0 {
		if err := d.finish(ctx, summary, atomic.LoadInt64(&warnings), atomic.LoadInt64(&errs)); err != nil {
			logger.Named("download").Errorw("failed to update download run", "error", err)
		}
	}

	if summary.Outcome.Kind == KindStoppedError {
		span.SetStatus(trace.Status{Code: trace.StatusCodeInternal, Message: summary.Outcome.Message})
	}
	observability.RecordLatency(ctx, start, mRunLatencyMs, observability.ResultError(summary.Outcome.Kind.String()))
	return summary
}

func (d *Downloader) run(ctx context.Context, summary *Summary) Outcome {
	logger := logging.FromContext(ctx).Named("download")

	unlock, err := d.db.Lock(ctx, lockID, d.config.LockTTL)
	if err != nil {
		if errors.Is(err, database.ErrAlreadyLocked) {
			return StopErrorf("another download is running")
		}
		return StopError(fmt.Errorf("acquiring download lock: %w", err))
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Errorw("failed to release download lock", "error", err)
		}
	}()

	id, err := d.record(ctx, summary.RunUUID)
	if err != nil {
		return StopError(err)
	}
	summary.DownloadID = id
	logger.Infow("download started", "download_id", id)

	dcs, out := GetDataCenters(ctx, d.db, d.config)
	if out.Stopped() {
		return out
	}

	var validator routing.Validator
	if routes := routing.Fetch(ctx, nil, &d.config.Routing, urlIndex(dcs)); routes != nil {
		validator = routes
	}

	events, out := GetEvents(ctx, d.db, d.fetcher, d.config)
	if out.Stopped() {
		return out
	}
	summary.Events = len(events)

	channels, out := GetChannels(ctx, d.db, d.fetcher, dcs, validator, d.config)
	if out.Stopped() {
		return out
	}
	summary.Channels = channels

	logger.Infof("%d event(s) and %d channel(s) ready for the segments download", len(events), len(channels))
	return OK()
}

// record stores the download run with the configuration.
func (d *Downloader) record(ctx context.Context, runUUID string) (int64, error) {
	cfg, err := d.config.YAML()
	if err != nil {
		return 0, err
	}
	row := &model.Download{
		RunTime:        time.Now().UTC(),
		RunUUID:        runUUID,
		Config:         cfg,
		ProgramVersion: buildinfo.Stream2Segment.Version(),
	}
	_, saved, err := dbsync.Sync(ctx, d.db, []*model.Download{row}, dbsync.Options[*model.Download]{
		Identity: []string{"run_uuid"},
	})
	if err != nil {
		return 0, fmt.Errorf("saving download run: %w", err)
	}
	if len(saved) == 0 {
		return 0, errors.New("saving download run: no row saved")
	}
	return saved[0].ID, nil
}

// finish stores the warning and error counts of the run.
func (d *Downloader) finish(ctx context.Context, summary *Summary, warnings, errs int64) error {
	_, err := d.db.Exec(ctx, "UPDATE download SET warnings = ?, errors = ? WHERE id = ?",
		warnings, errs, summary.DownloadID)
	return err
}
