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
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/seismo-tools/stream2segment/internal/fetch"
	"github.com/seismo-tools/stream2segment/internal/model"
	"github.com/seismo-tools/stream2segment/internal/routing"
	"github.com/seismo-tools/stream2segment/internal/table"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
	"go.opencensus.io/stats"
	"go.opencensus.io/trace"
)

// ErrNoStation is the error of a download that could fetch no station from
// any data-center and found none in the database.
var ErrNoStation = errors.New("No station found (Unable to fetch stations from all data-centers, " +
	"no data to fetch from the database. Check config and log for details)")

// channelsPostData is the body of the level=channel station requests.
func channelsPostData(config *Config) string {
	return fmt.Sprintf("format=text\nlevel=channel\n%s %s %s %s %s %s",
		postValue(config.Networks, false),
		postValue(config.Stations, false),
		postValue(config.Locations, true),
		postValue(config.Channels, false),
		postTime(config.Start),
		postTime(config.End))
}

func postTime(t time.Time) string {
	if t.IsZero() {
		return "*"
	}
	return t.UTC().Format(fdsnTimeLayout)
}

// GetChannels fetches the channels of every data-center, stores them with
// their stations and returns them. Channels of data-centers whose request
// failed are read from the database instead.
func GetChannels(ctx context.Context, db *database.DB, fetcher *fetch.Fetcher, dcs []*model.DataCenter,
	validator routing.Validator, config *Config) ([]model.ChannelRef, Outcome) {
	ctx, span := trace.StartSpan(ctx, "download.GetChannels")
	defer span.End()

	logger := logging.FromContext(ctx).Named("download")

	body := []byte(channelsPostData(config))
	reqs := make([]fetch.Request, len(dcs))
	byID := make(map[int64]*model.DataCenter, len(dcs))
	for i, dc := range dcs {
		reqs[i] = fetch.Request{Key: dc.ID, URL: dc.StationURL, Body: body}
		byID[dc.ID] = dc
	}

	var (
		merr   *multierror.Error
		failed = make(map[int64]struct{})
		perDC  = make(map[int64][]*model.CandidateRow)
	)
	stream := fetcher.Read(ctx, reqs)
	for {
		res, ok := stream.Next()
		if !ok {
			break
		}
		dcID := res.Key.(int64)
		if res.Err != nil {
			failed[dcID] = struct{}{}
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", res.URL, res.Err))
			logger.Warnf("Unable to fetch stations (%v) url: %s", res.Err, res.URL)
			continue
		}

		t, err := table.ResponseToNormalized(ctx, res.URL, res.Body, table.KindChannel)
		if err != nil {
			logger.Warnf("Discarding response data (%v) url: %s", err, res.URL)
			continue
		}
		perDC[dcID] = candidatesFromTable(t, dcID)
	}
	stream.Close()
	if err := stream.Err(); err != nil {
		return nil, StopError(err)
	}
	if len(failed) > 0 {
		stats.Record(ctx, mFailedDataCenters.M(int64(len(failed))))
		logger.Debugw("station requests failed", "errors", merr.Error())
	}

	// Data-center order keeps ids deterministic across runs.
	var web []*model.CandidateRow
	var failedIDs []int64
	for _, dc := range dcs {
		web = append(web, perDC[dc.ID]...)
		if _, ok := failed[dc.ID]; ok {
			failedIDs = append(failedIDs, dc.ID)
		}
	}

	ex, err := newExclusions(config)
	if err != nil {
		return nil, StopError(fmt.Errorf("invalid channel selection: %w", err))
	}
	if kept := ex.filter(web); len(kept) < len(web) {
		logger.Infof("%d channel(s) discarded (excluded network, station, location or channel)", len(web)-len(kept))
		web = kept
	}

	var fromDB []model.ChannelRef
	if len(failedIDs) > 0 {
		urls := make([]string, len(failedIDs))
		for i, id := range failedIDs {
			urls[i] = byID[id].DataselectURL
		}
		logger.Infof("Fetching stations from database for %d (of %d) data-center(s) (download errors occurred):\n%s",
			len(failedIDs), len(dcs), strings.Join(urls, "\n"))

		fromDB, err = ChannelsFromDB(ctx, db, failedIDs, config)
		if err != nil {
			return nil, StopError(err)
		}
	}

	var fromWeb []model.ChannelRef
	if len(web) > 0 {
		if config.MinSampleRate > 0 {
			kept := web[:0]
			for _, c := range web {
				if c.SampleRate >= config.MinSampleRate {
					kept = append(kept, c)
				}
			}
			if n := len(web) - len(kept); n > 0 {
				logger.Warnf("%d channel(s) discarded (sample rate < %v Hz)", n, config.MinSampleRate)
			}
			web = kept
			if len(web) == 0 && len(fromDB) == 0 {
				return nil, StopPolicy("No channel found with sample rate >= %f", config.MinSampleRate)
			}
		}

		if len(web) > 0 {
			var out Outcome
			fromWeb, out = SaveStationsAndChannels(ctx, db, web, validator, config.UpdateMetadata, config.ChunkSize)
			if out.Stopped() {
				if len(fromDB) == 0 {
					return nil, out
				}
				logger.Warn(out.Message)
			}
		}
	}

	if len(fromWeb) == 0 && len(fromDB) == 0 {
		return nil, StopError(ErrNoStation)
	}
	return append(fromWeb, fromDB...), OK()
}

func candidatesFromTable(t *table.Table, dcID int64) []*model.CandidateRow {
	out := make([]*model.CandidateRow, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		out = append(out, &model.CandidateRow{
			DataCenterID:      dcID,
			Network:           t.Str(i, "network"),
			Station:           t.Str(i, "station"),
			Location:          t.Str(i, "location"),
			Channel:           t.Str(i, "channel"),
			Latitude:          t.Float(i, "latitude"),
			Longitude:         t.Float(i, "longitude"),
			Elevation:         t.FloatPtr(i, "elevation"),
			Depth:             t.FloatPtr(i, "depth"),
			Azimuth:           t.FloatPtr(i, "azimuth"),
			Dip:               t.FloatPtr(i, "dip"),
			SensorDescription: t.StrPtr(i, "sensor_description"),
			Scale:             t.FloatPtr(i, "scale"),
			ScaleFreq:         t.FloatPtr(i, "scale_freq"),
			ScaleUnits:        t.StrPtr(i, "scale_units"),
			SampleRate:        t.Float(i, "sample_rate"),
			StartTime:         t.Time(i, "start_time"),
			EndTime:           t.TimePtr(i, "end_time"),
		})
	}
	return out
}

// ChannelsFromDB returns the stored channels of the given data-centers
// matching the configured N/S/L/C patterns, minimum sample rate and time
// window. A station with no end time is still operating.
func ChannelsFromDB(ctx context.Context, db *database.DB, dcIDs []int64, config *Config) ([]model.ChannelRef, error) {
	if len(dcIDs) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	where = append(where, fmt.Sprintf("s.datacenter_id IN (%s)", database.Placeholders(len(dcIDs))))
	for _, id := range dcIDs {
		args = append(args, id)
	}
	for _, p := range []struct {
		column   string
		patterns []string
		location bool
	}{
		{"s.network", config.Networks, false},
		{"s.station", config.Stations, false},
		{"c.location", config.Locations, true},
		{"c.channel", config.Channels, false},
	} {
		like := func(v string) string {
			if p.location {
				v = locationCode(v)
			}
			return likePattern(v)
		}
		include, exclude := splitNegations(p.patterns)
		if len(include) > 0 {
			likes := make([]string, len(include))
			for i, v := range include {
				likes[i] = p.column + " LIKE ?"
				args = append(args, like(v))
			}
			where = append(where, "("+strings.Join(likes, " OR ")+")")
		}
		for _, v := range exclude {
			where = append(where, "NOT "+p.column+" LIKE ?")
			args = append(args, like(v))
		}
	}
	if config.MinSampleRate > 0 {
		where = append(where, "c.sample_rate >= ?")
		args = append(args, config.MinSampleRate)
	}
	if !config.Start.IsZero() {
		where = append(where, "(s.end_time IS NULL OR s.end_time > ?)")
		args = append(args, config.Start.UTC())
	}
	if !config.End.IsZero() {
		where = append(where, "s.start_time < ?")
		args = append(args, config.End.UTC())
	}

	query := `
		SELECT c.id, c.station_id, s.latitude, s.longitude, s.datacenter_id,
			s.start_time, s.end_time, s.network, s.station, c.location, c.channel
		FROM channel c JOIN station s ON c.station_id = s.id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY c.id`

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying stored channels: %w", err)
	}
	defer rows.Close()

	var refs []model.ChannelRef
	for rows.Next() {
		var (
			ref model.ChannelRef
			end sql.NullTime
		)
		if err := rows.Scan(&ref.ID, &ref.StationID, &ref.Latitude, &ref.Longitude, &ref.DataCenterID,
			&ref.StartTime, &end, &ref.Network, &ref.Station, &ref.Location, &ref.Channel); err != nil {
			return nil, fmt.Errorf("scanning stored channel: %w", err)
		}
		ref.StartTime = ref.StartTime.UTC()
		if end.Valid {
			ref.EndTime = model.Ptr(end.Time.UTC())
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying stored channels: %w", err)
	}
	return refs, nil
}
