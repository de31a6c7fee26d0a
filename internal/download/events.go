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
	"sort"

	"github.com/seismo-tools/stream2segment/internal/dbsync"
	"github.com/seismo-tools/stream2segment/internal/fetch"
	"github.com/seismo-tools/stream2segment/internal/model"
	"github.com/seismo-tools/stream2segment/internal/table"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
)

const fdsnTimeLayout = "2006-01-02T15:04:05.999999"

// eventsQuery builds the GET URL of the event web service.
func eventsQuery(config *Config) (string, error) {
	u, err := url.Parse(config.EventsURL)
	if err != nil {
		return "", fmt.Errorf("invalid events web service URL: %w", err)
	}
	q := u.Query()
	keys := make([]string, 0, len(config.EventParams))
	for k := range config.EventParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, config.EventParams[k])
	}
	q.Set("format", "text")
	if !config.Start.IsZero() {
		q.Set("starttime", config.Start.UTC().Format(fdsnTimeLayout))
	}
	if !config.End.IsZero() {
		q.Set("endtime", config.End.UTC().Format(fdsnTimeLayout))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GetEvents downloads the events of the configured time window and stores
// them.
func GetEvents(ctx context.Context, db *database.DB, fetcher *fetch.Fetcher, config *Config) ([]*model.Event, Outcome) {
	logger := logging.FromContext(ctx).Named("download")

	query, err := eventsQuery(config)
	if err != nil {
		return nil, StopError(err)
	}

	stream := fetcher.Read(ctx, []fetch.Request{{Key: "events", URL: query}})
	res, ok := stream.Next()
	stream.Close()
	if !ok {
		err := stream.Err()
		if err == nil {
			err = errors.New("no response")
		}
		return nil, StopErrorf("Unable to fetch events (%v)", err)
	}
	if res.Err != nil {
		return nil, StopErrorf("Unable to fetch events (%v)", res.Err)
	}
	if len(res.Body) == 0 {
		return nil, StopPolicy("No event found, try to change your search parameters")
	}

	t, err := table.ResponseToNormalized(ctx, res.URL, res.Body, table.KindEvent)
	if err != nil {
		return nil, StopErrorf("Unable to fetch events (Malformed response data: %v)", err)
	}

	events := eventsFromTable(t, config.EventsURL)
	logger.Infof("%d event(s) found (total)", len(events))

	opts := dbsync.Options[*model.Event]{
		Identity:       []string{"webservice_url", "event_id"},
		ChunkSize:      config.ChunkSize,
		DropDuplicates: true,
	}
	if config.UpdateMetadata {
		opts.Update = (&model.Event{}).Columns()
	}
	_, saved, err := dbsync.SyncAndLog(ctx, db, events, opts, "event_id", "time", "magnitude")
	if err != nil {
		return nil, StopError(err)
	}
	return saved, OK()
}

func eventsFromTable(t *table.Table, webserviceURL string) []*model.Event {
	events := make([]*model.Event, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		events = append(events, &model.Event{
			WebserviceURL:     webserviceURL,
			EventID:           t.Str(i, "event_id"),
			Time:              t.Time(i, "time"),
			Latitude:          t.Float(i, "latitude"),
			Longitude:         t.Float(i, "longitude"),
			DepthKM:           t.Float(i, "depth_km"),
			Author:            t.StrPtr(i, "author"),
			Catalog:           t.StrPtr(i, "catalog"),
			Contributor:       t.StrPtr(i, "contributor"),
			ContributorID:     t.StrPtr(i, "contributor_id"),
			MagType:           t.StrPtr(i, "mag_type"),
			Magnitude:         t.Float(i, "magnitude"),
			MagAuthor:         t.StrPtr(i, "mag_author"),
			EventLocationName: t.StrPtr(i, "event_location_name"),
		})
	}
	return events
}
