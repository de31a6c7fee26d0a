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
	"fmt"

	"github.com/seismo-tools/stream2segment/internal/dbsync"
	"github.com/seismo-tools/stream2segment/internal/model"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
)

// GetDataCenters stores the configured data-centers and returns them with
// their ids, in configuration order.
func GetDataCenters(ctx context.Context, db *database.DB, config *Config) ([]*model.DataCenter, Outcome) {
	logger := logging.FromContext(ctx).Named("download")

	dcs := make([]*model.DataCenter, 0, len(config.DataCenters))
	for _, raw := range config.DataCenters {
		urls, err := NewDataCenterURLs(raw)
		if err != nil {
			return nil, StopError(err)
		}
		dcs = append(dcs, &model.DataCenter{
			StationURL:    urls.Station,
			DataselectURL: urls.Dataselect,
		})
	}

	_, saved, err := dbsync.SyncAndLog(ctx, db, dcs, dbsync.Options[*model.DataCenter]{
		Identity:       []string{"station_url"},
		ChunkSize:      config.ChunkSize,
		DropDuplicates: true,
	}, "station_url", "dataselect_url")
	if err != nil {
		return nil, StopError(fmt.Errorf("saving data-centers: %w", err))
	}

	logger.Infof("%d data-center(s) found", len(saved))
	return saved, OK()
}

// urlIndex maps the station and dataselect URLs of dcs to their ids.
func urlIndex(dcs []*model.DataCenter) map[string]int64 {
	out := make(map[string]int64, 2*len(dcs))
	for _, dc := range dcs {
		out[dc.StationURL] = dc.ID
		out[dc.DataselectURL] = dc.ID
	}
	return out
}
