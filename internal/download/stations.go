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
	"sort"
	"time"

	"github.com/seismo-tools/stream2segment/internal/dbsync"
	"github.com/seismo-tools/stream2segment/internal/model"
	"github.com/seismo-tools/stream2segment/internal/routing"
	"github.com/seismo-tools/stream2segment/internal/table"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
	"go.opencensus.io/stats"
)

// stationKey identifies a station as reported by one data-center.
type stationKey struct {
	network string
	station string
	start   int64
	dcID    int64
}

// epochKey identifies a station regardless of the data-center.
type epochKey struct {
	network string
	station string
	start   int64
}

func startKey(t time.Time) int64 {
	return t.UTC().Truncate(time.Microsecond).UnixMicro()
}

func keyOf(c *model.CandidateRow) stationKey {
	return stationKey{network: c.Network, station: c.Station, start: startKey(c.StartTime), dcID: c.DataCenterID}
}

func (k stationKey) epoch() epochKey {
	return epochKey{network: k.network, station: k.station, start: k.start}
}

var stationErrorColumns = []string{"network", "station", "start_time", "datacenter_id"}

// SaveStationsAndChannels stores the stations and channels of the
// candidates and returns the stored channels.
//
// When more than one data-center reports the same station epoch (network,
// station and start time), only one of them is kept: the first, by
// data-center id, confirmed by validator or, when validator is nil, the one
// already stored in the database. Groups with no such data-center are
// discarded. Channels of discarded stations are discarded too.
func SaveStationsAndChannels(ctx context.Context, db *database.DB, candidates []*model.CandidateRow,
	validator routing.Validator, update bool, chunkSize int) ([]model.ChannelRef, Outcome) {
	logger := logging.FromContext(ctx).Named("download")

	checkedAgainst := "already saved stations: eida routing service n/a"
	if validator != nil {
		checkedAgainst = "eida routing service response"
	}

	// One station per data-center, first occurrence wins.
	var stations []*model.CandidateRow
	seen := make(map[stationKey]struct{})
	for _, c := range candidates {
		k := keyOf(c)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		stations = append(stations, c)
	}

	discarded, err := resolveConflicts(ctx, db, stations, validator)
	if err != nil {
		return nil, StopError(fmt.Errorf("resolving duplicated stations: %w", err))
	}
	if len(discarded) > 0 {
		logger.Infof("Found %d duplicated station(s) to be discarded (checked against %s)", len(discarded), checkedAgainst)
		stats.Record(ctx, mDiscardedStations.M(int64(len(discarded))))

		rows := make([]*model.CandidateRow, 0, len(discarded))
		kept := stations[:0]
		for _, s := range stations {
			if _, ok := discarded[s]; ok {
				rows = append(rows, s)
			} else {
				kept = append(kept, s)
			}
		}
		stations = kept
		sortCandidates(rows)
		dbsync.LogRejected(ctx, candidatesTable(rows), errors.New("duplicated station(s)"), false)
	}

	// Store the stations.
	records := make([]*model.Station, len(stations))
	for i, s := range stations {
		records[i] = s.StationRecord()
	}
	staOpts := dbsync.Options[*model.Station]{
		Identity:  []string{"network", "station", "start_time"},
		ChunkSize: chunkSize,
	}
	if update {
		staOpts.Update = model.CandidateStationColumns
	}
	_, savedStations, err := dbsync.SyncAndLog(ctx, db, records, staOpts, stationErrorColumns...)
	if err != nil {
		return nil, StopError(err)
	}

	ids := make(map[stationKey]int64, len(savedStations))
	for _, s := range savedStations {
		ids[stationKey{network: s.Network, station: s.Station, start: startKey(s.StartTime), dcID: s.DataCenterID}] = s.ID
	}

	// Attach the station ids to the channels.
	withStation := make([]*model.CandidateRow, 0, len(candidates))
	for _, c := range candidates {
		id, ok := ids[keyOf(c)]
		if !ok {
			continue
		}
		c.StationID = id
		withStation = append(withStation, c)
	}
	if n := len(candidates) - len(withStation); n > 0 {
		logger.Infof("Found %d duplicated channel(s) to be discarded (checked against %s)", n, checkedAgainst)
	}

	// Store the channels.
	channels := make([]*model.Channel, len(withStation))
	source := make(map[*model.Channel]*model.CandidateRow, len(withStation))
	for i, c := range withStation {
		channels[i] = c.ChannelRecord()
		source[channels[i]] = c
	}
	chaOpts := dbsync.Options[*model.Channel]{
		Identity:  []string{"station_id", "location", "channel"},
		ChunkSize: chunkSize,
	}
	if update {
		chaOpts.Update = model.ChannelColumns
	}
	_, savedChannels, err := dbsync.SyncAndLog(ctx, db, channels, chaOpts, "station_id", "location", "channel")
	if err != nil {
		return nil, StopError(err)
	}

	refs := make([]model.ChannelRef, 0, len(savedChannels))
	for _, ch := range savedChannels {
		c := source[ch]
		refs = append(refs, model.ChannelRef{
			ID:           ch.ID,
			StationID:    ch.StationID,
			Latitude:     c.Latitude,
			Longitude:    c.Longitude,
			DataCenterID: c.DataCenterID,
			StartTime:    c.StartTime,
			EndTime:      c.EndTime,
			Network:      c.Network,
			Station:      c.Station,
			Location:     c.Location,
			Channel:      c.Channel,
		})
	}
	return refs, OK()
}

// resolveConflicts returns the stations to discard among those sharing their
// epoch with a station of another data-center.
func resolveConflicts(ctx context.Context, db *database.DB, stations []*model.CandidateRow,
	validator routing.Validator) (map[*model.CandidateRow]struct{}, error) {
	groups := make(map[epochKey][]*model.CandidateRow)
	var order []epochKey
	for _, s := range stations {
		k := keyOf(s).epoch()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], s)
	}

	discarded := make(map[*model.CandidateRow]struct{})
	for _, k := range order {
		group := groups[k]
		if len(group) < 2 {
			continue
		}

		var keep *model.CandidateRow
		if validator != nil {
			sorted := append([]*model.CandidateRow(nil), group...)
			sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DataCenterID < sorted[j].DataCenterID })
			for _, s := range sorted {
				if validator.IsAuthoritative(s.DataCenterID, s.Network, s.Station, s.Location, s.Channel) {
					keep = s
					break
				}
			}
		} else {
			dcID, found, err := storedDataCenter(ctx, db, group[0])
			if err != nil {
				return nil, err
			}
			if found {
				for _, s := range group {
					if s.DataCenterID == dcID {
						keep = s
						break
					}
				}
			}
		}

		for _, s := range group {
			if s != keep {
				discarded[s] = struct{}{}
			}
		}
	}
	return discarded, nil
}

// storedDataCenter returns the data-center of the stored station with the
// epoch of c.
func storedDataCenter(ctx context.Context, db *database.DB, c *model.CandidateRow) (int64, bool, error) {
	rows, err := db.Query(ctx, `
		SELECT datacenter_id, start_time FROM station
		WHERE network = ? AND station = ?`, c.Network, c.Station)
	if err != nil {
		return 0, false, fmt.Errorf("querying stations: %w", err)
	}
	defer rows.Close()

	want := startKey(c.StartTime)
	for rows.Next() {
		var (
			dcID  int64
			start time.Time
		)
		if err := rows.Scan(&dcID, &start); err != nil {
			return 0, false, fmt.Errorf("scanning station: %w", err)
		}
		if startKey(start) == want {
			return dcID, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return 0, false, fmt.Errorf("querying stations: %w", err)
	}
	return 0, false, nil
}

func sortCandidates(rows []*model.CandidateRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Network != b.Network {
			return a.Network < b.Network
		}
		if a.Station != b.Station {
			return a.Station < b.Station
		}
		return a.StartTime.Before(b.StartTime)
	})
}

func candidatesTable(rows []*model.CandidateRow) *table.Table {
	t := &table.Table{Columns: []table.Column{
		{Name: "network", Type: table.String},
		{Name: "station", Type: table.String},
		{Name: "start_time", Type: table.Time},
		{Name: "datacenter_id", Type: table.Int},
	}}
	for _, r := range rows {
		t.Append(r.Network, r.Station, r.StartTime.UTC(), r.DataCenterID)
	}
	return t
}
