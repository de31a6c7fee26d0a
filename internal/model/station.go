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

package model

import (
	"fmt"
	"time"
)

// Station is a seismic station. At most one station exists per
// (Network, Station, StartTime), and DataCenterID is the data-center that
// won any cross data-center conflict for it.
type Station struct {
	ID           int64
	DataCenterID int64
	Network      string
	Station      string
	Latitude     float64
	Longitude    float64
	Elevation    *float64
	SiteName     *string
	StartTime    time.Time
	// EndTime is nil for a station still operating.
	EndTime *time.Time
}

// StationColumns are the persisted station columns, excluding the id.
var StationColumns = []string{
	"datacenter_id", "network", "station", "latitude", "longitude",
	"elevation", "site_name", "start_time", "end_time",
}

// CandidateStationColumns are the station columns a channel level station
// response carries. Updates from candidates leave the others untouched.
var CandidateStationColumns = []string{
	"datacenter_id", "network", "station", "latitude", "longitude",
	"elevation", "start_time", "end_time",
}

func (s *Station) Table() string     { return StationTable }
func (s *Station) Columns() []string { return StationColumns }

func (s *Station) Value(column string) any {
	switch column {
	case "id":
		return s.ID
	case "datacenter_id":
		return s.DataCenterID
	case "network":
		return s.Network
	case "station":
		return s.Station
	case "latitude":
		return s.Latitude
	case "longitude":
		return s.Longitude
	case "elevation":
		return nullable(s.Elevation)
	case "site_name":
		return nullable(s.SiteName)
	case "start_time":
		return UTC(s.StartTime)
	case "end_time":
		return nullable(UTCPtr(s.EndTime))
	}
	return nil
}

func (s *Station) PrimaryKey() int64      { return s.ID }
func (s *Station) SetPrimaryKey(id int64) { s.ID = id }

func (s *Station) String() string {
	return fmt.Sprintf("%s.%s (%s)", s.Network, s.Station, s.StartTime.UTC().Format(time.RFC3339))
}
