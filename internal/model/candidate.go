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

import "time"

// CandidateRow is a station+channel record fetched from a data-center and not
// yet persisted. Many candidates may share the same station identity when
// more than one data-center claims the station.
type CandidateRow struct {
	DataCenterID int64

	Network           string
	Station           string
	Location          string
	Channel           string
	Latitude          float64
	Longitude         float64
	Elevation         *float64
	Depth             *float64
	Azimuth           *float64
	Dip               *float64
	SensorDescription *string
	Scale             *float64
	ScaleFreq         *float64
	ScaleUnits        *string
	SampleRate        float64
	StartTime         time.Time
	EndTime           *time.Time

	// StationID is set once the station of the candidate is persisted.
	StationID int64
}

// StationRecord projects the candidate on its station.
func (c *CandidateRow) StationRecord() *Station {
	return &Station{
		ID:           c.StationID,
		DataCenterID: c.DataCenterID,
		Network:      c.Network,
		Station:      c.Station,
		Latitude:     c.Latitude,
		Longitude:    c.Longitude,
		Elevation:    c.Elevation,
		StartTime:    c.StartTime,
		EndTime:      c.EndTime,
	}
}

// ChannelRecord projects the candidate on its channel. StationID must be
// resolved first.
func (c *CandidateRow) ChannelRecord() *Channel {
	return &Channel{
		StationID:         c.StationID,
		Location:          c.Location,
		Channel:           c.Channel,
		Depth:             c.Depth,
		Azimuth:           c.Azimuth,
		Dip:               c.Dip,
		SensorDescription: c.SensorDescription,
		Scale:             c.Scale,
		ScaleFreq:         c.ScaleFreq,
		ScaleUnits:        c.ScaleUnits,
		SampleRate:        c.SampleRate,
	}
}

// ChannelRef is a persisted channel joined with its station, the unit of
// work handed to the segment download.
type ChannelRef struct {
	ID           int64
	StationID    int64
	Latitude     float64
	Longitude    float64
	DataCenterID int64
	StartTime    time.Time
	EndTime      *time.Time
	Network      string
	Station      string
	Location     string
	Channel      string
}
