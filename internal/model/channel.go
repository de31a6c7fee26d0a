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

// Channel is a recording channel of a station, identified by
// (StationID, Location, Channel).
type Channel struct {
	ID                int64
	StationID         int64
	Location          string
	Channel           string
	Depth             *float64
	Azimuth           *float64
	Dip               *float64
	SensorDescription *string
	Scale             *float64
	ScaleFreq         *float64
	ScaleUnits        *string
	SampleRate        float64
}

// ChannelColumns are the persisted channel columns, excluding the id.
var ChannelColumns = []string{
	"station_id", "location", "channel", "depth", "azimuth", "dip",
	"sensor_description", "scale", "scale_freq", "scale_units", "sample_rate",
}

func (c *Channel) Table() string     { return ChannelTable }
func (c *Channel) Columns() []string { return ChannelColumns }

func (c *Channel) Value(column string) any {
	switch column {
	case "id":
		return c.ID
	case "station_id":
		return c.StationID
	case "location":
		return c.Location
	case "channel":
		return c.Channel
	case "depth":
		return nullable(c.Depth)
	case "azimuth":
		return nullable(c.Azimuth)
	case "dip":
		return nullable(c.Dip)
	case "sensor_description":
		return nullable(c.SensorDescription)
	case "scale":
		return nullable(c.Scale)
	case "scale_freq":
		return nullable(c.ScaleFreq)
	case "scale_units":
		return nullable(c.ScaleUnits)
	case "sample_rate":
		return c.SampleRate
	}
	return nil
}

func (c *Channel) PrimaryKey() int64      { return c.ID }
func (c *Channel) SetPrimaryKey(id int64) { c.ID = id }
