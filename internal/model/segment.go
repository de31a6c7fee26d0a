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

// Segment is a waveform time window of a channel requested for an event.
// DownloadCode is nil when the data-center did not return the segment in an
// otherwise successful response.
type Segment struct {
	ID               int64
	ChannelID        int64
	DataCenterID     int64
	EventID          int64
	DownloadID       int64
	RequestStart     time.Time
	RequestEnd       time.Time
	DownloadCode     *int64
	MaxGapNumSamples *float64
	Data             []byte
}

var segmentColumns = []string{
	"channel_id", "datacenter_id", "event_id", "download_id", "request_start",
	"request_end", "download_code", "maxgap_numsamples", "data",
}

func (s *Segment) Table() string     { return SegmentTable }
func (s *Segment) Columns() []string { return segmentColumns }

func (s *Segment) Value(column string) any {
	switch column {
	case "id":
		return s.ID
	case "channel_id":
		return s.ChannelID
	case "datacenter_id":
		return s.DataCenterID
	case "event_id":
		return s.EventID
	case "download_id":
		return s.DownloadID
	case "request_start":
		return UTC(s.RequestStart)
	case "request_end":
		return UTC(s.RequestEnd)
	case "download_code":
		return nullable(s.DownloadCode)
	case "maxgap_numsamples":
		return nullable(s.MaxGapNumSamples)
	case "data":
		if s.Data == nil {
			return nil
		}
		return s.Data
	}
	return nil
}

func (s *Segment) PrimaryKey() int64      { return s.ID }
func (s *Segment) SetPrimaryKey(id int64) { s.ID = id }
