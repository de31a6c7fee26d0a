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

// Event is a seismic event returned by an FDSN event web service. The pair
// (WebserviceURL, EventID) identifies it.
type Event struct {
	ID                int64
	WebserviceURL     string
	EventID           string
	Time              time.Time
	Latitude          float64
	Longitude         float64
	DepthKM           float64
	Author            *string
	Catalog           *string
	Contributor       *string
	ContributorID     *string
	MagType           *string
	Magnitude         float64
	MagAuthor         *string
	EventLocationName *string
}

var eventColumns = []string{
	"webservice_url", "event_id", "time", "latitude", "longitude", "depth_km",
	"author", "catalog", "contributor", "contributor_id", "mag_type",
	"magnitude", "mag_author", "event_location_name",
}

func (e *Event) Table() string     { return EventTable }
func (e *Event) Columns() []string { return eventColumns }

func (e *Event) Value(column string) any {
	switch column {
	case "id":
		return e.ID
	case "webservice_url":
		return e.WebserviceURL
	case "event_id":
		return e.EventID
	case "time":
		return UTC(e.Time)
	case "latitude":
		return e.Latitude
	case "longitude":
		return e.Longitude
	case "depth_km":
		return e.DepthKM
	case "author":
		return nullable(e.Author)
	case "catalog":
		return nullable(e.Catalog)
	case "contributor":
		return nullable(e.Contributor)
	case "contributor_id":
		return nullable(e.ContributorID)
	case "mag_type":
		return nullable(e.MagType)
	case "magnitude":
		return e.Magnitude
	case "mag_author":
		return nullable(e.MagAuthor)
	case "event_location_name":
		return nullable(e.EventLocationName)
	}
	return nil
}

func (e *Event) PrimaryKey() int64      { return e.ID }
func (e *Event) SetPrimaryKey(id int64) { e.ID = id }
