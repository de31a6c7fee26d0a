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

// DataCenter is a remote FDSN data-center, identified by its station
// web service URL.
type DataCenter struct {
	ID               int64
	StationURL       string
	DataselectURL    string
	OrganizationName *string
}

var dataCenterColumns = []string{"station_url", "dataselect_url", "organization_name"}

// Table returns the database table name.
func (d *DataCenter) Table() string { return DataCenterTable }

// Columns returns the persisted columns, excluding the primary key.
func (d *DataCenter) Columns() []string { return dataCenterColumns }

// Value returns the value of the given column.
func (d *DataCenter) Value(column string) any {
	switch column {
	case "id":
		return d.ID
	case "station_url":
		return d.StationURL
	case "dataselect_url":
		return d.DataselectURL
	case "organization_name":
		return nullable(d.OrganizationName)
	}
	return nil
}

// PrimaryKey returns the database id, 0 when not persisted.
func (d *DataCenter) PrimaryKey() int64 { return d.ID }

// SetPrimaryKey sets the database id.
func (d *DataCenter) SetPrimaryKey(id int64) { d.ID = id }
