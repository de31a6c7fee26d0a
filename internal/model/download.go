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

// Download is a single run of the download routine. Its Config column holds
// the YAML serialized run configuration.
type Download struct {
	ID             int64
	RunTime        time.Time
	RunUUID        string
	Config         string
	Log            *string
	Errors         *int64
	Warnings       *int64
	ProgramVersion string
}

var downloadColumns = []string{"run_time", "run_uuid", "config", "log", "errors", "warnings", "program_version"}

func (d *Download) Table() string     { return DownloadTable }
func (d *Download) Columns() []string { return downloadColumns }

func (d *Download) Value(column string) any {
	switch column {
	case "id":
		return d.ID
	case "run_time":
		return UTC(d.RunTime)
	case "run_uuid":
		return d.RunUUID
	case "config":
		return d.Config
	case "log":
		return nullable(d.Log)
	case "errors":
		return nullable(d.Errors)
	case "warnings":
		return nullable(d.Warnings)
	case "program_version":
		return d.ProgramVersion
	}
	return nil
}

func (d *Download) PrimaryKey() int64      { return d.ID }
func (d *Download) SetPrimaryKey(id int64) { d.ID = id }
