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

// Package model defines the records persisted by a download: data-centers,
// events, stations, channels, segments and the download runs themselves.
package model

import "time"

// Table names.
const (
	DataCenterTable = "datacenter"
	DownloadTable   = "download"
	EventTable      = "event"
	StationTable    = "station"
	ChannelTable    = "channel"
	SegmentTable    = "segment"
)

// nullable returns nil for a nil pointer and the pointed value otherwise, so
// that NULL columns reach the database driver as untyped nil.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// UTC returns t in UTC. Times are always persisted in UTC.
func UTC(t time.Time) time.Time {
	return t.UTC()
}

// UTCPtr is UTC for optional times.
func UTCPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
