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

package table

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/seismo-tools/stream2segment/pkg/logging"
)

// Kind is the entity kind of an FDSN text response.
type Kind int

const (
	KindEvent Kind = iota
	KindStation
	KindChannel
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindStation:
		return "station"
	case KindChannel:
		return "channel"
	}
	return "unknown"
}

var (
	eventSchema = []Column{
		{Name: "event_id", Type: String, Required: true},
		{Name: "time", Type: Time, Required: true},
		{Name: "latitude", Type: Float, Required: true},
		{Name: "longitude", Type: Float, Required: true},
		{Name: "depth_km", Type: Float, Required: true},
		{Name: "author", Type: String},
		{Name: "catalog", Type: String},
		{Name: "contributor", Type: String},
		{Name: "contributor_id", Type: String},
		{Name: "mag_type", Type: String},
		{Name: "magnitude", Type: Float, Required: true},
		{Name: "mag_author", Type: String},
		{Name: "event_location_name", Type: String},
	}

	stationSchema = []Column{
		{Name: "network", Type: String, Required: true},
		{Name: "station", Type: String, Required: true},
		{Name: "latitude", Type: Float, Required: true},
		{Name: "longitude", Type: Float, Required: true},
		{Name: "elevation", Type: Float},
		{Name: "site_name", Type: String},
		{Name: "start_time", Type: Time, Required: true},
		{Name: "end_time", Type: Time},
	}

	channelSchema = []Column{
		{Name: "network", Type: String, Required: true},
		{Name: "station", Type: String, Required: true},
		// An empty location code is valid.
		{Name: "location", Type: String},
		{Name: "channel", Type: String, Required: true},
		{Name: "latitude", Type: Float, Required: true},
		{Name: "longitude", Type: Float, Required: true},
		{Name: "elevation", Type: Float},
		{Name: "depth", Type: Float},
		{Name: "azimuth", Type: Float},
		{Name: "dip", Type: Float},
		{Name: "sensor_description", Type: String},
		{Name: "scale", Type: Float},
		{Name: "scale_freq", Type: Float},
		{Name: "scale_units", Type: String},
		{Name: "sample_rate", Type: Float, Required: true},
		{Name: "start_time", Type: Time, Required: true},
		{Name: "end_time", Type: Time},
	}
)

// Schema returns the canonical columns of the given kind, in FDSN text
// column order.
func Schema(kind Kind) []Column {
	var s []Column
	switch kind {
	case KindEvent:
		s = eventSchema
	case KindStation:
		s = stationSchema
	case KindChannel:
		s = channelSchema
	}
	return append([]Column(nil), s...)
}

// Normalize renames the raw columns positionally to the canonical schema of
// kind and coerces every cell to its column type. Rows with an empty or
// unparseable required value are dropped and counted in discarded. A
// MalformedError is returned if the column count does not match the schema
// or no row survives.
func Normalize(raw *RawTable, kind Kind) (t *Table, discarded int, err error) {
	schema := Schema(kind)
	if len(schema) == 0 {
		return nil, 0, fmt.Errorf("unknown table kind %d", kind)
	}
	if len(raw.Header) != len(schema) {
		return nil, 0, malformedf("expected %d columns for %s, found %d", len(schema), kind, len(raw.Header))
	}

	t = &Table{Columns: schema, Rows: make([][]any, 0, len(raw.Rows))}
	for _, cells := range raw.Rows {
		row, ok := coerceRow(schema, cells)
		if !ok {
			discarded++
			continue
		}
		t.Rows = append(t.Rows, row)
	}

	if len(t.Rows) == 0 {
		return nil, discarded, malformedf("no valid %s row (%d discarded)", kind, discarded)
	}
	return t, discarded, nil
}

func coerceRow(schema []Column, cells []string) ([]any, bool) {
	row := make([]any, len(schema))
	for i, col := range schema {
		v, err := Coerce(cells[i], col.Type)
		if err != nil || v == nil {
			if col.Required {
				return nil, false
			}
			v = nil
		}
		row[i] = v
	}
	return row, true
}

// Coerce converts a text cell to a value of type typ. Empty cells, and NaN
// for numeric types, yield nil.
func Coerce(s string, typ Type) (any, error) {
	if s == "" {
		return nil, nil
	}

	switch typ {
	case String:
		return s, nil
	case Int:
		return strconv.ParseInt(s, 10, 64)
	case Float:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, nil
		}
		return f, nil
	case Time:
		return ParseTime(s)
	case Bool:
		return strconv.ParseBool(s)
	}
	return nil, fmt.Errorf("unknown column type %d", typ)
}

var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses the ISO forms used by FDSN web services, with or without
// fractional seconds and a trailing 'Z'. The result is in UTC.
func ParseTime(s string) (time.Time, error) {
	v := strings.TrimSuffix(strings.TrimSpace(s), "Z")
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// ResponseToNormalized parses a data-center text response and normalizes it
// to kind, logging a warning with the number of discarded rows.
func ResponseToNormalized(ctx context.Context, url string, body []byte, kind Kind) (*Table, error) {
	raw, err := ParsePipe(string(body))
	if err != nil {
		return nil, err
	}

	t, discarded, err := Normalize(raw, kind)
	if discarded > 0 {
		logging.FromContext(ctx).Named("table").Warnf(
			"%d row(s) discarded (malformed server response data, e.g. NaN's) url: %s", discarded, url)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}
