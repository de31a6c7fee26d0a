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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/seismo-tools/stream2segment/internal/project"
	"github.com/seismo-tools/stream2segment/pkg/errcmp"
)

const channelResponse = `#Network|Station|Location|Channel|Latitude|Longitude|Elevation|Depth|Azimuth|Dip|SensorDescription|Scale|ScaleFreq|ScaleUnits|SampleRate|StartTime|EndTime
XX|AB||HHZ|45.1|7.2|300|0|0|-90|STS-2|6.0E8|1.0|M/S|100|2010-01-01T00:00:00|
XX|AB|00|HHN|45.1|7.2|300|0|0|0|STS-2|6.0E8|1.0|M/S|NaN|2010-01-01T00:00:00|
XX|CD|00|BHZ|46.0|8.0||||||||| 20.0 |2012-03-04T05:06:07.5Z|2019-01-01T00:00:00
`

func TestParsePipe(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want *RawTable
		err  string
	}{
		{
			name: "ok",
			text: "#A | B\r\n 1 |2\n\n3|4 \n",
			want: &RawTable{
				Header: []string{"A", "B"},
				Rows:   [][]string{{"1", "2"}, {"3", "4"}},
			},
		},
		{
			name: "byte_order_mark",
			text: "A|B\n\uFEFF1|2\n",
			want: &RawTable{
				Header: []string{"A", "B"},
				Rows:   [][]string{{"1", "2"}},
			},
		},
		{
			name: "ragged_row",
			text: "A|B|C\n1|2|3\n4|5|6\n7|8\n",
			err:  "column length mismatch",
		},
		{
			name: "empty",
			text: " \n\n",
			err:  "empty response",
		},
		{
			name: "header_only",
			text: "A|B\n",
			err:  "no data rows",
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParsePipe(tc.text)
			errcmp.MustMatch(t, err, tc.err)
			if err != nil {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("expected %v to be ErrMalformed", err)
				}
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mismatch (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestNormalize_channel(t *testing.T) {
	t.Parallel()

	raw, err := ParsePipe(channelResponse)
	if err != nil {
		t.Fatal(err)
	}

	got, discarded, err := Normalize(raw, KindChannel)
	if err != nil {
		t.Fatal(err)
	}
	if discarded != 1 {
		t.Errorf("expected 1 discarded row, got %d", discarded)
	}
	if got.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", got.Len())
	}

	if diff := cmp.Diff(Schema(KindChannel), got.Columns); diff != "" {
		t.Errorf("columns mismatch (-want, +got):\n%s", diff)
	}

	if v := got.Value(0, "location"); v != nil {
		t.Errorf("expected empty location to be nil, got %#v", v)
	}
	if v := got.Str(0, "location"); v != "" {
		t.Errorf("expected empty location string, got %q", v)
	}
	if v := got.TimePtr(0, "end_time"); v != nil {
		t.Errorf("expected nil end time, got %v", v)
	}
	if v := got.Float(1, "sample_rate"); v != 20 {
		t.Errorf("expected sample rate 20, got %v", v)
	}
	if v := got.FloatPtr(1, "elevation"); v != nil {
		t.Errorf("expected nil elevation, got %v", *v)
	}

	wantStart := time.Date(2012, 3, 4, 5, 6, 7, 500000000, time.UTC)
	if v := got.Time(1, "start_time"); !v.Equal(wantStart) {
		t.Errorf("expected %v to be %v", v, wantStart)
	}
}

func TestNormalize_errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		kind Kind
		err  string
	}{
		{
			name: "column_count",
			text: "A|B\n1|2\n",
			kind: KindStation,
			err:  "expected 8 columns for station, found 2",
		},
		{
			name: "all_rows_malformed",
			text: "N|S|Lat|Lon|Elev|Site|Start|End\nXX|AB|NaN|1|1|site|2010-01-01|\nXX|CD|1|1|1|site|not a time|\n",
			kind: KindStation,
			err:  "no valid station row (2 discarded)",
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			raw, err := ParsePipe(tc.text)
			if err != nil {
				t.Fatal(err)
			}
			_, _, err = Normalize(raw, tc.kind)
			errcmp.MustMatch(t, err, tc.err)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected %v to be ErrMalformed", err)
			}
		})
	}
}

func TestResponseToNormalized(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)

	body := "EventID|Time|Latitude|Longitude|Depth/km|Author|Catalog|Contributor|ContributorID|MagType|Magnitude|MagAuthor|EventLocationName\n" +
		"ev1|2020-01-01T00:00:00|1|2|10|||||ML|3.5||Somewhere\n" +
		"ev2|2020-01-01T00:00:00|1|2|10|||||ML|||Nowhere\n"

	got, err := ResponseToNormalized(ctx, "http://events.test", []byte(body), KindEvent)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", got.Len())
	}
	if got.Str(0, "event_id") != "ev1" {
		t.Errorf("expected ev1, got %q", got.Str(0, "event_id"))
	}

	if _, err := ResponseToNormalized(ctx, "http://events.test", []byte("A|B\n1\n"), KindEvent); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)
	for _, s := range []string{
		"2020-05-06T07:08:09",
		"2020-05-06T07:08:09Z",
		"2020-05-06T07:08:09.000",
		"2020-05-06 07:08:09",
		"2020-05-06T09:08:09+02:00",
	} {
		got, err := ParseTime(s)
		if err != nil {
			t.Errorf("%s: %v", s, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("%s: expected %v to be %v", s, got, want)
		}
	}

	if _, err := ParseTime("yesterday"); err == nil {
		t.Errorf("expected error")
	}
}

func TestTable_SelectHeadString(t *testing.T) {
	t.Parallel()

	tbl := &Table{Columns: []Column{
		{Name: "network", Type: String},
		{Name: "station", Type: String},
		{Name: "datacenter_id", Type: Int},
	}}
	tbl.Append("XX", "AB", int64(10))
	tbl.Append("XX", "CD", nil)

	sel := tbl.Select("datacenter_id", "missing", "network")
	if diff := cmp.Diff([]string{"datacenter_id", "network"}, sel.Names()); diff != "" {
		t.Errorf("names mismatch (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]any{{int64(10), "XX"}, {nil, "XX"}}, sel.Rows); diff != "" {
		t.Errorf("rows mismatch (-want, +got):\n%s", diff)
	}

	if got := tbl.Head(1).Len(); got != 1 {
		t.Errorf("expected 1 row, got %d", got)
	}
	if got := tbl.Head(10).Len(); got != 2 {
		t.Errorf("expected 2 rows, got %d", got)
	}

	s := tbl.String()
	for _, want := range []string{"datacenter_id", "AB", "CD", "NULL", "10"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in\n%s", want, s)
		}
	}
}
