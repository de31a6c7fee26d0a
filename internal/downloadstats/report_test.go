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

package downloadstats

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/seismo-tools/stream2segment/pkg/database"
)

var t0 = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

const runConfig = `eventws: http://events.org/fdsnws/event/1/query
eventws_params:
    minmagnitude: "4"
start: 2010-01-01T00:00:00Z
end: 0001-01-01T00:00:00Z
`

type segment struct {
	dc, download int64
	code         *int64
	maxgap       *float64
}

// seed creates two data-centers, three runs and the given segments, all of
// the same channel and event.
func seed(tb testing.TB, db *database.DB, segments []segment) {
	tb.Helper()

	ctx := context.Background()
	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO datacenter (id, station_url, dataselect_url) VALUES (?, ?, ?)`,
			[]any{1, "http://geofon.org/fdsnws/station/1/query", "http://geofon.org/fdsnws/dataselect/1/query"}},
		{`INSERT INTO datacenter (id, station_url, dataselect_url) VALUES (?, ?, ?)`,
			[]any{2, "https://ingv.it/fdsnws/station/1/query", "https://ingv.it/fdsnws/dataselect/1/query"}},
		{`INSERT INTO download (id, run_time, run_uuid, config, program_version) VALUES (?, ?, ?, ?, ?)`,
			[]any{1, t0, "run-1", runConfig, "test"}},
		{`INSERT INTO download (id, run_time, run_uuid, config, program_version) VALUES (?, ?, ?, ?, ?)`,
			[]any{2, t0.Add(time.Hour), "run-2", "not: [valid", "test"}},
		{`INSERT INTO download (id, run_time, run_uuid, config, program_version) VALUES (?, ?, ?, ?, ?)`,
			[]any{3, t0.Add(2 * time.Hour), "run-3", "", "test"}},
		{`INSERT INTO event (id, webservice_url, event_id, time, latitude, longitude, depth_km, magnitude)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{1, "http://events.org", "ev1", t0, 45.0, 7.0, 10.0, 4.5}},
		{`INSERT INTO station (id, datacenter_id, network, station, latitude, longitude, start_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			[]any{1, 1, "GE", "ABC", 45.0, 7.0, t0}},
		{`INSERT INTO channel (id, station_id, location, channel, sample_rate) VALUES (?, ?, ?, ?, ?)`,
			[]any{1, 1, "", "HHZ", 100.0}},
	}
	for i, s := range segments {
		var code, maxgap any
		if s.code != nil {
			code = *s.code
		}
		if s.maxgap != nil {
			maxgap = *s.maxgap
		}
		stmts = append(stmts, struct {
			query string
			args  []any
		}{
			`INSERT INTO segment (id, channel_id, datacenter_id, event_id, download_id, request_start,
				request_end, download_code, maxgap_numsamples) VALUES (?, 1, ?, 1, ?, ?, ?, ?, ?)`,
			[]any{i + 1, s.dc, s.download, t0, t0.Add(time.Minute), code, maxgap},
		})
	}

	for _, s := range stmts {
		if _, err := db.Exec(ctx, s.query, s.args...); err != nil {
			tb.Fatalf("seeding %q: %v", s.query, err)
		}
	}
}

func TestNewReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, _ := database.NewTestSQLite(t)
	seed(t, db, []segment{
		{dc: 1, download: 1, code: ptr(int64(200)), maxgap: ptr(0.0)},
		{dc: 1, download: 1, code: ptr(int64(200))},
		{dc: 1, download: 1, code: ptr(int64(200)), maxgap: ptr(1.0)},
		{dc: 2, download: 1, code: ptr(int64(404))},
		{dc: 2, download: 1},
		{dc: 1, download: 2, code: ptr(int64(-1))},
	})

	report, err := NewReport(ctx, db, nil, DefaultMaxGapThreshold)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := len(report.Runs), 3; got != want {
		t.Fatalf("expected %d runs, got %d", want, got)
	}

	run1 := report.Run(1)
	if diff := cmp.Diff(map[string]string{"minmagnitude": "4", "start": "2010-01-01T00:00:00Z"}, run1.EventParams); diff != "" {
		t.Errorf("event params mismatch (-want, +got):\n%s", diff)
	}
	if !run1.RunTime.Equal(t0) {
		t.Errorf("expected run time %s, got %s", t0, run1.RunTime)
	}

	for _, tc := range []struct {
		stats *Stats
		label string
		code  Code
		want  int64
	}{
		{run1.Stats, "http://geofon.org", HTTPCode(200), 2},
		{run1.Stats, "http://geofon.org", HTTPCode(CodeGapsOverlaps), 1},
		{run1.Stats, "https://ingv.it", HTTPCode(404), 1},
		{run1.Stats, "https://ingv.it", NotFound, 1},
		{report.Run(2).Stats, "http://geofon.org", HTTPCode(CodeURLError), 1},
		{report.Aggregate, "http://geofon.org", HTTPCode(200), 2},
		{report.Aggregate, "http://geofon.org", HTTPCode(CodeURLError), 1},
	} {
		if got := tc.stats.Count(tc.label, tc.code); got != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.label, tc.code, tc.want, got)
		}
	}
	if got, want := report.Aggregate.Total(), int64(6); got != want {
		t.Errorf("expected aggregate total %d, got %d", want, got)
	}
	if len(report.Run(2).EventParams) != 0 {
		t.Errorf("expected no event params for an unparsable config, got %v", report.Run(2).EventParams)
	}
	if !report.Run(3).Stats.Empty() {
		t.Errorf("expected no segments in run 3")
	}

	var b strings.Builder
	if err := report.WriteText(&b); err != nil {
		t.Fatal(err)
	}
	text := b.String()
	for _, want := range []string{
		"| Download id: 1 |",
		"executed: 2010-01-01T00:00:00Z",
		" minmagnitude = 4\n",
		" start = 2010-01-01T00:00:00Z\n",
		"| Download id: 3 |",
		"N/A",
		"| Aggregated stats (all downloads) |",
		"OK Gaps Overlaps: Data saved (download ok, data has gaps or overlaps)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in:\n%s", want, text)
		}
	}
}

func TestNewReport_filtered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, _ := database.NewTestSQLite(t)
	seed(t, db, []segment{
		{dc: 1, download: 1, code: ptr(int64(200))},
		{dc: 1, download: 2, code: ptr(int64(200)), maxgap: ptr(-3.0)},
	})

	report, err := NewReport(ctx, db, []int64{2}, DefaultMaxGapThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(report.Runs), 1; got != want {
		t.Fatalf("expected %d runs, got %d", want, got)
	}
	if report.Aggregate != nil {
		t.Errorf("expected no aggregate for a single run")
	}
	if got, want := report.Runs[0].Stats.Count("http://geofon.org", HTTPCode(CodeGapsOverlaps)), int64(1); got != want {
		t.Errorf("expected %d, got %d", want, got)
	}

	// A higher threshold no longer flags the overlap.
	report, err = NewReport(ctx, db, []int64{2}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := report.Runs[0].Stats.Count("http://geofon.org", HTTPCode(200)), int64(1); got != want {
		t.Errorf("expected %d, got %d", want, got)
	}

	var b strings.Builder
	if err := report.WriteText(&b); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(b.String(), "Aggregated") {
		t.Errorf("expected no aggregated table in:\n%s", b.String())
	}
}
