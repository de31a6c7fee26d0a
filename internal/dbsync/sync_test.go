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

package dbsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/seismo-tools/stream2segment/internal/model"
	"github.com/seismo-tools/stream2segment/internal/project"
	"github.com/seismo-tools/stream2segment/pkg/database"
)

// testChannel is a channel whose code may be NULL, to trigger not-null
// violations.
type testChannel struct {
	id         int64
	stationID  int64
	location   string
	channel    *string
	sampleRate float64
}

func (c *testChannel) Table() string { return model.ChannelTable }
func (c *testChannel) Columns() []string {
	return []string{"station_id", "location", "channel", "sample_rate"}
}

func (c *testChannel) Value(column string) any {
	switch column {
	case "id":
		return c.id
	case "station_id":
		return c.stationID
	case "location":
		return c.location
	case "channel":
		if c.channel == nil {
			return nil
		}
		return *c.channel
	case "sample_rate":
		return c.sampleRate
	}
	return nil
}

func (c *testChannel) PrimaryKey() int64      { return c.id }
func (c *testChannel) SetPrimaryKey(id int64) { c.id = id }

var t0 = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

var stationIdentity = []string{"network", "station", "start_time"}

func seedDataCenter(tb testing.TB, ctx context.Context, db *database.DB) *model.DataCenter {
	tb.Helper()

	dc := &model.DataCenter{StationURL: "http://dc1/fdsnws/station/1/query", DataselectURL: "http://dc1/fdsnws/dataselect/1/query"}
	if _, _, err := Sync(ctx, db, []*model.DataCenter{dc}, Options[*model.DataCenter]{Identity: []string{"station_url"}}); err != nil {
		tb.Fatal(err)
	}
	return dc
}

func newStations(dcID int64, codes ...string) []*model.Station {
	var out []*model.Station
	for _, c := range codes {
		out = append(out, &model.Station{
			DataCenterID: dcID,
			Network:      "XX",
			Station:      c,
			Latitude:     1,
			Longitude:    2,
			StartTime:    t0,
		})
	}
	return out
}

func ids[T Record](rows []T) []int64 {
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.PrimaryKey())
	}
	return out
}

func TestSync_idempotent(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	db, _ := database.NewTestSQLite(t)
	dc := seedDataCenter(t, ctx, db)

	opts := Options[*model.Station]{Identity: stationIdentity, ChunkSize: 2}

	res, out, err := Sync(ctx, db, newStations(dc.ID, "AA", "BB", "CC"), opts)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Result{Inserted: 3}, res); diff != "" {
		t.Errorf("first sync mismatch (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, ids(out)); diff != "" {
		t.Errorf("first ids mismatch (-want, +got):\n%s", diff)
	}

	// Same candidates, in another order and with a time zone: nothing is
	// inserted and ids are preserved.
	again := newStations(dc.ID, "CC", "AA", "BB")
	for _, s := range again {
		s.StartTime = s.StartTime.In(time.FixedZone("CET", 3600))
	}
	res, out, err = Sync(ctx, db, again, opts)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Result{}, res); diff != "" {
		t.Errorf("second sync mismatch (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{3, 1, 2}, ids(out)); diff != "" {
		t.Errorf("second ids mismatch (-want, +got):\n%s", diff)
	}
}

func TestSync_chunkIsolation(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	db, _ := database.NewTestSQLite(t)
	dc := seedDataCenter(t, ctx, db)

	_, stations, err := Sync(ctx, db, newStations(dc.ID, "AB"), Options[*model.Station]{Identity: stationIdentity})
	if err != nil {
		t.Fatal(err)
	}
	sta := stations[0]

	codes := []*string{model.Ptr("HH0"), model.Ptr("HH1"), model.Ptr("HH2"), nil, model.Ptr("HH4")}
	rows := make([]*testChannel, 0, len(codes))
	for _, c := range codes {
		rows = append(rows, &testChannel{stationID: sta.ID, channel: c, sampleRate: 100})
	}

	var rejected [][]*testChannel
	res, out, err := Sync(ctx, db, rows, Options[*testChannel]{
		Identity:  []string{"station_id", "location", "channel"},
		ChunkSize: 2,
		OnInsertError: func(r []*testChannel, err error) {
			if !database.IsConstraintViolation(err) {
				t.Errorf("expected constraint violation, got %v", err)
			}
			rejected = append(rejected, r)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(Result{Inserted: 3, NotInserted: 2}, res); diff != "" {
		t.Errorf("result mismatch (-want, +got):\n%s", diff)
	}
	if len(rejected) != 1 || len(rejected[0]) != 2 || rejected[0][0] != rows[2] || rejected[0][1] != rows[3] {
		t.Errorf("expected rows 2 and 3 rejected together, got %v", rejected)
	}
	if got, want := []*testChannel(out), []*testChannel{rows[0], rows[1], rows[4]}; !cmp.Equal(want, got, cmp.AllowUnexported(testChannel{})) {
		t.Errorf("expected rows 0, 1 and 4 returned, got %v", got)
	}
	// The ids of the rejected chunk are not reused.
	if diff := cmp.Diff([]int64{1, 2, 5}, ids(out)); diff != "" {
		t.Errorf("ids mismatch (-want, +got):\n%s", diff)
	}

	var count int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM channel`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected 3 persisted channels, got %d", count)
	}
}

func TestSync_update(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	db, _ := database.NewTestSQLite(t)
	dc := seedDataCenter(t, ctx, db)

	if _, _, err := Sync(ctx, db, newStations(dc.ID, "AA", "BB"), Options[*model.Station]{Identity: stationIdentity}); err != nil {
		t.Fatal(err)
	}

	rows := newStations(dc.ID, "BB", "CC")
	rows[0].Latitude = 42
	rows[0].SiteName = model.Ptr("moved")

	res, out, err := Sync(ctx, db, rows, Options[*model.Station]{
		Identity: stationIdentity,
		Update:   model.StationColumns,
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Result{Inserted: 1, Updated: 1}, res); diff != "" {
		t.Errorf("result mismatch (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{2, 3}, ids(out)); diff != "" {
		t.Errorf("ids mismatch (-want, +got):\n%s", diff)
	}

	var (
		lat  float64
		site string
	)
	if err := db.QueryRow(ctx, `SELECT latitude, site_name FROM station WHERE id = ?`, 2).Scan(&lat, &site); err != nil {
		t.Fatal(err)
	}
	if lat != 42 || site != "moved" {
		t.Errorf("expected updated station, got %v %q", lat, site)
	}
}

func TestSync_updateRejected(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	db, _ := database.NewTestSQLite(t)
	dc := seedDataCenter(t, ctx, db)

	if _, _, err := Sync(ctx, db, newStations(dc.ID, "AA"), Options[*model.Station]{Identity: stationIdentity}); err != nil {
		t.Fatal(err)
	}

	rows := newStations(dc.ID, "AA")
	rows[0].DataCenterID = 999 // foreign key violation

	var updateErr error
	res, out, err := Sync(ctx, db, rows, Options[*model.Station]{
		Identity:      stationIdentity,
		Update:        []string{"datacenter_id"},
		OnUpdateError: func(_ []*model.Station, err error) { updateErr = err },
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Result{NotUpdated: 1}, res); diff != "" {
		t.Errorf("result mismatch (-want, +got):\n%s", diff)
	}
	if len(out) != 0 {
		t.Errorf("expected no rows, got %d", len(out))
	}
	if !database.IsConstraintViolation(updateErr) {
		t.Errorf("expected constraint violation, got %v", updateErr)
	}
}

func TestSync_duplicates(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	db, _ := database.NewTestSQLite(t)
	dc := seedDataCenter(t, ctx, db)

	t.Run("dropped", func(t *testing.T) {
		rows := newStations(dc.ID, "AA", "AA", "BB")
		rows[1].Latitude = 99

		var dups []*model.Station
		res, out, err := Sync(ctx, db, rows, Options[*model.Station]{
			Identity:       stationIdentity,
			DropDuplicates: true,
			OnDuplicates:   func(r []*model.Station) { dups = r },
		})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(Result{Inserted: 2, NotInserted: 1}, res); diff != "" {
			t.Errorf("result mismatch (-want, +got):\n%s", diff)
		}
		if len(dups) != 1 || dups[0] != rows[1] {
			t.Errorf("expected second row reported as duplicate, got %v", dups)
		}
		if len(out) != 2 || out[0] != rows[0] || out[1] != rows[2] {
			t.Errorf("expected first and third rows, got %v", out)
		}
	})

	t.Run("kept", func(t *testing.T) {
		// Both copies are new and are inserted in the same chunk: the unique
		// constraint rejects the chunk.
		res, out, err := Sync(ctx, db, newStations(dc.ID, "CC", "CC"), Options[*model.Station]{
			Identity: stationIdentity,
		})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(Result{NotInserted: 2}, res); diff != "" {
			t.Errorf("result mismatch (-want, +got):\n%s", diff)
		}
		if len(out) != 0 {
			t.Errorf("expected no rows, got %d", len(out))
		}
	})
}

func TestSync_nullIdentity(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	db, _ := database.NewTestSQLite(t)
	dc := seedDataCenter(t, ctx, db)

	identity := []string{"network", "station", "end_time"}
	end := t0.AddDate(1, 0, 0)

	first := newStations(dc.ID, "AA", "BB")
	first[1].EndTime = &end
	if _, _, err := Sync(ctx, db, first, Options[*model.Station]{Identity: identity}); err != nil {
		t.Fatal(err)
	}

	second := newStations(dc.ID, "AA", "BB")
	// NULL end time matches the stored NULL; BB has a different end time and
	// is therefore new (and rejected by the unique constraint).
	res, out, err := Sync(ctx, db, second, Options[*model.Station]{Identity: identity})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Result{NotInserted: 1}, res); diff != "" {
		t.Errorf("result mismatch (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1}, ids(out)); diff != "" {
		t.Errorf("ids mismatch (-want, +got):\n%s", diff)
	}
}

// bogusChannel writes a column the channel table does not have.
type bogusChannel struct {
	testChannel
}

func (c *bogusChannel) Columns() []string {
	return append(c.testChannel.Columns(), "bogus")
}

func TestSync_writeError(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	db, _ := database.NewTestSQLite(t)
	dc := seedDataCenter(t, ctx, db)

	_, stations, err := Sync(ctx, db, newStations(dc.ID, "AB"), Options[*model.Station]{Identity: stationIdentity})
	if err != nil {
		t.Fatal(err)
	}

	rows := []*bogusChannel{
		{testChannel{stationID: stations[0].ID, channel: model.Ptr("HHZ"), sampleRate: 100}},
		{testChannel{stationID: stations[0].ID, channel: model.Ptr("HHN"), sampleRate: 100}},
	}
	called := false
	res, out, err := Sync(ctx, db, rows, Options[*bogusChannel]{
		Identity:      []string{"station_id", "location", "channel"},
		ChunkSize:     1,
		OnInsertError: func([]*bogusChannel, error) { called = true },
	})
	if err == nil {
		t.Fatal("expected error writing an unknown column")
	}
	if database.IsConstraintViolation(err) {
		t.Errorf("expected a non constraint error, got %v", err)
	}
	if called {
		t.Errorf("expected no rejected rows to be reported")
	}
	if res != (Result{}) || out != nil {
		t.Errorf("expected nothing written, got %+v %v", res, out)
	}
}

func TestSync_errors(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	db, _ := database.NewTestSQLite(t)

	if res, out, err := Sync(ctx, db, []*model.Station(nil), Options[*model.Station]{}); err != nil || res != (Result{}) || out != nil {
		t.Errorf("expected empty sync to be a no-op, got %v %v %v", res, out, err)
	}

	if _, _, err := Sync(ctx, db, newStations(1, "AA"), Options[*model.Station]{}); err == nil {
		t.Errorf("expected error without identity")
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := Sync(cctx, db, newStations(1, "AA"), Options[*model.Station]{Identity: stationIdentity}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestResult_Add(t *testing.T) {
	t.Parallel()

	got := Result{Inserted: 1, NotInserted: 2}.Add(Result{Inserted: 3, Updated: 4, NotUpdated: 5})
	if diff := cmp.Diff(Result{Inserted: 4, NotInserted: 2, Updated: 4, NotUpdated: 5}, got); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
}

func TestIdentityKey(t *testing.T) {
	t.Parallel()

	rome := time.FixedZone("CET", 3600)
	cases := []struct {
		name  string
		a, b  []any
		equal bool
	}{
		{name: "null", a: []any{nil, "x"}, b: []any{nil, "x"}, equal: true},
		{name: "null_pointer", a: []any{(*string)(nil)}, b: []any{nil}, equal: true},
		{name: "null_vs_empty", a: []any{nil}, b: []any{""}, equal: false},
		{name: "numbers", a: []any{int64(3)}, b: []any{3.0}, equal: true},
		{name: "times", a: []any{t0}, b: []any{t0.In(rome)}, equal: true},
		{name: "bytes", a: []any{[]byte("abc")}, b: []any{"abc"}, equal: true},
		{name: "separator", a: []any{"a", "b"}, b: []any{"a\x1fb"}, equal: false},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := identityKey(tc.a) == identityKey(tc.b); got != tc.equal {
				t.Errorf("expected equal=%t for %v and %v", tc.equal, tc.a, tc.b)
			}
		})
	}
}
