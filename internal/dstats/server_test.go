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

package dstats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/seismo-tools/stream2segment/internal/serverenv"
	"github.com/seismo-tools/stream2segment/pkg/database"
)

func newTestServer(t *testing.T) (*Server, context.Context) {
	t.Helper()

	ctx := context.Background()
	db, _ := database.NewTestSQLite(t)

	t0 := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []struct {
		query string
		args  []any
	}{
		{`INSERT INTO datacenter (id, station_url, dataselect_url) VALUES (1, ?, ?)`,
			[]any{"http://geofon.org/fdsnws/station/1/query", "http://geofon.org/fdsnws/dataselect/1/query"}},
		{`INSERT INTO download (id, run_time, run_uuid, config, program_version) VALUES (?, ?, ?, ?, ?)`,
			[]any{1, t0, "run-1", "eventws_params:\n    minmagnitude: \"5\"\n", "test"}},
		{`INSERT INTO download (id, run_time, run_uuid, config, program_version) VALUES (?, ?, ?, ?, ?)`,
			[]any{2, t0.Add(time.Hour), "run-2", "", "test"}},
		{`INSERT INTO event (id, webservice_url, event_id, time, latitude, longitude, depth_km, magnitude)
			VALUES (1, 'http://events.org', 'ev1', ?, 1, 2, 3, 5.5)`, []any{t0}},
		{`INSERT INTO station (id, datacenter_id, network, station, latitude, longitude, start_time)
			VALUES (1, 1, 'GE', 'ABC', 1, 2, ?)`, []any{t0}},
		{`INSERT INTO channel (id, station_id, location, channel, sample_rate) VALUES (1, 1, '', 'HHZ', 100)`, nil},
		{`INSERT INTO segment (id, channel_id, datacenter_id, event_id, download_id, request_start, request_end,
			download_code) VALUES (1, 1, 1, 1, 1, ?, ?, 200)`, []any{t0, t0.Add(time.Minute)}},
		{`INSERT INTO segment (id, channel_id, datacenter_id, event_id, download_id, request_start, request_end,
			download_code) VALUES (2, 1, 1, 1, 2, ?, ?, 500)`, []any{t0, t0.Add(time.Minute)}},
	} {
		if _, err := db.Exec(ctx, s.query, s.args...); err != nil {
			t.Fatalf("seeding %q: %v", s.query, err)
		}
	}

	srv, err := NewServer(&Config{MaxGapThreshold: 0.5}, serverenv.New(ctx, serverenv.WithDatabase(db)))
	if err != nil {
		t.Fatal(err)
	}
	return srv, ctx
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestNewServer_noDatabase(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(&Config{}, serverenv.New(context.Background())); err == nil {
		t.Errorf("expected error without a database")
	}
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	srv, ctx := newTestServer(t)
	r := srv.Routes(ctx)

	t.Run("health", func(t *testing.T) {
		w := get(t, r, "/health")
		if got, want := w.Code, http.StatusOK; got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	})

	t.Run("stats", func(t *testing.T) {
		w := get(t, r, "/stats")
		if got, want := w.Code, http.StatusOK; got != want {
			t.Fatalf("expected %d, got %d: %s", want, got, w.Body.String())
		}

		var got struct {
			Runs []struct {
				ID          int64                       `json:"id"`
				EventParams map[string]string           `json:"event_params"`
				Stats       map[string]map[string]int64 `json:"stats"`
			} `json:"runs"`
			Aggregate map[string]map[string]int64 `json:"aggregate"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if len(got.Runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(got.Runs))
		}
		if diff := cmp.Diff(map[string]string{"minmagnitude": "5"}, got.Runs[0].EventParams); diff != "" {
			t.Errorf("event params mismatch (-want, +got):\n%s", diff)
		}
		wantAgg := map[string]map[string]int64{"http://geofon.org": {"200": 1, "500": 1}}
		if diff := cmp.Diff(wantAgg, got.Aggregate); diff != "" {
			t.Errorf("aggregate mismatch (-want, +got):\n%s", diff)
		}
	})

	t.Run("run", func(t *testing.T) {
		w := get(t, r, "/stats/2")
		if got, want := w.Code, http.StatusOK; got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
		var got struct {
			ID    int64                       `json:"id"`
			Stats map[string]map[string]int64 `json:"stats"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got.ID != 2 {
			t.Errorf("expected run 2, got %d", got.ID)
		}
		if diff := cmp.Diff(map[string]map[string]int64{"http://geofon.org": {"500": 1}}, got.Stats); diff != "" {
			t.Errorf("stats mismatch (-want, +got):\n%s", diff)
		}
	})

	t.Run("run_text", func(t *testing.T) {
		w := get(t, r, "/stats/1.txt")
		if got, want := w.Code, http.StatusOK; got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
		body := w.Body.String()
		for _, want := range []string{"Download id: 1", " minmagnitude = 5", "COLUMNS DETAILS:"} {
			if !strings.Contains(body, want) {
				t.Errorf("expected %q in:\n%s", want, body)
			}
		}
		if strings.Contains(body, "Aggregated") {
			t.Errorf("expected no aggregate for a single run:\n%s", body)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		for _, path := range []string{"/stats/99", "/stats/99.txt", "/stats/abc"} {
			if got, want := get(t, r, path).Code, http.StatusNotFound; got != want {
				t.Errorf("%s: expected %d, got %d", path, want, got)
			}
		}
	})
}
