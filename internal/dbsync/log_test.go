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
	"fmt"
	"strings"
	"testing"

	"github.com/seismo-tools/stream2segment/internal/model"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedContext() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logging.WithLogger(context.Background(), zap.New(core).Sugar()), logs
}

func messages(logs *observer.ObservedLogs, level zapcore.Level) []string {
	var out []string
	for _, e := range logs.All() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

func TestLogWrite(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		res  Result
		want []string
	}{
		{
			name: "nothing",
			want: []string{"Db table 'station': no new row to insert, no row to update"},
		},
		{
			name: "inserted",
			res:  Result{Inserted: 1},
			want: []string{"Db table 'station': 1 new row inserted (no sql error)"},
		},
		{
			name: "all",
			res:  Result{Inserted: 3, NotInserted: 1, Updated: 2},
			want: []string{
				"Db table 'station': 3 new rows inserted, 1 discarded (sql errors)",
				"Db table 'station': 2 rows updated (no sql error)",
			},
		},
		{
			name: "only_failures",
			res:  Result{NotUpdated: 4},
			want: []string{"Db table 'station': 0 rows updated, 4 discarded (sql errors)"},
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx, logs := observedContext()
			LogWrite(ctx, "station", tc.res)

			got := messages(logs, zapcore.InfoLevel)
			if strings.Join(got, "\n") != strings.Join(tc.want, "\n") {
				t.Errorf("expected %q to be %q", got, tc.want)
			}
		})
	}
}

func TestLogRejected(t *testing.T) {
	t.Parallel()

	ctx, logs := observedContext()

	var rows []*model.Station
	for i := 0; i < 35; i++ {
		rows = append(rows, &model.Station{ID: int64(i + 1), Network: "XX", Station: fmt.Sprintf("S%02d", i), StartTime: t0})
	}

	LogRejected(ctx, RecordsTable(rows, []string{"id", "network", "station", "start_time"}), errors.New("boom"), true)
	LogRejected(ctx, RecordsTable(rows[:0], []string{"id"}), errors.New("ignored"), false)

	got := messages(logs, zapcore.WarnLevel)
	if len(got) != 1 {
		t.Fatalf("expected 1 warning, got %d: %q", len(got), got)
	}
	msg := got[0]
	for _, want := range []string{
		"35 database rows not updated (boom):",
		"start_time",
		"S29",
		"2010-01-01T00:00:00",
		"... (showing first 30 rows only)",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "S30") {
		t.Errorf("expected row S30 not to be shown in\n%s", msg)
	}
}

func TestSyncAndLog(t *testing.T) {
	t.Parallel()

	db, _ := database.NewTestSQLite(t)
	ctx, logs := observedContext()
	dc := seedDataCenter(t, ctx, db)

	opts := Options[*model.Station]{Identity: stationIdentity, DropDuplicates: true}

	res, out, err := SyncAndLog(ctx, db, newStations(dc.ID, "AA", "AA"), opts, "network", "station", "datacenter_id")
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 1 || res.NotInserted != 1 || len(out) != 1 {
		t.Errorf("unexpected result %+v with %d rows", res, len(out))
	}

	warnings := strings.Join(messages(logs, zapcore.WarnLevel), "\n")
	if !strings.Contains(warnings, "1 database rows not inserted (duplicated instances violate db constraint)") {
		t.Errorf("expected duplicate warning, got %q", warnings)
	}
	infos := strings.Join(messages(logs, zapcore.InfoLevel), "\n")
	if !strings.Contains(infos, "Db table 'station': 1 new row inserted, 1 discarded (sql errors)") {
		t.Errorf("expected write summary, got %q", infos)
	}

	// A foreign key violation on every row saves nothing.
	_, _, err = SyncAndLog(ctx, db, newStations(999, "ZZ"), opts)
	if !errors.Is(err, ErrNothingSaved) {
		t.Fatalf("expected ErrNothingSaved, got %v", err)
	}
	if got, want := err.Error(), "No row saved to table 'station'"; !strings.Contains(got, want) {
		t.Errorf("expected %q to contain %q", got, want)
	}

	// Without rows the table is still named.
	_, _, err = SyncAndLog(ctx, db, []*model.Station{}, opts)
	var nothing *NothingSavedError
	if !errors.As(err, &nothing) {
		t.Fatalf("expected NothingSavedError, got %v", err)
	}
	if got, want := nothing.Table, model.StationTable; got != want {
		t.Errorf("expected table %q, got %q", want, got)
	}
}
