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

	"github.com/seismo-tools/stream2segment/internal/table"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
)

// MaxLoggedRows is the maximum number of rows printed when logging rejected
// records.
const MaxLoggedRows = 30

var (
	// ErrNothingSaved is matched by every *NothingSavedError.
	ErrNothingSaved = errors.New("no row saved")

	errDuplicates = errors.New("duplicated instances violate db constraint")
)

// NothingSavedError is returned by SyncAndLog when no record could be
// stored.
type NothingSavedError struct {
	Table string
}

func (e *NothingSavedError) Error() string {
	return fmt.Sprintf("No row saved to table '%s' (unknown error, check log for details and db connection)", e.Table)
}

// Is makes errors.Is(err, ErrNothingSaved) match.
func (e *NothingSavedError) Is(target error) bool {
	return target == ErrNothingSaved
}

// SyncAndLog is Sync with rejected and duplicated records logged as warnings
// (showing logColumns) and the counts logged at info level. A
// *NothingSavedError is returned when no record is returned.
func SyncAndLog[T Record](ctx context.Context, db *database.DB, rows []T, opts Options[T], logColumns ...string) (Result, []T, error) {
	if len(logColumns) == 0 {
		logColumns = opts.Identity
	}
	onInsert := func(rejected []T, err error) {
		LogRejected(ctx, RecordsTable(rejected, logColumns), err, false)
	}
	if opts.OnInsertError == nil {
		opts.OnInsertError = onInsert
	}
	if opts.OnUpdateError == nil {
		opts.OnUpdateError = func(rejected []T, err error) {
			LogRejected(ctx, RecordsTable(rejected, logColumns), err, true)
		}
	}
	if opts.OnDuplicates == nil {
		opts.OnDuplicates = func(dups []T) {
			onInsert(dups, errDuplicates)
		}
	}

	res, out, err := Sync(ctx, db, rows, opts)
	if err != nil {
		return res, nil, err
	}

	var zero T
	tableName := zero.Table()
	if len(out) == 0 {
		return res, nil, &NothingSavedError{Table: tableName}
	}
	LogWrite(ctx, tableName, res)
	return res, out, nil
}

// LogWrite logs the counts of a write on table.
func LogWrite(ctx context.Context, tableName string, res Result) {
	logger := logging.FromContext(ctx).Named("dbsync")
	header := fmt.Sprintf("Db table '%s'", tableName)

	if res == (Result{}) {
		logger.Infof("%s: no new row to insert, no row to update", header)
		return
	}

	logCounts := func(ok, notOK int, okFormat string) {
		if ok == 0 && notOK == 0 {
			return
		}
		noun := "rows"
		if ok == 1 {
			noun = "row"
		}
		msg := fmt.Sprintf(okFormat, ok, noun)
		info := "no sql error"
		if notOK > 0 {
			msg += fmt.Sprintf(", %d discarded", notOK)
			info = "sql errors"
		}
		logger.Infof("%s: %s (%s)", header, msg, info)
	}

	logCounts(res.Inserted, res.NotInserted, "%d new %s inserted")
	logCounts(res.Updated, res.NotUpdated, "%d %s updated")
}

// LogRejected logs at warning level the rows of a rejected write together
// with the database error. At most MaxLoggedRows rows are printed.
func LogRejected(ctx context.Context, rows *table.Table, err error, update bool) {
	if rows.Len() == 0 {
		return
	}

	action := "inserted"
	if update {
		action = "updated"
	}

	footer := ""
	if rows.Len() > MaxLoggedRows {
		footer = fmt.Sprintf("\n... (showing first %d rows only)", MaxLoggedRows)
	}

	logging.FromContext(ctx).Named("dbsync").Warnf("%d database rows not %s (%v):\n%s%s",
		rows.Len(), action, err, rows.Head(MaxLoggedRows), footer)
}

// RecordsTable renders records as a table of the given columns, which may
// include "id".
func RecordsTable[T Record](rows []T, columns []string) *table.Table {
	t := &table.Table{}
	for _, c := range columns {
		t.Columns = append(t.Columns, table.Column{Name: c})
	}
	for _, r := range rows {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = normalizeForDisplay(r.Value(c))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func normalizeForDisplay(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	}
	return v
}
