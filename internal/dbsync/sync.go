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
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
	"github.com/seismo-tools/stream2segment/pkg/observability"
	"go.opencensus.io/stats"
	"go.opencensus.io/trace"
)

const (
	// DefaultChunkSize is used when Options.ChunkSize is not positive.
	DefaultChunkSize = 1000

	// lookupBatchSize bounds the number of bind parameters of the identity
	// lookup queries.
	lookupBatchSize = 500
)

// Options configure a Sync call.
type Options[T Record] struct {
	// Identity are the columns identifying a record in the table.
	Identity []string

	// Update are the columns written for records already stored. No update is
	// performed when empty.
	Update []string

	// ChunkSize is the number of records written per transaction. A failing
	// record rejects its whole chunk.
	ChunkSize int

	// DropDuplicates keeps only the first of the records sharing the same
	// identity. When false, duplicates are written independently and may end
	// up with different outcomes.
	DropDuplicates bool

	// OnDuplicates receives the records dropped by DropDuplicates.
	OnDuplicates func(rows []T)
	// OnInsertError receives the records of each rejected insert chunk.
	OnInsertError func(rows []T, err error)
	// OnUpdateError receives the records of each rejected update chunk.
	OnUpdateError func(rows []T, err error)
}

// Result holds the counts of a Sync call. Dropped duplicates count as not
// inserted.
type Result struct {
	Inserted    int
	NotInserted int
	Updated     int
	NotUpdated  int
}

// Add returns the sum of r and o.
func (r Result) Add(o Result) Result {
	return Result{
		Inserted:    r.Inserted + o.Inserted,
		NotInserted: r.NotInserted + o.NotInserted,
		Updated:     r.Updated + o.Updated,
		NotUpdated:  r.NotUpdated + o.NotUpdated,
	}
}

type rowState int

const (
	stateToInsert rowState = iota
	stateToUpdate
	statePersisted
	stateRejected
)

// Sync writes rows to their table. Records matching a stored row on the
// identity columns get its primary key; the others get new keys, increasing
// in row order from the table maximum, and are inserted. Writes happen in
// chunks of ChunkSize records, each in its own transaction: a failing chunk
// is rolled back, reported to the callbacks and left out of the returned
// records, while previous chunks stay committed.
//
// The returned records keep the input order and all have a primary key.
// Cancelling ctx aborts the sync with an error; counts of the chunks written
// so far are still returned.
func Sync[T Record](ctx context.Context, db *database.DB, rows []T, opts Options[T]) (Result, []T, error) {
	var res Result
	if len(rows) == 0 {
		return res, nil, nil
	}
	if len(opts.Identity) == 0 {
		return res, nil, errors.New("dbsync: no identity columns")
	}

	tableName := rows[0].Table()
	ctx, span := trace.StartSpan(ctx, "dbsync.Sync")
	defer span.End()
	span.AddAttributes(trace.StringAttribute("table", tableName), trace.Int64Attribute("rows", int64(len(rows))))

	start := time.Now()
	defer func() {
		observability.RecordLatency(ctx, start, mSyncLatencyMs, observability.WithTable(tableName))
	}()

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = identityKey(values(r, opts.Identity))
	}

	states := make([]rowState, len(rows))
	if opts.DropDuplicates {
		seen := make(map[string]struct{}, len(rows))
		var dups []T
		for i := range rows {
			if _, ok := seen[keys[i]]; ok {
				states[i] = stateRejected
				dups = append(dups, rows[i])
				continue
			}
			seen[keys[i]] = struct{}{}
		}
		res.NotInserted += len(dups)
		if len(dups) > 0 && opts.OnDuplicates != nil {
			opts.OnDuplicates(dups)
		}
	}

	stored, err := lookupIdentities(ctx, db, tableName, opts.Identity, rows, states)
	if err != nil {
		span.SetStatus(trace.Status{Code: trace.StatusCodeInternal, Message: err.Error()})
		return res, nil, fmt.Errorf("looking up %s identities: %w", tableName, err)
	}

	maxID, err := maxPrimaryKey(ctx, db, tableName)
	if err != nil {
		span.SetStatus(trace.Status{Code: trace.StatusCodeInternal, Message: err.Error()})
		return res, nil, fmt.Errorf("reading max id of %s: %w", tableName, err)
	}

	var toInsert, toUpdate []int
	for i, r := range rows {
		if states[i] == stateRejected {
			continue
		}
		if id, ok := stored[keys[i]]; ok {
			r.SetPrimaryKey(id)
			if len(opts.Update) > 0 {
				states[i] = stateToUpdate
				toUpdate = append(toUpdate, i)
			} else {
				states[i] = statePersisted
			}
			continue
		}
		maxID++
		r.SetPrimaryKey(maxID)
		states[i] = stateToInsert
		toInsert = append(toInsert, i)
	}

	columns := rows[0].Columns()
	insertSQL := fmt.Sprintf("INSERT INTO %s (id, %s) VALUES (%s)",
		tableName, strings.Join(columns, ", "), database.Placeholders(len(columns)+1))
	insertArgs := func(r T) []any {
		return append([]any{r.PrimaryKey()}, values(r, columns)...)
	}

	ok, failed, err := writeChunks(ctx, db, insertSQL, rows, toInsert, chunkSize, states, insertArgs, opts.OnInsertError)
	res.Inserted += ok
	res.NotInserted += failed
	if err != nil {
		span.SetStatus(trace.Status{Code: writeStatus(ctx), Message: err.Error()})
		recordResult(ctx, tableName, res)
		return res, nil, err
	}

	if len(toUpdate) > 0 {
		sets := make([]string, 0, len(opts.Update))
		for _, c := range opts.Update {
			sets = append(sets, c+" = ?")
		}
		updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", tableName, strings.Join(sets, ", "))
		updateArgs := func(r T) []any {
			return append(values(r, opts.Update), r.PrimaryKey())
		}

		ok, failed, err := writeChunks(ctx, db, updateSQL, rows, toUpdate, chunkSize, states, updateArgs, opts.OnUpdateError)
		res.Updated += ok
		res.NotUpdated += failed
		if err != nil {
			span.SetStatus(trace.Status{Code: writeStatus(ctx), Message: err.Error()})
			recordResult(ctx, tableName, res)
			return res, nil, err
		}
	}

	out := make([]T, 0, len(rows))
	for i, r := range rows {
		if states[i] == statePersisted {
			out = append(out, r)
		}
	}

	recordResult(ctx, tableName, res)
	logging.FromContext(ctx).Named("dbsync").Debugw("synced table",
		"table", tableName, "inserted", res.Inserted, "not_inserted", res.NotInserted,
		"updated", res.Updated, "not_updated", res.NotUpdated)
	return res, out, nil
}

// writeChunks executes query once per row of each chunk of idx inside a
// transaction. It returns the number of rows written and rejected. A chunk
// failing on a constraint violation is rejected and the next chunk is
// written; any other error stops the write and is returned.
func writeChunks[T Record](ctx context.Context, db *database.DB, query string, rows []T, idx []int,
	chunkSize int, states []rowState, args func(T) []any, onErr func([]T, error)) (int, int, error) {
	var ok, failed int
	query = db.Dialect().Rebind(query)

	for start := 0; start < len(idx); start += chunkSize {
		end := start + chunkSize
		if end > len(idx) {
			end = len(idx)
		}
		chunk := idx[start:end]

		err := db.InTx(ctx, sql.LevelReadCommitted, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, query)
			if err != nil {
				return err
			}
			defer stmt.Close()

			for _, i := range chunk {
				if _, err := stmt.ExecContext(ctx, args(rows[i])...); err != nil {
					return err
				}
			}
			return nil
		})

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ok, failed, fmt.Errorf("sync aborted: %w", ctxErr)
			}
			if !database.IsConstraintViolation(err) {
				return ok, failed, fmt.Errorf("writing %s: %w", rows[chunk[0]].Table(), err)
			}

			rejected := make([]T, 0, len(chunk))
			for _, i := range chunk {
				states[i] = stateRejected
				rejected = append(rejected, rows[i])
			}
			failed += len(chunk)
			if onErr != nil {
				onErr(rejected, err)
			}
			continue
		}

		for _, i := range chunk {
			states[i] = statePersisted
		}
		ok += len(chunk)
	}
	return ok, failed, nil
}

func writeStatus(ctx context.Context) int32 {
	if ctx.Err() != nil {
		return trace.StatusCodeCancelled
	}
	return trace.StatusCodeInternal
}

func values[T Record](r T, columns []string) []any {
	vals := make([]any, len(columns))
	for i, c := range columns {
		vals[i] = r.Value(c)
	}
	return vals
}

// lookupIdentities returns the primary keys of the stored rows matching the
// identity of any of the rows not already rejected, keyed by identityKey.
func lookupIdentities[T Record](ctx context.Context, db *database.DB, tableName string, identity []string,
	rows []T, states []rowState) (map[string]int64, error) {
	first := identity[0]

	// Filter on the distinct values of the first identity column.
	var (
		filter  []any
		hasNull bool
		seen    = make(map[string]struct{})
	)
	for i, r := range rows {
		if states[i] == stateRejected {
			continue
		}
		v := r.Value(first)
		if normalize(v) == nil {
			hasNull = true
			continue
		}
		k := identityKey([]any{v})
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		filter = append(filter, v)
	}

	selectSQL := fmt.Sprintf("SELECT id, %s FROM %s WHERE ", strings.Join(identity, ", "), tableName)
	stored := make(map[string]int64)

	scan := func(query string, args ...any) error {
		dbRows, err := db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer dbRows.Close()

		for dbRows.Next() {
			var id int64
			vals := make([]any, len(identity))
			dest := make([]any, 0, len(identity)+1)
			dest = append(dest, &id)
			for i := range vals {
				dest = append(dest, &vals[i])
			}
			if err := dbRows.Scan(dest...); err != nil {
				return err
			}
			stored[identityKey(vals)] = id
		}
		return dbRows.Err()
	}

	for start := 0; start < len(filter); start += lookupBatchSize {
		end := start + lookupBatchSize
		if end > len(filter) {
			end = len(filter)
		}
		batch := filter[start:end]
		q := selectSQL + fmt.Sprintf("%s IN (%s)", first, database.Placeholders(len(batch)))
		if err := scan(q, batch...); err != nil {
			return nil, err
		}
	}
	if hasNull {
		if err := scan(selectSQL + first + " IS NULL"); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

func maxPrimaryKey(ctx context.Context, db *database.DB, tableName string) (int64, error) {
	var maxID sql.NullInt64
	if err := db.QueryRow(ctx, fmt.Sprintf("SELECT MAX(id) FROM %s", tableName)).Scan(&maxID); err != nil {
		return 0, err
	}
	return maxID.Int64, nil
}

func recordResult(ctx context.Context, tableName string, res Result) {
	_ = stats.RecordWithTags(ctx, tagsFor(tableName),
		mInserted.M(int64(res.Inserted)),
		mNotInserted.M(int64(res.NotInserted)),
		mUpdated.M(int64(res.Updated)),
		mNotUpdated.M(int64(res.NotUpdated)))
}
