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

package observability

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

var (
	// ResultTagKey contains a free format text describing the result of the
	// operation. Preferably ALL CAPS WITH UNDERSCORE.
	// OK indicating a successful operation.
	ResultTagKey = tag.MustNewKey("result")

	// TableTagKey is the database table a write operation targets.
	TableTagKey = tag.MustNewKey("table")
)

var (
	// ResultOK add a tag indicating the operation is a success.
	ResultOK = tag.Upsert(ResultTagKey, "OK")
	// ResultNotOK add a tag indicating the operation is a failure.
	ResultNotOK = ResultError("NOT_OK")
)

// ResultError returns a mutator tagging the result with the given text.
func ResultError(result string) tag.Mutator {
	return tag.Upsert(ResultTagKey, result)
}

// WithTable returns a mutator tagging the database table.
func WithTable(table string) tag.Mutator {
	return tag.Upsert(TableTagKey, table)
}

// RecordLatency records the milliseconds elapsed since start on m.
func RecordLatency(ctx context.Context, start time.Time, m *stats.Float64Measure, mutators ...tag.Mutator) {
	// Calculate the millisecond number as float64. time.Duration.Millisecond()
	// returns an integer.
	latency := float64(time.Since(start)) / float64(time.Millisecond)
	_ = stats.RecordWithTags(ctx, mutators, m.M(latency))
}
