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

// Package dbsync reconciles candidate records with the rows already stored
// in a table: it attaches the primary keys of known records, inserts the new
// ones and optionally updates the known ones, chunk by chunk.
package dbsync

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is a row of a database table with an application assigned integer
// primary key named "id".
type Record interface {
	// Table returns the database table name. It is also called on the zero
	// value of the record type.
	Table() string
	// Columns returns the persisted columns, excluding "id".
	Columns() []string
	// Value returns the value of column, nil for NULL.
	Value(column string) any
	PrimaryKey() int64
	SetPrimaryKey(id int64)
}

// identityKey builds a comparable key from the values of a row. NULL equals
// NULL, numbers compare by value regardless of their Go type and times
// compare in UTC at microsecond precision.
func identityKey(values []any) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		switch x := normalize(v).(type) {
		case nil:
			b.WriteString("N")
		case string:
			b.WriteString("s")
			b.WriteString(strconv.Quote(x))
		case float64:
			b.WriteString("n")
			b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		case time.Time:
			b.WriteString("t")
			b.WriteString(x.Format(time.RFC3339Nano))
		case bool:
			b.WriteString("b")
			b.WriteString(strconv.FormatBool(x))
		default:
			fmt.Fprintf(&b, "?%v", x)
		}
	}
	return b.String()
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *float64:
		if x == nil {
			return nil
		}
		return normalize(*x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return normalize(*x)
	case []byte:
		return string(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return normalize(float64(x))
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		return x
	case time.Time:
		return x.UTC().Truncate(time.Microsecond)
	}
	return v
}
