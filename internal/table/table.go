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

// Package table implements a typed, column ordered table of rows used to
// carry data-center responses between parsing and persistence.
package table

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Type is the semantic type of a column.
type Type int

const (
	String Type = iota
	Int
	Float
	Time
	Bool
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Time:
		return "time"
	case Bool:
		return "bool"
	}
	return "unknown"
}

// Column describes a table column. Rows never hold a nil value in a Required
// column.
type Column struct {
	Name     string
	Type     Type
	Required bool
}

// Table is an ordered collection of rows with named, typed columns. Values
// are nil (NULL) or string, int64, float64, time.Time or bool according to the
// column type.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the column names.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// Value returns the value of the named column at the given row, nil when the
// value is NULL or the column does not exist.
func (t *Table) Value(row int, name string) any {
	i := t.Index(name)
	if i < 0 {
		return nil
	}
	return t.Rows[row][i]
}

// Str returns the string value of the named column, "" for NULL.
func (t *Table) Str(row int, name string) string {
	s, _ := t.Value(row, name).(string)
	return s
}

// StrPtr returns the string value of the named column, nil for NULL.
func (t *Table) StrPtr(row int, name string) *string {
	s, ok := t.Value(row, name).(string)
	if !ok {
		return nil
	}
	return &s
}

// Float returns the float value of the named column, 0 for NULL.
func (t *Table) Float(row int, name string) float64 {
	f, _ := t.Value(row, name).(float64)
	return f
}

// FloatPtr returns the float value of the named column, nil for NULL.
func (t *Table) FloatPtr(row int, name string) *float64 {
	f, ok := t.Value(row, name).(float64)
	if !ok {
		return nil
	}
	return &f
}

// Time returns the time value of the named column, the zero time for NULL.
func (t *Table) Time(row int, name string) time.Time {
	v, _ := t.Value(row, name).(time.Time)
	return v
}

// TimePtr returns the time value of the named column, nil for NULL.
func (t *Table) TimePtr(row int, name string) *time.Time {
	v, ok := t.Value(row, name).(time.Time)
	if !ok {
		return nil
	}
	return &v
}

// Select returns a table with only the named columns, in the given order.
// Unknown names are skipped.
func (t *Table) Select(names ...string) *Table {
	idx := make([]int, 0, len(names))
	out := &Table{}
	for _, n := range names {
		if i := t.Index(n); i >= 0 {
			idx = append(idx, i)
			out.Columns = append(out.Columns, t.Columns[i])
		}
	}
	out.Rows = make([][]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := make([]any, 0, len(idx))
		for _, i := range idx {
			row = append(row, r[i])
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Head returns a table with at most the first n rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Append adds a row. It panics if the row length differs from the number of
// columns.
func (t *Table) Append(row ...any) {
	if len(row) != len(t.Columns) {
		panic(fmt.Sprintf("table: appending %d values to %d columns", len(row), len(t.Columns)))
	}
	t.Rows = append(t.Rows, row)
}

// Write renders the table as aligned text on w.
func (t *Table) Write(w io.Writer) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(t.Names())
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetBorder(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, r := range t.Rows {
		cells := make([]string, 0, len(r))
		for _, v := range r {
			cells = append(cells, FormatValue(v))
		}
		tw.Append(cells)
	}
	tw.Render()
}

func (t *Table) String() string {
	var b strings.Builder
	t.Write(&b)
	return b.String()
}

// FormatValue formats a table value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05.999999")
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}
