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

// Package downloadstats aggregates the segments of one or more download runs
// by data-center and download code, and renders them as text tables.
package downloadstats

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Download codes not defined by HTTP.
const (
	// CodeURLError is a generic URL error (timeout, no connection...).
	CodeURLError int64 = -1
	// CodeMSeedError is a response whose data is not valid MiniSeed.
	CodeMSeedError int64 = -2
	// CodeTimeSpanError is a response entirely outside the requested window.
	CodeTimeSpanError int64 = -204
	// CodeTimeSpanWarning is a response partially outside the requested
	// window. Only the data inside it was saved.
	CodeTimeSpanWarning int64 = -200
	// CodeGapsOverlaps is a 200 response whose data has gaps or overlaps.
	// It is never stored and only derived when reporting.
	CodeGapsOverlaps int64 = -2000
)

// Code is the download code of a segment. The zero value is NotFound, the
// code of a segment missing from an otherwise successful response.
type Code struct {
	value int64
	valid bool
}

// NotFound is the code of the segments with no stored download code.
var NotFound = Code{}

// HTTPCode returns the Code of the given numeric value.
func HTTPCode(v int64) Code {
	return Code{value: v, valid: true}
}

// Value returns the numeric code. ok is false for NotFound.
func (c Code) Value() (v int64, ok bool) {
	return c.value, c.valid
}

func (c Code) String() string {
	if !c.valid {
		return "null"
	}
	return strconv.FormatInt(c.value, 10)
}

// Classify returns the reporting code of a stored download code.
func Classify(code *int64, hasGaps bool) Code {
	if code == nil {
		return NotFound
	}
	if *code == http.StatusOK && hasGaps {
		return HTTPCode(CodeGapsOverlaps)
	}
	return HTTPCode(*code)
}

func (c Code) known() bool {
	if !c.valid {
		return true
	}
	switch c.value {
	case CodeURLError, CodeMSeedError, CodeTimeSpanError, CodeTimeSpanWarning, CodeGapsOverlaps:
		return true
	}
	return http.StatusText(int(c.value)) != ""
}

// Title is the column title of the code in the rendered table.
func (c Code) Title() string {
	if !c.valid {
		return "Segment Not Found"
	}
	switch c.value {
	case CodeURLError:
		return "Url Error"
	case CodeMSeedError:
		return "MSeed Error"
	case CodeTimeSpanError:
		return "Time Span Error"
	case CodeTimeSpanWarning:
		return "OK Partially Saved"
	case CodeGapsOverlaps:
		return "OK Gaps Overlaps"
	}
	if text := http.StatusText(int(c.value)); text != "" {
		return text
	}
	return fmt.Sprintf("Unknown %d", c.value)
}

// Legend describes the code below the rendered table.
func (c Code) Legend() string {
	title := c.Title()
	if !c.valid {
		return title + ": Response OK, but segment data not found (e.g., after a multi-segment request)"
	}
	switch c.value {
	case CodeURLError:
		return title + ": Generic Url error (e.g., timeout, no internet connection, ...)"
	case CodeMSeedError:
		return title + ": Response OK, but data cannot be read as MiniSeed"
	case CodeTimeSpanError:
		return title + ": Response OK, but data completely outside requested time span"
	case CodeTimeSpanWarning:
		return title + ": Response OK, data saved partially: some received data chunks where completely outside requested time span"
	case CodeGapsOverlaps:
		return title + ": Data saved (download ok, data has gaps or overlaps)"
	}
	if !c.known() {
		return fmt.Sprintf("%s: Non-standard response, unknown message (code=%d)", title, c.value)
	}
	return fmt.Sprintf("%s: Standard response message indicating %s (code=%d)", title, codeClass(c.value), c.value)
}

func codeClass(code int64) string {
	switch code / 100 {
	case 1:
		return "Informational response"
	case 2:
		return "Success"
	case 3:
		return "Redirection"
	case 4:
		return "Client error"
	case 5:
		return "Server error"
	}
	return "Unknown status"
}

// sortRank orders the codes: 200 first, then the gaps/overlaps and partially
// saved codes, then the known codes ascending, then the unknown ones, and
// NotFound last.
func sortRank(c Code) (int, int64) {
	switch {
	case !c.valid:
		return 5, 0
	case c.value == http.StatusOK:
		return 0, 0
	case c.value == CodeGapsOverlaps:
		return 1, 0
	case c.value == CodeTimeSpanWarning:
		return 2, 0
	case c.known():
		return 3, c.value
	}
	return 4, c.value
}

// SortCodes sorts codes in table order.
func SortCodes(codes []Code) {
	sort.Slice(codes, func(i, j int) bool {
		ri, vi := sortRank(codes[i])
		rj, vj := sortRank(codes[j])
		if ri != rj {
			return ri < rj
		}
		return vi < vj
	})
}

// Stats counts segments by data-center label and code. The zero value is
// not usable, call New.
type Stats struct {
	counts map[string]map[Code]int64
}

// New returns empty Stats.
func New() *Stats {
	return &Stats{counts: make(map[string]map[Code]int64)}
}

// Add adds n segments with the given code to the row of label.
func (s *Stats) Add(label string, code Code, n int64) {
	row, ok := s.counts[label]
	if !ok {
		row = make(map[Code]int64)
		s.counts[label] = row
	}
	row[code] += n
}

// Count returns the number of segments of label with the given code.
func (s *Stats) Count(label string, code Code) int64 {
	return s.counts[label][code]
}

// Total returns the number of segments counted.
func (s *Stats) Total() int64 {
	var total int64
	for _, row := range s.counts {
		for _, n := range row {
			total += n
		}
	}
	return total
}

// Empty reports whether no segment was counted.
func (s *Stats) Empty() bool {
	for _, row := range s.counts {
		if len(row) > 0 {
			return false
		}
	}
	return true
}

// Merge returns new Stats holding the sum of s and other. Neither is
// modified.
func (s *Stats) Merge(other *Stats) *Stats {
	merged := New()
	for _, src := range []*Stats{s, other} {
		if src == nil {
			continue
		}
		for label, row := range src.counts {
			for code, n := range row {
				merged.Add(label, code, n)
			}
		}
	}
	return merged
}

// Labels returns the non empty row labels, sorted.
func (s *Stats) Labels() []string {
	labels := make([]string, 0, len(s.counts))
	for label, row := range s.counts {
		if len(row) > 0 {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

// Codes returns the codes found, in table order.
func (s *Stats) Codes() []Code {
	seen := make(map[Code]struct{})
	codes := make([]Code, 0, 8)
	for _, row := range s.counts {
		for code := range row {
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	SortCodes(codes)
	return codes
}

// MarshalJSON encodes the stats as {label: {code: count}}, with NotFound
// encoded as "null".
func (s *Stats) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]int64, len(s.counts))
	for label, row := range s.counts {
		if len(row) == 0 {
			continue
		}
		r := make(map[string]int64, len(row))
		for code, n := range row {
			r[code.String()] = n
		}
		out[label] = r
	}
	return json.Marshal(out)
}

// String renders a table with a column per code and a row per label, plus
// the TOTAL row and column, followed by the description of each column. It
// returns "" when s is empty.
func (s *Stats) String() string {
	codes := s.Codes()
	labels := s.Labels()
	if len(codes) == 0 || len(labels) == 0 {
		return ""
	}

	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	titles := make([]string, 0, len(codes)+1)
	for _, c := range codes {
		titles = append(titles, c.Title())
	}
	titles = append(titles, "TOTAL")
	table.SetHeader(stackWords("", titles))

	totals := make([]int64, len(codes)+1)
	for _, label := range labels {
		row := make([]string, 0, len(codes)+2)
		row = append(row, label)
		var rowTotal int64
		for i, c := range codes {
			n := s.counts[label][c]
			totals[i] += n
			rowTotal += n
			row = append(row, strconv.FormatInt(n, 10))
		}
		totals[len(codes)] += rowTotal
		row = append(row, strconv.FormatInt(rowTotal, 10))
		table.Append(row)
	}
	footer := make([]string, 0, len(totals)+1)
	footer = append(footer, "TOTAL")
	for _, n := range totals {
		footer = append(footer, strconv.FormatInt(n, 10))
	}
	table.Append(footer)
	table.Render()

	legend := make([]string, 0, len(codes))
	for _, c := range codes {
		legend = append(legend, c.Legend())
	}
	return strings.TrimRight(b.String(), "\n") + "\n\nCOLUMNS DETAILS:\n - " + strings.Join(legend, "\n - ")
}

// stackWords puts each word of the titles on its own line, bottom aligned,
// so that columns are as narrow as their longest word.
func stackWords(first string, titles []string) []string {
	words := make([][]string, len(titles))
	height := 0
	for i, t := range titles {
		words[i] = strings.Fields(t)
		if len(words[i]) > height {
			height = len(words[i])
		}
	}
	header := make([]string, 0, len(titles)+1)
	header = append(header, strings.Repeat("\n", height-1)+first)
	for _, w := range words {
		header = append(header, strings.Repeat("\n", height-len(w))+strings.Join(w, "\n"))
	}
	return header
}
