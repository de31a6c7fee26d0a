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

package table

import (
	"strings"

	"github.com/seismo-tools/stream2segment/internal/project"
)

// RawTable is a parsed, untyped pipe delimited text table.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// ParsePipe parses a '|' delimited text block whose first non empty line is
// the header. A leading '#' on the header is ignored. Every row must have as
// many fields as the header: a ragged row fails the whole response.
func ParsePipe(text string) (*RawTable, error) {
	var raw *RawTable
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "|")
		for i, f := range fields {
			fields[i] = project.TrimSpace(f)
		}

		if raw == nil {
			fields[0] = strings.TrimSpace(strings.TrimPrefix(fields[0], "#"))
			raw = &RawTable{Header: fields}
			continue
		}

		if len(fields) != len(raw.Header) {
			return nil, malformedf("column length mismatch (line %d has %d fields, header has %d)",
				n+1, len(fields), len(raw.Header))
		}
		raw.Rows = append(raw.Rows, fields)
	}

	if raw == nil {
		return nil, malformedf("empty response")
	}
	if len(raw.Rows) == 0 {
		return nil, malformedf("no data rows")
	}
	return raw, nil
}
