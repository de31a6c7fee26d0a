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

package project

import "testing"

func TestTrim(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		in          string
		space       string
		nonPrinting string
	}{
		{"byte_order_mark", "\uFEFFhttp://eida.org/fdsnws/station/1/query", "http://eida.org/fdsnws/station/1/query", "http://eida.org/fdsnws/station/1/query"},
		{"spaces", " GE * * * 2010-01-01T00:00:00  \r\t", "GE * * * 2010-01-01T00:00:00", "GE * * * 2010-01-01T00:00:00"},
		{"control_chars", "\x00GE APE\x07", "\x00GE APE\x07", "GE APE"},
		{"inner_kept", "GE\tAPE", "GE\tAPE", "GE\tAPE"},
		{"empty", "\uFEFF ", "", ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := TrimSpace(tc.in); got != tc.space {
				t.Errorf("TrimSpace: want %q, got %q", tc.space, got)
			}
			if got := TrimSpaceAndNonPrintable(tc.in); got != tc.nonPrinting {
				t.Errorf("TrimSpaceAndNonPrintable: want %q, got %q", tc.nonPrinting, got)
			}
		})
	}
}
