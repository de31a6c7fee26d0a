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

package render

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-multierror"
)

func TestRenderJSON(t *testing.T) {
	t.Parallel()

	var merr *multierror.Error
	merr = multierror.Append(merr, errors.New("one"), errors.New("two"))

	cases := []struct {
		name string
		code int
		data interface{}
		want string
	}{
		{"nil_ok", http.StatusOK, nil, `{"ok":true}`},
		{"nil_error", http.StatusNotFound, nil, `{"error":"Not Found"}`},
		{"data", http.StatusOK, map[string]int{"a": 1}, "{\"a\":1}\n"},
		{"error", http.StatusBadRequest, errors.New("bad id"), "{\"error\":\"bad id\"}\n"},
		{"multierror", http.StatusBadRequest, merr, "{\"errors\":[\"one\",\"two\"]}\n"},
		{"unencodable", http.StatusOK, map[string]interface{}{"f": func() {}}, `{"error":"Internal Server Error"}`},
	}

	r := NewRenderer()
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			r.RenderJSON(w, tc.code, tc.data)

			if got, want := w.Header().Get("Content-Type"), "application/json"; got != want {
				t.Errorf("expected content type %q, got %q", want, got)
			}
			if got := w.Body.String(); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRenderText(t *testing.T) {
	t.Parallel()

	r := NewRenderer()

	w := httptest.NewRecorder()
	r.RenderText(w, http.StatusOK, func(b io.Writer) error {
		_, err := fmt.Fprint(b, "table")
		return err
	})
	if got, want := w.Code, http.StatusOK; got != want {
		t.Errorf("expected %d, got %d", want, got)
	}
	if got, want := w.Body.String(), "table"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	w = httptest.NewRecorder()
	r.RenderText(w, http.StatusOK, func(b io.Writer) error {
		fmt.Fprint(b, "partial")
		return errors.New("boom")
	})
	if got, want := w.Code, http.StatusInternalServerError; got != want {
		t.Errorf("expected %d, got %d", want, got)
	}
	if got, want := w.Body.String(), `{"error":"Internal Server Error"}`; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
