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

// Package render writes buffered HTTP responses.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/hashicorp/go-multierror"
)

const (
	jsonOK       = `{"ok":true}`
	jsonErrorFmt = `{"error":%q}`
)

// Renderer renders responses through pooled buffers, so that a failed
// rendering never sends a partial body.
type Renderer struct {
	pool *sync.Pool
}

// NewRenderer returns an instantiated renderer.
func NewRenderer() *Renderer {
	return &Renderer{
		pool: &sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 1024))
			},
		},
	}
}

type errorResponse struct {
	Error  string   `json:"error,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// RenderJSON renders data as JSON with the given status code. Nil data
// renders {"ok":true} for 2xx codes and {"error":"<status text>"} otherwise.
// Errors render as {"error":"..."}, and multierrors as {"errors":[...]}.
func (r *Renderer) RenderJSON(w http.ResponseWriter, code int, data interface{}) {
	if data == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code >= 200 && code < 300 {
			fmt.Fprint(w, jsonOK)
			return
		}
		fmt.Fprintf(w, jsonErrorFmt, http.StatusText(code))
		return
	}

	switch typ := data.(type) {
	case *multierror.Error:
		resp := &errorResponse{}
		for _, err := range typ.WrappedErrors() {
			resp.Errors = append(resp.Errors, err.Error())
		}
		data = resp
	case error:
		data = &errorResponse{Error: typ.Error()}
	}

	r.render(w, code, "application/json", func(b io.Writer) error {
		return json.NewEncoder(b).Encode(data)
	})
}

// RenderText renders the output of write as plain text with the given status
// code.
func (r *Renderer) RenderText(w http.ResponseWriter, code int, write func(io.Writer) error) {
	r.render(w, code, "text/plain; charset=utf-8", write)
}

func (r *Renderer) render(w http.ResponseWriter, code int, contentType string, write func(io.Writer) error) {
	b := r.pool.Get().(*bytes.Buffer)
	b.Reset()
	defer r.pool.Put(b)

	if err := write(b); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, jsonErrorFmt, http.StatusText(http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	_, _ = b.WriteTo(w)
}
