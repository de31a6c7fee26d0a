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

package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seismo-tools/stream2segment/pkg/database"
)

func TestServer(t *testing.T) {
	t.Parallel()

	srv, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if srv.Port() == "" || srv.Port() == "0" {
		t.Fatalf("expected a random port, got %q", srv.Port())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.ServeHTTPHandler(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "hello")
		}))
	}()

	resp, err := http.Get("http://127.0.0.1:" + srv.Port())
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if got, want := string(body), "hello"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHandleHealthz(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, _ := database.NewTestSQLite(t)
	handler := HandleHealthz(db)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil).WithContext(ctx))
	if got, want := w.Code, http.StatusOK; got != want {
		t.Errorf("expected %d, got %d", want, got)
	}
	if got, want := w.Body.String(), `{"status": "ok"}`; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	// The first request consumed the ping token: a closed database is only
	// noticed once the limiter allows a new ping.
	db.Close(ctx)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got, want := w.Code, http.StatusOK; got != want {
		t.Errorf("expected %d from the limited ping, got %d", want, got)
	}

	time.Sleep(1100 * time.Millisecond)
	for i := 0; i < 2; i++ {
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if got, want := w.Code, http.StatusServiceUnavailable; got != want {
			t.Errorf("request %d: expected %d, got %d", i, want, got)
		}
		if got, want := w.Body.String(), `{"status": "unavailable"}`; got != want {
			t.Errorf("request %d: expected %q, got %q", i, want, got)
		}
	}
}
