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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"

	"golang.org/x/time/rate"
)

// HandleHealthz returns a handler reporting whether the database is
// reachable. The endpoint is unauthenticated, so the database is pinged at
// most once per second; in between, the last result is served.
func HandleHealthz(db *database.DB) http.Handler {
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)

	var (
		mu      sync.Mutex
		lastErr error
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		mu.Lock()
		if limiter.Allow() {
			lastErr = db.Ping(ctx)
			if lastErr != nil {
				logging.FromContext(ctx).Named("healthz").Errorw("database ping failed", "error", lastErr)
			}
		}
		healthy := lastErr == nil
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status": "unavailable"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status": "ok"}`)
	})
}
