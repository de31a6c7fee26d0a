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

// Package middleware defines the http middlewares of the stats server.
package middleware

import (
	"net/http"
	"time"

	"github.com/seismo-tools/stream2segment/pkg/logging"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// PopulateLogger puts in the request context a logger annotated with the
// request method, path and ID, and logs each served request at debug level.
// A non default logger already in the context is preferred over base.
func PopulateLogger(base *zap.SugaredLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			logger := base
			if existing := logging.FromContext(ctx); existing != logging.DefaultLogger() {
				logger = existing
			}
			fields := []interface{}{"method", r.Method, "path", r.URL.Path}
			if id := RequestIDFromContext(ctx); id != "" {
				fields = append(fields, "request_id", id)
			}
			logger = logger.With(fields...)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.Clone(logging.WithLogger(ctx, logger)))

			logger.Debugw("served request", "status", rec.status, "duration", time.Since(start))
		})
	}
}
