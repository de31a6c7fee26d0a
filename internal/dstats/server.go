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

// Package dstats serves the download statistics over HTTP.
package dstats

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/seismo-tools/stream2segment/internal/downloadstats"
	"github.com/seismo-tools/stream2segment/internal/middleware"
	"github.com/seismo-tools/stream2segment/internal/serverenv"
	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
	"github.com/seismo-tools/stream2segment/pkg/render"
	"github.com/seismo-tools/stream2segment/pkg/server"
)

// Server hosts the download statistics endpoints.
type Server struct {
	config *Config
	db     *database.DB
	h      *render.Renderer
}

// NewServer makes a new stats server.
func NewServer(config *Config, env *serverenv.ServerEnv) (*Server, error) {
	if env.Database() == nil {
		return nil, fmt.Errorf("missing database in server environment")
	}

	return &Server{
		config: config,
		db:     env.Database(),
		h:      render.NewRenderer(),
	}, nil
}

// Routes defines and returns the routes for this server.
func (s *Server) Routes(ctx context.Context) *mux.Router {
	logger := logging.FromContext(ctx).Named("dstats")

	r := mux.NewRouter()
	r.Use(middleware.Recovery())
	r.Use(middleware.PopulateRequestID())
	r.Use(middleware.PopulateLogger(logger))

	r.Handle("/health", server.HandleHealthz(s.db)).Methods(http.MethodGet)
	r.Handle("/stats", s.handleStats()).Methods(http.MethodGet)
	r.Handle("/stats/{id:[0-9]+}.txt", s.handleRunText()).Methods(http.MethodGet)
	r.Handle("/stats/{id:[0-9]+}", s.handleRun()).Methods(http.MethodGet)

	return r
}

// handleStats answers the report of all the runs.
func (s *Server) handleStats() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		report, err := downloadstats.NewReport(ctx, s.db, nil, s.config.MaxGapThreshold)
		if err != nil {
			logging.FromContext(ctx).Errorw("failed to build report", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, nil)
			return
		}
		s.h.RenderJSON(w, http.StatusOK, report)
	})
}

func (s *Server) handleRun() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report, status := s.runReport(r)
		if report == nil {
			s.h.RenderJSON(w, status, nil)
			return
		}
		s.h.RenderJSON(w, http.StatusOK, report.Runs[0])
	})
}

func (s *Server) handleRunText() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report, status := s.runReport(r)
		if report == nil {
			http.Error(w, http.StatusText(status), status)
			return
		}

		s.h.RenderText(w, http.StatusOK, report.WriteText)
	})
}

// runReport builds the report of the run in the request path. It returns a
// nil report and the response status on failure.
func (s *Server) runReport(r *http.Request) (*downloadstats.Report, int) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return nil, http.StatusBadRequest
	}

	report, err := downloadstats.NewReport(ctx, s.db, []int64{id}, s.config.MaxGapThreshold)
	if err != nil {
		logger.Errorw("failed to build report", "download", id, "error", err)
		return nil, http.StatusInternalServerError
	}
	if len(report.Runs) == 0 {
		return nil, http.StatusNotFound
	}
	return report, http.StatusOK
}
