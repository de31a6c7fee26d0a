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

package fetch

import (
	"context"
	"sync"

	"go.opencensus.io/stats"
	"go.opencensus.io/trace"
	"go.uber.org/zap"
)

// Stream yields the results of a Read in completion order. It is not safe
// for concurrent use.
type Stream struct {
	parent  context.Context
	cancel  context.CancelFunc
	results chan Result
	span    *trace.Span
	logger  *zap.SugaredLogger

	probe      MemoryProbe
	checkEvery int
	threshold  float64

	count     int
	err       error
	closed    bool
	closeOnce sync.Once
}

// Next returns the next result. It returns false when all results were
// returned, the stream was closed or the memory guard tripped; Err tells
// them apart.
func (s *Stream) Next() (Result, bool) {
	if s.closed || s.err != nil {
		return Result{}, false
	}

	res, ok := <-s.results
	if !ok {
		if err := s.parent.Err(); err != nil {
			s.err = err
		}
		return Result{}, false
	}

	s.count++
	if s.probe != nil && s.count%s.checkEvery == 0 {
		used, err := s.probe.Percent()
		if err != nil {
			s.logger.Debugw("memory check failed", "error", err)
		} else if used > s.threshold {
			s.err = &MemoryError{Used: used, Threshold: s.threshold}
			fields := []any{"used", used, "threshold", s.threshold}
			if d, ok := s.probe.(describer); ok {
				fields = append(fields, "memory", d.Describe())
			}
			s.logger.Warnw("memory guard tripped, stopping downloads", fields...)
			stats.Record(s.parent, mMemoryGuardTrips.M(1))
			s.Close()
			return Result{}, false
		}
	}
	return res, true
}

// Err returns the error that stopped the stream: a *MemoryError or the
// error of the Read context.
func (s *Stream) Err() error {
	return s.err
}

// Close stops dispatching requests, cancels the in flight ones and waits for
// every worker to return. It is safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.closed = true
		s.cancel()
		for range s.results {
		}
		if s.err != nil {
			s.span.SetStatus(trace.Status{Code: trace.StatusCodeAborted, Message: s.err.Error()})
		}
		s.span.End()
	})
}
