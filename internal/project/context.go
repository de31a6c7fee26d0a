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

import (
	"context"
	"os"
	"testing"

	"github.com/seismo-tools/stream2segment/pkg/logging"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// TestContext returns a context carrying a test logger. The context is
// cancelled when the test ends.
func TestContext(tb testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	tb.Cleanup(cancel)
	return logging.WithLogger(ctx, TestLogger(tb))
}

// TestLogger returns a logger writing to the test output. Only warnings and
// errors are printed unless TEST_LOG_LEVEL says otherwise.
func TestLogger(tb testing.TB) *zap.SugaredLogger {
	level := zapcore.WarnLevel
	if v := os.Getenv("TEST_LOG_LEVEL"); v != "" {
		if err := level.Set(v); err != nil {
			tb.Fatalf("invalid TEST_LOG_LEVEL %q: %v", v, err)
		}
	}
	return zaptest.NewLogger(tb, zaptest.Level(level)).Sugar().Named(tb.Name())
}
