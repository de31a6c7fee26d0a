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

// Package errcmp compares errors with expected messages in tests.
package errcmp

import (
	"strings"
	"testing"
)

// Match reports a test error unless err contains want. An empty want expects
// a nil err.
func Match(tb testing.TB, err error, want string) bool {
	tb.Helper()

	switch {
	case err == nil && want == "":
		return true
	case err == nil:
		tb.Errorf("missing error, want: %q got: nil", want)
	case want == "":
		tb.Errorf("unexpected error: %v", err)
	case !strings.Contains(err.Error(), want):
		tb.Errorf("wrong error; want: %q got: %v", want, err)
	default:
		return true
	}
	return false
}

// MustMatch is Match, except it stops the test on a mismatch.
func MustMatch(tb testing.TB, err error, want string) {
	tb.Helper()

	if !Match(tb, err, want) {
		tb.FailNow()
	}
}
