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

package download

import (
	"context"
	"errors"
	"fmt"

	"github.com/seismo-tools/stream2segment/pkg/logging"
)

// Kind tells how a download step ended.
type Kind int

const (
	// KindOK means the step produced data and the download goes on.
	KindOK Kind = iota
	// KindStoppedPolicy means the current settings legitimately yield no
	// data. The download stops without error.
	KindStoppedPolicy
	// KindStoppedError means the download failed.
	KindStoppedError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindStoppedPolicy:
		return "stopped"
	case KindStoppedError:
		return "error"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Outcome is the result of a download step. Steps return it instead of an
// error so that the reason of a stop reaches the process exit code.
type Outcome struct {
	Kind    Kind
	Message string
	Err     error
}

// OK returns the outcome of a successful step.
func OK() Outcome {
	return Outcome{Kind: KindOK}
}

// StopPolicy returns the outcome of a step whose settings yield no data.
func StopPolicy(format string, args ...any) Outcome {
	return Outcome{Kind: KindStoppedPolicy, Message: fmt.Sprintf(format, args...)}
}

// StopError returns the outcome of a failed step.
func StopError(err error) Outcome {
	if err == nil {
		err = errors.New("unknown error")
	}
	return Outcome{Kind: KindStoppedError, Message: err.Error(), Err: err}
}

// StopErrorf is StopError with a formatted message.
func StopErrorf(format string, args ...any) Outcome {
	return StopError(fmt.Errorf(format, args...))
}

// Stopped reports whether the download must not go on.
func (o Outcome) Stopped() bool {
	return o.Kind != KindOK
}

// ExitCode is the process exit code of a download ending with o.
func (o Outcome) ExitCode() int {
	if o.Kind == KindStoppedError {
		return 1
	}
	return 0
}

func (o Outcome) String() string {
	if o.Message == "" {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Message)
}

// Log writes the message of a stopped outcome: at error level for errors and
// at info level otherwise.
func (o Outcome) Log(ctx context.Context) {
	if o.Message == "" {
		return
	}
	logger := logging.FromContext(ctx).Named("download")
	if o.Kind == KindStoppedError {
		logger.Error(o.Message)
		return
	}
	logger.Info(o.Message)
}
