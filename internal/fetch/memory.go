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
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/procfs"
)

// ErrMemoryExceeded is matched by every *MemoryError.
var ErrMemoryExceeded = errors.New("memory overflow")

// MemoryError is returned when the memory guard stops a stream.
type MemoryError struct {
	Used      float64
	Threshold float64
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory overflow: %.2f%% (used) > %.2f%% (threshold)", e.Used, e.Threshold)
}

// Is makes errors.Is(err, ErrMemoryExceeded) match.
func (e *MemoryError) Is(target error) bool {
	return target == ErrMemoryExceeded
}

// MemoryProbe reports the memory used by the process.
type MemoryProbe interface {
	// Percent returns the resident memory of the process as a percentage of
	// the total system memory.
	Percent() (float64, error)
}

// describer is implemented by probes that can render the memory usage for
// the log line written when the guard trips.
type describer interface {
	Describe() string
}

// ProcMemoryProbe reads the process memory from procfs.
type ProcMemoryProbe struct {
	fs procfs.FS
}

// NewProcMemoryProbe returns a probe reading the default /proc mount point.
func NewProcMemoryProbe() (*ProcMemoryProbe, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	return &ProcMemoryProbe{fs: fs}, nil
}

// Percent implements MemoryProbe.
func (p *ProcMemoryProbe) Percent() (float64, error) {
	used, total, err := p.usage()
	if err != nil {
		return 0, err
	}
	return 100 * float64(used) / float64(total), nil
}

// Describe returns a human readable memory usage, for logs.
func (p *ProcMemoryProbe) Describe() string {
	used, total, err := p.usage()
	if err != nil {
		return "n/a"
	}
	return fmt.Sprintf("%s of %s", humanize.IBytes(used), humanize.IBytes(total))
}

func (p *ProcMemoryProbe) usage() (used, total uint64, err error) {
	self, err := p.fs.Self()
	if err != nil {
		return 0, 0, fmt.Errorf("reading process: %w", err)
	}
	stat, err := self.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("reading process stat: %w", err)
	}
	mem, err := p.fs.Meminfo()
	if err != nil {
		return 0, 0, fmt.Errorf("reading meminfo: %w", err)
	}
	if mem.MemTotal == nil || *mem.MemTotal == 0 {
		return 0, 0, errors.New("total memory not available")
	}
	// meminfo values are in kB.
	return uint64(stat.ResidentMemory()), *mem.MemTotal * 1024, nil
}
