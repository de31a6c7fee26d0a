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

import "time"

// Config configures a Fetcher.
type Config struct {
	// Workers bounds the number of concurrent requests.
	Workers int `env:"FETCH_WORKERS, default=8" yaml:"workers"`
	// Timeout applies to each request.
	Timeout time.Duration `env:"FETCH_TIMEOUT, default=2m" yaml:"timeout"`
	// BlockSize is the size of the reads of response bodies.
	BlockSize int `env:"FETCH_BLOCK_SIZE, default=1048576" yaml:"block_size"`
	// MaxMemPercent aborts a stream when the process uses more than this
	// percentage of the system memory. 0 or values >= 100 disable the check.
	MaxMemPercent float64 `env:"FETCH_MAX_MEM_PERCENT, default=90" yaml:"max_mem_percent"`
	// MemCheckEvery is the number of results between two memory checks.
	MemCheckEvery int `env:"FETCH_MEM_CHECK_EVERY, default=10" yaml:"mem_check_every"`

	// BreakerEnabled fails fast the requests to a host after BreakerFailures
	// consecutive transport or server errors.
	BreakerEnabled  bool          `env:"FETCH_BREAKER_ENABLED" yaml:"breaker_enabled"`
	BreakerFailures uint32        `env:"FETCH_BREAKER_FAILURES, default=5" yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `env:"FETCH_BREAKER_TIMEOUT, default=1m" yaml:"breaker_timeout"`
}

// DefaultConfig returns the configuration used when no environment is
// processed.
func DefaultConfig() *Config {
	return &Config{
		Workers:         8,
		Timeout:         2 * time.Minute,
		BlockSize:       1 << 20,
		MaxMemPercent:   90,
		MemCheckEvery:   10,
		BreakerFailures: 5,
		BreakerTimeout:  time.Minute,
	}
}

func (c *Config) workers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

func (c *Config) blockSize() int {
	if c.BlockSize <= 0 {
		return 1 << 20
	}
	return c.BlockSize
}

func (c *Config) memCheckEnabled() bool {
	return c.MaxMemPercent > 0 && c.MaxMemPercent < 100 && c.MemCheckEvery > 0
}
