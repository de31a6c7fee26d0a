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

package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest"
	"github.com/ory/dockertest/docker"
	"github.com/sethvargo/go-retry"
)

const (
	testDatabaseUser     = "s2s-test"
	testDatabasePassword = "s2s-test-password"

	// defaultPostgresImageRef is overridden by CI_POSTGRES_IMAGE.
	defaultPostgresImageRef = "postgres:13-alpine"
)

// NewTestSQLite creates a migrated sqlite database in a temporary directory
// owned by tb. The database is closed when the test finishes.
func NewTestSQLite(tb testing.TB) (*DB, *Config) {
	tb.Helper()

	ctx := context.Background()
	config := &Config{
		Driver: DriverSQLite,
		Path:   filepath.Join(tb.TempDir(), "test.sqlite"),
	}

	if err := Migrate(ctx, config, false); err != nil {
		tb.Fatalf("failed to migrate sqlite database: %s", err)
	}

	db, err := NewFromEnv(ctx, config)
	if err != nil {
		tb.Fatalf("failed to open sqlite database: %s", err)
	}
	tb.Cleanup(func() {
		db.Close(context.Background())
	})
	return db, config
}

// TestInstance is a postgres server running in a docker container. Each test
// gets its own freshly migrated database on it.
type TestInstance struct {
	pool      *dockertest.Pool
	container *dockertest.Resource
	config    *Config

	admin     *sql.DB
	adminLock sync.Mutex

	skipReason string
}

// MustTestInstance is NewTestInstance, except it prints errors to stderr and
// calls os.Exit. It is meant to be called from TestMain.
func MustTestInstance() *TestInstance {
	instance, err := NewTestInstance()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	return instance
}

// NewTestInstance starts a postgres container. Postgres tests are skipped in
// -short mode, when SKIP_DATABASE_TESTS is set or when no docker daemon is
// reachable.
func NewTestInstance() (*TestInstance, error) {
	// Querying for -short requires flags to be parsed.
	if !flag.Parsed() {
		flag.Parse()
	}
	if testing.Short() {
		return &TestInstance{skipReason: "skipping postgres tests (-short flag provided)"}, nil
	}
	if skip, _ := strconv.ParseBool(os.Getenv("SKIP_DATABASE_TESTS")); skip {
		return &TestInstance{skipReason: "skipping postgres tests (SKIP_DATABASE_TESTS is set)"}, nil
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("failed to create docker pool: %w", err)
	}
	if err := pool.Client.Ping(); err != nil {
		return &TestInstance{skipReason: fmt.Sprintf("skipping postgres tests (docker unavailable: %s)", err)}, nil
	}

	ref := os.Getenv("CI_POSTGRES_IMAGE")
	if ref == "" {
		ref = defaultPostgresImageRef
	}
	repository, tag, ok := strings.Cut(ref, ":")
	if !ok {
		return nil, fmt.Errorf("invalid reference for database container: %q", ref)
	}

	container, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: repository,
		Tag:        tag,
		Env: []string{
			"LANG=C",
			"POSTGRES_DB=postgres",
			"POSTGRES_USER=" + testDatabaseUser,
			"POSTGRES_PASSWORD=" + testDatabasePassword,
		},
	}, func(c *docker.HostConfig) {
		c.AutoRemove = true
		c.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start database container: %w", err)
	}
	// Never outlive a crashed test binary for long.
	if err := container.Expire(120); err != nil {
		return nil, fmt.Errorf("failed to expire database container: %w", err)
	}

	host, port, err := net.SplitHostPort(container.GetHostPort("5432/tcp"))
	if err != nil {
		return nil, fmt.Errorf("failed to split host/port: %w", err)
	}
	config := &Config{
		Driver:   DriverPostgres,
		Name:     "postgres",
		User:     testDatabaseUser,
		Password: testDatabasePassword,
		Host:     host,
		Port:     port,
		SSLMode:  "disable",
	}

	ctx := context.Background()
	var admin *sql.DB
	b := retry.WithMaxRetries(30, retry.NewConstant(1*time.Second))
	if err := retry.Do(ctx, b, func(ctx context.Context) error {
		db, err := sql.Open("pgx", config.ConnectionString())
		if err != nil {
			return retry.RetryableError(err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return retry.RetryableError(err)
		}
		admin = db
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed waiting for database container to be ready: %w", err)
	}

	return &TestInstance{
		pool:      pool,
		container: container,
		config:    config,
		admin:     admin,
	}, nil
}

// NewDatabase creates and migrates a new database, dropped when the test
// finishes. It returns the connection and its configuration.
func (i *TestInstance) NewDatabase(tb testing.TB) (*DB, *Config) {
	tb.Helper()

	if i.skipReason != "" {
		tb.Skip(i.skipReason)
	}

	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		tb.Fatalf("failed to generate database name: %s", err)
	}
	name := "s2s_" + hex.EncodeToString(b)

	ctx := context.Background()
	if err := i.adminExec(ctx, fmt.Sprintf(`CREATE DATABASE "%s"`, name)); err != nil {
		tb.Fatalf("failed to create database %q: %s", name, err)
	}

	config := *i.config
	config.Name = name
	if err := Migrate(ctx, &config, false); err != nil {
		tb.Fatalf("failed to migrate database %q: %s", name, err)
	}

	db, err := NewFromEnv(ctx, &config)
	if err != nil {
		tb.Fatalf("failed to connect to database %q: %s", name, err)
	}

	tb.Cleanup(func() {
		ctx := context.Background()
		// Active connections prevent the drop.
		db.Close(ctx)
		if err := i.adminExec(ctx, fmt.Sprintf(`DROP DATABASE IF EXISTS "%s" WITH (FORCE)`, name)); err != nil {
			tb.Errorf("failed to drop database %q: %s", name, err)
		}
	})

	return db, &config
}

func (i *TestInstance) adminExec(ctx context.Context, query string) error {
	i.adminLock.Lock()
	defer i.adminLock.Unlock()

	_, err := i.admin.ExecContext(ctx, query)
	return err
}

// MustClose is Close, except it prints the error to stderr and calls os.Exit.
func (i *TestInstance) MustClose() {
	if err := i.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// Close removes the container.
func (i *TestInstance) Close() error {
	if i.skipReason != "" {
		return nil
	}

	if err := i.admin.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	if err := i.pool.Purge(i.container); err != nil {
		return fmt.Errorf("failed to purge database container: %w", err)
	}
	return nil
}
