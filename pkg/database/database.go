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

// Package database is a facade over the relational storage layer. It supports
// postgres (through the pgx stdlib driver) and sqlite.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"contrib.go.opencensus.io/integrations/ocsql"
	"github.com/seismo-tools/stream2segment/pkg/logging"

	// imported to register the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v4/stdlib"
	// imported to register the "sqlite" database/sql driver
	_ "modernc.org/sqlite"
)

// DB is a handle to a database. It is safe for concurrent use.
type DB struct {
	db      *sql.DB
	dialect Dialect
	config  *Config
}

// NewFromEnv sets up the database connections using the configuration in
// the process's environment.
func NewFromEnv(ctx context.Context, config *Config) (*DB, error) {
	logger := logging.FromContext(ctx).Named("database")
	logger.Infof("creating connection pool: %s", config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	driverName, err := driverFor(config)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driverName, config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	configurePool(sqlDB, config)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &DB{
		db:      sqlDB,
		dialect: DialectFor(config.Driver),
		config:  config,
	}, nil
}

// driverFor returns the database/sql driver name, wrapping it with ocsql when
// tracing is enabled.
func driverFor(config *Config) (string, error) {
	name := "pgx"
	if config.Driver == DriverSQLite {
		name = "sqlite"
	}
	if !config.Trace {
		return name, nil
	}

	traced, err := ocsql.Register(name, ocsql.WithAllTraceOptions())
	if err != nil {
		return "", fmt.Errorf("registering traced driver: %w", err)
	}
	ocsql.RegisterAllViews()
	return traced, nil
}

func configurePool(db *sql.DB, config *Config) {
	if config.Driver == DriverSQLite {
		// sqlite allows a single writer. Serializing connections avoids
		// SQLITE_BUSY under concurrent transactions.
		db.SetMaxOpenConns(1)
		return
	}
	if config.PoolMaxConnections > 0 {
		db.SetMaxOpenConns(config.PoolMaxConnections)
	}
	if config.PoolMaxIdle > 0 {
		db.SetMaxIdleConns(config.PoolMaxIdle)
	}
	db.SetConnMaxLifetime(config.PoolMaxConnLife)
	db.SetConnMaxIdleTime(config.PoolMaxConnIdle)
}

// Close releases database connections.
func (db *DB) Close(ctx context.Context) {
	logger := logging.FromContext(ctx).Named("database")
	logger.Infof("closing connection pool")
	if err := db.db.Close(); err != nil {
		logger.Errorw("failed to close connection pool", "error", err)
	}
}

// SQL returns the underlying connection pool.
func (db *DB) SQL() *sql.DB {
	return db.db
}

// Dialect returns the SQL dialect of the connected database.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Config returns the configuration the database was opened with.
func (db *DB) Config() *Config {
	return db.config
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}
