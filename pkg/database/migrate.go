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
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/seismo-tools/stream2segment/migrations"
	"github.com/seismo-tools/stream2segment/pkg/logging"
)

// Migrate applies the embedded migrations to the configured database. When
// down is true every migration is reverted instead.
//
// Migrate opens its own connection because closing the migrate instance
// closes the underlying pool.
func Migrate(ctx context.Context, config *Config, down bool) error {
	logger := logging.FromContext(ctx).Named("database.Migrate")

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}

	driverName := "pgx"
	if config.Driver == DriverSQLite {
		driverName = "sqlite"
	}
	sqlDB, err := sql.Open(driverName, config.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	var driver migratedb.Driver
	switch config.Driver {
	case DriverSQLite:
		driver, err = sqlite.WithInstance(sqlDB, &sqlite.Config{})
	default:
		driver, err = postgres.WithInstance(sqlDB, &postgres.Config{})
	}
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, config.Driver, driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed create migrate: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Errorw("migrate source error", "error", srcErr)
		}
		if dbErr != nil {
			logger.Errorw("migrate database error", "error", dbErr)
		}
	}()

	if down {
		logger.Infow("reverting migrations", "driver", config.Driver)
		err = m.Down()
	} else {
		logger.Infow("applying migrations", "driver", config.Driver)
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed run migrate: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Infow("database has no migrations applied")
	case err != nil:
		return fmt.Errorf("failed to read migration version: %w", err)
	default:
		logger.Infow("migrations finished", "version", version, "dirty", dirty)
	}
	return nil
}
