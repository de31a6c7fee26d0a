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
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	// DriverPostgres selects the pgx-backed postgres driver.
	DriverPostgres = "postgres"
	// DriverSQLite selects the pure Go sqlite driver.
	DriverSQLite = "sqlite"
)

// Config represents the env var based configuration for database connections.
type Config struct {
	Driver             string        `env:"DB_DRIVER, default=postgres"`
	Name               string        `env:"DB_NAME" json:",omitempty"`
	User               string        `env:"DB_USER" json:",omitempty"`
	Host               string        `env:"DB_HOST, default=localhost" json:",omitempty"`
	Port               string        `env:"DB_PORT, default=5432" json:",omitempty"`
	SSLMode            string        `env:"DB_SSLMODE, default=require" json:",omitempty"`
	ConnectionTimeout  int           `env:"DB_CONNECT_TIMEOUT" json:",omitempty"`
	Password           string        `env:"DB_PASSWORD" json:"-"`
	SSLCertPath        string        `env:"DB_SSLCERT" json:",omitempty"`
	SSLKeyPath         string        `env:"DB_SSLKEY" json:",omitempty"`
	SSLRootCertPath    string        `env:"DB_SSLROOTCERT" json:",omitempty"`
	PoolMaxConnections int           `env:"DB_POOL_MAX_CONNS, default=10" json:",omitempty"`
	PoolMaxIdle        int           `env:"DB_POOL_MAX_IDLE_CONNS, default=5" json:",omitempty"`
	PoolMaxConnLife    time.Duration `env:"DB_POOL_MAX_CONN_LIFETIME, default=5m" json:",omitempty"`
	PoolMaxConnIdle    time.Duration `env:"DB_POOL_MAX_CONN_IDLE_TIME, default=1m" json:",omitempty"`

	// Path is the database file when Driver is sqlite.
	Path string `env:"DB_PATH, default=stream2segment.sqlite" json:",omitempty"`

	// Trace wraps the driver with ocsql so queries are traced and measured.
	Trace bool `env:"DB_TRACE" json:",omitempty"`
}

// DatabaseConfig returns the database config. It allows Config to satisfy
// the setup.DatabaseConfigProvider interface.
func (c *Config) DatabaseConfig() *Config {
	return c
}

// String returns a printable version of the configuration without the
// password.
func (c *Config) String() string {
	pwSet := "<set>"
	if c.Password == "" {
		pwSet = "<not set>"
	}

	return fmt.Sprintf("{Driver:%v Name:%v User:%v Host:%v Port:%v SSLMode:%v ConnectionTimeout:%v Password:%v SSLCertPath:%v SSLKeyPath:%v SSLRootCertPath:%v PoolMaxConnections:%v PoolMaxIdle:%v PoolMaxConnLife:%v PoolMaxConnIdle:%v Path:%v Trace:%v}",
		c.Driver, c.Name, c.User, c.Host, c.Port, c.SSLMode, c.ConnectionTimeout, pwSet,
		c.SSLCertPath, c.SSLKeyPath, c.SSLRootCertPath,
		c.PoolMaxConnections, c.PoolMaxIdle, c.PoolMaxConnLife, c.PoolMaxConnIdle,
		c.Path, c.Trace)
}

// Validate checks the driver specific required values.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.Name == "" {
			return fmt.Errorf("DB_NAME is required for driver %q", c.Driver)
		}
	case DriverSQLite:
		if c.Path == "" {
			return fmt.Errorf("DB_PATH is required for driver %q", c.Driver)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Driver)
	}
	return nil
}

// ConnectionString returns the driver specific data source name.
func (c *Config) ConnectionString() string {
	if c.Driver == DriverSQLite {
		return sqliteDSN(c.Path)
	}

	vals := dbValues(c)
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := make([]string, 0, len(keys))
	for _, k := range keys {
		p = append(p, fmt.Sprintf("%s=%s", k, vals[k]))
	}
	return strings.Join(p, " ")
}

// sqliteDSN enables foreign keys and a busy timeout on every connection of
// the pool. Times are written in a sortable format so that they compare as
// text.
func sqliteDSN(path string) string {
	v := url.Values{}
	v.Add("_pragma", "foreign_keys(1)")
	v.Add("_pragma", "busy_timeout(5000)")
	v.Add("_time_format", "sqlite")
	return "file:" + path + "?" + v.Encode()
}

func dbValues(config *Config) map[string]string {
	p := map[string]string{}
	setIfNotEmpty(p, "dbname", config.Name)
	setIfNotEmpty(p, "user", config.User)
	setIfNotEmpty(p, "host", config.Host)
	setIfNotEmpty(p, "port", config.Port)
	setIfNotEmpty(p, "sslmode", config.SSLMode)
	setIfPositive(p, "connect_timeout", config.ConnectionTimeout)
	setIfNotEmpty(p, "password", config.Password)
	setIfNotEmpty(p, "sslcert", config.SSLCertPath)
	setIfNotEmpty(p, "sslkey", config.SSLKeyPath)
	setIfNotEmpty(p, "sslrootcert", config.SSLRootCertPath)
	return p
}

func setIfNotEmpty(m map[string]string, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func setIfPositive(m map[string]string, key string, val int) {
	if val > 0 {
		m[key] = fmt.Sprintf("%d", val)
	}
}

// TestConfigDefaults returns a configuration populated with the default
// values. It should only be used for testing.
func TestConfigDefaults() *Config {
	return &Config{
		Driver:             "postgres",
		Host:               "localhost",
		Port:               "5432",
		SSLMode:            "require",
		PoolMaxConnections: 10,
		PoolMaxIdle:        5,
		PoolMaxConnLife:    5 * time.Minute,
		PoolMaxConnIdle:    1 * time.Minute,
		Path:               "stream2segment.sqlite",
	}
}

// TestConfigValued returns a configuration populated with values that match
// TestConfigValues() It should only be used for testing.
func TestConfigValued() *Config {
	return &Config{
		Driver:             "sqlite",
		Name:               "myDatabase",
		User:               "superuser",
		Host:               "db.seismo.test",
		Port:               "1234",
		SSLMode:            "off",
		ConnectionTimeout:  10,
		Password:           "notAG00DP@ssword",
		SSLCertPath:        "/var/sslcert",
		SSLKeyPath:         "/var/sslkey",
		SSLRootCertPath:    "/var/sslrootcert",
		PoolMaxConnections: 5,
		PoolMaxIdle:        2,
		PoolMaxConnLife:    time.Hour,
		PoolMaxConnIdle:    time.Minute,
		Path:               "/data/s2s.sqlite",
		Trace:              true,
	}
}

// TestConfigValues returns a list of configuration that corresponds to
// TestConfigValued. It should only be used for testing.
func TestConfigValues() map[string]string {
	return map[string]string{
		"DB_DRIVER":                  "sqlite",
		"DB_NAME":                    "myDatabase",
		"DB_USER":                    "superuser",
		"DB_HOST":                    "db.seismo.test",
		"DB_PORT":                    "1234",
		"DB_SSLMODE":                 "off",
		"DB_CONNECT_TIMEOUT":         "10",
		"DB_PASSWORD":                "notAG00DP@ssword",
		"DB_SSLCERT":                 "/var/sslcert",
		"DB_SSLKEY":                  "/var/sslkey",
		"DB_SSLROOTCERT":             "/var/sslrootcert",
		"DB_POOL_MAX_CONNS":          "5",
		"DB_POOL_MAX_IDLE_CONNS":     "2",
		"DB_POOL_MAX_CONN_LIFETIME":  "1h",
		"DB_POOL_MAX_CONN_IDLE_TIME": "1m",
		"DB_PATH":                    "/data/s2s.sqlite",
		"DB_TRACE":                   "true",
	}
}

// TestConfigOverridden returns a configuration with non-default values set.
// It should only be used for testing.
func TestConfigOverridden() *Config {
	return &Config{
		Driver:             "postgres",
		Name:               "anotherDatabase",
		User:               "notASuperuser",
		Host:               "db.seismo.example",
		Port:               "5678",
		SSLMode:            "on",
		ConnectionTimeout:  50,
		Password:           "An0therB@dP@ssw0rd",
		SSLCertPath:        "/var/sslcert2",
		SSLKeyPath:         "/var/sslkey2",
		SSLRootCertPath:    "/var/sslrootcert2",
		PoolMaxConnections: 50,
		PoolMaxIdle:        20,
		PoolMaxConnLife:    2 * time.Hour,
		PoolMaxConnIdle:    2 * time.Minute,
		Path:               "/data/other.sqlite",
		Trace:              true,
	}
}
