// Copyright 2025 XXAI
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store provides the shared relational store for the guardrail
// platform: tenants, configuration entities, detection results, rate-limit
// counters and ban records. PostgreSQL is the primary backend; MySQL is
// supported through DSN-based driver selection.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint is violated
var ErrDuplicate = errors.New("duplicate")

// initLockKey is the advisory lock taken before DDL so that multiple worker
// processes sharing one database do not race schema initialization.
// Spells "ZoXXAIGR" in ASCII.
const initLockKey int64 = 0x5A6F585849414752

// DB wraps the SQL handle together with the selected driver
type DB struct {
	*sql.DB
	Driver string
}

// Open connects to the database named by the URL. postgres:// (or postgresql://)
// selects lib/pq, mysql:// selects go-sql-driver; anything else is an error.
func Open(databaseURL string) (*DB, error) {
	driver, dsn, err := driverFor(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &DB{DB: db, Driver: driver}, nil
}

func driverFor(databaseURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "postgres", databaseURL, nil
	case strings.HasPrefix(databaseURL, "mysql://"):
		// go-sql-driver expects a bare DSN without the scheme
		return "mysql", strings.TrimPrefix(databaseURL, "mysql://"), nil
	case databaseURL == "":
		return "", "", fmt.Errorf("DATABASE_URL is required")
	default:
		return "", "", fmt.Errorf("unsupported database URL scheme: %s", databaseURL)
	}
}

// InitSchema creates all tables and indexes. On PostgreSQL a session advisory
// lock is held on a dedicated connection for the duration of DDL; on MySQL
// GET_LOCK provides the same mutual exclusion.
func (d *DB) InitSchema(ctx context.Context) error {
	conn, err := d.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire init connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	switch d.Driver {
	case "postgres":
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", initLockKey); err != nil {
			return fmt.Errorf("failed to take advisory lock: %w", err)
		}
		defer func() {
			if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", initLockKey); err != nil {
				log.Printf("Failed to release advisory lock: %v", err)
			}
		}()
	case "mysql":
		if _, err := conn.ExecContext(ctx, "SELECT GET_LOCK('xxai_schema_init', 30)"); err != nil {
			return fmt.Errorf("failed to take schema lock: %w", err)
		}
		defer func() {
			if _, err := conn.ExecContext(ctx, "SELECT RELEASE_LOCK('xxai_schema_init')"); err != nil {
				log.Printf("Failed to release schema lock: %v", err)
			}
		}()
	}

	for _, stmt := range schemaStatements(d.Driver) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema init failed: %w", err)
		}
	}
	return nil
}

// rebind rewrites $n placeholders to ? for the MySQL driver. Queries are
// written once in PostgreSQL style; ordinal placeholders are always used in
// ascending order so positional rewriting is safe.
func (d *DB) rebind(query string) string {
	if d.Driver != "mysql" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ExecContext rebinds placeholders for the active driver before executing
func (d *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return d.DB.ExecContext(ctx, d.rebind(query), args...)
}

// QueryContext rebinds placeholders for the active driver before querying
func (d *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return d.DB.QueryContext(ctx, d.rebind(query), args...)
}

// QueryRowContext rebinds placeholders for the active driver before querying
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return d.DB.QueryRowContext(ctx, d.rebind(query), args...)
}

// isDuplicateErr reports whether err is a unique-constraint violation for
// either supported driver.
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || // lib/pq
		strings.Contains(msg, "Error 1062") || // mysql
		strings.Contains(msg, "UNIQUE constraint")
}
