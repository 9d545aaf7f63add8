// Copyright 2025 Tom Barlow
//
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

// Package journal persists a record of every lifecycle command the host
// executes, backed by SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so stored times sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Outcomes stored in Entry.Outcome.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Entry is one executed command.
type Entry struct {
	ID            int64     `json:"id"`
	Time          time.Time `json:"time"`
	Kind          string    `json:"kind"`
	ServiceToken  string    `json:"service_token,omitempty"`
	BindToken     string    `json:"bind_token,omitempty"`
	Outcome       string    `json:"outcome"`
	ErrorType     string    `json:"error_type,omitempty"`
	Error         string    `json:"error,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Writer records entries.
type Writer interface {
	Append(ctx context.Context, e Entry) error
}

// Discard is a Writer that drops every entry.
var Discard Writer = discard{}

type discard struct{}

func (discard) Append(context.Context, Entry) error { return nil }

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path. ":memory:" opens a private in-memory
	// database.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// Journal is a SQLite-backed Writer with query support.
type Journal struct {
	db *sql.DB
}

var _ Writer = (*Journal)(nil)

// Open opens or creates the journal database.
func Open(ctx context.Context, cfg Config) (*Journal, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// SQLite serializes writes, and an in-memory database exists per
	// connection, so a single connection serves both.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	j := &Journal{db: db}
	if err := j.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := j.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return j, nil
}

func (j *Journal) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := j.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (j *Journal) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			kind TEXT NOT NULL,
			service_token TEXT,
			bind_token TEXT,
			outcome TEXT NOT NULL,
			error_type TEXT,
			error TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			correlation_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_service_token ON commands(service_token)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_time ON commands(time)`,
	}
	for _, m := range migrations {
		if _, err := j.db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append implements Writer.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO commands (time, kind, service_token, bind_token, outcome, error_type, error, duration_ms, correlation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC().Format(timeFormat),
		e.Kind,
		nullString(e.ServiceToken),
		nullString(e.BindToken),
		e.Outcome,
		nullString(e.ErrorType),
		nullString(e.Error),
		e.DurationMs,
		nullString(e.CorrelationID),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// Query filters journal reads.
type Query struct {
	// ServiceToken restricts results to one service when non-empty.
	ServiceToken string

	// Limit caps the number of entries returned. Default: 100.
	Limit int
}

// Recent returns the newest entries matching q, newest first.
func (j *Journal) Recent(ctx context.Context, q Query) ([]Entry, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}

	query := `SELECT id, time, kind, service_token, bind_token, outcome, error_type, error, duration_ms, correlation_id
		FROM commands`
	args := []any{}
	if q.ServiceToken != "" {
		query += ` WHERE service_token = ?`
		args = append(args, q.ServiceToken)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                                         Entry
			ts                                        string
			token, bindToken, errType, errMsg, corrID sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &token, &bindToken, &e.Outcome, &errType, &errMsg, &e.DurationMs, &corrID); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Time, err = time.Parse(timeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse journal time %q: %w", ts, err)
		}
		e.ServiceToken = token.String
		e.BindToken = bindToken.String
		e.ErrorType = errType.String
		e.Error = errMsg.String
		e.CorrelationID = corrID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than before and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM commands WHERE time < ?`, before.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
