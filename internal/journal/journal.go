// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package journal appends session events to a PostgreSQL table so that
// logins, refreshes and closures leave an audit trail outside the keychain.
//
// Only event metadata is written: identifiers, reasons and display fields.
// Tokens never reach the journal.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"idkeeper/cli/internal/dsn"
	"idkeeper/cli/internal/eventbus"
	"idkeeper/cli/internal/session"
)

const defaultSchema = "idkeeper"

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// execer is the subset of *pgxpool.Pool the journal needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Journal writes session events into <schema>.session_events.
type Journal struct {
	db     execer
	pool   *pgxpool.Pool
	schema string
	runID  string
	host   string
	log    zerolog.Logger
}

// Option configures a Journal.
type Option func(*Journal) error

// WithSchema sets the schema holding the events table (default "idkeeper").
func WithSchema(schema string) Option {
	return func(j *Journal) error {
		schema = strings.TrimSpace(schema)
		if !identRe.MatchString(schema) {
			return fmt.Errorf("journal: invalid schema identifier %q", schema)
		}
		j.schema = schema
		return nil
	}
}

// WithLogger sets the logger used for write failures.
func WithLogger(l zerolog.Logger) Option {
	return func(j *Journal) error {
		j.log = l
		return nil
	}
}

// New wraps an existing connection. The caller keeps ownership of db.
func New(db execer, opts ...Option) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: nil database")
	}
	host, _ := os.Hostname()
	j := &Journal{
		db:     db,
		schema: defaultSchema,
		runID:  ulid.Make().String(),
		host:   host,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(j); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// Open connects to the database named by rawDSN and creates the events
// table when it is missing. Close releases the pool.
func Open(ctx context.Context, rawDSN string, opts ...Option) (*Journal, error) {
	info, err := dsn.Parse(rawDSN)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, info.String())
	if err != nil {
		return nil, fmt.Errorf("journal: connect %s: %w", info.Redacted(), err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping %s: %w", info.Redacted(), err)
	}
	j, err := New(pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	j.pool = pool
	if err := j.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	j.log.Debug().Str("dsn", info.Redacted()).Str("table", j.table()).Msg("journal ready")
	return j, nil
}

// RunID identifies the process writing events; rows are unique per (run_id, seq).
func (j *Journal) RunID() string { return j.runID }

func (j *Journal) table() string {
	return pgx.Identifier{j.schema, "session_events"}.Sanitize()
}

// EnsureSchema creates the schema and events table if needed.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{j.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + j.table() + ` (
		     run_id       text        NOT NULL,
		     seq          bigint      NOT NULL,
		     occurred_at  timestamptz NOT NULL,
		     host         text        NOT NULL,
		     kind         text        NOT NULL,
		     identifier   text        NOT NULL,
		     reason       text        NOT NULL,
		     display_name text,
		     email        text,
		     PRIMARY KEY (run_id, seq)
		   )`,
	}
	for _, s := range stmts {
		if _, err := j.db.Exec(ctx, s); err != nil {
			return fmt.Errorf("journal: ensure schema: %w", err)
		}
	}
	return nil
}

// Record inserts one event. Replaying the same event is a no-op.
func (j *Journal) Record(ctx context.Context, ev session.Event) error {
	var name, email *string
	if ev.Info != nil {
		name = nullable(ev.Info.DisplayName)
		email = nullable(ev.Info.Email)
	}
	_, err := j.db.Exec(ctx,
		`INSERT INTO `+j.table()+` (
		     run_id, seq, occurred_at, host, kind, identifier, reason, display_name, email
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		   ON CONFLICT (run_id, seq) DO NOTHING`,
		j.runID, int64(ev.Seq), ev.At.UTC(), j.host, ev.Kind.String(), ev.Identifier, ev.Reason(), name, email,
	)
	if err != nil {
		return fmt.Errorf("journal: record event %d: %w", ev.Seq, err)
	}
	return nil
}

// Run records every event from sub until ctx ends or the subscription
// closes. Write failures are logged and do not stop the loop.
func (j *Journal) Run(ctx context.Context, sub *eventbus.Subscription[session.Event]) error {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := j.Record(ctx, ev); err != nil {
				j.log.Warn().Err(err).Uint64("seq", ev.Seq).Str("kind", ev.Kind.String()).Msg("journal write failed")
			}
		}
	}
}

// Close releases the pool opened by Open. It does nothing for New.
func (j *Journal) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
