// Package timescale writes telemetry events straight into a TimescaleDB
// (PostgreSQL) hypertable. It has no control plane.
package timescale

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/ghalamif/dhtflow/internal/domain"
	"github.com/ghalamif/dhtflow/internal/ports"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type Publisher struct {
	db    *sql.DB
	table string
	query string
	now   func() time.Time
}

// Open connects with the postgres driver and verifies the connection.
func Open(ctx context.Context, dsn, table string) (*Publisher, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("timescale open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("timescale ping: %w", err)
	}
	p, err := NewPublisher(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func NewPublisher(db *sql.DB, table string) (*Publisher, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("timescale: invalid table name %q", table)
	}
	return &Publisher{
		db:    db,
		table: table,
		query: "INSERT INTO " + table + " (time_created, captured_at, temperature, humidity, received_at) VALUES ($1,$2,$3,$4,$5)",
		now:   time.Now,
	}, nil
}

func (p *Publisher) Name() string { return "timescaledb" }

// Publish inserts one row. time_created keeps the event's wall-clock string;
// captured_at is the ordering column and falls back to the insert time when
// the message carries no capture time.
func (p *Publisher) Publish(ctx context.Context, msg ports.Message) error {
	var ev domain.TelemetryEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("decode telemetry event: %w", err)
	}
	received := p.now().UTC()
	captured := msg.CapturedAt.UTC()
	if msg.CapturedAt.IsZero() {
		captured = received
	}
	if _, err := p.db.ExecContext(ctx, p.query, ev.TimeCreated, captured, ev.Temperature, ev.Humidity, received); err != nil {
		return fmt.Errorf("insert into %s: %w", p.table, err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.db.Close() }

var _ ports.Publisher = (*Publisher)(nil)
