package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventRow is one row in the event_log table.
type EventRow struct {
	Seq       uint64
	EventType string
	Payload   []byte
	At        time.Time
}

// EventLogWriter writes the append-only event log to Postgres using
// multi-row INSERTs. Writes are idempotent on sequence number, so a
// retried batch never duplicates rows.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteBatch inserts a batch of events within the given transaction.
func (w *EventLogWriter) WriteBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log (seq, event_type, payload, occurred_at) VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*4)

	for i, e := range events {
		base := i * 4
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4,
		))
		args = append(args, int64(e.Seq), e.EventType, e.Payload, e.At)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (seq) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest persisted sequence, or 0 when the
// log is empty. Used to seed the in-memory sequence on warm restart.
func (w *EventLogWriter) LastSequence(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM event_log`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// ListRecent returns the most recent events, newest first.
func (w *EventLogWriter) ListRecent(ctx context.Context, limit int) ([]EventRow, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT seq, event_type, payload, occurred_at FROM event_log ORDER BY seq DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var seq int64
		if err := rows.Scan(&seq, &e.EventType, &e.Payload, &e.At); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarshalPayload serializes an event payload to JSON for the payload
// column.
func MarshalPayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
