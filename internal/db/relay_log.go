package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/discord-echo/internal/events"
)

// Outcome values stored in relay_log.
const (
	OutcomeRelayed = "relayed"
	OutcomeDropped = "dropped"
	OutcomeFailed  = "failed"
)

// Entry is one row of relay history.
type Entry struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Outcome   string    `json:"outcome"`
	Channel   string    `json:"channel"`
	Username  string    `json:"username"`
	Reason    string    `json:"reason,omitempty"`
}

// RelayLog records what happened to each Discord message.
type RelayLog struct {
	db  *Database
	now func() time.Time
}

// NewRelayLog opens the database at dbPath and creates the schema.
func NewRelayLog(dbPath string) (*RelayLog, error) {
	database, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	rl := &RelayLog{db: database, now: time.Now}
	if err := rl.migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate relay log: %w", err)
	}
	return rl, nil
}

func (rl *RelayLog) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS relay_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_relay_log_created_at ON relay_log(created_at);
		CREATE INDEX IF NOT EXISTS idx_relay_log_outcome ON relay_log(outcome);
	`

	if _, err := rl.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	log.Debug().Msg("relay log schema migrated")
	return nil
}

// Subscribe records relayed, dropped and failed messages from the bus.
// Rows are written in the publisher's goroutine, so ids follow the order
// in which the relay handled the messages.
func (rl *RelayLog) Subscribe(bus *events.EventBus) {
	bus.SubscribeSync(events.EventMessageRelayed, "relay_log", rl.handleEvent)
	bus.SubscribeSync(events.EventMessageDropped, "relay_log", rl.handleEvent)
	bus.SubscribeSync(events.EventSendFailed, "relay_log", rl.handleEvent)
}

func (rl *RelayLog) handleEvent(ctx context.Context, event events.Event) error {
	entry, ok := entryFromEvent(event)
	if !ok {
		return nil
	}
	return rl.Record(ctx, entry)
}

func entryFromEvent(event events.Event) (Entry, bool) {
	switch p := event.Payload.(type) {
	case events.MessageRelayedPayload:
		reason := ""
		if p.Placeholder {
			reason = fmt.Sprintf("unmapped channel %d", p.ChannelID)
		}
		return Entry{Outcome: OutcomeRelayed, Channel: p.Channel, Username: p.Username, Reason: reason}, true
	case events.MessageDroppedPayload:
		return Entry{
			Outcome:  OutcomeDropped,
			Channel:  fmt.Sprintf("%d", p.ChannelID),
			Username: p.Author,
			Reason:   string(p.Reason),
		}, true
	case events.SendFailedPayload:
		return Entry{Outcome: OutcomeFailed, Channel: p.Addr, Reason: p.Stage + ": " + p.Error}, true
	}
	return Entry{}, false
}

// Record inserts one entry. A zero CreatedAt is set to the current time.
func (rl *RelayLog) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = rl.now()
	}
	_, err := rl.db.ExecContext(ctx,
		"INSERT INTO relay_log (created_at, outcome, channel, username, reason) VALUES (?, ?, ?, ?, ?)",
		e.CreatedAt.UnixMilli(), e.Outcome, e.Channel, e.Username, e.Reason)
	if err != nil {
		return fmt.Errorf("failed to record relay entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first by insertion order.
func (rl *RelayLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := rl.db.QueryContext(ctx,
		"SELECT id, created_at, outcome, channel, username, reason FROM relay_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query relay log: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &createdAt, &e.Outcome, &e.Channel, &e.Username, &e.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan relay entry: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByOutcome returns the number of stored entries per outcome.
func (rl *RelayLog) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := rl.db.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM relay_log GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("failed to count relay log: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Total returns the number of stored entries.
func (rl *RelayLog) Total(ctx context.Context) (int64, error) {
	var n int64
	if err := rl.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM relay_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count relay log: %w", err)
	}
	return n, nil
}

// Prune deletes entries older than the given age and returns how many went.
func (rl *RelayLog) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := rl.now().Add(-olderThan).UnixMilli()

	var n int64
	err := rl.db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM relay_log WHERE created_at < ?", cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune relay log: %w", err)
	}
	if n > 0 {
		log.Info().Int64("removed", n).Dur("older_than", olderThan).Msg("pruned relay log")
	}
	return n, nil
}

// Close closes the underlying database.
func (rl *RelayLog) Close() error {
	return rl.db.Close()
}
