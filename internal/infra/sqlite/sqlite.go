// Package sqlite persists the bot's durable side state: scheduled effect
// reverts (so role/channel/mute expiries survive restarts) and the purchase
// audit log. The economy ledger itself lives in its own JSON snapshot.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go driver, registers "sqlite"
)

// DB wraps the sqlite connection.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single writer keeps sqlite happy under concurrent handlers.
	db.SetMaxOpenConns(1)

	for _, stmt := range Migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &DB{db: db}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.db.Close() }

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (sqlite executes one at a time).
func Migrations() []string {
	return []string{
		// Deferred reverts: expired rows are executed by the reaper and
		// deleted. Survives restarts, unlike the in-memory cooldown state.
		`CREATE TABLE IF NOT EXISTS scheduled_effects (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			guild_id    TEXT NOT NULL,
			target_id   TEXT NOT NULL DEFAULT '',
			resource_id TEXT NOT NULL DEFAULT '',
			expires_at  TEXT NOT NULL,
			created_at  TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_effects_expiry ON scheduled_effects(expires_at)`,

		// Purchase audit trail. Always records the true buyer, including for
		// anonymous actions.
		`CREATE TABLE IF NOT EXISTS purchase_audit (
			id         TEXT PRIMARY KEY,
			item_id    TEXT NOT NULL,
			buyer_id   TEXT NOT NULL,
			target_id  TEXT NOT NULL DEFAULT '',
			price      INTEGER NOT NULL,
			surcharge  INTEGER NOT NULL DEFAULT 0,
			anonymous  INTEGER NOT NULL DEFAULT 0,
			outcome    TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_buyer ON purchase_audit(buyer_id)`,
	}
}
