package sqlite

import (
	"time"

	"github.com/rupianet/rupia/internal/domain"
)

// ─── Scheduled Effect Operations ────────────────────────────────────────────

// InsertScheduledEffect persists a deferred revert.
func (d *DB) InsertScheduledEffect(e domain.ScheduledEffect) error {
	_, err := d.db.Exec(`
		INSERT INTO scheduled_effects (id, kind, guild_id, target_id, resource_id, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Kind), e.GuildID, e.TargetID, e.ResourceID, e.ExpiresAt.UTC().Format(time.RFC3339))
	return err
}

// DueScheduledEffects returns every effect whose expiry is at or before now,
// oldest first.
func (d *DB) DueScheduledEffects(now time.Time) ([]domain.ScheduledEffect, error) {
	rows, err := d.db.Query(`
		SELECT id, kind, guild_id, target_id, resource_id, expires_at
		FROM scheduled_effects
		WHERE expires_at <= ?
		ORDER BY expires_at
	`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEffects(rows)
}

// ListScheduledEffects returns all pending effects, soonest first.
func (d *DB) ListScheduledEffects() ([]domain.ScheduledEffect, error) {
	rows, err := d.db.Query(`
		SELECT id, kind, guild_id, target_id, resource_id, expires_at
		FROM scheduled_effects
		ORDER BY expires_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEffects(rows)
}

type effectRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEffects(rows effectRows) ([]domain.ScheduledEffect, error) {
	var out []domain.ScheduledEffect
	for rows.Next() {
		var e domain.ScheduledEffect
		var kind, expires string
		if err := rows.Scan(&e.ID, &kind, &e.GuildID, &e.TargetID, &e.ResourceID, &expires); err != nil {
			return nil, err
		}
		e.Kind = domain.EffectKind(kind)
		t, err := time.Parse(time.RFC3339, expires)
		if err != nil {
			return nil, err
		}
		e.ExpiresAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteScheduledEffect removes an executed (or orphaned) effect.
func (d *DB) DeleteScheduledEffect(id string) error {
	_, err := d.db.Exec(`DELETE FROM scheduled_effects WHERE id = ?`, id)
	return err
}

// ─── Purchase Audit Operations ──────────────────────────────────────────────

// InsertPurchaseRecord appends a purchase attempt to the audit trail.
func (d *DB) InsertPurchaseRecord(rec domain.PurchaseRecord) error {
	anon := 0
	if rec.Anonymous {
		anon = 1
	}
	_, err := d.db.Exec(`
		INSERT INTO purchase_audit (id, item_id, buyer_id, target_id, price, surcharge, anonymous, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.ItemID, rec.BuyerID, rec.TargetID, rec.Price, rec.Surcharge, anon,
		string(rec.Outcome), rec.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// RecentPurchases returns the latest audit rows, newest first.
func (d *DB) RecentPurchases(limit int) ([]domain.PurchaseRecord, error) {
	rows, err := d.db.Query(`
		SELECT id, item_id, buyer_id, target_id, price, surcharge, anonymous, outcome, created_at
		FROM purchase_audit
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PurchaseRecord
	for rows.Next() {
		var rec domain.PurchaseRecord
		var anon int
		var outcome, created string
		if err := rows.Scan(&rec.ID, &rec.ItemID, &rec.BuyerID, &rec.TargetID,
			&rec.Price, &rec.Surcharge, &anon, &outcome, &created); err != nil {
			return nil, err
		}
		rec.Anonymous = anon == 1
		rec.Outcome = domain.PurchaseOutcome(outcome)
		t, err := time.Parse(time.RFC3339, created)
		if err != nil {
			return nil, err
		}
		rec.CreatedAt = t
		out = append(out, rec)
	}
	return out, rows.Err()
}
