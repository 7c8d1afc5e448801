package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
	"github.com/rupianet/rupia/internal/infra/logbook"
	"github.com/rupianet/rupia/internal/infra/sqlite"
	"github.com/rupianet/rupia/internal/platform/platformtest"
)

func newReaper(t *testing.T) (*Reaper, *sqlite.DB, *platformtest.Fake) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	platform := &platformtest.Fake{}
	log := zap.NewNop()
	r := New(db, platform, logbook.New(platform, "", log), log, DefaultSweepInterval)
	return r, db, platform
}

func insert(t *testing.T, db *sqlite.DB, eff domain.ScheduledEffect) {
	t.Helper()
	if err := db.InsertScheduledEffect(eff); err != nil {
		t.Fatalf("insert effect: %v", err)
	}
}

func pending(t *testing.T, db *sqlite.DB) int {
	t.Helper()
	effects, err := db.ListScheduledEffects()
	if err != nil {
		t.Fatalf("list effects: %v", err)
	}
	return len(effects)
}

func TestSweepExecutesOnlyDueEffects(t *testing.T) {
	r, db, platform := newReaper(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	insert(t, db, domain.ScheduledEffect{
		ID: "due", Kind: domain.EffectRemoveRole,
		GuildID: "g1", TargetID: "u1", ResourceID: "role-1",
		ExpiresAt: base.Add(-time.Minute),
	})
	insert(t, db, domain.ScheduledEffect{
		ID: "future", Kind: domain.EffectDeleteChannel,
		GuildID: "g1", ResourceID: "chan-1",
		ExpiresAt: base.Add(time.Hour),
	})

	r.Sweep(context.Background())

	if len(platform.Revoked) != 1 || platform.Revoked[0].RoleID != "role-1" {
		t.Fatalf("revoked = %+v, want [role-1]", platform.Revoked)
	}
	if len(platform.DeletedChannels) != 0 {
		t.Fatalf("future effect executed early: %v", platform.DeletedChannels)
	}
	if got := pending(t, db); got != 1 {
		t.Fatalf("pending rows = %d, want 1", got)
	}
}

func TestSweepKindDispatch(t *testing.T) {
	r, db, platform := newReaper(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	past := base.Add(-time.Minute)

	insert(t, db, domain.ScheduledEffect{ID: "e1", Kind: domain.EffectDeleteRole,
		GuildID: "g1", TargetID: "u1", ResourceID: "role-9", ExpiresAt: past})
	insert(t, db, domain.ScheduledEffect{ID: "e2", Kind: domain.EffectDeleteChannel,
		GuildID: "g1", ResourceID: "chan-9", ExpiresAt: past})
	insert(t, db, domain.ScheduledEffect{ID: "e3", Kind: domain.EffectVoiceUnmute,
		GuildID: "g1", TargetID: "u2", ExpiresAt: past})
	insert(t, db, domain.ScheduledEffect{ID: "e4", Kind: domain.EffectTextUnmute,
		GuildID: "g1", TargetID: "u3", ExpiresAt: past})

	r.Sweep(context.Background())

	if len(platform.Revoked) != 1 || len(platform.DeletedRoles) != 1 {
		t.Fatalf("delete_role: revoked=%v deleted=%v", platform.Revoked, platform.DeletedRoles)
	}
	if len(platform.DeletedChannels) != 1 || platform.DeletedChannels[0] != "chan-9" {
		t.Fatalf("deleted channels = %v", platform.DeletedChannels)
	}
	if muted, ok := platform.VoiceMuted["u2"]; !ok || muted {
		t.Fatalf("voice mute not lifted: %v", platform.VoiceMuted)
	}
	if muted, ok := platform.TextMuted["u3"]; !ok || muted {
		t.Fatalf("text mute not lifted: %v", platform.TextMuted)
	}
	if got := pending(t, db); got != 0 {
		t.Fatalf("pending rows = %d, want 0", got)
	}
}

func TestSweepDropsGoneResources(t *testing.T) {
	r, db, platform := newReaper(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	platform.DeadResources = map[string]bool{"chan-gone": true}
	insert(t, db, domain.ScheduledEffect{ID: "e1", Kind: domain.EffectDeleteChannel,
		GuildID: "g1", ResourceID: "chan-gone", ExpiresAt: base.Add(-time.Minute)})

	r.Sweep(context.Background())

	if got := pending(t, db); got != 0 {
		t.Fatalf("gone resource not dropped, pending = %d", got)
	}
}

func TestSweepRetriesTransientErrors(t *testing.T) {
	r, db, platform := newReaper(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	platform.Errors = map[string]error{"DeleteChannel": errors.New("api down")}
	insert(t, db, domain.ScheduledEffect{ID: "e1", Kind: domain.EffectDeleteChannel,
		GuildID: "g1", ResourceID: "chan-1", ExpiresAt: base.Add(-time.Minute)})

	r.Sweep(context.Background())
	if got := pending(t, db); got != 1 {
		t.Fatalf("row dropped on transient error, pending = %d", got)
	}

	// The platform recovers and the next sweep drains the row.
	platform.Errors = nil
	r.Sweep(context.Background())
	if got := pending(t, db); got != 0 {
		t.Fatalf("retry did not drain, pending = %d", got)
	}
	if len(platform.DeletedChannels) != 1 {
		t.Fatalf("deleted channels = %v, want one", platform.DeletedChannels)
	}
}

func TestStartupRecoveryAfterReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.InsertScheduledEffect(domain.ScheduledEffect{
		ID: "e1", Kind: domain.EffectRemoveRole,
		GuildID: "g1", TargetID: "u1", ResourceID: "role-1",
		ExpiresAt: base.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Fresh process: reopen and sweep once.
	db, err = sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer db.Close()

	platform := &platformtest.Fake{}
	log := zap.NewNop()
	r := New(db, platform, logbook.New(platform, "", log), log, DefaultSweepInterval)
	r.now = func() time.Time { return base }

	r.Sweep(context.Background())

	if len(platform.Revoked) != 1 {
		t.Fatalf("revert lost across restart: %+v", platform.Revoked)
	}
	if got := pending(t, db); got != 0 {
		t.Fatalf("pending rows = %d, want 0", got)
	}
}
