// Package scheduler executes deferred reverts persisted by the purchase and
// moderation engines. It sweeps the store once at startup, picking up
// anything that came due while the process was down, then on a fixed
// interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
	"github.com/rupianet/rupia/internal/infra/logbook"
	"github.com/rupianet/rupia/internal/infra/observability"
	"github.com/rupianet/rupia/internal/infra/sqlite"
)

// DefaultSweepInterval is how often the reaper looks for due effects.
const DefaultSweepInterval = 30 * time.Second

// Reaper drains due scheduled effects through the platform.
type Reaper struct {
	db       *sqlite.DB
	platform domain.Platform
	book     *logbook.Logbook
	log      *zap.Logger

	interval time.Duration
	now      func() time.Time
}

// New creates a reaper. A non-positive interval falls back to the default.
func New(db *sqlite.DB, platform domain.Platform, book *logbook.Logbook, log *zap.Logger, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Reaper{
		db:       db,
		platform: platform,
		book:     book,
		log:      log,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps immediately, then on every tick until ctx is cancelled. The
// immediate sweep is the restart recovery path.
func (r *Reaper) Run(ctx context.Context) {
	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep executes every effect due at the time of the call. An effect whose
// resource is gone is dropped; a transient platform error keeps the row for
// the next sweep.
func (r *Reaper) Sweep(ctx context.Context) {
	due, err := r.db.DueScheduledEffects(r.now().UTC())
	if err != nil {
		r.log.Error("load due effects failed", zap.Error(err))
		return
	}

	for _, eff := range due {
		err := r.execute(ctx, eff)
		switch {
		case err == nil, errors.Is(err, domain.ErrNotFound):
			if derr := r.db.DeleteScheduledEffect(eff.ID); derr != nil {
				r.log.Error("delete executed effect failed",
					zap.String("effect_id", eff.ID), zap.Error(derr))
				continue
			}
			observability.PendingReverts.Dec()
			observability.ScheduledReverts.WithLabelValues(string(eff.Kind)).Inc()
			if err == nil {
				r.announce(ctx, eff)
			} else {
				r.log.Info("revert target gone, dropping",
					zap.String("effect_id", eff.ID), zap.String("kind", string(eff.Kind)))
			}
		default:
			r.log.Warn("revert failed, will retry",
				zap.String("effect_id", eff.ID), zap.String("kind", string(eff.Kind)), zap.Error(err))
		}
	}
}

func (r *Reaper) execute(ctx context.Context, eff domain.ScheduledEffect) error {
	switch eff.Kind {
	case domain.EffectRemoveRole:
		return r.platform.RevokeRole(ctx, eff.GuildID, eff.TargetID, eff.ResourceID)
	case domain.EffectDeleteRole:
		if err := r.platform.RevokeRole(ctx, eff.GuildID, eff.TargetID, eff.ResourceID); err != nil {
			return err
		}
		return r.platform.DeleteRole(ctx, eff.GuildID, eff.ResourceID)
	case domain.EffectDeleteChannel:
		return r.platform.DeleteChannel(ctx, eff.ResourceID)
	case domain.EffectVoiceUnmute:
		return r.platform.SetVoiceMute(ctx, eff.GuildID, eff.TargetID, false)
	case domain.EffectTextUnmute:
		return r.platform.SetTextMute(ctx, eff.GuildID, eff.TargetID, false)
	default:
		// Unknown kind: drop it rather than retry forever.
		r.log.Error("unknown effect kind", zap.String("kind", string(eff.Kind)))
		return domain.ErrNotFound
	}
}

func (r *Reaper) announce(ctx context.Context, eff domain.ScheduledEffect) {
	stamp := r.now().UTC().Format("2006-01-02 15:04:05 UTC")
	var entry string
	switch eff.Kind {
	case domain.EffectRemoveRole:
		entry = "⏰ **Fim do Cargo VIP**\nUsuário: " + eff.TargetID
	case domain.EffectDeleteRole:
		entry = "⏰ **Fim do Cargo Personalizado**\nUsuário: " + eff.TargetID
	case domain.EffectDeleteChannel:
		entry = "⏰ **Fim do Canal de Voz Privado**\nCanal: " + eff.ResourceID
	case domain.EffectVoiceUnmute:
		entry = "🔊 **Fim do Mute em Canal de Voz**\nUsuário: " + eff.TargetID
	case domain.EffectTextUnmute:
		entry = "🔊 **Fim do Mute em Canais de Texto**\nUsuário: " + eff.TargetID
	default:
		return
	}
	r.book.Record(ctx, entry+"\nData: "+stamp)
}
