// Package earning credits Rupias for chat and voice activity.
//
// Two paths feed the ledger: inbound messages (1 Rupia each, 60s cooldown,
// 10/day) and a periodic voice-presence scan (1 Rupia per eligible tick, 300s
// cooldown, 20/day). Both advance the matching achievements. Cooldowns,
// quotas and the spam history are process-lifetime state; losing them on
// restart is accepted.
package earning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
	"github.com/rupianet/rupia/internal/infra/achievements"
	"github.com/rupianet/rupia/internal/infra/ledger"
	"github.com/rupianet/rupia/internal/infra/logbook"
	"github.com/rupianet/rupia/internal/infra/observability"
	"github.com/rupianet/rupia/internal/infra/ratelimit"
)

// Reward sizes and scan cadence.
const (
	MessageReward    int64 = 1
	VoiceReward      int64 = 1
	VoiceScanPeriod        = 60 * time.Second
	voiceTickSeconds int64 = 60 // voice-achievement accrual per scan

	spamWindow = 3 // identical messages required to flag spam
)

// Engine consumes message events and runs the voice scan.
type Engine struct {
	ledger   *ledger.Store
	limiter  *ratelimit.Limiter
	tracker  *achievements.Tracker
	platform domain.Platform
	book     *logbook.Logbook
	log      *zap.Logger

	dailyMessageLimit int
	dailyVoiceLimit   int

	mu      sync.Mutex
	history map[string][]string // user id → last messages, newest last

	now func() time.Time // injectable clock for testing
}

// New creates an earning engine with the given daily limits.
func New(store *ledger.Store, limiter *ratelimit.Limiter, tracker *achievements.Tracker,
	platform domain.Platform, book *logbook.Logbook, log *zap.Logger,
	dailyMessageLimit, dailyVoiceLimit int) *Engine {
	return &Engine{
		ledger:            store,
		limiter:           limiter,
		tracker:           tracker,
		platform:          platform,
		book:              book,
		log:               log,
		dailyMessageLimit: dailyMessageLimit,
		dailyVoiceLimit:   dailyVoiceLimit,
		history:           make(map[string][]string),
		now:               time.Now,
	}
}

func (e *Engine) stamp() string {
	return e.now().UTC().Format("2006-01-02 15:04:05 UTC")
}

// ─── Message Earning ────────────────────────────────────────────────────────

// HandleMessage processes one inbound chat message. Automated authors earn
// nothing; messages inside the cooldown are dropped silently.
func (e *Engine) HandleMessage(ctx context.Context, ev domain.MessageEvent) {
	if ev.Bot {
		return
	}

	if !e.limiter.CanEarn(ev.AuthorID, ratelimit.ChannelText) {
		return
	}

	// The spam check runs before any quota accounting, so a flagged message
	// costs the user neither cooldown nor quota.
	if e.isSpam(ev.AuthorID, ev.Content) {
		observability.SpamFlags.Inc()
		e.book.Record(ctx, fmt.Sprintf(
			"🚨 **Possível Spam Detectado**\nUsuário: %s (%s)\nMensagem: %s\nData: %s",
			ev.AuthorName, ev.AuthorID, ev.Content, e.stamp()))
		return
	}
	e.remember(ev.AuthorID, ev.Content)

	if exhausted, first := e.limiter.QuotaExhausted(ev.AuthorID, ratelimit.QuotaMessage, e.dailyMessageLimit); exhausted {
		if first {
			observability.QuotaDenials.WithLabelValues("message").Inc()
			e.book.Record(ctx, fmt.Sprintf(
				"⚠️ **Limite Diário Atingido (Mensagens)**\nUsuário: %s (%s)\nLimite: %d Rupias por dia\nData: %s",
				ev.AuthorName, ev.AuthorID, e.dailyMessageLimit, e.stamp()))
		}
		return
	}
	if !e.limiter.ConsumeDailyQuota(ev.AuthorID, ratelimit.QuotaMessage, e.dailyMessageLimit) {
		return
	}

	bal, err := e.ledger.Credit(ev.AuthorID, ev.AuthorName, MessageReward)
	if err != nil {
		e.log.Error("message credit failed", zap.String("user_id", ev.AuthorID), zap.Error(err))
		return
	}
	e.limiter.RecordEarn(ev.AuthorID, ratelimit.ChannelText)
	observability.CreditsEarned.WithLabelValues("message").Add(float64(MessageReward))

	e.advance(ctx, ev.AuthorID, ev.AuthorName, domain.AchMensageiro, 1)

	e.book.Record(ctx, fmt.Sprintf(
		"💰 **Ganho de Rupias (Mensagem)**\nUsuário: %s (%s)\nQuantidade: %d Rupia\nNovo Saldo: %d Rupias\nData: %s",
		ev.AuthorName, ev.AuthorID, MessageReward, bal, e.stamp()))
}

// isSpam reports whether the user's last spamWindow messages all equal
// content. Exact match only.
func (e *Engine) isSpam(userID, content string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	recent := e.history[userID]
	if len(recent) < spamWindow {
		return false
	}
	for _, msg := range recent {
		if msg != content {
			return false
		}
	}
	return true
}

// remember pushes content into the user's sliding window, dropping the
// oldest entry past spamWindow.
func (e *Engine) remember(userID, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := append(e.history[userID], content)
	if len(h) > spamWindow {
		h = h[len(h)-spamWindow:]
	}
	e.history[userID] = h
}

// ─── Voice Earning ──────────────────────────────────────────────────────────

// RunVoiceScan ticks every VoiceScanPeriod until ctx is cancelled. The caller
// must not start it before the platform session is established.
func (e *Engine) RunVoiceScan(ctx context.Context) {
	ticker := time.NewTicker(VoiceScanPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ScanVoiceOnce(ctx)
		}
	}
}

// ScanVoiceOnce credits every eligible user currently in a voice channel.
func (e *Engine) ScanVoiceOnce(ctx context.Context) {
	guilds, err := e.platform.Guilds(ctx)
	if err != nil {
		e.log.Error("voice scan: list guilds failed", zap.Error(err))
		return
	}

	for _, guildID := range guilds {
		members, err := e.platform.VoiceMembers(ctx, guildID)
		if err != nil {
			e.log.Error("voice scan: list voice members failed",
				zap.String("guild_id", guildID), zap.Error(err))
			continue
		}
		for _, m := range members {
			if m.Bot {
				continue
			}
			e.creditVoiceTick(ctx, m)
		}
	}
}

func (e *Engine) creditVoiceTick(ctx context.Context, m domain.Member) {
	// Inside the voice cooldown the tick still counts toward Voz Ativa,
	// just without currency.
	if !e.limiter.CanEarn(m.ID, ratelimit.ChannelVoice) {
		e.advance(ctx, m.ID, m.Name, domain.AchVozAtiva, voiceTickSeconds)
		return
	}

	if exhausted, first := e.limiter.QuotaExhausted(m.ID, ratelimit.QuotaVoice, e.dailyVoiceLimit); exhausted {
		if first {
			observability.QuotaDenials.WithLabelValues("voice").Inc()
			e.book.Record(ctx, fmt.Sprintf(
				"⚠️ **Limite Diário Atingido (Voz)**\nUsuário: %s (%s)\nLimite: %d Rupias por dia\nData: %s",
				m.Name, m.ID, e.dailyVoiceLimit, e.stamp()))
		}
		return
	}
	if !e.limiter.ConsumeDailyQuota(m.ID, ratelimit.QuotaVoice, e.dailyVoiceLimit) {
		return
	}

	bal, err := e.ledger.Credit(m.ID, m.Name, VoiceReward)
	if err != nil {
		e.log.Error("voice credit failed", zap.String("user_id", m.ID), zap.Error(err))
		return
	}
	e.limiter.RecordEarn(m.ID, ratelimit.ChannelVoice)
	observability.CreditsEarned.WithLabelValues("voice").Add(float64(VoiceReward))

	e.advance(ctx, m.ID, m.Name, domain.AchVozAtiva, voiceTickSeconds)

	e.book.Record(ctx, fmt.Sprintf(
		"🎙️ **Ganho de Rupias (Voz)**\nUsuário: %s (%s)\nQuantidade: %d Rupia\nNovo Saldo: %d Rupias\nData: %s",
		m.Name, m.ID, VoiceReward, bal, e.stamp()))
}

// ─── Achievement Notification ───────────────────────────────────────────────

// advance records achievement progress and announces a completion to the user
// and the log channel. A blocked DM is logged and swallowed.
func (e *Engine) advance(ctx context.Context, userID, name string, id domain.AchievementID, delta int64) {
	res, err := e.tracker.RecordProgress(userID, name, id, delta)
	if err != nil {
		e.log.Error("achievement progress failed",
			zap.String("user_id", userID), zap.String("achievement", string(id)), zap.Error(err))
		return
	}
	if !res.JustCompleted {
		return
	}
	observability.AchievementsCompleted.WithLabelValues(string(id)).Inc()
	observability.CreditsEarned.WithLabelValues("achievement").Add(float64(res.Def.Reward))

	if err := e.platform.SendDM(ctx, userID, fmt.Sprintf(
		"🎉 **Conquista Desbloqueada!** Você completou a conquista '%s' e ganhou %d Rupias!",
		res.Def.Name, res.Def.Reward)); err != nil {
		e.log.Warn("achievement DM failed", zap.String("user_id", userID), zap.Error(err))
	}
	e.book.Record(ctx, fmt.Sprintf(
		"🏆 **Conquista Desbloqueada**\nUsuário: %s (%s)\nConquista: %s\nRecompensa: %d Rupias\nNovo Saldo: %d Rupias\nData: %s",
		name, userID, res.Def.Name, res.Def.Reward, res.NewBalance, e.stamp()))
}
