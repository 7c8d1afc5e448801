// Package ratelimit tracks per-user earning cooldowns and daily quotas.
//
// All state is volatile: a restart resets cooldowns and quotas, which the
// economy accepts by design. Daily quotas reset lazily when the stored UTC
// date differs from the current one; there is no scheduled reset job.
package ratelimit

import (
	"sync"
	"time"
)

// Channel is an earning channel with its own cooldown clock.
type Channel string

const (
	ChannelText  Channel = "text"
	ChannelVoice Channel = "voice"
)

// QuotaType names a daily quota bucket.
type QuotaType string

const (
	QuotaMessage QuotaType = "message"
	QuotaVoice   QuotaType = "voice"
)

// Default earning limits.
const (
	TextCooldown      = 60 * time.Second
	VoiceCooldown     = 300 * time.Second
	DailyMessageLimit = 10
	DailyVoiceLimit   = 20
)

type cooldownKey struct {
	userID  string
	channel Channel
}

type quotaKey struct {
	userID string
	qtype  QuotaType
}

type quotaEntry struct {
	date   string // UTC calendar date, time.DateOnly
	count  int
	warned bool // the one-shot "limit reached" notice fired today
}

// Limiter holds cooldown timestamps and daily counters for all users.
type Limiter struct {
	mu        sync.Mutex
	cooldowns map[cooldownKey]time.Time
	quotas    map[quotaKey]*quotaEntry
	textCD    time.Duration
	voiceCD   time.Duration

	now func() time.Time // injectable clock for testing
}

// New creates a Limiter with the given cooldown windows.
func New(textCooldown, voiceCooldown time.Duration) *Limiter {
	return &Limiter{
		cooldowns: make(map[cooldownKey]time.Time),
		quotas:    make(map[quotaKey]*quotaEntry),
		textCD:    textCooldown,
		voiceCD:   voiceCooldown,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *Limiter) cooldown(ch Channel) time.Duration {
	if ch == ChannelVoice {
		return l.voiceCD
	}
	return l.textCD
}

// CanEarn reports whether the channel's cooldown has elapsed for the user.
func (l *Limiter) CanEarn(userID string, ch Channel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.cooldowns[cooldownKey{userID, ch}]
	if !ok {
		return true
	}
	return l.now().Sub(last) >= l.cooldown(ch)
}

// RecordEarn stores the earn timestamp for the user's channel.
func (l *Limiter) RecordEarn(userID string, ch Channel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cooldowns[cooldownKey{userID, ch}] = l.now()
}

// entry returns today's quota entry for the key, resetting a stale one.
// Called with l.mu held.
func (l *Limiter) entry(key quotaKey) *quotaEntry {
	today := l.now().UTC().Format(time.DateOnly)
	e, ok := l.quotas[key]
	if !ok || e.date != today {
		e = &quotaEntry{date: today}
		l.quotas[key] = e
	}
	return e
}

// QuotaExhausted reports whether the user's daily quota is spent, and whether
// this call is the first denial since it filled, so the caller emits the
// "limit reached" notice exactly on that first denial.
func (l *Limiter) QuotaExhausted(userID string, qt QuotaType, limit int) (exhausted, firstDenial bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(quotaKey{userID, qt})
	if e.count < limit {
		return false, false
	}
	if !e.warned {
		e.warned = true
		return true, true
	}
	return true, false
}

// ConsumeDailyQuota increments the user's daily counter. It returns false
// without incrementing when the counter already reached the limit.
func (l *Limiter) ConsumeDailyQuota(userID string, qt QuotaType, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(quotaKey{userID, qt})
	if e.count >= limit {
		return false
	}
	e.count++
	return true
}

// DailyCount returns today's consumed count for the user's quota bucket.
func (l *Limiter) DailyCount(userID string, qt QuotaType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entry(quotaKey{userID, qt}).count
}
