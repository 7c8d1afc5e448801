package ratelimit

import (
	"testing"
	"time"
)

// fakeClock drives a Limiter's injectable clock.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	l := New(TextCooldown, VoiceCooldown)
	l.now = clock.now
	return l, clock
}

// ─── Cooldown Tests ─────────────────────────────────────────────────────────

func TestCanEarn_Cooldown(t *testing.T) {
	l, clock := newTestLimiter()

	if !l.CanEarn("u1", ChannelText) {
		t.Fatal("fresh user should be able to earn")
	}
	l.RecordEarn("u1", ChannelText)

	if l.CanEarn("u1", ChannelText) {
		t.Error("earn inside 60s cooldown should be blocked")
	}
	clock.advance(59 * time.Second)
	if l.CanEarn("u1", ChannelText) {
		t.Error("59s is still inside the text cooldown")
	}
	clock.advance(1 * time.Second)
	if !l.CanEarn("u1", ChannelText) {
		t.Error("60s elapsed, earn should be allowed again")
	}
}

func TestCanEarn_ChannelsIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	l.RecordEarn("u1", ChannelText)
	if !l.CanEarn("u1", ChannelVoice) {
		t.Error("text cooldown must not block voice earning")
	}
}

func TestCanEarn_VoiceCooldown(t *testing.T) {
	l, clock := newTestLimiter()
	l.RecordEarn("u1", ChannelVoice)

	clock.advance(299 * time.Second)
	if l.CanEarn("u1", ChannelVoice) {
		t.Error("299s is still inside the 300s voice cooldown")
	}
	clock.advance(1 * time.Second)
	if !l.CanEarn("u1", ChannelVoice) {
		t.Error("300s elapsed, voice earn should be allowed")
	}
}

// ─── Daily Quota Tests ──────────────────────────────────────────────────────

func TestDailyQuota_ExactLimit(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < DailyMessageLimit; i++ {
		if !l.ConsumeDailyQuota("u1", QuotaMessage, DailyMessageLimit) {
			t.Fatalf("consume %d of %d should succeed", i+1, DailyMessageLimit)
		}
	}
	if l.ConsumeDailyQuota("u1", QuotaMessage, DailyMessageLimit) {
		t.Error("consume past the limit should fail")
	}
	if got := l.DailyCount("u1", QuotaMessage); got != DailyMessageLimit {
		t.Errorf("DailyCount = %d, want %d (denial must not increment)", got, DailyMessageLimit)
	}
}

func TestDailyQuota_LazyReset(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < DailyMessageLimit; i++ {
		l.ConsumeDailyQuota("u1", QuotaMessage, DailyMessageLimit)
	}
	if l.ConsumeDailyQuota("u1", QuotaMessage, DailyMessageLimit) {
		t.Fatal("limit should be reached")
	}

	// First attempt the next UTC day succeeds even after a maxed-out day.
	clock.advance(24 * time.Hour)
	if !l.ConsumeDailyQuota("u1", QuotaMessage, DailyMessageLimit) {
		t.Error("quota should reset on the next calendar day")
	}
	if got := l.DailyCount("u1", QuotaMessage); got != 1 {
		t.Errorf("DailyCount after reset = %d, want 1", got)
	}
}

func TestDailyQuota_TypesIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	for i := 0; i < DailyMessageLimit; i++ {
		l.ConsumeDailyQuota("u1", QuotaMessage, DailyMessageLimit)
	}
	if !l.ConsumeDailyQuota("u1", QuotaVoice, DailyVoiceLimit) {
		t.Error("voice quota must be independent of the message quota")
	}
}

func TestQuotaExhausted_WarnsOnce(t *testing.T) {
	l, clock := newTestLimiter()

	if exhausted, _ := l.QuotaExhausted("u1", QuotaMessage, DailyMessageLimit); exhausted {
		t.Fatal("fresh quota should not be exhausted")
	}
	for i := 0; i < DailyMessageLimit; i++ {
		l.ConsumeDailyQuota("u1", QuotaMessage, DailyMessageLimit)
	}

	exhausted, first := l.QuotaExhausted("u1", QuotaMessage, DailyMessageLimit)
	if !exhausted || !first {
		t.Errorf("first denial = (%v, %v), want (true, true)", exhausted, first)
	}
	exhausted, first = l.QuotaExhausted("u1", QuotaMessage, DailyMessageLimit)
	if !exhausted || first {
		t.Errorf("second denial = (%v, %v), want (true, false)", exhausted, first)
	}

	// The warning re-arms with the daily reset.
	clock.advance(24 * time.Hour)
	if exhausted, _ := l.QuotaExhausted("u1", QuotaMessage, DailyMessageLimit); exhausted {
		t.Error("quota should be fresh the next day")
	}
}

func TestQuota_UsersIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	for i := 0; i < DailyMessageLimit; i++ {
		l.ConsumeDailyQuota("u1", QuotaMessage, DailyMessageLimit)
	}
	if !l.ConsumeDailyQuota("u2", QuotaMessage, DailyMessageLimit) {
		t.Error("one user's quota must not affect another's")
	}
}
