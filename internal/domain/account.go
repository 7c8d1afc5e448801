// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the bot; it depends on nothing.
package domain

import "time"

// ─── Account Types ──────────────────────────────────────────────────────────

// Account is the per-user economy record. The JSON tags match the on-disk
// economy snapshot format, so accounts round-trip through the ledger file
// unchanged.
type Account struct {
	Balance      int64                                 `json:"coins"`
	DisplayName  string                                `json:"name"`
	Achievements map[AchievementID]*AchievementState   `json:"achievements,omitempty"`
}

// AchievementState tracks one user's progress against one achievement.
type AchievementState struct {
	Completed bool  `json:"completed"`
	Progress  int64 `json:"progress"`
}

// Achievement returns the state for the given achievement, creating a zero
// entry on first access.
func (a *Account) Achievement(id AchievementID) *AchievementState {
	if a.Achievements == nil {
		a.Achievements = make(map[AchievementID]*AchievementState)
	}
	st, ok := a.Achievements[id]
	if !ok {
		st = &AchievementState{}
		a.Achievements[id] = st
	}
	return st
}

// Clone returns a deep copy, safe to hand outside the ledger's lock.
func (a *Account) Clone() Account {
	out := Account{Balance: a.Balance, DisplayName: a.DisplayName}
	if a.Achievements != nil {
		out.Achievements = make(map[AchievementID]*AchievementState, len(a.Achievements))
		for id, st := range a.Achievements {
			cp := *st
			out.Achievements[id] = &cp
		}
	}
	return out
}

// RankedAccount is one leaderboard row.
type RankedAccount struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"name"`
	Balance     int64  `json:"coins"`
}

// ─── Events ─────────────────────────────────────────────────────────────────

// MessageEvent is an inbound chat message as seen by the earning engine and
// the command router.
type MessageEvent struct {
	GuildID    string
	ChannelID  string
	MessageID  string
	AuthorID   string
	AuthorName string
	Bot        bool
	Content    string
}

// MemberJoinEvent fires when a user joins a guild.
type MemberJoinEvent struct {
	GuildID string
	UserID  string
	Name    string
}

// ─── Scheduled Effects ──────────────────────────────────────────────────────

// EffectKind identifies the revert action a scheduled effect performs when it
// expires.
type EffectKind string

const (
	EffectRemoveRole    EffectKind = "remove_role"    // revoke a role from the target
	EffectDeleteRole    EffectKind = "delete_role"    // revoke and delete a bought role
	EffectDeleteChannel EffectKind = "delete_channel" // delete a private voice channel
	EffectVoiceUnmute   EffectKind = "voice_unmute"   // lift a server voice mute
	EffectTextUnmute    EffectKind = "text_unmute"    // lift per-channel text overrides
)

// ScheduledEffect is a deferred revert persisted at apply time so pending
// reverts survive a process restart.
type ScheduledEffect struct {
	ID         string     `json:"id"`
	Kind       EffectKind `json:"kind"`
	GuildID    string     `json:"guild_id"`
	TargetID   string     `json:"target_id"`   // user the revert applies to (empty for channels)
	ResourceID string     `json:"resource_id"` // role or channel id
	ExpiresAt  time.Time  `json:"expires_at"`
}

// ─── Purchase Audit ─────────────────────────────────────────────────────────

// PurchaseOutcome is the terminal state of a purchase attempt.
type PurchaseOutcome string

const (
	OutcomeApplied  PurchaseOutcome = "applied"
	OutcomeRefunded PurchaseOutcome = "refunded"
)

// PurchaseRecord is the audit row for one purchase attempt. It always carries
// the true buyer, whether or not the public announcement was anonymous.
type PurchaseRecord struct {
	ID        string          `json:"id"`
	ItemID    string          `json:"item_id"`
	BuyerID   string          `json:"buyer_id"`
	TargetID  string          `json:"target_id,omitempty"`
	Price     int64           `json:"price"`
	Surcharge int64           `json:"surcharge"`
	Anonymous bool            `json:"anonymous"`
	Outcome   PurchaseOutcome `json:"outcome"`
	CreatedAt time.Time       `json:"created_at"`
}
