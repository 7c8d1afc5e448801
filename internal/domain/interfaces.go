package domain

import (
	"context"
	"time"
)

// ─── Platform Interface ─────────────────────────────────────────────────────
// Platform abstracts the chat platform (Discord via discordgo in production).
// Infrastructure implements it; the application layer depends on it. Every
// engine and command handler goes through this boundary, which keeps the
// economy logic testable against a fake.

// Member is a guild member as the engines see one.
type Member struct {
	ID   string
	Name string
	Bot  bool
}

// Platform is the narrow interface over the chat platform.
type Platform interface {
	// Messaging
	SendMessage(ctx context.Context, channelID, content string) error
	// SendDM delivers a direct message. Returns ErrDMBlocked when the
	// recipient disallows DMs; callers log and continue.
	SendDM(ctx context.Context, userID, content string) error
	// SendFile uploads an attachment to the channel.
	SendFile(ctx context.Context, channelID, filename string, data []byte) error
	// AwaitReply blocks until the given user replies in the given channel or
	// the timeout elapses (ErrPromptTimeout).
	AwaitReply(ctx context.Context, channelID, userID string, timeout time.Duration) (string, error)
	PurgeMessages(ctx context.Context, channelID string, limit int) (int, error)

	// Guild introspection
	Guilds(ctx context.Context) ([]string, error)
	GuildOwnerID(ctx context.Context, guildID string) (string, error)
	// MissingPermissions reports which of the wanted capabilities the bot
	// currently lacks in the guild (zero means all granted).
	MissingPermissions(ctx context.Context, guildID string, wanted Permission) (Permission, error)
	HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	VoiceMembers(ctx context.Context, guildID string) ([]Member, error)
	GuildMembers(ctx context.Context, guildID string) ([]Member, error)

	// Roles
	// EnsureRole returns the id of the named role, creating it if absent.
	EnsureRole(ctx context.Context, guildID, name, reason string) (roleID string, created bool, err error)
	CreateRole(ctx context.Context, guildID, name, reason string) (roleID string, err error)
	DeleteRole(ctx context.Context, guildID, roleID string) error
	GrantRole(ctx context.Context, guildID, userID, roleID string) error
	RevokeRole(ctx context.Context, guildID, userID, roleID string) error
	// DenyRoleMessages denies send-messages for the role on every channel.
	DenyRoleMessages(ctx context.Context, guildID, roleID string) error

	// Voice & channels
	DisconnectVoice(ctx context.Context, guildID, userID string) error
	SetVoiceMute(ctx context.Context, guildID, userID string, muted bool) error
	// SetTextMute denies (or restores) send-messages for the user on every
	// text channel in the guild.
	SetTextMute(ctx context.Context, guildID, userID string, muted bool) error
	CreatePrivateVoiceChannel(ctx context.Context, guildID, categoryID, name, ownerID string) (channelID string, err error)
	DeleteChannel(ctx context.Context, channelID string) error
	GrantChannelAccess(ctx context.Context, channelID, userID string) error

	// Moderation
	BanMember(ctx context.Context, guildID, userID, reason string) error
	KickMember(ctx context.Context, guildID, userID, reason string) error
}
