// Package platformtest provides a scriptable in-memory Platform for engine
// and command tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rupianet/rupia/internal/domain"
)

// Sent is one delivered message.
type Sent struct {
	To      string // channel or user id
	Content string
}

// SentFile is one uploaded attachment.
type SentFile struct {
	To   string
	Name string
	Data []byte
}

// RoleOp is one role grant/revoke.
type RoleOp struct {
	GuildID string
	UserID  string
	RoleID  string
}

// CreatedChannel is one channel created through the fake.
type CreatedChannel struct {
	ID         string
	GuildID    string
	CategoryID string
	Name       string
	OwnerID    string
}

// Fake implements domain.Platform in memory. Zero value is usable; configure
// the exported fields before use and inspect them afterwards.
type Fake struct {
	mu sync.Mutex

	// Scripted inputs
	Replies       []string                   // consumed by AwaitReply, in order
	Missing       domain.Permission          // returned by MissingPermissions
	OwnerID       string                     // guild owner
	GuildList     []string                   // returned by Guilds
	Voice         map[string][]domain.Member // guild id → members in voice
	Members       map[string][]domain.Member // guild id → all members
	RolesByName   map[string]string          // role name → id (EnsureRole lookups)
	MemberRoles   map[string][]string        // user id → role ids (HasRole)
	BlockedDMs    map[string]bool            // user id → SendDM returns ErrDMBlocked
	Errors        map[string]error           // method name → forced error
	DeadResources map[string]bool            // role/channel ids that return ErrNotFound

	// Recorded outputs
	Messages        []Sent
	DMs             []Sent
	Files           []SentFile
	Granted         []RoleOp
	Revoked         []RoleOp
	CreatedRoles    []string // role names, in creation order
	DeletedRoles    []string
	Disconnected    []string
	VoiceMuted      map[string]bool
	TextMuted       map[string]bool
	CreatedChannels []CreatedChannel
	DeletedChannels []string
	ChannelAccess   map[string][]string // channel id → invited user ids
	Banned          []string
	Kicked          []string
	PurgeCalls      []int
	DeniedRoles     []string // roles passed to DenyRoleMessages

	nextID int
}

var _ domain.Platform = (*Fake)(nil)

func (f *Fake) forced(method string) error {
	if f.Errors == nil {
		return nil
	}
	return f.Errors[method]
}

func (f *Fake) dead(resourceID string) bool {
	return f.DeadResources != nil && f.DeadResources[resourceID]
}

func (f *Fake) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// ─── Messaging ──────────────────────────────────────────────────────────────

func (f *Fake) SendMessage(_ context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("SendMessage"); err != nil {
		return err
	}
	f.Messages = append(f.Messages, Sent{To: channelID, Content: content})
	return nil
}

func (f *Fake) SendDM(_ context.Context, userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BlockedDMs != nil && f.BlockedDMs[userID] {
		return domain.ErrDMBlocked
	}
	f.DMs = append(f.DMs, Sent{To: userID, Content: content})
	return nil
}

func (f *Fake) SendFile(_ context.Context, channelID, filename string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("SendFile"); err != nil {
		return err
	}
	f.Files = append(f.Files, SentFile{To: channelID, Name: filename, Data: data})
	return nil
}

// AwaitReply pops the next scripted reply; an exhausted script times out.
func (f *Fake) AwaitReply(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("AwaitReply"); err != nil {
		return "", err
	}
	if len(f.Replies) == 0 {
		return "", domain.ErrPromptTimeout
	}
	reply := f.Replies[0]
	f.Replies = f.Replies[1:]
	return reply, nil
}

func (f *Fake) PurgeMessages(_ context.Context, _ string, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("PurgeMessages"); err != nil {
		return 0, err
	}
	f.PurgeCalls = append(f.PurgeCalls, limit)
	return limit, nil
}

// ─── Guild Introspection ────────────────────────────────────────────────────

func (f *Fake) Guilds(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.GuildList, nil
}

func (f *Fake) GuildOwnerID(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.OwnerID, nil
}

func (f *Fake) MissingPermissions(_ context.Context, _ string, wanted domain.Permission) (domain.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return wanted & f.Missing, nil
}

func (f *Fake) HasRole(_ context.Context, _, userID, roleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.MemberRoles[userID] {
		if id == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fake) VoiceMembers(_ context.Context, guildID string) ([]domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("VoiceMembers"); err != nil {
		return nil, err
	}
	return f.Voice[guildID], nil
}

func (f *Fake) GuildMembers(_ context.Context, guildID string) ([]domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Members[guildID], nil
}

// ─── Roles ──────────────────────────────────────────────────────────────────

func (f *Fake) EnsureRole(_ context.Context, _, name, _ string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("EnsureRole"); err != nil {
		return "", false, err
	}
	if id, ok := f.RolesByName[name]; ok {
		return id, false, nil
	}
	id := f.genID("role")
	if f.RolesByName == nil {
		f.RolesByName = make(map[string]string)
	}
	f.RolesByName[name] = id
	f.CreatedRoles = append(f.CreatedRoles, name)
	return id, true, nil
}

func (f *Fake) CreateRole(_ context.Context, _, name, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("CreateRole"); err != nil {
		return "", err
	}
	f.CreatedRoles = append(f.CreatedRoles, name)
	return f.genID("role"), nil
}

func (f *Fake) DeleteRole(_ context.Context, _, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("DeleteRole"); err != nil {
		return err
	}
	if f.dead(roleID) {
		return domain.ErrNotFound
	}
	f.DeletedRoles = append(f.DeletedRoles, roleID)
	return nil
}

func (f *Fake) GrantRole(_ context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("GrantRole"); err != nil {
		return err
	}
	f.Granted = append(f.Granted, RoleOp{guildID, userID, roleID})
	return nil
}

func (f *Fake) RevokeRole(_ context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("RevokeRole"); err != nil {
		return err
	}
	if f.dead(roleID) {
		return domain.ErrNotFound
	}
	f.Revoked = append(f.Revoked, RoleOp{guildID, userID, roleID})
	return nil
}

func (f *Fake) DenyRoleMessages(_ context.Context, _, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeniedRoles = append(f.DeniedRoles, roleID)
	return nil
}

// ─── Voice & Channels ───────────────────────────────────────────────────────

func (f *Fake) DisconnectVoice(_ context.Context, _, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("DisconnectVoice"); err != nil {
		return err
	}
	f.Disconnected = append(f.Disconnected, userID)
	return nil
}

func (f *Fake) SetVoiceMute(_ context.Context, _, userID string, muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("SetVoiceMute"); err != nil {
		return err
	}
	if f.VoiceMuted == nil {
		f.VoiceMuted = make(map[string]bool)
	}
	f.VoiceMuted[userID] = muted
	return nil
}

func (f *Fake) SetTextMute(_ context.Context, _, userID string, muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("SetTextMute"); err != nil {
		return err
	}
	if f.TextMuted == nil {
		f.TextMuted = make(map[string]bool)
	}
	f.TextMuted[userID] = muted
	return nil
}

func (f *Fake) CreatePrivateVoiceChannel(_ context.Context, guildID, categoryID, name, ownerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("CreatePrivateVoiceChannel"); err != nil {
		return "", err
	}
	id := f.genID("chan")
	f.CreatedChannels = append(f.CreatedChannels, CreatedChannel{
		ID: id, GuildID: guildID, CategoryID: categoryID, Name: name, OwnerID: ownerID,
	})
	return id, nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("DeleteChannel"); err != nil {
		return err
	}
	if f.dead(channelID) {
		return domain.ErrNotFound
	}
	f.DeletedChannels = append(f.DeletedChannels, channelID)
	return nil
}

func (f *Fake) GrantChannelAccess(_ context.Context, channelID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("GrantChannelAccess"); err != nil {
		return err
	}
	if f.dead(channelID) {
		return domain.ErrNotFound
	}
	if f.ChannelAccess == nil {
		f.ChannelAccess = make(map[string][]string)
	}
	f.ChannelAccess[channelID] = append(f.ChannelAccess[channelID], userID)
	return nil
}

// ─── Moderation ─────────────────────────────────────────────────────────────

func (f *Fake) BanMember(_ context.Context, _, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("BanMember"); err != nil {
		return err
	}
	f.Banned = append(f.Banned, userID)
	return nil
}

func (f *Fake) KickMember(_ context.Context, _, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.forced("KickMember"); err != nil {
		return err
	}
	f.Kicked = append(f.Kicked, userID)
	return nil
}
