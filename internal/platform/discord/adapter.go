// Package discord implements domain.Platform on top of a discordgo session.
// All Discord REST quirks live here: error-code mapping, permission overwrite
// bookkeeping, voice state lookups. Nothing above this package imports
// discordgo.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
)

const dmBlockedCode = 50007 // "Cannot send messages to this user"

// Adapter wraps a discordgo session behind domain.Platform.
type Adapter struct {
	session *discordgo.Session
	log     *zap.Logger

	mu      sync.Mutex
	waiters map[waiterKey][]chan string
}

type waiterKey struct {
	channelID string
	userID    string
}

// New wraps an open session. The caller owns the session lifecycle; the
// adapter only registers the reply-capture handler it needs for AwaitReply.
func New(session *discordgo.Session, log *zap.Logger) *Adapter {
	a := &Adapter{
		session: session,
		log:     log,
		waiters: make(map[waiterKey][]chan string),
	}
	session.AddHandler(a.captureReply)
	return a
}

// mapErr translates Discord REST failures into domain sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil && rest.Message.Code == dmBlockedCode {
			return domain.ErrDMBlocked
		}
		if rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
			return domain.ErrNotFound
		}
	}
	return err
}

// ─── Messaging ──────────────────────────────────────────────────────────────

func (a *Adapter) SendMessage(ctx context.Context, channelID, content string) error {
	_, err := a.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return mapErr(err)
}

func (a *Adapter) SendDM(ctx context.Context, userID, content string) error {
	ch, err := a.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapErr(err)
	}
	_, err = a.session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx))
	return mapErr(err)
}

func (a *Adapter) SendFile(ctx context.Context, channelID, filename string, data []byte) error {
	_, err := a.session.ChannelFileSend(channelID, filename, bytes.NewReader(data), discordgo.WithContext(ctx))
	return mapErr(err)
}

// captureReply feeds inbound messages to any AwaitReply waiter registered for
// the same channel and author. Runs on discordgo's event goroutine.
func (a *Adapter) captureReply(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	key := waiterKey{channelID: m.ChannelID, userID: m.Author.ID}

	a.mu.Lock()
	defer a.mu.Unlock()
	chans := a.waiters[key]
	if len(chans) == 0 {
		return
	}
	// Oldest waiter gets the reply.
	ch := chans[0]
	a.waiters[key] = chans[1:]
	if len(a.waiters[key]) == 0 {
		delete(a.waiters, key)
	}
	ch <- m.Content
}

func (a *Adapter) AwaitReply(ctx context.Context, channelID, userID string, timeout time.Duration) (string, error) {
	key := waiterKey{channelID: channelID, userID: userID}
	ch := make(chan string, 1)

	a.mu.Lock()
	a.waiters[key] = append(a.waiters[key], ch)
	a.mu.Unlock()

	defer a.dropWaiter(key, ch)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		return "", domain.ErrPromptTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (a *Adapter) dropWaiter(key waiterKey, ch chan string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	chans := a.waiters[key]
	for i, c := range chans {
		if c == ch {
			a.waiters[key] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(a.waiters[key]) == 0 {
		delete(a.waiters, key)
	}
}

func (a *Adapter) PurgeMessages(ctx context.Context, channelID string, limit int) (int, error) {
	msgs, err := a.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return 0, mapErr(err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	if err := a.session.ChannelMessagesBulkDelete(channelID, ids, discordgo.WithContext(ctx)); err != nil {
		return 0, mapErr(err)
	}
	return len(ids), nil
}

// ─── Guild Introspection ────────────────────────────────────────────────────

func (a *Adapter) Guilds(_ context.Context) ([]string, error) {
	guilds := a.session.State.Guilds
	ids := make([]string, 0, len(guilds))
	for _, g := range guilds {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

func (a *Adapter) guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if g, err := a.session.State.Guild(guildID); err == nil {
		return g, nil
	}
	g, err := a.session.Guild(guildID, discordgo.WithContext(ctx))
	return g, mapErr(err)
}

func (a *Adapter) GuildOwnerID(ctx context.Context, guildID string) (string, error) {
	g, err := a.guild(ctx, guildID)
	if err != nil {
		return "", err
	}
	return g.OwnerID, nil
}

// permissionBits maps each capability to its Discord permission flag.
var permissionBits = map[domain.Permission]int64{
	domain.PermManageRoles:    discordgo.PermissionManageRoles,
	domain.PermManageChannels: discordgo.PermissionManageChannels,
	domain.PermMuteMembers:    discordgo.PermissionVoiceMuteMembers,
	domain.PermMoveMembers:    discordgo.PermissionVoiceMoveMembers,
	domain.PermBanMembers:     discordgo.PermissionBanMembers,
	domain.PermKickMembers:    discordgo.PermissionKickMembers,
	domain.PermManageMessages: discordgo.PermissionManageMessages,
}

func (a *Adapter) MissingPermissions(ctx context.Context, guildID string, wanted domain.Permission) (domain.Permission, error) {
	g, err := a.guild(ctx, guildID)
	if err != nil {
		return 0, err
	}
	botID := a.session.State.User.ID
	if g.OwnerID == botID {
		return 0, nil
	}

	member, err := a.member(ctx, guildID, botID)
	if err != nil {
		return 0, err
	}

	var granted int64
	for _, role := range g.Roles {
		if role.ID == guildID { // @everyone
			granted |= role.Permissions
		}
	}
	for _, roleID := range member.Roles {
		for _, role := range g.Roles {
			if role.ID == roleID {
				granted |= role.Permissions
			}
		}
	}
	if granted&discordgo.PermissionAdministrator != 0 {
		return 0, nil
	}

	var missing domain.Permission
	for _, p := range wanted.Split() {
		if granted&permissionBits[p] == 0 {
			missing |= p
		}
	}
	return missing, nil
}

func (a *Adapter) member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if m, err := a.session.State.Member(guildID, userID); err == nil {
		return m, nil
	}
	m, err := a.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	return m, mapErr(err)
}

func (a *Adapter) HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	m, err := a.member(ctx, guildID, userID)
	if err != nil {
		return false, err
	}
	for _, id := range m.Roles {
		if id == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) VoiceMembers(ctx context.Context, guildID string) ([]domain.Member, error) {
	g, err := a.guild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	members := make([]domain.Member, 0, len(g.VoiceStates))
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == "" {
			continue
		}
		m, err := a.member(ctx, guildID, vs.UserID)
		if err != nil {
			a.log.Warn("voice member lookup failed",
				zap.String("guild_id", guildID), zap.String("user_id", vs.UserID), zap.Error(err))
			continue
		}
		members = append(members, toMember(m))
	}
	return members, nil
}

func (a *Adapter) GuildMembers(ctx context.Context, guildID string) ([]domain.Member, error) {
	var out []domain.Member
	after := ""
	for {
		batch, err := a.session.GuildMembers(guildID, after, 1000, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapErr(err)
		}
		for _, m := range batch {
			out = append(out, toMember(m))
		}
		if len(batch) < 1000 {
			return out, nil
		}
		after = batch[len(batch)-1].User.ID
	}
}

func toMember(m *discordgo.Member) domain.Member {
	name := m.Nick
	if name == "" && m.User != nil {
		name = m.User.Username
	}
	var bot bool
	var id string
	if m.User != nil {
		bot = m.User.Bot
		id = m.User.ID
	}
	return domain.Member{ID: id, Name: name, Bot: bot}
}

// ─── Roles ──────────────────────────────────────────────────────────────────

func (a *Adapter) EnsureRole(ctx context.Context, guildID, name, reason string) (string, bool, error) {
	g, err := a.guild(ctx, guildID)
	if err != nil {
		return "", false, err
	}
	for _, role := range g.Roles {
		if role.Name == name {
			return role.ID, false, nil
		}
	}
	id, err := a.CreateRole(ctx, guildID, name, reason)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (a *Adapter) CreateRole(ctx context.Context, guildID, name, reason string) (string, error) {
	role, err := a.session.GuildRoleCreate(guildID,
		&discordgo.RoleParams{Name: name}, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapErr(err)
	}
	if reason != "" {
		a.log.Info("role created",
			zap.String("guild_id", guildID), zap.String("role", name), zap.String("reason", reason))
	}
	return role.ID, nil
}

func (a *Adapter) DeleteRole(ctx context.Context, guildID, roleID string) error {
	return mapErr(a.session.GuildRoleDelete(guildID, roleID, discordgo.WithContext(ctx)))
}

func (a *Adapter) GrantRole(ctx context.Context, guildID, userID, roleID string) error {
	return mapErr(a.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (a *Adapter) RevokeRole(ctx context.Context, guildID, userID, roleID string) error {
	return mapErr(a.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (a *Adapter) DenyRoleMessages(ctx context.Context, guildID, roleID string) error {
	channels, err := a.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return mapErr(err)
	}
	for _, ch := range channels {
		err := a.session.ChannelPermissionSet(ch.ID, roleID,
			discordgo.PermissionOverwriteTypeRole,
			0, discordgo.PermissionSendMessages|discordgo.PermissionAddReactions,
			discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("deny messages on channel %s: %w", ch.ID, mapErr(err))
		}
	}
	return nil
}

// ─── Voice & Channels ───────────────────────────────────────────────────────

func (a *Adapter) DisconnectVoice(ctx context.Context, guildID, userID string) error {
	// A nil channel pointer disconnects the member.
	return mapErr(a.session.GuildMemberMove(guildID, userID, nil, discordgo.WithContext(ctx)))
}

func (a *Adapter) SetVoiceMute(ctx context.Context, guildID, userID string, muted bool) error {
	return mapErr(a.session.GuildMemberMute(guildID, userID, muted, discordgo.WithContext(ctx)))
}

func (a *Adapter) SetTextMute(ctx context.Context, guildID, userID string, muted bool) error {
	channels, err := a.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return mapErr(err)
	}
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		if muted {
			err = a.session.ChannelPermissionSet(ch.ID, userID,
				discordgo.PermissionOverwriteTypeMember,
				0, discordgo.PermissionSendMessages, discordgo.WithContext(ctx))
		} else {
			err = a.session.ChannelPermissionDelete(ch.ID, userID, discordgo.WithContext(ctx))
		}
		if err != nil {
			return fmt.Errorf("text mute on channel %s: %w", ch.ID, mapErr(err))
		}
	}
	return nil
}

func (a *Adapter) CreatePrivateVoiceChannel(ctx context.Context, guildID, categoryID, name, ownerID string) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			// @everyone is shut out; the owner invites people explicitly.
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect,
		},
		{
			ID:    ownerID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak,
		},
		{
			ID:    a.session.State.User.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionManageChannels,
		},
	}
	ch, err := a.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildVoice,
		ParentID:             categoryID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapErr(err)
	}
	return ch.ID, nil
}

func (a *Adapter) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := a.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return mapErr(err)
}

func (a *Adapter) GrantChannelAccess(ctx context.Context, channelID, userID string) error {
	return mapErr(a.session.ChannelPermissionSet(channelID, userID,
		discordgo.PermissionOverwriteTypeMember,
		discordgo.PermissionViewChannel|discordgo.PermissionVoiceConnect|discordgo.PermissionVoiceSpeak,
		0, discordgo.WithContext(ctx)))
}

// ─── Moderation ─────────────────────────────────────────────────────────────

func (a *Adapter) BanMember(ctx context.Context, guildID, userID, reason string) error {
	return mapErr(a.session.GuildBanCreateWithReason(guildID, userID, reason, 0, discordgo.WithContext(ctx)))
}

func (a *Adapter) KickMember(ctx context.Context, guildID, userID, reason string) error {
	return mapErr(a.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)))
}
