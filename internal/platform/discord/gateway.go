package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
)

var _ domain.Platform = (*Adapter)(nil)

// MessageHandler consumes inbound chat messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, ev domain.MessageEvent)
}

// JoinHandler consumes member joins.
type JoinHandler interface {
	HandleJoin(ctx context.Context, ev domain.MemberJoinEvent)
}

// Gateway owns the discordgo session and fans gateway events out to the
// application handlers.
type Gateway struct {
	session  *discordgo.Session
	log      *zap.Logger
	messages MessageHandler
	joins    JoinHandler
}

// Intents covers everything the bot listens for: guild messages for commands
// and earning, members for welcomes, voice states for the earning scan.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsDirectMessages |
	discordgo.IntentMessageContent

// NewGateway builds a session for the given bot token. The session is not
// opened yet; call Open after the handlers are registered.
func NewGateway(token string, log *zap.Logger) (*Gateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = Intents
	session.StateEnabled = true
	return &Gateway{session: session, log: log}, nil
}

// Session exposes the underlying session so the Adapter can wrap it.
func (g *Gateway) Session() *discordgo.Session { return g.session }

// OnMessage registers the inbound message consumer.
func (g *Gateway) OnMessage(h MessageHandler) { g.messages = h }

// OnJoin registers the member join consumer.
func (g *Gateway) OnJoin(h JoinHandler) { g.joins = h }

// Open connects to the gateway. Handlers must already be registered; events
// arriving before Open are impossible, events after Close are dropped by
// discordgo.
func (g *Gateway) Open(ctx context.Context) error {
	g.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		g.dispatchMessage(ctx, m)
	})
	g.session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		g.dispatchJoin(ctx, m)
	})
	g.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		g.log.Info("gateway ready",
			zap.String("bot_user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	})
	return g.session.Open()
}

func (g *Gateway) Close() error { return g.session.Close() }

func (g *Gateway) dispatchMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if g.messages == nil || m.Author == nil {
		return
	}
	if g.session.State.User != nil && m.Author.ID == g.session.State.User.ID {
		return
	}
	name := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		name = m.Member.Nick
	}
	g.messages.HandleMessage(ctx, domain.MessageEvent{
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		MessageID:  m.ID,
		AuthorID:   m.Author.ID,
		AuthorName: name,
		Bot:        m.Author.Bot,
		Content:    m.Content,
	})
}

func (g *Gateway) dispatchJoin(ctx context.Context, m *discordgo.GuildMemberAdd) {
	if g.joins == nil || m.User == nil || m.User.Bot {
		return
	}
	g.joins.HandleJoin(ctx, domain.MemberJoinEvent{
		GuildID: m.GuildID,
		UserID:  m.User.ID,
		Name:    m.User.Username,
	})
}
