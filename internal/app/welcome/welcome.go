// Package welcome greets new members in the configured channel.
package welcome

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
)

// BannerProvider renders an optional welcome banner for the new member. The
// daemon wires one only when banner rendering is available; without it the
// greeting is plain text.
type BannerProvider interface {
	Banner(ctx context.Context, memberName string) ([]byte, error)
}

// Greeter handles member-join events.
type Greeter struct {
	platform  domain.Platform
	log       *zap.Logger
	channelID string
	banner    BannerProvider // may be nil
}

func New(platform domain.Platform, log *zap.Logger, channelID string, banner BannerProvider) *Greeter {
	return &Greeter{platform: platform, log: log, channelID: channelID, banner: banner}
}

// HandleJoin sends the greeting. Without a configured channel it does
// nothing.
func (g *Greeter) HandleJoin(ctx context.Context, ev domain.MemberJoinEvent) {
	if g.channelID == "" {
		return
	}

	if g.banner != nil {
		img, err := g.banner.Banner(ctx, ev.Name)
		if err != nil {
			g.log.Warn("welcome banner failed, sending plain text",
				zap.String("user_id", ev.UserID), zap.Error(err))
		} else if err := g.platform.SendFile(ctx, g.channelID, "bem-vindo.png", img); err != nil {
			g.log.Warn("welcome banner upload failed",
				zap.String("user_id", ev.UserID), zap.Error(err))
		}
	}

	msg := fmt.Sprintf("Bem-vindo(a), <@%s>! Leia as regras em #regras e se apresente no #geral! 🎉", ev.UserID)
	if err := g.platform.SendMessage(ctx, g.channelID, msg); err != nil {
		g.log.Error("welcome message failed", zap.String("user_id", ev.UserID), zap.Error(err))
		return
	}
	g.log.Info("member welcomed", zap.String("user_id", ev.UserID), zap.String("name", ev.Name))
}
