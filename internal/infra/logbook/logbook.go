// Package logbook mirrors economy and moderation actions to a Discord log
// channel and the process log. A failed channel send is reported to the
// process log only; logging never escalates into the calling flow.
package logbook

import (
	"context"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
)

// Logbook writes action entries.
type Logbook struct {
	platform  domain.Platform
	channelID string
	log       *zap.Logger
}

// New creates a Logbook posting to the given channel. An empty channelID
// disables the Discord mirror and keeps only the process log.
func New(platform domain.Platform, channelID string, log *zap.Logger) *Logbook {
	return &Logbook{platform: platform, channelID: channelID, log: log}
}

// Record posts the entry to the log channel and the process log.
func (b *Logbook) Record(ctx context.Context, entry string) {
	b.log.Info("action", zap.String("entry", entry))
	if b.channelID == "" {
		return
	}
	if err := b.platform.SendMessage(ctx, b.channelID, entry); err != nil {
		b.log.Error("log channel send failed",
			zap.String("channel_id", b.channelID), zap.Error(err))
	}
}
