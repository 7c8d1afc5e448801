// Package stream announces when the configured live channel goes on air.
// Notification is edge-triggered: going live fires one message, and the
// flag re-arms only after the stream is seen offline again.
package stream

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
)

// DefaultPollInterval matches the original five-minute live check.
const DefaultPollInterval = 5 * time.Minute

// Status is one live-check result.
type Status struct {
	Live  bool
	Title string
	URL   string
}

// StatusSource answers whether the watched channel is currently live. A
// transient failure returns an error and leaves the notifier state untouched.
type StatusSource interface {
	Status(ctx context.Context) (Status, error)
}

// Notifier polls a StatusSource and posts one announcement per stream.
type Notifier struct {
	source      StatusSource
	platform    domain.Platform
	log         *zap.Logger
	channelID   string
	channelName string
	interval    time.Duration

	live bool
}

func NewNotifier(source StatusSource, platform domain.Platform, log *zap.Logger,
	channelID, channelName string, interval time.Duration) *Notifier {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Notifier{
		source:      source,
		platform:    platform,
		log:         log,
		channelID:   channelID,
		channelName: channelName,
		interval:    interval,
	}
}

// Run polls until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.Check(ctx)
		}
	}
}

// Check runs one poll cycle.
func (n *Notifier) Check(ctx context.Context) {
	st, err := n.source.Status(ctx)
	if err != nil {
		n.log.Warn("live status check failed", zap.Error(err))
		return
	}

	switch {
	case st.Live && !n.live:
		n.live = true
		title := st.Title
		if title == "" {
			title = "Sem título"
		}
		msg := fmt.Sprintf(
			"@everyone\n🎥 **%s está AO VIVO na Twitch!**\n**Título:** %s\n**Assista agora:** %s",
			n.channelName, title, st.URL)
		if err := n.platform.SendMessage(ctx, n.channelID, msg); err != nil {
			// Not announced yet; re-arm so the next poll retries.
			n.live = false
			n.log.Error("live notification failed", zap.Error(err))
			return
		}
		n.log.Info("live notification sent", zap.String("channel", n.channelName))
	case !st.Live && n.live:
		n.live = false
		n.log.Info("stream went offline", zap.String("channel", n.channelName))
	}
}
