// Package moderation implements the moderator commands: ban, kick, message
// cleanup and the timed Muted role. Timed unmutes are persisted like
// purchase reverts, so a restart does not leave anyone muted forever.
package moderation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
	"github.com/rupianet/rupia/internal/infra/logbook"
	"github.com/rupianet/rupia/internal/infra/observability"
	"github.com/rupianet/rupia/internal/infra/sqlite"
)

// MutedRoleName is the role the mute command grants. It is created on first
// use with send-messages denied everywhere.
const MutedRoleName = "Muted"

// ClearLimit caps one cleanup call.
const ClearLimit = 100

// Service runs moderator actions. All methods assume the caller already
// passed the moderator gate (IsModerator).
type Service struct {
	db       *sqlite.DB
	platform domain.Platform
	book     *logbook.Logbook
	log      *zap.Logger

	moderatorRoleID string

	now   func() time.Time
	newID func() string
}

func New(db *sqlite.DB, platform domain.Platform, book *logbook.Logbook, log *zap.Logger, moderatorRoleID string) *Service {
	return &Service{
		db:              db,
		platform:        platform,
		book:            book,
		log:             log,
		moderatorRoleID: moderatorRoleID,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

func (s *Service) stamp() string {
	return s.now().UTC().Format("2006-01-02 15:04:05 UTC")
}

// IsModerator reports whether the user carries the configured moderator role.
// An unconfigured role id denies everyone.
func (s *Service) IsModerator(ctx context.Context, guildID, userID string) (bool, error) {
	if s.moderatorRoleID == "" {
		return false, nil
	}
	return s.platform.HasRole(ctx, guildID, userID, s.moderatorRoleID)
}

// Ban removes the member permanently.
func (s *Service) Ban(ctx context.Context, guildID, modID, modName, targetID, reason string) error {
	if err := s.platform.BanMember(ctx, guildID, targetID, reason); err != nil {
		return err
	}
	observability.ModerationActions.WithLabelValues("ban").Inc()
	if reason == "" {
		reason = "Não especificado"
	}
	s.book.Record(ctx, fmt.Sprintf(
		"🚫 **Banimento**\nUsuário: %s\nModerador: %s (%s)\nMotivo: %s\nData: %s",
		targetID, modName, modID, reason, s.stamp()))
	return nil
}

// Kick removes the member; they may rejoin.
func (s *Service) Kick(ctx context.Context, guildID, modID, modName, targetID, reason string) error {
	if err := s.platform.KickMember(ctx, guildID, targetID, reason); err != nil {
		return err
	}
	observability.ModerationActions.WithLabelValues("kick").Inc()
	if reason == "" {
		reason = "Não especificado"
	}
	s.book.Record(ctx, fmt.Sprintf(
		"👢 **Expulsão**\nUsuário: %s\nModerador: %s (%s)\nMotivo: %s\nData: %s",
		targetID, modName, modID, reason, s.stamp()))
	return nil
}

// Clear purges up to ClearLimit messages from the channel and returns how
// many were removed.
func (s *Service) Clear(ctx context.Context, guildID, channelID, modID, modName string, amount int) (int, error) {
	if amount < 1 || amount > ClearLimit {
		return 0, fmt.Errorf("clear amount must be between 1 and %d, got %d", ClearLimit, amount)
	}
	n, err := s.platform.PurgeMessages(ctx, channelID, amount)
	if err != nil {
		return 0, err
	}
	observability.ModerationActions.WithLabelValues("clear").Inc()
	s.book.Record(ctx, fmt.Sprintf(
		"🧹 **Limpeza de Mensagens**\nCanal: %s\nModerador: %s (%s)\nQuantidade: %d\nData: %s",
		channelID, modName, modID, n, s.stamp()))
	return n, nil
}

// ParseDuration reads the mute duration syntax: a positive integer followed
// by s, m, h or d.
func ParseDuration(raw string) (time.Duration, error) {
	if len(raw) < 2 {
		return 0, fmt.Errorf("formato de tempo inválido: %q", raw)
	}
	unit := strings.ToLower(raw[len(raw)-1:])
	mult, ok := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
	}[unit]
	if !ok {
		return 0, fmt.Errorf("unidade de tempo inválida: %q", unit)
	}
	value, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil {
		return 0, fmt.Errorf("formato de tempo inválido: %q", raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("o tempo deve ser maior que 0")
	}
	return time.Duration(value) * mult, nil
}

// Mute grants the Muted role for the given duration and schedules its durable
// removal. The role is created on first use, denied send-messages everywhere.
func (s *Service) Mute(ctx context.Context, guildID, modID, modName, targetID string, d time.Duration) error {
	roleID, created, err := s.platform.EnsureRole(ctx, guildID, MutedRoleName, "Cargo criado para silenciar usuários")
	if err != nil {
		return err
	}
	if created {
		if err := s.platform.DenyRoleMessages(ctx, guildID, roleID); err != nil {
			return err
		}
	}
	if err := s.platform.GrantRole(ctx, guildID, targetID, roleID); err != nil {
		return err
	}

	eff := domain.ScheduledEffect{
		ID:         s.newID(),
		Kind:       domain.EffectRemoveRole,
		GuildID:    guildID,
		TargetID:   targetID,
		ResourceID: roleID,
		ExpiresAt:  s.now().UTC().Add(d),
	}
	if err := s.db.InsertScheduledEffect(eff); err != nil {
		s.log.Error("schedule unmute failed", zap.String("target_id", targetID), zap.Error(err))
	} else {
		observability.PendingReverts.Inc()
	}

	observability.ModerationActions.WithLabelValues("mute").Inc()
	s.book.Record(ctx, fmt.Sprintf(
		"🔇 **Silenciamento**\nUsuário: %s\nModerador: %s (%s)\nDuração: %s\nData: %s",
		targetID, modName, modID, d, s.stamp()))
	return nil
}
