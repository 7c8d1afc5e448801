// Package purchase runs the Rupia shop: Validate, Charge, Prompt, Apply,
// then Commit or Refund. The buyer is charged right after validation and
// every later failure, including prompt timeouts and platform errors, refunds
// the price plus any anonymity surcharge already taken. A purchase therefore
// always ends charged-and-applied or fully refunded.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
	"github.com/rupianet/rupia/internal/infra/achievements"
	"github.com/rupianet/rupia/internal/infra/ledger"
	"github.com/rupianet/rupia/internal/infra/logbook"
	"github.com/rupianet/rupia/internal/infra/observability"
	"github.com/rupianet/rupia/internal/infra/sqlite"
)

// Prompt windows and effect durations.
const (
	TextPromptTimeout      = 60 * time.Second
	SelectPromptTimeout    = 30 * time.Second
	AnonymityPromptTimeout = 15 * time.Second

	VIPRoleDuration        = 30 * 24 * time.Hour
	CustomRoleDuration     = 7 * 24 * time.Hour
	PrivateChannelDuration = 24 * time.Hour
	MuteDuration           = 5 * time.Minute

	CustomRoleNameLimit = 50
	VIPRoleName         = "VIP"
)

// Request identifies one purchase attempt: who is buying what, and where the
// conversation with the buyer happens.
type Request struct {
	GuildID   string
	ChannelID string
	BuyerID   string
	BuyerName string
	ItemID    string
}

// privateChannel tracks one live bought voice channel and its invite list.
type privateChannel struct {
	channelID string
	name      string
	invited   map[string]bool
}

// Engine executes shop purchases.
type Engine struct {
	store    *ledger.Store
	tracker  *achievements.Tracker
	db       *sqlite.DB
	platform domain.Platform
	book     *logbook.Logbook
	log      *zap.Logger

	catalog           domain.Catalog
	announceChannelID string
	privateCategoryID string

	mu       sync.Mutex
	channels map[string]*privateChannel // owner id → live private channel

	now   func() time.Time
	newID func() string
}

// New creates a purchase engine over the given catalog. announceChannelID may
// be empty; effects then skip the public announcement.
func New(store *ledger.Store, tracker *achievements.Tracker, db *sqlite.DB,
	platform domain.Platform, book *logbook.Logbook, log *zap.Logger,
	catalog domain.Catalog, announceChannelID, privateCategoryID string) *Engine {
	return &Engine{
		store:             store,
		tracker:           tracker,
		db:                db,
		platform:          platform,
		book:              book,
		log:               log,
		catalog:           catalog,
		announceChannelID: announceChannelID,
		privateCategoryID: privateCategoryID,
		channels:          make(map[string]*privateChannel),
		now:               time.Now,
		newID:             uuid.NewString,
	}
}

func (e *Engine) stamp() string {
	return e.now().UTC().Format("2006-01-02 15:04:05 UTC")
}

func mention(userID string) string { return "<@" + userID + ">" }

// say sends to the buyer's channel; a failed send is logged and dropped.
func (e *Engine) say(ctx context.Context, channelID, content string) {
	if err := e.platform.SendMessage(ctx, channelID, content); err != nil {
		e.log.Warn("purchase message failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// ─── Buy ────────────────────────────────────────────────────────────────────

// Buy runs one purchase end to end. The returned error reports why the
// purchase did not commit; all user feedback has already been sent.
func (e *Engine) Buy(ctx context.Context, req Request) error {
	item, ok := e.catalog[req.ItemID]
	if !ok {
		e.say(ctx, req.ChannelID, fmt.Sprintf(
			"O item '%s' não existe na loja. Use `!loja` para ver os itens disponíveis.", req.ItemID))
		return domain.ErrItemNotFound
	}

	// Capability check happens before any charge.
	if wanted := domain.RequiredPermissions(req.ItemID); wanted != 0 {
		missing, err := e.platform.MissingPermissions(ctx, req.GuildID, wanted)
		if err != nil {
			e.say(ctx, req.ChannelID, "Não foi possível verificar as permissões do bot. Tente novamente.")
			return err
		}
		if missing != 0 {
			var names []string
			for _, p := range missing.Split() {
				names = append(names, p.String())
			}
			e.say(ctx, req.ChannelID, fmt.Sprintf(
				"O bot não tem as permissões necessárias para executar esta ação. Permissões faltando: %s. Por favor, peça a um administrador para conceder essas permissões.",
				strings.Join(names, ", ")))
			return domain.ErrMissingPermissions
		}
	}

	if _, err := e.store.Debit(req.BuyerID, req.BuyerName, item.Price); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			balance := e.store.Get(req.BuyerID, req.BuyerName).Balance
			e.say(ctx, req.ChannelID, fmt.Sprintf(
				"%s, você não tem Rupias suficientes! Você precisa de %d Rupias, mas tem apenas %d Rupias.",
				mention(req.BuyerID), item.Price, balance))
		}
		return err
	}

	if e.announceChannelID == "" {
		e.say(ctx, req.ChannelID,
			"Canal de anúncios não configurado. As ações serão realizadas, mas o anúncio público não será enviado.")
	}

	res, err := e.apply(ctx, req, item)
	if err != nil {
		e.refund(ctx, req, item, res)
		return err
	}
	e.commit(ctx, req, item, res)
	return nil
}

// applied describes a finished effect: who it hit and what extra was charged.
type applied struct {
	targetID  string
	surcharge int64
	anonymous bool
	detail    string // resource name for the audit log entry
}

func (e *Engine) apply(ctx context.Context, req Request, item domain.Item) (applied, error) {
	switch req.ItemID {
	case domain.ItemVIPRole:
		return e.applyVIPRole(ctx, req)
	case domain.ItemCustomMessage:
		return e.applyCustomMessage(ctx, req)
	case domain.ItemVoiceKick:
		return e.applyVoiceKick(ctx, req)
	case domain.ItemVoiceMute:
		return e.applyVoiceMute(ctx, req)
	case domain.ItemTextMute:
		return e.applyTextMute(ctx, req)
	case domain.ItemCustomRole:
		return e.applyCustomRole(ctx, req)
	case domain.ItemPrivateChannel:
		return e.applyPrivateChannel(ctx, req)
	default:
		// Configured item without an effect recipe.
		e.say(ctx, req.ChannelID, fmt.Sprintf("O item '%s' não pode ser entregue.", req.ItemID))
		return applied{}, domain.ErrItemNotFound
	}
}

// refund returns the full charge (price plus surcharge) and records the
// attempt in the audit trail.
func (e *Engine) refund(ctx context.Context, req Request, item domain.Item, res applied) {
	total := item.Price + res.surcharge
	balance, err := e.store.Credit(req.BuyerID, req.BuyerName, total)
	if err != nil {
		e.log.Error("refund credit failed",
			zap.String("buyer_id", req.BuyerID), zap.Int64("amount", total), zap.Error(err))
		return
	}
	observability.RefundedRupias.Add(float64(total))
	observability.Purchases.WithLabelValues(req.ItemID, string(domain.OutcomeRefunded)).Inc()

	e.say(ctx, req.ChannelID, fmt.Sprintf(
		"%s, suas %d Rupias foram reembolsadas.", mention(req.BuyerID), total))
	e.audit(req, item, res, domain.OutcomeRefunded)
	e.book.Record(ctx, fmt.Sprintf(
		"💸 **Compra Reembolsada**\nUsuário: %s (%s)\nItem: %s\nValor: %d Rupias\nNovo Saldo: %d Rupias\nData: %s",
		req.BuyerName, req.BuyerID, req.ItemID, total, balance, e.stamp()))
}

// commit finalizes a delivered purchase: audit row, metrics, and the
// comprador achievement, which only moves on commit.
func (e *Engine) commit(ctx context.Context, req Request, item domain.Item, res applied) {
	observability.Purchases.WithLabelValues(req.ItemID, string(domain.OutcomeApplied)).Inc()
	e.audit(req, item, res, domain.OutcomeApplied)

	balance := e.store.Get(req.BuyerID, req.BuyerName).Balance
	actor := fmt.Sprintf("%s (%s)", req.BuyerName, req.BuyerID)
	if res.anonymous {
		actor = "Anônimo"
	}
	entry := fmt.Sprintf(
		"🛒 **Compra Realizada**\nAutor: %s\nItem: %s\nPreço: %d Rupias\nNovo Saldo do Autor: %d Rupias\nData: %s",
		actor, req.ItemID, item.Price+res.surcharge, balance, e.stamp())
	if res.detail != "" {
		entry += "\nDetalhe: " + res.detail
	}
	e.book.Record(ctx, entry)

	e.advanceComprador(ctx, req)
}

func (e *Engine) audit(req Request, item domain.Item, res applied, outcome domain.PurchaseOutcome) {
	rec := domain.PurchaseRecord{
		ID:        e.newID(),
		ItemID:    req.ItemID,
		BuyerID:   req.BuyerID,
		TargetID:  res.targetID,
		Price:     item.Price,
		Surcharge: res.surcharge,
		Anonymous: res.anonymous,
		Outcome:   outcome,
		CreatedAt: e.now().UTC(),
	}
	if err := e.db.InsertPurchaseRecord(rec); err != nil {
		e.log.Error("purchase audit insert failed", zap.String("item_id", req.ItemID), zap.Error(err))
	}
}

func (e *Engine) advanceComprador(ctx context.Context, req Request) {
	res, err := e.tracker.RecordProgress(req.BuyerID, req.BuyerName, domain.AchComprador, 1)
	if err != nil {
		e.log.Error("comprador progress failed", zap.String("user_id", req.BuyerID), zap.Error(err))
		return
	}
	if !res.JustCompleted {
		return
	}
	observability.AchievementsCompleted.WithLabelValues(string(domain.AchComprador)).Inc()
	observability.CreditsEarned.WithLabelValues("achievement").Add(float64(res.Def.Reward))

	if err := e.platform.SendDM(ctx, req.BuyerID, fmt.Sprintf(
		"🎉 **Conquista Desbloqueada!** Você completou a conquista '%s' e ganhou %d Rupias!",
		res.Def.Name, res.Def.Reward)); err != nil {
		e.log.Warn("achievement DM failed", zap.String("user_id", req.BuyerID), zap.Error(err))
	}
	e.book.Record(ctx, fmt.Sprintf(
		"🏆 **Conquista Desbloqueada**\nUsuário: %s (%s)\nConquista: %s\nRecompensa: %d Rupias\nNovo Saldo: %d Rupias\nData: %s",
		req.BuyerName, req.BuyerID, res.Def.Name, res.Def.Reward, res.NewBalance, e.stamp()))
}

// ─── Prompts ────────────────────────────────────────────────────────────────

// selectMember numbers the candidates, asks the buyer to pick one within 30
// seconds, and validates the choice.
func (e *Engine) selectMember(ctx context.Context, req Request, candidates []domain.Member, prompt string) (domain.Member, error) {
	if len(candidates) == 0 {
		return domain.Member{}, domain.ErrNoTargets
	}

	var list strings.Builder
	for i, m := range candidates {
		fmt.Fprintf(&list, "\n%d. %s", i+1, m.Name)
	}
	e.say(ctx, req.ChannelID, prompt+list.String())

	reply, err := e.platform.AwaitReply(ctx, req.ChannelID, req.BuyerID, SelectPromptTimeout)
	if err != nil {
		if errors.Is(err, domain.ErrPromptTimeout) {
			e.say(ctx, req.ChannelID, fmt.Sprintf(
				"%s, o tempo para escolher um usuário expirou.", mention(req.BuyerID)))
		}
		return domain.Member{}, err
	}

	// Atoi rejects anything with trailing garbage, so "1abc" is invalid.
	choice, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil || choice < 1 || choice > len(candidates) {
		e.say(ctx, req.ChannelID, "Número inválido. A compra foi cancelada.")
		return domain.Member{}, domain.ErrInvalidSelection
	}
	return candidates[choice-1], nil
}

// offerAnonymity runs the 15-second anonymity upsell. Confirmed and
// affordable debits the flat surcharge; confirmed but unaffordable proceeds
// without anonymity; a timeout cancels the whole purchase.
func (e *Engine) offerAnonymity(ctx context.Context, req Request) (surcharge int64, anonymous bool, err error) {
	e.say(ctx, req.ChannelID,
		"Deseja pagar 50 Rupias extras para que esta ação seja anônima? (Responda 'sim' ou 'não' em 15 segundos)")

	reply, err := e.platform.AwaitReply(ctx, req.ChannelID, req.BuyerID, AnonymityPromptTimeout)
	if err != nil {
		if errors.Is(err, domain.ErrPromptTimeout) {
			e.say(ctx, req.ChannelID, fmt.Sprintf(
				"%s, o tempo para responder expirou. A compra foi cancelada.", mention(req.BuyerID)))
		}
		return 0, false, err
	}
	if !strings.EqualFold(strings.TrimSpace(reply), "sim") {
		return 0, false, nil
	}

	if _, err := e.store.Debit(req.BuyerID, req.BuyerName, domain.AnonymitySurcharge); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			e.say(ctx, req.ChannelID,
				"Você não tem Rupias suficientes para ser anônimo (50 Rupias necessárias). A ação será realizada normalmente.")
			return 0, false, nil
		}
		return 0, false, err
	}
	e.say(ctx, req.ChannelID, "Ação será realizada anonimamente.")
	return domain.AnonymitySurcharge, true, nil
}

// actorLabel is the buyer's public identity after the anonymity choice.
func actorLabel(req Request, anonymous bool) string {
	if anonymous {
		return "um usuário anônimo"
	}
	return mention(req.BuyerID)
}

// announceAndDM publishes the effect outcome and notifies the target. Both
// sends are best-effort.
func (e *Engine) announceAndDM(ctx context.Context, targetID, public, dm string) {
	if e.announceChannelID != "" {
		e.say(ctx, e.announceChannelID, public)
	}
	if err := e.platform.SendDM(ctx, targetID, dm); err != nil {
		e.log.Warn("target DM failed", zap.String("user_id", targetID), zap.Error(err))
	}
}

// schedule persists a deferred revert. Failing to persist does not undo the
// applied effect; it is logged and the revert is lost.
func (e *Engine) schedule(kind domain.EffectKind, guildID, targetID, resourceID string, after time.Duration) {
	eff := domain.ScheduledEffect{
		ID:         e.newID(),
		Kind:       kind,
		GuildID:    guildID,
		TargetID:   targetID,
		ResourceID: resourceID,
		ExpiresAt:  e.now().UTC().Add(after),
	}
	if err := e.db.InsertScheduledEffect(eff); err != nil {
		e.log.Error("schedule revert failed",
			zap.String("kind", string(kind)), zap.String("resource_id", resourceID), zap.Error(err))
		return
	}
	observability.PendingReverts.Inc()
}

// ─── Private Channel Invites ────────────────────────────────────────────────

// Invite grants a user access to the caller's private voice channel.
func (e *Engine) Invite(ctx context.Context, req Request, inviteeID string) error {
	e.mu.Lock()
	ch, ok := e.channels[req.BuyerID]
	e.mu.Unlock()
	if !ok {
		e.say(ctx, req.ChannelID,
			"Você não possui um canal de voz privado ativo. Compre um com `!comprar canal_voz_privado`.")
		return domain.ErrNoPrivateChannel
	}

	e.mu.Lock()
	already := ch.invited[inviteeID]
	e.mu.Unlock()
	if already {
		e.say(ctx, req.ChannelID, fmt.Sprintf(
			"%s já foi convidado para o canal de voz privado!", mention(inviteeID)))
		return domain.ErrAlreadyInvited
	}

	if err := e.platform.GrantChannelAccess(ctx, ch.channelID, inviteeID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Channel already reaped; drop the stale registration.
			e.mu.Lock()
			delete(e.channels, req.BuyerID)
			e.mu.Unlock()
			e.say(ctx, req.ChannelID, "O canal de voz privado não existe mais.")
			return domain.ErrNoPrivateChannel
		}
		e.say(ctx, req.ChannelID, "Erro ao convidar o usuário.")
		return err
	}

	e.mu.Lock()
	ch.invited[inviteeID] = true
	e.mu.Unlock()

	e.say(ctx, req.ChannelID, fmt.Sprintf(
		"%s foi convidado para o seu canal de voz privado '%s'!", mention(inviteeID), ch.name))
	if err := e.platform.SendDM(ctx, inviteeID, fmt.Sprintf(
		"🎉 Você foi convidado por %s para o canal de voz privado '%s'! Junte-se a ele!",
		mention(req.BuyerID), ch.name)); err != nil {
		e.log.Warn("invite DM failed", zap.String("user_id", inviteeID), zap.Error(err))
	}
	e.book.Record(ctx, fmt.Sprintf(
		"📩 **Convite para Canal de Voz Privado**\nAutor: %s (%s)\nConvidado: %s\nCanal: %s\nData: %s",
		req.BuyerName, req.BuyerID, inviteeID, ch.name, e.stamp()))
	return nil
}

// InvitedUsers returns the invite list of the owner's live channel, sorted.
// Empty when the owner has no channel.
func (e *Engine) InvitedUsers(ownerID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[ownerID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(ch.invited))
	for id := range ch.invited {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
