// Package bot routes prefix commands to the engines and feeds every inbound
// message through the earning path, the way the product behaves: commands
// earn Rupias like any other message.
package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/app/earning"
	"github.com/rupianet/rupia/internal/app/moderation"
	"github.com/rupianet/rupia/internal/app/purchase"
	"github.com/rupianet/rupia/internal/domain"
	"github.com/rupianet/rupia/internal/infra/ledger"
	"github.com/rupianet/rupia/internal/infra/logbook"
	"github.com/rupianet/rupia/internal/infra/observability"
)

// DefaultPrefix is the command prefix when none is configured.
const DefaultPrefix = "!"

// LeaderboardSize is how many rows !top_rupias shows.
const LeaderboardSize = 10

// Router dispatches prefix commands.
type Router struct {
	prefix    string
	store     *ledger.Store
	earning   *earning.Engine
	purchases *purchase.Engine
	mod       *moderation.Service
	platform  domain.Platform
	book      *logbook.Logbook
	log       *zap.Logger
	catalog   domain.Catalog

	now func() time.Time
}

func New(prefix string, store *ledger.Store, earn *earning.Engine, purchases *purchase.Engine,
	mod *moderation.Service, platform domain.Platform, book *logbook.Logbook, log *zap.Logger,
	catalog domain.Catalog) *Router {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Router{
		prefix:    prefix,
		store:     store,
		earning:   earn,
		purchases: purchases,
		mod:       mod,
		platform:  platform,
		book:      book,
		log:       log,
		catalog:   catalog,
		now:       time.Now,
	}
}

func (r *Router) stamp() string {
	return r.now().UTC().Format("2006-01-02 15:04:05 UTC")
}

func mention(userID string) string { return "<@" + userID + ">" }

func (r *Router) say(ctx context.Context, channelID, content string) {
	if err := r.platform.SendMessage(ctx, channelID, content); err != nil {
		r.log.Warn("command reply failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// dm delivers best-effort; a blocked mailbox is mirrored to the log channel.
func (r *Router) dm(ctx context.Context, userID, content string) {
	err := r.platform.SendDM(ctx, userID, content)
	if err == nil {
		return
	}
	r.book.Record(ctx, fmt.Sprintf(
		"⚠️ **Falha ao Enviar DM**\nUsuário: %s\nMotivo: Usuário bloqueou DMs ou não permite mensagens de bots\nData: %s",
		userID, r.stamp()))
}

// HandleMessage is the single entry point for inbound chat messages.
func (r *Router) HandleMessage(ctx context.Context, ev domain.MessageEvent) {
	if ev.Bot {
		return
	}

	// Every message, commands included, runs through the earning path first.
	r.earning.HandleMessage(ctx, ev)

	if !strings.HasPrefix(ev.Content, r.prefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(ev.Content, r.prefix))
	if len(fields) == 0 {
		return
	}
	name, args := fields[0], fields[1:]
	observability.CommandsHandled.WithLabelValues(name).Inc()

	switch name {
	case "saldo":
		r.cmdSaldo(ctx, ev)
	case "top_rupias":
		r.cmdTop(ctx, ev)
	case "loja":
		r.cmdLoja(ctx, ev)
	case "conquistas":
		r.cmdConquistas(ctx, ev)
	case "comprar":
		r.cmdComprar(ctx, ev, args)
	case "doar":
		r.cmdDoar(ctx, ev, args)
	case "convidar":
		r.cmdConvidar(ctx, ev, args)
	case "dar_rupias":
		r.cmdDarRupias(ctx, ev, args)
	case "remover_rupias":
		r.cmdRemoverRupias(ctx, ev, args)
	case "bonus":
		r.cmdBonus(ctx, ev, args)
	case "ban":
		r.cmdBan(ctx, ev, args)
	case "kick":
		r.cmdKick(ctx, ev, args)
	case "clear":
		r.cmdClear(ctx, ev, args)
	case "mute":
		r.cmdMute(ctx, ev, args)
	}
}

// ─── Argument Parsing ───────────────────────────────────────────────────────

// parseMention accepts <@id> and <@!id>.
func parseMention(arg string) (string, bool) {
	if !strings.HasPrefix(arg, "<@") || !strings.HasSuffix(arg, ">") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(arg, "<@"), ">")
	id = strings.TrimPrefix(id, "!")
	if id == "" {
		return "", false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	return id, true
}

func parseAmount(arg string) (int64, bool) {
	n, err := strconv.ParseInt(arg, 10, 64)
	return n, err == nil
}

// ─── Gates ──────────────────────────────────────────────────────────────────

func (r *Router) requireOwner(ctx context.Context, ev domain.MessageEvent) bool {
	ownerID, err := r.platform.GuildOwnerID(ctx, ev.GuildID)
	if err != nil {
		r.log.Error("owner lookup failed", zap.String("guild_id", ev.GuildID), zap.Error(err))
		return false
	}
	if ev.AuthorID != ownerID {
		r.say(ctx, ev.ChannelID,
			"Você não tem permissão para usar este comando. Apenas o dono do servidor pode usá-lo.")
		return false
	}
	return true
}

func (r *Router) requireModerator(ctx context.Context, ev domain.MessageEvent) bool {
	ok, err := r.mod.IsModerator(ctx, ev.GuildID, ev.AuthorID)
	if err != nil {
		r.log.Error("moderator check failed", zap.String("guild_id", ev.GuildID), zap.Error(err))
		return false
	}
	if !ok {
		r.say(ctx, ev.ChannelID,
			"Você não tem permissão para usar este comando. Apenas moderadores podem usá-lo.")
		return false
	}
	return true
}

// ─── Economy Commands ───────────────────────────────────────────────────────

func (r *Router) cmdSaldo(ctx context.Context, ev domain.MessageEvent) {
	acc := r.store.Get(ev.AuthorID, ev.AuthorName)
	r.say(ctx, ev.ChannelID, fmt.Sprintf(
		"%s, você tem **%d Rupias**! 💰", mention(ev.AuthorID), acc.Balance))
}

func (r *Router) cmdTop(ctx context.Context, ev domain.MessageEvent) {
	top := r.store.Top(LeaderboardSize)
	if len(top) == 0 {
		r.say(ctx, ev.ChannelID, "Nenhum usuário tem Rupias ainda. Comece a interagir no servidor! 💬")
		return
	}

	var b strings.Builder
	b.WriteString("🏆 **Ranking de Rupias (Top 10)** 🏆\n\n")
	for i, row := range top {
		name := row.DisplayName
		if name == "" {
			name = row.UserID
		}
		fmt.Fprintf(&b, "**%d.** %s - %d Rupias\n", i+1, name, row.Balance)
	}
	r.say(ctx, ev.ChannelID, b.String())
}

func (r *Router) cmdLoja(ctx context.Context, ev domain.MessageEvent) {
	if len(r.catalog) == 0 {
		r.say(ctx, ev.ChannelID, "A loja está vazia no momento. Volte mais tarde! 🏪")
		return
	}

	ids := make([]string, 0, len(r.catalog))
	for id := range r.catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("🏪 **Loja de Rupias** 🏪\n\n")
	for _, id := range ids {
		item := r.catalog[id]
		fmt.Fprintf(&b, "**%s**\nDescrição: %s\nPreço: %d Rupias\n\n", id, item.Description, item.Price)
	}
	r.say(ctx, ev.ChannelID, b.String())
}

func (r *Router) cmdConquistas(ctx context.Context, ev domain.MessageEvent) {
	acc := r.store.Get(ev.AuthorID, ev.AuthorName)

	var b strings.Builder
	fmt.Fprintf(&b, "🏆 **Conquistas de %s** 🏆\n\n", ev.AuthorName)
	for _, def := range domain.AchievementDefs() {
		var progress, target int64
		if st := acc.Achievements[def.ID]; st != nil {
			progress = st.Progress
		}
		target = def.Target

		status := "⏳ Em andamento"
		if st := acc.Achievements[def.ID]; st != nil && st.Completed {
			status = "✅ Concluído"
		}

		unit := ""
		if def.ID == domain.AchVozAtiva {
			// Voice progress is tracked in seconds, shown in hours.
			progress /= 3600
			target /= 3600
			unit = " horas"
		}
		fmt.Fprintf(&b, "**%s**\nProgresso: %d/%d%s\nStatus: %s\nRecompensa: %d Rupias\n\n",
			def.Name, progress, target, unit, status, def.Reward)
	}
	r.say(ctx, ev.ChannelID, b.String())
}

func (r *Router) cmdComprar(ctx context.Context, ev domain.MessageEvent, args []string) {
	if len(args) != 1 {
		r.say(ctx, ev.ChannelID, "Uso: "+r.prefix+"comprar <item>. Use `"+r.prefix+"loja` para ver os itens disponíveis.")
		return
	}
	req := purchase.Request{
		GuildID:   ev.GuildID,
		ChannelID: ev.ChannelID,
		BuyerID:   ev.AuthorID,
		BuyerName: ev.AuthorName,
		ItemID:    args[0],
	}
	if err := r.purchases.Buy(ctx, req); err != nil {
		r.log.Info("purchase did not commit",
			zap.String("item_id", args[0]), zap.String("buyer_id", ev.AuthorID), zap.Error(err))
	}
}

func (r *Router) cmdDoar(ctx context.Context, ev domain.MessageEvent, args []string) {
	if len(args) != 2 {
		r.say(ctx, ev.ChannelID, "Uso: "+r.prefix+"doar @usuário <quantidade>.")
		return
	}
	targetID, ok := parseMention(args[0])
	if !ok {
		r.say(ctx, ev.ChannelID, "Mencione o usuário que vai receber a doação.")
		return
	}
	amount, ok := parseAmount(args[1])
	if !ok || amount <= 0 {
		r.say(ctx, ev.ChannelID, "A quantidade de Rupias deve ser maior que 0.")
		return
	}
	if targetID == ev.AuthorID {
		r.say(ctx, ev.ChannelID, "Você não pode doar Rupias para si mesmo!")
		return
	}

	fromBal, toBal, err := r.store.Transfer(ev.AuthorID, ev.AuthorName, targetID, "", amount)
	if err != nil {
		balance := r.store.Get(ev.AuthorID, ev.AuthorName).Balance
		r.say(ctx, ev.ChannelID, fmt.Sprintf(
			"%s, você não tem Rupias suficientes! Você precisa de %d Rupias, mas tem apenas %d Rupias.",
			mention(ev.AuthorID), amount, balance))
		return
	}

	r.say(ctx, ev.ChannelID, fmt.Sprintf(
		"%s, você doou %d Rupias para %s!", mention(ev.AuthorID), amount, mention(targetID)))
	r.dm(ctx, targetID, fmt.Sprintf(
		"💸 Você recebeu %d Rupias de %s! Seu novo saldo é %d Rupias.", amount, mention(ev.AuthorID), toBal))
	r.book.Record(ctx, fmt.Sprintf(
		"💸 **Doação de Rupias**\nDoador: %s (%s)\nRecebedor: %s\nQuantidade: %d Rupias\nNovo Saldo do Doador: %d Rupias\nNovo Saldo do Recebedor: %d Rupias\nData: %s",
		ev.AuthorName, ev.AuthorID, targetID, amount, fromBal, toBal, r.stamp()))
}

func (r *Router) cmdConvidar(ctx context.Context, ev domain.MessageEvent, args []string) {
	if len(args) != 1 {
		r.say(ctx, ev.ChannelID, "Uso: "+r.prefix+"convidar @usuário.")
		return
	}
	targetID, ok := parseMention(args[0])
	if !ok {
		r.say(ctx, ev.ChannelID, "Mencione o usuário que deseja convidar.")
		return
	}
	req := purchase.Request{
		GuildID:   ev.GuildID,
		ChannelID: ev.ChannelID,
		BuyerID:   ev.AuthorID,
		BuyerName: ev.AuthorName,
	}
	if err := r.purchases.Invite(ctx, req, targetID); err != nil {
		r.log.Info("invite failed",
			zap.String("owner_id", ev.AuthorID), zap.String("invitee_id", targetID), zap.Error(err))
	}
}

// ─── Owner Commands ─────────────────────────────────────────────────────────

func (r *Router) cmdDarRupias(ctx context.Context, ev domain.MessageEvent, args []string) {
	if !r.requireOwner(ctx, ev) {
		return
	}
	if len(args) != 2 {
		r.say(ctx, ev.ChannelID, "Uso: "+r.prefix+"dar_rupias @usuário <quantidade>.")
		return
	}
	targetID, ok := parseMention(args[0])
	if !ok {
		r.say(ctx, ev.ChannelID, "Mencione o usuário que vai receber as Rupias.")
		return
	}
	amount, ok := parseAmount(args[1])
	if !ok || amount <= 0 {
		r.say(ctx, ev.ChannelID, "A quantidade de Rupias deve ser maior que 0.")
		return
	}

	balance, err := r.store.Credit(targetID, "", amount)
	if err != nil {
		r.log.Error("owner credit failed", zap.String("target_id", targetID), zap.Error(err))
		return
	}
	observability.CreditsEarned.WithLabelValues("grant").Add(float64(amount))

	r.say(ctx, ev.ChannelID, fmt.Sprintf(
		"✅ **Rupias Adicionadas!** %d Rupias foram adicionadas ao saldo de %s. Novo saldo: %d Rupias.",
		amount, mention(targetID), balance))
	r.dm(ctx, targetID, fmt.Sprintf(
		"💰 Você recebeu %d Rupias do dono do servidor! Seu novo saldo é %d Rupias.", amount, balance))
	r.book.Record(ctx, fmt.Sprintf(
		"💰 **Rupias Adicionadas (Admin)**\nModerador: %s (%s)\nUsuário: %s\nQuantidade: %d Rupias\nNovo Saldo: %d Rupias\nData: %s",
		ev.AuthorName, ev.AuthorID, targetID, amount, balance, r.stamp()))
}

func (r *Router) cmdRemoverRupias(ctx context.Context, ev domain.MessageEvent, args []string) {
	if !r.requireOwner(ctx, ev) {
		return
	}
	if len(args) != 2 {
		r.say(ctx, ev.ChannelID, "Uso: "+r.prefix+"remover_rupias @usuário <quantidade>.")
		return
	}
	targetID, ok := parseMention(args[0])
	if !ok {
		r.say(ctx, ev.ChannelID, "Mencione o usuário que vai perder as Rupias.")
		return
	}
	amount, ok := parseAmount(args[1])
	if !ok || amount <= 0 {
		r.say(ctx, ev.ChannelID, "A quantidade de Rupias deve ser maior que 0.")
		return
	}

	balance, err := r.store.Debit(targetID, "", amount)
	if err != nil {
		current := r.store.Get(targetID, "").Balance
		r.say(ctx, ev.ChannelID, fmt.Sprintf(
			"%s não tem Rupias suficientes para remover. Saldo atual: %d Rupias.",
			mention(targetID), current))
		return
	}

	r.say(ctx, ev.ChannelID, fmt.Sprintf(
		"✅ **Rupias Removidas!** %d Rupias foram removidas do saldo de %s. Novo saldo: %d Rupias.",
		amount, mention(targetID), balance))
	r.book.Record(ctx, fmt.Sprintf(
		"💸 **Rupias Removidas (Admin)**\nModerador: %s (%s)\nUsuário: %s\nQuantidade: %d Rupias\nNovo Saldo: %d Rupias\nData: %s",
		ev.AuthorName, ev.AuthorID, targetID, amount, balance, r.stamp()))
}

func (r *Router) cmdBonus(ctx context.Context, ev domain.MessageEvent, args []string) {
	if !r.requireOwner(ctx, ev) {
		return
	}
	if len(args) != 1 {
		r.say(ctx, ev.ChannelID, "Uso: "+r.prefix+"bonus <quantidade>.")
		return
	}
	amount, ok := parseAmount(args[0])
	if !ok || amount <= 0 {
		r.say(ctx, ev.ChannelID, "A quantidade de Rupias deve ser maior que 0.")
		return
	}

	members, err := r.platform.VoiceMembers(ctx, ev.GuildID)
	if err != nil {
		r.log.Error("bonus voice lookup failed", zap.String("guild_id", ev.GuildID), zap.Error(err))
		return
	}
	seen := make(map[string]bool)
	var paid int
	for _, m := range members {
		if m.Bot || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		balance, err := r.store.Credit(m.ID, m.Name, amount)
		if err != nil {
			r.log.Error("bonus credit failed", zap.String("user_id", m.ID), zap.Error(err))
			continue
		}
		paid++
		observability.CreditsEarned.WithLabelValues("bonus").Add(float64(amount))
		r.dm(ctx, m.ID, fmt.Sprintf(
			"🎉 Você recebeu %d Rupias de bônus por participar de um evento no servidor! Seu novo saldo é %d Rupias.",
			amount, balance))
	}
	if paid == 0 {
		r.say(ctx, ev.ChannelID, "Nenhum usuário em canais de voz no momento.")
		return
	}

	r.say(ctx, ev.ChannelID, fmt.Sprintf(
		"🎉 **Bônus Distribuído!** %d Rupias foram dadas a %d usuários em canais de voz.", amount, paid))
	r.book.Record(ctx, fmt.Sprintf(
		"🎁 **Bônus de Rupias Distribuído (Canais de Voz)**\nModerador: %s (%s)\nQuantidade: %d Rupias\nUsuários Agraciados: %d\nData: %s",
		ev.AuthorName, ev.AuthorID, amount, paid, r.stamp()))
}

// ─── Moderation Commands ────────────────────────────────────────────────────

func (r *Router) cmdBan(ctx context.Context, ev domain.MessageEvent, args []string) {
	if !r.requireModerator(ctx, ev) {
		return
	}
	if len(args) < 1 {
		r.say(ctx, ev.ChannelID, "Uso: "+r.prefix+"ban @usuário [motivo].")
		return
	}
	targetID, ok := parseMention(args[0])
	if !ok {
		r.say(ctx, ev.ChannelID, "Mencione o usuário que deseja banir.")
		return
	}
	reason := strings.Join(args[1:], " ")

	if err := r.mod.Ban(ctx, ev.GuildID, ev.AuthorID, ev.AuthorName, targetID, reason); err != nil {
		r.say(ctx, ev.ChannelID, fmt.Sprintf("Erro ao banir %s.", mention(targetID)))
		return
	}
	r.say(ctx, ev.ChannelID, fmt.Sprintf(
		"%s foi banido por %s.", mention(targetID), mention(ev.AuthorID)))
}

func (r *Router) cmdKick(ctx context.Context, ev domain.MessageEvent, args []string) {
	if !r.requireModerator(ctx, ev) {
		return
	}
	if len(args) < 1 {
		r.say(ctx, ev.ChannelID, "Uso: "+r.prefix+"kick @usuário [motivo].")
		return
	}
	targetID, ok := parseMention(args[0])
	if !ok {
		r.say(ctx, ev.ChannelID, "Mencione o usuário que deseja expulsar.")
		return
	}
	reason := strings.Join(args[1:], " ")

	if err := r.mod.Kick(ctx, ev.GuildID, ev.AuthorID, ev.AuthorName, targetID, reason); err != nil {
		r.say(ctx, ev.ChannelID, fmt.Sprintf("Erro ao expulsar %s.", mention(targetID)))
		return
	}
	r.say(ctx, ev.ChannelID, fmt.Sprintf(
		"%s foi expulso por %s.", mention(targetID), mention(ev.AuthorID)))
}

func (r *Router) cmdClear(ctx context.Context, ev domain.MessageEvent, args []string) {
	if !r.requireModerator(ctx, ev) {
		return
	}
	if len(args) != 1 {
		r.say(ctx, ev.ChannelID, "Uso: "+r.prefix+"clear <quantidade>.")
		return
	}
	amount, err := strconv.Atoi(args[0])
	if err != nil || amount < 1 {
		r.say(ctx, ev.ChannelID, "Por favor, especifique um número maior que 0.")
		return
	}
	if amount > moderation.ClearLimit {
		r.say(ctx, ev.ChannelID, fmt.Sprintf(
			"Não posso deletar mais de %d mensagens de uma vez.", moderation.ClearLimit))
		return
	}

	n, err := r.mod.Clear(ctx, ev.GuildID, ev.ChannelID, ev.AuthorID, ev.AuthorName, amount)
	if err != nil {
		r.say(ctx, ev.ChannelID, "Erro ao deletar mensagens.")
		return
	}
	r.say(ctx, ev.ChannelID, fmt.Sprintf(
		"%d mensagens deletadas por %s.", n, mention(ev.AuthorID)))
}

func (r *Router) cmdMute(ctx context.Context, ev domain.MessageEvent, args []string) {
	if !r.requireModerator(ctx, ev) {
		return
	}
	if len(args) != 2 {
		r.say(ctx, ev.ChannelID, "Uso: "+r.prefix+"mute @usuário <duração> (ex.: 10m).")
		return
	}
	targetID, ok := parseMention(args[0])
	if !ok {
		r.say(ctx, ev.ChannelID, "Mencione o usuário que deseja silenciar.")
		return
	}
	d, err := moderation.ParseDuration(args[1])
	if err != nil {
		r.say(ctx, ev.ChannelID,
			"Formato de tempo inválido. Use s (segundos), m (minutos), h (horas) ou d (dias), ex.: '10m'.")
		return
	}

	if err := r.mod.Mute(ctx, ev.GuildID, ev.AuthorID, ev.AuthorName, targetID, d); err != nil {
		r.say(ctx, ev.ChannelID, fmt.Sprintf("Erro ao silenciar %s.", mention(targetID)))
		return
	}
	r.say(ctx, ev.ChannelID, fmt.Sprintf(
		"%s foi silenciado por %s por %s.", mention(targetID), mention(ev.AuthorID), args[1]))
}
