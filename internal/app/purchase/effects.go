package purchase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
)

// Effect recipes, one per catalog item. Each returns what it did so Buy can
// audit and, on error, refund the full charge.

func (e *Engine) applyVIPRole(ctx context.Context, req Request) (applied, error) {
	roleID, created, err := e.platform.EnsureRole(ctx, req.GuildID, VIPRoleName, "Cargo para compradores da loja")
	if err != nil {
		e.say(ctx, req.ChannelID, "Erro ao adicionar o cargo VIP.")
		return applied{}, err
	}
	if created {
		e.log.Info("vip role created", zap.String("guild_id", req.GuildID), zap.String("role_id", roleID))
	}
	if err := e.platform.GrantRole(ctx, req.GuildID, req.BuyerID, roleID); err != nil {
		e.say(ctx, req.ChannelID, "Erro ao adicionar o cargo VIP.")
		return applied{}, err
	}
	e.schedule(domain.EffectRemoveRole, req.GuildID, req.BuyerID, roleID, VIPRoleDuration)

	e.say(ctx, req.ChannelID, fmt.Sprintf(
		"%s, você comprou o **cargo_vip**! O cargo VIP foi adicionado por 30 dias. 🎉", mention(req.BuyerID)))
	return applied{targetID: req.BuyerID, detail: VIPRoleName}, nil
}

func (e *Engine) applyCustomMessage(ctx context.Context, req Request) (applied, error) {
	if e.announceChannelID == "" {
		e.say(ctx, req.ChannelID, "Canal de anúncios não configurado. Peça a um administrador para configurá-lo.")
		return applied{}, domain.ErrNotFound
	}

	e.say(ctx, req.ChannelID, fmt.Sprintf(
		"%s, você comprou uma **mensagem personalizada**! Envie a mensagem que deseja (você tem 60 segundos).",
		mention(req.BuyerID)))
	text, err := e.platform.AwaitReply(ctx, req.ChannelID, req.BuyerID, TextPromptTimeout)
	if err != nil {
		if errors.Is(err, domain.ErrPromptTimeout) {
			e.say(ctx, req.ChannelID, fmt.Sprintf(
				"%s, o tempo para enviar a mensagem expirou.", mention(req.BuyerID)))
		}
		return applied{}, err
	}

	if err := e.platform.SendMessage(ctx, e.announceChannelID, fmt.Sprintf(
		"📢 Mensagem personalizada de %s: %s", mention(req.BuyerID), text)); err != nil {
		e.say(ctx, req.ChannelID, "Erro ao enviar a mensagem personalizada.")
		return applied{}, err
	}
	return applied{targetID: req.BuyerID}, nil
}

// otherHumans filters the buyer and bots out of a member list.
func otherHumans(members []domain.Member, buyerID string) []domain.Member {
	var out []domain.Member
	for _, m := range members {
		if m.Bot || m.ID == buyerID {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (e *Engine) applyVoiceKick(ctx context.Context, req Request) (applied, error) {
	members, err := e.platform.VoiceMembers(ctx, req.GuildID)
	if err != nil {
		return applied{}, err
	}
	candidates := otherHumans(members, req.BuyerID)
	if len(candidates) == 0 {
		e.say(ctx, req.ChannelID, "Nenhum outro usuário em canais de voz no momento.")
		return applied{}, domain.ErrNoTargets
	}

	target, err := e.selectMember(ctx, req, candidates,
		"Escolha um usuário para expulsar do canal de voz (digite o número correspondente, você tem 30 segundos):")
	if err != nil {
		return applied{}, err
	}

	surcharge, anonymous, err := e.offerAnonymity(ctx, req)
	if err != nil {
		return applied{}, err
	}
	res := applied{targetID: target.ID, surcharge: surcharge, anonymous: anonymous}

	if err := e.platform.DisconnectVoice(ctx, req.GuildID, target.ID); err != nil {
		e.say(ctx, req.ChannelID, "Erro ao expulsar o usuário do canal de voz.")
		return res, err
	}

	actor := actorLabel(req, anonymous)
	e.announceAndDM(ctx, target.ID,
		fmt.Sprintf("%s foi expulso de um canal de voz por %s!", mention(target.ID), actor),
		fmt.Sprintf("👢 Você foi expulso de um canal de voz por %s!", actor))
	return res, nil
}

func (e *Engine) applyVoiceMute(ctx context.Context, req Request) (applied, error) {
	members, err := e.platform.VoiceMembers(ctx, req.GuildID)
	if err != nil {
		return applied{}, err
	}
	candidates := otherHumans(members, req.BuyerID)
	if len(candidates) == 0 {
		e.say(ctx, req.ChannelID, "Nenhum outro usuário em canais de voz no momento.")
		return applied{}, domain.ErrNoTargets
	}

	target, err := e.selectMember(ctx, req, candidates,
		"Escolha um usuário para mutar no canal de voz por 5 minutos (digite o número correspondente, você tem 30 segundos):")
	if err != nil {
		return applied{}, err
	}

	surcharge, anonymous, err := e.offerAnonymity(ctx, req)
	if err != nil {
		return applied{}, err
	}
	res := applied{targetID: target.ID, surcharge: surcharge, anonymous: anonymous}

	if err := e.platform.SetVoiceMute(ctx, req.GuildID, target.ID, true); err != nil {
		e.say(ctx, req.ChannelID, "Erro ao mutar o usuário no canal de voz.")
		return res, err
	}
	e.schedule(domain.EffectVoiceUnmute, req.GuildID, target.ID, "", MuteDuration)

	actor := actorLabel(req, anonymous)
	e.announceAndDM(ctx, target.ID,
		fmt.Sprintf("%s foi mutado em um canal de voz por %s por 5 minutos!", mention(target.ID), actor),
		fmt.Sprintf("🔇 Você foi mutado em um canal de voz por %s por 5 minutos!", actor))
	return res, nil
}

func (e *Engine) applyTextMute(ctx context.Context, req Request) (applied, error) {
	members, err := e.platform.GuildMembers(ctx, req.GuildID)
	if err != nil {
		return applied{}, err
	}
	candidates := otherHumans(members, req.BuyerID)
	if len(candidates) == 0 {
		e.say(ctx, req.ChannelID, "Nenhum outro usuário disponível no servidor.")
		return applied{}, domain.ErrNoTargets
	}

	target, err := e.selectMember(ctx, req, candidates,
		"Escolha um usuário para mutar nos canais de texto por 5 minutos (digite o número correspondente, você tem 30 segundos):")
	if err != nil {
		return applied{}, err
	}

	surcharge, anonymous, err := e.offerAnonymity(ctx, req)
	if err != nil {
		return applied{}, err
	}
	res := applied{targetID: target.ID, surcharge: surcharge, anonymous: anonymous}

	if err := e.platform.SetTextMute(ctx, req.GuildID, target.ID, true); err != nil {
		e.say(ctx, req.ChannelID, "Erro ao mutar o usuário nos canais de texto.")
		return res, err
	}
	e.schedule(domain.EffectTextUnmute, req.GuildID, target.ID, "", MuteDuration)

	actor := actorLabel(req, anonymous)
	e.announceAndDM(ctx, target.ID,
		fmt.Sprintf("%s foi mutado nos canais de texto por %s por 5 minutos!", mention(target.ID), actor),
		fmt.Sprintf("🔇 Você foi mutado nos canais de texto por %s por 5 minutos!", actor))
	return res, nil
}

func (e *Engine) applyCustomRole(ctx context.Context, req Request) (applied, error) {
	e.say(ctx, req.ChannelID, fmt.Sprintf(
		"%s, você comprou um **cargo personalizado**! Digite o nome do cargo que deseja (máximo 50 caracteres, você tem 60 segundos).",
		mention(req.BuyerID)))
	name, err := e.platform.AwaitReply(ctx, req.ChannelID, req.BuyerID, TextPromptTimeout)
	if err != nil {
		if errors.Is(err, domain.ErrPromptTimeout) {
			e.say(ctx, req.ChannelID, fmt.Sprintf(
				"%s, o tempo para enviar o nome do cargo expirou.", mention(req.BuyerID)))
		}
		return applied{}, err
	}
	if runes := []rune(name); len(runes) > CustomRoleNameLimit {
		name = string(runes[:CustomRoleNameLimit])
	}

	roleID, err := e.platform.CreateRole(ctx, req.GuildID, name,
		fmt.Sprintf("Cargo personalizado para %s", req.BuyerName))
	if err != nil {
		e.say(ctx, req.ChannelID, "Erro ao criar o cargo personalizado.")
		return applied{}, err
	}
	if err := e.platform.GrantRole(ctx, req.GuildID, req.BuyerID, roleID); err != nil {
		e.say(ctx, req.ChannelID, "Erro ao criar o cargo personalizado.")
		return applied{}, err
	}
	e.schedule(domain.EffectDeleteRole, req.GuildID, req.BuyerID, roleID, CustomRoleDuration)

	e.say(ctx, req.ChannelID, fmt.Sprintf(
		"%s, seu cargo personalizado '%s' foi criado e adicionado por 7 dias! 🎉", mention(req.BuyerID), name))
	return applied{targetID: req.BuyerID, detail: name}, nil
}

func (e *Engine) applyPrivateChannel(ctx context.Context, req Request) (applied, error) {
	if e.privateCategoryID == "" {
		e.say(ctx, req.ChannelID,
			"Erro: A categoria de canais de voz privados não está configurada. Peça a um administrador para configurá-la.")
		return applied{}, domain.ErrNotFound
	}

	name := "Privado-" + req.BuyerName
	channelID, err := e.platform.CreatePrivateVoiceChannel(ctx, req.GuildID, e.privateCategoryID, name, req.BuyerID)
	if err != nil {
		e.say(ctx, req.ChannelID, "Erro ao criar o canal de voz privado.")
		return applied{}, err
	}

	e.mu.Lock()
	e.channels[req.BuyerID] = &privateChannel{
		channelID: channelID,
		name:      name,
		invited:   make(map[string]bool),
	}
	e.mu.Unlock()

	e.schedule(domain.EffectDeleteChannel, req.GuildID, "", channelID, PrivateChannelDuration)

	e.say(ctx, req.ChannelID, fmt.Sprintf(
		"%s, seu canal de voz privado '%s' foi criado por 24 horas! 🎉\n"+
			"Use o comando `!convidar @usuário` para convidar outros usuários para o canal.\n"+
			"Nota: Este canal é privado e só pode ser gerenciado com o comando `!convidar`.",
		mention(req.BuyerID), name))
	return applied{targetID: req.BuyerID, detail: name}, nil
}
