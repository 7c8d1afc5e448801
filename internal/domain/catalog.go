package domain

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementID names one of the fixed achievement goals.
type AchievementID string

const (
	AchMensageiro AchievementID = "mensageiro" // 100 messages
	AchVozAtiva   AchievementID = "voz_ativa"  // 10 hours in voice (36000s)
	AchComprador  AchievementID = "comprador"  // 5 shop purchases
)

// AchievementDef is one entry of the fixed achievement catalog.
type AchievementDef struct {
	ID     AchievementID
	Name   string
	Target int64 // progress threshold
	Reward int64 // one-time Rupia bonus
}

// AchievementDefs returns the fixed achievement catalog in display order.
func AchievementDefs() []AchievementDef {
	return []AchievementDef{
		{ID: AchMensageiro, Name: "Mensageiro", Target: 100, Reward: 200},
		{ID: AchVozAtiva, Name: "Voz Ativa", Target: 36000, Reward: 300},
		{ID: AchComprador, Name: "Comprador", Target: 5, Reward: 500},
	}
}

// AchievementByID looks up an achievement definition.
func AchievementByID(id AchievementID) (AchievementDef, bool) {
	for _, def := range AchievementDefs() {
		if def.ID == id {
			return def, true
		}
	}
	return AchievementDef{}, false
}

// ─── Shop Catalog ───────────────────────────────────────────────────────────

// Known catalog item ids. Descriptions and prices come from configuration;
// the effect recipe behind each id is fixed in the purchase engine.
const (
	ItemVIPRole        = "cargo_vip"
	ItemCustomMessage  = "mensagem_personalizada"
	ItemVoiceKick      = "kick_voz"
	ItemVoiceMute      = "mute_voz"
	ItemTextMute       = "mute_texto"
	ItemCustomRole     = "cargo_personalizado"
	ItemPrivateChannel = "canal_voz_privado"
)

// Item is one purchasable catalog entry.
type Item struct {
	ID          string `toml:"-" json:"id"`
	Description string `toml:"description" json:"description"`
	Price       int64  `toml:"price" json:"price"`
}

// Catalog maps item id → item. Read-only configuration, not user data.
type Catalog map[string]Item

// DefaultCatalog returns the stock shop used when the operator configures no
// items of their own.
func DefaultCatalog() Catalog {
	return Catalog{
		ItemVIPRole:        {Description: "Cargo VIP por 30 dias", Price: 500},
		ItemCustomMessage:  {Description: "Mensagem personalizada anunciada pelo bot", Price: 100},
		ItemVoiceKick:      {Description: "Expulsa um usuário de um canal de voz", Price: 150},
		ItemVoiceMute:      {Description: "Silencia um usuário na voz por 5 minutos", Price: 200},
		ItemTextMute:       {Description: "Silencia um usuário no texto por 5 minutos", Price: 200},
		ItemCustomRole:     {Description: "Cargo com nome personalizado por 7 dias", Price: 300},
		ItemPrivateChannel: {Description: "Canal de voz privado por 24 horas", Price: 400},
	}
}

// AnonymitySurcharge is the flat extra cost of hiding the actor's identity on
// targeted purchase effects.
const AnonymitySurcharge int64 = 50

// ─── Required Permissions ───────────────────────────────────────────────────

// Permission is a platform capability the bot may need for an effect.
type Permission uint

const (
	PermManageRoles Permission = 1 << iota
	PermManageChannels
	PermMuteMembers
	PermMoveMembers
	PermBanMembers
	PermKickMembers
	PermManageMessages
)

// String returns the human-readable capability name.
func (p Permission) String() string {
	switch p {
	case PermManageRoles:
		return "Gerenciar Cargos"
	case PermManageChannels:
		return "Gerenciar Canais"
	case PermMuteMembers:
		return "Silenciar Membros"
	case PermMoveMembers:
		return "Mover Membros"
	case PermBanMembers:
		return "Banir Membros"
	case PermKickMembers:
		return "Expulsar Membros"
	case PermManageMessages:
		return "Gerenciar Mensagens"
	default:
		return "unknown"
	}
}

// Split breaks a permission set into its individual capabilities.
func (p Permission) Split() []Permission {
	all := []Permission{
		PermManageRoles, PermManageChannels, PermMuteMembers,
		PermMoveMembers, PermBanMembers, PermKickMembers, PermManageMessages,
	}
	var out []Permission
	for _, one := range all {
		if p&one != 0 {
			out = append(out, one)
		}
	}
	return out
}

// itemPermissions is the static table mapping each catalog item to the bot
// capabilities its effect needs. Checked once during Validate, before any
// charge.
var itemPermissions = map[string]Permission{
	ItemVIPRole:        PermManageRoles,
	ItemCustomRole:     PermManageRoles,
	ItemVoiceKick:      PermMoveMembers,
	ItemVoiceMute:      PermMuteMembers,
	ItemTextMute:       PermManageChannels,
	ItemPrivateChannel: PermManageChannels,
}

// RequiredPermissions returns the capability set an item's effect needs.
// Items without an entry need none.
func RequiredPermissions(itemID string) Permission {
	return itemPermissions[itemID]
}
