package purchase

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/domain"
	"github.com/rupianet/rupia/internal/infra/achievements"
	"github.com/rupianet/rupia/internal/infra/ledger"
	"github.com/rupianet/rupia/internal/infra/logbook"
	"github.com/rupianet/rupia/internal/infra/sqlite"
	"github.com/rupianet/rupia/internal/platform/platformtest"
)

func testCatalog() domain.Catalog {
	return domain.Catalog{
		domain.ItemVIPRole:        {ID: domain.ItemVIPRole, Description: "Cargo VIP por 30 dias", Price: 500},
		domain.ItemCustomMessage:  {ID: domain.ItemCustomMessage, Description: "Mensagem no canal geral", Price: 100},
		domain.ItemVoiceKick:      {ID: domain.ItemVoiceKick, Description: "Expulsa alguém da voz", Price: 150},
		domain.ItemVoiceMute:      {ID: domain.ItemVoiceMute, Description: "Muta alguém na voz por 5 min", Price: 200},
		domain.ItemTextMute:       {ID: domain.ItemTextMute, Description: "Muta alguém no texto por 5 min", Price: 200},
		domain.ItemCustomRole:     {ID: domain.ItemCustomRole, Description: "Cargo com nome à sua escolha", Price: 300},
		domain.ItemPrivateChannel: {ID: domain.ItemPrivateChannel, Description: "Canal de voz privado por 24h", Price: 400},
	}
}

type fixture struct {
	engine   *Engine
	store    *ledger.Store
	db       *sqlite.DB
	platform *platformtest.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	dir := t.TempDir()

	store := ledger.Open(filepath.Join(dir, "economy.json"), log)
	db, err := sqlite.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	platform := &platformtest.Fake{}
	book := logbook.New(platform, "log-channel", log)
	tracker := achievements.New(store, log)

	engine := New(store, tracker, db, platform, book, log,
		testCatalog(), "geral", "category-1")
	return &fixture{engine: engine, store: store, db: db, platform: platform}
}

func (f *fixture) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	if _, err := f.store.Credit(userID, "", amount); err != nil {
		t.Fatalf("fund %s: %v", userID, err)
	}
}

func (f *fixture) balance(userID string) int64 {
	return f.store.Get(userID, "").Balance
}

func req(item string) Request {
	return Request{GuildID: "g1", ChannelID: "cmd", BuyerID: "buyer", BuyerName: "Alice", ItemID: item}
}

func (f *fixture) saidContaining(substr string) bool {
	for _, s := range f.platform.Messages {
		if strings.Contains(s.Content, substr) {
			return true
		}
	}
	return false
}

func TestBuyUnknownItem(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)

	err := f.engine.Buy(context.Background(), req("nao_existe"))
	if !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("err = %v, want ErrItemNotFound", err)
	}
	if got := f.balance("buyer"); got != 1000 {
		t.Fatalf("balance = %d, want 1000", got)
	}
}

func TestBuyMissingPermissionsDoesNotCharge(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)
	f.platform.Missing = domain.PermManageRoles

	err := f.engine.Buy(context.Background(), req(domain.ItemVIPRole))
	if !errors.Is(err, domain.ErrMissingPermissions) {
		t.Fatalf("err = %v, want ErrMissingPermissions", err)
	}
	if got := f.balance("buyer"); got != 1000 {
		t.Fatalf("balance = %d, want 1000", got)
	}
	if !f.saidContaining("Gerenciar Cargos") {
		t.Fatal("missing-permission message should name the capability")
	}
}

func TestBuyInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 100)

	err := f.engine.Buy(context.Background(), req(domain.ItemVIPRole))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := f.balance("buyer"); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
}

func TestBuyVIPRole(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)

	if err := f.engine.Buy(context.Background(), req(domain.ItemVIPRole)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if got := f.balance("buyer"); got != 500 {
		t.Fatalf("balance = %d, want 500", got)
	}
	if len(f.platform.Granted) != 1 || f.platform.Granted[0].UserID != "buyer" {
		t.Fatalf("granted = %+v, want one grant to buyer", f.platform.Granted)
	}

	effects, err := f.db.ListScheduledEffects()
	if err != nil {
		t.Fatalf("list effects: %v", err)
	}
	if len(effects) != 1 || effects[0].Kind != domain.EffectRemoveRole {
		t.Fatalf("effects = %+v, want one remove_role", effects)
	}
	if effects[0].TargetID != "buyer" {
		t.Fatalf("effect target = %q, want buyer", effects[0].TargetID)
	}

	recs, err := f.db.RecentPurchases(10)
	if err != nil {
		t.Fatalf("recent purchases: %v", err)
	}
	if len(recs) != 1 || recs[0].Outcome != domain.OutcomeApplied {
		t.Fatalf("audit = %+v, want one applied row", recs)
	}

	st := f.store.Get("buyer", "").Achievements[domain.AchComprador]
	if st == nil || st.Progress != 1 {
		t.Fatalf("comprador progress = %+v, want 1", st)
	}
}

func TestBuyCustomMessageTimeoutRefunds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)
	// No scripted replies: the text prompt times out.

	err := f.engine.Buy(context.Background(), req(domain.ItemCustomMessage))
	if !errors.Is(err, domain.ErrPromptTimeout) {
		t.Fatalf("err = %v, want ErrPromptTimeout", err)
	}
	if got := f.balance("buyer"); got != 1000 {
		t.Fatalf("balance after refund = %d, want 1000", got)
	}

	recs, _ := f.db.RecentPurchases(10)
	if len(recs) != 1 || recs[0].Outcome != domain.OutcomeRefunded {
		t.Fatalf("audit = %+v, want one refunded row", recs)
	}
	if st := f.store.Get("buyer", "").Achievements[domain.AchComprador]; st != nil && st.Progress != 0 {
		t.Fatalf("comprador advanced on refund: %+v", st)
	}
}

func TestBuyCustomMessageRelays(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)
	f.platform.Replies = []string{"olá comunidade"}

	if err := f.engine.Buy(context.Background(), req(domain.ItemCustomMessage)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	relayed := false
	for _, s := range f.platform.Messages {
		if s.To == "geral" && strings.Contains(s.Content, "olá comunidade") {
			relayed = true
		}
	}
	if !relayed {
		t.Fatal("custom message not relayed to the announcement channel")
	}
}

func TestBuyVoiceKickAnonymous(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)
	f.platform.Voice = map[string][]domain.Member{"g1": {
		{ID: "buyer", Name: "Alice"},
		{ID: "t1", Name: "Bruno"},
		{ID: "bot", Name: "Beeper", Bot: true},
	}}
	f.platform.Replies = []string{"1", "sim"}

	if err := f.engine.Buy(context.Background(), req(domain.ItemVoiceKick)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Buyer and bot are excluded, so choice 1 is Bruno.
	if len(f.platform.Disconnected) != 1 || f.platform.Disconnected[0] != "t1" {
		t.Fatalf("disconnected = %v, want [t1]", f.platform.Disconnected)
	}
	if got := f.balance("buyer"); got != 1000-150-domain.AnonymitySurcharge {
		t.Fatalf("balance = %d, want %d", got, 1000-150-domain.AnonymitySurcharge)
	}
	if !f.saidContaining("um usuário anônimo") {
		t.Fatal("public announcement should hide the actor")
	}

	recs, _ := f.db.RecentPurchases(10)
	if len(recs) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(recs))
	}
	if recs[0].BuyerID != "buyer" || !recs[0].Anonymous || recs[0].Surcharge != domain.AnonymitySurcharge {
		t.Fatalf("audit must keep the true buyer: %+v", recs[0])
	}
}

func TestBuyVoiceKickAnonymityUnaffordable(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 160) // covers the price, not the surcharge
	f.platform.Voice = map[string][]domain.Member{"g1": {{ID: "t1", Name: "Bruno"}}}
	f.platform.Replies = []string{"1", "sim"}

	if err := f.engine.Buy(context.Background(), req(domain.ItemVoiceKick)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if got := f.balance("buyer"); got != 10 {
		t.Fatalf("balance = %d, want 10 (no surcharge)", got)
	}
	if f.saidContaining("um usuário anônimo") {
		t.Fatal("action should not be anonymous when the surcharge is unaffordable")
	}
	if !f.saidContaining("não tem Rupias suficientes para ser anônimo") {
		t.Fatal("buyer should be told the surcharge was unaffordable")
	}
}

func TestBuyVoiceKickInvalidSelectionRefunds(t *testing.T) {
	for _, reply := range []string{"7", "0", "1abc", "um", ""} {
		t.Run(reply, func(t *testing.T) {
			f := newFixture(t)
			f.fund(t, "buyer", 1000)
			f.platform.Voice = map[string][]domain.Member{"g1": {{ID: "t1", Name: "Bruno"}}}
			f.platform.Replies = []string{reply}

			err := f.engine.Buy(context.Background(), req(domain.ItemVoiceKick))
			if !errors.Is(err, domain.ErrInvalidSelection) {
				t.Fatalf("reply %q: err = %v, want ErrInvalidSelection", reply, err)
			}
			if got := f.balance("buyer"); got != 1000 {
				t.Fatalf("reply %q: balance = %d, want 1000", reply, got)
			}
			if len(f.platform.Disconnected) != 0 {
				t.Fatalf("reply %q: nobody should be disconnected, got %v", reply, f.platform.Disconnected)
			}
		})
	}
}

func TestBuyVoiceKickAnonymityTimeoutRefunds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)
	f.platform.Voice = map[string][]domain.Member{"g1": {{ID: "t1", Name: "Bruno"}}}
	f.platform.Replies = []string{"1"} // anonymity prompt times out

	err := f.engine.Buy(context.Background(), req(domain.ItemVoiceKick))
	if !errors.Is(err, domain.ErrPromptTimeout) {
		t.Fatalf("err = %v, want ErrPromptTimeout", err)
	}
	if got := f.balance("buyer"); got != 1000 {
		t.Fatalf("balance = %d, want full refund to 1000", got)
	}
}

func TestBuyVoiceKickNoTargetsRefunds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)
	f.platform.Voice = map[string][]domain.Member{"g1": {{ID: "buyer", Name: "Alice"}}}

	err := f.engine.Buy(context.Background(), req(domain.ItemVoiceKick))
	if !errors.Is(err, domain.ErrNoTargets) {
		t.Fatalf("err = %v, want ErrNoTargets", err)
	}
	if got := f.balance("buyer"); got != 1000 {
		t.Fatalf("balance = %d, want 1000", got)
	}
}

func TestBuyVoiceMutePlatformErrorRefundsSurchargeToo(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)
	f.platform.Voice = map[string][]domain.Member{"g1": {{ID: "t1", Name: "Bruno"}}}
	f.platform.Replies = []string{"1", "sim"}
	f.platform.Errors = map[string]error{"SetVoiceMute": errors.New("api down")}

	err := f.engine.Buy(context.Background(), req(domain.ItemVoiceMute))
	if err == nil {
		t.Fatal("buy should fail")
	}
	// Price and surcharge both come back.
	if got := f.balance("buyer"); got != 1000 {
		t.Fatalf("balance = %d, want 1000", got)
	}
}

func TestBuyVoiceMuteSchedulesUnmute(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)
	f.platform.Voice = map[string][]domain.Member{"g1": {{ID: "t1", Name: "Bruno"}}}
	f.platform.Replies = []string{"1", "não"}

	if err := f.engine.Buy(context.Background(), req(domain.ItemVoiceMute)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !f.platform.VoiceMuted["t1"] {
		t.Fatal("target not voice-muted")
	}
	effects, _ := f.db.ListScheduledEffects()
	if len(effects) != 1 || effects[0].Kind != domain.EffectVoiceUnmute || effects[0].TargetID != "t1" {
		t.Fatalf("effects = %+v, want one voice_unmute for t1", effects)
	}
}

func TestBuyTextMute(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)
	f.platform.Members = map[string][]domain.Member{"g1": {
		{ID: "buyer", Name: "Alice"},
		{ID: "t1", Name: "Bruno"},
	}}
	f.platform.Replies = []string{"1", "não"}

	if err := f.engine.Buy(context.Background(), req(domain.ItemTextMute)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !f.platform.TextMuted["t1"] {
		t.Fatal("target not text-muted")
	}
	effects, _ := f.db.ListScheduledEffects()
	if len(effects) != 1 || effects[0].Kind != domain.EffectTextUnmute {
		t.Fatalf("effects = %+v, want one text_unmute", effects)
	}
}

func TestBuyCustomRoleTruncatesName(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)
	long := strings.Repeat("x", 80)
	f.platform.Replies = []string{long}

	if err := f.engine.Buy(context.Background(), req(domain.ItemCustomRole)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(f.platform.CreatedRoles) != 1 {
		t.Fatalf("created roles = %v, want one", f.platform.CreatedRoles)
	}
	if got := f.platform.CreatedRoles[0]; got != long[:CustomRoleNameLimit] {
		t.Fatalf("role name %q not truncated to %d chars", got, CustomRoleNameLimit)
	}
	effects, _ := f.db.ListScheduledEffects()
	if len(effects) != 1 || effects[0].Kind != domain.EffectDeleteRole {
		t.Fatalf("effects = %+v, want one delete_role", effects)
	}
}

func TestBuyCustomRoleTruncatesByCharacters(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "buyer", 1000)
	long := "Importância" + strings.Repeat("ção", 20) // 71 runes, multi-byte
	f.platform.Replies = []string{long}

	if err := f.engine.Buy(context.Background(), req(domain.ItemCustomRole)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(f.platform.CreatedRoles) != 1 {
		t.Fatalf("created roles = %v, want one", f.platform.CreatedRoles)
	}
	got := f.platform.CreatedRoles[0]
	if !utf8.ValidString(got) {
		t.Fatalf("role name %q is not valid UTF-8", got)
	}
	if n := utf8.RuneCountInString(got); n != CustomRoleNameLimit {
		t.Fatalf("role name has %d characters, want %d", n, CustomRoleNameLimit)
	}
	if want := string([]rune(long)[:CustomRoleNameLimit]); got != want {
		t.Fatalf("role name = %q, want %q", got, want)
	}
}

func TestBuyPrivateChannelAndInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "buyer", 1000)

	if err := f.engine.Buy(ctx, req(domain.ItemPrivateChannel)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(f.platform.CreatedChannels) != 1 {
		t.Fatalf("created channels = %+v, want one", f.platform.CreatedChannels)
	}
	ch := f.platform.CreatedChannels[0]
	if ch.CategoryID != "category-1" || ch.OwnerID != "buyer" {
		t.Fatalf("channel = %+v", ch)
	}

	if err := f.engine.Invite(ctx, req(domain.ItemPrivateChannel), "guest"); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if got := f.platform.ChannelAccess[ch.ID]; len(got) != 1 || got[0] != "guest" {
		t.Fatalf("channel access = %v, want [guest]", got)
	}

	err := f.engine.Invite(ctx, req(domain.ItemPrivateChannel), "guest")
	if !errors.Is(err, domain.ErrAlreadyInvited) {
		t.Fatalf("second invite err = %v, want ErrAlreadyInvited", err)
	}

	effects, _ := f.db.ListScheduledEffects()
	if len(effects) != 1 || effects[0].Kind != domain.EffectDeleteChannel || effects[0].ResourceID != ch.ID {
		t.Fatalf("effects = %+v, want one delete_channel for %s", effects, ch.ID)
	}
}

func TestInviteWithoutChannel(t *testing.T) {
	f := newFixture(t)
	err := f.engine.Invite(context.Background(), req(""), "guest")
	if !errors.Is(err, domain.ErrNoPrivateChannel) {
		t.Fatalf("err = %v, want ErrNoPrivateChannel", err)
	}
}

func TestInviteAfterChannelReaped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "buyer", 1000)

	if err := f.engine.Buy(ctx, req(domain.ItemPrivateChannel)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	ch := f.platform.CreatedChannels[0]
	f.platform.DeadResources = map[string]bool{ch.ID: true}

	err := f.engine.Invite(ctx, req(domain.ItemPrivateChannel), "guest")
	if !errors.Is(err, domain.ErrNoPrivateChannel) {
		t.Fatalf("err = %v, want ErrNoPrivateChannel", err)
	}
	// The stale registration is gone; the next invite reports no channel.
	err = f.engine.Invite(ctx, req(domain.ItemPrivateChannel), "guest")
	if !errors.Is(err, domain.ErrNoPrivateChannel) {
		t.Fatalf("err = %v, want ErrNoPrivateChannel", err)
	}
}

func TestCompradorCompletesOnFifthCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "buyer", 10000)
	f.platform.Replies = []string{"msg 1", "msg 2", "msg 3", "msg 4", "msg 5"}

	for i := 0; i < 5; i++ {
		if err := f.engine.Buy(ctx, req(domain.ItemCustomMessage)); err != nil {
			t.Fatalf("buy %d: %v", i, err)
		}
	}

	st := f.store.Get("buyer", "").Achievements[domain.AchComprador]
	if st == nil || !st.Completed {
		t.Fatalf("comprador not completed: %+v", st)
	}
	def, _ := domain.AchievementByID(domain.AchComprador)
	want := int64(10000) - 5*100 + def.Reward
	if got := f.balance("buyer"); got != want {
		t.Fatalf("balance = %d, want %d (includes %d bonus)", got, want, def.Reward)
	}
}
