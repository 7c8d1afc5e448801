package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rupianet/rupia/internal/api"
	"github.com/rupianet/rupia/internal/app/earning"
	"github.com/rupianet/rupia/internal/app/moderation"
	"github.com/rupianet/rupia/internal/app/purchase"
	"github.com/rupianet/rupia/internal/app/scheduler"
	"github.com/rupianet/rupia/internal/app/welcome"
	"github.com/rupianet/rupia/internal/bot"
	"github.com/rupianet/rupia/internal/infra/achievements"
	"github.com/rupianet/rupia/internal/infra/ledger"
	"github.com/rupianet/rupia/internal/infra/logbook"
	"github.com/rupianet/rupia/internal/infra/ratelimit"
	"github.com/rupianet/rupia/internal/infra/sqlite"
	"github.com/rupianet/rupia/internal/platform/discord"
)

// Run starts the bot and blocks until ctx is cancelled or startup fails.
func Run(ctx context.Context, cfg Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	store := ledger.Open(cfg.Economy.DataFile, log)
	db, err := sqlite.Open(cfg.Economy.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	gateway, err := discord.NewGateway(cfg.Bot.Token, log)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	platform := discord.New(gateway.Session(), log)

	book := logbook.New(platform, cfg.Channels.Logbook, log)
	tracker := achievements.New(store, log)
	limiter := ratelimit.New(ratelimit.TextCooldown, ratelimit.VoiceCooldown)
	catalog := cfg.Catalog()

	earn := earning.New(store, limiter, tracker, platform, book, log,
		cfg.Economy.DailyMessageLimit, cfg.Economy.DailyVoiceLimit)
	purchases := purchase.New(store, tracker, db, platform, book, log,
		catalog, cfg.Channels.Announce, cfg.Channels.PrivateCategory)
	mod := moderation.New(db, platform, book, log, cfg.Bot.ModeratorRoleID)
	router := bot.New(cfg.Bot.Prefix, store, earn, purchases, mod, platform, book, log, catalog)
	greeter := welcome.New(platform, log, cfg.Channels.Welcome, nil)
	reaper := scheduler.New(db, platform, book, log, scheduler.DefaultSweepInterval)

	gateway.OnMessage(router)
	gateway.OnJoin(greeter)

	if err := gateway.Open(ctx); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer gateway.Close()
	log.Info("bot connected",
		zap.String("prefix", cfg.Bot.Prefix), zap.Int("shop_items", len(catalog)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		earn.RunVoiceScan(runCtx)
	}()
	go func() {
		defer wg.Done()
		reaper.Run(runCtx)
	}()

	server := api.NewServer(store, db, catalog)
	if cfg.API.Metrics {
		server.EnableMetrics()
	}
	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	httpErr := make(chan error, 1)
	go func() {
		log.Info("http api listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		cancel()
		wg.Wait()
		return fmt.Errorf("http api: %w", err)
	}

	log.Info("shutting down")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", zap.Error(err))
	}
	return nil
}
