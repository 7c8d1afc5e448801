// Package daemon wires the whole bot together: config, stores, engines,
// gateway and the HTTP API, plus graceful shutdown.
package daemon

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/rupianet/rupia/internal/domain"
	"github.com/rupianet/rupia/internal/infra/ratelimit"
)

// Config is the full daemon configuration, loaded from TOML.
type Config struct {
	Bot      BotConfig              `toml:"bot"`
	Channels ChannelsConfig         `toml:"channels"`
	Economy  EconomyConfig          `toml:"economy"`
	Shop     map[string]domain.Item `toml:"shop"`
	API      APIConfig              `toml:"api"`
}

// BotConfig covers the Discord connection and command handling.
type BotConfig struct {
	Token           string `toml:"token"`
	Prefix          string `toml:"prefix"`
	ModeratorRoleID string `toml:"moderator_role_id"`
}

// ChannelsConfig names the fixed channels the bot posts to. Empty ids disable
// the corresponding feature.
type ChannelsConfig struct {
	Announce        string `toml:"announce"`         // shop announcements and custom messages
	Logbook         string `toml:"logbook"`          // audit feed
	Welcome         string `toml:"welcome"`          // member greetings
	PrivateCategory string `toml:"private_category"` // parent for bought voice channels
}

// EconomyConfig covers balances, earning limits and persistence paths.
type EconomyConfig struct {
	DataFile          string `toml:"data_file"`
	DatabasePath      string `toml:"database_path"`
	DailyMessageLimit int    `toml:"daily_message_limit"`
	DailyVoiceLimit   int    `toml:"daily_voice_limit"`
}

// APIConfig covers the HTTP surface.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// DefaultConfig returns the configuration used when a key is absent from the
// TOML file.
func DefaultConfig() Config {
	return Config{
		Bot: BotConfig{
			Prefix: "!",
		},
		Economy: EconomyConfig{
			DataFile:          "economy.json",
			DatabasePath:      "rupia.db",
			DailyMessageLimit: ratelimit.DailyMessageLimit,
			DailyVoiceLimit:   ratelimit.DailyVoiceLimit,
		},
		Shop: domain.DefaultCatalog(),
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8080,
			Metrics: true,
		},
	}
}

// LoadConfig reads the TOML file at path over the defaults. A missing file
// yields the defaults unchanged; a malformed file is an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("bot.token is required")
	}
	if c.Economy.DailyMessageLimit < 1 {
		return fmt.Errorf("economy.daily_message_limit must be at least 1, got %d", c.Economy.DailyMessageLimit)
	}
	if c.Economy.DailyVoiceLimit < 1 {
		return fmt.Errorf("economy.daily_voice_limit must be at least 1, got %d", c.Economy.DailyVoiceLimit)
	}
	for id, item := range c.Shop {
		if item.Price < 1 {
			return fmt.Errorf("shop.%s.price must be at least 1, got %d", id, item.Price)
		}
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port out of range: %d", c.API.Port)
	}
	return nil
}

// Catalog returns the shop as the engines consume it, with ids filled in.
func (c Config) Catalog() domain.Catalog {
	catalog := make(domain.Catalog, len(c.Shop))
	for id, item := range c.Shop {
		item.ID = id
		catalog[id] = item
	}
	return catalog
}
