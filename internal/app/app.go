// Package app wires configuration, storage, the onboarding machine, and the
// Telegram runtime into a runnable bot.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/roastery/baristabot/core/bootstrap"
	coreconfig "github.com/roastery/baristabot/core/config"
	coredatabase "github.com/roastery/baristabot/core/database"
	coretelegram "github.com/roastery/baristabot/core/telegram"
	tghelpers "github.com/roastery/baristabot/core/telegram/helpers"
	"github.com/roastery/baristabot/core/telegram/router"
	"github.com/roastery/baristabot/internal/bot"
	"github.com/roastery/baristabot/internal/onboarding"
	"github.com/roastery/baristabot/internal/store"

	tele "gopkg.in/telebot.v4"
)

// Config aggregates core and database settings from one YAML file.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
}

// CoreConfig satisfies the cmd runner's ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// LoadConfig reads the YAML file and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// App holds the assembled bot.
type App struct {
	cfg *Config
	db  *sqlx.DB

	sender   *bot.TelegramSender
	machine  *onboarding.Machine
	registry *coretelegram.Registry
	fsm      *bot.FSMAdapter
}

// Bootstrap initializes logging, storage, and the onboarding machine.
func Bootstrap(cfg *Config) (*App, error) {
	result, err := bootstrap.Run(bootstrap.Options{
		Config:   &cfg.Core,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	creds := store.NewPGCredentials(result.DB)
	invites := store.NewPGInvites(result.DB)
	sessions := store.NewPGSessions(result.DB)

	sender := bot.NewTelegramSender()
	machine := onboarding.NewMachine(creds, invites, sessions, sender)
	handlers := bot.NewHandlers(machine, creds, invites)

	registry, err := bot.BuildRegistry(handlers)
	if err != nil {
		_ = result.DB.Close()
		return nil, fmt.Errorf("app: registry build failed: %w", err)
	}

	return &App{
		cfg:      cfg,
		db:       result.DB,
		sender:   sender,
		machine:  machine,
		registry: registry,
		fsm:      bot.NewFSMAdapter(machine),
	}, nil
}

// TelegramRunOptions builds the runtime options for the core Telegram loop.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	onLimited := func(c tele.Context) error {
		return tghelpers.SendText(c, "Easy there! Please wait a moment between messages.")
	}

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: a.cfg.Core.Telegram.AdminID,
	})
	routes = append(routes, router.TextRoutes(a.fsm, a.registry, router.TextOptions{})...)
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))

	return coretelegram.RunOptions{
		Config:      &a.cfg.Core,
		Registry:    a.registry,
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Core, onLimited),
		Routes:      routes,
		OnStart: func(_ context.Context, rt coretelegram.Runtime) error {
			a.sender.Bind(rt.Bot, rt.Dispatcher)
			return nil
		},
		OnStop: func(_ context.Context, _ coretelegram.Runtime) error {
			return a.db.Close()
		},
	}, nil
}
