package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bionicsv26/telegram-bot/internal/artifacts"
	"github.com/bionicsv26/telegram-bot/internal/chat"
	"github.com/bionicsv26/telegram-bot/internal/chat/discord"
	"github.com/bionicsv26/telegram-bot/internal/chat/slack"
	"github.com/bionicsv26/telegram-bot/internal/config"
	"github.com/bionicsv26/telegram-bot/internal/dashboard"
	"github.com/bionicsv26/telegram-bot/internal/db"
	"github.com/bionicsv26/telegram-bot/internal/dispatch"
	"github.com/bionicsv26/telegram-bot/internal/history"
	"github.com/bionicsv26/telegram-bot/internal/orchestrator"
	"github.com/bionicsv26/telegram-bot/internal/provider"
	"github.com/bionicsv26/telegram-bot/internal/wizard"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long:  "Connects to the configured chat platform and serves hotel searches until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hotelbot.yaml", "path to config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gdb, err := db.Open(cfg.Storage.Driver, cfg.Storage.Path,
		cfg.Storage.User, cfg.Storage.Host, cfg.Storage.Port)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}

	adapter, err := newAdapter(cfg)
	if err != nil {
		return err
	}

	client, err := provider.New(provider.Opts{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Timeout: time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	store := artifacts.New(cfg.History.Root)

	orch, err := orchestrator.New(orchestrator.Opts{
		DB:       gdb,
		Provider: client,
		Store:    store,
		Adapter:  adapter,
	})
	if err != nil {
		return err
	}

	eng, err := wizard.New(wizard.Opts{
		DB:           gdb,
		Adapter:      adapter,
		Orchestrator: orch,
	})
	if err != nil {
		return err
	}

	d, err := dispatch.New(dispatch.Opts{
		DB:      gdb,
		Adapter: adapter,
		Wizard:  eng,
		Store:   store,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := adapter.Connect(ctx); err != nil {
		return err
	}
	defer adapter.Close()

	sweeper := history.NewSweeper(gdb, store, cfg.History.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	if cfg.Dashboard.Enabled {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				DB:    gdb,
				Store: store,
				Port:  cfg.Dashboard.Port,
			})
			if err != nil {
				log.Printf("dashboard: %v", err)
			}
		}()
		log.Printf("dashboard listening on :%d", cfg.Dashboard.Port)
	}

	log.Printf("hotelbot serving on %s", cfg.Platform)
	if err := d.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func newAdapter(cfg *config.Config) (chat.Adapter, error) {
	switch cfg.Platform {
	case "discord":
		return discord.New(discord.AdapterOpts{BotToken: cfg.Discord.BotToken})
	case "slack":
		return slack.New(slack.AdapterOpts{
			AppToken: cfg.Slack.AppToken,
			BotToken: cfg.Slack.BotToken,
		})
	}
	return nil, fmt.Errorf("unknown platform %q", cfg.Platform)
}
