package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bionicsv26/telegram-bot/internal/config"
	"github.com/bionicsv26/telegram-bot/internal/db"
	"github.com/bionicsv26/telegram-bot/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history <chat-id>",
		Short: "List the retained searches for a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hotelbot.yaml", "path to config file")
	return cmd
}

func runHistory(cmd *cobra.Command, configPath, chatID string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gdb, err := db.Open(cfg.Storage.Driver, cfg.Storage.Path,
		cfg.Storage.User, cfg.Storage.Host, cfg.Storage.Port)
	if err != nil {
		return err
	}

	entries, err := history.List(gdb, chatID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "No searches recorded for chat %s\n", chatID)
		return nil
	}

	for _, e := range entries {
		hotels := len(strings.Fields(e.HotelsID))
		fmt.Fprintf(out, "%s  %-9s  %-20s  hotels: %d\n",
			e.DatetimeQuery, e.SortOrder, e.City, hotels)
	}
	return nil
}
