package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bionicsv26/telegram-bot/internal/config"
	"github.com/bionicsv26/telegram-bot/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the bot database",
		Long:  "Creates or migrates the session and history tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hotelbot.yaml", "path to config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config from %s (driver %s)\n", configPath, cfg.Storage.Driver)

	gdb, err := db.Open(cfg.Storage.Driver, cfg.Storage.Path,
		cfg.Storage.User, cfg.Storage.Host, cfg.Storage.Port)
	if err != nil {
		return err
	}

	if err := db.Migrate(gdb); err != nil {
		return err
	}
	fmt.Fprintln(out, "Migrated search_sessions and history_queries")

	fmt.Fprintln(out, "\nDatabase initialized successfully.")
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the bot database",
		Long: `Deletes the sqlite database file and re-creates the tables.

Only the sqlite driver is supported; reset a mysql deployment with
your usual database tooling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hotelbot.yaml", "path to config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Driver != "sqlite" {
		return fmt.Errorf("db reset only supports the sqlite driver, config uses %q", cfg.Storage.Driver)
	}

	if !skipConfirm && !confirmReset(cmd, cfg.Storage.Path) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	if err := os.Remove(cfg.Storage.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", cfg.Storage.Path, err)
	}
	fmt.Fprintf(out, "Removed %s\n", cfg.Storage.Path)

	gdb, err := db.Open(cfg.Storage.Driver, cfg.Storage.Path,
		cfg.Storage.User, cfg.Storage.Host, cfg.Storage.Port)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}
	fmt.Fprintln(out, "Migrated search_sessions and history_queries")

	fmt.Fprintln(out, "\nDatabase reset successfully.")
	return nil
}

func confirmReset(cmd *cobra.Command, path string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all data in %q.\n", path)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
