// Command migrate applies the embedded schema migrations without starting
// the server, or lists them with --list.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"fleetdispatch/pkg/config"
	"fleetdispatch/pkg/database"
	"fleetdispatch/pkg/logging"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML config file")
	list := pflag.Bool("list", false, "list embedded migrations and exit")
	pflag.Parse()

	if *list {
		sources, err := database.Embedded()
		if err != nil {
			fmt.Fprintf(os.Stderr, "collect migrations: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d embedded migrations\n", len(sources))
		for _, s := range sources {
			fmt.Printf(" - %s\n", s)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		slog.Error("migrate failed", "error", err)
		os.Exit(1)
	}
	version, err := database.Version(ctx, db)
	if err != nil {
		slog.Error("read version failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("schema at version %d\n", version)
}
