package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/cardsync/internal"
	pkgconfig "github.com/starford/cardsync/pkg/config"
)

var version = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func action(name string, fn func(context.Context, ...internal.Option) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		opts, err := options(cmd)
		if err != nil {
			return err
		}
		if err := fn(ctx, opts...); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "cardsync",
		Usage:   "Sync iCloud contacts into Markdown notes",
		Version: version,
		Action:  action("serve", internal.Run),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with scheduled and watcher-triggered syncs",
				Action: action("serve", internal.Run),
			},
			{
				Name:   "sync",
				Usage:  "Run a single sync pass and print its report",
				Action: action("sync", internal.RunSync),
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: action("mcp", internal.RunMCP),
			},
			{
				Name:   "status",
				Usage:  "Print the most recent recorded sync pass",
				Action: action("status", internal.RunStatus),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
