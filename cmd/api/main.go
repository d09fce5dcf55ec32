package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/config"
)

// flags holds the global command line options and the configuration they
// lead to.
type flags struct {
	envFile  string
	logLevel string
	cfg      config.Config
}

func main() {
	f := &flags{}

	app := &cli.Command{
		Name:  "api",
		Usage: "RetroRade direct messaging API (gRPC + REST)",
		Description: `Serves the conversation directory and message ledger over gRPC and HTTP.

Run 'api' or 'api serve' to start the servers, 'api migrate' to create the
MongoDB indexes and 'api reconcile' to remove messages left behind by an
interrupted conversation delete.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "optional .env file loaded before the environment",
				Value:       ".env",
				Destination: &f.envFile,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error); overrides LOG_LEVEL",
				Destination: &f.logLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Load(f.envFile)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if f.logLevel != "" {
				cfg.LogLevel = f.logLevel
			}
			if err := setupLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
				return ctx, err
			}
			f.cfg = cfg
			return ctx, nil
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() > 0 {
				return fmt.Errorf("unknown command %q. Run 'api --help' for usage", c.Args().First())
			}
			return serve(ctx, f.cfg)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the gRPC and HTTP servers",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return serve(ctx, f.cfg)
				},
			},
			{
				Name:  "migrate",
				Usage: "create MongoDB indexes",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return migrate(ctx, f.cfg)
				},
			},
			{
				Name:  "reconcile",
				Usage: "run one orphaned message sweep and exit",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return reconcile(ctx, f.cfg)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx, os.Args)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("api exited")
		os.Exit(1)
	}
}

func setupLogger(level, format string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = os.Stderr
	if format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	log.Logger = zerolog.New(output).Level(parsedLevel).With().Timestamp().Logger()
	return nil
}
