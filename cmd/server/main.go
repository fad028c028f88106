package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"feria/internal/platform/config"
	"feria/internal/platform/database"
	"feria/internal/platform/logger"
)

const migrateTimeout = time.Minute

var envFileFlag = &cli.StringFlag{
	Name:    "env-file",
	Value:   ".env",
	Usage:   "dotenv file loaded before reading the environment",
	EnvVars: []string{"FERIA_ENV_FILE"},
}

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in internal/registration.
func main() {
	app := &cli.App{
		Name:   "feria",
		Usage:  "Business fair registration intake service",
		Flags:  []cli.Flag{envFileFlag},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cCtx *cli.Context) (*config.Config, error) {
	if err := config.LoadEnvFile(cCtx.String(envFileFlag.Name), cCtx.IsSet(envFileFlag.Name)); err != nil {
		return nil, err
	}
	return config.Load()
}

func serve(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting feria", "config", cfg.String())

	ctx, stop := signal.NotifyContext(cCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := buildApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		return err
	}
	defer server.Close()

	return server.Run(ctx)
}

func migrate(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == config.DriverMemory {
		return fmt.Errorf("driver %q has nothing to migrate", cfg.Database.Driver)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithTimeout(cCtx.Context, migrateTimeout)
	defer cancel()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info("migrations applied", "driver", cfg.Database.Driver)
	return nil
}
