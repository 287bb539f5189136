package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"github.com/vedran77/parley/internal/config"
	"github.com/vedran77/parley/internal/database"
)

func migrateCommand() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema and exit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "db-url",
				Sources:     cli.EnvVars("PARLEY_DB_URL"),
				Destination: &cfg.DBURL,
				Value:       cfg.DBURL,
				Usage:       "PostgreSQL connection URL",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			pool, err := database.Connect(ctx, cfg.DBURL, 2)
			if err != nil {
				return err
			}
			defer pool.Close()

			log.Info("Running migrations...")
			if err := database.Migrate(ctx, pool); err != nil {
				return err
			}
			log.Info("Migrations completed")
			return nil
		},
	}
}
