// Command pulse runs the account and realtime notification server.
package main

import (
	"fmt"
	"os"

	"github.com/aussiebroadwan/pulse/internal/pulse/app"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to a YAML config file (falls back to CONFIG_PATH, ./pulse.yaml, then the environment)",
	}

	serve := &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP and websocket server",
		Action: func(c *cli.Context) error {
			cfg, err := app.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			application, err := app.New(c.Context, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return application.Run(c.Context)
		},
	}

	return &cli.App{
		Name:    "pulse",
		Usage:   "account authentication with per-user realtime notifications",
		Version: app.BuildVersion,
		Flags:   []cli.Flag{configFlag},
		Action:  serve.Action,
		Commands: []*cli.Command{
			serve,
			{
				Name:  "migrate",
				Usage: "apply database migrations and exit",
				Action: func(c *cli.Context) error {
					cfg, err := app.LoadConfig(c.String("config"))
					if err != nil {
						return err
					}
					cfg.Database.AutoMigrate = true

					logger := slogx.New(slogx.Config{
						Service: "pulse",
						Version: app.BuildVersion,
						Env:     cfg.Env,
						Level:   cfg.LogLevel,
						Format:  cfg.LogFormat,
					})
					st, err := app.OpenStore(c.Context, cfg.Database, logger)
					if err != nil {
						return err
					}
					return st.Close()
				},
			},
			{
				Name:  "version",
				Usage: "print the build version",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintln(c.App.Writer, app.BuildVersion)
					return err
				},
			},
		},
	}
}
