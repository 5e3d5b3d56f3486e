package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	realtimeservice "fleet-realtime/cmd/realtime_service"
	"fleet-realtime/internal/general/config"

	"github.com/urfave/cli/v3"
)

const DefaultConfigPath = "config/config.toml"

// App builds the root command.
func App() *cli.Command {
	return &cli.Command{
		Name:  "fleet-realtime",
		Usage: "Realtime GPS, chat and notification hub for fleet operations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path (TOML)",
				Value:   DefaultConfigPath,
				Sources: cli.EnvVars("FLEET_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			ServeCommand(),
			TokenCommand(),
			InitCommand(),
		},
	}
}

// ServeCommand runs the HTTP and websocket server.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the realtime service",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "max-concurrent",
				Usage: "Maximum number of concurrent HTTP requests to process (0 keeps the config value)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (0 keeps the config value)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if err := applyServeFlags(cfg, c.Int("max-concurrent"), c.Int("port")); err != nil {
				return err
			}
			return realtimeservice.Run(ctx, cfg)
		},
	}
}

// InitCommand writes the sample configuration.
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a sample configuration file",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.String("config")
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteTemplate(path); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Printf("Configuration initialized at %s\n", path)
			return nil
		},
	}
}

// loadConfig falls back to defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func applyServeFlags(cfg *config.Config, maxConcurrent, port int) error {
	if maxConcurrent < 0 {
		return errors.New("--max-concurrent must be >= 0")
	}
	if port < 0 || port > 65535 {
		return errors.New("--port must be in 0..65535")
	}
	if maxConcurrent > 0 {
		cfg.Server.MaxConcurrent = maxConcurrent
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	return nil
}
