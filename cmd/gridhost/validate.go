package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/atlanticdynamic/gridhost/internal/config"
)

var validateCmd = &cli.Command{
	Name:  "validate",
	Usage: "Validate a configuration file",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() < 1 {
			return fmt.Errorf("config file path required")
		}

		configPath := cmd.Args().Get(0)
		cfg, err := config.NewConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		fmt.Printf("Configuration file %s is valid\n\n", configPath)
		fmt.Println(cfg)
		return nil
	},
}
