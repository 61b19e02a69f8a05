package cmd

import (
	"os"

	"github.com/achilleasa/rtdenoise/config"
	"github.com/urfave/cli"
)

// PrintConfig writes the default configuration, or the configuration
// loaded with --config, as TOML to stdout.
func PrintConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	setupLogging(ctx, &cfg)
	return cfg.Encode(os.Stdout)
}

func loadConfig(ctx *cli.Context) (config.Config, error) {
	path := ctx.GlobalString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
