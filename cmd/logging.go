package cmd

import (
	"github.com/achilleasa/rtdenoise/config"
	"github.com/achilleasa/rtdenoise/log"
	"github.com/urfave/cli"
)

var logger = log.New("rtdenoise")

// setupLogging applies the configured level; the global verbosity flags
// take precedence.
func setupLogging(ctx *cli.Context, cfg *config.Config) {
	if cfg != nil {
		log.SetLevel(cfg.LogLevel())
	}

	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
