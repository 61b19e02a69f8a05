package main

import (
	"fmt"
	"os"

	"github.com/achilleasa/rtdenoise/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "rtdenoise"
	app.Usage = "render ray traced ambient occlusion and reflections with temporal denoising"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load settings from a TOML file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a sequence of frames",
			Description: `
Render a number of frames of a wavefront obj scene, or of the built-in demo
scene when no file is given, and write the denoised ambient occlusion and
reflection buffers of the last frame as PNG images.`,
			ArgsUsage: "[scene_file.obj]",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 640,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 360,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "frames, n",
					Value: 8,
					Usage: "number of frames to render",
				},
				cli.StringFlag{
					Name:  "adapter, a",
					Usage: "regular expression selecting the adapter",
				},
				cli.BoolFlag{
					Name:  "debug-layer",
					Usage: "enable the device validation layer",
				},
				cli.Float64Flag{
					Name:  "exposure",
					Value: 1.0,
					Usage: "exposure for tone-mapping the reflection image",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: ".",
					Usage: "output directory for the rendered images",
				},
			},
			Action: cmd.RenderFrames,
		},
		{
			Name:   "list-devices",
			Usage:  "list available software adapters",
			Action: cmd.ListDevices,
		},
		{
			Name:      "scene-info",
			Usage:     "display statistics about a wavefront scene",
			ArgsUsage: "scene_file.obj",
			Action:    cmd.ShowSceneInfo,
		},
		{
			Name:   "config",
			Usage:  "print the effective configuration as TOML",
			Action: cmd.PrintConfig,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
