package cmd

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/achilleasa/rtdenoise/config"
	"github.com/achilleasa/rtdenoise/renderer"
	"github.com/achilleasa/rtdenoise/scene"
	"github.com/achilleasa/rtdenoise/scene/reader"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Render a sequence of frames and save the denoised outputs of the last one.
func RenderFrames(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	applyFlagOverrides(ctx, &cfg)
	if err = cfg.Validate(); err != nil {
		return err
	}
	setupLogging(ctx, &cfg)

	sc, err := loadScene(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	r, err := renderer.New(sc, rendererOptions(cfg))
	if err != nil {
		return err
	}
	defer r.Close()
	logger.Noticef("initialized renderer on %q in %d ms", r.Device().Name(), time.Since(start).Nanoseconds()/1000000)

	for frame := uint32(0); frame < cfg.Frame.Count; frame++ {
		if err = r.Render(cfg.Frame.DeltaTime); err != nil {
			return err
		}
		logger.Infof("rendered frame %d in %s", frame, r.Stats().RenderTime)
	}
	displayFrameStats(r.Stats())

	outDir := ctx.String("out")
	if err = writePNG(filepath.Join(outDir, "ao.png"), r.AOImage()); err != nil {
		return err
	}
	return writePNG(filepath.Join(outDir, "reflection.png"), r.ReflectionImage(float32(ctx.Float64("exposure"))))
}

func applyFlagOverrides(ctx *cli.Context, cfg *config.Config) {
	if ctx.IsSet("width") {
		cfg.Frame.Width = uint32(ctx.Int("width"))
	}
	if ctx.IsSet("height") {
		cfg.Frame.Height = uint32(ctx.Int("height"))
	}
	if ctx.IsSet("frames") {
		cfg.Frame.Count = uint32(ctx.Int("frames"))
	}
	if ctx.IsSet("adapter") {
		cfg.Device.Adapter = ctx.String("adapter")
	}
	if ctx.Bool("debug-layer") {
		cfg.Device.DebugLayer = true
	}
}

func rendererOptions(cfg config.Config) renderer.Options {
	return renderer.Options{
		FrameW:       cfg.Frame.Width,
		FrameH:       cfg.Frame.Height,
		Adapter:      cfg.Device.Adapter,
		Workers:      cfg.Device.Workers,
		DebugLayer:   cfg.Device.DebugLayer,
		MemoryBudget: cfg.Device.MemoryBudgetMiB << 20,
		RTAO:         cfg.RTAO,
		Reflection:   cfg.Reflection,
		IBL:          cfg.IBL,
	}
}

// Without an argument the built-in demo scene is rendered.
func loadScene(ctx *cli.Context) (*scene.Scene, error) {
	if ctx.NArg() == 0 {
		logger.Notice("no scene file specified; rendering the default scene")
		return scene.DefaultScene(), nil
	}

	sceneFile := ctx.Args().First()
	if !strings.HasSuffix(sceneFile, ".obj") {
		return nil, fmt.Errorf("unsupported scene file %q: expected a wavefront .obj file", sceneFile)
	}
	return reader.ReadFile(sceneFile)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	logger.Noticef("wrote %s", path)
	return nil
}

func displayFrameStats(stats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Pass", "% of frame", "Render time"})
	for _, stat := range stats.Passes {
		pct := float64(0)
		if stats.RenderTime > 0 {
			pct = 100 * float64(stat.RenderTime) / float64(stats.RenderTime)
		}
		table.Append([]string{
			strings.Repeat("  ", stat.Depth) + stat.Name,
			fmt.Sprintf("%02.1f %%", pct),
			stat.RenderTime.String(),
		})
	}
	table.SetFooter([]string{
		fmt.Sprintf("%d dispatches, %d ray dispatches, %d barriers", stats.Dispatches, stats.RayDispatches, stats.Barriers),
		"TOTAL",
		stats.RenderTime.String(),
	})
	table.Render()

	logger.Noticef("frame %d statistics (%s allocated)\n%s", stats.Frame, formatBytes(stats.MemoryAllocated), buf.String())
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
