package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/achilleasa/rtdenoise/denoise/svgf"
	"github.com/achilleasa/rtdenoise/log"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
	require.Equal(t, log.Notice, Default().LogLevel())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Frame.Width = 320
	cfg.RTAO.SamplesPerPixel = 4
	cfg.Reflection.Denoiser.CheckerboardSampling = true
	cfg.IBL.Environment = "sky.hdr"

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf))
	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, cfg, decoded)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtdenoise.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[log]
level = "debug"

[frame]
width = 128
height = 64

[rtao]
samples_per_pixel = 2

[rtao.denoiser]
atrous_passes = 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, log.Debug, cfg.LogLevel())
	require.Equal(t, uint32(128), cfg.Frame.Width)
	require.Equal(t, uint32(2), cfg.RTAO.SamplesPerPixel)
	require.Equal(t, uint32(3), cfg.RTAO.Denoiser.AtrousPasses)
	require.Equal(t, Default().Frame.Count, cfg.Frame.Count)
	require.Equal(t, svgf.DefaultSettings().MaxTspp, cfg.RTAO.Denoiser.MaxTspp)
	require.Equal(t, Default().Reflection, cfg.Reflection)
}

func TestUnknownKeysAreRejected(t *testing.T) {
	_, err := Decode(strings.NewReader("[frame]\nwidht = 10\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Contains(t, err.Error(), "widht")
}

func TestValidation(t *testing.T) {
	specs := []struct {
		descr string
		doc   string
	}{
		{"zero width", "[frame]\nwidth = 0\n"},
		{"bad level", "[log]\nlevel = \"loud\"\n"},
		{"bad rtao settings", "[rtao]\nsamples_per_pixel = 0\n"},
		{"checkerboard without blur", "[reflection.denoiser]\ncheckerboard_sampling = true\ndisocclusion_blur_passes = 0\n"},
		{"bad ibl options", "[ibl]\nprefiltered_levels = 0\n"},
	}
	for _, spec := range specs {
		_, err := Decode(strings.NewReader(spec.doc))
		require.ErrorIs(t, err, ErrInvalidConfig, spec.descr)
	}
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
