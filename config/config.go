// Package config loads the renderer settings from TOML files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/achilleasa/rtdenoise/denoise/reflection"
	"github.com/achilleasa/rtdenoise/denoise/rtao"
	"github.com/achilleasa/rtdenoise/ibl"
	"github.com/achilleasa/rtdenoise/log"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the root of the configuration file.
type Config struct {
	Log        Log                 `toml:"log"`
	Device     Device              `toml:"device"`
	Frame      Frame               `toml:"frame"`
	RTAO       rtao.Settings       `toml:"rtao"`
	Reflection reflection.Settings `toml:"reflection"`
	IBL        ibl.Options         `toml:"ibl"`
}

type Log struct {
	// One of debug, info, notice, warning or error.
	Level string `toml:"level"`
}

// Device selects and configures the software adapter.
type Device struct {
	// Regular expression matched against adapter names. The first match
	// is opened.
	Adapter string `toml:"adapter"`

	// Worker goroutines per dispatch. Zero keeps the adapter default.
	Workers int `toml:"workers"`

	DebugLayer bool `toml:"debug_layer"`

	// Cap on committed resource memory in MiB. Zero means unlimited.
	MemoryBudgetMiB int64 `toml:"memory_budget_mib"`
}

type Frame struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`

	// Number of frames rendered by the render command.
	Count uint32 `toml:"count"`

	// Simulated time step between frames in seconds.
	DeltaTime float32 `toml:"delta_time"`
}

func Default() Config {
	return Config{
		Log:    Log{Level: "notice"},
		Device: Device{Adapter: "Reference"},
		Frame: Frame{
			Width:     640,
			Height:    360,
			Count:     8,
			DeltaTime: 1.0 / 60,
		},
		RTAO:       rtao.DefaultSettings(),
		Reflection: reflection.DefaultSettings(),
		IBL:        ibl.DefaultOptions(),
	}
}

// Load reads path on top of the defaults. Keys that do not map to a
// setting are rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a configuration from r on top of the defaults.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, strict.String())
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Encode writes cfg as TOML.
func (cfg Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).SetIndentTables(true).Encode(cfg)
}

func (cfg Config) Validate() error {
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	switch {
	case cfg.Frame.Width == 0 || cfg.Frame.Height == 0:
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidConfig, cfg.Frame.Width, cfg.Frame.Height)
	case cfg.Frame.DeltaTime < 0:
		return fmt.Errorf("%w: negative frame delta_time", ErrInvalidConfig)
	case cfg.Device.Workers < 0:
		return fmt.Errorf("%w: negative device workers", ErrInvalidConfig)
	case cfg.Device.MemoryBudgetMiB < 0:
		return fmt.Errorf("%w: negative device memory budget", ErrInvalidConfig)
	}
	if err := cfg.RTAO.Validate(); err != nil {
		return fmt.Errorf("%w: rtao: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Reflection.Validate(); err != nil {
		return fmt.Errorf("%w: reflection: %w", ErrInvalidConfig, err)
	}
	if err := cfg.IBL.Validate(); err != nil {
		return fmt.Errorf("%w: ibl: %w", ErrInvalidConfig, err)
	}
	return nil
}

// LogLevel returns the parsed log level.
func (cfg Config) LogLevel() log.Level {
	level, _ := log.ParseLevel(cfg.Log.Level)
	return level
}
