package renderer

import (
	"github.com/achilleasa/rtdenoise/denoise/reflection"
	"github.com/achilleasa/rtdenoise/denoise/rtao"
	"github.com/achilleasa/rtdenoise/ibl"
)

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Device selection. Adapter is a regular expression matched against
	// the adapter names; the first match is used.
	Adapter    string
	Workers    int
	DebugLayer bool

	// Committed resource cap in bytes. Zero means unlimited.
	MemoryBudget int64

	RTAO       rtao.Settings
	Reflection reflection.Settings
	IBL        ibl.Options
}

// DefaultOptions renders 640x360 frames on the reference adapter.
func DefaultOptions() Options {
	return Options{
		FrameW:     640,
		FrameH:     360,
		RTAO:       rtao.DefaultSettings(),
		Reflection: reflection.DefaultSettings(),
		IBL:        ibl.DefaultOptions(),
	}
}
