package renderer

import (
	"time"

	"github.com/achilleasa/rtdenoise/gpu/device"
)

type PassStat struct {
	// Debug event label and its nesting depth.
	Name  string
	Depth int

	RenderTime time.Duration
}

type FrameStats struct {
	// Frame number, starting at 0.
	Frame uint64

	// Timings of the debug events of the frame in recording order.
	Passes []PassStat

	Dispatches    int
	RayDispatches int
	Barriers      int

	// Device memory held by committed resources.
	MemoryAllocated int64
	MemoryBudget    int64

	// Total execution time for entire frame.
	RenderTime time.Duration
}

func newFrameStats(frame uint64, report *device.ExecutionReport, dev *device.Device) FrameStats {
	stats := FrameStats{
		Frame:         frame,
		Passes:        make([]PassStat, 0, len(report.Events)),
		Dispatches:    report.Dispatches,
		RayDispatches: report.RayDispatches,
		Barriers:      report.Barriers,
		RenderTime:    report.Duration,
	}
	for _, ev := range report.Events {
		stats.Passes = append(stats.Passes, PassStat{Name: ev.Label, Depth: ev.Depth, RenderTime: ev.Duration})
	}
	stats.MemoryAllocated, stats.MemoryBudget = dev.MemoryUsage()
	return stats
}
