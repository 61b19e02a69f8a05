package svgf

import "errors"

var (
	ErrFrameSequence         = errors.New("svgf: frame advanced twice without an intervening frame")
	ErrCheckerboardNeedsBlur = errors.New("svgf: checkerboard sampling requires at least one disocclusion blur pass")
	ErrInvalidSettings       = errors.New("svgf: invalid settings")
	ErrNotInitialized        = errors.New("svgf: filter used before initialization")
	ErrUnsupportedChannels   = errors.New("svgf: unsupported channel count")
)
