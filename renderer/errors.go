package renderer

import "errors"

var (
	ErrSceneNotDefined  = errors.New("renderer: no scene defined")
	ErrCameraNotDefined = errors.New("renderer: no camera defined")
	ErrNoAdapter        = errors.New("renderer: no adapter matches the selection")
	ErrClosed           = errors.New("renderer: used after Close")
)
