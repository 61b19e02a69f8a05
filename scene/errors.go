package scene

import "errors"

var (
	ErrNoCamera        = errors.New("scene: no camera defined")
	ErrUnknownMesh     = errors.New("scene: render item references a mesh not added to the scene")
	ErrUnknownMaterial = errors.New("scene: render item references an unknown material")
	ErrDuplicate       = errors.New("scene: element already added")
	ErrNotUploaded     = errors.New("scene: scene has not been uploaded to a device")
)
