package rtao

import "errors"

var (
	ErrNotInitialized  = errors.New("rtao: denoiser used before initialization")
	ErrInvalidSettings = errors.New("rtao: invalid settings")
)
