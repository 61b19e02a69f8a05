package reflection

import "errors"

var (
	ErrNotInitialized  = errors.New("reflection: denoiser used before initialization")
	ErrInvalidSettings = errors.New("reflection: invalid settings")
	ErrNoEnvironment   = errors.New("reflection: no environment maps set")
)
