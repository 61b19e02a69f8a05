package gbuffer

import "errors"

var (
	ErrNotInitialized = errors.New("gbuffer: pass used before initialization")
)
