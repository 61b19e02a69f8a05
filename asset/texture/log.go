package texture

import "github.com/achilleasa/rtdenoise/log"

var logger = log.New("texture")
