package ibl

import "github.com/achilleasa/rtdenoise/log"

var logger = log.New("ibl")
