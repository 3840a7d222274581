// Package ioloop
// Author: momentics
//
// Package logger. Silent unless wired by the embedding application.

package ioloop

import "github.com/rs/zerolog"

var logger = zerolog.Nop()

// SetLogger installs the package logger. Wire during startup, before any
// loop runs.
func SetLogger(l zerolog.Logger) {
	logger = l
}
