// Package execution
// Author: momentics
//
// Package logger. Silent unless wired by the embedding application.

package execution

import "github.com/rs/zerolog"

var logger = zerolog.Nop()

// SetLogger installs the package logger. Not safe to call concurrently
// with running strands; wire it during startup.
func SetLogger(l zerolog.Logger) {
	logger = l
}
