// Package netlog provides the logging seam the server and client state
// machines write diagnostics through, so callers can swap in their own
// sink without the protocol code depending on any specific logger.
package netlog

import "log"

// Logger is implemented by anything that can accept a printf-style log line.
type Logger interface {
	Printf(format string, v ...any)
}

// LogLogger forwards to the standard library's log package.
type LogLogger struct{}

// NewLogLogger returns a Logger backed by the standard log package.
func NewLogLogger() Logger {
	return &LogLogger{}
}

func (l LogLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// NullLogger discards everything. Useful in tests that want a real Logger
// without log noise.
type NullLogger struct{}

func NewNullLogger() Logger {
	return &NullLogger{}
}

func (NullLogger) Printf(string, ...any) {}
