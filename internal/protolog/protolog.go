// Package protolog wraps logrus for the wire-level and state-transition
// logging used by the logger client and download planner, using the
// bracketed-tag idiom ("[LOGGER][TX] ...") common across this tree's
// protocol clients.
package protolog

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Logger is a thin facade over *log.Logger with byte-chatter helpers.
type Logger struct {
	l *log.Logger
}

var std = &Logger{l: log.StandardLogger()}

// Default returns the package-wide logger, backed by logrus's standard
// logger instance.
func Default() *Logger { return std }

// SetLevel adjusts verbosity. The CLI does not call it: it wires
// -q/VERBOSE_OUTPUT through console.ConfigureLevel, which sets the level
// of the same logrus standard logger.
func SetLevel(level log.Level) { std.l.SetLevel(level) }

// Trace logs a byte-chatter event (raw TX/RX bytes) at debug level,
// matching [LOGGER][TX]/[LOGGER][RX] tags.
func (lg *Logger) Trace(direction string, data []byte) {
	lg.l.Debugf("[LOGGER][%s] % x", direction, data)
}

// Debugf logs a bracketed-tag state transition.
func (lg *Logger) Debugf(format string, args ...any) {
	lg.l.Debugf(format, args...)
}

// Warnf logs a recoverable condition (checksum mismatch, reconnect).
func (lg *Logger) Warnf(format string, args ...any) {
	lg.l.Warnf(format, args...)
}

// Errorf logs a condition that ends the run.
func (lg *Logger) Errorf(format string, args ...any) {
	lg.l.Errorf(format, args...)
}

// Tag formats a bracketed component tag, e.g. Tag("PLANNER", "PHASE1").
func Tag(parts ...string) string {
	out := ""
	for _, p := range parts {
		out += fmt.Sprintf("[%s]", p)
	}
	return out
}
