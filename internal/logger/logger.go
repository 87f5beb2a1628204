package logger

import (
	"github.com/fatih/color" // Colored console output per log level
)

// Colorized printf-style functions, one per log level. Every message is expected
// to carry its own level tag (e.g. "[INFO] ...") so the output stays readable when
// color is disabled or the log is redirected to a file on the target.

// Info logs informational messages in green.
var Info = color.New(color.FgGreen).PrintfFunc()

// Warn logs warnings in bright magenta.
var Warn = color.New(color.FgHiMagenta).PrintfFunc()

// Error logs errors in red.
var Error = color.New(color.FgRed).PrintfFunc()

// Step prints step headers of the post-install pass in bold cyan.
var Step = color.New(color.FgCyan, color.Bold).PrintfFunc()

// Debug logs debug messages in cyan when enabled, otherwise it is a no-op.
// Assigned by Init; defaults to a no-op so packages can log before Init runs
// (tests, library use).
var Debug = func(format string, a ...any) {}

// Init enables or disables debug logging and colored output.
// noColor forces plain output, e.g. when stdout is not a terminal
func Init(enableDebug, noColor bool) {
	if noColor {
		color.NoColor = true
	}
	if enableDebug {
		Debug = color.New(color.FgCyan).PrintfFunc()
	} else {
		Debug = func(format string, a ...any) {}
	}
}
