// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Package logging wraps charmbracelet/log with the small helper surface the
// rest of keyps uses.
package logging

import (
	"fmt"
	"os"
	"strings"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger. Callers should use the helper functions
// below, or L directly when they want key/value pairs.
var L = clog.NewWithOptions(os.Stderr, clog.Options{
	ReportTimestamp: true,
	Prefix:          "keyps",
})

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...interface{}) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...interface{}) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...interface{}) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...interface{}) {
	L.Error(fmt.Sprintf(format, v...))
}

// DebugEnabled reports whether L currently emits debug messages.
func DebugEnabled() bool {
	return L.GetLevel() <= clog.DebugLevel
}

// LevelFromVerbosity maps a repeated -v count onto a log level. Zero keeps
// the default of info. Counts of five and above also enable caller
// reporting, see SetLevelFromVerbosity.
func LevelFromVerbosity(n int) clog.Level {
	switch {
	case n <= 0:
		return clog.InfoLevel
	case n == 1:
		return clog.ErrorLevel
	case n == 2:
		return clog.WarnLevel
	case n == 3:
		return clog.InfoLevel
	default:
		return clog.DebugLevel
	}
}

// SetLevelFromVerbosity applies LevelFromVerbosity to L.
func SetLevelFromVerbosity(n int) {
	L.SetLevel(LevelFromVerbosity(n))
	L.SetReportCaller(n >= 5)
}

// SetFormat switches the output format of L. Accepted values are "text",
// "json" and "logfmt"; the empty string means text.
func SetFormat(format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		L.SetFormatter(clog.TextFormatter)
	case "json":
		L.SetFormatter(clog.JSONFormatter)
	case "logfmt":
		L.SetFormatter(clog.LogfmtFormatter)
	default:
		return fmt.Errorf("unknown log format %q (want text, json or logfmt)", format)
	}
	return nil
}
