package logging

import (
	"bytes"
	"strings"
	"testing"

	clog "github.com/charmbracelet/log"
)

// TestLoggingHelpers_WriteToBuffer verifies the package helper functions write
// formatted messages to the package-level logger `L`. The test swaps `L` with
// a buffer-backed logger and restores it afterwards.
func TestLoggingHelpers_WriteToBuffer(t *testing.T) {
	var buf bytes.Buffer
	prev := L
	L = clog.New(&buf)
	L.SetLevel(clog.DebugLevel)
	defer func() { L = prev }()

	Debugf("hello %s", "dbg")
	Infof("info %d", 1)
	Warnf("warn")
	Errorf("err %v", "E")

	out := buf.String()
	for _, want := range []string{"hello dbg", "info 1", "warn", "err E"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output; got: %s", want, out)
		}
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	tests := []struct {
		n    int
		want clog.Level
	}{
		{0, clog.InfoLevel},
		{1, clog.ErrorLevel},
		{2, clog.WarnLevel},
		{3, clog.InfoLevel},
		{4, clog.DebugLevel},
		{9, clog.DebugLevel},
	}
	for _, tt := range tests {
		if got := LevelFromVerbosity(tt.n); got != tt.want {
			t.Errorf("LevelFromVerbosity(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestSetLevelFromVerbosity_FiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	prev := L
	L = clog.New(&buf)
	defer func() { L = prev }()

	SetLevelFromVerbosity(2)
	Infof("quiet")
	Warnf("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info message should be filtered at warn level; got: %s", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("warn message missing; got: %s", out)
	}
}

func TestSetFormat_JSON(t *testing.T) {
	var buf bytes.Buffer
	prev := L
	L = clog.New(&buf)
	defer func() { L = prev }()

	if err := SetFormat("json"); err != nil {
		t.Fatalf("SetFormat: %v", err)
	}
	L.Info("cycle", "keys", 3)
	if out := buf.String(); !strings.Contains(out, `"keys":3`) {
		t.Fatalf("expected JSON key/value output; got: %s", out)
	}
}

func TestSetFormat_Unknown(t *testing.T) {
	if err := SetFormat("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestDebugEnabled(t *testing.T) {
	prev := L
	L = clog.New(&bytes.Buffer{})
	defer func() { L = prev }()

	if DebugEnabled() {
		t.Fatal("debug enabled at the default info level")
	}
	SetLevelFromVerbosity(4)
	if !DebugEnabled() {
		t.Fatal("debug not enabled at -vvvv")
	}
}
