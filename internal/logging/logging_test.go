package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFor(t *testing.T) {
	if LevelFor(false, true) != Quiet {
		t.Error("quiet flag should win")
	}
	if LevelFor(true, false) != Verbose {
		t.Error("verbose flag should select Verbose")
	}
	if LevelFor(false, false) != Normal {
		t.Error("default should be Normal")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, Normal)

	lg.Debugf("debug %d", 1)
	lg.Infof("info %d", 2)
	lg.Warnf("warn %d", 3)

	out := buf.String()
	if strings.Contains(out, "debug 1") {
		t.Error("debug should be suppressed at Normal")
	}
	if !strings.Contains(out, "info 2") || !strings.Contains(out, "WARN warn 3") {
		t.Errorf("missing expected lines: %q", out)
	}
}

func TestQuietKeepsWarnings(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, Quiet)

	lg.Infof("hidden")
	lg.Warnf("shown")
	lg.Errorf("also shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be suppressed at Quiet")
	}
	if !strings.Contains(out, "WARN shown") || !strings.Contains(out, "ERROR also shown") {
		t.Errorf("warnings/errors must always emit: %q", out)
	}
}

func TestVerboseEmitsDebug(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, Verbose)
	lg.Debugf("phase: %s", "discovery")
	if !strings.Contains(buf.String(), "DEBUG phase: discovery") {
		t.Errorf("expected debug line, got %q", buf.String())
	}
}
