package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	Info("replaying %d steps", 3)
	Warn("script %s missing", "login.workflow.json")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	for _, want := range []string{"INFO", "replaying 3 steps", "WARN", "login.workflow.json"} {
		if !strings.Contains(out, want) {
			t.Errorf("log = %q, missing %q", out, want)
		}
	}
}

func TestDebug_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	defer Close()

	Debug("hidden")
	SetDebug(true)
	Debug("shown")
	SetDebug(false)

	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("debug line missing at debug level")
	}
}

func TestCallsBeforeInitAreSafe(t *testing.T) {
	Close()
	Info("nothing")
	Error("nothing")
	With("run_id", "x").Infow("nothing")
	if GetWriter() == nil {
		t.Error("GetWriter() = nil")
	}
}
