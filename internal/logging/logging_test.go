package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ibusafrim/internal/config"
	"ibusafrim/internal/ime"
)

var _ ime.PanicHandler = (*CrashHandler)(nil)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for level, want := range map[Level]string{
		LevelDebug: "debug",
		LevelInfo:  "info",
		LevelWarn:  "warn",
		LevelError: "error",
	} {
		if got := LevelString(level); got != want {
			t.Errorf("LevelString(%v) = %q, want %q", level, got, want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("expected info level, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected stderr output, got %s", cfg.Output)
	}
	if cfg.Component != "ibus-afrim" {
		t.Errorf("expected component ibus-afrim, got %s", cfg.Component)
	}
	if cfg.LogText {
		t.Error("typed text must be redacted by default")
	}
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{
		Level:      "warn",
		Format:     "json",
		Output:     "file",
		FilePath:   "/tmp/x.log",
		MaxSizeMB:  2,
		MaxBackups: 4,
		LogText:    true,
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Level != LevelWarn || cfg.Format != FormatJSON || cfg.Output != "file" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.MaxSize != 2 || cfg.MaxBackups != 4 || !cfg.LogText {
		t.Errorf("unexpected rotation settings %+v", cfg)
	}

	cfg, err = FromSettings(config.LoggingConfig{Level: "error"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Level != LevelDebug {
		t.Errorf("verbose should force debug, got %v", cfg.Level)
	}

	if _, err := FromSettings(config.LoggingConfig{Level: "loud"}, false); err == nil {
		t.Error("expected error for bad level")
	}
	if _, err := FromSettings(config.LoggingConfig{Level: "info", Format: "xml"}, false); err == nil {
		t.Error("expected error for bad format")
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"preedit", true},
		{"commit", true},
		{"candidate", true},
		{"Text", true},
		{"key", true},
		{"keyval", false},
		{"path", false},
		{"error", false},
		{"caps", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			if got := shouldRedact(test.key); got != test.expected {
				t.Errorf("shouldRedact(%q) = %v, want %v", test.key, got, test.expected)
			}
		})
	}
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record %q: %v", buf.String(), err)
	}
	return record
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{
		Level:     LevelDebug,
		Format:    FormatJSON,
		Component: "test",
		Writer:    &buf,
	})
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("committed", "commit", "ɛ̀", "path", "/org/freedesktop/IBus/Engine/1")
	record := decodeRecord(t, &buf)

	if record["commit"] != Redacted {
		t.Errorf("commit not redacted: %v", record["commit"])
	}
	if record["path"] != "/org/freedesktop/IBus/Engine/1" {
		t.Errorf("path should be kept: %v", record["path"])
	}
	if record["component"] != "test" {
		t.Errorf("component attribute missing: %v", record)
	}
}

func TestLogTextKeepsText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{
		Level:   LevelDebug,
		Format:  FormatJSON,
		LogText: true,
		Writer:  &buf,
	})
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("committed", "commit", "ŋ")
	if record := decodeRecord(t, &buf); record["commit"] != "ŋ" {
		t.Errorf("commit = %v, want ŋ", record["commit"])
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: LevelWarn, Format: FormatText, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Format: FormatJSON, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.WithComponent("registrar").Info("started")
	if record := decodeRecord(t, &buf); record["component"] != "registrar" {
		t.Errorf("component = %v", record["component"])
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "afrim.log")
	logger, err := New(&Config{
		Level:    LevelInfo,
		Format:   FormatText,
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("hello")
	if err := logger.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing record: %q", data)
	}
}

func TestFileRotatorRequiresPath(t *testing.T) {
	if _, err := NewFileRotator("", 1, 1); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestFileRotatorRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(logPath, 1, 2)
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()
	rotator.maxBytes = 10

	for _, line := range []string{"first-line\n", "second-line\n", "third-line\n", "fourth-line\n"} {
		if _, err := rotator.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	files := rotator.Files()
	if len(files) != 3 {
		t.Fatalf("expected current file plus 2 backups, got %v", files)
	}

	read := func(p string) string {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}
	if got := read(logPath); got != "fourth-line\n" {
		t.Errorf("current = %q", got)
	}
	if got := read(logPath + ".1"); got != "third-line\n" {
		t.Errorf("backup 1 = %q", got)
	}
	if got := read(logPath + ".2"); got != "second-line\n" {
		t.Errorf("backup 2 = %q", got)
	}
}

func TestFileRotatorWithoutBackups(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(logPath, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer rotator.Close()
	rotator.maxBytes = 4

	rotator.Write([]byte("aaaa"))
	rotator.Write([]byte("bb"))

	if files := rotator.Files(); len(files) != 1 {
		t.Errorf("expected no backups, got %v", files)
	}
	data, _ := os.ReadFile(logPath)
	if string(data) != "bb" {
		t.Errorf("current = %q", data)
	}
}

func TestCrashHandlerRecover(t *testing.T) {
	dir := t.TempDir()
	handler := NewCrashHandler(dir, "1.2.3", 0, nil)

	ran := false
	panicked := handler.Recover(func() {
		ran = true
		panic("intentional test panic")
	})
	if !ran || !panicked {
		t.Fatalf("ran=%v panicked=%v", ran, panicked)
	}

	reports, err := handler.Reports()
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if reports[0].PanicValue != "intentional test panic" || reports[0].Version != "1.2.3" {
		t.Errorf("unexpected report %+v", reports[0])
	}
	if !strings.Contains(reports[0].StackTrace, "goroutine") {
		t.Error("stack trace missing")
	}

	if handler.Recover(func() {}) {
		t.Error("no panic should be reported")
	}
}

func TestCrashHandlerPrune(t *testing.T) {
	dir := t.TempDir()
	handler := NewCrashHandler(dir, "", 2, nil)

	for i := 0; i < 4; i++ {
		handler.HandlePanic(i)
	}

	reports, err := handler.Reports()
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Errorf("expected 2 reports after pruning, got %d", len(reports))
	}
}
