package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// CrashReport is written when the engine panics. It never contains
// typed text.
type CrashReport struct {
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	GoVersion    string    `json:"go_version"`
	GOOS         string    `json:"goos"`
	GOARCH       string    `json:"goarch"`
	NumGoroutine int       `json:"num_goroutine"`
	PanicValue   string    `json:"panic_value"`
	StackTrace   string    `json:"stack_trace"`
}

// CrashHandler turns panics into crash reports on disk.
type CrashHandler struct {
	mu      sync.Mutex
	dir     string
	version string
	keep    int
	logger  *slog.Logger
}

// DefaultCrashDir returns $XDG_STATE_HOME/ibus-afrim/crashes.
func DefaultCrashDir() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		homeDir, _ := os.UserHomeDir()
		stateHome = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateHome, "ibus-afrim", "crashes")
}

// NewCrashHandler creates a handler writing to dir, keeping at most keep
// reports. A nil logger discards.
func NewCrashHandler(dir, version string, keep int, logger *slog.Logger) *CrashHandler {
	if dir == "" {
		dir = DefaultCrashDir()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CrashHandler{dir: dir, version: version, keep: keep, logger: logger}
}

// Recover runs fn and reports a panic instead of propagating it.
func (h *CrashHandler) Recover(fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			h.HandlePanic(r)
		}
	}()
	fn()
	return false
}

// HandlePanic writes a crash report for a recovered panic value.
func (h *CrashHandler) HandlePanic(value interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GoVersion:    runtime.Version(),
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", value),
		StackTrace:   string(debug.Stack()),
	}

	path, err := h.write(report)
	if err != nil {
		h.logger.Error("panic", "value", report.PanicValue, "stack", report.StackTrace, "error", err)
		return
	}
	h.logger.Error("panic", "value", report.PanicValue, "report", path)
	h.prune()
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	if err := os.MkdirAll(h.dir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}

	name := fmt.Sprintf("crash-%s-%09d.json",
		report.Timestamp.Format("20060102-150405"), report.Timestamp.Nanosecond())
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

func (h *CrashHandler) files() []string {
	files, _ := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	sort.Strings(files)
	return files
}

// prune removes the oldest reports beyond keep.
func (h *CrashHandler) prune() {
	if h.keep <= 0 {
		return
	}
	files := h.files()
	for len(files) > h.keep {
		os.Remove(files[0])
		files = files[1:]
	}
}

// Reports returns the stored crash reports, oldest first.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var reports []CrashReport
	for _, file := range h.files() {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}
