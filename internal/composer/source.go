package composer

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Source holds the current dictionary snapshot. Reload swaps the snapshot
// atomically; composers pick the new one up at their next key.
type Source struct {
	path    string
	current atomic.Pointer[Dictionary]
	logger  *slog.Logger

	mu      sync.Mutex
	retired []*Dictionary
}

// NewSource wraps an already loaded dictionary.
func NewSource(d *Dictionary, logger *slog.Logger) *Source {
	if d == nil {
		d = Empty()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Source{logger: logger}
	s.current.Store(d)
	return s
}

// OpenSource loads path. An empty path yields an empty dictionary.
func OpenSource(path string, logger *slog.Logger) (*Source, error) {
	d := Empty()
	if path != "" {
		var err error
		if d, err = Load(path); err != nil {
			return nil, err
		}
	}
	s := NewSource(d, logger)
	s.path = path
	return s, nil
}

// Path returns the dictionary file, if any.
func (s *Source) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Dictionary returns the current snapshot.
func (s *Source) Dictionary() *Dictionary { return s.current.Load() }

// Reload re-reads the dictionary file. On error the current snapshot
// stays in place.
func (s *Source) Reload() error {
	return s.Open(s.Path())
}

// Open switches the source to the dictionary at path. An empty path
// switches to an empty dictionary. On error nothing changes.
func (s *Source) Open(path string) error {
	d := Empty()
	if path != "" {
		var err error
		if d, err = Load(path); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.path = path
	s.mu.Unlock()

	s.Swap(d)
	s.logger.Info("dictionary loaded", "path", path, "sequences", d.Sequences(), "scripts", len(d.Scripts()))
	return nil
}

// Swap installs d. The previous snapshot may still be in use by a
// composer mid-key, so it is kept open until the next Swap or Close.
func (s *Source) Swap(d *Dictionary) {
	old := s.current.Swap(d)
	if old == nil || old == d {
		return
	}

	s.mu.Lock()
	stale := s.retired
	s.retired = []*Dictionary{old}
	s.mu.Unlock()

	for _, r := range stale {
		if err := r.Close(); err != nil {
			s.logger.Warn("close retired dictionary", "error", err)
		}
	}
}

// Close releases the current and every retired snapshot.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, d := range s.retired {
		errs = append(errs, d.Close())
	}
	s.retired = nil
	if d := s.current.Load(); d != nil {
		errs = append(errs, d.Close())
	}
	return errors.Join(errs...)
}
