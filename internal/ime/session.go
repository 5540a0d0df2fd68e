package ime

import (
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateDisabled State = iota
	StateEnabled
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Host receives the rendering updates a Session produces. Calls never
// wait for a reply.
type Host interface {
	// RequireSurroundingText asks the client to start supplying
	// surrounding text.
	RequireSurroundingText()

	// UpdatePreeditText shows (or hides, when visible is false) the
	// in-progress composition. cursor is in runes.
	UpdatePreeditText(text string, cursor uint32, visible bool)

	// UpdateLookupTable shows the given page, or hides the table.
	UpdateLookupTable(page LookupPage, visible bool)

	// CommitText inserts final text into the client.
	CommitText(text string)

	// ForwardKeyEvent re-injects a key into the client.
	ForwardKeyEvent(ev KeyEvent)

	// Destroy tears down the host-side session object.
	Destroy()
}

// SurroundingText is the client context around the cursor.
type SurroundingText struct {
	Text   string
	Cursor uint32
	Anchor uint32
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPageSize sets the lookup table page size.
func WithPageSize(n int) SessionOption {
	return func(s *Session) {
		s.pageSize = n
	}
}

// WithCapabilities sets the capabilities known at construction.
func WithCapabilities(c Capabilities) SessionOption {
	return func(s *Session) {
		s.caps = c
	}
}

// WithID sets the identifier used in log records.
func WithID(id string) SessionOption {
	return func(s *Session) {
		s.id = id
	}
}

// Session adapts host events for one input context onto a Composer and
// reports the outcome back to the Host. A Session is not safe for
// concurrent use: the host delivers one event at a time.
type Session struct {
	id       string
	state    State
	focused  bool
	pageSize int

	caps       Capabilities
	capsFrozen bool
	negotiator Negotiator
	surround   SurroundingText

	candidates   *CandidateList
	composer     Composer
	host         Host
	preedit      string
	tableVisible bool

	logger *slog.Logger
}

// NewSession creates a disabled session and the Composer it owns.
func NewSession(host Host, newComposer ComposerFactory, opts ...SessionOption) (*Session, error) {
	if host == nil {
		return nil, errors.New("nil host")
	}
	if newComposer == nil {
		return nil, errors.New("nil composer factory")
	}

	s := &Session{
		state:    StateDisabled,
		pageSize: DefaultPageSize,
		host:     host,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id != "" {
		s.logger = s.logger.With(slog.String("session", s.id))
	}

	composer, err := newComposer()
	if err != nil {
		return nil, fmt.Errorf("create composer: %w", err)
	}
	s.composer = composer
	s.candidates = NewCandidateList(s.pageSize)

	return s, nil
}

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Focused reports whether the session holds input focus.
func (s *Session) Focused() bool { return s.focused }

// Preedit returns the preedit text last sent to the host.
func (s *Session) Preedit() string { return s.preedit }

// Capabilities returns the client capabilities.
func (s *Session) Capabilities() Capabilities { return s.caps }

// Surrounding returns the last surrounding text reported by the client.
func (s *Session) Surrounding() SurroundingText { return s.surround }

// Candidates exposes the lookup table model for inspection.
func (s *Session) Candidates() *CandidateList { return s.candidates }

// SetCapabilities records the client capabilities. They are frozen the
// first time the session is enabled.
func (s *Session) SetCapabilities(c Capabilities) {
	if s.state == StateDestroyed {
		return
	}
	if s.capsFrozen {
		if c != s.caps {
			s.logger.Debug("capabilities already negotiated, ignoring update",
				"have", s.caps.String(), "got", c.String())
		}
		return
	}
	s.caps = c
}

// SetSurroundingText stores the client context around the cursor.
func (s *Session) SetSurroundingText(text string, cursor, anchor uint32) {
	if s.state == StateDestroyed {
		return
	}
	s.surround = SurroundingText{Text: text, Cursor: cursor, Anchor: anchor}
}

// Enable moves a disabled session to enabled and activates optional
// host features. Enabling twice is a logged no-op.
func (s *Session) Enable() {
	switch s.state {
	case StateEnabled:
		s.logger.Warn("enable on an enabled session")
		return
	case StateDestroyed:
		s.invalid("enable")
		return
	}

	s.state = StateEnabled
	s.capsFrozen = true
	if err := s.negotiator.Activate(s.caps, s.host); err != nil {
		s.logger.Debug("optional capabilities skipped", "error", err)
	}
	s.logger.Info("enabled", "capabilities", s.caps.String())
}

// Disable drops any composition and moves the session to disabled.
func (s *Session) Disable() {
	if s.state != StateEnabled {
		return
	}
	s.clearComposition()
	s.state = StateDisabled
	s.logger.Info("disabled")
}

// FocusIn marks the session ready to receive key events.
//
// IBus may deliver focus before enable, so focus is latched in any live
// state; keys are only routed once the session is also enabled.
func (s *Session) FocusIn() {
	if s.state == StateDestroyed {
		s.invalid("focus-in")
		return
	}
	s.focused = true
	s.logger.Debug("focus in")
}

// FocusOut drops the composition; context is not kept across focus loss.
func (s *Session) FocusOut() {
	if s.state == StateDestroyed {
		s.invalid("focus-out")
		return
	}
	s.focused = false
	if s.state == StateEnabled {
		s.clearComposition()
	}
	s.logger.Debug("focus out")
}

// Reset drops the composition without changing enabled status.
func (s *Session) Reset() {
	if s.state == StateDestroyed {
		s.invalid("reset")
		return
	}
	s.clearComposition()
	s.logger.Debug("reset")
}

// ProcessKeyEvent routes a key to the composer. It reports whether the
// key was consumed; false lets the client handle it.
func (s *Session) ProcessKeyEvent(ev KeyEvent) bool {
	if s.state != StateEnabled || !s.focused {
		s.logger.Debug("key ignored", "state", s.state.String(), "focused", s.focused,
			"error", ErrInvalidTransition)
		return false
	}

	r := s.composer.ProcessKey(ev)
	s.logger.Debug("key processed", "key", ev.String(), "result", r.Kind.String())
	return s.apply(&ev, r)
}

// PageDown shows the next page of candidates.
func (s *Session) PageDown() {
	if s.state != StateEnabled {
		s.invalid("page-down")
		return
	}
	if cands, ok := s.composer.PageDown(); ok {
		s.candidates.Replace(cands)
		s.refreshTable()
		return
	}
	if s.candidates.PageDown() {
		s.refreshTable()
	}
}

// PageUp shows the previous page of candidates.
func (s *Session) PageUp() {
	if s.state != StateEnabled {
		s.invalid("page-up")
		return
	}
	if cands, ok := s.composer.PageUp(); ok {
		s.candidates.Replace(cands)
		s.refreshTable()
		return
	}
	if s.candidates.PageUp() {
		s.refreshTable()
	}
}

// CursorDown highlights the next candidate.
func (s *Session) CursorDown() {
	if s.state != StateEnabled {
		s.invalid("cursor-down")
		return
	}
	if s.candidates.CursorDown() {
		s.refreshTable()
	}
}

// CursorUp highlights the previous candidate.
func (s *Session) CursorUp() {
	if s.state != StateEnabled {
		s.invalid("cursor-up")
		return
	}
	if s.candidates.CursorUp() {
		s.refreshTable()
	}
}

// CandidateClicked selects a candidate on the visible page and hands its
// absolute index to the composer. Out of range clicks are ignored.
func (s *Session) CandidateClicked(visible int) {
	if s.state != StateEnabled {
		s.invalid("candidate-clicked")
		return
	}
	abs, cand, err := s.candidates.SelectVisible(visible)
	if err != nil {
		s.logger.Debug("candidate click ignored", "error", err)
		return
	}
	s.logger.Debug("candidate clicked", "index", abs, "candidate", cand.Text)
	s.refreshTable()
	s.apply(nil, s.composer.CandidateClicked(abs))
}

// Destroy releases the candidate list, then the composer, then the host
// session object. It is safe to call more than once and on a session
// that was never enabled.
func (s *Session) Destroy() {
	if s.state == StateDestroyed {
		return
	}
	s.state = StateDestroyed
	s.focused = false

	if s.candidates != nil {
		s.candidates.Clear()
		s.candidates = nil
	}
	if s.composer != nil {
		if err := s.composer.Close(); err != nil {
			s.logger.Warn("close composer", "error", err)
		}
		s.composer = nil
	}
	if s.host != nil {
		s.host.Destroy()
		s.host = nil
	}
	s.logger.Info("destroyed")
}

// apply reflects a composer result to the host. ev is the key that
// produced it, if any.
func (s *Session) apply(ev *KeyEvent, r Result) bool {
	switch r.Kind {
	case KindPass:
		return false

	case KindUpdate:
		if r.HasCandidates {
			s.candidates.Replace(r.Candidates)
			s.refreshTable()
		}
		if r.HasPreedit {
			s.setPreedit(r.Preedit)
		}

	case KindCommit:
		s.candidates.Clear()
		s.refreshTable()
		s.setPreedit("")
		s.host.CommitText(r.CommitText)
		s.logger.Debug("committed", "commit", r.CommitText)

	case KindCommitSelected:
		index := s.candidates.Highlighted()
		if index < 0 {
			return false
		}
		picked := s.composer.CandidateClicked(index)
		if picked.Kind == KindCommitSelected {
			s.logger.Warn("composer answered a candidate click with another selection")
			return false
		}
		s.logger.Debug("highlighted candidate chosen", "index", index)
		return s.apply(ev, picked)

	case KindMoveCursor:
		moved := false
		for i := 0; i < r.Cursor; i++ {
			moved = s.candidates.CursorDown() || moved
		}
		for i := 0; i > r.Cursor; i-- {
			moved = s.candidates.CursorUp() || moved
		}
		if moved {
			s.refreshTable()
		}

	default:
		s.logger.Warn("unknown composer result", "kind", int(r.Kind))
		return false
	}

	if r.Forward && ev != nil {
		s.host.ForwardKeyEvent(*ev)
	}
	return true
}

func (s *Session) clearComposition() {
	s.composer.Reset()
	s.candidates.Clear()
	s.refreshTable()
	s.setPreedit("")
}

func (s *Session) setPreedit(text string) {
	if text == s.preedit {
		return
	}
	s.preedit = text
	s.host.UpdatePreeditText(text, uint32(utf8.RuneCountInString(text)), text != "")
}

func (s *Session) refreshTable() {
	if s.candidates.Len() == 0 {
		if s.tableVisible {
			s.tableVisible = false
			s.host.UpdateLookupTable(LookupPage{Cursor: -1, PageSize: s.candidates.PageSize()}, false)
		}
		return
	}
	s.tableVisible = true
	s.host.UpdateLookupTable(s.candidates.Page(), true)
}

func (s *Session) invalid(op string) {
	s.logger.Debug("event ignored", "op", op, "state", s.state.String(), "error", ErrInvalidTransition)
}
