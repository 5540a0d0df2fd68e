package composer

import (
	"log/slog"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"ibusafrim/internal/ime"
)

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the composer logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) {
		if l != nil {
			c.logger = l
		}
	}
}

// Composer turns key events into preedit, candidates and commits using
// the dictionary snapshot current at each key. One Composer serves one
// input context.
type Composer struct {
	source *Source
	logger *slog.Logger

	buffer     []rune
	idle       bool
	candidates []ime.Candidate
	exact      []bool

	// dict is the snapshot scripts was built from.
	dict    *Dictionary
	scripts *scriptRuntime
}

var _ ime.Composer = (*Composer)(nil)

// New creates a composer reading from source.
func New(source *Source, opts ...Option) *Composer {
	c := &Composer{
		source: source,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Factory returns an ime.ComposerFactory producing composers over s.
func (s *Source) Factory(opts ...Option) ime.ComposerFactory {
	return func() (ime.Composer, error) {
		return New(s, opts...), nil
	}
}

// Idle reports whether composition is paused.
func (c *Composer) Idle() bool { return c.idle }

// Input returns the raw keys typed so far.
func (c *Composer) Input() string { return string(c.buffer) }

// ProcessKey implements ime.Composer.
func (c *Composer) ProcessKey(ev ime.KeyEvent) ime.Result {
	if ev.Released() {
		return ime.PassThrough()
	}

	if (ev.Keyval == ime.KeyControlL || ev.Keyval == ime.KeyControlR) && ev.Has(ime.ControlMask) {
		c.idle = !c.idle
		c.logger.Debug("idle toggled", "idle", c.idle)
		if c.idle && c.composing() {
			c.Reset()
			return cleared()
		}
		return ime.PassThrough()
	}
	if c.idle {
		return ime.PassThrough()
	}
	// Ctrl+Shift_L and Ctrl+Shift_R walk the candidate highlight.
	if (ev.Keyval == ime.KeyShiftL || ev.Keyval == ime.KeyShiftR) && ev.Has(ime.ControlMask) {
		if len(c.candidates) == 0 {
			return ime.PassThrough()
		}
		if ev.Keyval == ime.KeyShiftL {
			return ime.MoveCursor(-1)
		}
		return ime.MoveCursor(1)
	}
	if ime.IsModifierKey(ev.Keyval) {
		return ime.PassThrough()
	}

	d := c.snapshot()

	if ev.IsShortcut() {
		if ev.Keyval == ime.KeySpace && ev.Has(ime.ControlMask) && len(c.candidates) > 0 {
			return ime.CommitSelected()
		}
		if c.composing() {
			c.Reset()
			return cleared().Forwarding()
		}
		return ime.PassThrough()
	}

	switch ev.Keyval {
	case ime.KeyBackSpace:
		if !c.composing() {
			return ime.PassThrough()
		}
		c.buffer = c.buffer[:len(c.buffer)-1]
		if !c.composing() {
			c.Reset()
			return cleared()
		}
		return c.update(d)

	case ime.KeyEscape:
		if !c.composing() {
			return ime.PassThrough()
		}
		c.Reset()
		return cleared()

	case ime.KeySpace:
		if !c.composing() {
			return ime.PassThrough()
		}
		if len(c.candidates) > 0 {
			return ime.CommitSelected()
		}
		return c.commit(c.preedit(d))

	case ime.KeyReturn, ime.KeyKPEnter:
		if !c.composing() {
			return ime.PassThrough()
		}
		return c.commit(c.preedit(d))
	}

	if r := ev.Rune(); r != 0 && (unicode.IsLetter(r) || d.Composable(r)) {
		c.buffer = append(c.buffer, r)
		if len(c.buffer) >= d.BufferSize() {
			return c.commit(c.preedit(d))
		}
		return c.update(d)
	}

	if c.composing() {
		return c.commit(c.preedit(d)).Forwarding()
	}
	return ime.PassThrough()
}

// Reset implements ime.Composer.
func (c *Composer) Reset() {
	c.buffer = c.buffer[:0]
	c.candidates = nil
	c.exact = nil
}

// PageDown implements ime.Composer; paging is left to the session.
func (c *Composer) PageDown() ([]ime.Candidate, bool) { return nil, false }

// PageUp implements ime.Composer; paging is left to the session.
func (c *Composer) PageUp() ([]ime.Candidate, bool) { return nil, false }

// CandidateClicked commits the candidate at the absolute index.
func (c *Composer) CandidateClicked(index int) ime.Result {
	if index < 0 || index >= len(c.candidates) {
		return ime.PassThrough()
	}
	return c.commit(c.candidates[index].Text)
}

// Close releases the Lua state.
func (c *Composer) Close() error {
	c.scripts.close()
	c.scripts = nil
	c.dict = nil
	return nil
}

func (c *Composer) composing() bool { return len(c.buffer) > 0 }

// snapshot returns the current dictionary, rebuilding the script runtime
// when it changed since the last key.
func (c *Composer) snapshot() *Dictionary {
	d := c.source.Dictionary()
	if d == c.dict {
		return d
	}
	c.scripts.close()
	c.scripts = nil
	c.dict = d
	if len(d.Scripts()) > 0 {
		rt, err := newScriptRuntime(d.Scripts())
		if err != nil {
			c.logger.Warn("load translators", "error", err)
		} else {
			c.scripts = rt
		}
	}
	return d
}

func (c *Composer) preedit(d *Dictionary) string {
	return norm.NFC.String(d.Transform(string(c.buffer)))
}

func (c *Composer) update(d *Dictionary) ime.Result {
	input := string(c.buffer)
	preds, err := d.Translate(input)
	if err != nil {
		c.logger.Warn("translate", "error", err)
	}
	if c.scripts != nil {
		preds = append(preds, c.scripts.translate(input, func(name string, err error) {
			c.logger.Warn("translator failed", "translator", name, "error", err)
		})...)
	}

	c.candidates = c.candidates[:0]
	c.exact = c.exact[:0]
	for _, p := range preds {
		for _, text := range p.Texts {
			if text == "" {
				continue
			}
			c.candidates = append(c.candidates, ime.Candidate{Text: norm.NFC.String(text), Hint: p.Remaining})
			c.exact = append(c.exact, p.CanCommit)
		}
	}

	if d.AutoCommit() && len(c.candidates) == 1 && c.exact[0] {
		return c.commit(c.candidates[0].Text)
	}
	return ime.Update().WithPreedit(c.preedit(d)).WithCandidates(c.candidates)
}

func (c *Composer) commit(text string) ime.Result {
	c.Reset()
	return ime.Commit(norm.NFC.String(text))
}

func cleared() ime.Result {
	return ime.Update().WithPreedit("").WithCandidates(nil)
}
