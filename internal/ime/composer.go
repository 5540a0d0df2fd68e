package ime

// ResultKind tags the outcome of handing an event to a Composer.
type ResultKind int

const (
	// KindPass means the composer did not consume the key; the host
	// handles it itself.
	KindPass ResultKind = iota
	// KindUpdate means the key was consumed, with optional preedit and
	// candidate list replacements.
	KindUpdate
	// KindCommit means the key was consumed and CommitText is final.
	KindCommit
	// KindCommitSelected means the key was consumed and the candidate
	// highlighted in the lookup table is to be committed. The session
	// resolves the highlight and hands it to CandidateClicked.
	KindCommitSelected
	// KindMoveCursor means the key was consumed and moves the lookup
	// table highlight by Cursor candidates.
	KindMoveCursor
)

func (k ResultKind) String() string {
	switch k {
	case KindPass:
		return "pass"
	case KindUpdate:
		return "update"
	case KindCommit:
		return "commit"
	case KindCommitSelected:
		return "commit-selected"
	case KindMoveCursor:
		return "move-cursor"
	default:
		return "unknown"
	}
}

// Result is what a Composer returns for one event.
type Result struct {
	Kind ResultKind

	// Preedit replaces the in-progress text when HasPreedit is set.
	Preedit    string
	HasPreedit bool

	// Candidates replaces the lookup table when HasCandidates is set.
	Candidates    []Candidate
	HasCandidates bool

	// CommitText is the text to insert for KindCommit.
	CommitText string

	// Cursor is the highlight movement for KindMoveCursor.
	Cursor int

	// Forward re-injects the original key to the client after a
	// consumed result has been applied.
	Forward bool
}

// PassThrough returns a not-consumed result.
func PassThrough() Result {
	return Result{Kind: KindPass}
}

// Update returns a consumed result with no changes attached.
func Update() Result {
	return Result{Kind: KindUpdate}
}

// Commit returns a consumed result that commits text.
func Commit(text string) Result {
	return Result{Kind: KindCommit, CommitText: text}
}

// CommitSelected returns a consumed result that commits the highlighted
// candidate.
func CommitSelected() Result {
	return Result{Kind: KindCommitSelected}
}

// MoveCursor returns a consumed result moving the highlight by delta.
func MoveCursor(delta int) Result {
	return Result{Kind: KindMoveCursor, Cursor: delta}
}

// WithPreedit attaches a preedit replacement.
func (r Result) WithPreedit(text string) Result {
	r.Preedit = text
	r.HasPreedit = true
	return r
}

// WithCandidates attaches a candidate list replacement.
func (r Result) WithCandidates(c []Candidate) Result {
	r.Candidates = c
	r.HasCandidates = true
	return r
}

// Forwarding marks the original key for re-injection.
func (r Result) Forwarding() Result {
	r.Forward = true
	return r
}

// Consumed reports whether the key was eaten by the composer.
func (r Result) Consumed() bool {
	return r.Kind != KindPass
}

// Composer is the composition engine a Session drives. Its state is
// opaque to the session; events arrive one at a time, in order.
type Composer interface {
	// ProcessKey hands one key event to the engine.
	ProcessKey(ev KeyEvent) Result

	// Reset discards any in-progress composition.
	Reset()

	// PageDown and PageUp are offered the host's paging gestures first.
	// When the engine is the paging authority it returns the new
	// candidate sequence and true; otherwise false and the session pages
	// its own list.
	PageDown() ([]Candidate, bool)
	PageUp() ([]Candidate, bool)

	// CandidateClicked reports a candidate chosen by absolute index.
	CandidateClicked(index int) Result

	// Close releases the engine. The session calls it exactly once.
	Close() error
}

// ComposerFactory creates the Composer owned by a new Session.
type ComposerFactory func() (Composer, error)
