package ime

// Observer is told about engine activity. The metrics collector
// implements it; a nil Observer in options means no reporting.
type Observer interface {
	SessionOpened()
	SessionClosed()
	// KeyProcessed reports one key event and whether it was consumed.
	KeyProcessed(consumed bool)
	Committed()
}

type nopObserver struct{}

func (nopObserver) SessionOpened() {}
func (nopObserver) SessionClosed() {}
func (nopObserver) KeyProcessed(bool) {}
func (nopObserver) Committed() {}

// PanicHandler receives panics recovered while serving a host call.
// logging.CrashHandler implements it.
type PanicHandler interface {
	HandlePanic(v interface{})
}
