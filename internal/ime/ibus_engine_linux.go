//go:build linux

package ime

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

// D-Bus interfaces implemented or emitted by an engine object.
const (
	EngineInterface  = "org.freedesktop.IBus.Engine"
	ServiceInterface = "org.freedesktop.IBus.Service"
)

// Preedit focus modes carried by UpdatePreeditText.
const (
	preeditModeClear  uint32 = 0
	preeditModeCommit uint32 = 1
)

// busConn is the subset of *dbus.Conn used by engine objects.
type busConn interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	Export(v interface{}, path dbus.ObjectPath, iface string) error
}

// dbusHost emits the IBus engine signals for one engine object.
type dbusHost struct {
	conn     busConn
	path     dbus.ObjectPath
	table    LookupTableOptions
	observer Observer
	logger   *slog.Logger

	// onDestroy runs once the session has released everything else.
	onDestroy func()
}

func (h *dbusHost) emit(signal string, values ...interface{}) {
	if err := h.conn.Emit(h.path, EngineInterface+"."+signal, values...); err != nil {
		h.logger.Warn("emit signal", "signal", signal, "error", err)
	}
}

func (h *dbusHost) RequireSurroundingText() {
	h.emit("RequireSurroundingText")
}

func (h *dbusHost) UpdatePreeditText(text string, cursor uint32, visible bool) {
	h.emit("UpdatePreeditText", PreeditVariant(text), cursor, visible, preeditModeCommit)
}

func (h *dbusHost) UpdateLookupTable(page LookupPage, visible bool) {
	if !visible {
		h.emit("HideLookupTable")
		return
	}
	h.emit("UpdateLookupTable", LookupTableVariant(page, h.table), true)
}

func (h *dbusHost) CommitText(text string) {
	h.emit("CommitText", TextVariant(text))
	h.observer.Committed()
}

func (h *dbusHost) ForwardKeyEvent(ev KeyEvent) {
	h.emit("ForwardKeyEvent", ev.Keyval, ev.Keycode, uint32(ev.Modifiers))
}

func (h *dbusHost) Destroy() {
	if h.onDestroy != nil {
		h.onDestroy()
	}
}

// EngineObject is one input context. godbus dispatches method calls on
// separate goroutines, so every call takes mu before it touches the
// Session. A panic inside a call is reported to panics and the
// composition dropped; the context keeps serving.
type EngineObject struct {
	mu       sync.Mutex
	path     dbus.ObjectPath
	session  *Session
	observer Observer
	panics   PanicHandler
	calls    *callQueue
	logger   *slog.Logger
}

// Path returns the object path the engine is exported at.
func (e *EngineObject) Path() dbus.ObjectPath { return e.path }

// ProcessKeyEvent reports whether the key was consumed.
func (e *EngineObject) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	ev := KeyEvent{Keyval: keyval, Keycode: keycode, Modifiers: Modifiers(state)}

	consumed := false
	e.do(func() { consumed = e.session.ProcessKeyEvent(ev) })

	e.observer.KeyProcessed(consumed)
	return consumed, nil
}

func (e *EngineObject) FocusIn() *dbus.Error {
	e.do(e.session.FocusIn)
	return nil
}

// FocusInId is sent by IBus 1.5.28+ in place of FocusIn.
func (e *EngineObject) FocusInId(objectPath, client string) *dbus.Error {
	e.logger.Debug("focus in", "object", objectPath, "client", client)
	e.do(e.session.FocusIn)
	return nil
}

func (e *EngineObject) FocusOut() *dbus.Error {
	e.do(e.session.FocusOut)
	return nil
}

// FocusOutId is sent by IBus 1.5.28+ in place of FocusOut.
func (e *EngineObject) FocusOutId(objectPath string) *dbus.Error {
	e.do(e.session.FocusOut)
	return nil
}

func (e *EngineObject) Enable() *dbus.Error {
	e.do(e.session.Enable)
	return nil
}

func (e *EngineObject) Disable() *dbus.Error {
	e.do(e.session.Disable)
	return nil
}

func (e *EngineObject) Reset() *dbus.Error {
	e.do(e.session.Reset)
	return nil
}

func (e *EngineObject) SetCapabilities(caps uint32) *dbus.Error {
	e.logger.Debug("set capabilities", "caps", Capabilities(caps).String())
	e.do(func() { e.session.SetCapabilities(Capabilities(caps)) })
	return nil
}

func (e *EngineObject) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	s, err := TextFromVariant(text)
	if err != nil {
		e.logger.Debug("set surrounding text", "error", err)
		return nil
	}
	e.do(func() { e.session.SetSurroundingText(s, cursorPos, anchorPos) })
	return nil
}

func (e *EngineObject) SetCursorLocation(x, y, w, h int32) *dbus.Error {
	return nil
}

func (e *EngineObject) SetCursorLocationRelative(x, y, w, h int32) *dbus.Error {
	return nil
}

func (e *EngineObject) SetContentType(purpose, hints uint32) *dbus.Error {
	e.logger.Debug("set content type", "purpose", purpose, "hints", hints)
	return nil
}

func (e *EngineObject) PropertyActivate(name string, state uint32) *dbus.Error {
	e.logger.Debug("property activate", "name", name, "state", state)
	return nil
}

func (e *EngineObject) PropertyShow(name string) *dbus.Error { return nil }

func (e *EngineObject) PropertyHide(name string) *dbus.Error { return nil }

func (e *EngineObject) PageUp() *dbus.Error {
	e.do(e.session.PageUp)
	return nil
}

func (e *EngineObject) PageDown() *dbus.Error {
	e.do(e.session.PageDown)
	return nil
}

func (e *EngineObject) CursorUp() *dbus.Error {
	e.do(e.session.CursorUp)
	return nil
}

func (e *EngineObject) CursorDown() *dbus.Error {
	e.do(e.session.CursorDown)
	return nil
}

func (e *EngineObject) CandidateClicked(index, button, state uint32) *dbus.Error {
	e.do(func() { e.session.CandidateClicked(int(index)) })
	return nil
}

// Destroy backs org.freedesktop.IBus.Service.Destroy.
func (e *EngineObject) Destroy() *dbus.Error {
	e.do(e.session.Destroy)
	return nil
}

func (e *EngineObject) do(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.recoverCall()
	fn()
}

// recoverCall must be deferred directly by do.
func (e *EngineObject) recoverCall() {
	v := recover()
	if v == nil {
		return
	}
	if e.panics != nil {
		e.panics.HandlePanic(v)
	} else {
		e.logger.Error("panic in engine call", "value", fmt.Sprint(v))
	}
	e.resetAfterPanic()
}

func (e *EngineObject) resetAfterPanic() {
	defer func() {
		if v := recover(); v != nil {
			e.logger.Error("reset after panic failed", "value", fmt.Sprint(v))
		}
	}()
	e.session.Reset()
}

