//go:build linux

package ime

import (
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// staleCallAfter is how long a call may wait at the head of an engine
// queue without its handler starting. godbus answers calls it cannot
// decode without running a handler, and those must not block the rest.
const staleCallAfter = 250 * time.Millisecond

// callKey identifies one method call on the bus.
type callKey struct {
	sender string
	serial uint32
}

func keyOf(msg *dbus.Message) callKey {
	sender, _ := msg.Headers[dbus.FieldSender].Value().(string)
	return callKey{sender: sender, serial: msg.Serial()}
}

// callQueue admits an engine's calls in the order the bus delivered
// them.
type callQueue struct {
	mu      sync.Mutex
	pending []callKey
	running bool
	changed chan struct{}
}

func newCallQueue() *callQueue {
	return &callQueue{changed: make(chan struct{})}
}

func (q *callQueue) push(k callKey) {
	q.mu.Lock()
	q.pending = append(q.pending, k)
	q.mu.Unlock()
}

// wait blocks until k is the oldest pending call and returns the func
// that lets the next one in. Calls the queue never saw pass at once.
func (q *callQueue) wait(k callKey) (done func()) {
	if q == nil {
		return func() {}
	}
	var stale *time.Timer
	defer func() {
		if stale != nil {
			stale.Stop()
		}
	}()

	for {
		q.mu.Lock()
		i := q.index(k)
		if i < 0 {
			q.mu.Unlock()
			return func() {}
		}
		if i == 0 {
			q.running = true
			q.mu.Unlock()
			return func() { q.finish(k) }
		}
		changed := q.changed
		q.mu.Unlock()

		if stale == nil {
			stale = time.NewTimer(staleCallAfter)
		}
		select {
		case <-changed:
		case <-stale.C:
			q.dropHead(k)
			stale.Reset(staleCallAfter)
		}
	}
}

func (q *callQueue) index(k callKey) int {
	for i, p := range q.pending {
		if p == k {
			return i
		}
	}
	return -1
}

// dropHead skips a head that never started, unless it is k itself.
func (q *callQueue) dropHead(k callKey) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || len(q.pending) == 0 || q.pending[0] == k {
		return
	}
	q.pending = q.pending[1:]
	q.notify()
}

func (q *callQueue) finish(k callKey) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.index(k); i >= 0 {
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
	}
	q.running = false
	q.notify()
}

// notify wakes every waiter. Callers hold mu.
func (q *callQueue) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// sequencedMethods are the engine methods that go through a callQueue.
var sequencedMethods = func() map[string]bool {
	names := make(map[string]bool)
	for _, m := range introspect.Methods(&engineCalls{}) {
		names[m.Name] = true
	}
	return names
}()

// intercept runs on the connection's reader goroutine, in arrival order,
// before godbus starts a handler goroutine for the message.
func (r *Registrar) intercept(msg *dbus.Message) {
	if msg.Type != dbus.TypeMethodCall {
		return
	}
	iface, _ := msg.Headers[dbus.FieldInterface].Value().(string)
	member, _ := msg.Headers[dbus.FieldMember].Value().(string)
	switch {
	case iface == EngineInterface && sequencedMethods[member]:
	case iface == ServiceInterface && member == "Destroy":
	default:
		return
	}

	path, _ := msg.Headers[dbus.FieldPath].Value().(dbus.ObjectPath)
	r.mu.Lock()
	e := r.engines[path]
	r.mu.Unlock()
	if e != nil {
		e.calls.push(keyOf(msg))
	}
}

// engineCalls is what the bus sees of an EngineObject. Each method waits
// for the calls that reached the same engine before it.
type engineCalls struct {
	e *EngineObject
}

func (c *engineCalls) enter(msg dbus.Message) func() {
	return c.e.calls.wait(keyOf(&msg))
}

func (c *engineCalls) ProcessKeyEvent(msg dbus.Message, keyval, keycode, state uint32) (bool, *dbus.Error) {
	defer c.enter(msg)()
	return c.e.ProcessKeyEvent(keyval, keycode, state)
}

func (c *engineCalls) FocusIn(msg dbus.Message) *dbus.Error {
	defer c.enter(msg)()
	return c.e.FocusIn()
}

func (c *engineCalls) FocusInId(msg dbus.Message, objectPath, client string) *dbus.Error {
	defer c.enter(msg)()
	return c.e.FocusInId(objectPath, client)
}

func (c *engineCalls) FocusOut(msg dbus.Message) *dbus.Error {
	defer c.enter(msg)()
	return c.e.FocusOut()
}

func (c *engineCalls) FocusOutId(msg dbus.Message, objectPath string) *dbus.Error {
	defer c.enter(msg)()
	return c.e.FocusOutId(objectPath)
}

func (c *engineCalls) Enable(msg dbus.Message) *dbus.Error {
	defer c.enter(msg)()
	return c.e.Enable()
}

func (c *engineCalls) Disable(msg dbus.Message) *dbus.Error {
	defer c.enter(msg)()
	return c.e.Disable()
}

func (c *engineCalls) Reset(msg dbus.Message) *dbus.Error {
	defer c.enter(msg)()
	return c.e.Reset()
}

func (c *engineCalls) SetCapabilities(msg dbus.Message, caps uint32) *dbus.Error {
	defer c.enter(msg)()
	return c.e.SetCapabilities(caps)
}

func (c *engineCalls) SetSurroundingText(msg dbus.Message, text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	defer c.enter(msg)()
	return c.e.SetSurroundingText(text, cursorPos, anchorPos)
}

func (c *engineCalls) SetCursorLocation(msg dbus.Message, x, y, w, h int32) *dbus.Error {
	defer c.enter(msg)()
	return c.e.SetCursorLocation(x, y, w, h)
}

func (c *engineCalls) SetCursorLocationRelative(msg dbus.Message, x, y, w, h int32) *dbus.Error {
	defer c.enter(msg)()
	return c.e.SetCursorLocationRelative(x, y, w, h)
}

func (c *engineCalls) SetContentType(msg dbus.Message, purpose, hints uint32) *dbus.Error {
	defer c.enter(msg)()
	return c.e.SetContentType(purpose, hints)
}

func (c *engineCalls) PropertyActivate(msg dbus.Message, name string, state uint32) *dbus.Error {
	defer c.enter(msg)()
	return c.e.PropertyActivate(name, state)
}

func (c *engineCalls) PropertyShow(msg dbus.Message, name string) *dbus.Error {
	defer c.enter(msg)()
	return c.e.PropertyShow(name)
}

func (c *engineCalls) PropertyHide(msg dbus.Message, name string) *dbus.Error {
	defer c.enter(msg)()
	return c.e.PropertyHide(name)
}

func (c *engineCalls) PageUp(msg dbus.Message) *dbus.Error {
	defer c.enter(msg)()
	return c.e.PageUp()
}

func (c *engineCalls) PageDown(msg dbus.Message) *dbus.Error {
	defer c.enter(msg)()
	return c.e.PageDown()
}

func (c *engineCalls) CursorUp(msg dbus.Message) *dbus.Error {
	defer c.enter(msg)()
	return c.e.CursorUp()
}

func (c *engineCalls) CursorDown(msg dbus.Message) *dbus.Error {
	defer c.enter(msg)()
	return c.e.CursorDown()
}

func (c *engineCalls) CandidateClicked(msg dbus.Message, index, button, state uint32) *dbus.Error {
	defer c.enter(msg)()
	return c.e.CandidateClicked(index, button, state)
}

// engineService exports Destroy under org.freedesktop.IBus.Service.
type engineService struct {
	engine *EngineObject
}

func (s engineService) Destroy(msg dbus.Message) *dbus.Error {
	defer s.engine.calls.wait(keyOf(&msg))()
	return s.engine.Destroy()
}
