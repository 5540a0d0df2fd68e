//go:build linux

package ime

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signal struct {
	path dbus.ObjectPath
	name string
	args []interface{}
}

// fakeBus records exported objects and emitted signals.
type fakeBus struct {
	mu      sync.Mutex
	signals []signal
	exports map[dbus.ObjectPath]map[string]interface{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{exports: make(map[dbus.ObjectPath]map[string]interface{})}
}

func (b *fakeBus) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = append(b.signals, signal{path: path, name: name, args: values})
	return nil
}

func (b *fakeBus) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v == nil {
		delete(b.exports[path], iface)
		if len(b.exports[path]) == 0 {
			delete(b.exports, path)
		}
		return nil
	}
	if b.exports[path] == nil {
		b.exports[path] = make(map[string]interface{})
	}
	b.exports[path][iface] = v
	return nil
}

func (b *fakeBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.signals))
	for _, s := range b.signals {
		out = append(out, s.name[len(EngineInterface)+1:])
	}
	return out
}

func (b *fakeBus) last(name string) (signal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.signals) - 1; i >= 0; i-- {
		if b.signals[i].name == EngineInterface+"."+name {
			return b.signals[i], true
		}
	}
	return signal{}, false
}

type countingObserver struct {
	mu       sync.Mutex
	opened   int
	closed   int
	consumed int
	passed   int
	commits  int
}

func (o *countingObserver) SessionOpened() { o.mu.Lock(); o.opened++; o.mu.Unlock() }
func (o *countingObserver) SessionClosed() { o.mu.Lock(); o.closed++; o.mu.Unlock() }
func (o *countingObserver) Committed()     { o.mu.Lock(); o.commits++; o.mu.Unlock() }
func (o *countingObserver) KeyProcessed(consumed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if consumed {
		o.consumed++
	} else {
		o.passed++
	}
}

func newTestRegistrar(t *testing.T, newComposer ComposerFactory) (*Registrar, *fakeBus, *countingObserver) {
	t.Helper()
	obs := &countingObserver{}
	r, err := NewRegistrar(RegistrarConfig{
		Component:   testComponent(),
		PageSize:    9,
		Table:       LookupTableOptions{ShowHints: true},
		NewComposer: newComposer,
		Observer:    obs,
	})
	require.NoError(t, err)
	bus := newFakeBus()
	r.bus = bus
	return r, bus, obs
}

func TestNewRegistrarValidation(t *testing.T) {
	_, err := NewRegistrar(RegistrarConfig{Component: testComponent()})
	assert.Error(t, err)

	c := testComponent()
	c.EngineName = ""
	_, err = NewRegistrar(RegistrarConfig{Component: c, NewComposer: func() (Composer, error) { return &scriptedComposer{}, nil }})
	assert.Error(t, err)
}

func TestFactoryCreateEngine(t *testing.T) {
	r, bus, obs := newTestRegistrar(t, func() (Composer, error) { return &scriptedComposer{}, nil })
	f := &factory{r: r}

	p1, derr := f.CreateEngine("afrim")
	require.Nil(t, derr)
	p2, derr := f.CreateEngine("afrim")
	require.Nil(t, derr)

	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/IBus/Engine/1"), p1)
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/IBus/Engine/2"), p2)
	assert.Equal(t, 2, r.Engines())
	assert.Equal(t, 2, obs.opened)
	assert.Contains(t, bus.exports[p1], EngineInterface)
	assert.Contains(t, bus.exports[p1], ServiceInterface)
	assert.Contains(t, bus.exports[p1], introspectInterface)

	_, derr = f.CreateEngine("other")
	require.NotNil(t, derr)
	assert.Equal(t, "org.freedesktop.IBus.NoEngine", derr.Name)
}

func TestEngineObjectEndToEnd(t *testing.T) {
	comp := &scriptedComposer{results: []Result{
		Update().WithPreedit("a").WithCandidates([]Candidate{{Text: "à", Hint: "f"}}),
		Commit("à"),
	}}
	r, bus, obs := newTestRegistrar(t, func() (Composer, error) { return comp, nil })
	engine, err := r.createEngine("afrim")
	require.NoError(t, err)

	engine.SetCapabilities(uint32(CapPreeditText | CapLookupTable | CapSurroundingText))
	engine.FocusIn()
	engine.Enable()

	consumed, derr := engine.ProcessKeyEvent('a', 38, 0)
	require.Nil(t, derr)
	assert.True(t, consumed)

	consumed, _ = engine.ProcessKeyEvent(KeySpace, 65, 0)
	assert.True(t, consumed)

	consumed, _ = engine.ProcessKeyEvent('b', 56, 0)
	assert.False(t, consumed)

	assert.Equal(t, []string{
		"RequireSurroundingText",
		"UpdateLookupTable",
		"UpdatePreeditText",
		"HideLookupTable",
		"UpdatePreeditText",
		"CommitText",
	}, bus.names())

	commit, ok := bus.last("CommitText")
	require.True(t, ok)
	text, err := TextFromVariant(commit.args[0].(dbus.Variant))
	require.NoError(t, err)
	assert.Equal(t, "à", text)

	table, ok := bus.last("UpdateLookupTable")
	require.True(t, ok)
	lt := table.args[0].(dbus.Variant).Value().(ibusLookupTable)
	label, _ := TextFromVariant(lt.Labels[0])
	assert.Equal(t, "1.~f", label)

	assert.Equal(t, 2, obs.consumed)
	assert.Equal(t, 1, obs.passed)
	assert.Equal(t, 1, obs.commits)
}

func TestEngineObjectSurroundingText(t *testing.T) {
	r, _, _ := newTestRegistrar(t, func() (Composer, error) { return &scriptedComposer{}, nil })
	engine, err := r.createEngine("afrim")
	require.NoError(t, err)

	engine.SetSurroundingText(TextVariant("hello"), 5, 5)
	assert.Equal(t, SurroundingText{Text: "hello", Cursor: 5, Anchor: 5}, engine.session.Surrounding())

	// Malformed payloads are ignored.
	assert.Nil(t, engine.SetSurroundingText(dbus.MakeVariant(42), 0, 0))
	assert.Equal(t, "hello", engine.session.Surrounding().Text)
}

func TestEngineObjectForwardKeyEvent(t *testing.T) {
	comp := &scriptedComposer{results: []Result{Commit(".").Forwarding()}}
	r, bus, _ := newTestRegistrar(t, func() (Composer, error) { return comp, nil })
	engine, err := r.createEngine("afrim")
	require.NoError(t, err)
	engine.FocusIn()
	engine.Enable()

	engine.ProcessKeyEvent(KeyReturn, 36, uint32(ShiftMask))

	fwd, ok := bus.last("ForwardKeyEvent")
	require.True(t, ok)
	assert.Equal(t, []interface{}{uint32(KeyReturn), uint32(36), uint32(ShiftMask)}, fwd.args)
}

func TestEngineObjectDestroy(t *testing.T) {
	comp := &scriptedComposer{}
	r, bus, obs := newTestRegistrar(t, func() (Composer, error) { return comp, nil })
	engine, err := r.createEngine("afrim")
	require.NoError(t, err)

	engine.Destroy()
	engine.Destroy()

	assert.Equal(t, 0, r.Engines())
	assert.Equal(t, 1, comp.closed)
	assert.Equal(t, 1, obs.closed)
	assert.NotContains(t, bus.exports, engine.Path())

	// Calls on a destroyed engine are ignored.
	consumed, derr := engine.ProcessKeyEvent('a', 38, 0)
	assert.Nil(t, derr)
	assert.False(t, consumed)
}

func TestEngineServiceDestroy(t *testing.T) {
	r, _, _ := newTestRegistrar(t, func() (Composer, error) { return &scriptedComposer{}, nil })
	engine, err := r.createEngine("afrim")
	require.NoError(t, err)

	assert.Nil(t, engineService{engine: engine}.Destroy(dbus.Message{}))
	assert.Equal(t, StateDestroyed, engine.session.State())
}

func TestRegistrarCloseDestroysEngines(t *testing.T) {
	var composers []*scriptedComposer
	r, _, obs := newTestRegistrar(t, func() (Composer, error) {
		c := &scriptedComposer{}
		composers = append(composers, c)
		return c, nil
	})
	for i := 0; i < 3; i++ {
		_, err := r.createEngine("afrim")
		require.NoError(t, err)
	}

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Equal(t, 0, r.Engines())
	assert.Equal(t, 3, obs.closed)
	for _, c := range composers {
		assert.Equal(t, 1, c.closed)
	}

	_, err := r.createEngine("afrim")
	assert.Error(t, err)
}

func TestEngineObjectConcurrentCalls(t *testing.T) {
	r, _, _ := newTestRegistrar(t, func() (Composer, error) { return &scriptedComposer{}, nil })
	engine, err := r.createEngine("afrim")
	require.NoError(t, err)
	engine.FocusIn()
	engine.Enable()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				engine.ProcessKeyEvent('a', 38, 0)
				engine.PageDown()
				engine.FocusOut()
				engine.FocusIn()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, StateEnabled, engine.session.State())
}

// panickyComposer panics on every key.
type panickyComposer struct {
	scriptedComposer
}

func (c *panickyComposer) ProcessKey(KeyEvent) Result { panic("boom") }

type panicRecorder struct {
	mu     sync.Mutex
	values []interface{}
}

func (p *panicRecorder) HandlePanic(v interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func TestEngineObjectRecoversPanics(t *testing.T) {
	comp := &panickyComposer{}
	r, _, obs := newTestRegistrar(t, func() (Composer, error) { return comp, nil })
	panics := &panicRecorder{}
	r.cfg.Panics = panics

	engine, err := r.createEngine("afrim")
	require.NoError(t, err)
	engine.FocusIn()
	engine.Enable()

	var consumed bool
	var derr *dbus.Error
	require.NotPanics(t, func() { consumed, derr = engine.ProcessKeyEvent('a', 38, 0) })
	assert.False(t, consumed)
	assert.Nil(t, derr)
	assert.Equal(t, []interface{}{"boom"}, panics.values)
	assert.Equal(t, 1, obs.passed)
	assert.Equal(t, 1, comp.resets, "the composition is dropped after a panic")

	done := make(chan struct{})
	go func() {
		engine.Reset()
		engine.Disable()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine lock held after a panic")
	}
	assert.Equal(t, StateDisabled, engine.session.State())
}

func TestEngineObjectRecoversWithoutHandler(t *testing.T) {
	r, _, _ := newTestRegistrar(t, func() (Composer, error) { return &panickyComposer{}, nil })
	engine, err := r.createEngine("afrim")
	require.NoError(t, err)
	engine.FocusIn()
	engine.Enable()

	assert.NotPanics(t, func() { engine.ProcessKeyEvent('a', 38, 0) })
	assert.NotPanics(t, func() { engine.ProcessKeyEvent('b', 56, 0) })
}

func TestSessionLogsCarryEnginePath(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRegistrar(RegistrarConfig{
		Component:   testComponent(),
		NewComposer: func() (Composer, error) { return &scriptedComposer{}, nil },
		Logger:      slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	require.NoError(t, err)
	r.bus = newFakeBus()

	engine, err := r.createEngine("afrim")
	require.NoError(t, err)
	buf.Reset()

	engine.FocusIn()
	engine.Enable()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Contains(t, line, `"engine":"/org/freedesktop/IBus/Engine/1"`)
	}
	assert.Contains(t, buf.String(), `"msg":"enabled"`)
}

func TestSocketFileName(t *testing.T) {
	tests := []struct {
		name    string
		display string
		wayland string
		want    string
	}{
		{"local x11", ":0", "", "abc-unix-0"},
		{"screen suffix", ":1.0", "", "abc-unix-1"},
		{"remote x11", "host:2.0", "", "abc-host-2"},
		{"wayland only", "", "wayland-0", "abc-unix-wayland-0"},
		{"x11 wins", ":3", "wayland-0", "abc-unix-3"},
		{"nothing", "", "", "abc-unix-0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SocketFileName("abc", tt.display, tt.wayland))
		})
	}
}

func TestParseAddressFile(t *testing.T) {
	data := []byte("# This file is created by ibus-daemon, please do not modify it.\n" +
		"# IBUS_ADDRESS=unix:path=/wrong\n" +
		"IBUS_ADDRESS=unix:path=/tmp/ibus-abc,guid=123\n" +
		"IBUS_DAEMON_PID=42\n")
	addr, err := ParseAddressFile(data)
	require.NoError(t, err)
	assert.Equal(t, "unix:path=/tmp/ibus-abc,guid=123", addr)

	_, err = ParseAddressFile([]byte("IBUS_DAEMON_PID=42\n"))
	assert.Error(t, err)
}

func TestBusAddressFromEnv(t *testing.T) {
	t.Setenv("IBUS_ADDRESS", "unix:path=/tmp/x")
	addr, err := BusAddress()
	require.NoError(t, err)
	assert.Equal(t, "unix:path=/tmp/x", addr)
}

func TestBusAddressFromFile(t *testing.T) {
	id, err := readMachineID()
	if err != nil {
		t.Skip("no machine id on this host")
	}
	dir := t.TempDir()
	t.Setenv("IBUS_ADDRESS", "")
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("DISPLAY", ":7")
	t.Setenv("WAYLAND_DISPLAY", "")

	busDir := filepath.Join(dir, "ibus", "bus")
	require.NoError(t, os.MkdirAll(busDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(busDir, id+"-unix-7"),
		[]byte("IBUS_ADDRESS=unix:path=/tmp/seven\n"), 0644))

	addr, err := BusAddress()
	require.NoError(t, err)
	assert.Equal(t, "unix:path=/tmp/seven", addr)
}
