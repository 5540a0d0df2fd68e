//go:build linux

package ime

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// IBus daemon object and the factory path engines are requested from.
const (
	ibusService      = "org.freedesktop.IBus"
	ibusPath         = dbus.ObjectPath("/org/freedesktop/IBus")
	factoryPath      = dbus.ObjectPath("/org/freedesktop/IBus/Factory")
	factoryInterface = "org.freedesktop.IBus.Factory"
	enginePathPrefix = "/org/freedesktop/IBus/Engine/"
)

// RegistrarConfig configures the engine registration with the daemon.
type RegistrarConfig struct {
	Component ComponentInfo

	// ExecByIBus is set when the daemon started the process from the
	// component XML. The registrar then claims the bus name instead of
	// registering a component.
	ExecByIBus bool

	PageSize    int
	Table       LookupTableOptions
	NewComposer ComposerFactory
	Observer    Observer

	// Panics receives panics raised while an engine serves a call. Nil
	// logs them.
	Panics PanicHandler
	Logger *slog.Logger
}

// Registrar connects to the IBus daemon, serves the engine factory and
// owns every engine object created through it.
type Registrar struct {
	cfg    RegistrarConfig
	logger *slog.Logger

	conn *dbus.Conn
	bus  busConn

	mu      sync.Mutex
	engines map[dbus.ObjectPath]*EngineObject
	nextID  int
	closed  bool
}

// NewRegistrar validates cfg. Nothing touches the bus until Start.
func NewRegistrar(cfg RegistrarConfig) (*Registrar, error) {
	if cfg.NewComposer == nil {
		return nil, errors.New("registrar: nil composer factory")
	}
	if err := cfg.Component.Validate(); err != nil {
		return nil, fmt.Errorf("registrar: %w", err)
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Registrar{
		cfg:     cfg,
		logger:  cfg.Logger,
		engines: make(map[dbus.ObjectPath]*EngineObject),
	}, nil
}

// Start connects to the IBus bus, exports the factory and announces the
// engine.
func (r *Registrar) Start(ctx context.Context) error {
	conn, err := connectIBus(ctx, r.logger, dbus.WithIncomingInterceptor(r.intercept))
	if err != nil {
		return err
	}
	r.conn = conn
	r.bus = conn

	f := &factory{r: r}
	if err := conn.Export(f, factoryPath, factoryInterface); err != nil {
		conn.Close()
		return fmt.Errorf("export factory: %w", err)
	}
	if err := conn.Export(factoryService{r: r}, factoryPath, ServiceInterface); err != nil {
		conn.Close()
		return fmt.Errorf("export factory service: %w", err)
	}
	exportIntrospection(conn, factoryPath, factoryInterface, f)

	if r.cfg.ExecByIBus {
		reply, err := conn.RequestName(r.cfg.Component.BusName, dbus.NameFlagDoNotQueue)
		if err != nil {
			conn.Close()
			return fmt.Errorf("request name %s: %w", r.cfg.Component.BusName, err)
		}
		if reply != dbus.RequestNameReplyPrimaryOwner {
			conn.Close()
			return fmt.Errorf("bus name %s already taken", r.cfg.Component.BusName)
		}
		r.logger.Info("bus name acquired", "name", r.cfg.Component.BusName)
		return nil
	}

	obj := conn.Object(ibusService, ibusPath)
	call := obj.CallWithContext(ctx, ibusService+".RegisterComponent", 0, ComponentVariant(r.cfg.Component))
	if call.Err != nil {
		conn.Close()
		return fmt.Errorf("register component: %w", call.Err)
	}
	r.logger.Info("component registered", "name", r.cfg.Component.BusName, "engine", r.cfg.Component.EngineName)
	return nil
}

// Run blocks until ctx is cancelled or the daemon drops the connection.
// A dropped connection is reported as an error.
func (r *Registrar) Run(ctx context.Context) error {
	if r.conn == nil {
		return errors.New("registrar not started")
	}
	select {
	case <-ctx.Done():
		return nil
	case <-r.conn.Context().Done():
		return errors.New("disconnected from IBus")
	}
}

// Close destroys every live engine and closes the connection.
func (r *Registrar) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	live := make([]*EngineObject, 0, len(r.engines))
	for _, e := range r.engines {
		live = append(live, e)
	}
	r.mu.Unlock()

	for _, e := range live {
		e.Destroy()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// Engines returns the number of live engine objects.
func (r *Registrar) Engines() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

func (r *Registrar) createEngine(name string) (*EngineObject, error) {
	if name != r.cfg.Component.EngineName {
		return nil, fmt.Errorf("unknown engine %q", name)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("registrar closed")
	}
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	path := dbus.ObjectPath(fmt.Sprintf("%s%d", enginePathPrefix, id))
	logger := r.logger.With("engine", string(path))
	host := &dbusHost{
		conn:     r.bus,
		path:     path,
		table:    r.cfg.Table,
		observer: r.cfg.Observer,
		logger:   logger,
	}
	session, err := NewSession(host, r.cfg.NewComposer,
		WithLogger(logger),
		WithID(fmt.Sprint(id)),
		WithPageSize(r.cfg.PageSize),
	)
	if err != nil {
		return nil, err
	}
	engine := &EngineObject{
		path:     path,
		session:  session,
		observer: r.cfg.Observer,
		panics:   r.cfg.Panics,
		calls:    newCallQueue(),
		logger:   logger,
	}
	host.onDestroy = func() { r.release(path) }

	calls := &engineCalls{e: engine}
	if err := r.bus.Export(calls, path, EngineInterface); err != nil {
		session.Destroy()
		return nil, fmt.Errorf("export engine: %w", err)
	}
	if err := r.bus.Export(engineService{engine: engine}, path, ServiceInterface); err != nil {
		session.Destroy()
		return nil, fmt.Errorf("export engine service: %w", err)
	}
	exportIntrospection(r.bus, path, EngineInterface, calls)

	r.mu.Lock()
	r.engines[path] = engine
	r.mu.Unlock()

	r.cfg.Observer.SessionOpened()
	logger.Info("engine created", "name", name)
	return engine, nil
}

// release unexports a destroyed engine. It runs from Session.Destroy with
// the engine lock held and must not call back into the engine.
func (r *Registrar) release(path dbus.ObjectPath) {
	r.mu.Lock()
	_, live := r.engines[path]
	delete(r.engines, path)
	r.mu.Unlock()

	for _, iface := range []string{EngineInterface, ServiceInterface, introspectInterface} {
		if err := r.bus.Export(nil, path, iface); err != nil {
			r.logger.Debug("unexport", "path", string(path), "interface", iface, "error", err)
		}
	}
	if live {
		r.cfg.Observer.SessionClosed()
	}
}

// factory serves org.freedesktop.IBus.Factory.
type factory struct {
	r *Registrar
}

// CreateEngine is called by the daemon once per input context.
func (f *factory) CreateEngine(name string) (dbus.ObjectPath, *dbus.Error) {
	engine, err := f.r.createEngine(name)
	if err != nil {
		f.r.logger.Warn("create engine", "name", name, "error", err)
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine", []interface{}{err.Error()})
	}
	return engine.Path(), nil
}

// factoryService serves org.freedesktop.IBus.Service on the factory.
type factoryService struct {
	r *Registrar
}

func (s factoryService) Destroy() *dbus.Error {
	s.r.logger.Info("factory destroyed by daemon")
	return nil
}

const introspectInterface = "org.freedesktop.DBus.Introspectable"

func exportIntrospection(bus busConn, path dbus.ObjectPath, iface string, v interface{}) {
	node := &introspect.Node{
		Name: string(path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: iface, Methods: introspect.Methods(v)},
		},
	}
	_ = bus.Export(introspect.NewIntrospectable(node), path, introspectInterface)
}

// connectIBus dials the IBus daemon's private bus, falling back to the
// session bus when no address can be found.
func connectIBus(ctx context.Context, logger *slog.Logger, opts ...dbus.ConnOption) (*dbus.Conn, error) {
	opts = append(opts, dbus.WithContext(ctx))
	addr, err := BusAddress()
	if err != nil {
		logger.Warn("IBus address not found, using session bus", "error", err)
		conn, err := dbus.ConnectSessionBus(opts...)
		if err != nil {
			return nil, fmt.Errorf("connect session bus: %w", err)
		}
		return conn, nil
	}
	conn, err := dbus.Connect(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	logger.Debug("connected to IBus", "address", addr)
	return conn, nil
}

// BusAddress finds the address of the running IBus daemon: IBUS_ADDRESS
// first, then the daemon's address file for this machine and display.
func BusAddress() (string, error) {
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		return addr, nil
	}
	machineID, err := readMachineID()
	if err != nil {
		return "", err
	}
	dir, err := ibusConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "bus", SocketFileName(machineID, os.Getenv("DISPLAY"), os.Getenv("WAYLAND_DISPLAY")))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read IBus address file: %w", err)
	}
	return ParseAddressFile(data)
}

// SocketFileName builds "<machine-id>-<host>-<display>" the way the
// daemon names its address file. An X11 display wins over Wayland.
func SocketFileName(machineID, display, waylandDisplay string) string {
	host, number := "unix", "0"
	switch {
	case display != "":
		h, rest, ok := strings.Cut(display, ":")
		if !ok {
			break
		}
		if h != "" {
			host = h
		}
		if n, _, _ := strings.Cut(rest, "."); n != "" {
			number = n
		}
	case waylandDisplay != "":
		number = waylandDisplay
	}
	return machineID + "-" + host + "-" + number
}

// ParseAddressFile extracts IBUS_ADDRESS from the daemon's address file.
func ParseAddressFile(data []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if v, ok := strings.CutPrefix(line, "IBUS_ADDRESS="); ok && v != "" {
			return v, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", errors.New("IBUS_ADDRESS not set in address file")
}

func readMachineID() (string, error) {
	for _, p := range []string{"/var/lib/dbus/machine-id", "/etc/machine-id"} {
		data, err := os.ReadFile(p)
		if err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id, nil
			}
		}
	}
	return "", errors.New("machine id not found")
}

func ibusConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "ibus"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ibus"), nil
}
