package bluepipe

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bluepipe/bluepipe/codec"
	"github.com/bluepipe/bluepipe/engine"
	"github.com/bluepipe/bluepipe/transport"
)

var (
	// ErrNotFound indicates an unknown connection ID.
	ErrNotFound = errors.New("bluepipe: connection not found")
	// ErrAlreadyStarted indicates workers are already running for
	// the connection.
	ErrAlreadyStarted = errors.New("bluepipe: connection already started")
)

// StateFunc observes connection state transitions.
type StateFunc func(c *Connection, s transport.State)

// Registry tracks every live connection of the daemon, keyed by
// connection ID. It is the in-process owner of connection lifecycle:
// profile registration hands out Connections, state transitions fan
// out to the registered observer, and Destroy tears a connection
// down whatever state it is in.
type Registry struct {
	mu      sync.RWMutex
	conns   map[uuid.UUID]*Connection
	hooks   transport.Hooks
	onState StateFunc
	log     *logrus.Entry
}

// NewRegistry creates an empty registry. The hooks apply to every
// connection it creates; they fire on the first channel acquisition
// and the last release of each connection epoch.
func NewRegistry(hooks transport.Hooks) *Registry {
	return &Registry{
		conns: make(map[uuid.UUID]*Connection),
		hooks: hooks,
		log:   logrus.WithField("component", "registry"),
	}
}

// OnStateChange registers the observer for state transitions of all
// connections. Pass nil to remove it.
func (r *Registry) OnStateChange(fn StateFunc) {
	r.mu.Lock()
	r.onState = fn
	r.mu.Unlock()
}

// Create registers a new connection for the negotiated profile and
// codec configuration. The caller wires the endpoints and MTUs on
// the returned connection's Transport before calling Start.
func (r *Registry) Create(profile transport.Profile, addr string, cfg codec.Config) (*Connection, error) {
	t, err := transport.New(profile, addr, cfg, r.hooks)
	if err != nil {
		return nil, err
	}
	c := &Connection{Transport: t, registry: r}

	t.OnStateChange(func(_ *transport.Transport, s transport.State) {
		r.mu.RLock()
		fn := r.onState
		r.mu.RUnlock()
		if fn != nil {
			fn(c, s)
		}
	})
	t.OnDestroy(func(*transport.Transport) {
		r.mu.Lock()
		delete(r.conns, t.ID)
		r.mu.Unlock()
	})

	r.mu.Lock()
	r.conns[t.ID] = c
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"id":      t.ID,
		"addr":    addr,
		"profile": profile.String(),
		"codec":   cfg.Codec.String(),
	}).Info("Connection registered")
	return c, nil
}

// Lookup returns the connection for the given ID.
func (r *Registry) Lookup(id uuid.UUID) (*Connection, error) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// Connections returns a snapshot of all live connections.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Destroy stops the connection's workers and drops the registry's
// reference. The connection disappears from Lookup once the last
// reference is gone.
func (r *Registry) Destroy(id uuid.UUID, timeout time.Duration) error {
	c, err := r.Lookup(id)
	if err != nil {
		return err
	}
	stopErr := c.Stop(timeout)
	c.Unref()
	return stopErr
}

// DestroyAll tears down every connection and returns the first stop
// error observed.
func (r *Registry) DestroyAll(timeout time.Duration) error {
	var first error
	for _, c := range r.Connections() {
		if err := r.Destroy(c.ID, timeout); err != nil && !errors.Is(err, ErrNotFound) && first == nil {
			first = err
		}
	}
	return first
}

// Connection is one registered Bluetooth audio connection: the shared
// Transport plus the I/O workers currently serving it.
type Connection struct {
	*transport.Transport

	registry *Registry

	wmu     sync.Mutex
	workers []*engine.Worker
}

// Start launches the I/O workers for the connection's profile. The
// endpoints and MTUs must be wired before the call.
func (c *Connection) Start() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if len(c.workers) > 0 {
		return ErrAlreadyStarted
	}
	workers, err := engine.Start(c.Transport)
	if err != nil {
		return err
	}
	c.workers = workers
	return nil
}

// Stop terminates the connection's workers, escalating from the
// cooperative terminate signal to forced descriptor closure after
// the timeout. Stopping an idle connection is a no-op.
func (c *Connection) Stop(timeout time.Duration) error {
	c.wmu.Lock()
	workers := c.workers
	c.workers = nil
	c.wmu.Unlock()
	return engine.StopAll(workers, timeout)
}

// Workers returns the running workers, nil when idle.
func (c *Connection) Workers() []*engine.Worker {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.workers
}
