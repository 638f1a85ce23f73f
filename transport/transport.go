package transport

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bluepipe/bluepipe/codec"
	"github.com/bluepipe/bluepipe/control"
)

// Profile identifies the Bluetooth audio profile of a connection.
type Profile uint8

const (
	// A2DPSource streams encoded audio toward the remote device.
	A2DPSource Profile = iota + 1
	// A2DPSink receives and decodes streamed audio.
	A2DPSink
	// SCOVoice is full-duplex HSP/HFP call audio over the
	// synchronous channel.
	SCOVoice
)

// String returns the profile name.
func (p Profile) String() string {
	switch p {
	case A2DPSource:
		return "a2dp-source"
	case A2DPSink:
		return "a2dp-sink"
	case SCOVoice:
		return "sco"
	}
	return fmt.Sprintf("profile(%d)", uint8(p))
}

// State is the lifecycle state of a connection.
type State uint32

const (
	// StateIdle means no worker is bound.
	StateIdle State = iota
	// StateActive means at least one worker is transferring data.
	StateActive
	// StatePausing means a Pause signal was observed and the stream
	// is being flushed before it stops.
	StatePausing
	// StateSuspended means transfer is halted with the channel held.
	StateSuspended
	// StateReleased is terminal; the Transport cannot be reused.
	StateReleased
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePausing:
		return "pausing"
	case StateSuspended:
		return "suspended"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

// Direction identifies one data direction of a connection.
type Direction uint8

const (
	// DirOutbound moves local PCM toward the Bluetooth channel
	// (the encoding direction).
	DirOutbound Direction = iota
	// DirInbound moves Bluetooth frames toward the local PCM path
	// (the decoding direction).
	DirInbound

	directionCount
)

// String returns the direction name.
func (d Direction) String() string {
	if d == DirOutbound {
		return "outbound"
	}
	return "inbound"
}

// FrameRW is the packet-oriented Bluetooth channel descriptor: each
// read or write moves exactly one wire frame of at most the
// negotiated MTU.
type FrameRW interface {
	ReadFrame(buf []byte) (int, error)
	WriteFrame(frame []byte) (int, error)
	Close() error
}

// Hooks are the externally supplied callbacks serializing exclusive
// use of the Bluetooth channel across worker lifetimes. Acquire runs
// when the first direction goes active; Release when the last one
// stops. A failing Acquire aborts worker startup.
type Hooks struct {
	Acquire func(*Transport) error
	Release func(*Transport)
}

// Transport is one Bluetooth audio connection. It is created by the
// registry and borrowed by the I/O engine for the duration of an
// active transfer; the reference count decides destruction.
type Transport struct {
	ID      uuid.UUID
	Addr    string
	Profile Profile
	Config  codec.Config

	MTURead  int
	MTUWrite int

	// BT is the Bluetooth channel descriptor.
	BT FrameRW
	// PCM is the local audio path of an A2DP connection.
	PCM io.ReadWriteCloser
	// Spk and Mic are the local audio paths of a voice connection:
	// Spk feeds the outbound direction, Mic drains the inbound one.
	Spk io.ReadWriteCloser
	Mic io.ReadWriteCloser

	hooks Hooks
	refs  atomic.Int32

	mu      sync.Mutex
	state   State
	held    [directionCount]bool
	holders int
	signals [directionCount]*control.Channel
	onState func(*Transport, State)
	destroy func(*Transport)
	log     *logrus.Entry
}

// New creates a Transport for the given profile and negotiated codec
// configuration. Configuration errors are fatal here, never
// mid-stream.
func New(profile Profile, addr string, cfg codec.Config, hooks Hooks) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	voice := cfg.Codec.Voice()
	if (profile == SCOVoice) != voice {
		return nil, fmt.Errorf("%w: %s on %s", codec.ErrProfileMismatch, cfg.Codec, profile)
	}

	t := &Transport{
		ID:      uuid.New(),
		Addr:    addr,
		Profile: profile,
		Config:  cfg,
		hooks:   hooks,
		state:   StateIdle,
	}
	t.refs.Store(1)
	t.log = logrus.WithFields(logrus.Fields{
		"connection": t.ID.String(),
		"device":     addr,
		"profile":    profile.String(),
		"codec":      cfg.Codec.String(),
	})
	t.log.Debug("Connection created")
	return t, nil
}

// Log returns the connection-scoped log entry.
func (t *Transport) Log() *logrus.Entry {
	return t.log
}

// Ref takes an additional reference and returns the same handle, so
// a worker start reads naturally as engine.Start(t.Ref()).
func (t *Transport) Ref() *Transport {
	t.refs.Add(1)
	return t
}

// Unref drops one reference. The final release to zero is the only
// destruction trigger: endpoint descriptors are closed, the state
// becomes released, and the registry's destroy callback runs once.
func (t *Transport) Unref() {
	left := t.refs.Add(-1)
	if left > 0 {
		return
	}
	if left < 0 {
		panic("transport: reference count underflow")
	}

	t.mu.Lock()
	t.state = StateReleased
	notify := t.onState
	destroy := t.destroy
	t.destroy = nil
	t.mu.Unlock()

	for _, c := range []io.Closer{t.BT, t.PCM, t.Spk, t.Mic} {
		if c != nil {
			_ = c.Close()
		}
	}
	t.log.Debug("Connection destroyed")
	if notify != nil {
		notify(t, StateReleased)
	}
	if destroy != nil {
		destroy(t)
	}
}

// Refs returns the current reference count. Intended for tests and
// diagnostics.
func (t *Transport) Refs() int32 {
	return t.refs.Load()
}

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState moves the connection to s and notifies the registry
// observer. Transitions out of the terminal released condition are
// ignored.
func (t *Transport) SetState(s State) {
	t.mu.Lock()
	if t.state == StateReleased {
		t.mu.Unlock()
		return
	}
	old := t.state
	t.state = s
	notify := t.onState
	t.mu.Unlock()

	if old != s {
		t.log.WithFields(logrus.Fields{
			"from": old.String(),
			"to":   s.String(),
		}).Debug("Connection state changed")
		if notify != nil {
			notify(t, s)
		}
	}
}

// OnStateChange installs the registry's state observer.
func (t *Transport) OnStateChange(fn func(*Transport, State)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

// OnDestroy installs the registry's destruction callback, invoked
// exactly once when the reference count reaches zero.
func (t *Transport) OnDestroy(fn func(*Transport)) {
	t.mu.Lock()
	t.destroy = fn
	t.mu.Unlock()
}

// Acquire claims exclusive use of the Bluetooth channel for one
// direction. A second claim for the same direction fails with
// ErrChannelHeld and must prevent worker startup. The external
// Acquire hook runs when the first direction comes up; its failure
// rolls the claim back.
func (t *Transport) Acquire(dir Direction) error {
	t.mu.Lock()
	if t.state == StateReleased {
		t.mu.Unlock()
		return ErrReleased
	}
	if t.held[dir] {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s direction", ErrChannelHeld, dir)
	}
	t.held[dir] = true
	t.holders++
	first := t.holders == 1
	t.mu.Unlock()

	if first && t.hooks.Acquire != nil {
		if err := t.hooks.Acquire(t); err != nil {
			t.mu.Lock()
			t.held[dir] = false
			t.holders--
			t.mu.Unlock()
			return fmt.Errorf("channel acquire failed: %w", err)
		}
	}
	t.log.WithField("direction", dir.String()).Debug("Bluetooth channel acquired")
	return nil
}

// ReleaseChannel relinquishes one direction's claim. The external
// Release hook runs when the last direction goes down. Releasing an
// unheld direction is a no-op, which lets worker cleanup paths run
// unconditionally.
func (t *Transport) ReleaseChannel(dir Direction) {
	t.mu.Lock()
	if !t.held[dir] {
		t.mu.Unlock()
		return
	}
	t.held[dir] = false
	t.holders--
	last := t.holders == 0
	t.mu.Unlock()

	t.log.WithField("direction", dir.String()).Debug("Bluetooth channel released")
	if last && t.hooks.Release != nil {
		t.hooks.Release(t)
	}
}

// HeldAny reports whether any direction currently holds the
// Bluetooth channel.
func (t *Transport) HeldAny() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.holders > 0
}

// AttachSignal registers a worker's control channel for one
// direction so Signal can reach it.
func (t *Transport) AttachSignal(dir Direction, ch *control.Channel) {
	t.mu.Lock()
	t.signals[dir] = ch
	t.mu.Unlock()
}

// DetachSignal removes a worker's control channel.
func (t *Transport) DetachSignal(dir Direction) {
	t.mu.Lock()
	t.signals[dir] = nil
	t.mu.Unlock()
}

// Signal delivers a control signal to all active workers of the
// connection. Sending to a connection with no active worker is a
// no-op.
func (t *Transport) Signal(sig control.Signal) {
	t.mu.Lock()
	channels := t.signals
	t.mu.Unlock()

	delivered := false
	for _, ch := range channels {
		if ch != nil {
			ch.Send(sig)
			delivered = true
		}
	}
	if !delivered {
		t.log.WithField("signal", sig.String()).Debug("Signal with no active worker, ignored")
	}
}
