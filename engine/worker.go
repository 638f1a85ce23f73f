package engine

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bluepipe/bluepipe/control"
	"github.com/bluepipe/bluepipe/transport"
)

const (
	// wakeInterval bounds the readiness wait so control signals are
	// re-checked even with no I/O activity. It must stay strictly
	// below any externally imposed liveness interval.
	wakeInterval = 100 * time.Millisecond

	// pcmChunkSize is the local-audio read granularity.
	pcmChunkSize = 4096
)

// pipeline is one direction's transform step. process receives one
// chunk from the pump, or nil to flush staged data; drop discards
// staged and partial framer state. Local-side failures are handled
// (logged and skipped) inside process; a returned error is
// Bluetooth-side and fatal for the worker.
type pipeline interface {
	process(chunk []byte) error
	drop()
}

// pumped is one unit delivered by the reader pump. gen records the
// drop generation at read completion; a unit read before a Drop is
// stale and must never reach the wire.
type pumped struct {
	data []byte
	gen  uint32
	err  error
}

// Worker runs one direction of one connection.
type Worker struct {
	t   *transport.Transport
	dir transport.Direction
	ctl *control.Channel
	log *logrus.Entry

	pipe pipeline

	// pull performs one blocking source read; local reports whether
	// the source is the local audio path (transient-error policy)
	// rather than the Bluetooth channel (link-loss policy).
	pull  func() ([]byte, error)
	local bool

	// closeSource unblocks the pump; closeSink additionally cuts the
	// opposite endpoint on a forced stop.
	closeSource func()
	closeSink   func()

	data     chan pumped
	pumpDone chan struct{}
	pumpQuit chan struct{}
	done     chan struct{}

	// gen invalidates in-flight pump units on Drop; gate holds the
	// pump off the source descriptor while transfer is suspended.
	gen    atomic.Uint32
	gateMu sync.Mutex
	gate   chan struct{}

	lastAlive atomic.Int64
	err       error
}

func newWorker(t *transport.Transport, dir transport.Direction) *Worker {
	w := &Worker{
		t:   t,
		dir: dir,
		ctl: control.NewChannel(),
		log: t.Log().WithField("direction", dir.String()),

		data:     make(chan pumped, 1),
		pumpDone: make(chan struct{}),
		pumpQuit: make(chan struct{}),
		done:     make(chan struct{}),

		gate: make(chan struct{}),
	}
	close(w.gate) // running: the source is readable
	return w
}

// sourceGate returns the channel the pump waits on before each
// source read. It is closed while the worker accepts input and
// swapped for an open one while suspended, so a paused worker issues
// no further descriptor reads.
func (w *Worker) sourceGate() <-chan struct{} {
	w.gateMu.Lock()
	defer w.gateMu.Unlock()
	return w.gate
}

func (w *Worker) holdSource() {
	w.gateMu.Lock()
	w.gate = make(chan struct{})
	w.gateMu.Unlock()
}

func (w *Worker) releaseSource() {
	w.gateMu.Lock()
	select {
	case <-w.gate:
	default:
		close(w.gate)
	}
	w.gateMu.Unlock()
}

// start claims the channel, registers the signal channel and spawns
// the goroutines. The worker owns one connection reference until it
// exits.
func (w *Worker) start() error {
	w.t.Ref()
	if err := w.t.Acquire(w.dir); err != nil {
		w.t.Unref()
		return err
	}
	w.t.AttachSignal(w.dir, w.ctl)
	w.t.SetState(transport.StateActive)
	w.lastAlive.Store(time.Now().UnixNano())

	go w.pump()
	go w.main()
	w.log.Info("I/O worker started")
	return nil
}

// pump performs the blocking source reads and forwards chunks into a
// capacity-one channel, preserving arrival order and providing
// backpressure. Each read waits on the source gate, so a suspended
// worker issues no descriptor reads. Local transient read errors are
// logged and retried; a closed source or any Bluetooth-side error
// ends the pump.
func (w *Worker) pump() {
	defer close(w.pumpDone)
	for {
		select {
		case <-w.sourceGate():
		case <-w.pumpQuit:
			return
		}

		chunk, err := w.pull()
		if err != nil {
			if w.local && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				w.log.WithError(err).Warn("Local audio read failed, skipping iteration")
				time.Sleep(wakeInterval)
				continue
			}
			w.data <- pumped{err: err}
			return
		}
		// Stamp at read completion: a Drop arriving after this point
		// makes the unit stale before the worker can process it.
		w.data <- pumped{data: chunk, gen: w.gen.Load()}
	}
}

// main is the worker loop: bounded wait, transform, transfer, observe
// signals. The deferred cleanup is the mandatory release path and
// runs on every exit, normal, errored or forced.
func (w *Worker) main() {
	defer close(w.done)
	defer w.cleanup()

	ticker := time.NewTicker(wakeInterval)
	defer ticker.Stop()

	paused := false
	for {
		if quit := w.observe(w.ctl.Collect(), &paused); quit {
			return
		}
		if paused {
			select {
			case <-w.ctl.Wake():
			case <-ticker.C:
			}
			continue
		}

		select {
		case <-w.ctl.Wake():
			// Signals are collected at the top of the loop.
		case <-ticker.C:
			// Liveness re-check with no data.
		case p := <-w.data:
			if p.err != nil {
				w.sourceGone(p.err)
				return
			}
			if p.gen != w.gen.Load() {
				w.log.Debug("Discarded unit read before drop")
				continue
			}
			if err := w.pipe.process(p.data); err != nil {
				w.err = err
				w.log.WithError(err).Error("Bluetooth link error, worker exiting")
				return
			}
		}
	}
}

// observe applies a collected signal set. Distinct kinds are all
// visible in one set; Drop is applied after the pause/resume
// adjustment so it affects the state the stream settles into.
func (w *Worker) observe(sig control.Signal, paused *bool) (quit bool) {
	if sig == 0 {
		return false
	}
	w.log.WithField("signals", sig.String()).Debug("Control signals observed")

	if sig.Has(control.Ping) {
		w.lastAlive.Store(time.Now().UnixNano())
	}
	if sig.Has(control.Pause) && !sig.Has(control.Resume) && !*paused {
		w.holdSource()
		w.t.SetState(transport.StatePausing)
		if err := w.pipe.process(nil); err != nil {
			w.err = err
			w.log.WithError(err).Error("Bluetooth link error during pause flush")
			return true
		}
		*paused = true
		w.t.SetState(transport.StateSuspended)
	}
	if sig.Has(control.Resume) && *paused {
		*paused = false
		w.releaseSource()
		w.t.SetState(transport.StateActive)
	}
	if sig.Has(control.Drop) {
		// Invalidate units read before this point, discard anything
		// already parked, then clear the framer's staged state. A
		// unit the pump is still delivering arrives stale and is
		// discarded by the generation check.
		w.gen.Add(1)
		select {
		case <-w.data:
		default:
		}
		w.pipe.drop()
		w.log.Debug("Buffered data dropped")
	}
	return sig.Has(control.Terminate)
}

// sourceGone handles the pump's terminal error under the side-aware
// policy: local end-of-stream is a graceful exit, anything on the
// Bluetooth side is link loss.
func (w *Worker) sourceGone(err error) {
	if w.local {
		w.log.Debug("Local audio stream ended, worker exiting")
		return
	}
	if !errors.Is(err, io.EOF) {
		w.err = err
	}
	w.log.WithError(err).Info("Bluetooth link closed, worker exiting")
}

// cleanup is the exactly-once release path: detach the signal
// channel, relinquish the Bluetooth channel claim, mark the
// connection idle when no direction remains, unblock the pump and
// drop the worker's reference.
func (w *Worker) cleanup() {
	w.t.DetachSignal(w.dir)
	w.t.ReleaseChannel(w.dir)
	if !w.t.HeldAny() {
		w.t.SetState(transport.StateIdle)
	}

	close(w.pumpQuit)
	if w.closeSource != nil {
		w.closeSource()
	}
	// Drain so a pump blocked on delivery can observe the close.
	go func() {
		for range w.data {
		}
	}()
	<-w.pumpDone
	close(w.data)

	w.log.Info("I/O worker exited")
	w.t.Unref()
}

// Signal delivers a control signal to this worker.
func (w *Worker) Signal(sig control.Signal) {
	w.ctl.Send(sig)
}

// Done is closed when the worker has fully exited, release path
// included.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err returns the worker's terminal error, nil for a clean exit.
// Valid after Done is closed.
func (w *Worker) Err() error {
	return w.err
}

// Direction returns the worker's direction.
func (w *Worker) Direction() transport.Direction {
	return w.dir
}

// LastAlive returns the time of the worker's start or last observed
// Ping.
func (w *Worker) LastAlive() time.Time {
	return time.Unix(0, w.lastAlive.Load())
}

// Stop terminates the worker cooperatively and joins it within
// timeout. If the cooperative path stalls, the fallback closes the
// worker's endpoints to cut any blocked transfer and waits once
// more; the release path runs in every case.
func (w *Worker) Stop(timeout time.Duration) error {
	w.ctl.Send(control.Terminate)
	select {
	case <-w.done:
		return w.err
	case <-time.After(timeout):
	}

	w.log.Warn("Cooperative stop timed out, forcing endpoint close")
	if w.closeSink != nil {
		w.closeSink()
	}
	if w.closeSource != nil {
		w.closeSource()
	}
	select {
	case <-w.done:
		return w.err
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// Start binds and starts the I/O workers for the connection's
// profile: one encoding worker for an A2DP source, one decoding
// worker for an A2DP sink, and a worker per direction for voice. On
// any startup failure already-started workers are stopped and no
// worker remains bound.
func Start(t *transport.Transport) ([]*Worker, error) {
	var builders []func(*transport.Transport) (*Worker, error)
	switch t.Profile {
	case transport.A2DPSource:
		builders = []func(*transport.Transport) (*Worker, error){newStreamEncodeWorker}
	case transport.A2DPSink:
		builders = []func(*transport.Transport) (*Worker, error){newStreamDecodeWorker}
	case transport.SCOVoice:
		builders = []func(*transport.Transport) (*Worker, error){newVoiceOutboundWorker, newVoiceInboundWorker}
	default:
		return nil, ErrUnsupportedProfile
	}

	var workers []*Worker
	for _, build := range builders {
		w, err := build(t)
		if err == nil {
			err = w.start()
		}
		if err != nil {
			for _, started := range workers {
				_ = started.Stop(time.Second)
			}
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// StopAll stops every worker and returns the first error observed.
func StopAll(workers []*Worker, timeout time.Duration) error {
	var first error
	for _, w := range workers {
		if err := w.Stop(timeout); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// closeOnce adapts a closer into an exactly-once close function.
func closeOnce(c io.Closer) func() {
	var once sync.Once
	return func() {
		once.Do(func() { _ = c.Close() })
	}
}
