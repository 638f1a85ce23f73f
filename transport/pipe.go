package transport

import (
	"io"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// NewFramePipe creates a connected pair of in-memory packet
// descriptors preserving message boundaries, the loopback equivalent
// of the seqpacket socket a live adapter hands over. capacity is the
// number of frames buffered per direction before writers block.
func NewFramePipe(capacity int) (FrameRW, FrameRW) {
	if capacity < 1 {
		capacity = 1
	}
	ab := make(chan []byte, capacity)
	ba := make(chan []byte, capacity)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &framePipe{in: ba, out: ab, done: done, once: once}
	b := &framePipe{in: ab, out: ba, done: done, once: once}
	return a, b
}

type framePipe struct {
	in   chan []byte
	out  chan []byte
	done chan struct{}
	once *sync.Once
}

func (p *framePipe) ReadFrame(buf []byte) (int, error) {
	select {
	case frame := <-p.in:
		if len(frame) > len(buf) {
			return 0, io.ErrShortBuffer
		}
		return copy(buf, frame), nil
	case <-p.done:
		// Drain frames that raced with the close.
		select {
		case frame := <-p.in:
			if len(frame) > len(buf) {
				return 0, io.ErrShortBuffer
			}
			return copy(buf, frame), nil
		default:
			return 0, io.EOF
		}
	}
}

func (p *framePipe) WriteFrame(frame []byte) (int, error) {
	out := make([]byte, len(frame))
	copy(out, frame)
	select {
	case p.out <- out:
		return len(frame), nil
	case <-p.done:
		return 0, io.ErrClosedPipe
	}
}

// Close tears down both directions, the same visibility a socketpair
// close has for the peer.
func (p *framePipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// NewBytePipe creates a connected pair of in-memory byte-stream
// descriptors, the loopback equivalent of the local PCM socket. Reads
// block until data or close; writes block when the peer lags by more
// than capacity bytes.
func NewBytePipe(capacity int) (io.ReadWriteCloser, io.ReadWriteCloser) {
	if capacity < 1 {
		capacity = 1
	}
	ab := ringbuffer.New(capacity).SetBlocking(true)
	ba := ringbuffer.New(capacity).SetBlocking(true)
	return &bytePipe{r: ba, w: ab}, &bytePipe{r: ab, w: ba}
}

type bytePipe struct {
	r *ringbuffer.RingBuffer
	w *ringbuffer.RingBuffer
}

func (p *bytePipe) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *bytePipe) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

func (p *bytePipe) Close() error {
	p.w.CloseWriter()
	p.r.CloseWithError(io.ErrClosedPipe)
	return nil
}
