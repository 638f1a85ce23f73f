package engine

import (
	"fmt"
	"io"

	"github.com/bluepipe/bluepipe/audio"
	"github.com/bluepipe/bluepipe/codec"
	"github.com/bluepipe/bluepipe/staging"
	"github.com/bluepipe/bluepipe/transport"
)

// streamEncode is the A2DP source pipeline: local PCM in, RTP-wrapped
// codec frames out.
type streamEncode struct {
	w   *Worker
	enc codec.StreamEncoder
	buf *staging.Buffer
}

func newStreamEncodeWorker(t *transport.Transport) (*Worker, error) {
	if t.PCM == nil || t.BT == nil {
		return nil, transport.ErrNoEndpoint
	}
	if t.MTUWrite <= 0 {
		return nil, transport.ErrBadMTU
	}
	enc, err := codec.NewStreamEncoder(t.Config, t.MTUWrite)
	if err != nil {
		return nil, err
	}

	w := newWorker(t, transport.DirOutbound)
	w.pipe = &streamEncode{w: w, enc: enc, buf: staging.New(4 * pcmChunkSize)}
	w.local = true
	w.pull = pcmPull(t.PCM)
	w.closeSource = closeOnce(t.PCM)
	w.closeSink = closeOnce(t.BT)
	return w, nil
}

func (p *streamEncode) process(chunk []byte) error {
	if len(chunk) > 0 {
		copy(p.buf.Reserve(len(chunk)), chunk)
		p.buf.Commit(len(chunk))
	}

	pcm := audio.Samples(p.buf.Bytes())
	frames, consumed, err := p.enc.Encode(pcm)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	for _, frame := range frames {
		n, err := p.w.t.BT.WriteFrame(frame)
		if err != nil {
			return fmt.Errorf("bluetooth write: %w", err)
		}
		if n != len(frame) {
			return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(frame))
		}
	}
	p.buf.Consume(consumed * audio.BytesPerSample)
	return nil
}

func (p *streamEncode) drop() {
	p.buf.Reset()
}

// streamDecode is the A2DP sink pipeline: wire frames in, local PCM
// out. Local write failures are skipped so a stalled local sink never
// tears down the Bluetooth link.
type streamDecode struct {
	w   *Worker
	dec codec.StreamDecoder
}

func newStreamDecodeWorker(t *transport.Transport) (*Worker, error) {
	if t.PCM == nil || t.BT == nil {
		return nil, transport.ErrNoEndpoint
	}
	if t.MTURead <= 0 {
		return nil, transport.ErrBadMTU
	}
	dec, err := codec.NewStreamDecoder(t.Config, t.MTURead)
	if err != nil {
		return nil, err
	}

	w := newWorker(t, transport.DirInbound)
	w.pipe = &streamDecode{w: w, dec: dec}
	w.local = false
	w.pull = framePull(t.BT, t.MTURead)
	w.closeSource = closeOnce(t.BT)
	w.closeSink = closeOnce(t.PCM)
	return w, nil
}

func (p *streamDecode) process(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	pcm, err := p.dec.Decode(frame)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if len(pcm) == 0 {
		return nil
	}
	if _, err := p.w.t.PCM.Write(audio.Bytes(pcm)); err != nil {
		p.w.log.WithError(err).Warn("Local audio write failed, dropping decoded samples")
	}
	return nil
}

func (p *streamDecode) drop() {
	if r, ok := p.dec.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// pcmPull returns a blocking chunk read from the local PCM stream.
func pcmPull(r io.Reader) func() ([]byte, error) {
	return func() ([]byte, error) {
		buf := make([]byte, pcmChunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
}

// framePull returns a blocking single-frame read from the Bluetooth
// channel.
func framePull(rw transport.FrameRW, mtu int) func() ([]byte, error) {
	return func() ([]byte, error) {
		buf := make([]byte, mtu)
		n, err := rw.ReadFrame(buf)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
}
