package engine

import (
	"fmt"

	"github.com/bluepipe/bluepipe/audio"
	"github.com/bluepipe/bluepipe/codec"
	"github.com/bluepipe/bluepipe/staging"
	"github.com/bluepipe/bluepipe/transport"
)

// voiceOutbound packs speaker-direction PCM into fixed-size
// synchronous frames. Each voice connection runs this alongside a
// voiceInbound worker; the two pipelines are independent and share
// only the connection's state and reference count.
type voiceOutbound struct {
	w   *Worker
	vc  codec.VoiceCodec
	buf *staging.Buffer
}

func newVoiceOutboundWorker(t *transport.Transport) (*Worker, error) {
	if t.Spk == nil || t.BT == nil {
		return nil, transport.ErrNoEndpoint
	}
	if t.MTUWrite <= 0 {
		return nil, transport.ErrBadMTU
	}
	vc, err := codec.NewVoiceCodec(t.Config, t.MTUWrite)
	if err != nil {
		return nil, err
	}

	w := newWorker(t, transport.DirOutbound)
	w.pipe = &voiceOutbound{w: w, vc: vc, buf: staging.New(4 * pcmChunkSize)}
	w.local = true
	w.pull = pcmPull(t.Spk)
	w.closeSource = closeOnce(t.Spk)
	w.closeSink = closeOnce(t.BT)
	return w, nil
}

func (p *voiceOutbound) process(chunk []byte) error {
	if len(chunk) > 0 {
		copy(p.buf.Reserve(len(chunk)), chunk)
		p.buf.Commit(len(chunk))
	}

	for {
		pcm := audio.Samples(p.buf.Bytes())
		frame, consumed, err := p.vc.Encode(pcm)
		if err != nil {
			return fmt.Errorf("voice encode: %w", err)
		}
		p.buf.Consume(consumed * audio.BytesPerSample)
		if frame == nil {
			return nil
		}
		n, err := p.w.t.BT.WriteFrame(frame)
		if err != nil {
			return fmt.Errorf("sco write: %w", err)
		}
		if n != len(frame) {
			return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(frame))
		}
	}
}

func (p *voiceOutbound) drop() {
	p.buf.Reset()
	p.vc.Reset()
}

// voiceInbound unpacks synchronous frames into microphone-direction
// PCM.
type voiceInbound struct {
	w  *Worker
	vc codec.VoiceCodec
}

func newVoiceInboundWorker(t *transport.Transport) (*Worker, error) {
	if t.Mic == nil || t.BT == nil {
		return nil, transport.ErrNoEndpoint
	}
	if t.MTURead <= 0 {
		return nil, transport.ErrBadMTU
	}
	vc, err := codec.NewVoiceCodec(t.Config, t.MTURead)
	if err != nil {
		return nil, err
	}

	w := newWorker(t, transport.DirInbound)
	w.pipe = &voiceInbound{w: w, vc: vc}
	w.local = false
	w.pull = framePull(t.BT, t.MTURead)
	w.closeSource = closeOnce(t.BT)
	w.closeSink = closeOnce(t.Mic)
	return w, nil
}

func (p *voiceInbound) process(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	pcm, err := p.vc.Decode(frame)
	if err != nil {
		return fmt.Errorf("voice decode: %w", err)
	}
	if len(pcm) == 0 {
		return nil
	}
	if _, err := p.w.t.Mic.Write(audio.Bytes(pcm)); err != nil {
		p.w.log.WithError(err).Warn("Local audio write failed, dropping decoded samples")
	}
	return nil
}

func (p *voiceInbound) drop() {
	p.vc.Reset()
}
