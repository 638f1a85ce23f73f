package codec

import "fmt"

// kernel is the seam to the opaque codec library. It owns exactly the
// contract the framers rely on: a fixed number of PCM samples in, a
// fixed number of encoded bytes out, and the inverse. The frame-size
// arithmetic is the codec's real one; the bitstream itself is a
// linear quantizer that spends the frame's payload bits evenly across
// the window's samples, so encode followed by decode preserves the
// sample count and approximates the signal within the bit budget.
type kernel struct {
	samples int    // PCM samples (all channels) per codec frame
	frame   int    // encoded bytes per codec frame
	header  []byte // leading frame magic, verified on decode
	bits    uint   // quantizer bits per sample
}

func newKernel(samples, frame int, header []byte) (kernel, error) {
	payload := frame - len(header)
	if samples <= 0 || payload <= 0 {
		return kernel{}, fmt.Errorf("%w: %d samples into %d payload bytes", ErrUnsupportedConfig, samples, payload)
	}
	bits := uint(payload * 8 / samples)
	if bits < 1 {
		return kernel{}, fmt.Errorf("%w: frame of %d bytes cannot carry %d samples", ErrUnsupportedConfig, frame, samples)
	}
	if bits > 16 {
		bits = 16
	}
	return kernel{samples: samples, frame: frame, header: header, bits: bits}, nil
}

// codeSize returns the PCM bytes consumed per codec frame.
func (k kernel) codeSize() int {
	return k.samples * 2
}

// encode writes one codec frame into dst. len(pcm) must be exactly
// k.samples and len(dst) at least k.frame.
func (k kernel) encode(pcm []int16, dst []byte) error {
	if len(pcm) != k.samples {
		return fmt.Errorf("%w: got %d samples, frame takes %d", ErrShortBuffer, len(pcm), k.samples)
	}
	if len(dst) < k.frame {
		return fmt.Errorf("encode buffer too small: %d < %d", len(dst), k.frame)
	}
	for i := range dst[:k.frame] {
		dst[i] = 0
	}
	copy(dst, k.header)
	w := bitWriter{buf: dst[len(k.header):k.frame]}
	for _, s := range pcm {
		w.write(uint16(s)>>(16-k.bits), k.bits)
	}
	return nil
}

// decode reconstructs one codec frame's PCM window from src.
func (k kernel) decode(src []byte, dst []int16) error {
	if len(src) < k.frame {
		return fmt.Errorf("%w: frame truncated to %d of %d bytes", ErrBadFrame, len(src), k.frame)
	}
	for i, h := range k.header {
		if src[i] != h {
			return fmt.Errorf("%w: bad frame magic at byte %d", ErrBadFrame, i)
		}
	}
	if len(dst) < k.samples {
		return fmt.Errorf("decode buffer too small: %d < %d", len(dst), k.samples)
	}
	r := bitReader{buf: src[len(k.header):k.frame]}
	for i := 0; i < k.samples; i++ {
		dst[i] = int16(r.read(k.bits) << (16 - k.bits))
	}
	return nil
}

// bitWriter packs values MSB-first.
type bitWriter struct {
	buf  []byte
	pos  int
	fill uint
}

func (w *bitWriter) write(v uint16, n uint) {
	for n > 0 {
		if w.pos >= len(w.buf) {
			return
		}
		room := 8 - w.fill
		take := n
		if take > room {
			take = room
		}
		chunk := byte(v>>(n-take)) & (1<<take - 1)
		w.buf[w.pos] |= chunk << (room - take)
		w.fill += take
		n -= take
		if w.fill == 8 {
			w.pos++
			w.fill = 0
		}
	}
}

type bitReader struct {
	buf  []byte
	pos  int
	fill uint
}

func (r *bitReader) read(n uint) uint16 {
	var v uint16
	for n > 0 {
		if r.pos >= len(r.buf) {
			return v << n
		}
		avail := 8 - r.fill
		take := n
		if take > avail {
			take = avail
		}
		chunk := (r.buf[r.pos] >> (avail - take)) & (1<<take - 1)
		v = v<<take | uint16(chunk)
		r.fill += take
		n -= take
		if r.fill == 8 {
			r.pos++
			r.fill = 0
		}
	}
	return v
}
