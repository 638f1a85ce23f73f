package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// AAC framing constants. One access unit covers 1024 samples per
// channel; its encoded size follows from the negotiated bitrate. An
// access unit larger than the write MTU is fragmented across
// consecutive wire frames, with the envelope marker bit set on the
// final fragment.
const aacSamplesPerChannel = 1024

var aacFrameHeader = []byte{0xFF, 0xF1}

// aacFrameLength returns the encoded access-unit size for the
// negotiated bitrate, floored so the quantizer always has at least
// one bit per sample.
func aacFrameLength(cfg Config) int {
	length := int(uint64(cfg.BitRate) * aacSamplesPerChannel / uint64(cfg.SampleRate) / 8)
	floor := aacSamplesPerChannel*int(cfg.Channels)/8 + len(aacFrameHeader)
	if length < floor {
		length = floor
	}
	return length
}

type aacEncoder struct {
	kern       kernel
	packer     *rtpPacker
	maxPayload int
	log        *logrus.Entry
}

func newAACEncoder(cfg Config, mtuWrite int, log *logrus.Entry) (*aacEncoder, error) {
	kern, err := newKernel(
		aacSamplesPerChannel*int(cfg.Channels),
		aacFrameLength(cfg),
		aacFrameHeader,
	)
	if err != nil {
		return nil, err
	}
	maxPayload := mtuWrite - rtpHeaderLen
	if maxPayload < 1 {
		return nil, fmt.Errorf("%w: MTU %d", ErrMTUTooSmall, mtuWrite)
	}
	packer, err := newRTPPacker()
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"frame_length": kern.frame,
		"bitrate":      cfg.BitRate,
		"vbr":          cfg.VBR,
	}).Debug("AAC encoder created")
	return &aacEncoder{kern: kern, packer: packer, maxPayload: maxPayload, log: log}, nil
}

func (e *aacEncoder) Encode(pcm []int16) ([][]byte, int, error) {
	var frames [][]byte
	consumed := 0
	unit := make([]byte, e.kern.frame)

	for len(pcm)-consumed >= e.kern.samples {
		if err := e.kern.encode(pcm[consumed:consumed+e.kern.samples], unit); err != nil {
			return frames, consumed, err
		}
		consumed += e.kern.samples

		// Fragment the access unit; the marker closes the train and
		// advances the timestamp by one unit's samples.
		for off := 0; off < len(unit); off += e.maxPayload {
			end := off + e.maxPayload
			last := false
			if end >= len(unit) {
				end = len(unit)
				last = true
			}
			var samples uint32
			if last {
				samples = aacSamplesPerChannel
			}
			fragment := make([]byte, end-off)
			copy(fragment, unit[off:end])
			frame, err := e.packer.pack(fragment, last, samples)
			if err != nil {
				return frames, consumed, err
			}
			frames = append(frames, frame)
		}
	}

	return frames, consumed, nil
}

// aacDecoder reassembles fragmented access units until the marker,
// then decodes the whole unit.
type aacDecoder struct {
	kern     kernel
	unpacker *rtpUnpacker
	pending  []byte
	log      *logrus.Entry
}

func newAACDecoder(cfg Config, log *logrus.Entry) (*aacDecoder, error) {
	kern, err := newKernel(
		aacSamplesPerChannel*int(cfg.Channels),
		aacFrameLength(cfg),
		aacFrameHeader,
	)
	if err != nil {
		return nil, err
	}
	log.WithField("frame_length", kern.frame).Debug("AAC decoder created")
	return &aacDecoder{kern: kern, unpacker: newRTPUnpacker(log), log: log}, nil
}

func (d *aacDecoder) Decode(frame []byte) ([]int16, error) {
	packet, err := d.unpacker.unpack(frame)
	if err != nil {
		return nil, err
	}

	d.pending = append(d.pending, packet.Payload...)
	if !packet.Marker {
		return nil, nil
	}

	unit := d.pending
	d.pending = nil
	if len(unit) != d.kern.frame {
		return nil, fmt.Errorf("%w: reassembled unit is %d bytes, want %d",
			ErrBadFrame, len(unit), d.kern.frame)
	}
	pcm := make([]int16, d.kern.samples)
	if err := d.kern.decode(unit, pcm); err != nil {
		return nil, err
	}
	return pcm, nil
}

func (d *aacDecoder) Gaps() uint32 {
	return d.unpacker.gaps
}

// Reset discards a partially reassembled access unit.
func (d *aacDecoder) Reset() {
	d.pending = nil
}
