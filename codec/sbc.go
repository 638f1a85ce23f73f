package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// SBC framing constants. One codec frame covers blocks*subbands
// samples per channel; the frame length follows from the negotiated
// bitpool.
const (
	sbcSyncword = 0x9C
	sbcBlocks   = 16
	sbcSubbands = 8

	// sbcMaxFramesPerPacket is the media-header frame-count field
	// width: a four-bit counter.
	sbcMaxFramesPerPacket = 15
)

// sbcSamplesPerChannel is the per-channel PCM window of one codec
// frame.
const sbcSamplesPerChannel = sbcBlocks * sbcSubbands

// sbcFrameLength returns the encoded frame size for the negotiated
// channel count and bitpool.
func sbcFrameLength(channels uint8, bitpool uint8) int {
	header := 4 + (4*sbcSubbands*int(channels))/8
	payload := (sbcBlocks*int(channels)*int(bitpool) + 7) / 8
	return header + payload
}

func newSBCKernel(cfg Config) (kernel, error) {
	return newKernel(
		sbcSamplesPerChannel*int(cfg.Channels),
		sbcFrameLength(cfg.Channels, cfg.MaxBitpool),
		[]byte{sbcSyncword},
	)
}

// sbcEncoder packs SBC codec frames into RTP wire frames. Each wire
// frame carries a one-byte media header (frame count in the low
// nibble) followed by up to fifteen whole codec frames, never
// exceeding the write MTU.
type sbcEncoder struct {
	kern      kernel
	packer    *rtpPacker
	maxFrames int
	log       *logrus.Entry
}

func newSBCEncoder(cfg Config, mtuWrite int, log *logrus.Entry) (*sbcEncoder, error) {
	kern, err := newSBCKernel(cfg)
	if err != nil {
		return nil, err
	}
	maxFrames := (mtuWrite - rtpHeaderLen - 1) / kern.frame
	if maxFrames < 1 {
		return nil, fmt.Errorf("%w: MTU %d, SBC frame %d", ErrMTUTooSmall, mtuWrite, kern.frame)
	}
	if maxFrames > sbcMaxFramesPerPacket {
		maxFrames = sbcMaxFramesPerPacket
	}
	packer, err := newRTPPacker()
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"frame_length":      kern.frame,
		"frames_per_packet": maxFrames,
		"bitpool":           cfg.MaxBitpool,
	}).Debug("SBC encoder created")
	return &sbcEncoder{kern: kern, packer: packer, maxFrames: maxFrames, log: log}, nil
}

func (e *sbcEncoder) Encode(pcm []int16) ([][]byte, int, error) {
	var frames [][]byte
	consumed := 0

	for len(pcm)-consumed >= e.kern.samples {
		count := (len(pcm) - consumed) / e.kern.samples
		if count > e.maxFrames {
			count = e.maxFrames
		}

		payload := make([]byte, 1+count*e.kern.frame)
		payload[0] = byte(count) & 0x0F
		for i := 0; i < count; i++ {
			window := pcm[consumed : consumed+e.kern.samples]
			if err := e.kern.encode(window, payload[1+i*e.kern.frame:]); err != nil {
				return frames, consumed, err
			}
			consumed += e.kern.samples
		}

		frame, err := e.packer.pack(payload, false, uint32(count)*sbcSamplesPerChannel)
		if err != nil {
			return frames, consumed, err
		}
		frames = append(frames, frame)
	}

	return frames, consumed, nil
}

// sbcDecoder strips the envelope and media header and decodes each
// carried codec frame in order.
type sbcDecoder struct {
	kern     kernel
	unpacker *rtpUnpacker
	log      *logrus.Entry
}

func newSBCDecoder(cfg Config, log *logrus.Entry) (*sbcDecoder, error) {
	kern, err := newSBCKernel(cfg)
	if err != nil {
		return nil, err
	}
	log.WithField("frame_length", kern.frame).Debug("SBC decoder created")
	return &sbcDecoder{kern: kern, unpacker: newRTPUnpacker(log), log: log}, nil
}

func (d *sbcDecoder) Decode(frame []byte) ([]int16, error) {
	packet, err := d.unpacker.unpack(frame)
	if err != nil {
		return nil, err
	}
	if len(packet.Payload) < 1 {
		return nil, fmt.Errorf("%w: missing media header", ErrBadFrame)
	}
	count := int(packet.Payload[0] & 0x0F)
	body := packet.Payload[1:]
	if len(body) < count*d.kern.frame {
		return nil, fmt.Errorf("%w: media header declares %d frames, payload holds %d bytes",
			ErrBadFrame, count, len(body))
	}

	pcm := make([]int16, 0, count*d.kern.samples)
	window := make([]int16, d.kern.samples)
	for i := 0; i < count; i++ {
		if err := d.kern.decode(body[i*d.kern.frame:], window); err != nil {
			return nil, err
		}
		pcm = append(pcm, window...)
	}
	return pcm, nil
}

func (d *sbcDecoder) Gaps() uint32 {
	return d.unpacker.gaps
}
