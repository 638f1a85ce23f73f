package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LDAC framing constants. One codec frame covers 128 samples per
// channel; the encoded size is fixed by the negotiated quality index.
// The wire format matches SBC's: RTP envelope plus a one-byte media
// header carrying the frame count.
const (
	ldacSamplesPerChannel  = 128
	ldacMaxFramesPerPacket = 15
)

// ldacFrameLength returns the encoded frame size for the quality
// index.
func ldacFrameLength(q LDACQuality) int {
	switch q {
	case LDACQualityHigh:
		return 330
	case LDACQualityStandard:
		return 220
	default:
		return 110
	}
}

func newLDACKernel(cfg Config) (kernel, error) {
	return newKernel(
		ldacSamplesPerChannel*int(cfg.Channels),
		ldacFrameLength(cfg.Quality),
		nil,
	)
}

type ldacEncoder struct {
	kern      kernel
	packer    *rtpPacker
	maxFrames int
	log       *logrus.Entry
}

func newLDACEncoder(cfg Config, mtuWrite int, log *logrus.Entry) (*ldacEncoder, error) {
	kern, err := newLDACKernel(cfg)
	if err != nil {
		return nil, err
	}
	maxFrames := (mtuWrite - rtpHeaderLen - 1) / kern.frame
	if maxFrames < 1 {
		return nil, fmt.Errorf("%w: MTU %d, LDAC frame %d", ErrMTUTooSmall, mtuWrite, kern.frame)
	}
	if maxFrames > ldacMaxFramesPerPacket {
		maxFrames = ldacMaxFramesPerPacket
	}
	packer, err := newRTPPacker()
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"vendor_id":         cfg.Vendor.VendorID,
		"frame_length":      kern.frame,
		"frames_per_packet": maxFrames,
		"quality":           cfg.Quality,
	}).Debug("LDAC encoder created")
	return &ldacEncoder{kern: kern, packer: packer, maxFrames: maxFrames, log: log}, nil
}

func (e *ldacEncoder) Encode(pcm []int16) ([][]byte, int, error) {
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
			if err := e.kern.encode(pcm[consumed:consumed+e.kern.samples], payload[1+i*e.kern.frame:]); err != nil {
				return frames, consumed, err
			}
			consumed += e.kern.samples
		}
		frame, err := e.packer.pack(payload, false, uint32(count)*ldacSamplesPerChannel)
		if err != nil {
			return frames, consumed, err
		}
		frames = append(frames, frame)
	}

	return frames, consumed, nil
}

type ldacDecoder struct {
	kern     kernel
	unpacker *rtpUnpacker
	log      *logrus.Entry
}

func newLDACDecoder(cfg Config, log *logrus.Entry) (*ldacDecoder, error) {
	kern, err := newLDACKernel(cfg)
	if err != nil {
		return nil, err
	}
	return &ldacDecoder{kern: kern, unpacker: newRTPUnpacker(log), log: log}, nil
}

func (d *ldacDecoder) Decode(frame []byte) ([]int16, error) {
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

func (d *ldacDecoder) Gaps() uint32 {
	return d.unpacker.gaps
}
