package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// aptX framing constants. The codec compresses four stereo sample
// pairs into one four-byte codeword and runs without any streaming
// envelope: codewords are packed back-to-back up to the write MTU.
const (
	aptxSamplesPerFrame = 8 // 4 per channel, stereo only
	aptxFrameLength     = 4
)

func newAptXKernel() (kernel, error) {
	return newKernel(aptxSamplesPerFrame, aptxFrameLength, nil)
}

type aptxEncoder struct {
	kern      kernel
	maxFrames int
	log       *logrus.Entry
}

func newAptXEncoder(cfg Config, mtuWrite int, log *logrus.Entry) (*aptxEncoder, error) {
	kern, err := newAptXKernel()
	if err != nil {
		return nil, err
	}
	maxFrames := mtuWrite / kern.frame
	if maxFrames < 1 {
		return nil, fmt.Errorf("%w: MTU %d, aptX codeword %d", ErrMTUTooSmall, mtuWrite, kern.frame)
	}
	log.WithFields(logrus.Fields{
		"vendor_id":         cfg.Vendor.VendorID,
		"frames_per_packet": maxFrames,
	}).Debug("aptX encoder created")
	return &aptxEncoder{kern: kern, maxFrames: maxFrames, log: log}, nil
}

func (e *aptxEncoder) Encode(pcm []int16) ([][]byte, int, error) {
	var frames [][]byte
	consumed := 0

	for len(pcm)-consumed >= e.kern.samples {
		count := (len(pcm) - consumed) / e.kern.samples
		if count > e.maxFrames {
			count = e.maxFrames
		}
		wire := make([]byte, count*e.kern.frame)
		for i := 0; i < count; i++ {
			if err := e.kern.encode(pcm[consumed:consumed+e.kern.samples], wire[i*e.kern.frame:]); err != nil {
				return frames, consumed, err
			}
			consumed += e.kern.samples
		}
		frames = append(frames, wire)
	}

	return frames, consumed, nil
}

type aptxDecoder struct {
	kern kernel
	log  *logrus.Entry
}

func newAptXDecoder(cfg Config, log *logrus.Entry) (*aptxDecoder, error) {
	kern, err := newAptXKernel()
	if err != nil {
		return nil, err
	}
	return &aptxDecoder{kern: kern, log: log}, nil
}

func (d *aptxDecoder) Decode(frame []byte) ([]int16, error) {
	if len(frame) == 0 || len(frame)%d.kern.frame != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of aptX codewords",
			ErrBadFrame, len(frame))
	}
	count := len(frame) / d.kern.frame
	pcm := make([]int16, 0, count*d.kern.samples)
	window := make([]int16, d.kern.samples)
	for i := 0; i < count; i++ {
		if err := d.kern.decode(frame[i*d.kern.frame:], window); err != nil {
			return nil, err
		}
		pcm = append(pcm, window...)
	}
	return pcm, nil
}

// Gaps always reports zero: aptX carries no envelope, so sequence
// discontinuities are not observable at this layer.
func (d *aptxDecoder) Gaps() uint32 {
	return 0
}
