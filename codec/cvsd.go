package codec

import (
	"fmt"

	"github.com/bluepipe/bluepipe/audio"
)

// cvsdCodec carries narrowband voice transparently: the link
// controller performs the actual CVSD modulation, so the host side
// exchanges raw PCM in fixed MTU-sized frames. This is the lossless
// loopback path.
type cvsdCodec struct {
	mtu int
}

func newCVSDCodec(mtu int) *cvsdCodec {
	return &cvsdCodec{mtu: mtu}
}

func (c *cvsdCodec) BTFrameSize() int {
	return c.mtu
}

func (c *cvsdCodec) PCMFrameSize() int {
	return c.mtu / audio.BytesPerSample
}

func (c *cvsdCodec) Encode(pcm []int16) ([]byte, int, error) {
	window := c.PCMFrameSize()
	if len(pcm) < window {
		return nil, 0, nil
	}
	return audio.Bytes(pcm[:window]), window, nil
}

func (c *cvsdCodec) Decode(data []byte) ([]int16, error) {
	if len(data) != c.mtu {
		return nil, fmt.Errorf("%w: voice frame is %d bytes, negotiated MTU is %d",
			ErrBadFrame, len(data), c.mtu)
	}
	return audio.Samples(data), nil
}

func (c *cvsdCodec) Reset() {}
