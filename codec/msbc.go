package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bluepipe/bluepipe/staging"
)

// mSBC framing constants. One codec frame covers 7.5 ms of wideband
// speech (120 samples at 16 kHz) encoded into 57 bytes. On the wire
// each frame is wrapped into a 60-byte unit: a two-byte H2
// synchronization header, the codec frame, and one padding byte. The
// unit stream is carried over the synchronous channel in MTU-sized
// chunks, so frame boundaries do not align with transfer boundaries
// and the decoder must locate the H2 sync word before it can decode.
const (
	msbcSyncword    = 0xAD
	msbcFrameLength = 57
	msbcUnitLength  = 60
	msbcSamples     = 120
)

// msbcH2 is the cycling second byte of the H2 header; the first byte
// is always 0x01.
var msbcH2 = [4]byte{0x08, 0x38, 0xC8, 0xF8}

type msbcCodec struct {
	kern kernel
	mtu  int

	// Encoder side: encoded unit bytes not yet emitted as MTU-sized
	// frames.
	out []byte
	sn  uint8

	// Decoder side: undecoded wire bytes retained across iterations
	// until a whole unit is available.
	in *staging.Buffer

	log *logrus.Entry
}

func newMSBCCodec(mtu int) (*msbcCodec, error) {
	kern, err := newKernel(msbcSamples, msbcFrameLength, []byte{msbcSyncword})
	if err != nil {
		return nil, err
	}
	return &msbcCodec{
		kern: kern,
		mtu:  mtu,
		in:   staging.New(4 * msbcUnitLength),
		log: logrus.WithFields(logrus.Fields{
			"codec": MSBC.String(),
			"mtu":   mtu,
		}),
	}, nil
}

func (c *msbcCodec) BTFrameSize() int {
	return c.mtu
}

func (c *msbcCodec) PCMFrameSize() int {
	return msbcSamples
}

func (c *msbcCodec) Encode(pcm []int16) ([]byte, int, error) {
	consumed := 0

	// Encode whole units until one MTU-sized frame can be emitted.
	for len(c.out) < c.mtu && len(pcm)-consumed >= msbcSamples {
		unit := make([]byte, msbcUnitLength)
		unit[0] = 0x01
		unit[1] = msbcH2[c.sn&3]
		c.sn++
		if err := c.kern.encode(pcm[consumed:consumed+msbcSamples], unit[2:2+msbcFrameLength]); err != nil {
			return nil, consumed, err
		}
		consumed += msbcSamples
		c.out = append(c.out, unit...)
	}

	if len(c.out) < c.mtu {
		return nil, consumed, nil
	}
	frame := c.out[:c.mtu:c.mtu]
	c.out = append([]byte(nil), c.out[c.mtu:]...)
	return frame, consumed, nil
}

func (c *msbcCodec) Decode(data []byte) ([]int16, error) {
	copy(c.in.Reserve(len(data)), data)
	c.in.Commit(len(data))

	var pcm []int16
	for {
		buf := c.in.Bytes()

		// Locate the H2 sync word; bytes before it are padding or
		// resynchronization junk.
		start := -1
		for i := 0; i+2 < len(buf); i++ {
			if buf[i] == 0x01 && isH2(buf[i+1]) && buf[i+2] == msbcSyncword {
				start = i
				break
			}
		}
		if start < 0 {
			// Keep at most the last two bytes; a sync word may be
			// split across transfers.
			if drop := len(buf) - 2; drop > 0 {
				c.in.Consume(drop)
			}
			return pcm, nil
		}
		if start > 0 {
			c.log.WithField("skipped", start).Debug("Skipped bytes before mSBC sync")
			c.in.Consume(start)
			buf = c.in.Bytes()
		}
		if len(buf) < 2+msbcFrameLength {
			return pcm, nil
		}

		window := make([]int16, msbcSamples)
		if err := c.kern.decode(buf[2:2+msbcFrameLength], window); err != nil {
			return pcm, fmt.Errorf("voice frame decode: %w", err)
		}
		pcm = append(pcm, window...)
		c.in.Consume(2 + msbcFrameLength)
	}
}

// Reset discards retained partial state on both directions. The next
// decoded frame cannot contain bytes received before the reset.
func (c *msbcCodec) Reset() {
	c.in.Reset()
	c.out = nil
	c.sn = 0
}

func isH2(b byte) bool {
	for _, v := range msbcH2 {
		if b == v {
			return true
		}
	}
	return false
}
