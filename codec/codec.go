package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// StreamEncoder turns raw PCM into streaming wire frames for one
// A2DP source connection.
//
// Encode consumes as many whole codec frames as the input allows and
// returns the produced wire frames together with the number of
// samples consumed; the caller keeps unconsumed samples staged for
// the next iteration. Every returned frame fits within the write MTU
// the encoder was constructed with.
type StreamEncoder interface {
	Encode(pcm []int16) (frames [][]byte, consumed int, err error)
}

// StreamDecoder turns streaming wire frames back into PCM for one
// A2DP sink connection.
//
// Decode handles exactly one wire frame. It may return no samples
// while reassembling a fragmented unit. Gaps reports the cumulative
// count of envelope sequence numbers missed so far.
type StreamDecoder interface {
	Decode(frame []byte) (pcm []int16, err error)
	Gaps() uint32
}

// VoiceCodec frames PCM into the fixed-size synchronous voice frames
// of one SCO connection and back.
//
// Encode consumes staged samples and returns either one BT frame of
// exactly BTFrameSize bytes or nil when more input is needed. Decode
// accepts whatever the synchronous channel delivered and returns any
// PCM that became decodable; undecoded bytes are retained across
// calls until a whole frame is available. Reset discards all retained
// partial state (the Drop signal path).
type VoiceCodec interface {
	BTFrameSize() int
	PCMFrameSize() int
	Encode(pcm []int16) (frame []byte, consumed int, err error)
	Decode(data []byte) ([]int16, error)
	Reset()
}

// NewStreamEncoder creates the streaming encoder for the negotiated
// configuration. The returned encoder never produces a frame larger
// than mtuWrite.
func NewStreamEncoder(cfg Config, mtuWrite int) (StreamEncoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{
		"codec":       cfg.Codec.String(),
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
		"mtu_write":   mtuWrite,
	})
	switch cfg.Codec {
	case SBC:
		return newSBCEncoder(cfg, mtuWrite, log)
	case AAC:
		return newAACEncoder(cfg, mtuWrite, log)
	case AptX:
		return newAptXEncoder(cfg, mtuWrite, log)
	case LDAC:
		return newLDACEncoder(cfg, mtuWrite, log)
	case CVSD, MSBC:
		return nil, fmt.Errorf("%w: %s is a voice codec", ErrProfileMismatch, cfg.Codec)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, cfg.Codec)
}

// NewStreamDecoder creates the streaming decoder for the negotiated
// configuration.
func NewStreamDecoder(cfg Config, mtuRead int) (StreamDecoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{
		"codec":       cfg.Codec.String(),
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
		"mtu_read":    mtuRead,
	})
	switch cfg.Codec {
	case SBC:
		return newSBCDecoder(cfg, log)
	case AAC:
		return newAACDecoder(cfg, log)
	case AptX:
		return newAptXDecoder(cfg, log)
	case LDAC:
		return newLDACDecoder(cfg, log)
	case CVSD, MSBC:
		return nil, fmt.Errorf("%w: %s is a voice codec", ErrProfileMismatch, cfg.Codec)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, cfg.Codec)
}

// NewVoiceCodec creates the voice framer for the negotiated
// configuration and synchronous-channel MTU.
func NewVoiceCodec(cfg Config, mtu int) (VoiceCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if mtu <= 0 {
		return nil, fmt.Errorf("%w: SCO MTU %d", ErrMTUTooSmall, mtu)
	}
	switch cfg.Codec {
	case CVSD:
		return newCVSDCodec(mtu), nil
	case MSBC:
		return newMSBCCodec(mtu)
	case SBC, AAC, AptX, LDAC:
		return nil, fmt.Errorf("%w: %s is a streaming codec", ErrProfileMismatch, cfg.Codec)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, cfg.Codec)
}
