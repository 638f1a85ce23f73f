package codec

import "errors"

var (
	// ErrUnsupportedCodec indicates a codec identifier outside the
	// supported set.
	ErrUnsupportedCodec = errors.New("unsupported codec")

	// ErrUnsupportedConfig indicates negotiated parameters the codec
	// cannot operate with (sample rate, channel count, bitpool or
	// bitrate bounds). Configuration errors are fatal at connection
	// creation and never surface mid-stream.
	ErrUnsupportedConfig = errors.New("unsupported codec configuration")

	// ErrProfileMismatch indicates a voice codec requested for a
	// streaming profile or vice versa.
	ErrProfileMismatch = errors.New("codec does not match profile")

	// ErrMTUTooSmall indicates the negotiated MTU cannot carry even
	// one wire frame.
	ErrMTUTooSmall = errors.New("negotiated MTU cannot carry one frame")

	// ErrBadFrame indicates a malformed or truncated wire frame. On
	// the Bluetooth-bound side this is treated as link loss by the
	// worker.
	ErrBadFrame = errors.New("malformed wire frame")

	// ErrShortBuffer indicates fewer PCM samples than one codec
	// frame requires.
	ErrShortBuffer = errors.New("insufficient samples for one frame")
)
