package codec

import "fmt"

// ID identifies one codec of the closed supported set.
type ID uint8

const (
	// SBC is the mandatory A2DP codec.
	SBC ID = iota + 1
	// AAC is the MPEG-2/4 AAC-LC A2DP codec.
	AAC
	// AptX is the Qualcomm aptX vendor A2DP codec.
	AptX
	// LDAC is the Sony LDAC vendor A2DP codec.
	LDAC
	// CVSD is the mandatory HSP/HFP voice codec. The engine carries
	// it transparently; the link controller performs the modulation.
	CVSD
	// MSBC is the HFP wideband-speech voice codec.
	MSBC
)

// String returns the conventional codec name.
func (id ID) String() string {
	switch id {
	case SBC:
		return "SBC"
	case AAC:
		return "AAC"
	case AptX:
		return "aptX"
	case LDAC:
		return "LDAC"
	case CVSD:
		return "CVSD"
	case MSBC:
		return "mSBC"
	}
	return fmt.Sprintf("codec(%d)", uint8(id))
}

// Voice reports whether the codec runs over the synchronous voice
// channel rather than the streaming one.
func (id ID) Voice() bool {
	return id == CVSD || id == MSBC
}

// LDACQuality selects the LDAC encoder quality index, which fixes the
// encoded frame size.
type LDACQuality uint8

const (
	// LDACQualityHigh is the 990 kbps quality index.
	LDACQualityHigh LDACQuality = iota
	// LDACQualityStandard is the 660 kbps quality index.
	LDACQualityStandard
	// LDACQualityMobile is the 330 kbps quality index.
	LDACQualityMobile
)

// VendorInfo identifies a proprietary codec on the wire.
type VendorInfo struct {
	VendorID uint32
	CodecID  uint16
}

// Config is the negotiated codec configuration for one connection.
// It is supplied at connection creation, threaded explicitly into
// every framer constructor, and treated as immutable afterwards.
type Config struct {
	Codec      ID
	SampleRate uint32
	Channels   uint8

	// MinBitpool and MaxBitpool bound the SBC bitpool. The encoder
	// operates at MaxBitpool.
	MinBitpool uint8
	MaxBitpool uint8

	// BitRate is the AAC target bitrate in bits per second.
	BitRate uint32
	// VBR marks the AAC bitrate as a bound rather than a constant.
	VBR bool

	// Quality selects the LDAC quality index.
	Quality LDACQuality

	// Vendor identifies proprietary codecs (aptX, LDAC).
	Vendor VendorInfo
}

// Validate checks the configuration against the codec's supported
// parameter space. A mismatch is a configuration error, never a
// runtime recoverable one.
func (c Config) Validate() error {
	switch c.Codec {
	case SBC:
		if !rateIn(c.SampleRate, 16000, 32000, 44100, 48000) {
			return fmt.Errorf("%w: SBC sample rate %d", ErrUnsupportedConfig, c.SampleRate)
		}
		if c.Channels < 1 || c.Channels > 2 {
			return fmt.Errorf("%w: SBC channel count %d", ErrUnsupportedConfig, c.Channels)
		}
		if c.MaxBitpool < 2 || c.MaxBitpool > 250 || c.MinBitpool > c.MaxBitpool {
			return fmt.Errorf("%w: SBC bitpool range %d..%d", ErrUnsupportedConfig, c.MinBitpool, c.MaxBitpool)
		}
	case AAC:
		if !rateIn(c.SampleRate, 44100, 48000) {
			return fmt.Errorf("%w: AAC sample rate %d", ErrUnsupportedConfig, c.SampleRate)
		}
		if c.Channels < 1 || c.Channels > 2 {
			return fmt.Errorf("%w: AAC channel count %d", ErrUnsupportedConfig, c.Channels)
		}
		if c.BitRate == 0 {
			return fmt.Errorf("%w: AAC bitrate not negotiated", ErrUnsupportedConfig)
		}
	case AptX:
		if !rateIn(c.SampleRate, 16000, 32000, 44100, 48000) {
			return fmt.Errorf("%w: aptX sample rate %d", ErrUnsupportedConfig, c.SampleRate)
		}
		if c.Channels != 2 {
			return fmt.Errorf("%w: aptX requires stereo, got %d channels", ErrUnsupportedConfig, c.Channels)
		}
	case LDAC:
		if !rateIn(c.SampleRate, 44100, 48000, 88200, 96000) {
			return fmt.Errorf("%w: LDAC sample rate %d", ErrUnsupportedConfig, c.SampleRate)
		}
		if c.Channels < 1 || c.Channels > 2 {
			return fmt.Errorf("%w: LDAC channel count %d", ErrUnsupportedConfig, c.Channels)
		}
		if c.Quality > LDACQualityMobile {
			return fmt.Errorf("%w: LDAC quality index %d", ErrUnsupportedConfig, c.Quality)
		}
	case CVSD:
		if c.SampleRate != 8000 || c.Channels != 1 {
			return fmt.Errorf("%w: CVSD requires 8000 Hz mono, got %d Hz %d ch",
				ErrUnsupportedConfig, c.SampleRate, c.Channels)
		}
	case MSBC:
		if c.SampleRate != 16000 || c.Channels != 1 {
			return fmt.Errorf("%w: mSBC requires 16000 Hz mono, got %d Hz %d ch",
				ErrUnsupportedConfig, c.SampleRate, c.Channels)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCodec, c.Codec)
	}
	return nil
}

func rateIn(rate uint32, set ...uint32) bool {
	for _, r := range set {
		if rate == r {
			return true
		}
	}
	return false
}
