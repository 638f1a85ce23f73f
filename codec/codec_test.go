package codec

import (
	"errors"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluepipe/bluepipe/audio"
)

func sbcConfig() Config {
	return Config{
		Codec:      SBC,
		SampleRate: 44100,
		Channels:   2,
		MinBitpool: 2,
		MaxBitpool: 53,
	}
}

func sine(samples int) []int16 {
	pcm := make([]int16, samples)
	audio.Sine(pcm, 2, 0, 0.01)
	return pcm
}

// TestSBCEncodeRespectsMTU reproduces the reference scenario: a
// 44.1 kHz stereo sine fed into the SBC encoder with a 459-byte write
// MTU must yield only frames within the MTU, with strictly increasing
// sequence numbers, and the decoder must produce a continuously
// growing sample count.
func TestSBCEncodeRespectsMTU(t *testing.T) {
	const mtuWrite = 459

	enc, err := NewStreamEncoder(sbcConfig(), mtuWrite)
	require.NoError(t, err)
	dec, err := NewStreamDecoder(sbcConfig(), mtuWrite)
	require.NoError(t, err)

	pcm := sine(1024 * 10)
	frames, consumed, err := enc.Encode(pcm)
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	assert.Positive(t, consumed)

	var lastSeq uint16
	decoded := 0
	for i, frame := range frames {
		assert.LessOrEqual(t, len(frame), mtuWrite, "frame %d exceeds MTU", i)

		packet := &rtp.Packet{}
		require.NoError(t, packet.Unmarshal(frame))
		if i > 0 {
			assert.Equal(t, lastSeq+1, packet.SequenceNumber, "sequence must increase strictly")
		}
		lastSeq = packet.SequenceNumber

		pcmOut, err := dec.Decode(frame)
		require.NoError(t, err)
		assert.NotEmpty(t, pcmOut)
		decoded += len(pcmOut)
		assert.Equal(t, decoded > 0, true)
	}

	// Lossy path: the decoded count matches what was consumed, even
	// though the samples themselves are approximations.
	assert.Equal(t, consumed, decoded)
	assert.Zero(t, dec.Gaps())
}

// TestSBCLeftoverSamplesStayUnconsumed verifies the encoder only
// consumes whole codec frames.
func TestSBCLeftoverSamplesStayUnconsumed(t *testing.T) {
	enc, err := NewStreamEncoder(sbcConfig(), 459)
	require.NoError(t, err)

	window := sbcSamplesPerChannel * 2
	_, consumed, err := enc.Encode(sine(window + 17))
	require.NoError(t, err)
	assert.Equal(t, window, consumed)
}

// TestSBCGapDetection verifies sequence gaps are counted but not
// repaired.
func TestSBCGapDetection(t *testing.T) {
	enc, err := NewStreamEncoder(sbcConfig(), 459)
	require.NoError(t, err)
	dec, err := NewStreamDecoder(sbcConfig(), 459)
	require.NoError(t, err)

	frames, _, err := enc.Encode(sine(1024 * 8))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(frames), 3)

	_, err = dec.Decode(frames[0])
	require.NoError(t, err)
	// Skip frames[1] entirely.
	pcm, err := dec.Decode(frames[2])
	require.NoError(t, err)
	assert.NotEmpty(t, pcm, "decoding continues after a gap")
	assert.Equal(t, uint32(1), dec.Gaps())
}

// TestSBCTooSmallMTU verifies an MTU below one frame is a
// construction error.
func TestSBCTooSmallMTU(t *testing.T) {
	_, err := NewStreamEncoder(sbcConfig(), 20)
	assert.ErrorIs(t, err, ErrMTUTooSmall)
}

// TestAACFragmentsAcrossMTU verifies an access unit larger than the
// MTU is fragmented, the marker closes the train, and the decoder
// reassembles the whole unit.
func TestAACFragmentsAcrossMTU(t *testing.T) {
	cfg := Config{Codec: AAC, SampleRate: 44100, Channels: 2, BitRate: 128000, VBR: true}
	const mtu = 64

	enc, err := NewStreamEncoder(cfg, mtu)
	require.NoError(t, err)
	dec, err := NewStreamDecoder(cfg, mtu)
	require.NoError(t, err)

	frames, consumed, err := enc.Encode(sine(aacSamplesPerChannel * 2))
	require.NoError(t, err)
	assert.Equal(t, aacSamplesPerChannel*2, consumed)
	require.Greater(t, len(frames), 1, "unit must fragment at this MTU")

	decoded := 0
	markers := 0
	for _, frame := range frames {
		assert.LessOrEqual(t, len(frame), mtu)
		packet := &rtp.Packet{}
		require.NoError(t, packet.Unmarshal(frame))
		if packet.Marker {
			markers++
		}
		pcm, err := dec.Decode(frame)
		require.NoError(t, err)
		decoded += len(pcm)
	}
	assert.Equal(t, 1, markers, "exactly one fragment train was sent")
	assert.Equal(t, consumed, decoded)
}

// TestAptXNoEnvelope verifies aptX frames are raw codeword runs with
// no streaming envelope.
func TestAptXNoEnvelope(t *testing.T) {
	cfg := Config{Codec: AptX, SampleRate: 44100, Channels: 2, Vendor: VendorInfo{VendorID: 0x4F, CodecID: 0x01}}
	const mtu = 40

	enc, err := NewStreamEncoder(cfg, mtu)
	require.NoError(t, err)
	dec, err := NewStreamDecoder(cfg, mtu)
	require.NoError(t, err)

	frames, consumed, err := enc.Encode(sine(8 * 100))
	require.NoError(t, err)
	require.NotEmpty(t, frames)

	decoded := 0
	for _, frame := range frames {
		assert.LessOrEqual(t, len(frame), mtu)
		assert.Zero(t, len(frame)%aptxFrameLength, "frames are whole codewords")
		pcm, err := dec.Decode(frame)
		require.NoError(t, err)
		decoded += len(pcm)
	}
	assert.Equal(t, consumed, decoded)
	assert.Zero(t, dec.Gaps())
}

// TestLDACRoundTrip verifies the LDAC envelope and sample accounting.
func TestLDACRoundTrip(t *testing.T) {
	cfg := Config{Codec: LDAC, SampleRate: 44100, Channels: 2, Quality: LDACQualityHigh,
		Vendor: VendorInfo{VendorID: 0x012D, CodecID: 0xAA}}
	mtu := rtpHeaderLen + 1 + 2*ldacFrameLength(LDACQualityHigh)

	enc, err := NewStreamEncoder(cfg, mtu)
	require.NoError(t, err)
	dec, err := NewStreamDecoder(cfg, mtu)
	require.NoError(t, err)

	frames, consumed, err := enc.Encode(sine(256 * 6))
	require.NoError(t, err)
	require.NotEmpty(t, frames)

	decoded := 0
	for _, frame := range frames {
		assert.LessOrEqual(t, len(frame), mtu)
		pcm, err := dec.Decode(frame)
		require.NoError(t, err)
		decoded += len(pcm)
	}
	assert.Equal(t, consumed, decoded)
}

// TestDispatchRejectsProfileMismatch verifies voice codecs cannot be
// used for streaming and vice versa.
func TestDispatchRejectsProfileMismatch(t *testing.T) {
	voice := Config{Codec: MSBC, SampleRate: 16000, Channels: 1}
	_, err := NewStreamEncoder(voice, 459)
	assert.ErrorIs(t, err, ErrProfileMismatch)
	_, err = NewStreamDecoder(voice, 459)
	assert.ErrorIs(t, err, ErrProfileMismatch)

	_, err = NewVoiceCodec(sbcConfig(), 48)
	assert.ErrorIs(t, err, ErrProfileMismatch)
}

// TestConfigValidation covers the configuration error taxonomy:
// mismatches fail at construction, never mid-stream.
func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"unknown codec", Config{}},
		{"sbc bad rate", Config{Codec: SBC, SampleRate: 22050, Channels: 2, MaxBitpool: 53}},
		{"sbc bad bitpool", Config{Codec: SBC, SampleRate: 44100, Channels: 2, MinBitpool: 60, MaxBitpool: 53}},
		{"aac no bitrate", Config{Codec: AAC, SampleRate: 44100, Channels: 2}},
		{"aptx mono", Config{Codec: AptX, SampleRate: 44100, Channels: 1}},
		{"cvsd wrong rate", Config{Codec: CVSD, SampleRate: 16000, Channels: 1}},
		{"msbc stereo", Config{Codec: MSBC, SampleRate: 16000, Channels: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if !errors.Is(err, ErrUnsupportedConfig) && !errors.Is(err, ErrUnsupportedCodec) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}
