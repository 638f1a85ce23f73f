// Package audio provides PCM sample helpers shared by the codec
// framers, the I/O workers, and the test tooling.
//
// The wire and local-endpoint sample format throughout the engine is
// signed 16-bit little-endian interleaved PCM.
package audio

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the size of one s16le PCM sample.
const BytesPerSample = 2

// Samples reinterprets a little-endian byte stream as int16 samples.
// A trailing odd byte is ignored; callers framing on sample
// boundaries never produce one.
func Samples(data []byte) []int16 {
	pcm := make([]int16, len(data)/BytesPerSample)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
	}
	return pcm
}

// AppendBytes appends the little-endian encoding of pcm to dst and
// returns the extended slice.
func AppendBytes(dst []byte, pcm []int16) []byte {
	for _, s := range pcm {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// Bytes returns the little-endian encoding of pcm.
func Bytes(pcm []int16) []byte {
	return AppendBytes(make([]byte, 0, len(pcm)*BytesPerSample), pcm)
}

// PutSamples encodes pcm into dst, which must hold at least
// len(pcm)*BytesPerSample bytes, and returns the number of bytes
// written.
func PutSamples(dst []byte, pcm []int16) int {
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(dst[i*BytesPerSample:], uint16(s))
	}
	return len(pcm) * BytesPerSample
}

// Sine fills buf with an interleaved multi-channel sine wave. The
// frequency f is expressed in cycles per sample and phase x is the
// starting sample index, so consecutive calls with advancing x
// produce a continuous signal.
func Sine(buf []int16, channels int, x int, f float64) int {
	if channels < 1 {
		channels = 1
	}
	frames := len(buf) / channels
	for i := 0; i < frames; i++ {
		s := int16(math.Round(32767 * math.Sin(2*math.Pi*f*float64(x+i))))
		for c := 0; c < channels; c++ {
			buf[i*channels+c] = s
		}
	}
	return x + frames
}
