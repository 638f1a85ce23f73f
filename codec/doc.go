// Package codec implements the per-codec framing and packetization
// logic of the media I/O engine.
//
// Streaming (A2DP) codecs slice PCM into codec frames and wrap them
// in an RTP envelope (sequence number, timestamp, payload type),
// packing as many whole frames as fit within the negotiated write
// MTU. Voice (SCO) codecs exchange fixed-size frames with no
// envelope. The codec set is closed: SBC, AAC, aptX and LDAC for
// streaming, CVSD and mSBC for voice. Dispatch over the set is an
// exhaustive switch, so adding or removing a codec is a localized,
// compile-checked change.
//
// The codec bitstream arithmetic itself is an opaque contract: each
// framer drives an internal kernel that honors the codec's real
// frame-size and bitrate arithmetic over a simple linear quantizer.
// Swapping a kernel for a DSP-backed codec library changes nothing
// outside this package.
package codec
