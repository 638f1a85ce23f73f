package codec

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// rtpHeaderLen is the fixed size of the streaming envelope header.
const rtpHeaderLen = 12

// mediaPayloadType is the dynamic RTP payload type used for all A2DP
// media streams.
const mediaPayloadType = 96

// rtpPacker wraps codec payloads in the streaming envelope. Sequence
// numbers increase strictly by one per wire frame produced; the
// timestamp advances by the number of per-channel samples the frame
// represents.
type rtpPacker struct {
	sequence  uint16
	timestamp uint32
	ssrc      uint32
}

func newRTPPacker() (*rtpPacker, error) {
	ssrcBytes := make([]byte, 4)
	if _, err := rand.Read(ssrcBytes); err != nil {
		return nil, fmt.Errorf("failed to generate SSRC: %w", err)
	}
	return &rtpPacker{ssrc: binary.BigEndian.Uint32(ssrcBytes)}, nil
}

// pack marshals one wire frame. samples is the per-channel sample
// count carried (or completed, for a fragment train) by this frame.
func (p *rtpPacker) pack(payload []byte, marker bool, samples uint32) ([]byte, error) {
	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    mediaPayloadType,
			SequenceNumber: p.sequence,
			Timestamp:      p.timestamp,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}
	data, err := packet.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal media envelope: %w", err)
	}
	p.sequence++
	p.timestamp += samples
	return data, nil
}

// rtpUnpacker strips the streaming envelope and detects sequence
// gaps. Gap handling is detect-and-count only: missing frames are
// reported, never reconstructed or reordered.
type rtpUnpacker struct {
	hasSequence  bool
	lastSequence uint16
	gaps         uint32
	log          *logrus.Entry
}

func newRTPUnpacker(log *logrus.Entry) *rtpUnpacker {
	return &rtpUnpacker{log: log}
}

func (u *rtpUnpacker) unpack(frame []byte) (*rtp.Packet, error) {
	packet := &rtp.Packet{}
	if err := packet.Unmarshal(frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	if u.hasSequence {
		expected := u.lastSequence + 1
		if packet.SequenceNumber != expected {
			missed := uint32(packet.SequenceNumber - expected)
			u.gaps += missed
			u.log.WithFields(logrus.Fields{
				"expected_sequence": expected,
				"received_sequence": packet.SequenceNumber,
				"missed":            missed,
			}).Warn("Sequence gap detected in media stream")
		}
	}
	u.lastSequence = packet.SequenceNumber
	u.hasSequence = true

	return packet, nil
}
