package fle

import (
	"encoding/binary"
	"fmt"
)

// Wire layout (big-endian), modern format, 40 bytes total:
//
//	offset  width  field
//	0       4      state ordinal
//	4       8      proposed leader sid (as a uint64 numeric id)
//	12      8      proposed zxid
//	20      8      election epoch
//	28      8      peer epoch
//	36      4      format version
//
// The legacy 28-byte layout omits peerEpoch and version; the decoder
// synthesizes peerEpoch from the upper 32 bits of zxid and reports
// version 0.
const (
	modernWireSize = 40
	legacyWireSize = 28
	minWireSize    = legacyWireSize
)

// ErrShortMessage is returned by Decode when fewer than 28 bytes are given.
var ErrShortMessage = fmt.Errorf("fle: message shorter than %d bytes", minWireSize)

// ErrUnknownState is returned by Decode when the state ordinal is not one
// of the four known states.
type ErrUnknownState struct{ Ordinal uint32 }

func (e ErrUnknownState) Error() string {
	return fmt.Sprintf("fle: unknown state ordinal %d", e.Ordinal)
}

// sidCodec turns peer ids (arbitrary strings at the registry layer) into
// the fixed-width numeric sid the wire format carries. FLE's own data model
// treats sid as an opaque comparable identifier; the codec only needs a
// stable, deterministic mapping to and from 8 bytes.
type sidCodec interface {
	EncodeSid(sid string) uint64
	DecodeSid(n uint64) string
}

// Encode serializes a ToSend into the modern 40-byte wire format.
func Encode(codec sidCodec, leader string, zxid, electionEpoch, peerEpoch uint64, state State, version uint32) []byte {
	buf := make([]byte, modernWireSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(state))
	binary.BigEndian.PutUint64(buf[4:12], codec.EncodeSid(leader))
	binary.BigEndian.PutUint64(buf[12:20], zxid)
	binary.BigEndian.PutUint64(buf[20:28], electionEpoch)
	binary.BigEndian.PutUint64(buf[28:36], peerEpoch)
	binary.BigEndian.PutUint32(buf[36:40], version)
	return buf
}

// Decode parses a wire message into a Notification, tagging it with the
// given sender sid (sid is carried out-of-band by the transport, e.g. the
// gRPC envelope's From field, not by the message body itself).
func Decode(codec sidCodec, sender string, raw []byte) (Notification, error) {
	if len(raw) < minWireSize {
		return Notification{}, ErrShortMessage
	}

	ordinal := binary.BigEndian.Uint32(raw[0:4])
	state, err := stateFromOrdinal(ordinal)
	if err != nil {
		return Notification{}, err
	}

	leader := codec.DecodeSid(binary.BigEndian.Uint64(raw[4:12]))
	zxid := binary.BigEndian.Uint64(raw[12:20])
	electionEpoch := binary.BigEndian.Uint64(raw[20:28])

	n := Notification{
		Sid:           sender,
		Leader:        leader,
		Zxid:          zxid,
		ElectionEpoch: electionEpoch,
		State:         state,
	}

	if len(raw) >= modernWireSize {
		n.PeerEpoch = binary.BigEndian.Uint64(raw[28:36])
		n.Version = binary.BigEndian.Uint32(raw[36:40])
	} else {
		// Backward-compatible path: no peerEpoch/version on the wire.
		n.PeerEpoch = epochOfZxid(zxid)
		n.Version = 0
	}

	return n, nil
}

func stateFromOrdinal(ordinal uint32) (State, error) {
	switch State(ordinal) {
	case StateLooking, StateFollowing, StateLeading, StateObserving:
		return State(ordinal), nil
	default:
		return 0, ErrUnknownState{Ordinal: ordinal}
	}
}
