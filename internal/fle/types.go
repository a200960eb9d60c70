// Package fle implements the Fast Leader Election state machine: the
// per-peer algorithm that exchanges Notifications over a Messenger until a
// quorum converges on a single Vote.
package fle

import "fmt"

// State is one of the four roles a peer can occupy during and after an
// election round.
type State int32

const (
	StateLooking State = iota
	StateFollowing
	StateLeading
	StateObserving
)

func (s State) String() string {
	switch s {
	case StateLooking:
		return "LOOKING"
	case StateFollowing:
		return "FOLLOWING"
	case StateLeading:
		return "LEADING"
	case StateObserving:
		return "OBSERVING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// CurrentVersion is the modern wire format version for encoded notifications.
const CurrentVersion uint32 = 0x1

// Vote is the immutable tuple a peer casts and ultimately settles on.
// Equality for termination counting is by (Leader, Zxid, PeerEpoch); Epoch
// and State are carried alongside but excluded from that equality.
type Vote struct {
	Leader        string
	Zxid          uint64
	ElectionEpoch uint64
	PeerEpoch     uint64
	State         State
	Version       uint32
}

// SameProposal reports whether v and o would be counted as the same vote by
// the termination predicate: equal leader, zxid and peer epoch.
func (v Vote) SameProposal(o Vote) bool {
	return v.Leader == o.Leader && v.Zxid == o.Zxid && v.PeerEpoch == o.PeerEpoch
}

// Notification is a decoded inbound election message, tagged with the
// sender's sid.
type Notification struct {
	Sid           string
	Leader        string
	Zxid          uint64
	ElectionEpoch uint64
	PeerEpoch     uint64
	State         State
	Version       uint32
}

// Vote extracts the Vote payload carried by a Notification.
func (n Notification) Vote() Vote {
	return Vote{
		Leader:        n.Leader,
		Zxid:          n.Zxid,
		ElectionEpoch: n.ElectionEpoch,
		PeerEpoch:     n.PeerEpoch,
		State:         n.State,
		Version:       n.Version,
	}
}

// ToSend is an outbound election message addressed to a specific peer.
type ToSend struct {
	Sid           string
	Leader        string
	Zxid          uint64
	ElectionEpoch uint64
	PeerEpoch     uint64
	State         State
	Version       uint32
}

func toSendFromVote(sid string, v Vote) ToSend {
	return ToSend{
		Sid:           sid,
		Leader:        v.Leader,
		Zxid:          v.Zxid,
		ElectionEpoch: v.ElectionEpoch,
		PeerEpoch:     v.PeerEpoch,
		State:         v.State,
		Version:       v.Version,
	}
}

// epochOfZxid returns the upper 32 bits of a zxid: the peer-epoch under
// which that transaction id was issued.
func epochOfZxid(zxid uint64) uint64 {
	return zxid >> 32
}
