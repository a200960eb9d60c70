// Package registry provides the peer registry and quorum verifier FLE
// depends on as external collaborators (spec §1, §6): the voting/observer
// view, per-sid weights, and the numeric sid codec the wire format needs.
//
// Grounded on redis_supervisor_service/internal/election/elector.go's
// peers map[string]string plus sortedPeerID/compareIDs, generalized from a
// flat "everyone votes" bully roster to a weighted registry that can also
// carry observers.
package registry

import (
	"sort"
)

// Member describes one configured peer.
type Member struct {
	ID      string
	Address string
	// Weight is this peer's quorum weight. Zero marks an observer: it
	// never counts toward a quorum and never wins an election.
	Weight uint64
}

// Registry is the static (for one election round) view of the ensemble:
// who can vote, who is merely observing, and the numeric sid each string
// id maps to on the wire.
type Registry struct {
	selfID  string
	members map[string]Member
	// ordered is members sorted by ID, used both for deterministic
	// broadcast order and for assigning stable numeric sids.
	ordered []string
	sidOf   map[string]uint64
	idOf    map[uint64]string
}

// New builds a Registry from a member list. The self ID must appear in
// members.
func New(selfID string, members []Member) *Registry {
	r := &Registry{
		selfID:  selfID,
		members: make(map[string]Member, len(members)),
		sidOf:   make(map[string]uint64, len(members)),
		idOf:    make(map[uint64]string, len(members)),
	}

	for _, m := range members {
		r.members[m.ID] = m
		r.ordered = append(r.ordered, m.ID)
	}
	sort.Strings(r.ordered)

	for i, id := range r.ordered {
		// +1 so that sid 0 is never assigned: it is reserved as "no
		// leader" in contexts that zero-initialize a Vote.
		n := uint64(i + 1)
		r.sidOf[id] = n
		r.idOf[n] = id
	}

	return r
}

// SelfID returns the local peer's sid.
func (r *Registry) SelfID() string { return r.selfID }

// Voters returns every sid with nonzero weight, self included if voting,
// in deterministic order.
func (r *Registry) Voters() []string {
	voters := make([]string, 0, len(r.ordered))
	for _, id := range r.ordered {
		if r.members[id].Weight > 0 {
			voters = append(voters, id)
		}
	}
	return voters
}

// Addresses returns every configured member's dial address, keyed by sid,
// for the transport layer to connect to.
func (r *Registry) Addresses() map[string]string {
	out := make(map[string]string, len(r.members))
	for id, m := range r.members {
		out[id] = m.Address
	}
	return out
}

// Weight implements fle.Weigher: unknown sids carry zero weight, same as
// a configured observer.
func (r *Registry) Weight(sid string) uint64 {
	return r.members[sid].Weight
}

// IsVoter reports whether sid is a configured, nonzero-weight member —
// i.e. not an observer and not a stranger.
func (r *Registry) IsVoter(sid string) bool {
	return r.members[sid].Weight > 0
}

// ContainsQuorum implements fle.QuorumVerifier: a strict majority of total
// voting weight, matching spec §4.4's "typically strict majority".
func (r *Registry) ContainsQuorum(sids map[string]struct{}) bool {
	var total, have uint64
	for _, m := range r.members {
		total += m.Weight
	}
	for sid := range sids {
		have += r.members[sid].Weight
	}
	return total > 0 && have*2 > total
}

// EncodeSid implements the codec's sidCodec interface.
func (r *Registry) EncodeSid(sid string) uint64 {
	if sid == "" {
		return 0
	}
	return r.sidOf[sid]
}

// DecodeSid implements the codec's sidCodec interface.
func (r *Registry) DecodeSid(n uint64) string {
	if n == 0 {
		return ""
	}
	return r.idOf[n]
}
