package fle

// QuorumVerifier decides whether a set of sids forms a quorum and what
// weight an individual sid carries. Implementations typically enforce a
// strict majority of voting-weight, per internal/registry.
type QuorumVerifier interface {
	Weigher
	ContainsQuorum(sids map[string]struct{}) bool
}

// TermPredicate collects every sid in votes whose stored vote matches v by
// (Leader, Zxid, PeerEpoch) and reports whether that set is a quorum.
func TermPredicate(qv QuorumVerifier, votes map[string]Vote, v Vote) bool {
	set := make(map[string]struct{}, len(votes))
	for sid, stored := range votes {
		if stored.SameProposal(v) {
			set[sid] = struct{}{}
		}
	}
	return qv.ContainsQuorum(set)
}

// SelfView is the minimal local-peer context CheckLeader needs: its own
// sid and its current logical clock value.
type SelfView interface {
	SelfID() string
	LogicalClock() uint64
}

// CheckLeader reports whether the claimed leader for electionEpoch can be
// trusted: either the local peer is itself that leader and its logical
// clock equals electionEpoch, or the leader's own entry in votes shows
// it is LEADING. This is what prevents converging on a crashed ex-leader
// (spec §8 P5, scenario S5).
func CheckLeader(self SelfView, votes map[string]Vote, leader string, electionEpoch uint64) bool {
	if leader == self.SelfID() {
		return self.LogicalClock() == electionEpoch
	}
	v, ok := votes[leader]
	return ok && v.State == StateLeading
}

// OOEPredicate is the conjunction used on the FOLLOWING/LEADING path: a
// quorum of recv must agree on n's vote, and that vote's leader must pass
// CheckLeader against outOfElection (shown LEADING there, or the local peer
// itself at a matching logical clock).
func OOEPredicate(qv QuorumVerifier, self SelfView, recv map[string]Vote, outOfElection map[string]Vote, n Notification) bool {
	return TermPredicate(qv, recv, n.Vote()) && CheckLeader(self, outOfElection, n.Leader, n.ElectionEpoch)
}
