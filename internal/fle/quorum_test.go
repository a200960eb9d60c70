package fle

import "testing"

// majorityVerifier is a minimal QuorumVerifier for tests: each sid carries
// the weight given in members (0 for an observer or an unlisted sid), and a
// strict majority of the total weight is required.
type majorityVerifier struct {
	members map[string]uint64
}

func (m majorityVerifier) Weight(sid string) uint64 { return m.members[sid] }

func (m majorityVerifier) ContainsQuorum(sids map[string]struct{}) bool {
	var total, have uint64
	for _, w := range m.members {
		total += w
	}
	for sid := range sids {
		have += m.members[sid]
	}
	return total > 0 && have*2 > total
}

func TestTermPredicateQuorum(t *testing.T) {
	qv := majorityVerifier{members: map[string]uint64{"1": 1, "2": 1, "3": 1}}
	target := Vote{Leader: "3", Zxid: 0, PeerEpoch: 0}

	votes := map[string]Vote{
		"1": {Leader: "3", Zxid: 0, PeerEpoch: 0, ElectionEpoch: 1},
		"2": {Leader: "3", Zxid: 0, PeerEpoch: 0, ElectionEpoch: 1},
	}
	if !TermPredicate(qv, votes, target) {
		t.Fatal("2 of 3 matching votes should satisfy a strict majority quorum")
	}

	votes = map[string]Vote{
		"1": {Leader: "3", Zxid: 0, PeerEpoch: 0},
	}
	if TermPredicate(qv, votes, target) {
		t.Fatal("1 of 3 matching votes should not satisfy quorum")
	}
}

func TestTermPredicateIgnoresElectionEpochAndState(t *testing.T) {
	qv := majorityVerifier{members: map[string]uint64{"1": 1, "2": 1, "3": 1}}
	target := Vote{Leader: "3", Zxid: 5, PeerEpoch: 2}

	votes := map[string]Vote{
		"1": {Leader: "3", Zxid: 5, PeerEpoch: 2, ElectionEpoch: 99, State: StateLeading},
		"2": {Leader: "3", Zxid: 5, PeerEpoch: 2, ElectionEpoch: 1, State: StateLooking},
	}
	if !TermPredicate(qv, votes, target) {
		t.Fatal("SameProposal equality should ignore ElectionEpoch and State")
	}
}

type selfView struct {
	id    string
	clock uint64
}

func (s selfView) SelfID() string       { return s.id }
func (s selfView) LogicalClock() uint64 { return s.clock }

func TestCheckLeaderSelfClaim(t *testing.T) {
	self := selfView{id: "1", clock: 5}
	if !CheckLeader(self, map[string]Vote{}, "1", 5) {
		t.Fatal("self-claimed leadership at matching epoch should be trusted")
	}
	if CheckLeader(self, map[string]Vote{}, "1", 4) {
		t.Fatal("self-claimed leadership at a stale epoch must not be trusted")
	}
}

func TestCheckLeaderRequiresLeadingState(t *testing.T) {
	self := selfView{id: "1", clock: 5}
	votes := map[string]Vote{
		"7": {Leader: "7", State: StateFollowing},
	}
	if CheckLeader(self, votes, "7", 5) {
		t.Fatal("a claimed leader not itself reporting LEADING must not be trusted (crashed ex-leader)")
	}

	votes["7"] = Vote{Leader: "7", State: StateLeading}
	if !CheckLeader(self, votes, "7", 5) {
		t.Fatal("a claimed leader reporting LEADING should be trusted")
	}
}

func TestCheckLeaderAbsentLeader(t *testing.T) {
	self := selfView{id: "1", clock: 5}
	if CheckLeader(self, map[string]Vote{}, "7", 5) {
		t.Fatal("an absent leader entry must never be trusted")
	}
}
