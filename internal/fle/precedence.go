package fle

// Weigher reports the quorum weight assigned to a sid. A weight of zero
// marks a non-voting participant (an observer): such a peer can never win
// an election regardless of how recent its state is.
type Weigher interface {
	Weight(sid string) uint64
}

// TotalOrderPredicate implements the vote-precedence ordering of spec §4.3:
// given a candidate (newID, newZxid, newEpoch) and an incumbent
// (curID, curZxid, curEpoch), report whether the candidate takes
// precedence. Precedence is peerEpoch first, then zxid, then sid as a
// deterministic tiebreak — never takes effect for a zero-weight candidate.
func TotalOrderPredicate(weigher Weigher, newID string, newZxid, newEpoch uint64, curID string, curZxid, curEpoch uint64) bool {
	if weigher.Weight(newID) == 0 {
		return false
	}

	switch {
	case newEpoch > curEpoch:
		return true
	case newEpoch < curEpoch:
		return false
	case newZxid > curZxid:
		return true
	case newZxid < curZxid:
		return false
	default:
		return newID > curID
	}
}
