package fle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// finalizeWait is both the finalization drain window and the initial
	// notification timeout (spec §6).
	finalizeWait = 200 * time.Millisecond
	// maxNotificationInterval caps the exponential backoff on an empty
	// recvqueue (spec §6).
	maxNotificationInterval = 60 * time.Second
)

// LearnerType distinguishes a voting participant from an observer, which
// never casts a vote of its own (its init vote carries zero weight).
type LearnerType int

const (
	Participant LearnerType = iota
	Observer
)

// Peer is the enclosing QuorumPeer-like context lookForLeader needs:
// identity, the peer registry's voting view, the quorum verifier, and the
// transaction log's zxid/epoch (spec §6).
type Peer interface {
	SelfID() string
	Learner() LearnerType
	// LastLoggedZxid and CurrentEpoch read the data tree / transaction
	// log. An error here is the one condition that aborts lookForLeader
	// abnormally (spec §7).
	LastLoggedZxid() (uint64, error)
	CurrentEpoch() (uint64, error)
	// Voters lists every sid FLE broadcasts to, self included.
	Voters() []string
	QuorumVerifier() QuorumVerifier
	// SetPeerState notifies the enclosing server state machine of a role
	// transition.
	SetPeerState(State)
}

// Election runs the lookForLeader state machine for one peer. Construct a
// fresh Election (or reuse one across rounds — logicalclock persists
// across LookForLeader calls per spec §3) and call LookForLeader once per
// entry into LOOKING.
type Election struct {
	peer      Peer
	messenger *Messenger
	manager   ConnectionManager
	voting    VotingView
	log       zerolog.Logger

	mu             sync.Mutex
	logicalclock   uint64
	proposedLeader string
	proposedZxid   uint64
	proposedEpoch  uint64
	initVote       Vote
	state          State
	currentVote    Vote
	bcVote         Vote

	haltCh   chan struct{}
	haltOnce sync.Once
}

// NewElection wires an Election to its collaborators. The Messenger is
// bound separately via BindMessenger once constructed, since a Messenger
// in turn needs this Election as its LocalView (see peerserver for the
// standard two-step wiring order).
func NewElection(peer Peer, manager ConnectionManager, voting VotingView, log zerolog.Logger) *Election {
	return &Election{
		peer:    peer,
		manager: manager,
		voting:  voting,
		log:     log,
		haltCh:  make(chan struct{}),
	}
}

// BindMessenger attaches the Messenger this Election drives its recvqueue
// polling and broadcasts through. Must be called before LookForLeader.
func (e *Election) BindMessenger(messenger *Messenger) {
	e.messenger = messenger
}

// Halt stops a running LookForLeader at its next poll and makes future
// calls return immediately.
func (e *Election) Halt() {
	e.haltOnce.Do(func() { close(e.haltCh) })
}

func (e *Election) halted() bool {
	select {
	case <-e.haltCh:
		return true
	default:
		return false
	}
}

// --- LocalView, implemented for the Messenger's benefit ---

func (e *Election) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Election) LogicalClock() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logicalclock
}

func (e *Election) Proposal() Vote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Vote{
		Leader:        e.proposedLeader,
		Zxid:          e.proposedZxid,
		ElectionEpoch: e.logicalclock,
		PeerEpoch:     e.proposedEpoch,
		State:         StateLooking,
		Version:       CurrentVersion,
	}
}

func (e *Election) CurrentVote() Vote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentVote
}

func (e *Election) BackwardCompatVote() Vote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bcVote
}

// --- SelfView, for CheckLeader ---

func (e *Election) SelfID() string { return e.peer.SelfID() }

// LookForLeader is the main convergence loop (spec §4.5). It blocks until a
// decision is reached, the peer is halted, or ctx is cancelled.
func (e *Election) LookForLeader(ctx context.Context) (*Vote, error) {
	lastZxid, err := e.peer.LastLoggedZxid()
	if err != nil {
		return nil, err
	}
	currentEpoch, err := e.peer.CurrentEpoch()
	if err != nil {
		return nil, err
	}

	selfID := e.peer.SelfID()
	initID, initZxid, initEpoch := selfID, lastZxid, currentEpoch
	if e.peer.Learner() == Observer {
		// A non-participant's own vote carries zero weight; an empty sid
		// never equals a real candidate's sid and TotalOrderPredicate
		// rejects zero-weight leaders regardless.
		initID, initZxid, initEpoch = "", 0, 0
	}

	e.mu.Lock()
	e.logicalclock++
	e.proposedLeader, e.proposedZxid, e.proposedEpoch = initID, initZxid, initEpoch
	e.initVote = Vote{Leader: initID, Zxid: initZxid, PeerEpoch: initEpoch}
	e.state = StateLooking
	e.mu.Unlock()
	e.peer.SetPeerState(StateLooking)

	recvset := make(map[string]Vote)
	outOfElection := make(map[string]Vote)
	notTimeout := finalizeWait

	e.broadcastProposal()

	qv := e.peer.QuorumVerifier()

	for {
		if e.halted() {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		default:
		}

		n, ok := e.messenger.RecvQueue().Poll(notTimeout)
		if !ok {
			if e.manager.HaveDelivered() {
				e.broadcastProposal()
			} else {
				e.manager.ConnectAll()
			}
			notTimeout = minDuration(notTimeout*2, maxNotificationInterval)
			continue
		}

		if !e.voting.IsVoter(n.Sid) {
			e.log.Debug().Str("from", n.Sid).Msg("fle: ignoring notification from non-voter")
			continue
		}

		switch n.State {
		case StateLooking:
			clock := e.LogicalClock()
			switch {
			case n.ElectionEpoch > clock:
				e.mu.Lock()
				e.logicalclock = n.ElectionEpoch
				recvset = make(map[string]Vote)
				if TotalOrderPredicate(qv, n.Leader, n.Zxid, n.PeerEpoch, e.initVote.Leader, e.initVote.Zxid, e.initVote.PeerEpoch) {
					e.proposedLeader, e.proposedZxid, e.proposedEpoch = n.Leader, n.Zxid, n.PeerEpoch
				} else {
					e.proposedLeader, e.proposedZxid, e.proposedEpoch = e.initVote.Leader, e.initVote.Zxid, e.initVote.PeerEpoch
				}
				e.mu.Unlock()
				e.broadcastProposal()
			case n.ElectionEpoch < clock:
				continue
			default:
				e.mu.Lock()
				beats := TotalOrderPredicate(qv, n.Leader, n.Zxid, n.PeerEpoch, e.proposedLeader, e.proposedZxid, e.proposedEpoch)
				if beats {
					e.proposedLeader, e.proposedZxid, e.proposedEpoch = n.Leader, n.Zxid, n.PeerEpoch
				}
				e.mu.Unlock()
				if beats {
					e.broadcastProposal()
				}
			}

			recvset[n.Sid] = n.Vote()

			if TermPredicate(qv, recvset, e.Proposal()) {
				if better, ok := e.finalizationDrain(qv); ok {
					e.messenger.RecvQueue().PushFront(better)
					continue
				}
				return e.decideLooking(), nil
			}

		case StateObserving:
			e.log.Debug().Str("from", n.Sid).Msg("fle: ignoring OBSERVING notification")
			continue

		case StateFollowing, StateLeading:
			if n.ElectionEpoch == e.LogicalClock() {
				recvset[n.Sid] = n.Vote()
				if OOEPredicate(qv, e, recvset, outOfElection, n) {
					return e.decideJoin(n), nil
				}
			}

			outOfElection[n.Sid] = n.Vote()
			if OOEPredicate(qv, e, outOfElection, outOfElection, n) {
				e.mu.Lock()
				e.logicalclock = n.ElectionEpoch
				e.mu.Unlock()
				return e.decideJoin(n), nil
			}
		}
	}
}

// finalizationDrain implements the finalizeWait peek (spec §4.5, §9): it
// polls recvqueue for up to finalizeWait, consuming messages that do not
// beat the current proposal; the first one that does beat it is returned
// so the caller can push it back and resume the outer loop. A clean
// timeout (drains empty) reports ok=false, meaning the caller should
// decide.
func (e *Election) finalizationDrain(qv QuorumVerifier) (Notification, bool) {
	deadline := time.Now().Add(finalizeWait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Notification{}, false
		}
		m, ok := e.messenger.RecvQueue().Poll(remaining)
		if !ok {
			return Notification{}, false
		}

		e.mu.Lock()
		beats := TotalOrderPredicate(qv, m.Leader, m.Zxid, m.PeerEpoch, e.proposedLeader, e.proposedZxid, e.proposedEpoch)
		e.mu.Unlock()
		if beats {
			return m, true
		}
		// Consumed silently: draining is "peek for a better candidate",
		// not a full re-scan (spec §9).
	}
}

func (e *Election) decideLooking() *Vote {
	e.mu.Lock()
	leader, zxid, epoch, clock := e.proposedLeader, e.proposedZxid, e.proposedEpoch, e.logicalclock
	e.mu.Unlock()

	var newState State
	if leader == e.peer.SelfID() {
		newState = StateLeading
	} else {
		newState = e.learningState()
	}

	v := Vote{Leader: leader, Zxid: zxid, ElectionEpoch: clock, PeerEpoch: epoch, State: newState, Version: CurrentVersion}
	e.settle(newState, v)
	e.messenger.RecvQueue().Drain()
	return &v
}

func (e *Election) decideJoin(n Notification) *Vote {
	var newState State
	if n.Leader == e.peer.SelfID() {
		newState = StateLeading
	} else {
		newState = e.learningState()
	}
	v := n.Vote()
	v.State = newState
	e.settle(newState, v)
	return &v
}

func (e *Election) settle(newState State, v Vote) {
	e.mu.Lock()
	e.state = newState
	e.currentVote = v
	bc := v
	bc.Version = 0
	e.bcVote = bc
	e.mu.Unlock()
	e.peer.SetPeerState(newState)
}

// learningState maps a non-leader decision to FOLLOWING or OBSERVING
// (spec §4.6).
func (e *Election) learningState() State {
	if e.peer.Learner() == Observer {
		return StateObserving
	}
	return StateFollowing
}

func (e *Election) broadcastProposal() {
	v := e.Proposal()
	for _, sid := range e.peer.Voters() {
		e.messenger.Enqueue(toSendFromVote(sid, v))
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
