// Package peerserver is the QuorumPeer-like enclosing state machine: it
// owns the registry, ledger, transport and messenger, implements fle.Peer,
// and drives entry into LOOKING and consumption of the election result.
//
// Grounded on
// redis_supervisor_service/internal/supervisor/supervisor.go's
// leadership-event loop, generalized from "react to elector.LeadershipEvents()"
// to "own the LookForLeader call directly", since FLE here is an in-scope
// library rather than the external bully-election dependency that teacher
// package reacted to.
package peerserver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fzsens/zookeeper/internal/fle"
	"github.com/fzsens/zookeeper/internal/ledger"
	"github.com/fzsens/zookeeper/internal/registry"
	"github.com/fzsens/zookeeper/internal/transport"
)

// Server wires the election core to its external collaborators and serves
// as the enclosing peer context FLE calls back into.
type Server struct {
	reg     *registry.Registry
	ledger  *ledger.Store
	manager *transport.Manager
	log     zerolog.Logger

	messenger *fle.Messenger
	election  *fle.Election

	mu          sync.RWMutex
	state       fle.State
	decidedVote *fle.Vote
	electedAt   time.Time

	electionStart atomic.Int64 // unix nano; 0 when no round in flight

	reelect chan struct{}
	done    chan struct{}
}

// New assembles a Server. The Manager must already be Start-ed (listening)
// before Run is called.
func New(reg *registry.Registry, store *ledger.Store, manager *transport.Manager, log zerolog.Logger) *Server {
	s := &Server{
		reg:     reg,
		ledger:  store,
		manager: manager,
		log:     log,
		state:   fle.StateLooking,
		reelect: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	s.election = fle.NewElection(s, manager, reg, log)
	s.messenger = fle.NewMessenger(reg, manager, reg, s.election, log)
	s.election.BindMessenger(s.messenger)
	return s
}

// --- fle.Peer ---

func (s *Server) SelfID() string { return s.reg.SelfID() }

func (s *Server) Learner() fle.LearnerType {
	if s.reg.IsVoter(s.reg.SelfID()) {
		return fle.Participant
	}
	return fle.Observer
}

func (s *Server) LastLoggedZxid() (uint64, error) { return s.ledger.LastLoggedZxid() }
func (s *Server) CurrentEpoch() (uint64, error)   { return s.ledger.CurrentEpoch() }
func (s *Server) Voters() []string                { return s.reg.Voters() }
func (s *Server) QuorumVerifier() fle.QuorumVerifier { return s.reg }

func (s *Server) SetPeerState(st fle.State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// --- fle.LocalView (delegated by Election, but Server needs a read-only
// snapshot for the admin surface) ---

// State returns the current peer state for the admin surface.
func (s *Server) State() fle.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// DecidedVote returns the last decided vote, if any.
func (s *Server) DecidedVote() (fle.Vote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.decidedVote == nil {
		return fle.Vote{}, false
	}
	return *s.decidedVote, true
}

// Run starts the messenger workers and loops running election rounds: one
// immediately, and one more each time TriggerElection is called while no
// round is in flight. Run blocks until ctx is cancelled or Halt is called.
func (s *Server) Run(ctx context.Context) {
	s.messenger.Start()
	s.manager.ConnectAll()

	s.runRound(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.reelect:
			s.runRound(ctx)
		}
	}
}

func (s *Server) runRound(ctx context.Context) {
	start := time.Now()
	s.electionStart.Store(start.UnixNano())
	defer s.electionStart.Store(0)

	v, err := s.election.LookForLeader(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("peerserver: election round aborted")
		return
	}
	if v == nil {
		return
	}

	latency := time.Since(start)
	s.log.Info().
		Str("leader", v.Leader).
		Uint64("zxid", v.Zxid).
		Uint64("electionEpoch", v.ElectionEpoch).
		Uint64("peerEpoch", v.PeerEpoch).
		Str("state", v.State.String()).
		Dur("latency", latency).
		Msg("peerserver: election decided")

	if err := s.ledger.AdvanceEpoch(v.PeerEpoch); err != nil {
		s.log.Warn().Err(err).Msg("peerserver: failed to advance ledger epoch")
	}
	if err := s.ledger.RecordDecision(v.Leader, v.Zxid, v.ElectionEpoch, v.PeerEpoch, v.State.String()); err != nil {
		s.log.Warn().Err(err).Msg("peerserver: failed to record decision")
	}

	s.mu.Lock()
	vv := *v
	s.decidedVote = &vv
	s.electedAt = time.Now()
	s.mu.Unlock()
}

// TriggerElection re-enters LOOKING on the next available slot. A no-op if
// a round is already in flight.
func (s *Server) TriggerElection() {
	if s.electionStart.Load() != 0 {
		return
	}
	s.mu.Lock()
	s.state = fle.StateLooking
	s.mu.Unlock()
	select {
	case s.reelect <- struct{}{}:
	default:
	}
}

// DecisionLatency reports how long the in-flight round has been running,
// or the latency of the last completed round if none is in flight.
func (s *Server) DecisionLatency() (time.Duration, bool) {
	if started := s.electionStart.Load(); started != 0 {
		return time.Since(time.Unix(0, started)), true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.decidedVote == nil {
		return 0, false
	}
	return 0, true
}

// Halt stops the election loop and the messenger's workers.
func (s *Server) Halt() {
	close(s.done)
	s.election.Halt()
	s.messenger.Halt()
}
