package fle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// pollTimeout is the sender/receiver worker's blocking-poll granularity
// (spec §4.2: "nominally 3 s"). Not to be confused with the election loop's
// notification timeout, which backs off independently.
const pollTimeout = 3 * time.Second

// VotingView answers whether a sid is a current voting member, as opposed
// to an observer or a stranger.
type VotingView interface {
	IsVoter(sid string) bool
}

// LocalView is the slice of the enclosing peer's state the Messenger's
// receiver worker needs to build catch-up replies, without reaching into
// the election loop's locked proposal directly (spec §9, "Observer reply
// policy"). Implementations must snapshot consistently: CurrentState,
// CurrentVote and BackwardCompatVote should reflect the same instant.
type LocalView interface {
	CurrentState() State
	LogicalClock() uint64
	// Proposal is the in-round proposal triple while LOOKING, reported as
	// a Vote with State=LOOKING and ElectionEpoch=LogicalClock().
	Proposal() Vote
	// CurrentVote is the finalized vote once the local peer has decided
	// (FOLLOWING/LEADING) or the last vote an observer has learned.
	CurrentVote() Vote
	// BackwardCompatVote is the saved vote used to answer laggards still
	// speaking the legacy (version 0) wire format.
	BackwardCompatVote() Vote
}

// Messenger owns the send/receive queues and drives a sender and a
// receiver goroutine against a ConnectionManager (spec §4.2).
type Messenger struct {
	codec   sidCodec
	manager ConnectionManager
	voting  VotingView
	local   LocalView
	log     zerolog.Logger

	sendqueue *queue[ToSend]
	recvqueue *queue[Notification]

	wg     sync.WaitGroup
	halted chan struct{}
	once   sync.Once
}

// NewMessenger constructs a Messenger. The returned value is inert until
// Start is called.
func NewMessenger(codec sidCodec, manager ConnectionManager, voting VotingView, local LocalView, log zerolog.Logger) *Messenger {
	return &Messenger{
		codec:     codec,
		manager:   manager,
		voting:    voting,
		local:     local,
		log:       log,
		sendqueue: newQueue[ToSend](),
		recvqueue: newQueue[Notification](),
		halted:    make(chan struct{}),
	}
}

// RecvQueue exposes the queue the election loop polls for decoded
// Notifications.
func (m *Messenger) RecvQueue() *queue[Notification] { return m.recvqueue }

// Enqueue posts an outbound message for the sender worker to drain.
func (m *Messenger) Enqueue(ts ToSend) {
	m.sendqueue.Push(ts)
}

// QueueEmpty reports whether both queues are empty. Spec §9 flags the
// source's use of || here as unclear and instructs treating the intent as
// "true iff both queues are empty" absent contrary evidence; that is what
// this implements.
func (m *Messenger) QueueEmpty() bool {
	return m.sendqueue.Len() == 0 && m.recvqueue.Len() == 0
}

// Start spawns the sender and receiver workers.
func (m *Messenger) Start() {
	m.wg.Add(2)
	go m.senderLoop()
	go m.receiverLoop()
}

// Halt signals both workers to stop and waits for them to exit.
func (m *Messenger) Halt() {
	m.once.Do(func() { close(m.halted) })
	m.manager.Halt()
	m.sendqueue.Close()
	m.recvqueue.Close()
	m.wg.Wait()
}

func (m *Messenger) isHalted() bool {
	select {
	case <-m.halted:
		return true
	default:
		return false
	}
}

func (m *Messenger) senderLoop() {
	defer m.wg.Done()
	for !m.isHalted() {
		ts, ok := m.sendqueue.Poll(pollTimeout)
		if !ok {
			continue
		}
		payload := Encode(m.codec, ts.Leader, ts.Zxid, ts.ElectionEpoch, ts.PeerEpoch, ts.State, ts.Version)
		if err := m.manager.Send(ts.Sid, payload); err != nil {
			m.log.Warn().Err(err).Str("to", ts.Sid).Msg("fle: send failed")
		}
	}
}

func (m *Messenger) receiverLoop() {
	defer m.wg.Done()
	for !m.isHalted() {
		raw, err := m.manager.PollRecv(pollTimeout)
		if err != nil {
			m.log.Warn().Err(err).Msg("fle: pollRecv failed")
			continue
		}
		if raw == nil {
			continue
		}

		n, err := Decode(m.codec, raw.Sid, raw.Payload)
		if err != nil {
			m.log.Error().Err(err).Str("from", raw.Sid).Msg("fle: dropping undecodable message")
			continue
		}

		m.handleDecoded(n)
	}
}

func (m *Messenger) handleDecoded(n Notification) {
	if !m.voting.IsVoter(n.Sid) {
		// Policy 1: non-voter sender. Reply with our current vote and
		// discard the incoming message; this is how observers learn the
		// current leader.
		m.replyWithCurrentVote(n.Sid)
		return
	}

	switch m.local.CurrentState() {
	case StateLooking:
		// Policy 2: voter sender while local is LOOKING.
		m.recvqueue.Push(n)
		if n.State == StateLooking && n.ElectionEpoch < m.local.LogicalClock() {
			m.Enqueue(toSendFromVote(n.Sid, m.local.Proposal()))
		}
	default:
		// Policy 3: voter sender while local is not LOOKING.
		if n.State != StateLooking {
			return
		}
		if n.Version > 0 {
			m.replyWithCurrentVote(n.Sid)
		} else {
			m.replyWithBackwardCompatVote(n.Sid)
		}
	}
}

func (m *Messenger) replyWithCurrentVote(sid string) {
	v := m.local.CurrentVote()
	m.Enqueue(toSendFromVote(sid, v))
}

func (m *Messenger) replyWithBackwardCompatVote(sid string) {
	v := m.local.BackwardCompatVote()
	m.Enqueue(toSendFromVote(sid, v))
}
