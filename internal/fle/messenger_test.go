package fle

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

// fakeManager is an in-memory ConnectionManager for messenger tests: sent
// messages land directly in a channel the test can drain, and pollRecv
// drains a test-fed channel.
type fakeManager struct {
	sent   chan sentMessage
	recv   chan RawMessage
	halted chan struct{}
}

type sentMessage struct {
	sid     string
	payload []byte
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		sent:   make(chan sentMessage, 64),
		recv:   make(chan RawMessage, 64),
		halted: make(chan struct{}),
	}
}

func (f *fakeManager) Send(sid string, payload []byte) error {
	select {
	case f.sent <- sentMessage{sid, payload}:
	default:
	}
	return nil
}

func (f *fakeManager) PollRecv(timeout time.Duration) (*RawMessage, error) {
	select {
	case m := <-f.recv:
		return &m, nil
	case <-time.After(timeout):
		return nil, nil
	case <-f.halted:
		return nil, nil
	}
}

func (f *fakeManager) HaveDelivered() bool { return true }
func (f *fakeManager) ConnectAll()         {}
func (f *fakeManager) Halt()               { close(f.halted) }

type fakeVoting map[string]bool

func (v fakeVoting) IsVoter(sid string) bool { return v[sid] }

type fakeLocal struct {
	state    State
	clock    uint64
	proposal Vote
	current  Vote
	bc       Vote
}

func (l *fakeLocal) CurrentState() State        { return l.state }
func (l *fakeLocal) LogicalClock() uint64       { return l.clock }
func (l *fakeLocal) Proposal() Vote             { return l.proposal }
func (l *fakeLocal) CurrentVote() Vote          { return l.current }
func (l *fakeLocal) BackwardCompatVote() Vote   { return l.bc }

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestMessengerRepliesToNonVoter(t *testing.T) {
	defer goleak.VerifyNone(t)

	codec := newFakeCodec()
	manager := newFakeManager()
	voting := fakeVoting{"a": true} // "stranger" is not a voter
	local := &fakeLocal{state: StateLeading, current: Vote{Leader: "a", Zxid: 1, PeerEpoch: 1, State: StateLeading, Version: CurrentVersion}}

	m := NewMessenger(codec, manager, voting, local, testLogger())
	m.Start()
	defer m.Halt()

	raw := Encode(codec, "x", 0, 0, 0, StateLooking, CurrentVersion)
	manager.recv <- RawMessage{Sid: "stranger", Payload: raw}

	select {
	case sent := <-manager.sent:
		if sent.sid != "stranger" {
			t.Fatalf("expected reply addressed to stranger, got %s", sent.sid)
		}
		n, err := Decode(codec, "", sent.payload)
		if err != nil {
			t.Fatalf("decode reply: %v", err)
		}
		if n.Leader != "a" || n.State != StateLeading {
			t.Fatalf("expected current vote echoed back, got %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reply to the non-voter sender")
	}
}

func TestMessengerQueuesNotificationWhileLooking(t *testing.T) {
	defer goleak.VerifyNone(t)

	codec := newFakeCodec()
	manager := newFakeManager()
	voting := fakeVoting{"b": true}
	local := &fakeLocal{state: StateLooking, clock: 5, proposal: Vote{Leader: "self", ElectionEpoch: 5}}

	m := NewMessenger(codec, manager, voting, local, testLogger())
	m.Start()
	defer m.Halt()

	raw := Encode(codec, "b", 1, 5, 1, StateLooking, CurrentVersion)
	manager.recv <- RawMessage{Sid: "b", Payload: raw}

	n, ok := m.RecvQueue().Poll(2 * time.Second)
	if !ok {
		t.Fatal("expected a notification on recvqueue")
	}
	if n.Sid != "b" || n.ElectionEpoch != 5 {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestMessengerCatchUpReplyForLaggard(t *testing.T) {
	defer goleak.VerifyNone(t)

	codec := newFakeCodec()
	manager := newFakeManager()
	voting := fakeVoting{"b": true}
	local := &fakeLocal{state: StateLooking, clock: 10, proposal: Vote{Leader: "self", ElectionEpoch: 10}}

	m := NewMessenger(codec, manager, voting, local, testLogger())
	m.Start()
	defer m.Halt()

	// Sender b is also LOOKING but stuck at an older electionEpoch.
	raw := Encode(codec, "b", 1, 3, 1, StateLooking, CurrentVersion)
	manager.recv <- RawMessage{Sid: "b", Payload: raw}

	// It must be queued for the election loop...
	if _, ok := m.RecvQueue().Poll(2 * time.Second); !ok {
		t.Fatal("expected the laggard's notification to still reach recvqueue")
	}
	// ...and also get a reply carrying our in-round proposal to help it catch up.
	select {
	case sent := <-manager.sent:
		n, err := Decode(codec, "", sent.payload)
		if err != nil {
			t.Fatalf("decode reply: %v", err)
		}
		if n.Leader != "self" || n.ElectionEpoch != 10 {
			t.Fatalf("expected catch-up reply with current proposal, got %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a catch-up reply for the laggard")
	}
}

func TestMessengerRepliesLegacyVoteToVersionZeroLaggardWhileDecided(t *testing.T) {
	defer goleak.VerifyNone(t)

	codec := newFakeCodec()
	manager := newFakeManager()
	voting := fakeVoting{"b": true}
	bc := Vote{Leader: "self", Zxid: 1, ElectionEpoch: 1, State: StateLeading, Version: 0}
	local := &fakeLocal{state: StateLeading, bc: bc}

	m := NewMessenger(codec, manager, voting, local, testLogger())
	m.Start()
	defer m.Halt()

	raw := Encode(codec, "b", 0, 1, 0, StateLooking, 0) // version 0 laggard
	manager.recv <- RawMessage{Sid: "b", Payload: raw}

	select {
	case sent := <-manager.sent:
		n, err := Decode(codec, "", sent.payload)
		if err != nil {
			t.Fatalf("decode reply: %v", err)
		}
		if n.Version != 0 || n.Leader != "self" {
			t.Fatalf("expected backward-compatible vote, got %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reply to the version-0 laggard")
	}
}
