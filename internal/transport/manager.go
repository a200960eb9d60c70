package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fzsens/zookeeper/internal/fle"
)

const dialTimeout = 2 * time.Second

// recvBufferSize is how many undelivered envelopes the manager will queue
// before newer arrivals are dropped with a log line; the election loop's
// own backoff keeps this from filling under normal operation.
const recvBufferSize = 256

// Manager is a gRPC-backed fle.ConnectionManager. Peers dial each other
// directly (no connection pooling beyond one client per peer, same as the
// teacher's getOrDialClient) and exchange Envelopes carrying FLE's own
// wire-encoded bytes.
type Manager struct {
	selfID string
	addrs  map[string]string // sid -> dial address; self's entry, if any, is never dialed
	log    zerolog.Logger

	server *grpc.Server
	lis    net.Listener

	clientsMu sync.Mutex
	clients   map[string]*grpc.ClientConn

	recvCh chan fle.RawMessage
	done   chan struct{}
	once   sync.Once

	delivered atomic.Bool
}

// NewManager creates a Manager with peer dial addresses keyed by sid
// (self's own entry, if present, is ignored — Send loops messages
// addressed to selfID back locally instead of dialing out). Call Start to
// open the listener before ConnectAll/Send are useful.
func NewManager(selfID string, addrs map[string]string, log zerolog.Logger) *Manager {
	m := &Manager{
		selfID:  selfID,
		addrs:   addrs,
		log:     log,
		clients: make(map[string]*grpc.ClientConn),
		recvCh:  make(chan fle.RawMessage, recvBufferSize),
		done:    make(chan struct{}),
	}
	m.delivered.Store(true)
	return m
}

func (m *Manager) SendEnvelope(ctx context.Context, in *Envelope) (*Ack, error) {
	select {
	case m.recvCh <- fle.RawMessage{Sid: in.From, Payload: in.Payload}:
	default:
		m.log.Warn().Str("from", in.From).Msg("transport: recv buffer full, dropping envelope")
	}
	return &Ack{From: m.selfID}, nil
}

// Start opens the listener and begins serving. Must be called before
// ConnectAll/Send are useful.
func (m *Manager) Start(listenAddr string) error {
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", listenAddr, err)
	}
	m.lis = lis
	m.server = grpc.NewServer()
	RegisterPeerTransportServer(m.server, m)

	go func() {
		if err := m.server.Serve(lis); err != nil {
			m.log.Debug().Err(err).Msg("transport: server stopped")
		}
	}()
	return nil
}

func (m *Manager) Send(sid string, payload []byte) error {
	if sid == m.selfID {
		select {
		case m.recvCh <- fle.RawMessage{Sid: sid, Payload: payload}:
		default:
			m.log.Warn().Msg("transport: recv buffer full, dropping self-loop envelope")
		}
		return nil
	}

	conn, err := m.dial(sid)
	if err != nil {
		m.delivered.Store(false)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	client := NewPeerTransportClient(conn)
	if _, err := client.SendEnvelope(ctx, &Envelope{From: m.selfID, Payload: payload}); err != nil {
		m.delivered.Store(false)
		return fmt.Errorf("transport: send to %s: %w", sid, err)
	}
	m.delivered.Store(true)
	return nil
}

func (m *Manager) PollRecv(timeout time.Duration) (*fle.RawMessage, error) {
	select {
	case msg := <-m.recvCh:
		return &msg, nil
	case <-time.After(timeout):
		return nil, nil
	case <-m.done:
		return nil, nil
	}
}

func (m *Manager) HaveDelivered() bool {
	return m.delivered.Load()
}

func (m *Manager) ConnectAll() {
	for sid := range m.addrs {
		if sid == m.selfID {
			continue
		}
		sid := sid
		go func() {
			if _, err := m.dial(sid); err != nil {
				m.log.Debug().Err(err).Str("sid", sid).Msg("transport: connect failed")
			}
		}()
	}
}

func (m *Manager) Halt() {
	m.once.Do(func() { close(m.done) })
	if m.server != nil {
		m.server.GracefulStop()
	}
	if m.lis != nil {
		_ = m.lis.Close()
	}
	m.clientsMu.Lock()
	for sid, conn := range m.clients {
		_ = conn.Close()
		delete(m.clients, sid)
	}
	m.clientsMu.Unlock()
}

func (m *Manager) dial(sid string) (*grpc.ClientConn, error) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	if conn, ok := m.clients[sid]; ok {
		return conn, nil
	}

	addr, ok := m.addrs[sid]
	if !ok {
		return nil, fmt.Errorf("transport: unknown peer %s", sid)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s (%s): %w", sid, addr, err)
	}
	m.clients[sid] = conn
	return conn, nil
}
