// Package transport provides a gRPC-backed fle.ConnectionManager, adapted
// from redis_supervisor_service/internal/election/elector.go (dial/send/
// broadcast bookkeeping) and message.go (the hand-rolled gRPC service
// descriptor, generalized here to carry an opaque byte payload instead of
// the teacher's typed bully-algorithm fields).
package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// Envelope is the single message exchanged between peers: the sender's
// sid and the FLE wire-encoded payload (spec §4.1). FLE's own codec is
// transport-agnostic; transport only needs to get these bytes from A to B
// and report who sent them.
type Envelope struct {
	From    string
	Payload []byte
}

// Reset/String/ProtoMessage below make Envelope satisfy proto.Message the
// same minimal way the teacher's ElectionMessage does, without pulling in
// protoc-generated code.
func (e *Envelope) Reset() { *e = Envelope{} }
func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope{From:%s, Bytes:%d}", e.From, len(e.Payload))
}
func (*Envelope) ProtoMessage() {}

// Ack is the response every SendEnvelope call returns on success, carrying
// the receiving peer's sid.
type Ack struct{ From string }

func (a *Ack) Reset()         { *a = Ack{} }
func (a *Ack) String() string { return fmt.Sprintf("Ack{From:%s}", a.From) }
func (*Ack) ProtoMessage()    {}

// PeerTransportClient is the client side of the peer-to-peer envelope
// service.
type PeerTransportClient interface {
	SendEnvelope(ctx context.Context, in *Envelope, opts ...grpc.CallOption) (*Ack, error)
}

type peerTransportClient struct {
	cc grpc.ClientConnInterface
}

// NewPeerTransportClient wraps a ClientConn for the envelope service.
func NewPeerTransportClient(cc grpc.ClientConnInterface) PeerTransportClient {
	return &peerTransportClient{cc: cc}
}

func (c *peerTransportClient) SendEnvelope(ctx context.Context, in *Envelope, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/fle.transport.PeerTransport/SendEnvelope", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PeerTransportServer is the server side of the envelope service.
type PeerTransportServer interface {
	SendEnvelope(context.Context, *Envelope) (*Ack, error)
}

// RegisterPeerTransportServer registers srv with s.
func RegisterPeerTransportServer(s *grpc.Server, srv PeerTransportServer) {
	s.RegisterService(&peerTransportServiceDesc, srv)
}

func sendEnvelopeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerTransportServer).SendEnvelope(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/fle.transport.PeerTransport/SendEnvelope"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerTransportServer).SendEnvelope(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

var peerTransportServiceDesc = grpc.ServiceDesc{
	ServiceName: "fle.transport.PeerTransport",
	HandlerType: (*PeerTransportServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendEnvelope", Handler: sendEnvelopeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/envelope.go",
}
