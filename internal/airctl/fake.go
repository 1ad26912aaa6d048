package airctl

import (
	"fmt"
	"io"
	"sync"

	"google.golang.org/grpc"
)

// Fake is an in-memory AIR Playout Control double for tests. It tracks
// whether a session was stopped EXPLICITLY (via CommandStop) as distinct
// from the stream simply ending (client disconnect, CloseSend, network
// error) — the latter must never flip Stopped, enforcing
// INV-SINK-NO-IMPLICIT-EOF in test doubles the same way a real sink must
// enforce it in production.
type Fake struct {
	mu       sync.Mutex
	Stopped  bool
	LastSeq  map[string]int64 // channelID -> last accepted sequence
	Received []Command
}

// NewFake builds an empty Fake.
func NewFake() *Fake {
	return &Fake{LastSeq: make(map[string]int64)}
}

// ServiceDesc is the hand-written grpc.ServiceDesc for the control stream,
// mirroring evidence.ServiceDesc's construction.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    streamName,
			Handler:       fakeStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "retrovue/airctl.proto",
}

func fakeStreamHandler(srv any, stream grpc.ServerStream) error {
	f, ok := srv.(*Fake)
	if !ok {
		return fmt.Errorf("airctl: unexpected service implementation %T", srv)
	}
	return f.handleStream(stream)
}

func (f *Fake) handleStream(stream grpc.ServerStream) error {
	for {
		var cmd Command
		if err := stream.RecvMsg(&cmd); err != nil {
			// The stream ending — for any reason, including a clean
			// io.EOF from CloseSend — is NOT a stop signal. Only an
			// explicit CommandStop message sets Stopped.
			if err == io.EOF {
				return nil
			}
			return err
		}

		f.mu.Lock()
		f.Received = append(f.Received, cmd)
		if cmd.Sequence > f.LastSeq[cmd.ChannelID] {
			f.LastSeq[cmd.ChannelID] = cmd.Sequence
		}
		if cmd.Kind == CommandStop {
			f.Stopped = true
		}
		ack := CommandAck{AckedSequence: f.LastSeq[cmd.ChannelID], Accepted: true}
		f.mu.Unlock()

		if err := stream.SendMsg(&ack); err != nil {
			return err
		}
	}
}

// IsStopped reports whether an explicit CommandStop has ever been received.
func (f *Fake) IsStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Stopped
}
