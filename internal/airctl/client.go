// Package airctl is the Core-side gRPC client for AIR Playout Control: a
// persistent bidirectional stream of model-level commands (prime the next
// block, swap, extend a fence, stop) with one Ack per command. Commands
// travel as JSON-tagged structs over rpccodec's "proto"-subtype codec, the
// same scheme the evidence stream uses, so no protoc invocation is needed
// here either.
package airctl

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"

	_ "github.com/retrovue/core/internal/rpccodec" // registers the JSON codec under the "proto" subtype
)

const (
	serviceName = "retrovue.airctl.v1.PlayoutControl"
	streamName  = "Control"

	// FullMethod is the wire method for the bidi control stream.
	FullMethod = "/" + serviceName + "/" + streamName
)

// CommandKind tags the Command sum type.
type CommandKind string

const (
	CommandPrimeNext   CommandKind = "prime_next"
	CommandSwap        CommandKind = "swap"
	CommandExtendFence CommandKind = "extend_fence"
	// CommandStop is the ONLY way to end a playout session. Closing the
	// gRPC stream (CloseSend, or the stream simply erroring out) must
	// never be treated by a sink as an implicit stop
	// (INV-SINK-NO-IMPLICIT-EOF) — the sink keeps playing out the last
	// primed block until an explicit CommandStop arrives.
	CommandStop CommandKind = "stop"
)

// Command is one control-stream request.
type Command struct {
	ChannelID string      `json:"channel_id"`
	Sequence  int64       `json:"sequence"`
	Kind      CommandKind `json:"kind"`
	BlockID   string      `json:"block_id,omitempty"`
}

// CommandAck is the per-command reply.
type CommandAck struct {
	AckedSequence int64  `json:"acked_sequence"`
	Accepted      bool   `json:"accepted"`
	Detail        string `json:"detail,omitempty"`
}

// Client drives one persistent control stream to AIR for a single channel.
type Client struct {
	mu     sync.Mutex
	stream grpc.ClientStream
}

// Dial opens the control stream over conn.
func Dial(ctx context.Context, conn *grpc.ClientConn) (*Client, error) {
	desc := &grpc.StreamDesc{StreamName: streamName, ServerStreams: true, ClientStreams: true}
	s, err := conn.NewStream(ctx, desc, FullMethod)
	if err != nil {
		return nil, fmt.Errorf("airctl: open control stream: %w", err)
	}
	return &Client{stream: s}, nil
}

// Send issues cmd and waits for its ack. Calls are serialized: AIR Playout
// Control is a strictly ordered command channel, never a fire-and-forget
// one.
func (c *Client) Send(cmd Command) (CommandAck, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stream.SendMsg(&cmd); err != nil {
		return CommandAck{}, fmt.Errorf("airctl: send %s: %w", cmd.Kind, err)
	}
	var ack CommandAck
	if err := c.stream.RecvMsg(&ack); err != nil {
		return CommandAck{}, fmt.Errorf("airctl: recv ack for %s: %w", cmd.Kind, err)
	}
	return ack, nil
}

// Stop sends the explicit stop command — the only legitimate way to end the
// session this client drives.
func (c *Client) Stop(channelID string, sequence int64) (CommandAck, error) {
	return c.Send(Command{ChannelID: channelID, Sequence: sequence, Kind: CommandStop})
}
