// Package evidence implements the Core side of the AIR->Core evidence
// stream: a gRPC bidirectional stream of model.EvidenceMessage, acked
// per-message only after the message has been durably appended to the
// as-run log. Messages are hand-rolled JSON-tagged structs carried over
// grpc's wire using rpccodec's "proto"-subtype JSON codec, so no protoc
// invocation is required; ServiceName/StreamName below are this package's
// wire contract in place of a .proto file.
package evidence

import (
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"

	_ "github.com/retrovue/core/internal/rpccodec" // registers the JSON codec under the "proto" subtype
	"github.com/retrovue/core/internal/log"
	"github.com/retrovue/core/internal/metrics"
	"github.com/retrovue/core/internal/model"
)

const (
	serviceName = "retrovue.evidence.v1.EvidenceService"
	streamName  = "Stream"

	// FullMethod is the method string gRPC routes the bidi stream on, both
	// for the server's registration and the client's NewStream call.
	FullMethod = "/" + serviceName + "/" + streamName
)

// ServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit for a single bidi-streaming RPC.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    streamName,
			Handler:       streamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "retrovue/evidence.proto",
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	s, ok := srv.(*Server)
	if !ok {
		return fmt.Errorf("evidence: unexpected service implementation %T", srv)
	}
	return s.handleStream(stream)
}

// highWaterMark is the per (channel, playout_session) last-accepted
// sequence number, used both for ack replies and dedup.
type highWaterMark struct {
	sequence int64
	seenUUID map[string]bool
}

// Server is the Core-side evidence stream endpoint. Register it with
// grpc.Server.RegisterService(&evidence.ServiceDesc, server).
type Server struct {
	Writer *AsRunWriter

	mu   sync.Mutex
	marks map[string]*highWaterMark
}

// NewServer builds a Server backed by writer.
func NewServer(writer *AsRunWriter) *Server {
	return &Server{Writer: writer, marks: make(map[string]*highWaterMark)}
}

func markKey(channelID, sessionID string) string { return channelID + "|" + sessionID }

func (s *Server) handleStream(stream grpc.ServerStream) error {
	logger := log.WithComponent("evidence")

	for {
		var msg model.EvidenceMessage
		if err := stream.RecvMsg(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("evidence: recv: %w", err)
		}

		switch msg.Kind {
		case model.EvidenceHello:
			ack := model.Ack{AckedSequence: s.HighWaterMark(msg.ChannelID, msg.PlayoutSessionID)}
			if err := stream.SendMsg(&ack); err != nil {
				return fmt.Errorf("evidence: send hello ack: %w", err)
			}
			continue
		case model.EvidenceBlockStart, model.EvidenceSegmentStart, model.EvidenceSegmentEnd, model.EvidenceBlockFence:
		default:
			return fmt.Errorf("evidence: unknown payload kind %q", msg.Kind)
		}

		recvAt := time.Now()
		accepted, hwm := s.dedupAndAdvance(msg)
		if accepted {
			if err := s.Writer.Append(msg.ChannelID, msg); err != nil {
				logger.Error().Err(err).Str("channel_id", msg.ChannelID).Int64("sequence", msg.Sequence).Msg("failed to durably append evidence message")
				return fmt.Errorf("evidence: durable append failed, refusing to ack: %w", err)
			}
			metrics.ObserveAckLatency(time.Since(recvAt))
		} else {
			metrics.RecordDedupedMessage(msg.ChannelID)
		}

		ack := model.Ack{AckedSequence: hwm}
		if err := stream.SendMsg(&ack); err != nil {
			return fmt.Errorf("evidence: send ack: %w", err)
		}
	}
}

// dedupAndAdvance reports whether msg is new (by sequence and event_uuid)
// and the resulting high-water mark for its (channel, session) pair.
func (s *Server) dedupAndAdvance(msg model.EvidenceMessage) (accepted bool, highWater int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := markKey(msg.ChannelID, msg.PlayoutSessionID)
	hwm, ok := s.marks[k]
	if !ok {
		hwm = &highWaterMark{seenUUID: make(map[string]bool)}
		s.marks[k] = hwm
	}

	if msg.EventUUID != "" && hwm.seenUUID[msg.EventUUID] {
		return false, hwm.sequence
	}
	if msg.Sequence <= hwm.sequence {
		return false, hwm.sequence
	}

	hwm.sequence = msg.Sequence
	if msg.EventUUID != "" {
		hwm.seenUUID[msg.EventUUID] = true
	}
	return true, hwm.sequence
}

// HighWaterMark returns the current accepted sequence for (channelID,
// sessionID), used by Server.handleStream's initial Hello payload when a
// stream resumes.
func (s *Server) HighWaterMark(channelID, sessionID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hwm, ok := s.marks[markKey(channelID, sessionID)]; ok {
		return hwm.sequence
	}
	return 0
}
