package evidence

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/retrovue/core/internal/model"
)

func dialEvidence(t *testing.T, srv *Server) (*grpc.ClientConn, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	gs.RegisterService(&ServiceDesc, srv)
	go func() { _ = gs.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn, func() { conn.Close(); gs.Stop() }
}

func TestStreamAcksInOrderAndDedupsReplays(t *testing.T) {
	dir := t.TempDir()
	srv := NewServer(NewAsRunWriter(dir))
	conn, cleanup := dialEvidence(t, srv)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}

	send := func(seq int64, uuid string) model.Ack {
		msg := model.EvidenceMessage{
			ChannelID:        "CH1",
			PlayoutSessionID: "sess-1",
			Sequence:         seq,
			EventUUID:        uuid,
			EmittedUTC:       time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
			Kind:             model.EvidenceBlockStart,
			BlockStart:       &model.BlockStartPayload{BlockID: "blk-1"},
		}
		if err := stream.SendMsg(&msg); err != nil {
			t.Fatalf("send seq %d: %v", seq, err)
		}
		var ack model.Ack
		if err := stream.RecvMsg(&ack); err != nil {
			t.Fatalf("recv ack for seq %d: %v", seq, err)
		}
		return ack
	}

	if ack := send(1, "u1"); ack.AckedSequence != 1 {
		t.Fatalf("expected ack 1, got %d", ack.AckedSequence)
	}
	if ack := send(2, "u2"); ack.AckedSequence != 2 {
		t.Fatalf("expected ack 2, got %d", ack.AckedSequence)
	}
	// Replay of an already-seen sequence must not advance the high-water mark.
	if ack := send(2, "u2"); ack.AckedSequence != 2 {
		t.Fatalf("expected replay to ack the existing high-water mark 2, got %d", ack.AckedSequence)
	}

	if hwm := srv.HighWaterMark("CH1", "sess-1"); hwm != 2 {
		t.Fatalf("expected high-water mark 2, got %d", hwm)
	}
}
