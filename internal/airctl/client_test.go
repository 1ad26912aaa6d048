package airctl

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func dialFake(t *testing.T, fake *Fake) (*grpc.ClientConn, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	gs.RegisterService(&ServiceDesc, fake)
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

func TestClosingStreamWithoutStopDoesNotStopTheFake(t *testing.T) {
	fake := NewFake()
	conn, cleanup := dialFake(t, fake)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, conn)
	if err != nil {
		t.Fatalf("dial control stream: %v", err)
	}

	ack, err := client.Send(Command{ChannelID: "CH1", Sequence: 1, Kind: CommandPrimeNext, BlockID: "blk-1"})
	if err != nil {
		t.Fatalf("send prime_next: %v", err)
	}
	if !ack.Accepted || ack.AckedSequence != 1 {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	cancel() // tear the stream down without ever sending CommandStop

	time.Sleep(50 * time.Millisecond)
	if fake.IsStopped() {
		t.Fatal("stream teardown must not implicitly stop the sink (INV-SINK-NO-IMPLICIT-EOF)")
	}
}

func TestExplicitStopStopsTheFake(t *testing.T) {
	fake := NewFake()
	conn, cleanup := dialFake(t, fake)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, conn)
	if err != nil {
		t.Fatalf("dial control stream: %v", err)
	}

	if _, err := client.Stop("CH1", 1); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !fake.IsStopped() {
		t.Fatal("expected explicit stop to mark the fake stopped")
	}
}
