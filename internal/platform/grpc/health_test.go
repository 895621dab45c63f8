package grpc

import (
	"context"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestServeHealthReportsServing(t *testing.T) {
	server, err := ServeHealth("127.0.0.1:0", "sweeper.runtime")
	if err != nil {
		t.Fatalf("serve health: %v", err)
	}
	defer server.Stop()

	conn := dialHealthServer(t, server.Addr().String())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := WaitForHealth(ctx, conn, "sweeper.runtime", nil); err != nil {
		t.Fatalf("wait for health: %v", err)
	}
}

func TestWaitForHealthTransitionsToServing(t *testing.T) {
	server, err := ServeHealth("127.0.0.1:0")
	if err != nil {
		t.Fatalf("serve health: %v", err)
	}
	defer server.Stop()
	server.SetServing("sweeper.runtime", false)

	conn := dialHealthServer(t, server.Addr().String())
	defer conn.Close()

	go func() {
		time.Sleep(200 * time.Millisecond)
		server.SetServing("sweeper.runtime", true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var logged int
	if err := WaitForHealth(ctx, conn, "sweeper.runtime", func(string, ...any) { logged++ }); err != nil {
		t.Fatalf("wait for health after transition: %v", err)
	}
	if logged == 0 {
		t.Fatal("expected progress to be logged")
	}
}

func TestWaitForHealthRespectsContext(t *testing.T) {
	server, err := ServeHealth("127.0.0.1:0")
	if err != nil {
		t.Fatalf("serve health: %v", err)
	}
	defer server.Stop()
	server.SetServing("sweeper.runtime", false)

	conn := dialHealthServer(t, server.Addr().String())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := WaitForHealth(ctx, conn, "sweeper.runtime", nil); err == nil {
		t.Fatal("expected context error, got nil")
	}
}

func TestWaitForHealthRequiresConn(t *testing.T) {
	if err := WaitForHealth(context.Background(), nil, "", nil); err == nil {
		t.Fatal("expected error for nil connection")
	}
}

func TestStopNilServer(t *testing.T) {
	var server *HealthServer
	server.Stop()
}

func dialHealthServer(t *testing.T, addr string) *gogrpc.ClientConn {
	t.Helper()

	conn, err := gogrpc.NewClient(
		addr,
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial health server: %v", err)
	}

	return conn
}
