package transport

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/aidb-dev/aidb/internal/core/protocol"
)

// listenLoopback starts a bare TCP listener standing in for an adapter's
// DAP socket and returns its port plus the first accepted connection.
func listenLoopback(t *testing.T) (int, chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return port, accepted
}

func TestConnectAndExchangeFrame(t *testing.T) {
	port, accepted := listenLoopback(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Connect(ctx, "127.0.0.1", port, 0)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	serverConn := <-accepted
	defer serverConn.Close()

	payload := []byte(`{"seq":1,"type":"request","command":"initialize"}`)
	if err := protocol.WriteFrame(serverConn, payload); err != nil {
		t.Fatalf("server WriteFrame: %v", err)
	}

	got, err := client.ReceiveMessage()
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}

	if err := client.SendMessage(payload); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
}

func TestConnectFailsOnUnreachablePort(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// Port 1 is reserved and should refuse connections immediately.
	if _, err := Connect(ctx, "127.0.0.1", 1, 0); err == nil {
		t.Fatalf("expected Connect to fail against an unreachable port")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	port, accepted := listenLoopback(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Connect(ctx, "127.0.0.1", port, 0)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	serverConn := <-accepted
	defer serverConn.Close()

	if err := client.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}

	if err := client.SendMessage([]byte(`{}`)); err == nil {
		t.Fatalf("expected SendMessage to fail after Close")
	}
}
