// Package transport provides the framed TCP connection an Adapter
// process's DAP server listens on. It knows nothing about DAP message
// semantics — that is internal/core/dapclient's job — only about
// establishing the socket and shuttling length-prefixed frames over it.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/aidb-dev/aidb/internal/aidberr"
	"github.com/aidb-dev/aidb/internal/core/protocol"
)

// Transport is a single framed duplex connection to an adapter's DAP
// socket. Writes are serialized internally; reads are expected to be
// driven by a single receiver goroutine as spec.md §4.2 requires.
type Transport struct {
	conn net.Conn
	dec  *protocol.Decoder

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// Connect dials host:port, trying the address as given first and
// falling back to an explicit IPv6 literal form if the adapter bound to
// "::1" rather than "127.0.0.1" (observed across debugpy/vscode-js-debug
// depending on platform). maxFrameBytes of 0 uses
// protocol.DefaultMaxFrameBytes.
func Connect(ctx context.Context, host string, port int, maxFrameBytes int) (*Transport, error) {
	if maxFrameBytes == 0 {
		maxFrameBytes = protocol.DefaultMaxFrameBytes
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp4", addr)
	if err != nil {
		v6Host := host
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			v6Host = "::1"
		}
		conn, err = d.DialContext(ctx, "tcp6", net.JoinHostPort(v6Host, fmt.Sprintf("%d", port)))
	}
	if err != nil {
		return nil, &aidberr.ConnectFailed{Cause: err}
	}

	return Wrap(conn, maxFrameBytes), nil
}

// Wrap adapts an already-established net.Conn into a Transport. Production
// code reaches it only through Connect; tests use it directly to drive a
// Transport over a net.Pipe() or similar in-memory connection.
func Wrap(conn net.Conn, maxFrameBytes int) *Transport {
	if maxFrameBytes == 0 {
		maxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	return &Transport{
		conn: conn,
		dec:  protocol.NewDecoder(bufio.NewReader(conn), maxFrameBytes),
	}
}

// SendMessage frames and writes a single payload. Safe for concurrent
// callers; the dapclient.Client still serializes logical requests, but
// SendMessage itself never interleaves two frames.
func (t *Transport) SendMessage(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.isClosed() {
		return &aidberr.TransportClosed{}
	}
	if err := protocol.WriteFrame(t.conn, payload); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ReceiveMessage blocks for the next frame. It must only ever be called
// from the single receiver goroutine a Transport's owner runs, per
// spec.md §4.2's single-reader invariant.
func (t *Transport) ReceiveMessage() ([]byte, error) {
	payload, err := t.dec.ReadFrame()
	if err == io.EOF {
		return nil, &aidberr.TransportClosed{}
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Close closes the underlying socket. Idempotent: a second call is a
// no-op rather than an error, since both the receiver loop's EOF path
// and an explicit Disconnect may race to close it.
func (t *Transport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func (t *Transport) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}

// SetDeadline propagates a read/write deadline to the underlying
// socket.
func (t *Transport) SetDeadline(d time.Time) error {
	return t.conn.SetDeadline(d)
}
