package dapclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/aidb-dev/aidb/internal/core/transport"
	"github.com/google/go-dap"
)

// Dial connects to an adapter's DAP socket and starts the receiver
// loop, returning a ready-to-use Client. maxFrameBytes of 0 uses the
// protocol package's default cap.
func Dial(ctx context.Context, host string, port int, maxFrameBytes int, log *slog.Logger) (*Client, error) {
	tr, err := transport.Connect(ctx, host, port, maxFrameBytes)
	if err != nil {
		return nil, err
	}
	c := New(tr, log)
	go c.Run()
	return c, nil
}

// Disconnect sends a Disconnect request (per spec.md §4.3, always,
// unless the transport is already dead) and then closes the
// transport. terminateDebuggee controls whether the adapter is asked
// to kill the debuggee process too.
func (c *Client) Disconnect(ctx context.Context, timeout time.Duration, terminateDebuggee bool) error {
	select {
	case <-c.Done():
		// The receiver loop has ended: the transport is already dead.
	default:
		req := &dap.DisconnectRequest{
			Request: dap.Request{Command: "disconnect"},
			Arguments: &dap.DisconnectArguments{
				TerminateDebuggee: terminateDebuggee,
			},
		}
		if _, err := c.SendRequest(ctx, req, timeout, NoRetry); err != nil {
			c.log.Debug("dapclient: disconnect request failed, closing transport anyway", "error", err)
		}
	}
	return c.Close()
}

// Reconnect tears down the current transport (without sending
// Disconnect — it is presumed dead) and dials a fresh one, replacing
// the Client's internal transport and restarting the receiver loop.
// Subscriptions survive; every request still pending on the old
// transport fails with TransportClosed when it closes.
func (c *Client) Reconnect(ctx context.Context, host string, port int, maxFrameBytes int) error {
	_ = c.tr.Close()
	<-c.recvDone

	tr, err := transport.Connect(ctx, host, port, maxFrameBytes)
	if err != nil {
		return err
	}

	c.tr = tr
	c.recvDone = make(chan struct{})
	go c.Run()
	return nil
}
