package dapclient

import (
	"context"
	"time"

	"github.com/aidb-dev/aidb/internal/aidberr"
	"github.com/aidb-dev/aidb/internal/core/protocol"
	"github.com/google/go-dap"
)

// SendRequest is the only path by which AIDB emits a DAP request. It
// allocates the next sequence number, registers the pending entry
// before writing (I2), serializes the write under the send lock (I1),
// and awaits either a response, a timeout, cancellation, or retries
// per policy. A timeout of 0 waits indefinitely (bounded only by ctx).
func (c *Client) SendRequest(ctx context.Context, req dap.RequestMessage, timeout time.Duration, policy RetryPolicy) (dap.Message, error) {
	attempt := func() (dap.Message, error) {
		return c.sendOnce(ctx, req, timeout)
	}
	return runWithRetry(ctx, policy, attempt)
}

func (c *Client) sendOnce(ctx context.Context, req dap.RequestMessage, timeout time.Duration) (dap.Message, error) {
	base := req.GetRequest()
	base.Seq = c.nextSeq()
	base.Type = "request"

	entry := c.pending.register(base.Seq, base.Command)

	raw, err := protocol.Encode(req)
	if err != nil {
		c.pending.forget(base.Seq)
		return nil, err
	}

	c.writeMu.Lock()
	sendErr := c.tr.SendMessage(raw)
	c.writeMu.Unlock()
	if sendErr != nil {
		c.pending.forget(base.Seq)
		return nil, sendErr
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case result := <-entry.resultCh:
		if result.err != nil {
			return nil, result.err
		}
		return result.typed, nil
	case <-timeoutCh:
		c.pending.forget(base.Seq)
		return nil, &aidberr.Timeout{Command: base.Command}
	case <-ctx.Done():
		c.pending.forget(base.Seq)
		return nil, &aidberr.RequestCancelled{Command: base.Command}
	}
}

// SendRequestNoWait writes req without waiting for its response, for
// deferred-response patterns such as a Launch whose response may arrive
// after the adapter's first Stopped event. The pending entry remains
// registered; the caller must reap it with AwaitPending.
func (c *Client) SendRequestNoWait(req dap.RequestMessage) (int, error) {
	base := req.GetRequest()
	base.Seq = c.nextSeq()
	base.Type = "request"

	c.pending.register(base.Seq, base.Command)

	raw, err := protocol.Encode(req)
	if err != nil {
		c.pending.forget(base.Seq)
		return 0, err
	}

	c.writeMu.Lock()
	sendErr := c.tr.SendMessage(raw)
	c.writeMu.Unlock()
	if sendErr != nil {
		c.pending.forget(base.Seq)
		return 0, sendErr
	}
	return base.Seq, nil
}

// AwaitPending reaps the response to a request previously sent with
// SendRequestNoWait.
func (c *Client) AwaitPending(ctx context.Context, seq int, timeout time.Duration) (dap.Message, error) {
	entry, ok := c.pending.lookup(seq)
	if !ok {
		return nil, &aidberr.InvalidArgument{Field: "seq", Reason: "no pending request with that sequence number"}
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case result := <-entry.resultCh:
		if result.err != nil {
			return nil, result.err
		}
		return result.typed, nil
	case <-timeoutCh:
		c.pending.forget(seq)
		return nil, &aidberr.Timeout{Command: entry.command}
	case <-ctx.Done():
		c.pending.forget(seq)
		return nil, &aidberr.RequestCancelled{Command: entry.command}
	}
}

// ExecutionWaiter returns a one-shot channel for the next Stopped or
// Terminated event, registered before the caller's subsequent
// Continue/Next/StepIn/StepOut request is sent, so the race against an
// adapter that fires the event before the response is closed. Callers
// wrap this around SendRequest for the four execution commands.
func (c *Client) ExecutionWaiter() (ch <-chan dap.Message, cancel func()) {
	raw, cancelFn := c.bus.waitOneShotAny(protocol.EventStopped, protocol.EventTerminated)
	return raw, cancelFn
}
