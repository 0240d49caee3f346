// Package dapclient implements the DAP Client: the single component
// through which AIDB ever sends a Debug Adapter Protocol request. It
// owns the one receiver goroutine, the pending-request table, and the
// event subscription bus; everything else in AIDB — the Session, the
// Debug Service — talks to an adapter exclusively through a Client.
package dapclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aidb-dev/aidb/internal/aidberr"
	"github.com/aidb-dev/aidb/internal/core/protocol"
	"github.com/aidb-dev/aidb/internal/core/transport"
	"github.com/google/go-dap"
)

// ReverseRequestHandler answers an adapter-initiated request (e.g.
// StartDebugging for a JavaScript child session). Per I3 it must not
// call SendRequest; it may return a response body for the client to
// write back, or an error to surface as a DAP error response.
type ReverseRequestHandler func(ctx context.Context, req dap.Message) (dap.ResponseMessage, error)

// ExecutionState mirrors the event dispatch table's execution flag:
// running, or paused with the reason/thread the last Stopped event named.
type ExecutionState struct {
	Paused   bool
	Reason   string
	ThreadID int
}

// Client is a connected DAP session's single request/event gateway.
// Exactly one receiver goroutine reads transport.ReceiveMessage, so all
// dispatch below is single-threaded with respect to state updates.
type Client struct {
	log *slog.Logger

	tr *transport.Transport

	writeMu sync.Mutex // I1: at most one in-flight write at a time
	seq     int64      // atomically incremented outbound sequence number

	pending *pendingTable
	bus     *eventBus

	reverseMu sync.Mutex
	reverse   map[string]ReverseRequestHandler

	stateMu        sync.Mutex
	initialized    bool
	terminated     bool
	exitCode       *int
	execution      ExecutionState
	lastOutputLine string

	recvDone chan struct{}
}

// New wraps an already-connected transport. Call Run to start the
// receiver goroutine before issuing any request.
func New(tr *transport.Transport, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		log:      log,
		tr:       tr,
		pending:  newPendingTable(),
		bus:      newEventBus(),
		reverse:  make(map[string]ReverseRequestHandler),
		recvDone: make(chan struct{}),
	}
}

// Run starts the single receiver task. It returns once the transport is
// closed or a fatal decode error occurs; callers typically `go client.Run()`.
func (c *Client) Run() {
	defer close(c.recvDone)
	for {
		raw, err := c.tr.ReceiveMessage()
		if err != nil {
			c.log.Debug("dapclient: receive loop ending", "error", err)
			c.onTransportClosed(err)
			return
		}

		dec, err := protocol.Decode(raw)
		if err != nil {
			c.log.Warn("dapclient: dropping malformed frame", "error", err)
			continue
		}
		c.dispatch(dec)
	}
}

// Done reports when the receiver loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.recvDone
}

func (c *Client) onTransportClosed(cause error) {
	c.pending.failAll(&aidberr.TransportClosed{})
}

func (c *Client) dispatch(dec *protocol.Decoded) {
	switch dec.Type {
	case protocol.MessageTypeResponse:
		c.dispatchResponse(dec)
	case protocol.MessageTypeEvent:
		c.dispatchEvent(dec)
	case protocol.MessageTypeRequest:
		c.dispatchReverseRequest(dec)
	default:
		c.log.Warn("dapclient: unrecognized envelope type", "type", dec.Type)
	}
}

func (c *Client) dispatchResponse(dec *protocol.Decoded) {
	resp, ok := dec.Message.(dap.ResponseMessage)
	if !ok {
		c.log.Warn("dapclient: response payload not a ResponseMessage", "command", dec.Name)
		return
	}
	base := resp.GetResponse()

	var result pendingResult
	if base.Success {
		result = pendingResult{response: base}
	} else {
		result = pendingResult{err: &aidberr.AdapterError{Command: base.Command, Message: base.Message}}
	}
	// The full typed response (not just *dap.Response) is what callers
	// want back; stash it alongside the envelope via a type assertion at
	// the call site instead of losing it here.
	result.typed = dec.Message

	if !c.pending.resolve(base.RequestSeq, result) {
		c.log.Debug("dapclient: response for unknown request_seq", "request_seq", base.RequestSeq, "command", base.Command)
	}
}

func (c *Client) dispatchEvent(dec *protocol.Decoded) {
	c.applyEventStateUpdate(dec.Name, dec.Message)
	c.bus.dispatch(dec.Name, dec.Message)
}

// applyEventStateUpdate implements the fixed event dispatch table from
// spec.md §4.3: every event updates a specific piece of Client state
// before (and independent of) any subscriber running.
func (c *Client) applyEventStateUpdate(name string, msg dap.Message) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	switch name {
	case protocol.EventInitialized:
		c.initialized = true
	case protocol.EventStopped:
		if evt, ok := msg.(*dap.StoppedEvent); ok {
			c.execution = ExecutionState{Paused: true, Reason: evt.Body.Reason, ThreadID: evt.Body.ThreadId}
		}
	case protocol.EventContinued:
		c.execution = ExecutionState{Paused: false}
	case protocol.EventTerminated:
		c.terminated = true
		go c.pending.failAll(&aidberr.SessionTerminated{Reason: "terminated event received"})
	case protocol.EventExited:
		if evt, ok := msg.(*dap.ExitedEvent); ok {
			code := evt.Body.ExitCode
			c.exitCode = &code
		}
	case protocol.EventOutput:
		if evt, ok := msg.(*dap.OutputEvent); ok {
			c.lastOutputLine = evt.Body.Output
		}
	}
}

func (c *Client) dispatchReverseRequest(dec *protocol.Decoded) {
	req, ok := dec.Message.(dap.RequestMessage)
	if !ok {
		c.log.Warn("dapclient: reverse request payload not a RequestMessage", "command", dec.Name)
		return
	}

	c.reverseMu.Lock()
	handler, ok := c.reverse[dec.Name]
	c.reverseMu.Unlock()

	base := req.GetRequest()
	if !ok {
		c.writeResponse(base.Seq, dec.Name, false, fmt.Sprintf("no handler registered for reverse request %q", dec.Name))
		return
	}

	// Handlers must not issue new requests (I3); they only compute a
	// response body. Run them on the receiver goroutine synchronously.
	body, err := handler(context.Background(), dec.Message)
	if err != nil {
		c.writeResponse(base.Seq, dec.Name, false, err.Error())
		return
	}
	c.writeResponseBody(base.Seq, dec.Name, body)
}

func (c *Client) writeResponse(requestSeq int, command string, success bool, message string) {
	resp := &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.nextSeq(), Type: "response"},
		RequestSeq:      requestSeq,
		Success:         success,
		Command:         command,
		Message:         message,
	}
	c.writeRaw(resp)
}

func (c *Client) writeResponseBody(requestSeq int, command string, body dap.ResponseMessage) {
	if body == nil {
		c.writeResponse(requestSeq, command, true, "")
		return
	}
	base := body.GetResponse()
	base.Seq = c.nextSeq()
	base.Type = "response"
	base.RequestSeq = requestSeq
	if base.Command == "" {
		base.Command = command
	}
	c.writeRaw(body)
}

func (c *Client) writeRaw(msg dap.Message) {
	raw, err := protocol.Encode(msg)
	if err != nil {
		c.log.Error("dapclient: failed encoding outbound message", "error", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.tr.SendMessage(raw); err != nil {
		c.log.Debug("dapclient: failed writing reverse-request response", "error", err)
	}
}

// SetReverseRequestHandler installs the handler invoked for an
// adapter-initiated request named command (e.g. "startDebugging").
func (c *Client) SetReverseRequestHandler(command string, handler ReverseRequestHandler) {
	c.reverseMu.Lock()
	defer c.reverseMu.Unlock()
	c.reverse[command] = handler
}

// nextSeq allocates the next outbound sequence number (P2: strictly
// monotonic and unique per client).
func (c *Client) nextSeq() int {
	return int(atomic.AddInt64(&c.seq, 1))
}

// Initialized reports whether an `initialized` event has been observed.
func (c *Client) Initialized() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.initialized
}

// Terminated reports whether a `terminated` event has been observed.
func (c *Client) Terminated() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.terminated
}

// Execution returns the client's last-known execution state.
func (c *Client) Execution() ExecutionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.execution
}

// ExitCode returns the adapter-reported exit code, if an exited event
// has arrived.
func (c *Client) ExitCode() *int {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.exitCode
}

// SubscribeEvent registers a persistent handler for eventName. Per I3
// this is the external-subscriber path (spec.md §5): handler may issue
// requests of its own, since dispatch schedules it on its own goroutine
// after the event-dispatch pass rather than running it inline on the
// receiver goroutine.
func (c *Client) SubscribeEvent(eventName string, handler EventHandler) SubscriptionId {
	return c.bus.subscribe(eventName, handler, false)
}

// SubscribeInternalEvent registers a persistent handler the same way as
// SubscribeEvent, except the handler runs inline on the receiver
// goroutine as part of the dispatch pass itself. It exists for AIDB's
// own components (the Session's lifecycle bookkeeping) whose handlers
// never call SendRequest and depend on running in strict event-arrival
// order; it must not be used by a handler that issues requests.
func (c *Client) SubscribeInternalEvent(eventName string, handler EventHandler) SubscriptionId {
	return c.bus.subscribe(eventName, handler, true)
}

// UnsubscribeEvent removes a handler previously returned by SubscribeEvent.
func (c *Client) UnsubscribeEvent(eventName string, id SubscriptionId) {
	c.bus.unsubscribe(eventName, id)
}

// WaitForEvent blocks for the next occurrence of eventName, or until ctx
// is done.
func (c *Client) WaitForEvent(ctx context.Context, eventName string) (dap.Message, error) {
	ch := c.bus.waitOneShot(eventName)
	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		c.bus.cancelWait(eventName, ch)
		return nil, ctx.Err()
	}
}

// Close disconnects the transport without sending a Disconnect request;
// used when the transport is already known dead. Prefer Disconnect for
// a graceful shutdown.
func (c *Client) Close() error {
	return c.tr.Close()
}
