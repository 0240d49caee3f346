package dapclient

import (
	"sync"

	"github.com/google/go-dap"
)

// pendingRequest is one outstanding request awaiting its response.
// resultCh receives exactly one value; whoever owns the entry (the
// receiver loop, a timeout, a cancellation, or session termination) is
// responsible for sending to it exactly once (P1).
type pendingRequest struct {
	command  string
	resultCh chan pendingResult
}

type pendingResult struct {
	response *dap.Response
	typed    dap.Message // the fully-typed response (e.g. *dap.SetBreakpointsResponse)
	err      error
}

// pendingTable is the concurrent map keyed by outbound sequence number
// that Client.SendRequest registers into before writing a frame (I2).
type pendingTable struct {
	mu      sync.Mutex
	entries map[int]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[int]*pendingRequest)}
}

func (t *pendingTable) register(seq int, command string) *pendingRequest {
	entry := &pendingRequest{command: command, resultCh: make(chan pendingResult, 1)}
	t.mu.Lock()
	t.entries[seq] = entry
	t.mu.Unlock()
	return entry
}

func (t *pendingTable) resolve(seq int, result pendingResult) bool {
	t.mu.Lock()
	entry, ok := t.entries[seq]
	if ok {
		delete(t.entries, seq)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	entry.resultCh <- result
	return true
}

// lookup finds an already-registered entry, used by AwaitPending to
// reap a request previously sent with SendRequestNoWait.
func (t *pendingTable) lookup(seq int) (*pendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[seq]
	return entry, ok
}

func (t *pendingTable) forget(seq int) {
	t.mu.Lock()
	delete(t.entries, seq)
	t.mu.Unlock()
}

// failAll resolves every outstanding entry with err, used when the
// terminated event arrives or the transport dies (P1, SessionTerminated).
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[int]*pendingRequest)
	t.mu.Unlock()

	for _, entry := range entries {
		entry.resultCh <- pendingResult{err: err}
	}
}
