package session

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/aidb-dev/aidb/internal/core/adapter"
	"github.com/aidb-dev/aidb/internal/core/dapclient"
	"github.com/aidb-dev/aidb/internal/core/protocol"
	"github.com/aidb-dev/aidb/internal/core/transport"
	"github.com/google/go-dap"
)

// stubCapability is a minimal adapter.Capability double so tests can
// drive Session.Start without a real debugpy/vscode-js-debug process.
type stubCapability struct{}

func (stubCapability) Language() adapter.Language { return adapter.Python }
func (stubCapability) BuildLaunchPlan(adapter.Target, adapter.AdapterConfig, int) (adapter.LaunchPlan, error) {
	return adapter.LaunchPlan{}, nil
}
func (stubCapability) AdapterEnv(adapter.AdapterConfig) map[string]string { return nil }
func (stubCapability) ProcessNamePattern() string                         { return "stub" }
func (stubCapability) LaunchConfiguration(target adapter.Target, cfg adapter.AdapterConfig) (map[string]any, error) {
	return map[string]any{"type": "stub", "request": string(target.Mode), "program": target.Program}, nil
}
func (stubCapability) LifecycleHooks() []adapter.Hook { return nil }

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	clientConn, adapterConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); adapterConn.Close() })

	client := dapclient.New(transport.Wrap(clientConn, 0), nil)
	go client.Run()

	ad := &adapter.Adapter{
		Capability: stubCapability{},
		Config:     adapter.AdapterConfig{Language: adapter.Python},
		Target:     adapter.Target{Mode: adapter.ModeLaunch, Program: "app.py"},
	}
	ad.SetClient(client)

	s := New("sess-1", ad, client, nil)
	return s, adapterConn
}

func writeAdapterFrame(t *testing.T, conn net.Conn, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := protocol.WriteFrame(conn, raw); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
}

func readAdapterFrame(t *testing.T, conn net.Conn) *protocol.Decoded {
	t.Helper()
	dec := protocol.NewDecoder(bufio.NewReader(conn), 0)
	raw, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	decoded, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return decoded
}

func respondSuccess(t *testing.T, conn net.Conn, reqSeq int, command string) {
	t.Helper()
	writeAdapterFrame(t, conn, &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: reqSeq + 1000, Type: "response"},
		RequestSeq:      reqSeq,
		Success:         true,
		Command:         command,
	})
}

// runFullHandshake drives Start to completion against the scripted
// adapter side, returning once Start has returned.
func runFullHandshake(t *testing.T, s *Session, conn net.Conn, initial map[string][]BreakpointSpec) error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errCh <- s.Start(ctx, initial, nil)
	}()

	// initialize
	initFrame := readAdapterFrame(t, conn)
	if initFrame.Name != protocol.CommandInitialize {
		t.Fatalf("expected initialize, got %q", initFrame.Name)
	}
	initReq := initFrame.Message.(*dap.InitializeRequest)
	writeAdapterFrame(t, conn, &dap.InitializeResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "response"},
			RequestSeq:      initReq.Seq,
			Success:         true,
			Command:         protocol.CommandInitialize,
		},
		Body: dap.Capabilities{SupportsConfigurationDoneRequest: true},
	})
	writeAdapterFrame(t, conn, &dap.InitializedEvent{
		Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: 2, Type: "event"}, Event: protocol.EventInitialized},
	})

	for file := range initial {
		_ = file
		bpFrame := readAdapterFrame(t, conn)
		if bpFrame.Name != protocol.CommandSetBreakpoints {
			t.Fatalf("expected setBreakpoints, got %q", bpFrame.Name)
		}
		bpReq := bpFrame.Message.(*dap.SetBreakpointsRequest)
		verified := make([]dap.Breakpoint, len(bpReq.Arguments.Breakpoints))
		for i, want := range bpReq.Arguments.Breakpoints {
			verified[i] = dap.Breakpoint{Id: i + 1, Verified: true, Line: want.Line}
		}
		writeAdapterFrame(t, conn, &dap.SetBreakpointsResponse{
			Response: dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Seq: 3, Type: "response"},
				RequestSeq:      bpReq.Seq,
				Success:         true,
				Command:         protocol.CommandSetBreakpoints,
			},
			Body: dap.SetBreakpointsResponseBody{Breakpoints: verified},
		})
	}

	// configurationDone
	cfgFrame := readAdapterFrame(t, conn)
	if cfgFrame.Name != protocol.CommandConfigurationDone {
		t.Fatalf("expected configurationDone, got %q", cfgFrame.Name)
	}
	respondSuccess(t, conn, cfgFrame.Message.(*dap.ConfigurationDoneRequest).Seq, protocol.CommandConfigurationDone)

	// launch
	launchFrame := readAdapterFrame(t, conn)
	if launchFrame.Name != protocol.CommandLaunch {
		t.Fatalf("expected launch, got %q", launchFrame.Name)
	}
	respondSuccess(t, conn, launchFrame.Message.(*dap.LaunchRequest).Seq, protocol.CommandLaunch)

	return <-errCh
}

func TestSessionStartRunsFullHandshake(t *testing.T) {
	s, conn := newTestSession(t)

	initial := map[string][]BreakpointSpec{
		"/app.py": {{Line: 10}, {Line: 20}},
	}
	if err := runFullHandshake(t, s, conn, initial); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if got := s.State().Phase; got != PhaseRunning {
		t.Fatalf("expected PhaseRunning, got %v", got)
	}

	bps := s.Breakpoints.File("/app.py")
	if len(bps) != 2 || !bps[0].Verified || bps[0].ActualLine != 10 {
		t.Fatalf("unexpected breakpoint state: %+v", bps)
	}
}

func TestSessionStartRejectsWhenNotNew(t *testing.T) {
	s, conn := newTestSession(t)
	if err := runFullHandshake(t, s, conn, nil); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	if err := s.Start(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected second Start to fail")
	}
}

func TestSessionStoppedEventTransitionsToPaused(t *testing.T) {
	s, conn := newTestSession(t)
	if err := runFullHandshake(t, s, conn, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	genBefore := s.Generation()
	writeAdapterFrame(t, conn, &dap.StoppedEvent{
		Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: 50, Type: "event"}, Event: protocol.EventStopped},
		Body:  dap.StoppedEventBody{Reason: "breakpoint", ThreadId: 1},
	})

	deadline := time.After(2 * time.Second)
	for s.State().Phase != PhasePaused {
		select {
		case <-deadline:
			t.Fatalf("session never transitioned to Paused, state=%v", s.State())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if s.Generation() == genBefore {
		t.Fatalf("expected generation to advance on Stopped")
	}
	if st := s.State(); st.ThreadID != 1 || st.Reason != "breakpoint" {
		t.Fatalf("unexpected paused state: %+v", st)
	}
}

func TestSessionStopDisconnectsAndTerminates(t *testing.T) {
	s, conn := newTestSession(t)
	if err := runFullHandshake(t, s, conn, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Stop(context.Background(), true) }()

	discFrame := readAdapterFrame(t, conn)
	if discFrame.Name != protocol.CommandDisconnect {
		t.Fatalf("expected disconnect, got %q", discFrame.Name)
	}
	respondSuccess(t, conn, discFrame.Message.(*dap.DisconnectRequest).Seq, protocol.CommandDisconnect)

	if err := <-done; err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if got := s.State().Phase; got != PhaseTerminated {
		t.Fatalf("expected PhaseTerminated, got %v", got)
	}

	if err := s.Stop(context.Background(), true); err != nil {
		t.Fatalf("second Stop should be a no-op, got %v", err)
	}
}
