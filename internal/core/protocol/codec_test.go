package protocol

import (
	"testing"

	"github.com/google/go-dap"
)

func TestDecodeRequestRoundTrip(t *testing.T) {
	req := &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         CommandInitialize,
		},
		Arguments: dap.InitializeRequestArguments{
			ClientID:        "aidb",
			AdapterID:       "debug",
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
		},
	}

	raw, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.Type != MessageTypeRequest || dec.Name != CommandInitialize {
		t.Fatalf("unexpected envelope: %+v", dec)
	}

	got, ok := dec.Message.(*dap.InitializeRequest)
	if !ok {
		t.Fatalf("expected *dap.InitializeRequest, got %T", dec.Message)
	}
	if got.Arguments.ClientID != "aidb" || !got.Arguments.LinesStartAt1 {
		t.Fatalf("arguments lost in round trip: %+v", got.Arguments)
	}
}

func TestDecodeResponseRoundTrip(t *testing.T) {
	resp := &dap.SetBreakpointsResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Seq: 2, Type: "response"},
			RequestSeq:      1,
			Success:         true,
			Command:         CommandSetBreakpoints,
		},
		Body: dap.SetBreakpointsResponseBody{
			Breakpoints: []dap.Breakpoint{{Id: 1, Verified: true, Line: 10}},
		},
	}

	raw, err := Encode(resp)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got, ok := dec.Message.(*dap.SetBreakpointsResponse)
	if !ok {
		t.Fatalf("expected *dap.SetBreakpointsResponse, got %T", dec.Message)
	}
	if len(got.Body.Breakpoints) != 1 || got.Body.Breakpoints[0].Line != 10 {
		t.Fatalf("breakpoints lost in round trip: %+v", got.Body.Breakpoints)
	}
}

func TestDecodeEventRoundTrip(t *testing.T) {
	evt := &dap.StoppedEvent{
		Event: dap.Event{
			ProtocolMessage: dap.ProtocolMessage{Seq: 3, Type: "event"},
			Event:           EventStopped,
		},
		Body: dap.StoppedEventBody{Reason: "breakpoint", ThreadId: 1},
	}

	raw, err := Encode(evt)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := dec.Message.(*dap.StoppedEvent)
	if !ok {
		t.Fatalf("expected *dap.StoppedEvent, got %T", dec.Message)
	}
	if got.Body.Reason != "breakpoint" || got.Body.ThreadId != 1 {
		t.Fatalf("body lost in round trip: %+v", got.Body)
	}
}

func TestDecodeUnknownEventToleratesUnknownFields(t *testing.T) {
	raw := []byte(`{"seq":4,"type":"event","event":"someFutureEvent","body":{"future":"field"}}`)

	dec, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.Type != MessageTypeEvent || dec.Name != "someFutureEvent" {
		t.Fatalf("unexpected envelope: %+v", dec)
	}
	got, ok := dec.Message.(*dap.Event)
	if !ok {
		t.Fatalf("expected fallback *dap.Event, got %T", dec.Message)
	}
	if got.Event != "someFutureEvent" {
		t.Fatalf("expected event name preserved, got %q", got.Event)
	}
	// The original bytes, including the unknown "future" field, survive
	// on Raw even though no typed field models it.
	if string(dec.Raw) != string(raw) {
		t.Fatalf("raw payload not preserved verbatim")
	}
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected an error decoding malformed JSON")
	}
}
