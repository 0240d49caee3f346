// Package protocol implements the DAP wire format (spec.md §4.1, §6.2):
// the Content-Length-prefixed framing codec, and the mapping between raw
// JSON payloads and the typed github.com/google/go-dap message set the
// rest of AIDB works with — the same library caboose-desktop's
// debugger/dap.go builds its client on.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aidb-dev/aidb/internal/aidberr"
)

// DefaultMaxFrameBytes bounds a single frame's declared Content-Length.
// A debug adapter that claims a larger body is almost certainly
// desynchronized or malicious; spec.md §8 requires rejecting it with
// ProtocolError rather than attempting an unbounded allocation.
const DefaultMaxFrameBytes = 64 << 20 // 64MiB

// Decoder parses length-prefixed DAP frames off an io.Reader. It is
// deliberately built on a *bufio.Reader rather than a push-based buffer:
// a frame split across several transport reads is reassembled for free
// because the bufio.Reader simply blocks for more bytes on its next
// fill, retaining whatever partial header or payload bytes it already
// buffered. This mirrors how dap.ReadProtocolMessage consumes a
// *bufio.Reader in the teacher's debugger/dap.go, except frame parsing
// is exposed as its own step here so a size cap can be enforced before
// any payload allocation.
type Decoder struct {
	r          *bufio.Reader
	maxPayload int
}

// NewDecoder wraps r. maxPayload <= 0 uses DefaultMaxFrameBytes.
func NewDecoder(r io.Reader, maxPayload int) *Decoder {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxFrameBytes
	}
	return &Decoder{r: bufio.NewReader(r), maxPayload: maxPayload}
}

// ReadFrame reads one frame and returns its raw JSON payload. A
// zero-length Content-Length is valid and yields a non-nil, empty slice
// (spec.md §8 boundary behavior). io.EOF is returned verbatim when the
// peer closes cleanly between frames; any other read failure is wrapped
// with context; a malformed header block or an over-cap payload is
// reported as *aidberr.ProtocolError.
func (d *Decoder) ReadFrame() ([]byte, error) {
	contentLength := -1

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("reading frame header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			break // blank line terminates the header block
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &aidberr.ProtocolError{Reason: fmt.Sprintf("malformed header line %q", line)}
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		// Content-Length is the only header the spec requires us to
		// act on; everything else is ignored (spec.md §4.1).
		if strings.EqualFold(name, "Content-Length") {
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, &aidberr.ProtocolError{Reason: fmt.Sprintf("invalid Content-Length %q", value)}
			}
			contentLength = n
		}
	}

	if contentLength < 0 {
		return nil, &aidberr.ProtocolError{Reason: "frame missing Content-Length header"}
	}
	if contentLength > d.maxPayload {
		return nil, &aidberr.ProtocolError{Reason: fmt.Sprintf("frame payload %d bytes exceeds cap %d", contentLength, d.maxPayload)}
	}
	if contentLength == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, contentLength)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload to w as one Content-Length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(payload))
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}
