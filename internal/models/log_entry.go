package models

import "time"

// OutputCategory mirrors the DAP OutputEvent "category" field (console,
// stdout, stderr, telemetry, ...), generalizing caboose-desktop's
// models.LogLevel onto DAP's own output taxonomy instead of a
// framework's log severities.
type OutputCategory string

const (
	OutputCategoryConsole   OutputCategory = "console"
	OutputCategoryStdout    OutputCategory = "stdout"
	OutputCategoryStderr    OutputCategory = "stderr"
	OutputCategoryTelemetry OutputCategory = "telemetry"
	OutputCategoryImportant OutputCategory = "important"
)

// OutputEntry is one line AIDB buffered from a DAP Output event, the
// generalization of caboose-desktop's models.LogEntry onto the debug
// adapter's stdout/stderr/console stream instead of parsed framework
// log lines.
type OutputEntry struct {
	// ID is the unique identifier for this entry.
	ID string `json:"id"`

	// Timestamp is when AIDB received the Output event.
	Timestamp time.Time `json:"timestamp"`

	// SessionID identifies which session produced this output.
	SessionID string `json:"sessionId"`

	// Category is the DAP OutputEvent category.
	Category OutputCategory `json:"category"`

	// Text is the output payload.
	Text string `json:"text"`

	// Source/Line, when present, let a logpoint's formatted message be
	// traced back to the breakpoint that emitted it.
	Source string `json:"source,omitempty"`
	Line   int    `json:"line,omitempty"`
}
