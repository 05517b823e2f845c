package ai

import (
	"context"
	"encoding/json"
)

// Message is one turn of provider input, flattened to plain text.
type Message struct {
	Role    string
	Content string
}

// Provider performs a single blocking completion. Used for short auxiliary
// generations such as titles.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// EventType tags one incremental update on a generation stream.
type EventType string

const (
	EventTextDelta           EventType = "text-delta"
	EventReasoningDelta      EventType = "reasoning-delta"
	EventToolInputStart      EventType = "tool-input-start"
	EventToolInputDelta      EventType = "tool-input-delta"
	EventToolInputAvailable  EventType = "tool-input-available"
	EventToolOutputAvailable EventType = "tool-output-available"
	EventToolOutputError     EventType = "tool-output-error"
	EventFinish              EventType = "finish"
)

// Usage carries the statistics delivered with the finish event.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
}

// StreamEvent is one update from the generation service. Which fields are
// meaningful depends on Type.
type StreamEvent struct {
	Type EventType

	// text-delta, reasoning-delta
	Text string

	// tool-* events
	ToolCallID string
	ToolName   string
	InputDelta string
	Input      json.RawMessage
	Output     json.RawMessage
	ErrorText  string

	// finish
	Usage *Usage
}

// StreamProvider streams a generation as typed events. Both channels close
// when the stream ends; a terminal failure arrives on the error channel.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan StreamEvent, <-chan error)
}
