package chat

import (
	"encoding/json"
	"testing"

	"github.com/suPer8Hu/personallm/internal/ai"
	"github.com/suPer8Hu/personallm/internal/model"
)

func TestAssembleMergesConsecutiveDeltas(t *testing.T) {
	a := newPartAssembler()
	for _, ev := range []ai.StreamEvent{
		{Type: ai.EventReasoningDelta, Text: "let me "},
		{Type: ai.EventReasoningDelta, Text: "think"},
		{Type: ai.EventTextDelta, Text: "Hello "},
		{Type: ai.EventTextDelta, Text: "world"},
	} {
		a.apply(ev)
	}

	parts := a.result()
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2: %+v", len(parts), parts)
	}
	if parts[0].Type != model.PartReasoning || parts[0].Text != "let me think" {
		t.Fatalf("reasoning part = %+v", parts[0])
	}
	if parts[1].Type != model.PartText || parts[1].Text != "Hello world" {
		t.Fatalf("text part = %+v", parts[1])
	}
}

func TestAssembleKeepsInterleavedOrder(t *testing.T) {
	a := newPartAssembler()
	for _, ev := range []ai.StreamEvent{
		{Type: ai.EventTextDelta, Text: "one"},
		{Type: ai.EventReasoningDelta, Text: "hmm"},
		{Type: ai.EventTextDelta, Text: "two"},
	} {
		a.apply(ev)
	}

	parts := a.result()
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3: %+v", len(parts), parts)
	}
	if parts[2].Type != model.PartText || parts[2].Text != "two" {
		t.Fatalf("trailing part = %+v", parts[2])
	}
}

func TestAssembleToolLifecycle(t *testing.T) {
	a := newPartAssembler()
	for _, ev := range []ai.StreamEvent{
		{Type: ai.EventToolInputStart, ToolCallID: "t1", ToolName: "search"},
		{Type: ai.EventToolInputDelta, ToolCallID: "t1", InputDelta: `{"q":`},
		{Type: ai.EventToolInputDelta, ToolCallID: "t1", InputDelta: `"go"}`},
		{Type: ai.EventToolInputAvailable, ToolCallID: "t1"},
		{Type: ai.EventToolOutputAvailable, ToolCallID: "t1", Output: json.RawMessage(`{"hits":3}`)},
		{Type: ai.EventTextDelta, Text: "found it"},
	} {
		a.apply(ev)
	}

	parts := a.result()
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2: %+v", len(parts), parts)
	}
	tool := parts[0]
	if tool.Type != model.PartToolInvocation || tool.ToolName != "search" {
		t.Fatalf("tool part = %+v", tool)
	}
	if tool.State != model.ToolOutputAvailable {
		t.Fatalf("tool state = %q", tool.State)
	}
	// Input was never sent whole; the accumulated deltas stand in.
	if string(tool.Input) != `{"q":"go"}` {
		t.Fatalf("tool input = %s", tool.Input)
	}
	if string(tool.Output) != `{"hits":3}` {
		t.Fatalf("tool output = %s", tool.Output)
	}
}

func TestAssembleToolError(t *testing.T) {
	a := newPartAssembler()
	a.apply(ai.StreamEvent{Type: ai.EventToolInputStart, ToolCallID: "t1", ToolName: "fetch"})
	a.apply(ai.StreamEvent{Type: ai.EventToolOutputError, ToolCallID: "t1", ErrorText: "timeout"})

	parts := a.result()
	if len(parts) != 1 {
		t.Fatalf("got %d parts, want 1", len(parts))
	}
	if parts[0].State != model.ToolOutputError || parts[0].ErrorText != "timeout" {
		t.Fatalf("tool part = %+v", parts[0])
	}
}

func TestAssembleToolWithoutStartEvent(t *testing.T) {
	a := newPartAssembler()
	a.apply(ai.StreamEvent{
		Type:       ai.EventToolInputAvailable,
		ToolCallID: "t9",
		ToolName:   "calc",
		Input:      json.RawMessage(`{"x":1}`),
	})

	parts := a.result()
	if len(parts) != 1 {
		t.Fatalf("got %d parts, want 1", len(parts))
	}
	if parts[0].ToolCallID != "t9" || parts[0].State != model.ToolInputAvailable {
		t.Fatalf("tool part = %+v", parts[0])
	}
}
