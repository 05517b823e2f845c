package model

import (
	"encoding/json"
	"testing"
)

func TestPartsRoundTrip(t *testing.T) {
	in := Parts{
		TextPart("hello"),
		{Type: PartReasoning, Text: "thinking about it"},
		FilePart("image/png", "data:image/png;base64,xxxx", "chart.png"),
		{
			Type:       PartToolInvocation,
			ToolCallID: "call_1",
			ToolName:   "webSearch",
			State:      ToolOutputAvailable,
			Input:      json.RawMessage(`{"query":"go"}`),
			Output:     json.RawMessage(`{"results":[]}`),
		},
	}

	v, err := in.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var out Parts
	if err := out.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d parts, got %d", len(in), len(out))
	}
	if out[0].Type != PartText || out[0].Text != "hello" {
		t.Fatalf("unexpected text part: %+v", out[0])
	}
	if out[2].Filename != "chart.png" || out[2].MediaType != "image/png" {
		t.Fatalf("unexpected file part: %+v", out[2])
	}
	if out[3].State != ToolOutputAvailable || out[3].ToolName != "webSearch" {
		t.Fatalf("unexpected tool part: %+v", out[3])
	}
	if string(out[3].Input) != `{"query":"go"}` {
		t.Fatalf("tool input not preserved: %s", out[3].Input)
	}
}

func TestPartsUnknownTypePreserved(t *testing.T) {
	src := `[{"type":"source-url","url":"https://example.com","title":"Example"}]`

	var ps Parts
	if err := ps.Scan(src); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(ps) != 1 || ps[0].Type != "source-url" {
		t.Fatalf("unexpected parts: %+v", ps)
	}

	b, err := json.Marshal(ps)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// The title field is not in our schema; it must survive re-encoding.
	var decoded []map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded[0]["title"] != "Example" {
		t.Fatalf("unknown field dropped: %v", decoded[0])
	}
}

func TestMessageText(t *testing.T) {
	m := Message{Parts: Parts{
		TextPart("a"),
		{Type: PartReasoning, Text: "ignored"},
		TextPart("b"),
	}}
	if got := m.Text(); got != "ab" {
		t.Fatalf("expected %q, got %q", "ab", got)
	}
}

func TestNilPartsValue(t *testing.T) {
	var ps Parts
	v, err := ps.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != "[]" {
		t.Fatalf("expected empty array, got %v", v)
	}
}
