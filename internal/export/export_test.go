package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/suPer8Hu/personallm/internal/model"
)

func sampleTranscript() *Transcript {
	return &Transcript{
		Title:      "Go Generics",
		ExportedAt: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		Messages: []model.Message{
			{
				Role:  "user",
				Parts: model.Parts{model.TextPart("explain generics")},
			},
			{
				Role: "assistant",
				Parts: model.Parts{
					{Type: model.PartReasoning, Text: strings.Repeat("r", 250)},
					model.TextPart("Type parameters let you..."),
				},
				Metadata: &model.Metadata{
					TokenUsage: &model.TokenUsage{PromptTokens: 5, CompletionTokens: 9},
				},
			},
		},
	}
}

func TestNewExporter(t *testing.T) {
	for format, ext := range map[string]string{"md": "md", "markdown": "md", "json": "json"} {
		e, err := NewExporter(format)
		if err != nil {
			t.Fatalf("NewExporter(%q): %v", format, err)
		}
		if e.Extension() != ext {
			t.Fatalf("extension for %q = %q, want %q", format, e.Extension(), ext)
		}
	}
	if _, err := NewExporter("xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestMarkdownExport(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(sampleTranscript(), &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "# Go Generics\n") {
		t.Fatalf("missing title header:\n%s", out)
	}
	if !strings.Contains(out, "## **You**\n\nexplain generics") {
		t.Fatalf("missing user section:\n%s", out)
	}
	if !strings.Contains(out, "## **Assistant**") {
		t.Fatalf("missing assistant section:\n%s", out)
	}
	// Reasoning is previewed, truncated with an ellipsis.
	if !strings.Contains(out, "> _Thinking: "+strings.Repeat("r", 200)+"…_") {
		t.Fatalf("reasoning preview wrong:\n%s", out)
	}
	if strings.Contains(out, strings.Repeat("r", 201)) {
		t.Fatalf("reasoning not truncated")
	}
}

func TestJSONExportRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(sampleTranscript(), &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	var doc struct {
		Title      string    `json:"title"`
		ExportedAt time.Time `json:"exportedAt"`
		Messages   []struct {
			Role     string          `json:"role"`
			Parts    model.Parts     `json:"parts"`
			Metadata *model.Metadata `json:"metadata"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if doc.Title != "Go Generics" || len(doc.Messages) != 2 {
		t.Fatalf("document = %+v", doc)
	}
	asst := doc.Messages[1]
	if len(asst.Parts) != 2 || asst.Parts[0].Type != model.PartReasoning {
		t.Fatalf("assistant parts = %+v", asst.Parts)
	}
	if asst.Metadata == nil || asst.Metadata.TokenUsage.CompletionTokens != 9 {
		t.Fatalf("metadata = %+v", asst.Metadata)
	}
}

func TestSafeFilename(t *testing.T) {
	cases := map[string]string{
		"Go Generics!":   "go-generics-",
		"::::":           "conversation",
		"":               "conversation",
		"Already-clean1": "already-clean1",
	}
	for in, want := range cases {
		if got := SafeFilename(in); got != want {
			t.Fatalf("SafeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
