package model

import (
	"database/sql/driver"
	"encoding/json"
)

// Part types.
const (
	PartText           = "text"
	PartFile           = "file"
	PartReasoning      = "reasoning"
	PartToolInvocation = "tool-invocation"
)

// Tool invocation lifecycle states.
const (
	ToolInputStreaming  = "input-streaming"
	ToolInputAvailable  = "input-available"
	ToolOutputAvailable = "output-available"
	ToolOutputError     = "output-error"
)

// Part is one typed content segment of a message. The Type field selects
// which of the remaining fields are meaningful. Parts of an unrecognized
// type survive a load/store cycle untouched via raw.
type Part struct {
	Type string `json:"type"`

	// text, reasoning
	Text string `json:"text,omitempty"`

	// file
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url,omitempty"`
	Filename  string `json:"filename,omitempty"`

	// tool-invocation
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	State      string          `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`

	raw json.RawMessage
}

func (p Part) MarshalJSON() ([]byte, error) {
	if p.raw != nil {
		return p.raw, nil
	}
	type alias Part
	return json.Marshal(alias(p))
}

func (p *Part) UnmarshalJSON(b []byte) error {
	type alias Part
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*p = Part(a)
	switch p.Type {
	case PartText, PartFile, PartReasoning, PartToolInvocation:
	default:
		p.raw = append(json.RawMessage(nil), b...)
	}
	return nil
}

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// FilePart builds a file attachment part.
func FilePart(mediaType, url, filename string) Part {
	return Part{Type: PartFile, MediaType: mediaType, URL: url, Filename: filename}
}

// Parts is the ordered content of a message, stored as one JSON column.
type Parts []Part

func (ps Parts) Value() (driver.Value, error) {
	if ps == nil {
		return "[]", nil
	}
	b, err := json.Marshal(ps)
	return string(b), err
}

func (ps *Parts) Scan(src any) error {
	return scanJSON(src, ps)
}
