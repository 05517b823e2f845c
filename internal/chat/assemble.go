package chat

import (
	"encoding/json"
	"strings"

	"github.com/suPer8Hu/personallm/internal/ai"
	"github.com/suPer8Hu/personallm/internal/model"
)

// partAssembler folds stream deltas into complete message parts. Consecutive
// deltas of the same kind extend the current part; tool lifecycle events
// update the invocation part identified by tool call id.
type partAssembler struct {
	parts    []model.Part
	toolIdx  map[string]int
	toolArgs map[string]*strings.Builder
}

func newPartAssembler() *partAssembler {
	return &partAssembler{
		toolIdx:  make(map[string]int),
		toolArgs: make(map[string]*strings.Builder),
	}
}

func (a *partAssembler) apply(ev ai.StreamEvent) {
	switch ev.Type {
	case ai.EventTextDelta:
		a.appendText(model.PartText, ev.Text)
	case ai.EventReasoningDelta:
		a.appendText(model.PartReasoning, ev.Text)
	case ai.EventToolInputStart:
		a.parts = append(a.parts, model.Part{
			Type:       model.PartToolInvocation,
			ToolCallID: ev.ToolCallID,
			ToolName:   ev.ToolName,
			State:      model.ToolInputStreaming,
		})
		a.toolIdx[ev.ToolCallID] = len(a.parts) - 1
		a.toolArgs[ev.ToolCallID] = &strings.Builder{}
	case ai.EventToolInputDelta:
		p := a.tool(ev)
		if b := a.toolArgs[ev.ToolCallID]; b != nil {
			b.WriteString(ev.InputDelta)
		}
		p.State = model.ToolInputStreaming
	case ai.EventToolInputAvailable:
		p := a.tool(ev)
		p.State = model.ToolInputAvailable
		p.Input = ev.Input
		if p.Input == nil {
			if b := a.toolArgs[ev.ToolCallID]; b != nil && b.Len() > 0 {
				p.Input = json.RawMessage(b.String())
			}
		}
	case ai.EventToolOutputAvailable:
		p := a.tool(ev)
		p.State = model.ToolOutputAvailable
		p.Output = ev.Output
	case ai.EventToolOutputError:
		p := a.tool(ev)
		p.State = model.ToolOutputError
		p.ErrorText = ev.ErrorText
	}
}

func (a *partAssembler) appendText(kind, text string) {
	if n := len(a.parts); n > 0 && a.parts[n-1].Type == kind {
		a.parts[n-1].Text += text
		return
	}
	a.parts = append(a.parts, model.Part{Type: kind, Text: text})
}

// tool returns the invocation part for the event's call id, creating one if
// the provider skipped the start event.
func (a *partAssembler) tool(ev ai.StreamEvent) *model.Part {
	if i, ok := a.toolIdx[ev.ToolCallID]; ok {
		return &a.parts[i]
	}
	a.parts = append(a.parts, model.Part{
		Type:       model.PartToolInvocation,
		ToolCallID: ev.ToolCallID,
		ToolName:   ev.ToolName,
	})
	a.toolIdx[ev.ToolCallID] = len(a.parts) - 1
	return &a.parts[len(a.parts)-1]
}

func (a *partAssembler) result() model.Parts {
	return model.Parts(a.parts)
}
