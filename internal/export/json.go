package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/suPer8Hu/personallm/internal/model"
)

// JSONExporter renders the transcript as a machine-readable document that
// preserves every part, tool invocations included.
type JSONExporter struct{}

type jsonMessage struct {
	Role     string          `json:"role"`
	Parts    model.Parts     `json:"parts"`
	Metadata *model.Metadata `json:"metadata,omitempty"`
}

type jsonDocument struct {
	Title      string        `json:"title"`
	ExportedAt time.Time     `json:"exportedAt"`
	Messages   []jsonMessage `json:"messages"`
}

func (e *JSONExporter) Export(t *Transcript, w io.Writer) error {
	doc := jsonDocument{
		Title:      t.Title,
		ExportedAt: t.ExportedAt,
		Messages:   make([]jsonMessage, 0, len(t.Messages)),
	}
	for _, m := range t.Messages {
		doc.Messages = append(doc.Messages, jsonMessage{
			Role:     m.Role,
			Parts:    m.Parts,
			Metadata: m.Metadata,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (e *JSONExporter) Extension() string {
	return "json"
}
