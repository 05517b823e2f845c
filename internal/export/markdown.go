package export

import (
	"fmt"
	"io"

	"github.com/suPer8Hu/personallm/internal/model"
)

// MarkdownExporter renders the transcript as a readable document. Reasoning
// parts are folded into short blockquotes; tool invocations are omitted.
type MarkdownExporter struct{}

const reasoningPreviewLen = 200

func (e *MarkdownExporter) Export(t *Transcript, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# %s\n\n", t.Title)
	_, _ = fmt.Fprintf(w, "_Exported from personaLLM · %s_\n\n", t.ExportedAt.Format("2006-01-02 15:04:05"))

	for _, msg := range t.Messages {
		role := "**Assistant**"
		if msg.Role == "user" {
			role = "**You**"
		}
		_, _ = fmt.Fprintf(w, "## %s\n\n", role)
		for _, part := range msg.Parts {
			switch part.Type {
			case model.PartText:
				_, _ = fmt.Fprintln(w, part.Text)
			case model.PartReasoning:
				preview := part.Text
				ellipsis := ""
				if len(preview) > reasoningPreviewLen {
					preview = preview[:reasoningPreviewLen]
					ellipsis = "…"
				}
				_, _ = fmt.Fprintf(w, "> _Thinking: %s%s_\n", preview, ellipsis)
			}
		}
		_, _ = fmt.Fprintln(w)
	}
	return nil
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}
