// Package export renders a conversation transcript to a downloadable
// document.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/suPer8Hu/personallm/internal/model"
)

// Transcript is the flattened view handed to exporters.
type Transcript struct {
	Title      string
	ExportedAt time.Time
	Messages   []model.Message
}

// Exporter renders a transcript in one output format.
type Exporter interface {
	Export(t *Transcript, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for a format name.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: md, json)", format)
	}
}

// SafeFilename reduces a title to a filesystem-safe stem.
func SafeFilename(title string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := b.String()
	if len(out) > 60 {
		out = out[:60]
	}
	if out == "" || out == "-" {
		return "conversation"
	}
	return out
}
