// Package extract turns uploaded files into message-ready content. PDFs are
// reduced to their text; images and plain text are inlined as data URLs.
package extract

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Kind classifies an extracted upload.
const (
	KindPDF   = "pdf"
	KindImage = "image"
	KindText  = "text"
)

// MaxUploadSize caps accepted uploads.
const MaxUploadSize = 10 << 20

type Result struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Kind     string `json:"type"`
	Content  string `json:"content"`
	Pages    int    `json:"pages,omitempty"`
}

type UnsupportedTypeError struct {
	MimeType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("extract: unsupported file type %q", e.MimeType)
}

// Extract dispatches on the request's declared mime type.
func Extract(name, mimeType string, data []byte) (*Result, error) {
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("extract: %s exceeds %d bytes", name, MaxUploadSize)
	}
	switch {
	case mimeType == "application/pdf":
		return extractPDF(name, data)
	case strings.HasPrefix(mimeType, "image/"):
		return dataURL(name, mimeType, KindImage, data), nil
	case mimeType == "text/plain":
		return dataURL(name, mimeType, KindText, data), nil
	default:
		return nil, &UnsupportedTypeError{MimeType: mimeType}
	}
}

func extractPDF(name string, data []byte) (*Result, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("extract: parse pdf %s: %w", name, err)
	}
	text, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract: read pdf %s: %w", name, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, text); err != nil {
		return nil, fmt.Errorf("extract: read pdf %s: %w", name, err)
	}
	return &Result{
		Name:     name,
		MimeType: "application/pdf",
		Kind:     KindPDF,
		Content:  buf.String(),
		Pages:    r.NumPage(),
	}, nil
}

func dataURL(name, mimeType, kind string, data []byte) *Result {
	return &Result{
		Name:     name,
		MimeType: mimeType,
		Kind:     kind,
		Content:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}
}
