package extract

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractTextFile(t *testing.T) {
	got, err := Extract("notes.txt", "text/plain", []byte("hello"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got.Kind != KindText {
		t.Fatalf("kind = %q", got.Kind)
	}
	if got.Content != "data:text/plain;base64,aGVsbG8=" {
		t.Fatalf("content = %q", got.Content)
	}
}

func TestExtractImage(t *testing.T) {
	got, err := Extract("pic.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got.Kind != KindImage || !strings.HasPrefix(got.Content, "data:image/png;base64,") {
		t.Fatalf("result = %+v", got)
	}
}

func TestExtractUnsupported(t *testing.T) {
	_, err := Extract("a.zip", "application/zip", []byte("PK"))
	var ute *UnsupportedTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("err = %v, want UnsupportedTypeError", err)
	}
	if ute.MimeType != "application/zip" {
		t.Fatalf("mime = %q", ute.MimeType)
	}
}

func TestExtractRejectsOversize(t *testing.T) {
	if _, err := Extract("big.txt", "text/plain", make([]byte, MaxUploadSize+1)); err == nil {
		t.Fatalf("expected size error")
	}
}
