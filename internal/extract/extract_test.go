package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"agentiq/internal/domain"
)

func TestExtract_PlainText(t *testing.T) {
	for _, name := range []string{"notes.txt", "README.md", "doc.MARKDOWN", "txt", ".md"} {
		got, err := New().Extract([]byte("hello\nworld"), name)
		if err != nil {
			t.Fatalf("Extract(%q) failed: %v", name, err)
		}
		if got != "hello\nworld" {
			t.Errorf("Extract(%q) = %q", name, got)
		}
	}
}

func TestExtract_Unsupported(t *testing.T) {
	for _, name := range []string{"image.png", "", "archive.tar.gz"} {
		_, err := New().Extract([]byte("x"), name)
		if !errors.Is(err, domain.ErrUnsupportedFormat) {
			t.Errorf("Extract(%q) error = %v, want ErrUnsupportedFormat", name, err)
		}
		if Supported(name) {
			t.Errorf("Supported(%q) = true", name)
		}
	}
	if _, err := New().Extract([]byte{0xff, 0xfe, 0x00}, "bad.txt"); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("invalid UTF-8 should be rejected, got %v", err)
	}
}

func TestExtract_Docx(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>First</w:t></w:r><w:r><w:t xml:space="preserve"> paragraph.</w:t></w:r></w:p>
<w:p><w:r><w:t>   </w:t></w:r></w:p>
<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>one &amp; more.</w:t></w:r></w:p>
</w:body></w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	got, err := New().Extract(buf.Bytes(), "report.docx")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	want := "First paragraph.\n\nSecond\tone & more."
	if got != want {
		t.Errorf("Extract = %q, want %q", got, want)
	}

	if _, err := New().Extract([]byte("not a zip"), "report.docx"); err == nil {
		t.Errorf("expected error for a corrupt docx")
	}
}

// minimalPDF renders a one-page PDF showing text with the standard Helvetica font.
func minimalPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract_PDF(t *testing.T) {
	got, err := New().Extract(minimalPDF("Hello PDF"), "paper.pdf")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.HasPrefix(got, "[Page 1]\n") || !strings.Contains(got, "Hello PDF") {
		t.Errorf("Extract = %q", got)
	}

	if _, err := New().Extract([]byte("%PDF-1.4 garbage"), "paper.pdf"); err == nil {
		t.Errorf("expected error for a corrupt pdf")
	}
}
