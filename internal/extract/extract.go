// Package extract turns uploaded files into plain text. The declared type is
// a file name or extension; the content itself is never sniffed.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"agentiq/internal/domain"
)

// SupportedExtensions lists the accepted file extensions, lowercase with the dot.
var SupportedExtensions = []string{".pdf", ".txt", ".md", ".markdown", ".docx"}

// Extractor implements domain.Extractor for the supported formats.
type Extractor struct{}

var _ domain.Extractor = Extractor{}

// New returns an extractor.
func New() Extractor { return Extractor{} }

// Supported reports whether declaredType names a supported format.
func Supported(declaredType string) bool {
	ext := extension(declaredType)
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Extract returns the text content of data.
func (Extractor) Extract(data []byte, declaredType string) (string, error) {
	switch ext := extension(declaredType); ext {
	case ".txt", ".md", ".markdown":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("extract: %s is not valid UTF-8: %w", declaredType, domain.ErrUnsupportedFormat)
		}
		return string(data), nil
	case ".pdf":
		return pdfText(data)
	case ".docx":
		return docxText(data)
	default:
		return "", fmt.Errorf("extract: %q: %w", declaredType, domain.ErrUnsupportedFormat)
	}
}

// extension accepts "report.PDF", ".pdf" or "pdf".
func extension(declaredType string) string {
	t := strings.ToLower(strings.TrimSpace(declaredType))
	if ext := filepath.Ext(t); ext != "" {
		return ext
	}
	if t == "" {
		return ""
	}
	return "." + t
}

// pdfText concatenates the plain text of every page, each prefixed with its page number.
func pdfText(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract: malformed pdf: %v", r)
		}
	}()
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}
	var parts []string
	for i := 1; i <= rdr.NumPage(); i++ {
		page := rdr.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract: read pdf page %d: %w", i, err)
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[Page %d]\n%s", i, content))
	}
	return strings.Join(parts, "\n\n"), nil
}

// docxText returns the non-blank paragraphs of word/document.xml separated by blank lines.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract: open docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("extract: docx has no word/document.xml: %w", domain.ErrUnsupportedFormat)
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("extract: open document.xml: %w", err)
	}
	defer rc.Close()

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("extract: parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if p := current.String(); strings.TrimSpace(p) != "" {
					paragraphs = append(paragraphs, p)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}
