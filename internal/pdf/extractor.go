package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ErrEmptyDocument is returned when a PDF parses but has no page.
var ErrEmptyDocument = errors.New("pdf has no page")

// Summary describes a parsed PDF.
type Summary struct {
	Pages int
	Size  int
}

// Inspect parses PDF bytes with ledongthuc/pdf and reports its page count.
// Renderers call it on their own output so a truncated or malformed document
// never reaches a mailbox.
func Inspect(data []byte) (Summary, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Summary{}, fmt.Errorf("new pdf reader: %w", err)
	}
	s := Summary{Pages: doc.NumPage(), Size: len(data)}
	if s.Pages == 0 {
		return s, ErrEmptyDocument
	}
	return s, nil
}

// ExtractText returns the plain text of every page.
func ExtractText(data []byte) (string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	for page := 1; page <= doc.NumPage(); page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}
