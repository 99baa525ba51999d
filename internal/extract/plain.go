package extract

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// pageBreak separates pages in text exported from paged documents (pdftotext and friends).
const pageBreak = "\f"

// extractPlain reads text, replacing invalid UTF-8 with U+FFFD. Text without form feeds is a
// single unnumbered part; otherwise each form-feed delimited page is its own numbered part.
func extractPlain(content []byte) ([]Part, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\ufffd")
	}
	if !strings.Contains(text, pageBreak) {
		return []Part{{Text: text}}, nil
	}
	pages := strings.Split(text, pageBreak)
	// Exporters usually end the last page with a form feed too.
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	parts := make([]Part, len(pages))
	for i, p := range pages {
		parts[i] = Part{Number: i + 1, Label: strconv.Itoa(i + 1), Text: strings.TrimSpace(p)}
	}
	return parts, nil
}
