package extract

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns one part per page, numbered from 1 in document order. Pages with no
// content object are left out; pages that read as blank are kept so callers see the page count.
func extractPDF(content []byte) ([]Part, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	n := r.NumPage()
	parts := make([]Part, 0, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		parts = append(parts, Part{Number: i, Label: strconv.Itoa(i), Text: strings.TrimSpace(text)})
	}
	return parts, nil
}
