package extract

import (
	"strings"

	"github.com/lu4p/cat"
)

// extractWithCat reads RTF and ODT files as a single unnumbered part.
func extractWithCat(path string) ([]Part, error) {
	text, err := cat.File(path)
	if err != nil {
		return nil, err
	}
	return []Part{{Text: strings.TrimSpace(text)}}, nil
}
