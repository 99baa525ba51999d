package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel returns one part per worksheet, labelled with the sheet name. Cells are
// tab separated and rows newline separated.
func extractExcel(content []byte) ([]Part, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var parts []Part
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, strings.Join(row, "\t"))
		}
		parts = append(parts, Part{
			Number: i + 1,
			Label:  sheet,
			Text:   strings.TrimSpace(strings.Join(lines, "\n")),
		})
	}
	return parts, nil
}
