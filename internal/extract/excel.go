package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel renders each visible sheet as tab-separated rows, with a blank
// line between sheets. Rows are streamed so large workbooks are not loaded whole.
func extractExcel(content []byte) (string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	var sheets []string
	for _, name := range wb.GetSheetList() {
		if visible, err := wb.GetSheetVisible(name); err == nil && !visible {
			continue
		}
		text, err := sheetText(wb, name)
		if err != nil {
			return "", err
		}
		if text != "" {
			sheets = append(sheets, text)
		}
	}
	return strings.Join(sheets, "\n\n"), nil
}

func sheetText(wb *excelize.File, name string) (string, error) {
	rows, err := wb.Rows(name)
	if err != nil {
		return "", fmt.Errorf("read sheet %q: %w", name, err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", name, err)
		}
		if line := strings.TrimRight(strings.Join(cells, "\t"), "\t"); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := rows.Error(); err != nil {
		return "", fmt.Errorf("read sheet %q: %w", name, err)
	}
	return strings.Join(lines, "\n"), nil
}
