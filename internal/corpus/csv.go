package corpus

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// parseCSV reads one column of a CSV file whose first row is the header.
// column may name a header field or give a zero-based index; empty selects
// the first column.
func parseCSV(data []byte, column string) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least one header row and one data row")
	}

	header := rows[0]
	idx, err := columnIndex(header, column)
	if err != nil {
		return nil, err
	}

	payloads := make([]string, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if idx >= len(row) {
			return nil, fmt.Errorf("row %d has %d fields, column %d requested", i+2, len(row), idx)
		}
		payloads = append(payloads, row[idx])
	}
	return payloads, nil
}

func columnIndex(header []string, column string) (int, error) {
	column = strings.TrimSpace(column)
	if column == "" {
		return 0, nil
	}
	for i, name := range header {
		if strings.TrimSpace(name) == column {
			return i, nil
		}
	}
	if i, err := strconv.Atoi(column); err == nil && i >= 0 && i < len(header) {
		return i, nil
	}
	return 0, fmt.Errorf("column %q not found in header %v", column, header)
}
