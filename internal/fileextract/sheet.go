package fileextract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet extracts headers and data rows from a spreadsheet or CSV upload,
// dispatching on the file extension.
func Sheet(data []byte, fileName string) (headers []string, rows [][]string, err error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return csvSheet(data)
	case ".xlsx":
		return excelSheet(data)
	default:
		return nil, nil, fmt.Errorf("fileextract: unsupported spreadsheet type %q", filepath.Ext(fileName))
	}
}

func csvSheet(data []byte) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("fileextract: read csv: %w", err)
	}
	return split(records)
}

func excelSheet(data []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("fileextract: open workbook: %w", err)
	}
	defer f.Close()

	// First sheet only; statements don't spread transactions across tabs.
	sheet := f.GetSheetName(0)
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("fileextract: read sheet %q: %w", sheet, err)
	}
	return split(records)
}

func split(records [][]string) ([]string, [][]string, error) {
	// Skip leading blank rows; exports often carry a title block.
	for len(records) > 0 && isBlankRow(records[0]) {
		records = records[1:]
	}
	if len(records) < 2 {
		return nil, nil, ErrEmptyDocument
	}
	return records[0], records[1:], nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
