// Package fileproc decodes uploaded tabular files (CSV, XLSX) into rows for
// the mapping engine. Parsing is delegated to encoding/csv and tealeg/xlsx;
// this package only normalizes headers and pads short rows.
package fileproc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/tealeg/xlsx"

	"github.com/EthanVT97/rangoon-middleware/internal/mapping"
)

var (
	// ErrEmptyFile is returned when a file has no header or no data rows.
	ErrEmptyFile = errors.New("uploaded file is empty")
	// ErrUnsupportedType is returned for extensions outside .csv/.xlsx.
	// Legacy BIFF .xls workbooks are not supported; users convert upstream.
	ErrUnsupportedType = errors.New("only .csv and .xlsx files are supported")
)

// ValidExtension reports whether the filename carries a decodable extension.
func ValidExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx":
		return true
	default:
		return false
	}
}

// Decode picks a decoder from the file extension.
func Decode(filename string, data []byte) ([]mapping.Row, []string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return DecodeCSV(strings.NewReader(string(data)))
	case ".xlsx":
		return DecodeXLSX(data)
	default:
		return nil, nil, fmt.Errorf("%w (got %q)", ErrUnsupportedType, filepath.Ext(filename))
	}
}

// DecodeCSV reads a CSV stream into rows keyed by the trimmed header names.
// Short rows are padded with empty values so every row carries every column.
func DecodeCSV(r io.Reader) ([]mapping.Row, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, ErrEmptyFile
		}
		return nil, nil, fmt.Errorf("failed to read CSV header row: %w", err)
	}
	headers = normalizeHeaders(headers)

	var rows []mapping.Row
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, fmt.Errorf("failed to read CSV row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, rowFromCells(headers, record))
	}

	if len(rows) == 0 {
		return nil, nil, ErrEmptyFile
	}
	return rows, headers, nil
}

// DecodeXLSX reads the first sheet of an XLSX workbook, first row as headers.
func DecodeXLSX(data []byte) ([]mapping.Row, []string, error) {
	wb, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open xlsx workbook: %w", err)
	}
	if len(wb.Sheets) == 0 {
		return nil, nil, ErrEmptyFile
	}
	sheet := wb.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil, ErrEmptyFile
	}

	headerCells := sheet.Rows[0].Cells
	headers := make([]string, len(headerCells))
	for i, c := range headerCells {
		headers[i] = c.String()
	}
	headers = normalizeHeaders(headers)

	var rows []mapping.Row
	for _, sheetRow := range sheet.Rows[1:] {
		cells := make([]string, len(sheetRow.Cells))
		for i, c := range sheetRow.Cells {
			cells[i] = c.String()
		}
		rows = append(rows, rowFromCells(headers, cells))
	}

	if len(rows) == 0 {
		return nil, nil, ErrEmptyFile
	}
	return rows, headers, nil
}

func normalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func rowFromCells(headers, cells []string) mapping.Row {
	row := make(mapping.Row, len(headers))
	for i, header := range headers {
		if header == "" {
			continue
		}
		if i < len(cells) {
			row[header] = mapping.String(cells[i])
		} else {
			row[header] = mapping.String("")
		}
	}
	return row
}
