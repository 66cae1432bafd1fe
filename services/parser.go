package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"databoard/metrics"
	"databoard/models"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0}
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
	utf8BOM   = []byte{0xEF, 0xBB, 0xBF}
)

// ParseError reports a payload that could not be decoded as the declared kind.
type ParseError struct {
	Kind string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TableParser turns a stored payload into ordered rows.
type TableParser interface {
	Parse(data []byte, mimeType string) (models.Rows, []string, error)
}

// Parser is the default TableParser.
type Parser struct{}

func (Parser) Parse(data []byte, mimeType string) (models.Rows, []string, error) {
	return ParseTable(data, mimeType)
}

// ParseTable decodes CSV or spreadsheet bytes. The first row (CSV header or
// first sheet row) names the columns; columns is the key list of the first row.
func ParseTable(data []byte, mimeType string) (models.Rows, []string, error) {
	if len(data) == 0 {
		return models.Rows{}, []string{}, nil
	}

	kind := detectKind(data, mimeType)

	var (
		rows models.Rows
		err  error
	)
	switch kind {
	case "csv":
		rows, err = parseCSV(data)
	case "xlsx":
		rows, err = parseXLSX(data)
	case "xls":
		rows, err = parseXLS(data)
	}
	if err != nil {
		metrics.FileParses.WithLabelValues(kind, "error").Inc()
		return nil, nil, &ParseError{Kind: kind, Err: err}
	}

	metrics.FileParses.WithLabelValues(kind, "ok").Inc()
	return rows, rows.Columns(), nil
}

// detectKind trusts magic bytes over the declared type, since browsers send
// CSV files as application/vnd.ms-excel.
func detectKind(data []byte, mimeType string) string {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return "xlsx"
	case bytes.HasPrefix(data, ole2Magic):
		return "xls"
	case strings.Contains(strings.ToLower(mimeType), "csv"):
		return "csv"
	case mimeType == models.MimeXLSX:
		return "xlsx"
	default:
		return "csv"
	}
}

func parseCSV(data []byte) (models.Rows, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return models.Rows{}, nil
	}
	if err != nil {
		return nil, err
	}
	header = headerKeys(header)

	rows := models.Rows{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlankRecord(record) {
			continue
		}
		var row models.Row
		for i, key := range header {
			value := ""
			if i < len(record) {
				value = record[i]
			}
			row.Set(key, value)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseXLSX(data []byte) (models.Rows, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return models.Rows{}, nil
	}
	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return rowsFromGrid(grid), nil
}

func parseXLS(data []byte) (rows models.Rows, err error) {
	// The BIFF reader panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = fmt.Errorf("corrupt workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return models.Rows{}, nil
	}

	var grid [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		grid = append(grid, cells)
	}
	return rowsFromGrid(grid), nil
}

// xlsRow returns nil for rows the sheet does not define.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// rowsFromGrid treats the first non-blank line as the header. Cells missing
// from a data row are omitted from that row.
func rowsFromGrid(grid [][]string) models.Rows {
	rows := models.Rows{}

	start := 0
	for start < len(grid) && isBlankRecord(grid[start]) {
		start++
	}
	if start == len(grid) {
		return rows
	}
	header := headerKeys(grid[start])

	for _, record := range grid[start+1:] {
		if isBlankRecord(record) {
			continue
		}
		var row models.Row
		for i, key := range header {
			if i >= len(record) || record[i] == "" {
				continue
			}
			row.Set(key, record[i])
		}
		if row.Len() > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

// headerKeys names blank or repeated header cells __EMPTY, __EMPTY_1, name_1, ...
func headerKeys(header []string) []string {
	keys := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.TrimSpace(h)
		if key == "" {
			key = "__EMPTY"
		}
		if n, dup := seen[key]; dup {
			seen[key] = n + 1
			key = fmt.Sprintf("%s_%d", key, n+1)
		} else {
			seen[key] = 0
		}
		keys[i] = key
	}
	return keys
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
