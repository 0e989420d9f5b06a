// Package ingest decodes bulk-upload files into book rows. CSV and XLSX are
// supported; both expect a header row naming the title, author and optional
// description columns in any order.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Format identifies an upload file encoding.
type Format string

// Supported formats
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Column names recognized in the header row, compared case-insensitively.
const (
	ColumnTitle       = "title"
	ColumnAuthor      = "author"
	ColumnDescription = "description"
)

// Common decoding errors
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file has no header row")
	ErrMissingColumn     = errors.New("missing required column")
	ErrTooManyRows       = errors.New("file has too many rows")
	ErrMalformedFile     = errors.New("file could not be parsed")
)

// xlsxMagic is the zip local file header every XLSX file starts with.
var xlsxMagic = []byte("PK\x03\x04")

// DetectFormat picks a format from the file name, falling back to the content.
func DetectFormat(filename string, head []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case "":
		if bytes.HasPrefix(head, xlsxMagic) {
			return FormatXLSX, nil
		}
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
}

// Decode reads every data row of r. maxRows bounds the number of data rows;
// zero means unbounded.
func Decode(r io.Reader, format Format, maxRows int) ([]domain.BookRow, error) {
	switch format {
	case FormatCSV:
		return DecodeCSV(r, maxRows)
	case FormatXLSX:
		return DecodeXLSX(r, maxRows)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// DecodeCSV reads comma-separated rows. Rows may have fewer fields than the header.
func DecodeCSV(r io.Reader, maxRows int) ([]domain.BookRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: CSV header: %v", ErrMalformedFile, err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.BookRow, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: CSV line %d: %v", ErrMalformedFile, len(rows)+2, err)
		}
		if maxRows > 0 && len(rows) >= maxRows {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, maxRows)
		}
		rows = append(rows, cols.row(record))
	}
	return rows, nil
}

// DecodeXLSX reads the first worksheet of a workbook.
func DecodeXLSX(r io.Reader, maxRows int) ([]domain.BookRow, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	defer func() { _ = file.Close() }()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	records, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	cols, err := mapColumns(records[0])
	if err != nil {
		return nil, err
	}

	data := records[1:]
	if maxRows > 0 && len(data) > maxRows {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, maxRows)
	}

	rows := make([]domain.BookRow, 0, len(data))
	for _, record := range data {
		rows = append(rows, cols.row(record))
	}
	return rows, nil
}

type columns struct {
	title, author, description int
}

func mapColumns(header []string) (columns, error) {
	cols := columns{title: -1, author: -1, description: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case ColumnTitle:
			cols.title = i
		case ColumnAuthor:
			cols.author = i
		case ColumnDescription:
			cols.description = i
		}
	}

	if cols.title < 0 {
		return cols, fmt.Errorf("%w: %s", ErrMissingColumn, ColumnTitle)
	}
	if cols.author < 0 {
		return cols, fmt.Errorf("%w: %s", ErrMissingColumn, ColumnAuthor)
	}
	return cols, nil
}

func (c columns) row(record []string) domain.BookRow {
	get := func(idx int) string {
		if idx >= 0 && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}
	return domain.BookRow{
		Title:       get(c.title),
		Author:      get(c.author),
		Description: get(c.description),
	}
}
