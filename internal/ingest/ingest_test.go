package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildXLSX(t *testing.T, records [][]string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := make([]interface{}, len(record))
		for j, v := range record {
			values[j] = v
		}
		require.NoError(t, f.SetSheetRow(sheet, cell, &values))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDecodeCSV(t *testing.T) {
	t.Parallel()

	input := "Author,Title,Description\n" +
		"Frank Herbert,Dune,Spice\n" +
		"Jane Austen,  Emma  \n" +
		",Untitled,\n"

	rows, err := DecodeCSV(strings.NewReader(input), 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.BookRow{
		{Title: "Dune", Author: "Frank Herbert", Description: "Spice"},
		{Title: "Emma", Author: "Jane Austen"},
		{Title: "Untitled", Author: ""},
	}, rows)
}

func TestDecodeCSV_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		maxRows int
		wantErr error
	}{
		{name: "empty file", input: "", wantErr: ErrEmptyFile},
		{name: "missing author column", input: "title,description\nDune,x\n", wantErr: ErrMissingColumn},
		{name: "missing title column", input: "author\nHerbert\n", wantErr: ErrMissingColumn},
		{name: "too many rows", input: "title,author\na,b\nc,d\ne,f\n", maxRows: 2, wantErr: ErrTooManyRows},
		{name: "bare quote", input: "title,author\n\"Dune,Herbert\n", wantErr: ErrMalformedFile},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeCSV(strings.NewReader(tc.input), tc.maxRows)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDecodeCSV_ByteOrderMark(t *testing.T) {
	t.Parallel()

	rows, err := DecodeCSV(strings.NewReader("\ufefftitle,author\nDune,Herbert\n"), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Dune", rows[0].Title)
}

func TestDecodeXLSX(t *testing.T) {
	t.Parallel()

	data := buildXLSX(t, [][]string{
		{"title", "author", "description"},
		{"Dune", "Frank Herbert", "Spice"},
		{"Emma", "Jane Austen"},
		{"", "Nobody", ""},
	})

	rows, err := DecodeXLSX(bytes.NewReader(data), 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.BookRow{
		{Title: "Dune", Author: "Frank Herbert", Description: "Spice"},
		{Title: "Emma", Author: "Jane Austen"},
		{Title: "", Author: "Nobody"},
	}, rows)
}

func TestDecodeXLSX_Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeXLSX(bytes.NewReader([]byte("not a workbook")), 0)
	assert.ErrorIs(t, err, ErrMalformedFile)

	data := buildXLSX(t, [][]string{{"name", "author"}, {"Dune", "Herbert"}})
	_, err = DecodeXLSX(bytes.NewReader(data), 0)
	assert.ErrorIs(t, err, ErrMissingColumn)

	data = buildXLSX(t, [][]string{{"title", "author"}, {"a", "b"}, {"c", "d"}})
	_, err = DecodeXLSX(bytes.NewReader(data), 1)
	assert.ErrorIs(t, err, ErrTooManyRows)
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		head     []byte
		want     Format
		wantErr  bool
	}{
		{filename: "books.csv", want: FormatCSV},
		{filename: "BOOKS.XLSX", want: FormatXLSX},
		{filename: "", head: []byte("PK\x03\x04rest"), want: FormatXLSX},
		{filename: "", head: []byte("title,author"), want: FormatCSV},
		{filename: "books.pdf", wantErr: true},
	}

	for _, tc := range tests {
		got, err := DetectFormat(tc.filename, tc.head)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedFormat, tc.filename)
			continue
		}
		require.NoError(t, err, tc.filename)
		assert.Equal(t, tc.want, got, tc.filename)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	rows, err := Decode(strings.NewReader("title,author\nDune,Herbert\n"), FormatCSV, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = Decode(strings.NewReader(""), Format("pdf"), 0)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
