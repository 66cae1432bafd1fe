package services

import (
	"os"
	"testing"

	"databoard/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseTableCSV(t *testing.T) {
	data := []byte("\xEF\xBB\xBFname,amount\nalpha,10\nbeta,20\ngamma,30\n")

	rows, columns, err := ParseTable(data, models.MimeCSV)
	require.NoError(t, err)

	assert.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "amount"}, columns)
	v, ok := rows[1].Get("amount")
	require.True(t, ok)
	assert.Equal(t, "20", v)
}

func TestParseTableCSVShortRowsAndDuplicateHeaders(t *testing.T) {
	data := []byte("a,a,\n1\n\n4,5,6\n")

	rows, columns, err := ParseTable(data, "text/csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a_1", "__EMPTY"}, columns)
	require.Len(t, rows, 2)
	v, _ := rows[0].Get("a_1")
	assert.Equal(t, "", v)
	v, _ = rows[1].Get("__EMPTY")
	assert.Equal(t, "6", v)
}

func TestParseTableCSVSentAsExcelMime(t *testing.T) {
	rows, columns, err := ParseTable([]byte("x,y\n1,2\n"), models.MimeXLS)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, []string{"x", "y"}, columns)
}

func TestParseTableEmpty(t *testing.T) {
	rows, columns, err := ParseTable(nil, models.MimeCSV)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, []string{}, columns)

	rows, columns, err = ParseTable([]byte("only,header\n"), models.MimeCSV)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, []string{}, columns)
}

func TestParseTableXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"region", "sales"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"north", 12}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"south", 7}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"east"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rows, columns, err := ParseTable(buf.Bytes(), models.MimeXLSX)
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "sales"}, columns)
	require.Len(t, rows, 3)
	v, _ := rows[0].Get("sales")
	assert.Equal(t, "12", v)
	// missing cells are left out of the row
	assert.Equal(t, []string{"region"}, rows[2].Keys())
}

func TestParseTableXLS(t *testing.T) {
	data, err := os.ReadFile("testdata/Table.xls")
	require.NoError(t, err)

	rows, columns, err := ParseTable(data, models.MimeXLS)
	require.NoError(t, err)

	assert.Len(t, rows, 11)
	assert.Equal(t, []string{"Code", "Name", "Description"}, columns)
}

func TestParseTableKeepsNonFiniteTextVerbatim(t *testing.T) {
	rows, columns, err := ParseTable([]byte("region,amount\nnorth,10\nsouth,NaN\neast,Inf\n"), models.MimeCSV)
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "amount"}, columns)
	require.Len(t, rows, 3)
	v, _ := rows[1].Get("amount")
	assert.Equal(t, "NaN", v)
	v, _ = rows[2].Get("amount")
	assert.Equal(t, "Inf", v)
}

func TestParseTableCorruptWorkbook(t *testing.T) {
	corrupt := append([]byte{'P', 'K', 0x03, 0x04}, []byte("not really a zip")...)

	_, _, err := ParseTable(corrupt, models.MimeXLSX)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "xlsx", pe.Kind)

	_, _, err = ParseTable(append([]byte{0xD0, 0xCF, 0x11, 0xE0}, make([]byte, 64)...), models.MimeXLS)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "xls", pe.Kind)
}
