package sheet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, build func(sheet *xlsx.Sheet)) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Report")
	require.NoError(t, err)
	build(sheet)

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func addStringRow(sheet *xlsx.Sheet, values ...string) *xlsx.Row {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
	return row
}

func TestReadXLSX_HeaderKeyedRows(t *testing.T) {
	data := createTestXLSX(t, func(sheet *xlsx.Sheet) {
		addStringRow(sheet, "EMAIL", "First Name", "INVITATION URL")
		addStringRow(sheet, " Ana@Co.com ", "Ana", "https://portal.example/ana")
		addStringRow(sheet, "bo@co.com", "", "")
	})

	rows, err := ReadXLSX(data, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ana@Co.com", rows[0]["EMAIL"])
	assert.Equal(t, "Ana", rows[0]["First Name"])
	assert.Equal(t, "https://portal.example/ana", rows[0]["INVITATION URL"])
	_, hasName := rows[1]["First Name"]
	assert.False(t, hasName, "empty cells are dropped")
}

func TestReadXLSX_NumericAndBoolCells(t *testing.T) {
	data := createTestXLSX(t, func(sheet *xlsx.Sheet) {
		addStringRow(sheet, "Email", "Last Login", "Active")
		row := addStringRow(sheet, "a@co.com")
		row.AddCell().SetFloat(46097)
		row.AddCell().SetBool(true)
	})

	rows, err := ReadXLSX(data, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(46097), rows[0]["Last Login"])
	assert.Equal(t, true, rows[0]["Active"])
}

func TestReadXLSX_SkipRows(t *testing.T) {
	data := createTestXLSX(t, func(sheet *xlsx.Sheet) {
		addStringRow(sheet, "Vendor compliance report")
		addStringRow(sheet, "Email")
		addStringRow(sheet, "a@co.com")
	})

	rows, err := ReadXLSX(data, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a@co.com", rows[0]["Email"])
}

func TestReadXLSX_SheetNotFound(t *testing.T) {
	data := createTestXLSX(t, func(sheet *xlsx.Sheet) {
		addStringRow(sheet, "Email")
	})

	_, err := ReadXLSX(data, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)

	_, err = ReadXLSX(data, XLSXOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_Garbage(t *testing.T) {
	_, err := ReadXLSX([]byte("PK\x03\x04 definitely not a workbook"), XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open workbook")
}

func TestReadCSV(t *testing.T) {
	in := "\ufeffEmail,First Name,Email\n a@co.com ,Ana,dup@co.com\n,,\nb@co.com\n"

	rows, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2, "blank lines are skipped")
	assert.Equal(t, "a@co.com", rows[0]["Email"], "first duplicate header wins")
	assert.Equal(t, "Ana", rows[0]["First Name"])
	assert.Equal(t, Row{"Email": "b@co.com"}, rows[1])
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header row")
}

func TestReadCSV_Malformed(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Email\n\"unterminated\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestRead_Dispatch(t *testing.T) {
	xlsxData := createTestXLSX(t, func(sheet *xlsx.Sheet) {
		addStringRow(sheet, "Email")
		addStringRow(sheet, "x@co.com")
	})

	rows, err := Read("report.bin", xlsxData)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "x@co.com", rows[0]["Email"])

	rows, err = Read("roster.csv", []byte("Email\ny@co.com\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "y@co.com", rows[0]["Email"])

	_, err = Read("empty.csv", nil)
	require.Error(t, err)
}

func TestRow_Lookup(t *testing.T) {
	row := Row{"Email Address": "a@co.com", "Portal Link": "  ", "Score": float64(12)}

	assert.Equal(t, "a@co.com", row.LookupString("EMAIL", "email address"))
	assert.Equal(t, "", row.LookupString("portal link"), "blank values do not match")
	assert.Equal(t, "12", row.LookupString("score"))

	_, ok := row.Lookup("missing")
	assert.False(t, ok)
}

func TestToString(t *testing.T) {
	assert.Equal(t, "3152026", ToString(float64(3152026)))
	assert.Equal(t, "1.5", ToString(1.5))
	assert.Equal(t, "true", ToString(true))
	assert.Equal(t, "", ToString(nil))
}
