package sheet

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // rows above the header to skip
}

// ReadXLSX decodes an XLSX workbook held in memory. The first row after
// SkipRows is the header. Date-formatted cells come back as time.Time,
// numeric cells as float64, booleans as bool and everything else as text.
func ReadXLSX(data []byte, opts XLSXOptions) ([]Row, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var header []string
	var records [][]any
	for i, row := range sheet.Rows {
		if i < opts.SkipRows || row == nil {
			continue
		}
		if header == nil {
			header = rowToStrings(row)
			continue
		}
		records = append(records, rowToValues(row, f.Date1904))
	}
	if header == nil {
		return nil, eris.New("xlsx: sheet has no header row")
	}

	return headerRows(header, records), nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = cell.String()
	}
	return cells
}

func rowToValues(row *xlsx.Row, date1904 bool) []any {
	values := make([]any, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		values[j] = cellValue(cell, date1904)
	}
	return values
}

func cellValue(cell *xlsx.Cell, date1904 bool) any {
	switch cell.Type() {
	case xlsx.CellTypeBool:
		return cell.Bool()
	case xlsx.CellTypeNumeric, xlsx.CellTypeDate:
		if cell.IsTime() {
			if t, err := cell.GetTime(date1904); err == nil {
				return t
			}
		}
		if v, err := cell.Float(); err == nil {
			return v
		}
	}
	return cell.String()
}
