// Package sheet decodes uploaded spreadsheets (XLSX or CSV) into ordered
// rows keyed by their header labels.
package sheet

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Row maps a header label, exactly as it appears in the file after
// trimming, to the raw cell value. Values are string, float64, bool or
// time.Time. Empty cells are absent.
type Row map[string]any

// Lookup returns the first non-empty value whose header matches one of
// aliases, compared case-insensitively.
func (r Row) Lookup(aliases ...string) (any, bool) {
	for _, alias := range aliases {
		for label, v := range r {
			if !strings.EqualFold(label, alias) {
				continue
			}
			if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
				continue
			}
			if v == nil {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

// LookupString is Lookup for values rendered as trimmed text.
func (r Row) LookupString(aliases ...string) string {
	v, ok := r.Lookup(aliases...)
	if !ok {
		return ""
	}
	return strings.TrimSpace(ToString(v))
}

// ToString formats a cell value as text. Floats print in their shortest
// exact form, so whole numbers carry no decimal part.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

var zipMagic = []byte("PK\x03\x04")

// Read decodes data as XLSX when it carries the ZIP signature or an .xlsx
// name, otherwise as CSV.
func Read(name string, data []byte) ([]Row, error) {
	if len(data) == 0 {
		return nil, eris.New("sheet: empty file")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if bytes.HasPrefix(data, zipMagic) || ext == ".xlsx" || ext == ".xlsm" {
		return ReadXLSX(data, XLSXOptions{})
	}
	return ReadCSV(bytes.NewReader(data), CSVOptions{})
}

// headerRows pairs a header with data rows of raw values.
func headerRows(header []string, records [][]any) []Row {
	labels := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" || seen[strings.ToLower(h)] {
			continue
		}
		seen[strings.ToLower(h)] = true
		labels[i] = h
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := make(Row, len(labels))
		for i, v := range rec {
			if i >= len(labels) || labels[i] == "" || v == nil {
				continue
			}
			if s, ok := v.(string); ok {
				s = strings.TrimSpace(s)
				if s == "" {
					continue
				}
				v = s
			}
			row[labels[i]] = v
		}
		if len(row) == 0 {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}
