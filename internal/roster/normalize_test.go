package roster

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/sheet"
)

func TestNormalize_Aliases(t *testing.T) {
	n := Normalize(sheet.Row{
		"Email Address":     "  Ana.Lopez@Co.COM ",
		"first_name":        "Ana",
		"Surname":           "Lopez",
		"Portal Link":       " https://portal.example/ana ",
		"Last Login":        "2026-02-03",
		"Benefits Eligible": "No",
	})

	assert.Equal(t, "ana.lopez@co.com", n.Email)
	assert.Equal(t, "Ana", model.Deref(n.FirstName))
	assert.Equal(t, "Lopez", model.Deref(n.LastName))
	assert.True(t, n.HasName)
	assert.Equal(t, "https://portal.example/ana", model.Deref(n.PortalURL))
	require.NotNil(t, n.LoginDate)
	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), *n.LoginDate)
	require.NotNil(t, n.Eligible)
	assert.False(t, *n.Eligible)
}

func TestNormalize_EmailPriority(t *testing.T) {
	n := Normalize(sheet.Row{"Work Email": "work@co.com", "EMAIL": "primary@co.com"})
	assert.Equal(t, "primary@co.com", n.Email)
}

func TestNormalize_FullNameFallback(t *testing.T) {
	n := Normalize(sheet.Row{"Email": "x@co.com", "Full Name": "  Mary   Ann  Smith "})
	assert.Equal(t, "Mary", model.Deref(n.FirstName))
	assert.Equal(t, "Ann Smith", model.Deref(n.LastName))
	assert.True(t, n.HasName)
}

func TestNormalize_NoEmailOrName(t *testing.T) {
	n := Normalize(sheet.Row{"Portal URL": "https://p"})
	assert.Empty(t, n.Email)
	assert.False(t, n.HasName)
	assert.Nil(t, n.LoginDate)
	assert.Nil(t, n.Eligible)
}

func TestNormalize_PortalURLPriority(t *testing.T) {
	n := Normalize(sheet.Row{
		"Email":          "a@co.com",
		"URL":            "https://fallback",
		"Attentive Link": "https://attentive",
		"invitation url": "https://invite",
	})
	assert.Equal(t, "https://invite", model.Deref(n.PortalURL))
}

func TestNameFromEmail(t *testing.T) {
	tests := []struct {
		email string
		first string
		last  string
	}{
		{"jsmith@co.com", "Jsmith", ""},
		{"john.smith@co.com", "John", "Smith"},
		{"mary_ann-lee+hr@co.com", "Mary", "Ann Lee Hr"},
		{"12345@co.com", "", ""},
		{"007.bond@co.com", "", ""},
		{"@co.com", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			first, last := NameFromEmail(tt.email)
			assert.Equal(t, tt.first, model.Deref(first))
			assert.Equal(t, tt.last, model.Deref(last))
		})
	}
}

func TestBestName(t *testing.T) {
	first, last := Normalized{Email: "jsmith@co.com"}.BestName()
	assert.Equal(t, "Jsmith", model.Deref(first))
	assert.Nil(t, last)

	first, last = Normalized{Email: "jsmith@co.com", FirstName: model.StringPtr("Jo"), HasName: true}.BestName()
	assert.Equal(t, "Jo", model.Deref(first))
	assert.Nil(t, last, "explicit names suppress the email guess")
}

func TestParseLoginDate(t *testing.T) {
	mar15 := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want time.Time
		ok   bool
	}{
		{"native time", time.Date(2026, 3, 15, 17, 45, 0, 0, time.UTC), mar15, true},
		{"native time other zone", time.Date(2026, 3, 15, 20, 0, 0, 0, time.FixedZone("EST", -5*3600)), time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), true},
		{"excel serial", float64(46096), mar15, true},
		{"excel serial with time", 46096.75, mar15, true},
		{"mmddyyyy string", "03152026", mar15, true},
		{"mmddyyyy numeric lost leading zero", float64(3152026), mar15, true},
		{"mmddyyyy string lost leading zero", "3152026", mar15, true},
		{"seven digits no valid date", "9999999", time.Time{}, false},
		{"mmddyyyy numeric", float64(12312026), time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), true},
		{"yyyymmdd fallback", "20260315", mar15, true},
		{"yyyymmdd numeric", float64(20260315), mar15, true},
		{"free form slash", "3/15/2026", mar15, true},
		{"free form words", "March 15, 2026", mar15, true},
		{"iso timestamp", "2026-03-15T13:04:05Z", mar15, true},
		{"invalid eight digits", "99999999", time.Time{}, false},
		{"impossible day", "02312026", time.Time{}, false},
		{"empty", "", time.Time{}, false},
		{"garbage", "never logged in", time.Time{}, false},
		{"zero", float64(0), time.Time{}, false},
		{"zero time", time.Time{}, time.Time{}, false},
		{"bool", true, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLoginDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
			}
		})
	}
}

func TestParseLoginDate_XLSXDateCell(t *testing.T) {
	f := xlsx.NewFile()
	sh, err := f.AddSheet("Report")
	require.NoError(t, err)
	header := sh.AddRow()
	header.AddCell().SetString("EMAIL")
	header.AddCell().SetString("LAST LOGIN")
	row := sh.AddRow()
	row.AddCell().SetString("a@co.com")
	row.AddCell().SetDate(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := sheet.ReadXLSX(buf.Bytes(), sheet.XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	n := Normalize(rows[0])
	require.NotNil(t, n.LoginDate)
	assert.True(t, n.LoginDate.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)), "got %s", n.LoginDate)
}

func TestSplitFullName(t *testing.T) {
	first, last := SplitFullName("Cher")
	assert.Equal(t, "Cher", first)
	assert.Empty(t, last)

	first, last = SplitFullName("   ")
	assert.Empty(t, first)
	assert.Empty(t, last)
}
