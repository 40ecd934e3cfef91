package roster

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/benefits-notice/internal/model"
)

// Excel serials at or above this value are treated as packed digit dates.
const maxExcelSerial = 1_000_000

// ParseLoginDate interprets a raw cell as a calendar date normalized to
// midnight UTC. It accepts native times, Excel serial numbers, 8-digit
// MMDDYYYY or YYYYMMDD values (7 digits when the leading zero was lost)
// and free-form date strings. ok is false for anything it cannot read.
func ParseLoginDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return model.MidnightUTC(t), true
	case float64:
		return parseNumericDate(t)
	case int:
		return parseNumericDate(float64(t))
	case int64:
		return parseNumericDate(float64(t))
	case string:
		return parseStringDate(t)
	}
	return time.Time{}, false
}

func parseNumericDate(f float64) (time.Time, bool) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if f < maxExcelSerial {
		return model.MidnightUTC(xlsx.TimeFromExcelTime(f, false)), true
	}
	if f != math.Trunc(f) {
		return time.Time{}, false
	}
	return parseDigitDate(padDigits(strconv.FormatInt(int64(f), 10)))
}

// padDigits restores the leading zero a January to September MMDDYYYY
// value loses when stored as a number.
func padDigits(s string) string {
	if len(s) == 7 {
		return "0" + s
	}
	return s
}

func parseStringDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if (len(s) == 7 || len(s) == 8) && isDigits(s) {
		return parseDigitDate(padDigits(s))
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return model.MidnightUTC(t), true
}

// parseDigitDate tries MMDDYYYY first and falls back to YYYYMMDD.
func parseDigitDate(s string) (time.Time, bool) {
	if len(s) != 8 {
		return time.Time{}, false
	}
	if t, ok := buildDate(s[4:8], s[0:2], s[2:4]); ok {
		return t, true
	}
	return buildDate(s[0:4], s[4:6], s[6:8])
}

func buildDate(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 || y < 2000 || y > 2100 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// Reject overflow such as 02/31.
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
