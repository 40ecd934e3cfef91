package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlanYear_Contains(t *testing.T) {
	py := PlanYear{
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"first instant", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"day before", time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), false},
		{"last second", time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC), true},
		{"day after", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"offset zone inside", time.Date(2026, 6, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, py.Contains(tt.at))
		})
	}
}

func TestMidnightUTC(t *testing.T) {
	in := time.Date(2026, 3, 15, 22, 30, 0, 0, time.FixedZone("PST", -8*3600))
	got := MidnightUTC(in)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), got)
}

func TestEmployee_DisplayName(t *testing.T) {
	assert.Equal(t, "a@co.com", Employee{Email: "a@co.com"}.DisplayName())
	assert.Equal(t, "Maria", Employee{Email: "a@co.com", FirstName: StringPtr("Maria")}.DisplayName())
	assert.Equal(t, "Maria Lopez", Employee{FirstName: StringPtr("Maria"), LastName: StringPtr("Lopez")}.DisplayName())
	assert.Equal(t, "x@co.com", Employee{Email: "x@co.com", FirstName: StringPtr("  ")}.DisplayName())
}

func TestStringPtrAndBlank(t *testing.T) {
	assert.Nil(t, StringPtr("   "))
	assert.Equal(t, "Jo", *StringPtr(" Jo "))
	assert.True(t, IsBlank(nil))
	blank := " "
	assert.True(t, IsBlank(&blank))
	assert.Equal(t, "", Deref(nil))
}

func TestComplianceStatus_Valid(t *testing.T) {
	assert.True(t, StatusCompliant.Valid())
	assert.True(t, StatusOptedOut.Valid())
	assert.False(t, ComplianceStatus("overridden").Valid())
}

func TestMailAccount_Connected(t *testing.T) {
	assert.False(t, MailAccount{}.Connected())
	assert.True(t, MailAccount{RefreshToken: "r"}.Connected())
	assert.False(t, MailAccount{RefreshToken: "r", NeedsReconnect: true}.Connected())
}

func TestNewToken(t *testing.T) {
	a, b := NewToken(), NewToken()
	assert.Len(t, a, 32)
	assert.NotContains(t, a, "-")
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, NewID())
}
