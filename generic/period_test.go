package generic

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod_Validate(t *testing.T) {
	tests := []struct {
		name    string
		start   Date
		end     Date
		wantErr bool
	}{
		{"single day", NewDate(2025, 3, 10), NewDate(2025, 3, 10), false},
		{"week", NewDate(2025, 3, 10), NewDate(2025, 3, 16), false},
		{"31 days", NewDate(2025, 3, 1), NewDate(2025, 3, 31), false},
		{"32 days", NewDate(2025, 3, 1), NewDate(2025, 4, 1), true},
		{"end before start", NewDate(2025, 3, 16), NewDate(2025, 3, 10), true},
		{"missing end", NewDate(2025, 3, 10), Date{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPeriod(tt.start, tt.end)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPeriod)
				assert.True(t, IsClientError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPeriod_DayIndex(t *testing.T) {
	p := Period{Start: NewDate(2025, 3, 10), End: NewDate(2025, 3, 16)}

	assert.Equal(t, 7, p.DayCount())
	assert.Len(t, p.Days(), 7)

	idx, ok := p.DayIndex(NewDate(2025, 3, 12))
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = p.DayIndex(NewDate(2025, 3, 17))
	assert.False(t, ok)
	_, ok = p.DayIndex(NewDate(2025, 3, 9))
	assert.False(t, ok)
	assert.False(t, p.Contains(Date{}))
	assert.True(t, p.Contains(p.End))
}

// DST transitions must not shift day offsets.
func TestPeriod_DayIndexAcrossDST(t *testing.T) {
	p := Period{Start: NewDate(2025, 3, 24), End: NewDate(2025, 4, 6)}

	idx, ok := p.DayIndex(NewDate(2025, 4, 6))
	require.True(t, ok)
	assert.Equal(t, 13, idx)
}

func TestCalendar_PeriodFor(t *testing.T) {
	day := NewDate(2025, 3, 12) // Wednesday

	tests := []struct {
		name      string
		cal       Calendar
		wantStart Date
		wantEnd   Date
	}{
		{
			name:      "weekly anchored on Monday",
			cal:       Calendar{Frequency: FrequencyWeekly, Anchor: NewDate(2025, 1, 6)},
			wantStart: NewDate(2025, 3, 10), wantEnd: NewDate(2025, 3, 16),
		},
		{
			name:      "weekly anchor after the date",
			cal:       Calendar{Frequency: FrequencyWeekly, Anchor: NewDate(2025, 6, 2)},
			wantStart: NewDate(2025, 3, 10), wantEnd: NewDate(2025, 3, 16),
		},
		{
			name:      "fortnightly",
			cal:       Calendar{Frequency: FrequencyFortnightly, Anchor: NewDate(2025, 1, 6)},
			wantStart: NewDate(2025, 3, 3), wantEnd: NewDate(2025, 3, 16),
		},
		{
			name:      "four weekly",
			cal:       Calendar{Frequency: FrequencyFourWeekly, Anchor: NewDate(2025, 1, 6)},
			wantStart: NewDate(2025, 3, 3), wantEnd: NewDate(2025, 3, 30),
		},
		{
			name:      "twice monthly first half",
			cal:       Calendar{Frequency: FrequencyTwiceMonthly},
			wantStart: NewDate(2025, 3, 1), wantEnd: NewDate(2025, 3, 15),
		},
		{
			name:      "monthly from the 1st",
			cal:       Calendar{Frequency: FrequencyMonthly},
			wantStart: NewDate(2025, 3, 1), wantEnd: NewDate(2025, 3, 31),
		},
		{
			name:      "monthly from the 20th",
			cal:       Calendar{Frequency: FrequencyMonthly, Anchor: NewDate(2024, 11, 20)},
			wantStart: NewDate(2025, 2, 20), wantEnd: NewDate(2025, 3, 19),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.cal.PeriodFor(day)
			assert.Equal(t, tt.wantStart.String(), p.Start.String())
			assert.Equal(t, tt.wantEnd.String(), p.End.String())
			assert.NoError(t, p.Validate())
		})
	}
}

func TestCalendar_TwiceMonthlySecondHalf(t *testing.T) {
	p := Calendar{Frequency: FrequencyTwiceMonthly}.PeriodFor(NewDate(2025, 2, 20))

	assert.Equal(t, "2025-02-16", p.Start.String())
	assert.Equal(t, "2025-02-28", p.End.String())
}

func TestCalendar_QuarterlyIsNotATimesheetPeriod(t *testing.T) {
	p := Calendar{Frequency: FrequencyQuarterly}.PeriodFor(NewDate(2025, 5, 2))

	assert.Equal(t, "2025-04-01", p.Start.String())
	assert.Equal(t, "2025-06-30", p.End.String())
	assert.ErrorIs(t, p.Validate(), ErrInvalidPeriod)
}

func TestPayFrequency_PeriodsPerYear(t *testing.T) {
	assert.Equal(t, 52, FrequencyWeekly.PeriodsPerYear())
	assert.Equal(t, 24, FrequencyTwiceMonthly.PeriodsPerYear())
	assert.Zero(t, PayFrequency("DAILY").PeriodsPerYear())
}

func TestDecimalHelpers(t *testing.T) {
	assert.True(t, HoursFromMinutes(90).Equal(decimal.RequireFromString("1.5")))
	assert.True(t, Round2(decimal.RequireFromString("2.345")).Equal(decimal.RequireFromString("2.35")))
	assert.Equal(t, 1.33, Float2(HoursFromMinutes(80)))
	assert.True(t, FiniteDecimal(0).IsZero())
}
