package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time { return Date(year, month, day) }
}

func TestParse_NumericFormats(t *testing.T) {
	p := NewDateParser(fixedClock(2026, time.June, 1))

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"iso", "2026-01-15", Date(2026, time.January, 15)},
		{"iso slashes", "2026/01/15", Date(2026, time.January, 15)},
		{"unambiguous day first", "25/03/2026", Date(2026, time.March, 25)},
		{"unambiguous month first", "03/25/2026", Date(2026, time.March, 25)},
		{"ambiguous prefers day-month", "05/04/2026", Date(2026, time.April, 5)},
		{"two digit year", "15/01/26", Date(2026, time.January, 15)},
		{"dots", "15.01.2026", Date(2026, time.January, 15)},
		{"pipes", "15|01|2026", Date(2026, time.January, 15)},
		{"dashes", "15-01-2026", Date(2026, time.January, 15)},
		{"day overflow clamps", "31/04/2026", Date(2026, time.April, 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.input)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParse_TextualFormats(t *testing.T) {
	p := NewDateParser(fixedClock(2026, time.June, 1))

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"day month year", "15 Jan 2026", Date(2026, time.January, 15)},
		{"full month name", "15 January 2026", Date(2026, time.January, 15)},
		{"month year only", "Mar 2026", Date(2026, time.March, 1)},
		{"month dash year", "March-26", Date(2026, time.March, 1)},
		{"sept dot year", "Sept.2026", Date(2026, time.September, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.input)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParse_Rejections(t *testing.T) {
	p := NewDateParser(fixedClock(2026, time.June, 1))

	tests := []struct {
		name  string
		input string
	}{
		{"junk", "not a date"},
		{"year too old", "15/01/1999"},
		{"two digit year lands in 1900s", "15/01/80"},
		{"nonsense numbers", "45/45/2026"},
		{"month word that is not a month", "15 mayo 2026"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, p.Parse(tt.input))
		})
	}
}

func TestParsePreferFuture(t *testing.T) {
	// Mid-December: an ambiguous token whose day-first reading is already
	// past should flip to the month-first reading when that one is ahead.
	p := NewDateParser(fixedClock(2026, time.June, 15))

	// Day-first reading Feb 8 is past, month-first Aug 2 is ahead.
	got := p.ParsePreferFuture("08/02/26")
	require.NotNil(t, got)
	assert.Equal(t, Date(2026, time.August, 2), *got)

	// Day-first reading is already in the future; it stays.
	got = p.ParsePreferFuture("02/11/26")
	require.NotNil(t, got)
	assert.Equal(t, Date(2026, time.November, 2), *got)

	// Unambiguous tokens never flip.
	got = p.ParsePreferFuture("25/03/2026")
	require.NotNil(t, got)
	assert.Equal(t, Date(2026, time.March, 25), *got)
}

func TestNormalizeOCRText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"letter S between digits", "4S2", "452"},
		{"adjacent confusions", "1S2S3", "15253"},
		{"letter O in year", "2O26-01-05", "2026-01-05"},
		{"Z in year", "20Z6", "2026"},
		{"O next to slash", "15/O1/2026", "15/01/2026"},
		{"l next to slash", "15/0l/2026", "15/01/2026"},
		{"clean text untouched", "Amul Milk 500ml", "Amul Milk 500ml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeOCRText(tt.input))
		})
	}
}

func TestParse_AfterNoiseRepair(t *testing.T) {
	p := NewDateParser(fixedClock(2026, time.June, 1))

	got := p.Parse(NormalizeOCRText("2O26-01-O5"))
	require.NotNil(t, got)
	assert.Equal(t, Date(2026, time.January, 5), *got)
}

func TestMonthFromToken(t *testing.T) {
	assert.Equal(t, time.March, MonthFromToken("mar"))
	assert.Equal(t, time.March, MonthFromToken("March"))
	assert.Equal(t, time.September, MonthFromToken("sept"))
	assert.Equal(t, time.September, MonthFromToken("september"))
	assert.Equal(t, time.Month(0), MonthFromToken("mayo"))
	assert.Equal(t, time.Month(0), MonthFromToken("junk"))
	assert.Equal(t, time.Month(0), MonthFromToken("ma"))
}

func TestExtractDates(t *testing.T) {
	p := NewDateParser(fixedClock(2026, time.June, 1))

	dates := p.ExtractDates("MFG 15/01/2026 EXP 15/07/2026 best before Mar 2027")
	require.Len(t, dates, 3)
	assert.Equal(t, Date(2026, time.January, 15), dates[0])
	assert.Equal(t, Date(2026, time.July, 15), dates[1])
	assert.Equal(t, Date(2027, time.March, 1), dates[2])

	// Duplicates collapse to the first appearance.
	dates = p.ExtractDates("EXP 15/07/2026 ... use by 15/07/2026")
	assert.Len(t, dates, 1)

	assert.Empty(t, p.ExtractDates("no dates here"))
}

func TestAddMonths_EndOfMonthClamp(t *testing.T) {
	assert.Equal(t, Date(2026, time.February, 28), AddMonths(Date(2026, time.January, 31), 1))
	assert.Equal(t, Date(2028, time.February, 29), AddMonths(Date(2028, time.January, 31), 1))
	assert.Equal(t, Date(2026, time.July, 15), AddMonths(Date(2026, time.January, 15), 6))
}

func TestAddYears_LeapDayClamp(t *testing.T) {
	assert.Equal(t, Date(2029, time.February, 28), AddYears(Date(2028, time.February, 29), 1))
	assert.Equal(t, Date(2027, time.June, 1), AddYears(Date(2026, time.June, 1), 1))
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 30, DaysBetween(Date(2026, time.June, 1), Date(2026, time.July, 1)))
	assert.Equal(t, -1, DaysBetween(Date(2026, time.June, 1), Date(2026, time.May, 31)))
	assert.Equal(t, 0, DaysBetween(Date(2026, time.June, 1), Date(2026, time.June, 1)))
}
