// dates.go - Label date parsing: OCR noise repair, format ladder, and
// day/month disambiguation for ambiguous slash dates.

package processor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Compiled date-shape patterns. Kept as an ordered set so new label formats
// can be added without touching the parse flow.
var (
	// Numeric dates: 15/01/2026, 15.01.26, 2026-01-15, 15|01|2026
	numericDatePattern = regexp.MustCompile(`(?i)\b(\d{1,2}[./|\-]\d{1,2}[./|\-]\d{2,4}|\d{4}[./|\-]\d{1,2}[./|\-]\d{1,2})\b`)

	// Textual dates: "15 Jan 2026", "5 March 26"
	textualDatePattern = regexp.MustCompile(`(?i)\b(\d{1,2}\s*(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\s*\d{2,4})\b`)

	// Month-year only: "Mar 2026", "March-26", "Sept.2026"
	monthYearDatePattern = regexp.MustCompile(`(?i)\b((jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*[.\s/\-]*\d{2,4})\b`)

	isoDateToken     = regexp.MustCompile(`^(\d{4})[/\-](\d{1,2})[/\-](\d{1,2})$`)
	slashDateToken   = regexp.MustCompile(`^(\d{1,2})[/\-](\d{1,2})[/\-](\d{2,4})$`)
	textualDateToken = regexp.MustCompile(`^(?:(\d{1,2})\s*)?([a-z]+)[\s/\-]*(\d{2,4})$`)

	dotBetweenDigits = regexp.MustCompile(`(\d)\.(\d)`)

	// OCR character confusions that only make sense between digits.
	digitNoiseFixes = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`(\d)S(\d)`), "${1}5${2}"},
		{regexp.MustCompile(`(\d)B(\d)`), "${1}8${2}"},
		{regexp.MustCompile(`(\d)G(\d)`), "${1}6${2}"},
		{regexp.MustCompile(`(\d)D(\d)`), "${1}0${2}"},
		{regexp.MustCompile(`(\d)[Il](\d)`), "${1}1${2}"},
		// Letter-O/zero and Z/two confusion in year context: 2O26, 20Z6, 2Z26
		{regexp.MustCompile(`\b2O(2\d)`), "20${1}"},
		{regexp.MustCompile(`\b20O(\d)`), "200${1}"},
		{regexp.MustCompile(`\b20Z(\d)`), "202${1}"},
		{regexp.MustCompile(`\b2Z(2\d)`), "20${1}"},
	}
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// MonthFromToken resolves a textual month token ("mar", "March", "sept").
// Returns 0 when the token is not a month.
func MonthFromToken(token string) time.Month {
	t := strings.ToLower(strings.TrimSpace(token))
	if len(t) < 3 {
		return 0
	}
	m, ok := monthsByPrefix[t[:3]]
	if !ok {
		return 0
	}
	// Reject words that merely start with a month prefix ("mayo", "junk") by
	// requiring the rest of the token to still match the month name.
	full := strings.ToLower(m.String())
	if len(t) > len(full) {
		return 0
	}
	if t == "sept" {
		return time.September
	}
	if !strings.HasPrefix(full, t) {
		return 0
	}
	return m
}

// NormalizeOCRText repairs common OCR character confusions across a whole
// text blob before any pattern matching runs.
func NormalizeOCRText(text string) string {
	n := strings.ReplaceAll(text, "\r", "\n")
	n = strings.ReplaceAll(n, "O/", "0/")
	n = strings.ReplaceAll(n, "/O", "/0")
	n = strings.ReplaceAll(n, "O-", "0-")
	n = strings.ReplaceAll(n, "-O", "-0")
	n = strings.ReplaceAll(n, "l/", "1/")
	n = strings.ReplaceAll(n, "/l", "/1")
	n = strings.ReplaceAll(n, "I/", "1/")
	n = strings.ReplaceAll(n, "/I", "/1")
	for _, fix := range digitNoiseFixes {
		// Applied twice: RE2 has no lookarounds, and a consumed digit can
		// hide an adjacent confusion ("1S2S3").
		n = fix.re.ReplaceAllString(n, fix.repl)
		n = fix.re.ReplaceAllString(n, fix.repl)
	}
	return n
}

// DateParser parses date-like substrings into calendar dates. It is a pure
// function of its input plus "today" (used for range checks and the
// future-preference rule); the clock is injectable for tests.
type DateParser struct {
	now func() time.Time
}

// NewDateParser builds a parser; a nil clock means time.Now.
func NewDateParser(now func() time.Time) *DateParser {
	if now == nil {
		now = time.Now
	}
	return &DateParser{now: now}
}

// Today returns the parser's current UTC calendar date.
func (p *DateParser) Today() time.Time {
	return ToDate(p.now())
}

// normalizeDateToken cleans a single date token: pipe to slash, dots between
// digits to slash, remaining dots to spaces (so "Mar.2026" still parses).
func normalizeDateToken(value string) string {
	v := strings.TrimSpace(value)
	v = strings.ReplaceAll(v, "|", "/")
	v = dotBetweenDigits.ReplaceAllString(v, "${1}/${2}")
	v = dotBetweenDigits.ReplaceAllString(v, "${1}/${2}")
	v = strings.ReplaceAll(v, ".", " ")
	return v
}

// normalizeYear expands two-digit years with a pivot: >70 lands in the 1900s,
// otherwise the 2000s. 19xx results are then rejected by the range check, so
// ancient-looking years never leak into the fallback chain.
func normalizeYear(year int) int {
	if year < 100 {
		if year > 70 {
			return year + 1900
		}
		return year + 2000
	}
	return year
}

// Parse parses a date token. ISO takes priority, then ambiguous numeric
// forms with a DD/MM bias, then textual-month forms. Returns nil when the
// token is not a usable date or falls outside [2000,2100].
func (p *DateParser) Parse(value string) *time.Time {
	v := normalizeDateToken(value)

	if m := isoDateToken.FindStringSubmatch(v); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return buildClampedDate(year, time.Month(month), day)
	}

	if m := slashDateToken.FindStringSubmatch(v); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		year := normalizeYear(atoiSafe(m[3]))
		if a > 31 || b > 31 {
			return nil
		}
		return disambiguateDayMonth(a, b, year)
	}

	return parseTextualDate(v)
}

// ParsePreferFuture parses like Parse, but for ambiguous DD/MM vs MM/DD
// tokens it prefers the interpretation that lands in the future. Expiry
// labels are far more likely to be meaningful when not already past.
func (p *DateParser) ParsePreferFuture(value string) *time.Time {
	v := normalizeDateToken(value)

	if m := slashDateToken.FindStringSubmatch(v); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		year := normalizeYear(atoiSafe(m[3]))
		if a > 31 || b > 31 {
			return nil
		}
		return p.disambiguatePreferFuture(a, b, year)
	}

	return p.Parse(value)
}

// ExtractDates collects every date-shaped substring in the text, parsed and
// deduplicated, in order of first appearance.
func (p *DateParser) ExtractDates(text string) []time.Time {
	var results []time.Time
	seen := map[time.Time]bool{}

	add := func(token string) {
		if d := p.Parse(token); d != nil && !seen[*d] {
			seen[*d] = true
			results = append(results, *d)
		}
	}

	for _, m := range numericDatePattern.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range textualDatePattern.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range monthYearDatePattern.FindAllString(text, -1) {
		add(m)
	}
	return results
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// buildClampedDate validates the month, clamps the day into the month, and
// applies the reasonable-year range check.
func buildClampedDate(year int, month time.Month, day int) *time.Time {
	if month < time.January || month > time.December {
		return nil
	}
	if day < 1 {
		day = 1
	}
	if max := daysInMonth(year, month); day > max {
		day = max
	}
	d := Date(year, month, day)
	if !IsReasonableDate(d) {
		return nil
	}
	return &d
}

// tryBuildDate is the strict variant: the day must actually exist in the
// month, no clamping.
func tryBuildDate(year int, month time.Month, day int) *time.Time {
	if month < time.January || month > time.December {
		return nil
	}
	if day < 1 || day > daysInMonth(year, month) {
		return nil
	}
	d := Date(year, month, day)
	if !IsReasonableDate(d) {
		return nil
	}
	return &d
}

// disambiguateDayMonth resolves an a/b/year numeric date:
//   - if one side can't be a month (>12), the other side is the month;
//   - if both could be months, prefer DD/MM (deliberate regional bias);
//   - day values overflowing the month are clamped to its last day.
func disambiguateDayMonth(a, b, year int) *time.Time {
	if year < 2000 || year > 2100 {
		return nil
	}

	if a > 12 && b >= 1 && b <= 12 {
		return buildClampedDate(year, time.Month(b), a)
	}
	if b > 12 && a >= 1 && a <= 12 {
		return buildClampedDate(year, time.Month(a), b)
	}
	if a >= 1 && a <= 12 && b >= 1 && b <= 12 {
		return buildClampedDate(year, time.Month(b), a)
	}
	if b >= 1 && b <= 12 {
		return buildClampedDate(year, time.Month(b), a)
	}
	return nil
}

// disambiguatePreferFuture tries both DD/MM and MM/DD when the token is
// truly ambiguous; if the DD/MM reading is already past but the swapped one
// is not, the future reading wins.
func (p *DateParser) disambiguatePreferFuture(a, b, year int) *time.Time {
	today := p.Today()
	ddMM := disambiguateDayMonth(a, b, year)

	if a >= 1 && a <= 12 && b >= 1 && b <= 12 && a != b {
		mmDD := tryBuildDate(year, time.Month(a), b)
		switch {
		case ddMM != nil && mmDD != nil:
			if ddMM.Before(today) && !mmDD.Before(today) {
				return mmDD
			}
		case ddMM == nil && mmDD != nil:
			return mmDD
		}
	}
	return ddMM
}

// parseTextualDate handles "[day] <month> <year>" tokens, including
// month-year-only forms which resolve to the 1st.
func parseTextualDate(v string) *time.Time {
	m := textualDateToken.FindStringSubmatch(strings.ToLower(strings.TrimSpace(v)))
	if m == nil {
		return nil
	}

	month := MonthFromToken(m[2])
	if month == 0 {
		return nil
	}

	year := normalizeYear(atoiSafe(m[3]))
	day := 1
	if m[1] != "" {
		day = atoiSafe(m[1])
	}
	return buildClampedDate(year, month, day)
}
