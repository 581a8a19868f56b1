// duration.go - Shelf-life phrase grammar: "best before 6 months", "use
// within two weeks of packaging", "best before end of Mar 2026",
// "expires 2027".

package processor

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// Phrase grammar for relative shelf-life statements. Group 1 is the
	// quantity token, group 2 the unit. The optional trailing range clause
	// ("3 to 6 months") repeats the unit alternation because RE2 has no
	// backreferences.
	durationPhrasePattern = regexp.MustCompile(`(?i)(?:best\s*(?:if\s+used\s+)?before|use\s*(?:with)?in|consume\s*(?:with)?in|shelf\s*life\s*(?:of|is|:)?|has\s+a\s+shelf\s+life\s+of|valid\s*(?:for|upto)|good\s*for|keeps?\s*(?:for|up\s*to)|store\s*(?:for|up\s*to)|stays?\s*fresh\s*(?:for|up\s*to)?|lasts?\s*(?:for|up\s*to)?|not\s+to\s+be\s+used\s+after|expir(?:y|es?)\s*(?:in)?)\s*(?:within\s*|up\s*to\s*)?(\d{1,3}(?:[½¾]|\s+\d\s*/\s*\d)?(?:\.\d+)?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|twenty\s*one|twenty\s*two|twenty\s*three|twenty\s*four|thirty|forty\s*five|sixty|ninety)\s*(week|weeks|month|months|mon|mons|day|days|year|years|yr|yrs|hrs|hours)(?:\s*(?:to|-)\s*\d{1,3}\s*(?:week|weeks|month|months|mon|mons|day|days|year|years|yr|yrs|hrs|hours))?\s*(?:from|after|of|since|post)?\s*(?:mfg|mfd|manufacture|manufacturing|packed|packaging|packing|pkg|pkd|production|opening|date\s*of\s*(?:mfg|manufacture|packing|packaging|production))?`)

	// "best before end of Mar 2026" -> last day of that month.
	endOfMonthPattern = regexp.MustCompile(`(?i)best\s*before\s*(?:the\s*)?end\s*(?:of)?\s*(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\s*(\d{2,4})`)

	// "expires 2027" with no month or day -> Dec 31 of that year.
	yearOnlyExpiryPattern = regexp.MustCompile(`(?i)(?:exp(?:iry|ire)?|expires?|best\s*before|use\s*by)\s*[:\-]?\s*(20[2-9]\d)\b`)

	// Bare quantity+unit with no leading keyword, for text the vision model
	// has already isolated as a best-before phrase.
	bareDurationPattern = regexp.MustCompile(`(?i)(\d{1,3}(?:[½¾]|\s+\d\s*/\s*\d)?(?:\.\d+)?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|twenty\s*one|twenty\s*two|twenty\s*three|twenty\s*four|thirty|forty\s*five|sixty|ninety)\s*(week|weeks|month|months|mon|mons|day|days|year|years|yr|yrs|hrs|hours)`)

	mixedFractionPattern = regexp.MustCompile(`^(\d+)\s+(\d+)\s*/\s*(\d+)$`)
)

// ParseQuantityToken turns a duration quantity token into a number. Accepts
// plain numbers, decimals, unicode fractions ("1½"), mixed fractions
// ("1 1/2") and the word numbers the phrase grammar admits. Returns false
// for anything else.
func ParseQuantityToken(token string) (float64, bool) {
	t := strings.TrimSpace(token)
	t = strings.NewReplacer("½", ".5", "¾", ".75", "⅓", ".33", "⅔", ".67").Replace(t)

	if m := mixedFractionPattern.FindStringSubmatch(t); m != nil {
		whole, _ := strconv.ParseFloat(m[1], 64)
		num, _ := strconv.ParseFloat(m[2], 64)
		den, _ := strconv.ParseFloat(m[3], 64)
		if den <= 0 {
			return 0, false
		}
		return whole + num/den, true
	}

	if n, err := strconv.ParseFloat(t, 64); err == nil {
		return n, true
	}

	if n, ok := wordNumbers[strings.ToLower(t)]; ok {
		return n, true
	}
	return 0, false
}

var wordNumbers = map[string]float64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"thirteen": 13, "fourteen": 14, "fifteen": 15, "sixteen": 16,
	"seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
	"twenty one": 21, "twentyone": 21, "twenty two": 22, "twentytwo": 22,
	"twenty three": 23, "twentythree": 23, "twenty four": 24, "twentyfour": 24,
	"thirty": 30, "forty five": 45, "fortyfive": 45, "sixty": 60, "ninety": 90,
}

// DurationResolver converts relative shelf-life phrases into absolute expiry
// dates, anchored at a manufacturing date.
type DurationResolver struct{}

// NewDurationResolver builds a resolver.
func NewDurationResolver() *DurationResolver {
	return &DurationResolver{}
}

// ResolveFrom finds a shelf-life phrase in the text and applies it to the
// anchor date. Days and weeks round fractional quantities up; months and
// years use calendar arithmetic with end-of-month clamping; hours convert to
// whole days with a one-day minimum. Returns nil when no usable phrase
// exists.
func (r *DurationResolver) ResolveFrom(text string, anchor time.Time) *time.Time {
	m := durationPhrasePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	return applyDuration(m[1], m[2], anchor)
}

// ResolveBare is the loose variant for text already known to be a shelf-life
// statement: it matches a quantity and unit without requiring a leading
// keyword.
func (r *DurationResolver) ResolveBare(text string, anchor time.Time) *time.Time {
	m := bareDurationPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return applyDuration(m[1], m[2], anchor)
}

func applyDuration(quantityToken, unit string, anchor time.Time) *time.Time {
	value, ok := ParseQuantityToken(quantityToken)
	if !ok || value <= 0 {
		return nil
	}

	var d time.Time
	switch strings.ToLower(unit) {
	case "day", "days":
		d = anchor.AddDate(0, 0, int(math.Ceil(value)))
	case "week", "weeks":
		d = anchor.AddDate(0, 0, int(math.Ceil(value*7)))
	case "month", "months", "mon", "mons":
		d = AddMonths(anchor, int(math.Ceil(value)))
	case "year", "years", "yr", "yrs":
		d = AddYears(anchor, int(math.Ceil(value)))
	case "hrs", "hours":
		days := int(math.Ceil(value / 24))
		if days < 1 {
			days = 1
		}
		d = anchor.AddDate(0, 0, days)
	default:
		return nil
	}
	return &d
}

// ResolveEndOfMonth handles "best before end of <month> <year>", resolving
// to the last day of that month. Two-digit years use the usual pivot.
func (r *DurationResolver) ResolveEndOfMonth(text string) *time.Time {
	m := endOfMonthPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	month := MonthFromToken(m[1])
	if month == 0 {
		return nil
	}

	year := normalizeYear(atoiSafe(m[2]))
	if year < 2000 || year > 2100 {
		return nil
	}

	d := Date(year, month, daysInMonth(year, month))
	return &d
}

// ResolveYearOnly handles labels that state only an expiry year ("expires
// 2027"), resolving pessimistically to Dec 31 of that year.
func (r *DurationResolver) ResolveYearOnly(text string) *time.Time {
	m := yearOnlyExpiryPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	year := atoiSafe(m[1])
	if year < 2020 || year > 2100 {
		return nil
	}

	d := Date(year, time.December, 31)
	return &d
}
