// result.go - Value types produced by the extraction pipeline.

package processor

import (
	"strings"
	"time"
)

// Fixed category vocabulary. Anything unrecognized collapses to CategoryGeneral.
const (
	CategoryGeneral    = "General"
	CategoryDairy      = "Dairy"
	CategoryFruits     = "Fruits"
	CategoryVegetables = "Vegetables"
	CategoryMeat       = "Meat"
	CategoryBakery     = "Bakery Item"
	CategorySnacks     = "Snacks"
	CategoryGrains     = "Grains"
	CategoryBeverages  = "Beverages"
	CategoryCondiments = "Condiments"
	CategoryFrozen     = "Frozen"
)

// UnknownProduct is the sentinel name for "could not determine".
const UnknownProduct = "Unknown Product"

// Confidence ranks for per-field confidence.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// FieldConfidence rates each extracted field independently (high/medium/low).
type FieldConfidence struct {
	Name     string `json:"name"`
	Expiry   string `json:"expiry"`
	Category string `json:"category"`
}

// IsZero reports whether no field confidence was assigned at all.
func (fc FieldConfidence) IsZero() bool {
	return fc.Name == "" && fc.Expiry == "" && fc.Category == ""
}

// ConfidenceRank maps a rank string to an ordering value (high > medium > low).
// Unknown strings rank lowest.
func ConfidenceRank(c string) int {
	switch strings.ToLower(c) {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	default:
		return 1
	}
}

// HigherConfidence returns whichever of the two ranks is stronger.
func HigherConfidence(a, b string) string {
	if ConfidenceRank(a) >= ConfidenceRank(b) {
		return a
	}
	return b
}

// ScanResult is the outcome of one extraction pass (local text, AI vision,
// or the merged result). It is created fresh per scan and never mutated after
// reconciliation; merging produces a new value.
type ScanResult struct {
	ProductName       string          `json:"productName"`
	ManufacturingDate *time.Time      `json:"manufacturingDate,omitempty"`
	ExpiryDate        time.Time       `json:"expiryDate"`
	DaysLeftToExpire  int             `json:"daysLeftToExpire"`
	CategoryName      string          `json:"categoryName"`
	IsLowConfidence   bool            `json:"isLowConfidence"`
	ProductCandidates []string        `json:"productCandidates,omitempty"`
	ConfidenceScore   int             `json:"confidenceScore"`
	FieldConfidence   FieldConfidence `json:"fieldConfidence"`
	NeedsHumanReview  bool            `json:"needsHumanReview"`
	DetectedItems     []DetectedItem  `json:"detectedItems,omitempty"`
}

// DetectedItem is one physical product among several found in a multi-item
// scan, either reported by the vision model or synthesized from candidates.
type DetectedItem struct {
	ProductName      string    `json:"productName"`
	CategoryName     string    `json:"categoryName"`
	ExpiryDate       time.Time `json:"expiryDate"`
	DaysLeftToExpire int       `json:"daysLeftToExpire"`
	ConfidenceScore  int       `json:"confidenceScore"`
	NeedsHumanReview bool      `json:"needsHumanReview"`
}

// Date builds a calendar date at UTC midnight. All dates flowing through the
// pipeline are normalized this way so comparisons are day-granular.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ToDate truncates a timestamp to its UTC calendar date.
func ToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return Date(y, m, d)
}

// DaysBetween returns to - from in whole days (both truncated to dates).
func DaysBetween(from, to time.Time) int {
	return int(ToDate(to).Sub(ToDate(from)).Hours() / 24)
}

// ClampScore keeps a confidence score inside [0,100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// IsReasonableDate rejects years that cannot plausibly appear on a food
// label; anything outside is treated as an OCR misread.
func IsReasonableDate(d time.Time) bool {
	return d.Year() >= 2000 && d.Year() <= 2100
}

// daysInMonth returns the number of days in the given month/year.
func daysInMonth(year int, month time.Month) int {
	return Date(year, month+1, 0).Day()
}

// AddMonths adds calendar months, clamping the day to the target month's
// length (Jan 31 + 1 month = Feb 28/29, not Mar 2).
func AddMonths(d time.Time, months int) time.Time {
	d = ToDate(d)
	y, m, day := d.Date()
	total := int(m) - 1 + months
	ny := y + total/12
	nm := time.Month(total%12 + 1)
	if total < 0 && total%12 != 0 {
		ny--
		nm = time.Month(total%12 + 13)
	}
	if max := daysInMonth(ny, nm); day > max {
		day = max
	}
	return Date(ny, nm, day)
}

// AddYears adds calendar years with the same day clamping (Feb 29 + 1 year =
// Feb 28).
func AddYears(d time.Time, years int) time.Time {
	return AddMonths(d, years*12)
}
