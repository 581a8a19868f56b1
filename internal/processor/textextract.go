// textextract.go - Pure-regex label reader. Turns raw OCR text into a
// ScanResult without any model call, so the pipeline still produces a usable
// answer when the vision provider is disabled or down.

package processor

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	expiryLabelPattern = regexp.MustCompile(`(?i)(?:exp(?:iry|ire)?|expires?|best\s*(?:if\s+used\s+)?before|use\s*by|bb|use\s*before|consume\s*before)\s*[:\-]?\s*(\d{1,2}[./|\-]\d{1,2}[./|\-]\d{2,4}|\d{4}[./|\-]\d{1,2}[./|\-]\d{1,2}|\d{1,2}\s*(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\s*\d{2,4})`)

	mfgLabelPattern = regexp.MustCompile(`(?i)(?:mfg|mfd|mfg\.?\s*date|manufactured|manufacturing|packed\s*on|pkd|pkg\.?\s*date|pack(?:ed|ing)\s*date|prod(?:uction)?\s*date)\s*[:\-]?\s*(\d{1,2}[./|\-]\d{1,2}[./|\-]\d{2,4}|\d{4}[./|\-]\d{1,2}[./|\-]\d{1,2}|\d{1,2}\s*(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\s*\d{2,4})`)
)

// ClassifierPrediction is an optional hint from an image classifier, used
// only when the label text itself gives nothing to work with.
type ClassifierPrediction struct {
	ProductName  string
	CategoryName string
}

// ImageClassifier predicts a product from raw image bytes. Implementations
// return false when they have no confident prediction.
type ImageClassifier interface {
	Predict(image []byte) (ClassifierPrediction, bool)
}

// Known product keywords checked against the whole text, most specific
// first. Keeps common grocery labels out of the first-line fallback.
var productKeywords = []struct {
	keyword string
	name    string
}{
	{"milk", "Milk"},
	{"bread", "Bread"},
	{"tomato", "Tomato"},
	{"onion", "Onion"},
	{"egg", "Eggs"},
	{"yogurt", "Yogurt"},
	{"yoghurt", "Yogurt"},
	{"cheese", "Cheese"},
	{"butter", "Butter"},
	{"chicken", "Chicken"},
	{"rice", "Rice"},
	{"juice", "Juice"},
}

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryDairy, []string{"milk", "cheese", "butter", "yogurt", "yoghurt", "cream", "paneer", "curd"}},
	{CategoryBakery, []string{"bread", "bun", "cake", "pastry", "croissant"}},
	{CategorySnacks, []string{"biscuit", "cookie", "chocolate", "chips", "namkeen", "snack", "wafer"}},
	{CategoryFruits, []string{"banana", "apple", "orange", "mango", "grape", "papaya", "kiwi", "pear"}},
	{CategoryMeat, []string{"chicken", "beef", "fish", "mutton", "pork", "prawn", "shrimp", "meat"}},
	{CategoryVegetables, []string{"tomato", "onion", "potato", "carrot", "spinach", "broccoli", "capsicum", "cucumber", "lettuce"}},
	{CategoryGrains, []string{"rice", "pasta", "noodle", "oats", "cereal", "wheat", "flour", "atta"}},
	{CategoryBeverages, []string{"juice", "soda", "water", "tea", "coffee", "drink"}},
	{CategoryCondiments, []string{"sauce", "ketchup", "pickle", "jam", "honey"}},
	{CategoryFrozen, []string{"frozen", "ice cream"}},
}

// GuessProductName picks a product name out of label text: known keyword
// first, otherwise the first line that looks like a name.
func GuessProductName(text string) string {
	lower := strings.ToLower(text)
	for _, pk := range productKeywords {
		if strings.Contains(lower, pk.keyword) {
			return pk.name
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 3 || !containsLetter(line) {
			continue
		}
		if len(line) > 80 {
			cut := 80
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			line = line[:cut]
		}
		return line
	}
	return UnknownProduct
}

// GuessCategory maps lowercased label text onto a product category.
func GuessCategory(lower string) string {
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(lower, kw) {
				return ck.category
			}
		}
	}
	return CategoryGeneral
}

// InferCategoryFromName is GuessCategory applied to a single product name.
// Returns "" rather than General so callers can tell "no signal" apart from
// a genuine General product.
func InferCategoryFromName(name string) string {
	if c := GuessCategory(strings.ToLower(name)); c != CategoryGeneral {
		return c
	}
	return ""
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// LocalTextExtractor is the regex-only extraction path. It never errors;
// worst case it returns an Unknown Product with a category-fallback expiry
// and a low confidence score.
type LocalTextExtractor struct {
	dates      *DateParser
	durations  *DurationResolver
	shelfLives *ShelfLifeTable
	classifier ImageClassifier
	now        func() time.Time
}

// NewLocalTextExtractor builds the extractor. The classifier is optional; a
// nil clock means time.Now.
func NewLocalTextExtractor(classifier ImageClassifier, now func() time.Time) *LocalTextExtractor {
	if now == nil {
		now = time.Now
	}
	return &LocalTextExtractor{
		dates:      NewDateParser(now),
		durations:  NewDurationResolver(),
		shelfLives: NewShelfLifeTable(now),
		classifier: classifier,
		now:        now,
	}
}

// Extract runs the full local pipeline over raw OCR text. Image bytes are
// optional and only consulted through the classifier hook.
func (e *LocalTextExtractor) Extract(rawText string, image []byte) ScanResult {
	text := NormalizeOCRText(rawText)
	lower := strings.ToLower(text)
	today := ToDate(e.now())

	productName := GuessProductName(text)
	category := GuessCategory(lower)

	var prediction *ClassifierPrediction
	if e.classifier != nil && len(image) > 0 {
		if p, ok := e.classifier.Predict(image); ok {
			prediction = &p
		}
	}
	if productName == UnknownProduct && prediction != nil {
		productName = prediction.ProductName
	}
	if category == CategoryGeneral && prediction != nil {
		category = prediction.CategoryName
	}

	allDates := e.dates.ExtractDates(text)
	expiryByLabel := extractLabeledDate(e.dates, expiryLabelPattern, text, true)
	mfgByLabel := extractLabeledDate(e.dates, mfgLabelPattern, text, false)

	var mfgDate *time.Time
	switch {
	case mfgByLabel != nil:
		mfgDate = mfgByLabel
	case len(allDates) > 1:
		d := minDate(allDates)
		mfgDate = &d
	}

	// "end of Mar 2027" also matches the loose month-year pattern as Mar 1,
	// so the explicit end-of-month statement must be consulted before the
	// loose dates.
	endOfMonth := e.durations.ResolveEndOfMonth(text)

	var expiryDate time.Time
	switch {
	case expiryByLabel != nil:
		expiryDate = *expiryByLabel
	case endOfMonth != nil:
		expiryDate = *endOfMonth
	case len(allDates) > 1:
		expiryDate = maxDate(allDates)
	case len(allDates) == 1:
		expiryDate = allDates[0]
	}

	if expiryDate.IsZero() {
		if d := e.durations.ResolveYearOnly(text); d != nil {
			expiryDate = *d
		}
	}
	if expiryDate.IsZero() && mfgDate != nil {
		if d := e.durations.ResolveFrom(text, *mfgDate); d != nil {
			expiryDate = *d
		}
	}
	// "best before three months from packaging" with no packaging date on
	// the label: anchor at today and record the synthetic mfg date.
	if expiryDate.IsZero() && mfgDate == nil {
		if d := e.durations.ResolveFrom(text, today); d != nil {
			mfgDate = &today
			expiryDate = *d
		}
	}

	hasDateEvidence := len(allDates) > 0 || expiryByLabel != nil || mfgByLabel != nil

	if expiryDate.IsZero() {
		expiryDate = e.shelfLives.FallbackExpiry(category, productName)
	}

	score, fieldConf, needsReview := scoreLocalExtraction(
		productName, hasDateEvidence, expiryByLabel != nil, prediction != nil, len(allDates), category)

	return ScanResult{
		ProductName:       productName,
		ManufacturingDate: mfgDate,
		ExpiryDate:        expiryDate,
		DaysLeftToExpire:  DaysBetween(today, expiryDate),
		CategoryName:      category,
		IsLowConfidence:   score < 50,
		ConfidenceScore:   score,
		FieldConfidence:   fieldConf,
		NeedsHumanReview:  needsReview,
	}
}

func extractLabeledDate(p *DateParser, re *regexp.Regexp, text string, preferFuture bool) *time.Time {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	if preferFuture {
		return p.ParsePreferFuture(m[1])
	}
	return p.Parse(m[1])
}

func minDate(dates []time.Time) time.Time {
	min := dates[0]
	for _, d := range dates[1:] {
		if d.Before(min) {
			min = d
		}
	}
	return min
}

func maxDate(dates []time.Time) time.Time {
	max := dates[0]
	for _, d := range dates[1:] {
		if d.After(max) {
			max = d
		}
	}
	return max
}

// scoreLocalExtraction assigns the overall and per-field confidence for the
// regex path. A labeled expiry is worth more than loose dates; missing date
// evidence is an active penalty, and a result with neither a name nor any
// date caps out at 25.
func scoreLocalExtraction(productName string, hasDateEvidence, hasLabeledExpiry, hasPrediction bool, dateCount int, category string) (int, FieldConfidence, bool) {
	score := 0
	var fc FieldConfidence

	switch {
	case productName != UnknownProduct:
		score += 25
		fc.Name = ConfidenceHigh
	case hasPrediction:
		score += 15
		fc.Name = ConfidenceMedium
	default:
		fc.Name = ConfidenceLow
	}

	switch {
	case hasLabeledExpiry:
		score += 30
		fc.Expiry = ConfidenceHigh
	case hasDateEvidence:
		score += 20
		fc.Expiry = ConfidenceMedium
	default:
		score -= 15
		fc.Expiry = ConfidenceLow
	}

	switch {
	case category != CategoryGeneral:
		score += 15
		fc.Category = ConfidenceHigh
	case hasPrediction:
		score += 10
		fc.Category = ConfidenceMedium
	default:
		fc.Category = ConfidenceLow
	}

	if dateCount >= 2 {
		score += 10
	}
	if productName == UnknownProduct && !hasDateEvidence && score > 25 {
		score = 25
	}
	score = ClampScore(score)

	needsReview := fc.Name == ConfidenceLow || fc.Expiry == ConfidenceLow || score < 50
	return score, fc, needsReview
}
