package processor

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier struct {
	prediction ClassifierPrediction
	ok         bool
	called     bool
}

func (s *stubClassifier) Predict(image []byte) (ClassifierPrediction, bool) {
	s.called = true
	return s.prediction, s.ok
}

func TestExtract_LabeledDates(t *testing.T) {
	e := NewLocalTextExtractor(nil, fixedClock(2026, time.June, 1))

	result := e.Extract("Amul Taaza Milk 500ml\nMFG 15/01/2026\nEXP 15/07/2026", nil)

	assert.Equal(t, "Milk", result.ProductName)
	assert.Equal(t, CategoryDairy, result.CategoryName)
	require.NotNil(t, result.ManufacturingDate)
	assert.Equal(t, Date(2026, time.January, 15), *result.ManufacturingDate)
	assert.Equal(t, Date(2026, time.July, 15), result.ExpiryDate)
	assert.Equal(t, 44, result.DaysLeftToExpire)
	assert.False(t, result.IsLowConfidence)
	assert.False(t, result.NeedsHumanReview)
	assert.Equal(t, ConfidenceHigh, result.FieldConfidence.Name)
	assert.Equal(t, ConfidenceHigh, result.FieldConfidence.Expiry)
	assert.Equal(t, ConfidenceHigh, result.FieldConfidence.Category)
}

func TestExtract_UnlabeledDates(t *testing.T) {
	e := NewLocalTextExtractor(nil, fixedClock(2026, time.June, 1))

	// Two loose dates: earlier one is manufacturing, later one is expiry.
	result := e.Extract("Cheese Block\n15/01/2026\n15/09/2026", nil)

	require.NotNil(t, result.ManufacturingDate)
	assert.Equal(t, Date(2026, time.January, 15), *result.ManufacturingDate)
	assert.Equal(t, Date(2026, time.September, 15), result.ExpiryDate)
	assert.Equal(t, ConfidenceMedium, result.FieldConfidence.Expiry)
}

func TestExtract_DurationAnchoredAtToday(t *testing.T) {
	e := NewLocalTextExtractor(nil, fixedClock(2026, time.June, 1))

	// No explicit date anywhere: the shelf-life phrase anchors at today and
	// today is recorded as the synthetic manufacturing date.
	result := e.Extract("Fresh Bread\nBest before six days", nil)

	assert.Equal(t, "Bread", result.ProductName)
	assert.Equal(t, CategoryBakery, result.CategoryName)
	require.NotNil(t, result.ManufacturingDate)
	assert.Equal(t, Date(2026, time.June, 1), *result.ManufacturingDate)
	assert.Equal(t, Date(2026, time.June, 7), result.ExpiryDate)
}

func TestExtract_EndOfMonth(t *testing.T) {
	e := NewLocalTextExtractor(nil, fixedClock(2026, time.June, 1))

	result := e.Extract("Guava Juice\nBest before end of Mar 2027", nil)

	assert.Equal(t, "Juice", result.ProductName)
	assert.Equal(t, CategoryBeverages, result.CategoryName)
	assert.Equal(t, Date(2027, time.March, 31), result.ExpiryDate)
}

func TestExtract_YearOnly(t *testing.T) {
	e := NewLocalTextExtractor(nil, fixedClock(2026, time.June, 1))

	result := e.Extract("Basmati Rice 5kg\nEXP 2027", nil)

	assert.Equal(t, "Rice", result.ProductName)
	assert.Equal(t, Date(2027, time.December, 31), result.ExpiryDate)
}

func TestExtract_ShelfLifeFallback(t *testing.T) {
	e := NewLocalTextExtractor(nil, fixedClock(2026, time.June, 1))

	// No dates at all: category shelf life fills in the expiry.
	result := e.Extract("Chicken Breast 500g", nil)

	assert.Equal(t, "Chicken", result.ProductName)
	assert.Equal(t, CategoryMeat, result.CategoryName)
	assert.Equal(t, Date(2026, time.June, 4), result.ExpiryDate)
	assert.Nil(t, result.ManufacturingDate)
	assert.True(t, result.IsLowConfidence)
	assert.True(t, result.NeedsHumanReview)
	assert.Equal(t, ConfidenceLow, result.FieldConfidence.Expiry)
}

func TestExtract_NothingUsable(t *testing.T) {
	e := NewLocalTextExtractor(nil, fixedClock(2026, time.June, 1))

	result := e.Extract("##\n12", nil)

	assert.Equal(t, UnknownProduct, result.ProductName)
	assert.Equal(t, CategoryGeneral, result.CategoryName)
	assert.Equal(t, Date(2026, time.July, 1), result.ExpiryDate)
	assert.True(t, result.IsLowConfidence)
	assert.True(t, result.NeedsHumanReview)
	assert.LessOrEqual(t, result.ConfidenceScore, 25)
}

func TestExtract_ClassifierFillsUnknowns(t *testing.T) {
	clf := &stubClassifier{
		prediction: ClassifierPrediction{ProductName: "Greek Yogurt", CategoryName: CategoryDairy},
		ok:         true,
	}
	e := NewLocalTextExtractor(clf, fixedClock(2026, time.June, 1))

	result := e.Extract("##", []byte{0xFF, 0xD8})

	assert.True(t, clf.called)
	assert.Equal(t, "Greek Yogurt", result.ProductName)
	assert.Equal(t, CategoryDairy, result.CategoryName)
}

func TestExtract_ClassifierNotCalledWithoutImage(t *testing.T) {
	clf := &stubClassifier{ok: true}
	e := NewLocalTextExtractor(clf, fixedClock(2026, time.June, 1))

	e.Extract("Milk", nil)

	assert.False(t, clf.called)
}

func TestExtract_OCRNoiseRepair(t *testing.T) {
	e := NewLocalTextExtractor(nil, fixedClock(2026, time.June, 1))

	// Letter O for zero inside the year still parses after repair.
	result := e.Extract("Milk\nEXP 15/07/2O26", nil)

	assert.Equal(t, Date(2026, time.July, 15), result.ExpiryDate)
}

func TestGuessProductName(t *testing.T) {
	assert.Equal(t, "Milk", GuessProductName("Amul Taaza Milk"))
	assert.Equal(t, "Yogurt", GuessProductName("Greek yoghurt cup"))
	assert.Equal(t, "Organic Honey 250g", GuessProductName("Organic Honey 250g\nNet wt"))
	assert.Equal(t, UnknownProduct, GuessProductName("##\n12"))
}

func TestGuessProductName_TruncatesOnRuneBoundary(t *testing.T) {
	// 30 three-byte runes: a byte-index-80 cut would land mid-rune.
	name := GuessProductName(strings.Repeat("数", 30))

	assert.True(t, utf8.ValidString(name))
	assert.Equal(t, strings.Repeat("数", 26), name)
}

func TestGuessCategory(t *testing.T) {
	assert.Equal(t, CategoryDairy, GuessCategory("fresh paneer"))
	assert.Equal(t, CategoryMeat, GuessCategory("frozen chicken"))
	assert.Equal(t, CategoryGrains, GuessCategory("whole wheat atta"))
	assert.Equal(t, CategoryGeneral, GuessCategory("mystery item"))
}

func TestInferCategoryFromName(t *testing.T) {
	assert.Equal(t, CategoryDairy, InferCategoryFromName("Butter"))
	assert.Equal(t, CategoryVegetables, InferCategoryFromName("Tomato"))
	assert.Equal(t, "", InferCategoryFromName("Mystery Item"))
}
