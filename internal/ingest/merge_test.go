package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshtrack/expiry_ocr_gemini/internal/processor"
)

func clockAt(year int, month time.Month, day int) func() time.Time {
	return func() time.Time {
		return processor.Date(year, month, day)
	}
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := processor.Date(year, month, day)
	return &d
}

func TestMerge_NoVisionResult(t *testing.T) {
	r := NewReconciler(clockAt(2026, time.June, 1))

	local := processor.ScanResult{
		ProductName:     "Milk",
		CategoryName:    processor.CategoryDairy,
		ExpiryDate:      processor.Date(2026, time.May, 1),
		ConfidenceScore: 10,
	}

	merged := r.Merge(nil, local)

	require.NotNil(t, merged.ManufacturingDate)
	assert.Equal(t, processor.Date(2026, time.June, 1), *merged.ManufacturingDate)
	// Past expiry is replaced with the dairy shelf-life fallback.
	assert.Equal(t, processor.Date(2026, time.June, 15), merged.ExpiryDate)
	assert.Equal(t, 14, merged.DaysLeftToExpire)
	assert.Equal(t, 20, merged.ConfidenceScore)
	assert.Equal(t, []string{"Milk"}, merged.ProductCandidates)
	assert.Nil(t, merged.DetectedItems)
}

func TestMerge_NoVisionResultKeepsLocalDates(t *testing.T) {
	r := NewReconciler(clockAt(2026, time.June, 1))

	local := processor.ScanResult{
		ProductName:       "Milk",
		CategoryName:      processor.CategoryDairy,
		ManufacturingDate: datePtr(2026, time.January, 15),
		ExpiryDate:        processor.Date(2026, time.July, 15),
		ConfidenceScore:   70,
	}

	merged := r.Merge(nil, local)

	assert.Equal(t, processor.Date(2026, time.January, 15), *merged.ManufacturingDate)
	assert.Equal(t, processor.Date(2026, time.July, 15), merged.ExpiryDate)
	assert.Equal(t, 70, merged.ConfidenceScore)
}

func TestMerge_LaterExpiryWins(t *testing.T) {
	r := NewReconciler(clockAt(2026, time.June, 1))

	ai := &processor.ScanResult{
		ProductName:  "Cheddar",
		CategoryName: processor.CategoryDairy,
		ExpiryDate:   processor.Date(2026, time.September, 15),
		FieldConfidence: processor.FieldConfidence{
			Name: processor.ConfidenceHigh, Expiry: processor.ConfidenceHigh, Category: processor.ConfidenceHigh,
		},
		ConfidenceScore: 80,
	}
	local := processor.ScanResult{
		ProductName:  "Cheese",
		CategoryName: processor.CategoryDairy,
		ExpiryDate:   processor.Date(2026, time.July, 15),
		FieldConfidence: processor.FieldConfidence{
			Name: processor.ConfidenceHigh, Expiry: processor.ConfidenceMedium, Category: processor.ConfidenceHigh,
		},
		ConfidenceScore: 60,
	}

	merged := r.Merge(ai, local)

	assert.Equal(t, "Cheddar", merged.ProductName)
	assert.Equal(t, processor.Date(2026, time.September, 15), merged.ExpiryDate)
	assert.Equal(t, 80, merged.ConfidenceScore)
	assert.False(t, merged.NeedsHumanReview)
}

func TestMerge_UnknownNameFallsBackToLocal(t *testing.T) {
	r := NewReconciler(clockAt(2026, time.June, 1))

	ai := &processor.ScanResult{
		ProductName:  processor.UnknownProduct,
		CategoryName: processor.CategoryGeneral,
		ExpiryDate:   processor.Date(2026, time.August, 1),
		FieldConfidence: processor.FieldConfidence{
			Name: processor.ConfidenceLow, Expiry: processor.ConfidenceHigh, Category: processor.ConfidenceLow,
		},
		ConfidenceScore: 40,
	}
	local := processor.ScanResult{
		ProductName:  "Bread",
		CategoryName: processor.CategoryBakery,
		ExpiryDate:   processor.Date(2026, time.June, 10),
		FieldConfidence: processor.FieldConfidence{
			Name: processor.ConfidenceHigh, Expiry: processor.ConfidenceMedium, Category: processor.ConfidenceHigh,
		},
		ConfidenceScore: 55,
	}

	merged := r.Merge(ai, local)

	assert.Equal(t, "Bread", merged.ProductName)
	assert.Equal(t, processor.CategoryBakery, merged.CategoryName)
	assert.Equal(t, processor.Date(2026, time.August, 1), merged.ExpiryDate)
	assert.Equal(t, 55, merged.ConfidenceScore)
}

func TestMerge_BothExpiriesLowRecomputesFallback(t *testing.T) {
	r := NewReconciler(clockAt(2026, time.June, 1))

	// Both sources only guessed at the expiry, so the guesses are discarded
	// in favor of the merged category's shelf life.
	ai := &processor.ScanResult{
		ProductName:  "Chicken",
		CategoryName: processor.CategoryMeat,
		ExpiryDate:   processor.Date(2026, time.December, 1),
		FieldConfidence: processor.FieldConfidence{
			Name: processor.ConfidenceHigh, Expiry: processor.ConfidenceLow, Category: processor.ConfidenceHigh,
		},
		ConfidenceScore: 45,
	}
	local := processor.ScanResult{
		ProductName:  "Chicken",
		CategoryName: processor.CategoryMeat,
		ExpiryDate:   processor.Date(2026, time.July, 1),
		FieldConfidence: processor.FieldConfidence{
			Name: processor.ConfidenceHigh, Expiry: processor.ConfidenceLow, Category: processor.ConfidenceHigh,
		},
		ConfidenceScore: 30,
	}

	merged := r.Merge(ai, local)

	assert.Equal(t, processor.Date(2026, time.June, 4), merged.ExpiryDate)
	assert.Equal(t, 3, merged.DaysLeftToExpire)
	assert.True(t, merged.NeedsHumanReview)
}

func TestMerge_ManufacturingDatePreference(t *testing.T) {
	r := NewReconciler(clockAt(2026, time.June, 1))

	base := processor.ScanResult{
		ProductName:  "Milk",
		CategoryName: processor.CategoryDairy,
		ExpiryDate:   processor.Date(2026, time.July, 1),
		FieldConfidence: processor.FieldConfidence{
			Name: processor.ConfidenceHigh, Expiry: processor.ConfidenceHigh, Category: processor.ConfidenceHigh,
		},
		ConfidenceScore: 70,
	}

	t.Run("vision date wins", func(t *testing.T) {
		ai := base
		ai.ManufacturingDate = datePtr(2026, time.January, 10)
		local := base
		local.ManufacturingDate = datePtr(2026, time.February, 20)

		merged := r.Merge(&ai, local)
		assert.Equal(t, processor.Date(2026, time.January, 10), *merged.ManufacturingDate)
	})

	t.Run("local date fills gap", func(t *testing.T) {
		ai := base
		local := base
		local.ManufacturingDate = datePtr(2026, time.February, 20)

		merged := r.Merge(&ai, local)
		assert.Equal(t, processor.Date(2026, time.February, 20), *merged.ManufacturingDate)
	})

	t.Run("today fills both gaps", func(t *testing.T) {
		ai := base
		local := base

		merged := r.Merge(&ai, local)
		assert.Equal(t, processor.Date(2026, time.June, 1), *merged.ManufacturingDate)
	})
}

func TestMerge_FieldConfidenceHigherRank(t *testing.T) {
	r := NewReconciler(clockAt(2026, time.June, 1))

	ai := &processor.ScanResult{
		ProductName:  "Milk",
		CategoryName: processor.CategoryDairy,
		ExpiryDate:   processor.Date(2026, time.July, 1),
		FieldConfidence: processor.FieldConfidence{
			Name: processor.ConfidenceHigh, Expiry: processor.ConfidenceLow, Category: processor.ConfidenceMedium,
		},
		ConfidenceScore: 60,
	}
	local := processor.ScanResult{
		ProductName:  "Milk",
		CategoryName: processor.CategoryDairy,
		ExpiryDate:   processor.Date(2026, time.July, 1),
		FieldConfidence: processor.FieldConfidence{
			Name: processor.ConfidenceLow, Expiry: processor.ConfidenceHigh, Category: processor.ConfidenceLow,
		},
		ConfidenceScore: 50,
	}

	merged := r.Merge(ai, local)

	assert.Equal(t, processor.ConfidenceHigh, merged.FieldConfidence.Name)
	assert.Equal(t, processor.ConfidenceHigh, merged.FieldConfidence.Expiry)
	assert.Equal(t, processor.ConfidenceMedium, merged.FieldConfidence.Category)
}

func TestMerge_VisionDetectedItemsPreferred(t *testing.T) {
	r := NewReconciler(clockAt(2026, time.June, 1))

	items := []processor.DetectedItem{
		{ProductName: "Milk", CategoryName: processor.CategoryDairy, ExpiryDate: processor.Date(2026, time.June, 15)},
		{ProductName: "Bread", CategoryName: processor.CategoryBakery, ExpiryDate: processor.Date(2026, time.June, 6)},
	}
	ai := &processor.ScanResult{
		ProductName:   "Milk",
		CategoryName:  processor.CategoryDairy,
		ExpiryDate:    processor.Date(2026, time.June, 15),
		DetectedItems: items,
		FieldConfidence: processor.FieldConfidence{
			Name: processor.ConfidenceHigh, Expiry: processor.ConfidenceHigh, Category: processor.ConfidenceHigh,
		},
		ConfidenceScore: 75,
	}

	merged := r.Merge(ai, processor.ScanResult{ProductName: processor.UnknownProduct, CategoryName: processor.CategoryGeneral})

	assert.Equal(t, items, merged.DetectedItems)
}

func TestMerge_SynthesizedPerItemDetails(t *testing.T) {
	r := NewReconciler(clockAt(2026, time.June, 1))

	local := processor.ScanResult{
		ProductName:       "Milk",
		CategoryName:      processor.CategoryDairy,
		ExpiryDate:        processor.Date(2026, time.July, 15),
		ProductCandidates: []string{"Bread"},
		ConfidenceScore:   60,
	}

	merged := r.Merge(nil, local)

	require.Len(t, merged.DetectedItems, 2)

	primary := merged.DetectedItems[0]
	assert.Equal(t, "Milk", primary.ProductName)
	assert.Equal(t, processor.CategoryDairy, primary.CategoryName)
	assert.Equal(t, processor.Date(2026, time.July, 15), primary.ExpiryDate)
	assert.False(t, primary.NeedsHumanReview)

	secondary := merged.DetectedItems[1]
	assert.Equal(t, "Bread", secondary.ProductName)
	assert.Equal(t, processor.CategoryBakery, secondary.CategoryName)
	// Non-primary items get their own category shelf-life fallback.
	assert.Equal(t, processor.Date(2026, time.June, 6), secondary.ExpiryDate)
	assert.True(t, secondary.NeedsHumanReview)
}

func TestBuildCandidates(t *testing.T) {
	tests := []struct {
		name        string
		productName string
		lists       [][]string
		want        []string
	}{
		{
			name:        "dedupes case insensitively",
			productName: "Milk",
			lists:       [][]string{{"milk", "MILK", "Bread"}},
			want:        []string{"Milk", "Bread"},
		},
		{
			name:        "skips unknown product name",
			productName: "Unknown Product",
			lists:       [][]string{{"Bread"}},
			want:        []string{"Bread"},
		},
		{
			name:        "trims and drops blanks and one-char entries",
			productName: "  Milk  ",
			lists:       [][]string{{"", "  ", "X", "Bread"}},
			want:        []string{"Milk", "Bread"},
		},
		{
			name:        "drops over-long entries",
			productName: "Milk",
			lists:       [][]string{{strings.Repeat("x", 61)}},
			want:        []string{"Milk"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildCandidates(tt.productName, tt.lists...))
		})
	}
}

func TestBuildCandidates_Cap(t *testing.T) {
	long := make([]string, 20)
	for i := range long {
		long[i] = "Product " + string(rune('A'+i))
	}
	got := BuildCandidates("Milk", long)
	assert.Len(t, got, maxCandidates)
}

func TestEnsureFutureExpiry(t *testing.T) {
	r := NewReconciler(clockAt(2026, time.June, 1))

	t.Run("future expiry kept", func(t *testing.T) {
		got := r.EnsureFutureExpiry(processor.Date(2026, time.July, 1), processor.CategoryDairy, "Milk")
		assert.Equal(t, processor.Date(2026, time.July, 1), got)
	})

	t.Run("zero expiry replaced", func(t *testing.T) {
		got := r.EnsureFutureExpiry(time.Time{}, processor.CategoryDairy, "Milk")
		assert.Equal(t, processor.Date(2026, time.June, 15), got)
	})

	t.Run("today is not future", func(t *testing.T) {
		got := r.EnsureFutureExpiry(processor.Date(2026, time.June, 1), processor.CategoryMeat, "Chicken")
		assert.Equal(t, processor.Date(2026, time.June, 4), got)
	})
}

func TestSelectBestExpiry(t *testing.T) {
	earlier := processor.Date(2026, time.July, 1)
	later := processor.Date(2026, time.September, 1)

	assert.Equal(t, later, selectBestExpiry(earlier, later))
	assert.Equal(t, later, selectBestExpiry(later, earlier))
	assert.Equal(t, earlier, selectBestExpiry(time.Time{}, earlier))
	assert.Equal(t, earlier, selectBestExpiry(earlier, time.Time{}))
	assert.True(t, selectBestExpiry(time.Time{}, time.Time{}).IsZero())
}
