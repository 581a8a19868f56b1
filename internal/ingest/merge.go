package ingest

import (
	"strings"
	"time"

	"github.com/freshtrack/expiry_ocr_gemini/internal/processor"
)

const maxCandidates = 12

// Reconciler merges the vision extraction and the local text extraction into
// a single result. Where the two disagree it keeps the stronger signal per
// field and guarantees the final expiry is in the future.
type Reconciler struct {
	shelfLives *processor.ShelfLifeTable
	now        func() time.Time
}

func NewReconciler(now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		shelfLives: processor.NewShelfLifeTable(now),
		now:        now,
	}
}

func (r *Reconciler) today() time.Time {
	return processor.ToDate(r.now())
}

// Merge combines a vision result (may be nil when the provider is disabled or
// returned nothing usable) with the local regex-based parse.
func (r *Reconciler) Merge(ai *processor.ScanResult, local processor.ScanResult) processor.ScanResult {
	today := r.today()

	if ai == nil {
		mfg := local.ManufacturingDate
		if mfg == nil {
			t := today
			mfg = &t
		}
		expiry := r.EnsureFutureExpiry(local.ExpiryDate, local.CategoryName, local.ProductName)
		score := local.ConfidenceScore
		if score < 20 {
			score = 20
		}
		merged := local
		merged.ManufacturingDate = mfg
		merged.ExpiryDate = expiry
		merged.DaysLeftToExpire = processor.DaysBetween(today, expiry)
		merged.ProductCandidates = BuildCandidates(local.ProductName, local.ProductCandidates)
		merged.ConfidenceScore = score
		merged.DetectedItems = r.buildPerItemDetails(merged)
		return merged
	}

	productName := ai.ProductName
	if productName == processor.UnknownProduct {
		productName = local.ProductName
	}
	categoryName := ai.CategoryName
	if categoryName == processor.CategoryGeneral {
		categoryName = local.CategoryName
	}

	mfg := ai.ManufacturingDate
	if mfg == nil {
		mfg = local.ManufacturingDate
	}
	if mfg == nil {
		t := today
		mfg = &t
	}

	expiry := selectBestExpiry(ai.ExpiryDate, local.ExpiryDate)

	// When both sources fell back on a guess for the expiry, recompute it
	// from the merged category and name instead of trusting either guess.
	if ai.FieldConfidence.Expiry == processor.ConfidenceLow && local.FieldConfidence.Expiry == processor.ConfidenceLow {
		expiry = r.shelfLives.FallbackExpiry(categoryName, productName)
	}
	expiry = r.EnsureFutureExpiry(expiry, categoryName, productName)

	fieldConf := mergeFieldConfidence(ai.FieldConfidence, local.FieldConfidence)
	score := ai.ConfidenceScore
	if local.ConfidenceScore > score {
		score = local.ConfidenceScore
	}
	needsReview := (ai.NeedsHumanReview && local.NeedsHumanReview) ||
		fieldConf.Name == processor.ConfidenceLow ||
		fieldConf.Expiry == processor.ConfidenceLow ||
		score < 50

	merged := processor.ScanResult{
		ProductName:       productName,
		ManufacturingDate: mfg,
		ExpiryDate:        expiry,
		DaysLeftToExpire:  processor.DaysBetween(today, expiry),
		CategoryName:      categoryName,
		IsLowConfidence:   ai.IsLowConfidence && local.IsLowConfidence,
		ProductCandidates: BuildCandidates(productName, ai.ProductCandidates, local.ProductCandidates),
		ConfidenceScore:   score,
		FieldConfidence:   fieldConf,
		NeedsHumanReview:  needsReview,
	}

	// Prefer the vision model's per-item breakdown; synthesize one from the
	// merged candidates only when the model did not supply it.
	if len(ai.DetectedItems) > 0 {
		merged.DetectedItems = ai.DetectedItems
	} else {
		merged.DetectedItems = r.buildPerItemDetails(merged)
	}
	return merged
}

// EnsureFutureExpiry replaces a missing or already-passed expiry with the
// shelf-life fallback for the category and product.
func (r *Reconciler) EnsureFutureExpiry(expiry time.Time, categoryName, productName string) time.Time {
	if expiry.IsZero() || !expiry.After(r.today()) {
		return r.shelfLives.FallbackExpiry(categoryName, productName)
	}
	return expiry
}

// selectBestExpiry prefers the later of two dates when both sources found
// one, so a wrong early read never shortens a product's life.
func selectBestExpiry(aiExpiry, localExpiry time.Time) time.Time {
	if aiExpiry.IsZero() {
		return localExpiry
	}
	if localExpiry.IsZero() {
		return aiExpiry
	}
	if aiExpiry.After(localExpiry) {
		return aiExpiry
	}
	return localExpiry
}

func mergeFieldConfidence(a, b processor.FieldConfidence) processor.FieldConfidence {
	if a.IsZero() {
		return b
	}
	if b.IsZero() {
		return a
	}
	return processor.FieldConfidence{
		Name:     processor.HigherConfidence(a.Name, b.Name),
		Expiry:   processor.HigherConfidence(a.Expiry, b.Expiry),
		Category: processor.HigherConfidence(a.Category, b.Category),
	}
}

// BuildCandidates unions the product name with every candidate list,
// deduplicating case-insensitively and dropping blank or outlandish entries.
func BuildCandidates(productName string, candidateLists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || len(s) < 2 || len(s) > 60 {
			return
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}

	if !strings.EqualFold(strings.TrimSpace(productName), processor.UnknownProduct) {
		add(productName)
	}
	for _, list := range candidateLists {
		for _, item := range list {
			add(item)
		}
	}

	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

// buildPerItemDetails turns the candidate list into one entry per product so
// multi-item labels can be added as separate inventory rows. The primary
// product keeps the merged expiry; the rest get their own category fallback.
func (r *Reconciler) buildPerItemDetails(combined processor.ScanResult) []processor.DetectedItem {
	if len(combined.ProductCandidates) < 2 {
		return nil
	}

	today := r.today()
	items := make([]processor.DetectedItem, 0, len(combined.ProductCandidates))
	for _, name := range combined.ProductCandidates {
		category := processor.InferCategoryFromName(name)
		if category == "" {
			category = combined.CategoryName
		}
		isPrimary := strings.EqualFold(name, combined.ProductName)
		expiry := combined.ExpiryDate
		if !isPrimary {
			expiry = r.shelfLives.FallbackExpiry(category, name)
		}
		items = append(items, processor.DetectedItem{
			ProductName:      name,
			CategoryName:     category,
			ExpiryDate:       expiry,
			DaysLeftToExpire: processor.DaysBetween(today, expiry),
			ConfidenceScore:  combined.ConfidenceScore,
			NeedsHumanReview: !isPrimary || combined.NeedsHumanReview,
		})
	}
	return items
}
