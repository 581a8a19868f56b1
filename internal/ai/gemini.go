// gemini.go - Gemini vision provider: structured field extraction, baseline
// refinement, pure-OCR fallback, and image classification.

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/freshtrack/expiry_ocr_gemini/configs"
	"github.com/freshtrack/expiry_ocr_gemini/internal/common"
	"github.com/freshtrack/expiry_ocr_gemini/internal/processor"
	"github.com/freshtrack/expiry_ocr_gemini/internal/ratelimit"
	"github.com/google/generative-ai-go/genai"
	"golang.org/x/sync/semaphore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// At most this many photos go to the model per call; more adds cost without
// improving extraction.
const maxImagesPerCall = 4

// Model fallback order when GEMINI_MODEL is unset or unavailable.
var defaultModels = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-1.5-flash",
}

// GeminiVision talks to the Gemini API. It implements VisionProvider and
// TextSource, and exposes a classifier hook for the local pipeline.
type GeminiVision struct {
	apiKey         string
	enabled        bool
	preferredModel string
	timeout        time.Duration
	sem            *semaphore.Weighted
	limiter        *ratelimit.RateLimiter
	retry          RetryConfig
	modelCache     *modelListCache

	dates      *processor.DateParser
	durations  *processor.DurationResolver
	shelfLives *processor.ShelfLifeTable
	now        func() time.Time
}

// NewGeminiVision builds the provider from the loaded configuration. A nil
// clock means time.Now.
func NewGeminiVision(now func() time.Time) *GeminiVision {
	if now == nil {
		now = time.Now
	}

	maxConcurrent := configs.GEMINI_MAX_CONCURRENT
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	timeout := time.Duration(configs.GEMINI_TIMEOUT) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	rpm := configs.GEMINI_RPM
	if rpm <= 0 {
		rpm = 12
	}

	return &GeminiVision{
		apiKey:         configs.GEMINI_API_KEY,
		enabled:        configs.GEMINI_ENABLED,
		preferredModel: configs.GEMINI_MODEL,
		timeout:        timeout,
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
		limiter:        ratelimit.NewRateLimiter(rpm, time.Minute/time.Duration(rpm)),
		retry:          DefaultRetryConfig,
		modelCache:     newModelListCache(30 * time.Minute),
		dates:          processor.NewDateParser(now),
		durations:      processor.NewDurationResolver(),
		shelfLives:     processor.NewShelfLifeTable(now),
		now:            now,
	}
}

// Enabled reports whether the provider is configured for use.
func (g *GeminiVision) Enabled() bool {
	return g.enabled && g.apiKey != ""
}

// ProviderName returns the provider identifier.
func (g *GeminiVision) ProviderName() string {
	return "gemini"
}

// ExtractFields runs the full structured extraction. Failures here are real
// errors: this is the primary extraction path and the caller decides how to
// degrade.
func (g *GeminiVision) ExtractFields(ctx context.Context, images []LabelImage, ocrText string, reqCtx *common.RequestContext) (*processor.ScanResult, error) {
	if !g.Enabled() || len(images) == 0 {
		return nil, nil
	}

	prompt := buildExtractionPrompt()
	if strings.TrimSpace(ocrText) != "" {
		prompt += "\nOCR text from the same images (may contain recognition noise):\n" + ocrText
	}

	text, err := g.generate(ctx, prompt, images, true, reqCtx)
	if err != nil {
		return nil, err
	}

	resp, err := parseVisionResponse(text)
	if err != nil {
		reqCtx.LogWarning("Unparseable extraction response: %v", err)
		return nil, nil
	}

	result := g.mapExtraction(resp)
	return &result, nil
}

// Refine re-runs extraction with the local baseline attached. Works from
// images, from raw text alone (the prompt embeds the text), or both.
// Anything short of provider misconfiguration degrades to Absent; the merge
// continues with the baseline alone.
func (g *GeminiVision) Refine(ctx context.Context, baseline processor.ScanResult, images []LabelImage, ocrText string, reqCtx *common.RequestContext) RefineOutcome {
	if !g.Enabled() {
		return Absent()
	}
	if len(images) == 0 && strings.TrimSpace(ocrText) == "" {
		return Absent()
	}

	text, err := g.generate(ctx, buildRefinePrompt(ocrText, baseline), images, true, reqCtx)
	if err != nil {
		var gerr *GeminiError
		if errors.As(err, &gerr) && gerr.IsConfigError() {
			return Fatal(err)
		}
		reqCtx.LogWarning("Refinement unavailable: %v", err)
		return Absent()
	}

	resp, err := parseVisionResponse(text)
	if err != nil {
		reqCtx.LogWarning("Unparseable refinement response: %v", err)
		return Absent()
	}

	result := g.mapRefinement(resp, baseline)
	return Ok(&result)
}

// ExtractText is the pure-OCR fallback: read the label text verbatim. Image
// scans cannot proceed without a text source, so a disabled provider is a
// configuration error here, not an empty result.
func (g *GeminiVision) ExtractText(ctx context.Context, image LabelImage, reqCtx *common.RequestContext) (string, error) {
	if !g.Enabled() {
		return "", NewConfigError("gemini text extraction requires GEMINI_ENABLED and GEMINI_API_KEY")
	}

	text, err := g.generate(ctx, buildPureOCRPrompt(), []LabelImage{image}, false, reqCtx)
	if err != nil {
		var gerr *GeminiError
		if errors.As(err, &gerr) && gerr.IsConfigError() {
			return "", err
		}
		reqCtx.LogWarning("Text extraction unavailable: %v", err)
		return "", nil
	}
	return strings.TrimSpace(text), nil
}

// ClassifyProductImage identifies a food product from appearance alone, for
// labels with no readable text. Never errors; returns false when there is no
// confident answer.
func (g *GeminiVision) ClassifyProductImage(ctx context.Context, image LabelImage, reqCtx *common.RequestContext) (processor.ClassifierPrediction, bool) {
	if !g.Enabled() || len(image.Data) == 0 {
		return processor.ClassifierPrediction{}, false
	}

	text, err := g.generate(ctx, buildClassifyPrompt(), []LabelImage{image}, true, reqCtx)
	if err != nil {
		reqCtx.LogWarning("Classification unavailable: %v", err)
		return processor.ClassifierPrediction{}, false
	}

	resp, err := parseVisionResponse(text)
	if err != nil {
		return processor.ClassifierPrediction{}, false
	}

	name := strings.TrimSpace(resp.ProductName)
	if name == "" || name == processor.UnknownProduct {
		return processor.ClassifierPrediction{}, false
	}

	category := strings.TrimSpace(resp.CategoryName)
	if category == "" {
		category = processor.CategoryGeneral
	}
	return processor.ClassifierPrediction{ProductName: name, CategoryName: category}, true
}

// generate performs a throttled, model-fallback generation call and returns
// the concatenated text parts of the first candidate.
func (g *GeminiVision) generate(ctx context.Context, prompt string, images []LabelImage, jsonOutput bool, reqCtx *common.RequestContext) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for gemini slot: %w", err)
	}
	defer g.sem.Release(1)

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for gemini rate limit: %w", err)
	}

	reqCtx.StartSubStep("init_gemini_client")
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()
	reqCtx.EndSubStep("")

	parts := make([]genai.Part, 0, 1+maxImagesPerCall)
	parts = append(parts, genai.Text(prompt))
	for i, img := range images {
		if i >= maxImagesPerCall {
			break
		}
		mime := img.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.Blob{MIMEType: mime, Data: img.Data})
	}

	var lastErr error
	for _, name := range g.candidateModels(ctx, client, reqCtx) {
		reqCtx.StartSubStep("call_gemini_api")
		model := client.GenerativeModel(name)
		model.GenerationConfig = genai.GenerationConfig{
			MaxOutputTokens: ptr(int32(8192)),
			Temperature:     ptr(float32(0.1)),
		}
		if jsonOutput {
			model.ResponseMIMEType = "application/json"
		}

		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := callGeminiWithRetry(attemptCtx, model, parts, reqCtx, g.retry)
		cancel()

		if err == nil {
			text := responseText(resp)
			if text != "" {
				reqCtx.EndSubStep(fmt.Sprintf("model=%s", name))
				return text, nil
			}
			err = fmt.Errorf("model %s returned no text parts", name)
		}
		reqCtx.EndSubStep("failed")

		lastErr = err
		var gerr *GeminiError
		if errors.As(err, &gerr) && gerr.IsConfigError() && gerr.Category != "not_found" {
			// Bad key or permissions fail for every model the same way
			return "", err
		}
		reqCtx.LogWarning("Model %s failed, trying next: %v", name, err)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate models available")
	}
	return "", fmt.Errorf("all gemini models failed: %w", lastErr)
}

// candidateModels builds the ordered, deduplicated model list: the preferred
// model, the static fallbacks, then discovered flash models.
func (g *GeminiVision) candidateModels(ctx context.Context, client *genai.Client, reqCtx *common.RequestContext) []string {
	var models []string
	if strings.TrimSpace(g.preferredModel) != "" {
		models = append(models, strings.TrimSpace(g.preferredModel))
	}
	models = append(models, defaultModels...)
	models = append(models, g.discoverModels(ctx, client, reqCtx)...)

	seen := map[string]bool{}
	var out []string
	for _, m := range models {
		m = normalizeModelName(m)
		key := strings.ToLower(m)
		if m == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

// discoverModels lists flash models supporting generateContent, through the
// TTL cache. Discovery failures just mean the static fallbacks are used.
func (g *GeminiVision) discoverModels(ctx context.Context, client *genai.Client, reqCtx *common.RequestContext) []string {
	return g.modelCache.getOrLoad(ctx, func(ctx context.Context) []string {
		reqCtx.StartSubStep("discover_models")
		defer reqCtx.EndSubStep("")

		var discovered []string
		it := client.ListModels(ctx)
		for {
			m, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				reqCtx.LogWarning("Model discovery failed: %v", err)
				return discovered
			}

			supported := false
			for _, method := range m.SupportedGenerationMethods {
				if strings.EqualFold(method, "generateContent") {
					supported = true
					break
				}
			}
			if !supported {
				continue
			}

			name := normalizeModelName(m.Name)
			if strings.Contains(strings.ToLower(name), "flash") {
				discovered = append(discovered, name)
			}
		}
		return discovered
	})
}

func normalizeModelName(model string) string {
	return strings.TrimPrefix(strings.TrimSpace(model), "models/")
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String())
}

// mapExtraction converts a parsed model payload into a ScanResult, filling
// gaps with the same duration and shelf-life machinery the local path uses.
func (g *GeminiVision) mapExtraction(resp *visionResponse) processor.ScanResult {
	today := processor.ToDate(g.now())
	names := normalizeDetectedItemNames(resp.DetectedItems, resp.ProductName)

	productName := strings.TrimSpace(resp.ProductName)
	if productName == "" {
		productName = processor.UnknownProduct
	}
	if productName == processor.UnknownProduct && len(names) > 0 {
		productName = names[0]
	}

	category := strings.TrimSpace(resp.CategoryName)
	if category == "" {
		category = processor.CategoryGeneral
	}
	if category == processor.CategoryGeneral && len(names) > 0 {
		category = inferCategoryFromItems(names)
	}

	mfgDate := g.dates.Parse(resp.ManufacturingDate)
	expiryParsed := g.dates.Parse(resp.ExpiryDate)

	// Structured bestBeforeValue/Unit first, then the raw phrasing
	if expiryParsed == nil {
		expiryParsed = g.structuredBestBefore(resp, mfgDate, today)
	}
	if expiryParsed == nil && strings.TrimSpace(resp.BestBeforeText) != "" {
		expiryParsed = g.bestBeforeFromText(resp.BestBeforeText, mfgDate, today)
	}

	var expiry time.Time
	if expiryParsed != nil {
		expiry = *expiryParsed
	} else {
		expiry = g.shelfLives.FallbackExpiry(category, productName)
	}

	score, fc, needsReview := scoreVisionConfidence(
		resp.Confidence, resp.FieldConfidence, expiryParsed != nil, productName != processor.UnknownProduct, len(names))

	return processor.ScanResult{
		ProductName:       productName,
		ManufacturingDate: mfgDate,
		ExpiryDate:        expiry,
		DaysLeftToExpire:  processor.DaysBetween(today, expiry),
		CategoryName:      category,
		IsLowConfidence:   strings.EqualFold(resp.Confidence, processor.ConfidenceLow) || expiryParsed == nil,
		ProductCandidates: names,
		ConfidenceScore:   score,
		FieldConfidence:   fc,
		NeedsHumanReview:  needsReview,
		DetectedItems:     g.perItemDetails(resp, today),
	}
}

// mapRefinement converts a refine payload, falling back to the baseline for
// every field the model left empty.
func (g *GeminiVision) mapRefinement(resp *visionResponse, baseline processor.ScanResult) processor.ScanResult {
	today := processor.ToDate(g.now())
	names := normalizeDetectedItemNames(resp.DetectedItems, resp.ProductName)

	productName := strings.TrimSpace(resp.ProductName)
	if productName == "" {
		productName = baseline.ProductName
	}
	if productName == "" || productName == processor.UnknownProduct {
		if len(names) > 0 {
			productName = names[0]
		}
	}

	category := strings.TrimSpace(resp.CategoryName)
	if category == "" {
		category = baseline.CategoryName
	}
	if (category == "" || category == processor.CategoryGeneral) && len(names) > 0 {
		category = inferCategoryFromItems(names)
	}

	mfgDate := g.dates.Parse(resp.ManufacturingDate)
	if mfgDate == nil {
		mfgDate = baseline.ManufacturingDate
	}

	expiry := baseline.ExpiryDate
	if d := g.dates.Parse(resp.ExpiryDate); d != nil {
		expiry = *d
	}

	score, fc, needsReview := scoreVisionConfidence(
		resp.Confidence, resp.FieldConfidence, true, productName != processor.UnknownProduct, len(names))

	return processor.ScanResult{
		ProductName:       productName,
		ManufacturingDate: mfgDate,
		ExpiryDate:        expiry,
		DaysLeftToExpire:  processor.DaysBetween(today, expiry),
		CategoryName:      category,
		IsLowConfidence:   strings.EqualFold(resp.Confidence, processor.ConfidenceLow) || (productName == processor.UnknownProduct && category == processor.CategoryGeneral),
		ProductCandidates: mergeCandidates(baseline.ProductCandidates, names),
		ConfidenceScore:   score,
		FieldConfidence:   fc,
		NeedsHumanReview:  needsReview,
		DetectedItems:     g.perItemDetails(resp, today),
	}
}

// structuredBestBefore applies the model's bestBeforeValue/bestBeforeUnit
// pair, anchored at the manufacturing date or today.
func (g *GeminiVision) structuredBestBefore(resp *visionResponse, mfgDate *time.Time, today time.Time) *time.Time {
	if !resp.BestBeforeValue.Set || resp.BestBeforeValue.Value <= 0 {
		return nil
	}
	unit := strings.ToLower(strings.TrimSpace(resp.BestBeforeUnit))
	if unit == "" {
		return nil
	}

	anchor := today
	if mfgDate != nil {
		anchor = *mfgDate
	}

	value := resp.BestBeforeValue.Value
	var d time.Time
	switch unit {
	case "day", "days":
		d = anchor.AddDate(0, 0, value)
	case "week", "weeks":
		d = anchor.AddDate(0, 0, value*7)
	case "month", "months":
		d = processor.AddMonths(anchor, value)
	case "year", "years", "yr", "yrs":
		d = processor.AddYears(anchor, value)
	case "hrs", "hours":
		days := value / 24
		if days < 1 {
			days = 1
		}
		d = anchor.AddDate(0, 0, days)
	default:
		return nil
	}
	return &d
}

// bestBeforeFromText parses the raw phrasing the model copied from the
// label, handling the end-of-month form first.
func (g *GeminiVision) bestBeforeFromText(text string, mfgDate *time.Time, today time.Time) *time.Time {
	anchor := today
	if mfgDate != nil {
		anchor = *mfgDate
	}

	if d := g.durations.ResolveEndOfMonth(text); d != nil {
		return d
	}
	if d := g.durations.ResolveFrom(text, anchor); d != nil {
		return d
	}
	return g.durations.ResolveBare(text, anchor)
}

// perItemDetails converts the model's detectedItems entries, skipping junk
// names and filling missing expiries from the shelf-life table.
func (g *GeminiVision) perItemDetails(resp *visionResponse, today time.Time) []processor.DetectedItem {
	if len(resp.DetectedItems) == 0 {
		return nil
	}

	var items []processor.DetectedItem
	for _, item := range resp.DetectedItems {
		name := strings.TrimSpace(item.Name)
		if len(name) < 2 {
			continue
		}

		category := strings.TrimSpace(item.Category)
		if category == "" {
			category = processor.CategoryGeneral
		}

		expiryParsed := g.dates.Parse(item.ExpiryDate)
		var expiry time.Time
		if expiryParsed != nil {
			expiry = *expiryParsed
		} else {
			expiry = g.shelfLives.FallbackExpiry(category, name)
		}

		items = append(items, processor.DetectedItem{
			ProductName:      name,
			CategoryName:     category,
			ExpiryDate:       expiry,
			DaysLeftToExpire: processor.DaysBetween(today, expiry),
			ConfidenceScore:  50,
			NeedsHumanReview: expiryParsed == nil,
		})
	}
	return items
}

func ptr[T any](v T) *T {
	return &v
}
