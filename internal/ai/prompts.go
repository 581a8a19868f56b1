// prompts.go - Prompt construction for the Gemini vision calls

package ai

import (
	"fmt"
	"strings"

	"github.com/freshtrack/expiry_ocr_gemini/internal/processor"
)

// categoryList is the closed category vocabulary the model must pick from.
// Keep in sync with the processor category constants.
const categoryList = "Vegetables, Fruits, Bakery Item, Snacks, Dairy, Meat, Grains, Beverages, Condiments, Frozen, General"

// buildExtractionPrompt is the full structured-extraction prompt used when no
// baseline is available.
func buildExtractionPrompt() string {
	return `Extract and return JSON only:
{
  "productName": "...",
  "detectedItems": [
    {"name": "item1", "category": "Dairy", "expiryDate": "YYYY-MM-DD or null"},
    {"name": "item2", "category": "Fruits", "expiryDate": "YYYY-MM-DD or null"}
  ],
  "categoryName": "...",
  "manufacturingDate": "YYYY-MM-DD or null",
  "expiryDate": "YYYY-MM-DD or null",
  "bestBeforeText": "original best-before text if found, e.g. 'best before 6 months from mfg'",
  "bestBeforeValue": 0,
  "bestBeforeUnit": "days|months|years|null",
  "confidence": "high|medium|low",
  "fieldConfidence": {
    "name": "high|medium|low",
    "expiry": "high|medium|low",
    "category": "high|medium|low"
  }
}
Rules:
- Handle difficult images: blurred text, glare, rotated labels, handwriting. Try reading from all orientations (0, 90, 180, 270 degrees).
- For blurry or low-resolution images: focus on the largest/clearest text first. Expiry/best-before dates are often on a separate label area or printed in a different font/color.
- Look for date stamps, embossed/ink-jet-printed dates, and sticker labels which may differ from the main label text.
- If text is partially readable, extract what you can and lower the field confidence accordingly.
- Prefer visible printed label text from product box/pack.
- If multiple distinct products are visible, you MUST list EACH as a separate object in detectedItems with its OWN name, category, and expiryDate. Do NOT combine multiple products into one entry.
- Each detectedItems entry MUST represent a DISTINCT physical product (different brand, type, or package). Do NOT split a single product's ingredients or label text into multiple items.
- If the same product appears in multiple images, merge into ONE detectedItems entry.
- Each detectedItems entry MUST have a meaningful food product name (not a date, barcode, or label fragment).
- If no readable label text, classify visible food products directly from image appearance.
- When you see multiple loose or unpackaged fruits or vegetables together (e.g., a pile of produce on a table or counter), identify EACH visually distinct type of fruit or vegetable as a separate detectedItems entry with its own name and category. For example, if you see tomatoes, carrots, and spinach together, return 3 separate items: 'Tomato', 'Carrot', 'Spinach'. Do NOT group them as 'Mixed Vegetables' or 'Assorted Produce'.
- For unpackaged produce without labels, set expiryDate to null, confidence to 'low', and fieldConfidence.expiry to 'low'. The system applies category-based shelf-life defaults automatically.
- Ignore background text, shelf labels, and unrelated objects.
- Use category from: ` + categoryList + `.
- If expiry not explicit and text says best before X months/years/days from mfg, fill bestBeforeValue and bestBeforeUnit.
- Copy the original best-before phrasing into bestBeforeText so the parser can handle edge cases.
- confidence: "high" if label text is clearly readable, "medium" if partially readable, "low" if guessing from image.
- fieldConfidence: per-field - "high" if clearly read from label, "medium" if partially readable, "low" if inferred or guessed.`
}

// buildRefinePrompt asks the model to re-examine the images with the local
// pipeline's baseline answer and the raw OCR text attached.
func buildRefinePrompt(rawText string, baseline processor.ScanResult) string {
	var sb strings.Builder
	sb.WriteString("Extract grocery product info from images and OCR text.\n")
	sb.WriteString("Return JSON only with fields:\n")
	sb.WriteString("productName, detectedItems (array of {name, category, expiryDate}), categoryName, manufacturingDate, expiryDate, bestBeforeText, bestBeforeValue, bestBeforeUnit, confidence, fieldConfidence ({name, expiry, category} each high|medium|low)\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Handle difficult images: blurred text, glare, rotated labels, handwriting. Try all orientations (0, 90, 180, 270).\n")
	sb.WriteString("- Look for date stamps, embossed/ink-jet-printed dates, and sticker labels separate from main label text.\n")
	sb.WriteString("- Use categories: " + categoryList + ".\n")
	sb.WriteString("- If there are MULTIPLE distinct products, you MUST list each in detectedItems with its own name, category, and expiryDate.\n")
	sb.WriteString("- Each detectedItems entry MUST be a DISTINCT physical product. Do NOT split ingredients or label fragments into separate items.\n")
	sb.WriteString("- Merge duplicate products across images into ONE entry.\n")
	sb.WriteString("- If there is no clear product label text, detect visible food items and populate detectedItems.\n")
	sb.WriteString("- Dates must be YYYY-MM-DD or null.\n")
	sb.WriteString("- If text says 'best before X months/years/days from manufacture', compute expiryDate from manufacturingDate and also copy the raw phrasing into bestBeforeText.\n")
	sb.WriteString("- confidence is one of: high, medium, low.\n")
	sb.WriteString("- fieldConfidence: per-field - high if clearly read, medium if partially readable, low if inferred or guessed.\n")

	mfg := "null"
	if baseline.ManufacturingDate != nil {
		mfg = baseline.ManufacturingDate.Format("2006-01-02")
	}
	sb.WriteString("Baseline extraction:\n")
	sb.WriteString(fmt.Sprintf("productName=%s, categoryName=%s, manufacturingDate=%s, expiryDate=%s\n",
		baseline.ProductName, baseline.CategoryName, mfg, baseline.ExpiryDate.Format("2006-01-02")))
	sb.WriteString("OCR text:\n")
	sb.WriteString(rawText)
	return sb.String()
}

// buildPureOCRPrompt asks for verbatim label text only.
func buildPureOCRPrompt() string {
	return "Read only the product/package label text from these images. Ignore background. Return plain text lines only."
}

// buildClassifyPrompt asks for a product identification with no date reading.
func buildClassifyPrompt() string {
	return `Look at this image and identify the food product. Return JSON only:
{"productName": "...", "categoryName": "..."}
Use category from: ` + categoryList + `.
If you cannot identify a food product, return {"productName": "Unknown Product", "categoryName": "General"}.`
}
