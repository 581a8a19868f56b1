// response.go - Parsing and scoring of the model's JSON output. The model
// output is treated as hostile input: fenced, truncated, or loosely typed
// payloads must never crash the pipeline.

package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/freshtrack/expiry_ocr_gemini/internal/processor"
)

const maxCandidates = 12

// FlexibleInt unmarshals from a JSON number or a numeric string. Models
// sometimes quote bestBeforeValue.
type FlexibleInt struct {
	Value int
	Set   bool
}

func (fi *FlexibleInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		return nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Tolerate junk rather than failing the whole payload
		return nil
	}
	fi.Value = int(n)
	fi.Set = true
	return nil
}

// visionResponse mirrors the JSON contract in the extraction prompts.
type visionResponse struct {
	ProductName       string                `json:"productName"`
	DetectedItems     []visionDetectedItem  `json:"detectedItems"`
	CategoryName      string                `json:"categoryName"`
	ManufacturingDate string                `json:"manufacturingDate"`
	ExpiryDate        string                `json:"expiryDate"`
	BestBeforeText    string                `json:"bestBeforeText"`
	BestBeforeValue   FlexibleInt           `json:"bestBeforeValue"`
	BestBeforeUnit    string                `json:"bestBeforeUnit"`
	Confidence        string                `json:"confidence"`
	FieldConfidence   *visionFieldConfWire  `json:"fieldConfidence"`
}

type visionDetectedItem struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	ExpiryDate string `json:"expiryDate"`
}

type visionFieldConfWire struct {
	Name     string `json:"name"`
	Expiry   string `json:"expiry"`
	Category string `json:"category"`
}

// stripJSONFences extracts the JSON object from a possibly fenced response
// ("```json ... ```" or leading prose).
func stripJSONFences(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") || !strings.HasPrefix(t, "{") {
		start := strings.Index(t, "{")
		end := strings.LastIndex(t, "}")
		if start >= 0 && end > start {
			return t[start : end+1]
		}
	}
	return t
}

// parseVisionResponse decodes the model text into a visionResponse.
func parseVisionResponse(text string) (*visionResponse, error) {
	payload := stripJSONFences(text)
	if payload == "" {
		return nil, fmt.Errorf("empty model response")
	}

	var resp visionResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return &resp, nil
}

// blockedCandidatePattern rejects label fragments masquerading as product
// names.
var blockedCandidatePattern = regexp.MustCompile(`(?i)(unknown product|best before|exp|expiry|mfg|date)`)

// normalizeDetectedItemNames builds the candidate-name list: item names plus
// the headline product name, split on commas and slashes, filtered, with
// near-duplicate longer names dropped in favor of the shorter canonical one.
func normalizeDetectedItemNames(items []visionDetectedItem, productName string) []string {
	seen := map[string]bool{}
	var list []string

	add := func(value string) {
		for _, raw := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '/' }) {
			candidate := strings.TrimSpace(raw)
			if len(candidate) < 2 || len(candidate) > 60 {
				continue
			}
			if blockedCandidatePattern.MatchString(candidate) {
				continue
			}
			key := strings.ToLower(candidate)
			if !seen[key] {
				seen[key] = true
				list = append(list, candidate)
			}
		}
	}

	for _, item := range items {
		add(item.Name)
	}
	add(productName)

	// Drop the longer of any substring pair
	remove := map[string]bool{}
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			a, b := strings.ToLower(list[i]), strings.ToLower(list[j])
			if strings.Contains(a, b) {
				remove[a] = true
			} else if strings.Contains(b, a) {
				remove[b] = true
			}
		}
	}

	var out []string
	for _, name := range list {
		if !remove[strings.ToLower(name)] {
			out = append(out, name)
		}
		if len(out) >= maxCandidates {
			break
		}
	}
	return out
}

// mergeCandidates unions two candidate lists, first-seen order, capped.
func mergeCandidates(left, right []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range [][]string{left, right} {
		for _, name := range list {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, name)
			if len(out) >= maxCandidates {
				return out
			}
		}
	}
	return out
}

var itemCategoryPatterns = []struct {
	category string
	pattern  *regexp.Regexp
}{
	{processor.CategoryVegetables, regexp.MustCompile(`(?i)\b(tomato|onion|potato|carrot|cucumber|broccoli|spinach|capsicum|brinjal|eggplant|lettuce|cauliflower)\b`)},
	{processor.CategoryFruits, regexp.MustCompile(`(?i)\b(apple|banana|orange|grape|mango|pear|papaya|pomegranate|kiwi)\b`)},
	{processor.CategoryDairy, regexp.MustCompile(`(?i)\b(milk|cheese|butter|yogurt|yoghurt|cream|paneer|curd)\b`)},
	{processor.CategoryMeat, regexp.MustCompile(`(?i)\b(chicken|beef|fish|mutton|pork|prawn|shrimp|meat)\b`)},
	{processor.CategoryBakery, regexp.MustCompile(`(?i)\b(bread|cake|bun|pastry|croissant)\b`)},
	{processor.CategorySnacks, regexp.MustCompile(`(?i)\b(biscuit|cookie|chocolate|chips|wafer|namkeen|snack)\b`)},
	{processor.CategoryGrains, regexp.MustCompile(`(?i)\b(rice|pasta|noodle|oats|cereal|wheat|flour|atta)\b`)},
	{processor.CategoryBeverages, regexp.MustCompile(`(?i)\b(juice|soda|water|tea|coffee|drink)\b`)},
}

// inferCategoryFromItems derives a category from detected item names when the
// model returned no usable headline category.
func inferCategoryFromItems(items []string) string {
	text := strings.Join(items, " ")
	for _, cp := range itemCategoryPatterns {
		if cp.pattern.MatchString(text) {
			return cp.category
		}
	}
	return processor.CategoryGeneral
}

// scoreVisionConfidence converts the model's self-reported confidence plus
// hard evidence into the numeric score, per-field confidence, and review
// flag. The model's own per-field block wins when present; otherwise fields
// degrade to medium/low based on what was actually extracted.
func scoreVisionConfidence(confidence string, wire *visionFieldConfWire, hasExpiry, hasProductName bool, itemCount int) (int, processor.FieldConfidence, bool) {
	score := 0
	switch strings.ToLower(confidence) {
	case processor.ConfidenceHigh:
		score += 40
	case processor.ConfidenceMedium:
		score += 25
	default:
		score += 10
	}
	if hasExpiry {
		score += 30
	} else {
		score -= 10
	}
	if hasProductName {
		score += 20
	}
	if itemCount > 0 {
		score += 10
	}
	score = processor.ClampScore(score)

	fc := processor.FieldConfidence{}
	if wire != nil {
		fc.Name = strings.ToLower(wire.Name)
		fc.Expiry = strings.ToLower(wire.Expiry)
		fc.Category = strings.ToLower(wire.Category)
	}
	if fc.Name == "" {
		if hasProductName {
			fc.Name = processor.ConfidenceMedium
		} else {
			fc.Name = processor.ConfidenceLow
		}
	}
	if fc.Expiry == "" {
		if hasExpiry {
			fc.Expiry = processor.ConfidenceMedium
		} else {
			fc.Expiry = processor.ConfidenceLow
		}
	}
	if fc.Category == "" {
		fc.Category = processor.ConfidenceMedium
	}

	needsReview := fc.Name == processor.ConfidenceLow ||
		fc.Expiry == processor.ConfidenceLow ||
		fc.Category == processor.ConfidenceLow ||
		score < 50

	return score, fc, needsReview
}
