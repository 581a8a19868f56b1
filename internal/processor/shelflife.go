// shelflife.go - Category shelf-life defaults used when no expiry can be
// read off the label.

package processor

import (
	"strings"
	"time"
)

// shelfLifeRule maps a product-name keyword within a category to a shelf
// life in days. Rules are checked in order; the first keyword hit wins.
type shelfLifeRule struct {
	keywords []string
	days     int
}

var shelfLifeRules = map[string]struct {
	overrides []shelfLifeRule
	days      int
}{
	CategoryDairy: {
		overrides: []shelfLifeRule{
			{[]string{"uht", "long life"}, 90},
			{[]string{"parmesan", "aged"}, 60},
			{[]string{"yogurt", "curd"}, 14},
		},
		days: 14,
	},
	CategoryMeat: {
		overrides: []shelfLifeRule{
			{[]string{"frozen"}, 90},
			{[]string{"canned"}, 365},
			{[]string{"dried", "jerky"}, 180},
		},
		days: 3,
	},
	CategoryFruits: {
		overrides: []shelfLifeRule{
			{[]string{"dried", "raisin"}, 180},
			{[]string{"canned"}, 365},
			{[]string{"jam", "preserve"}, 180},
		},
		days: 5,
	},
	CategoryVegetables: {
		overrides: []shelfLifeRule{
			{[]string{"canned"}, 365},
			{[]string{"frozen"}, 90},
			{[]string{"pickle"}, 180},
		},
		days: 7,
	},
	CategoryBakery: {
		overrides: []shelfLifeRule{
			{[]string{"frozen"}, 90},
		},
		days: 5,
	},
	CategorySnacks:   {days: 90},
	CategoryGrains:   {days: 180},
	CategoryBeverages: {
		overrides: []shelfLifeRule{
			{[]string{"fresh"}, 7},
			{[]string{"uht", "tetra"}, 180},
		},
		days: 90,
	},
	CategoryCondiments: {days: 180},
	CategoryFrozen:     {days: 90},
}

const defaultShelfLifeDays = 30

// ShelfLifeTable derives a conservative expiry from a product category and
// name when the label yields no date at all.
type ShelfLifeTable struct {
	now func() time.Time
}

// NewShelfLifeTable builds a table; a nil clock means time.Now.
func NewShelfLifeTable(now func() time.Time) *ShelfLifeTable {
	if now == nil {
		now = time.Now
	}
	return &ShelfLifeTable{now: now}
}

// Days returns the shelf life in days for the category, with product-name
// keywords refining the estimate ("frozen chicken" keeps far longer than
// fresh). Unknown categories get a generic 30 days.
func (t *ShelfLifeTable) Days(category, productName string) int {
	rules, ok := shelfLifeRules[category]
	if !ok {
		return defaultShelfLifeDays
	}

	lower := strings.ToLower(productName)
	for _, rule := range rules.overrides {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.days
			}
		}
	}
	return rules.days
}

// FallbackExpiry returns today plus the category shelf life.
func (t *ShelfLifeTable) FallbackExpiry(category, productName string) time.Time {
	return ToDate(t.now()).AddDate(0, 0, t.Days(category, productName))
}
