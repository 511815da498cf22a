package intent

import (
	"regexp"
	"strings"
)

// ruleConfidence caps rule-based confidence below the primary path's
// typical range so the response generator can tell the two apart.
const ruleConfidence = 0.6

// fallbackConfidence is used when no rule matched at all.
const fallbackConfidence = 0.3

const sourceRules = "rules"

// Keyword tables checked in order; the first match wins. More specific
// phrases come before generic ones.
var intentRules = []struct {
	intent   Intent
	keywords []string
}{
	{AddToCart, []string{"add to cart", "add to my cart", "add it to", "buy this", "purchase this", "i'll take it"}},
	{ReturnProduct, []string{"return", "refund", "send back", "send it back", "exchange"}},
	{TrackOrder, []string{"track my order", "where is my order", "order status", "track order", "when will it arrive", "delivery status"}},
	{AskAboutSize, []string{"what size", "which size", "does it fit", "size chart", "run small", "run large", "true to size"}},
	{SavePreference, []string{"i prefer", "my favorite", "i usually wear", "i wear a", "remember that i", "i always"}},
	{GetRecommendations, []string{"recommend", "suggestion", "suggest", "what should i", "what would you", "any ideas"}},
	{SearchProduct, []string{"find", "search", "show me", "looking for", "do you have", "i need a", "i want a", "i'm shopping for"}},
}

var knownColors = []string{
	"black", "white", "red", "blue", "green", "yellow", "pink", "purple",
	"orange", "brown", "gray", "grey", "navy", "beige", "cream", "gold", "silver",
}

// Category surface forms mapped to normalized singular labels.
var knownCategories = map[string]string{
	"dress": "dress", "dresses": "dress",
	"shirt": "shirt", "shirts": "shirt",
	"top": "top", "tops": "top",
	"pants": "pants", "trousers": "pants",
	"jeans": "jeans",
	"shoe":  "shoes", "shoes": "shoes", "sneakers": "shoes", "boots": "boots",
	"jacket": "jacket", "jackets": "jacket",
	"coat": "coat", "coats": "coat",
	"skirt": "skirt", "skirts": "skirt",
	"sweater": "sweater", "sweaters": "sweater",
	"suit": "suit", "suits": "suit",
	"hat": "hat", "hats": "hat",
	"bag": "bag", "bags": "bag",
}

var knownOccasions = []string{
	"wedding", "party", "work", "office", "casual", "formal", "beach",
	"gym", "workout", "date", "interview", "vacation",
}

var (
	sizeRe     = regexp.MustCompile(`(?i)\b(?:size\s+)?(xs|s|m|l|xl|xxl|small|medium|large|extra[- ]large|size\s+\d{1,2})\b`)
	maxPriceRe = regexp.MustCompile(`(?i)\b(?:under|below|less than|at most)\s+\$?(\d+)`)
	minPriceRe = regexp.MustCompile(`(?i)\b(?:over|above|more than|at least)\s+\$?(\d+)`)
	brandRe    = regexp.MustCompile(`\b(?:in|from|by)\s+([A-Z][A-Za-z]+)`)
)

// Classify maps text to an intent deterministically. It never fails and
// always returns a member of the closed intent set.
func Classify(text string) *Result {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return &Result{
			Intent:     GeneralQuestion,
			Entities:   Entities{},
			Confidence: fallbackConfidence,
			Source:     sourceRules,
		}
	}

	matched := GeneralQuestion
	confidence := fallbackConfidence
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				matched = rule.intent
				confidence = ruleConfidence
				break
			}
		}
		if matched != GeneralQuestion {
			break
		}
	}

	return &Result{
		Intent:     matched,
		Entities:   ExtractEntities(text),
		Confidence: confidence,
		Source:     sourceRules,
	}
}

// ExtractEntities pulls colors, categories, sizes, brands, occasions, and
// price bounds out of the text with pattern rules.
func ExtractEntities(text string) Entities {
	entities := Entities{}
	lower := strings.ToLower(text)

	for _, color := range knownColors {
		if containsWord(lower, color) {
			entities["color"] = color
			break
		}
	}

	for _, word := range strings.FieldsFunc(lower, isWordSep) {
		if category, ok := knownCategories[word]; ok {
			entities["category"] = category
			break
		}
	}

	for _, occasion := range knownOccasions {
		if containsWord(lower, occasion) {
			entities["occasion"] = occasion
			break
		}
	}

	if m := sizeRe.FindStringSubmatch(text); m != nil {
		entities["size"] = normalizeSize(m[1])
	}
	if m := maxPriceRe.FindStringSubmatch(text); m != nil {
		entities["max_price"] = m[1]
	}
	if m := minPriceRe.FindStringSubmatch(text); m != nil {
		entities["min_price"] = m[1]
	}
	if m := brandRe.FindStringSubmatch(text); m != nil {
		entities["brand"] = m[1]
	}

	return entities
}

func containsWord(lower, word string) bool {
	idx := strings.Index(lower, word)
	for idx >= 0 {
		before := idx == 0 || isWordSep(rune(lower[idx-1]))
		afterIdx := idx + len(word)
		after := afterIdx >= len(lower) || isWordSep(rune(lower[afterIdx]))
		if before && after {
			return true
		}
		next := strings.Index(lower[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordSep(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
}

func normalizeSize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "extra large", "xl")
	s = strings.ReplaceAll(s, "extra-large", "xl")
	switch s {
	case "small":
		return "s"
	case "medium":
		return "m"
	case "large":
		return "l"
	}
	return s
}
