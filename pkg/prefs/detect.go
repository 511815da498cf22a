package prefs

import (
	"regexp"
	"strings"

	"github.com/voxcart/voxcart/pkg/intent"
)

// Size-for-brand statements: "I wear a medium in Acme",
// "I'm a size 8 in Levis", "I take an XL in Northwind".
var sizeForBrandRe = regexp.MustCompile(
	`(?i)\bI(?:'m|\s+am)?\s+(?:wear|take|use)?\s*an?\s+(?:size\s+)?(xs|s|m|l|xl|xxl|small|medium|large|\d{1,2})\s+in\s+([A-Z][A-Za-z]+)`)

// Explicit voice choice: "use the nova voice", "switch to the echo voice".
var voiceChoiceRe = regexp.MustCompile(
	`(?i)\b(?:use|switch to|change to|set)\s+(?:the\s+)?([a-z]+)\s+voice\b`)

// Detect extracts a preference delta from an utterance and its extracted
// entities. Returns nil when nothing preference-relevant was said.
func Detect(text string, entities intent.Entities) *Preferences {
	delta := &Preferences{}

	if m := sizeForBrandRe.FindStringSubmatch(text); m != nil {
		delta.Sizes = map[string]string{m[2]: normalizeSize(m[1])}
	}

	if m := voiceChoiceRe.FindStringSubmatch(text); m != nil {
		delta.Voice = strings.ToLower(m[1])
	}

	// Implicit signals from already-extracted entities.
	if color := entities["color"]; color != "" {
		delta.Colors = []string{strings.ToLower(color)}
	}
	if category := entities["category"]; category != "" {
		delta.Styles = []string{strings.ToLower(category)}
	}
	if brand := entities["brand"]; brand != "" {
		delta.Brands = []string{brand}
	}
	if size := entities["size"]; size != "" && delta.Sizes == nil {
		if brand := entities["brand"]; brand != "" {
			delta.Sizes = map[string]string{brand: normalizeSize(size)}
		}
	}

	if delta.Empty() {
		return nil
	}
	return delta
}

func normalizeSize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "SMALL":
		return "S"
	case "MEDIUM":
		return "M"
	case "LARGE":
		return "L"
	}
	return s
}
