package respond

import (
	"fmt"
	"strings"

	"github.com/voxcart/voxcart/pkg/intent"
	"github.com/voxcart/voxcart/pkg/prefs"
)

const sourceTemplate = "template"

// Template renders a deterministic response for an intent when the
// generative provider is unavailable. Entity and preference details are
// substituted where they help; the catch-all keeps the conversation alive.
func Template(in *Input) string {
	var reply string

	switch in.Intent {
	case intent.SearchProduct:
		subject := describeProduct(in.Entities, in.Preferences)
		reply = fmt.Sprintf("I'm looking for %s for you. Give me a moment to pull up some options.", subject)
	case intent.GetRecommendations:
		subject := describeProduct(in.Entities, in.Preferences)
		if occasion := in.Entities["occasion"]; occasion != "" {
			reply = fmt.Sprintf("Happy to help you find something for the %s. I'll put together a few %s picks.", occasion, subject)
		} else {
			reply = fmt.Sprintf("Sure, I can suggest a few %s options based on what you usually like.", subject)
		}
	case intent.AskAboutSize:
		if size := knownSize(in.Preferences, in.Entities["brand"]); size != "" {
			reply = fmt.Sprintf("Based on your saved sizes, a %s should fit you well. Want me to double-check the size chart?", size)
		} else {
			reply = "I can check the size chart for you. What do you usually wear in similar brands?"
		}
	case intent.AddToCart:
		reply = "Done, I've added that to your cart. Anything else you'd like to look at?"
	case intent.ReturnProduct:
		reply = "No problem, I can start a return for you. I'll email you a prepaid label once it's confirmed."
	case intent.TrackOrder:
		reply = "Let me check on that order. I'll read out the latest delivery status as soon as I have it."
	case intent.SavePreference:
		reply = "Got it, I'll remember that."
	default:
		reply = "I'm here to help you shop. You can ask me to find products, get recommendations, or check on an order."
	}

	if in.PreferencesSaved && in.Intent != intent.SavePreference {
		reply = "I've saved that preference. " + reply
	}
	return reply
}

// describeProduct builds a short noun phrase from extracted entities.
// An explicit color entity wins; otherwise the first remembered color
// preference fills in.
func describeProduct(entities intent.Entities, p *prefs.Preferences) string {
	var parts []string
	color := entities["color"]
	if color == "" && p != nil && len(p.Colors) > 0 {
		color = p.Colors[0]
	}
	if color != "" {
		parts = append(parts, color)
	}
	if category := entities["category"]; category != "" {
		parts = append(parts, pluralize(category))
	}
	if len(parts) == 0 {
		return "some options"
	}
	return strings.Join(parts, " ")
}

func knownSize(p *prefs.Preferences, brand string) string {
	if p == nil || len(p.Sizes) == 0 {
		return ""
	}
	if brand != "" {
		if size, ok := p.Sizes[brand]; ok {
			return size
		}
	}
	for _, size := range p.Sizes {
		return size
	}
	return ""
}

func pluralize(category string) string {
	switch category {
	case "pants", "jeans", "shoes", "boots":
		return category
	}
	if strings.HasSuffix(category, "s") {
		return category + "es"
	}
	return category + "s"
}
