package intent

import (
	"testing"
)

func TestClassifyRules(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"find blue dresses", SearchProduct},
		{"show me some jackets", SearchProduct},
		{"can you recommend something for a wedding", GetRecommendations},
		{"what size should I get", AskAboutSize},
		{"add to cart please", AddToCart},
		{"I want to return these shoes", ReturnProduct},
		{"where is my order", TrackOrder},
		{"I usually wear a medium in Acme", SavePreference},
		{"what's your return window", ReturnProduct},
		{"hello there", GeneralQuestion},
		{"", GeneralQuestion},
		{"asdf qwerty zxcv", GeneralQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := Classify(tt.text)
			if got.Intent != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.text, got.Intent, tt.want)
			}
			if !Valid(got.Intent) {
				t.Errorf("intent %q not in closed set", got.Intent)
			}
		})
	}
}

func TestClassifyConfidenceCap(t *testing.T) {
	t.Run("keyword match capped at rule confidence", func(t *testing.T) {
		got := Classify("find blue dresses")
		if got.Confidence > ruleConfidence {
			t.Errorf("rule confidence %f exceeds cap %f", got.Confidence, ruleConfidence)
		}
	})

	t.Run("no match gets lower confidence", func(t *testing.T) {
		got := Classify("mumble mumble")
		if got.Confidence >= ruleConfidence {
			t.Errorf("unmatched confidence %f should be below %f", got.Confidence, ruleConfidence)
		}
	})
}

func TestExtractEntities(t *testing.T) {
	t.Run("color and category", func(t *testing.T) {
		got := ExtractEntities("find blue dresses")
		if got["color"] != "blue" {
			t.Errorf("color = %q, want blue", got["color"])
		}
		if got["category"] != "dress" {
			t.Errorf("category = %q, want dress", got["category"])
		}
	})

	t.Run("size normalization", func(t *testing.T) {
		got := ExtractEntities("do you have this in medium")
		if got["size"] != "m" {
			t.Errorf("size = %q, want m", got["size"])
		}
	})

	t.Run("brand after preposition", func(t *testing.T) {
		got := ExtractEntities("I wear a medium in Acme")
		if got["brand"] != "Acme" {
			t.Errorf("brand = %q, want Acme", got["brand"])
		}
	})

	t.Run("price bounds", func(t *testing.T) {
		got := ExtractEntities("dresses under $50")
		if got["max_price"] != "50" {
			t.Errorf("max_price = %q, want 50", got["max_price"])
		}
		got = ExtractEntities("something over $100")
		if got["min_price"] != "100" {
			t.Errorf("min_price = %q, want 100", got["min_price"])
		}
	})

	t.Run("occasion", func(t *testing.T) {
		got := ExtractEntities("a formal dress for a wedding")
		if got["occasion"] != "wedding" {
			t.Errorf("occasion = %q, want wedding", got["occasion"])
		}
	})

	t.Run("substring color is not matched", func(t *testing.T) {
		got := ExtractEntities("bluetooth speaker")
		if _, ok := got["color"]; ok {
			t.Errorf("expected no color, got %q", got["color"])
		}
	})
}

func TestParseClassification(t *testing.T) {
	t.Run("well-formed payload", func(t *testing.T) {
		got, err := parseClassification(`{"intent": "search_product", "entities": {"color": "blue"}, "confidence": 0.92}`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Intent != SearchProduct || got.Entities["color"] != "blue" || got.Confidence != 0.92 {
			t.Errorf("unexpected result %+v", got)
		}
	})

	t.Run("code-fenced payload", func(t *testing.T) {
		got, err := parseClassification("```json\n{\"intent\": \"add_to_cart\"}\n```")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Intent != AddToCart {
			t.Errorf("intent = %s, want add_to_cart", got.Intent)
		}
	})

	t.Run("unknown label maps to general_question", func(t *testing.T) {
		got, err := parseClassification(`{"intent": "world_domination", "confidence": 0.99}`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Intent != GeneralQuestion {
			t.Errorf("intent = %s, want general_question", got.Intent)
		}
	})

	t.Run("garbage is an error", func(t *testing.T) {
		if _, err := parseClassification("not json at all"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("empty entity values dropped", func(t *testing.T) {
		got, _ := parseClassification(`{"intent": "search_product", "entities": {"color": "", "size": "m"}}`)
		if _, ok := got.Entities["color"]; ok {
			t.Error("empty entity value should be dropped")
		}
		if got.Entities["size"] != "m" {
			t.Errorf("size = %q, want m", got.Entities["size"])
		}
	})
}
