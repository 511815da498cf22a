// Package intent maps utterance text to a structured intent and entity set.
//
// The extractor asks a language-understanding provider for a JSON-structured
// classification drawn from a fixed closed intent set, and falls back to
// deterministic keyword rules when the provider is unavailable. Whatever the
// path, the returned intent is always a member of the closed set.
package intent

// Intent is a label from the fixed closed intent set.
type Intent string

const (
	SearchProduct      Intent = "search_product"
	GetRecommendations Intent = "get_recommendations"
	AskAboutSize       Intent = "ask_about_size"
	AddToCart          Intent = "add_to_cart"
	ReturnProduct      Intent = "return_product"
	TrackOrder         Intent = "track_order"
	SavePreference     Intent = "save_preference"
	GeneralQuestion    Intent = "general_question"
)

// All lists the closed intent set.
var All = []Intent{
	SearchProduct,
	GetRecommendations,
	AskAboutSize,
	AddToCart,
	ReturnProduct,
	TrackOrder,
	SavePreference,
	GeneralQuestion,
}

// Valid reports whether the label is a member of the closed set.
func Valid(i Intent) bool {
	for _, known := range All {
		if i == known {
			return true
		}
	}
	return false
}

// Entities is a free-form entity map (color, category, occasion, size,
// brand, price range). Keys are lowercase entity names.
type Entities map[string]string

// Result is a classified utterance.
type Result struct {
	// Intent is always a member of the closed set.
	Intent Intent `json:"intent"`

	// Entities extracted from the utterance, possibly empty.
	Entities Entities `json:"entities,omitempty"`

	// Confidence in [0,1]. Rule-based results are capped below the
	// primary path's typical range.
	Confidence float64 `json:"confidence"`

	// Source tags which path produced the classification.
	Source string `json:"source,omitempty"`
}
