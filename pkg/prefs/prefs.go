// Package prefs detects explicit user preference statements and merges
// them durably into the per-user profile.
//
// Merging is a pure function with per-field strategies: map-valued
// preferences merge key-wise with the new value winning, list-valued
// preferences are unioned preserving first-seen order. Merges are
// idempotent and safe under last-write-wins races.
package prefs

import "time"

// Preferences is the merged per-user preference snapshot.
type Preferences struct {
	// Sizes maps brand name to the user's size in that brand.
	Sizes map[string]string `json:"sizes,omitempty"`

	// Colors the user has expressed interest in, first-seen order.
	Colors []string `json:"colors,omitempty"`

	// Styles (product categories) the user has shopped, first-seen order.
	Styles []string `json:"styles,omitempty"`

	// Brands the user has mentioned, first-seen order.
	Brands []string `json:"brands,omitempty"`

	// Voice is the user's chosen synthesis voice, empty for default.
	Voice string `json:"voice,omitempty"`

	// UpdatedAt is the last merge time.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Empty reports whether the snapshot carries no preference data.
func (p *Preferences) Empty() bool {
	return p == nil ||
		len(p.Sizes) == 0 && len(p.Colors) == 0 && len(p.Styles) == 0 &&
			len(p.Brands) == 0 && p.Voice == ""
}

// Merge combines an incoming delta into existing preferences and returns
// the merged snapshot plus whether anything changed. Neither input is
// mutated. Merging the same delta twice yields the same result as once.
func Merge(existing, incoming *Preferences) (*Preferences, bool) {
	merged := clone(existing)
	changed := false

	if incoming == nil {
		return merged, false
	}

	for brand, size := range incoming.Sizes {
		if merged.Sizes[brand] != size {
			if merged.Sizes == nil {
				merged.Sizes = make(map[string]string)
			}
			merged.Sizes[brand] = size
			changed = true
		}
	}

	var added bool
	if merged.Colors, added = union(merged.Colors, incoming.Colors); added {
		changed = true
	}
	if merged.Styles, added = union(merged.Styles, incoming.Styles); added {
		changed = true
	}
	if merged.Brands, added = union(merged.Brands, incoming.Brands); added {
		changed = true
	}

	if incoming.Voice != "" && incoming.Voice != merged.Voice {
		merged.Voice = incoming.Voice
		changed = true
	}

	if changed {
		merged.UpdatedAt = time.Now().UTC()
	}
	return merged, changed
}

// union appends items not already present, preserving first-seen order.
func union(existing, incoming []string) ([]string, bool) {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[v] = true
	}
	out := existing
	added := false
	for _, v := range incoming {
		if v == "" || seen[v] {
			continue
		}
		out = append(out[:len(out):len(out)], v)
		seen[v] = true
		added = true
	}
	return out, added
}

func clone(p *Preferences) *Preferences {
	if p == nil {
		return &Preferences{}
	}
	out := &Preferences{
		Voice:     p.Voice,
		UpdatedAt: p.UpdatedAt,
	}
	if len(p.Sizes) > 0 {
		out.Sizes = make(map[string]string, len(p.Sizes))
		for k, v := range p.Sizes {
			out.Sizes[k] = v
		}
	}
	out.Colors = append(out.Colors, p.Colors...)
	out.Styles = append(out.Styles, p.Styles...)
	out.Brands = append(out.Brands, p.Brands...)
	return out
}
