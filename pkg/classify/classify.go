// Package classify derives listing condition and platform from title text.
//
// Both lookups walk ordered tables and stop at the first rule with a matching
// keyword, so table order decides ties.
package classify

import (
	"strings"

	"lootscout/pkg/models"
)

// Rule maps a tag to the substrings that select it.
type Rule[T any] struct {
	Tag      T
	Keywords []string
}

// ConditionRules is evaluated top to bottom: New > Sealed > Complete > Loose.
// Titles matching none of them are Used.
var ConditionRules = []Rule[models.Condition]{
	{Tag: models.ConditionNew, Keywords: []string{"new"}},
	{Tag: models.ConditionSealed, Keywords: []string{"sealed"}},
	{Tag: models.ConditionComplete, Keywords: []string{"complete", "cib"}},
	{Tag: models.ConditionLoose, Keywords: []string{"loose"}},
}

// PlatformRules is ordered most-specific-first. Keywords that are substrings
// of another platform's keywords must come after it: "playstation 2" before
// "playstation", "3ds" before "ds", "genesis" and "super nes" before "nes",
// "wii u" before "wii", "xbox 360" before "xbox".
var PlatformRules = []Rule[string]{
	{Tag: "ps vita", Keywords: []string{"ps vita", "playstation vita", "vita"}},
	{Tag: "psp", Keywords: []string{"playstation portable", "psp"}},
	{Tag: "ps5", Keywords: []string{"playstation 5", "ps5"}},
	{Tag: "ps4", Keywords: []string{"playstation 4", "ps4"}},
	{Tag: "ps3", Keywords: []string{"playstation 3", "ps3"}},
	{Tag: "ps2", Keywords: []string{"playstation 2", "ps2"}},
	{Tag: "ps1", Keywords: []string{"playstation", "ps1", "psx", "psone"}},
	{Tag: "xbox series", Keywords: []string{"xbox series"}},
	{Tag: "xbox one", Keywords: []string{"xbox one"}},
	{Tag: "xbox 360", Keywords: []string{"xbox 360"}},
	{Tag: "xbox", Keywords: []string{"xbox"}},
	{Tag: "wii u", Keywords: []string{"nintendo wii u", "wii u"}},
	{Tag: "wii", Keywords: []string{"nintendo wii", "wii"}},
	{Tag: "3ds", Keywords: []string{"nintendo 3ds", "3ds"}},
	{Tag: "n64", Keywords: []string{"nintendo 64", "n64"}},
	{Tag: "snes", Keywords: []string{"super nintendo", "snes", "super nes"}},
	{Tag: "gamecube", Keywords: []string{"nintendo gamecube", "gamecube", "gcn"}},
	{Tag: "switch", Keywords: []string{"nintendo switch", "switch"}},
	{Tag: "game boy", Keywords: []string{"game boy", "gameboy", "gba", "gbc"}},
	{Tag: "game gear", Keywords: []string{"sega game gear", "game gear"}},
	{Tag: "genesis", Keywords: []string{"sega genesis", "genesis", "mega drive"}},
	{Tag: "dreamcast", Keywords: []string{"sega dreamcast", "dreamcast"}},
	{Tag: "saturn", Keywords: []string{"sega saturn", "saturn"}},
	{Tag: "nes", Keywords: []string{"nintendo entertainment system", "nes"}},
	{Tag: "ds", Keywords: []string{"nintendo ds", "nds", "ds"}},
}

// Condition returns the condition implied by title, defaulting to Used.
func Condition(title string) models.Condition {
	if tag, ok := first(ConditionRules, title); ok {
		return tag
	}
	return models.ConditionUsed
}

// Platform returns the first platform whose keywords occur in title.
// ok is false when the platform cannot be determined.
func Platform(title string) (tag string, ok bool) {
	return first(PlatformRules, title)
}

// Platforms lists platform tags in table order.
func Platforms() []string {
	tags := make([]string, 0, len(PlatformRules))
	for _, r := range PlatformRules {
		tags = append(tags, r.Tag)
	}
	return tags
}

func first[T any](rules []Rule[T], title string) (T, bool) {
	lower := strings.ToLower(title)
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Tag, true
			}
		}
	}
	var zero T
	return zero, false
}
