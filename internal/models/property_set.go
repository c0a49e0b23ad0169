package models

// requiredCounts is the number of properties that complete each color.
var requiredCounts = map[Color]int{
	ColorBrown:     2,
	ColorLightBlue: 3,
	ColorPink:      3,
	ColorOrange:    3,
	ColorRed:       3,
	ColorYellow:    3,
	ColorGreen:     3,
	ColorDarkBlue:  2,
	ColorRailroad:  4,
	ColorUtility:   2,
}

// RequiredCount returns how many properties complete the given color (0 if unknown).
func RequiredCount(color Color) int {
	return requiredCounts[color]
}

// Buildable reports whether houses and hotels may be placed on a set of this color.
func Buildable(color Color) bool {
	return color != ColorRailroad && color != ColorUtility
}

// PropertySet is the derived view of one color in a player's property area.
type PropertySet struct {
	Color         Color  `json:"color"`
	Members       []Card `json:"members"`
	Buildings     []Card `json:"buildings,omitempty"`
	RequiredCount int    `json:"requiredCount"`
	IsComplete    bool   `json:"isComplete"`
	Houses        int    `json:"houses"`
	Hotels        int    `json:"hotels"`
}

// BuildPropertySets groups cards by effective color. Houses and hotels are
// attached to the set named by their CurrentColor and do not count as members.
func BuildPropertySets(properties []Card) map[Color]*PropertySet {
	sets := make(map[Color]*PropertySet)
	get := func(color Color) *PropertySet {
		set, ok := sets[color]
		if !ok {
			set = &PropertySet{Color: color, RequiredCount: RequiredCount(color)}
			sets[color] = set
		}
		return set
	}
	for _, c := range properties {
		color := c.EffectiveColor()
		if color == "" {
			continue
		}
		set := get(color)
		if c.IsBuilding() {
			set.Buildings = append(set.Buildings, c)
			if c.Effect == EffectAddHouse {
				set.Houses++
			} else {
				set.Hotels++
			}
			continue
		}
		set.Members = append(set.Members, c)
	}
	for _, set := range sets {
		set.IsComplete = set.RequiredCount > 0 && len(set.Members) >= set.RequiredCount
	}
	return sets
}
