// internal/models/card.go
package models

// CardKind is one of money, property or action.
type CardKind string

const (
	KindMoney    CardKind = "money"
	KindProperty CardKind = "property"
	KindAction   CardKind = "action"
)

// Color identifies a property set.
type Color string

const (
	ColorBrown     Color = "brown"
	ColorLightBlue Color = "light_blue"
	ColorPink      Color = "pink"
	ColorOrange    Color = "orange"
	ColorRed       Color = "red"
	ColorYellow    Color = "yellow"
	ColorGreen     Color = "green"
	ColorDarkBlue  Color = "dark_blue"
	ColorRailroad  Color = "railroad"
	ColorUtility   Color = "utility"
)

// AllColors lists every property color in board order.
var AllColors = []Color{
	ColorBrown, ColorLightBlue, ColorPink, ColorOrange, ColorRed,
	ColorYellow, ColorGreen, ColorDarkBlue, ColorRailroad, ColorUtility,
}

// Valid reports whether c is a known property color.
func (c Color) Valid() bool {
	for _, known := range AllColors {
		if c == known {
			return true
		}
	}
	return false
}

// ActionEffect is the tag naming what an action card (or a wild property) does when played.
type ActionEffect string

const (
	EffectStealFullSet       ActionEffect = "steal_full_set"        // Deal Breaker
	EffectBlockAction        ActionEffect = "block_action"          // Just Say No
	EffectStealSingle        ActionEffect = "steal_single_property" // Sly Deal
	EffectSwapProperty       ActionEffect = "swap_property"         // Forced Deal
	EffectCollect5M          ActionEffect = "collect_5m"            // Debt Collector
	EffectCollect2M          ActionEffect = "collect_2m"            // It's My Birthday
	EffectRentAnyColor       ActionEffect = "rent_any_color"
	EffectRentRedYellow      ActionEffect = "rent_red_yellow"
	EffectRentGreenDarkBlue  ActionEffect = "rent_green_dark_blue"
	EffectRentOrangePink     ActionEffect = "rent_orange_pink"
	EffectRentBrownLightBlue ActionEffect = "rent_brown_light_blue"
	EffectRentRailroadUtil   ActionEffect = "rent_railroad_utility"
	EffectDoubleRent         ActionEffect = "double_rent"
	EffectDraw2              ActionEffect = "draw_2" // Pass Go
	EffectAddHouse           ActionEffect = "add_house"
	EffectAddHotel           ActionEffect = "add_hotel"
	EffectWildProperty       ActionEffect = "wild_property"
	EffectFlipProperty       ActionEffect = "flip_property"
)

// CardTemplate is one immutable catalog entry and its print quantity.
type CardTemplate struct {
	ID       int          `json:"id"`
	Name     string       `json:"name"`
	Kind     CardKind     `json:"kind"`
	Value    int          `json:"value"`
	Color    Color        `json:"color,omitempty"`
	Colors   []Color      `json:"colors,omitempty"` // wild properties
	Effect   ActionEffect `json:"actionEffect,omitempty"`
	Quantity int          `json:"quantity"`
}

// Card is a single physical copy of a template. Cards are held by value in exactly
// one location slice at a time.
type Card struct {
	InstanceID   string       `json:"instanceId"`
	TemplateID   int          `json:"templateId"`
	Name         string       `json:"name"`
	Kind         CardKind     `json:"kind"`
	Value        int          `json:"value"`
	Color        Color        `json:"color,omitempty"`
	Colors       []Color      `json:"colors,omitempty"`
	CurrentColor Color        `json:"currentColor,omitempty"`
	Effect       ActionEffect `json:"actionEffect,omitempty"`
}

// IsWild reports whether the card is a property that may be filed under more than one color.
func (c Card) IsWild() bool {
	return c.Kind == KindProperty && len(c.Colors) > 0
}

// IsBuilding reports whether the card is a house or hotel.
func (c Card) IsBuilding() bool {
	return c.Kind == KindAction && (c.Effect == EffectAddHouse || c.Effect == EffectAddHotel)
}

// EffectiveColor is the set a card in play counts toward.
func (c Card) EffectiveColor() Color {
	if c.CurrentColor != "" {
		return c.CurrentColor
	}
	return c.Color
}

// AllowsColor reports whether a wild card may be filed under color.
func (c Card) AllowsColor(color Color) bool {
	if !c.IsWild() {
		return c.Color == color
	}
	for _, allowed := range c.Colors {
		if allowed == color {
			return true
		}
	}
	return false
}
