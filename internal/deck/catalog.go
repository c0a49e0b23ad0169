// internal/deck/catalog.go
package deck

import (
	"fmt"

	"github.com/jason-s-yu/dealroom/internal/models"
)

func money(id, value, qty int) models.CardTemplate {
	return models.CardTemplate{ID: id, Name: fmt.Sprintf("Money $%dM", value), Kind: models.KindMoney, Value: value, Quantity: qty}
}

func property(id int, name string, value int, color models.Color) models.CardTemplate {
	return models.CardTemplate{ID: id, Name: name, Kind: models.KindProperty, Value: value, Color: color, Quantity: 1}
}

func wild(id int, name string, value, qty int, colors ...models.Color) models.CardTemplate {
	return models.CardTemplate{
		ID: id, Name: name, Kind: models.KindProperty, Value: value,
		Colors: colors, Effect: models.EffectWildProperty, Quantity: qty,
	}
}

func action(id int, name string, value int, effect models.ActionEffect, qty int) models.CardTemplate {
	return models.CardTemplate{ID: id, Name: name, Kind: models.KindAction, Value: value, Effect: effect, Quantity: qty}
}

// StandardCatalog returns the 106-card deck. A fresh slice is returned on every call
// so callers cannot mutate the process-wide table.
func StandardCatalog() []models.CardTemplate {
	return []models.CardTemplate{
		// money
		money(1, 1, 6),
		money(2, 2, 5),
		money(3, 3, 3),
		money(4, 4, 3),
		money(5, 5, 2),
		money(6, 10, 1),

		// properties
		property(100, "Boardwalk", 4, models.ColorDarkBlue),
		property(101, "Park Place", 4, models.ColorDarkBlue),
		property(110, "Pacific Avenue", 4, models.ColorGreen),
		property(111, "Pennsylvania Avenue", 4, models.ColorGreen),
		property(112, "North Carolina Avenue", 4, models.ColorGreen),
		property(120, "Indiana Avenue", 3, models.ColorRed),
		property(121, "Illinois Avenue", 3, models.ColorRed),
		property(122, "Kentucky Avenue", 3, models.ColorRed),
		property(130, "Atlantic Avenue", 3, models.ColorYellow),
		property(131, "Marvin Gardens", 3, models.ColorYellow),
		property(132, "Ventnor Avenue", 3, models.ColorYellow),
		property(140, "New York Avenue", 2, models.ColorOrange),
		property(141, "Tennessee Avenue", 2, models.ColorOrange),
		property(142, "St. James Place", 2, models.ColorOrange),
		property(150, "States Avenue", 2, models.ColorPink),
		property(151, "Virginia Avenue", 2, models.ColorPink),
		property(152, "St. Charles Place", 2, models.ColorPink),
		property(160, "Connecticut Avenue", 1, models.ColorLightBlue),
		property(161, "Oriental Avenue", 1, models.ColorLightBlue),
		property(162, "Vermont Avenue", 1, models.ColorLightBlue),
		property(170, "Baltic Avenue", 1, models.ColorBrown),
		property(171, "Mediterranean Avenue", 1, models.ColorBrown),
		property(180, "Water Works", 2, models.ColorUtility),
		property(181, "Electric Company", 2, models.ColorUtility),
		property(190, "B&O Railroad", 2, models.ColorRailroad),
		property(191, "Pennsylvania Railroad", 2, models.ColorRailroad),
		property(192, "Reading Railroad", 2, models.ColorRailroad),
		property(193, "Short Line", 2, models.ColorRailroad),

		// wild properties
		wild(300, "Wild Dark Blue/Green", 4, 1, models.ColorDarkBlue, models.ColorGreen),
		wild(301, "Wild Green/Railroad", 4, 1, models.ColorGreen, models.ColorRailroad),
		wild(302, "Wild Utility/Railroad", 2, 1, models.ColorUtility, models.ColorRailroad),
		wild(303, "Wild Light Blue/Railroad", 4, 1, models.ColorLightBlue, models.ColorRailroad),
		wild(304, "Wild Light Blue/Brown", 1, 1, models.ColorLightBlue, models.ColorBrown),
		wild(305, "Wild Pink/Orange", 2, 2, models.ColorPink, models.ColorOrange),
		wild(306, "Wild Red/Yellow", 3, 2, models.ColorRed, models.ColorYellow),
		wild(307, "Wild Any Color", 0, 2, models.AllColors...),

		// actions
		action(200, "Deal Breaker", 5, models.EffectStealFullSet, 2),
		action(201, "Just Say No", 4, models.EffectBlockAction, 3),
		action(202, "Sly Deal", 3, models.EffectStealSingle, 3),
		action(203, "Forced Deal", 3, models.EffectSwapProperty, 3),
		action(204, "Debt Collector", 3, models.EffectCollect5M, 3),
		action(215, "It's My Birthday", 2, models.EffectCollect2M, 3),
		action(205, "Rent Wildcard", 3, models.EffectRentAnyColor, 3),
		action(206, "Rent Red/Yellow", 1, models.EffectRentRedYellow, 2),
		action(207, "Rent Green/Dark Blue", 1, models.EffectRentGreenDarkBlue, 2),
		action(208, "Rent Orange/Pink", 1, models.EffectRentOrangePink, 2),
		action(209, "Rent Brown/Light Blue", 1, models.EffectRentBrownLightBlue, 2),
		action(210, "Rent Railroad/Utility", 1, models.EffectRentRailroadUtil, 2),
		action(211, "Double The Rent", 1, models.EffectDoubleRent, 2),
		action(212, "Pass Go", 1, models.EffectDraw2, 10),
		action(213, "House", 3, models.EffectAddHouse, 3),
		action(214, "Hotel", 4, models.EffectAddHotel, 2),
	}
}

// Size is the number of card instances the templates expand to.
func Size(templates []models.CardTemplate) int {
	n := 0
	for _, t := range templates {
		n += t.Quantity
	}
	return n
}

// Validate checks a catalog once at startup. Every effect tag must be one the
// engine knows how to resolve; an unknown tag is an error, never a silent no-op.
func Validate(templates []models.CardTemplate, knownEffects []models.ActionEffect) error {
	known := make(map[models.ActionEffect]bool, len(knownEffects))
	for _, e := range knownEffects {
		known[e] = true
	}
	seen := make(map[int]bool, len(templates))
	for _, t := range templates {
		if seen[t.ID] {
			return fmt.Errorf("template %d: duplicate id", t.ID)
		}
		seen[t.ID] = true

		if t.Quantity <= 0 {
			return fmt.Errorf("template %d (%s): quantity must be positive", t.ID, t.Name)
		}
		if t.Value < 0 {
			return fmt.Errorf("template %d (%s): negative value", t.ID, t.Name)
		}
		if t.Effect != "" && !known[t.Effect] {
			return fmt.Errorf("template %d (%s): unknown action effect %q", t.ID, t.Name, t.Effect)
		}

		switch t.Kind {
		case models.KindMoney:
			if t.Effect != "" || t.Color != "" {
				return fmt.Errorf("template %d (%s): money cards carry no color or effect", t.ID, t.Name)
			}
		case models.KindProperty:
			if len(t.Colors) > 0 {
				if t.Effect != models.EffectWildProperty {
					return fmt.Errorf("template %d (%s): wild property must use %s", t.ID, t.Name, models.EffectWildProperty)
				}
				for _, c := range t.Colors {
					if !c.Valid() {
						return fmt.Errorf("template %d (%s): unknown color %q", t.ID, t.Name, c)
					}
				}
			} else if !t.Color.Valid() {
				return fmt.Errorf("template %d (%s): unknown color %q", t.ID, t.Name, t.Color)
			}
		case models.KindAction:
			if t.Effect == "" {
				return fmt.Errorf("template %d (%s): action card without effect", t.ID, t.Name)
			}
			if t.Effect == models.EffectWildProperty {
				return fmt.Errorf("template %d (%s): %s is reserved for property cards", t.ID, t.Name, t.Effect)
			}
		default:
			return fmt.Errorf("template %d (%s): unknown kind %q", t.ID, t.Name, t.Kind)
		}
	}
	return nil
}
