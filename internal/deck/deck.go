// internal/deck/deck.go
package deck

import (
	"fmt"
	"math/rand"

	"github.com/jason-s-yu/dealroom/internal/models"
)

// Expand instantiates Quantity copies of every template. Instance IDs are
// "<templateID>-<copyIndex>" so a given catalog always yields the same IDs.
func Expand(templates []models.CardTemplate) []models.Card {
	cards := make([]models.Card, 0, Size(templates))
	for _, t := range templates {
		for i := 0; i < t.Quantity; i++ {
			c := models.Card{
				InstanceID: fmt.Sprintf("%d-%d", t.ID, i),
				TemplateID: t.ID,
				Name:       t.Name,
				Kind:       t.Kind,
				Value:      t.Value,
				Color:      t.Color,
				Effect:     t.Effect,
			}
			if len(t.Colors) > 0 {
				c.Colors = append([]models.Color(nil), t.Colors...)
			}
			cards = append(cards, c)
		}
	}
	return cards
}

// Shuffle returns a Fisher-Yates permutation of cards drawn from rng. The input
// slice is left untouched.
func Shuffle(cards []models.Card, rng *rand.Rand) []models.Card {
	out := models.CloneCards(cards)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// New validates the catalog, expands it and shuffles the result.
func New(templates []models.CardTemplate, knownEffects []models.ActionEffect, rng *rand.Rand) ([]models.Card, error) {
	if err := Validate(templates, knownEffects); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return Shuffle(Expand(templates), rng), nil
}
