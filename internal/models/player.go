package models

// Player is one seat's cards. The connection that drives the seat is tracked by the
// room, never here.
type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Hand       []Card `json:"hand"`
	Bank       []Card `json:"bank"`
	Properties []Card `json:"properties"`
}

// NewPlayer returns a player with empty card piles.
func NewPlayer(id, name string) *Player {
	return &Player{
		ID:         id,
		Name:       name,
		Hand:       []Card{},
		Bank:       []Card{},
		Properties: []Card{},
	}
}

// Clone deep-copies the player's card slices.
func (p *Player) Clone() *Player {
	return &Player{
		ID:         p.ID,
		Name:       p.Name,
		Hand:       cloneCards(p.Hand),
		Bank:       cloneCards(p.Bank),
		Properties: cloneCards(p.Properties),
	}
}

// CardCount is the number of cards the player holds across all piles.
func (p *Player) CardCount() int {
	return len(p.Hand) + len(p.Bank) + len(p.Properties)
}

// BankValue sums the face value of the bank.
func (p *Player) BankValue() int {
	total := 0
	for _, c := range p.Bank {
		total += c.Value
	}
	return total
}

// HandCard looks up a card in hand without removing it.
func (p *Player) HandCard(instanceID string) (Card, bool) {
	if i := indexOf(p.Hand, instanceID); i >= 0 {
		return p.Hand[i], true
	}
	return Card{}, false
}

// PropertyCard looks up a card in the property area without removing it.
func (p *Player) PropertyCard(instanceID string) (Card, bool) {
	if i := indexOf(p.Properties, instanceID); i >= 0 {
		return p.Properties[i], true
	}
	return Card{}, false
}

// TakeFromHand removes and returns a card from the hand.
func (p *Player) TakeFromHand(instanceID string) (Card, bool) {
	var c Card
	var ok bool
	p.Hand, c, ok = take(p.Hand, instanceID)
	return c, ok
}

// TakeFromBank removes and returns a card from the bank.
func (p *Player) TakeFromBank(instanceID string) (Card, bool) {
	var c Card
	var ok bool
	p.Bank, c, ok = take(p.Bank, instanceID)
	return c, ok
}

// TakeProperty removes and returns a card from the property area.
func (p *Player) TakeProperty(instanceID string) (Card, bool) {
	var c Card
	var ok bool
	p.Properties, c, ok = take(p.Properties, instanceID)
	return c, ok
}

// SetPropertyColor changes the CurrentColor of a card already in play.
func (p *Player) SetPropertyColor(instanceID string, color Color) bool {
	i := indexOf(p.Properties, instanceID)
	if i < 0 {
		return false
	}
	p.Properties[i].CurrentColor = color
	return true
}

// PropertySets groups the property area by effective color. Sets are derived on
// every call and never stored.
func (p *Player) PropertySets() map[Color]*PropertySet {
	return BuildPropertySets(p.Properties)
}

// PropertySet returns the derived set for color, or nil if the player has none.
func (p *Player) PropertySet(color Color) *PropertySet {
	return p.PropertySets()[color]
}

// CompleteSetCount is the number of complete property sets the player owns.
func (p *Player) CompleteSetCount() int {
	n := 0
	for _, set := range p.PropertySets() {
		if set.IsComplete {
			n++
		}
	}
	return n
}

func indexOf(cards []Card, instanceID string) int {
	for i, c := range cards {
		if c.InstanceID == instanceID {
			return i
		}
	}
	return -1
}

func take(cards []Card, instanceID string) ([]Card, Card, bool) {
	i := indexOf(cards, instanceID)
	if i < 0 {
		return cards, Card{}, false
	}
	c := cards[i]
	out := make([]Card, 0, len(cards)-1)
	out = append(out, cards[:i]...)
	out = append(out, cards[i+1:]...)
	return out, c, true
}

func cloneCards(cards []Card) []Card {
	out := make([]Card, len(cards))
	for i, c := range cards {
		out[i] = c
		if c.Colors != nil {
			out[i].Colors = append([]Color(nil), c.Colors...)
		}
	}
	return out
}

// CloneCards deep-copies a card slice.
func CloneCards(cards []Card) []Card {
	return cloneCards(cards)
}
