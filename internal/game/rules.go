// internal/game/rules.go
package game

import "fmt"

// Rules holds the tunable parts of the ruleset. Defaults follow the printed rules.
type Rules struct {
	MaxTurnActions       int  `json:"maxTurnActions"`       // card plays per turn
	HandLimit            int  `json:"handLimit"`            // max cards in hand when ending a turn
	InitialHand          int  `json:"initialHand"`          // cards dealt to each player at start
	TurnDraw             int  `json:"turnDraw"`             // cards drawn at the start of each turn
	EmptyHandDraw        int  `json:"emptyHandDraw"`        // cards drawn instead when the hand is empty
	SetsToWin            int  `json:"setsToWin"`            // complete sets needed to win
	MinPlayers           int  `json:"minPlayers"`           // players needed to start
	MaxPlayers           int  `json:"maxPlayers"`           // seats per room
	FreeMoneyPlays       bool `json:"freeMoneyPlays"`       // money plays do not consume an action
	SettleWithProperties bool `json:"settleWithProperties"` // pay debts with properties once the bank runs dry
	ReshuffleDiscard     bool `json:"reshuffleDiscard"`     // refill an empty deck from the discard pile
	AutoDraw             bool `json:"autoDraw"`             // draw automatically at turn start; otherwise the player sends draw_card
}

// DefaultRules returns the standard ruleset.
func DefaultRules() Rules {
	return Rules{
		MaxTurnActions:       3,
		HandLimit:            7,
		InitialHand:          5,
		TurnDraw:             2,
		EmptyHandDraw:        5,
		SetsToWin:            3,
		MinPlayers:           2,
		MaxPlayers:           5,
		FreeMoneyPlays:       false,
		SettleWithProperties: true,
		ReshuffleDiscard:     false,
		AutoDraw:             true,
	}
}

// Update applies the keys present in newRules. Absent keys keep their old value.
func (rules *Rules) Update(newRules map[string]interface{}) error {
	assignBool := func(field *bool, key string) error {
		if val, exists := newRules[key]; exists && val != nil {
			b, ok := val.(bool)
			if !ok {
				return fmt.Errorf("invalid type for %s", key)
			}
			*field = b
		}
		return nil
	}

	assignInt := func(field *int, key string, minVal int) error {
		if val, exists := newRules[key]; exists && val != nil {
			var n int
			switch v := val.(type) {
			case float64: // JSON numbers
				n = int(v)
			case int:
				n = v
			default:
				return fmt.Errorf("invalid type for %s", key)
			}
			if n < minVal {
				return fmt.Errorf("%s must be at least %d", key, minVal)
			}
			*field = n
		}
		return nil
	}

	ints := []struct {
		field *int
		key   string
		min   int
	}{
		{&rules.MaxTurnActions, "maxTurnActions", 1},
		{&rules.HandLimit, "handLimit", 0},
		{&rules.InitialHand, "initialHand", 0},
		{&rules.TurnDraw, "turnDraw", 0},
		{&rules.EmptyHandDraw, "emptyHandDraw", 0},
		{&rules.SetsToWin, "setsToWin", 1},
		{&rules.MinPlayers, "minPlayers", 2},
		{&rules.MaxPlayers, "maxPlayers", 2},
	}
	for _, f := range ints {
		if err := assignInt(f.field, f.key, f.min); err != nil {
			return err
		}
	}

	bools := []struct {
		field *bool
		key   string
	}{
		{&rules.FreeMoneyPlays, "freeMoneyPlays"},
		{&rules.SettleWithProperties, "settleWithProperties"},
		{&rules.ReshuffleDiscard, "reshuffleDiscard"},
		{&rules.AutoDraw, "autoDraw"},
	}
	for _, f := range bools {
		if err := assignBool(f.field, f.key); err != nil {
			return err
		}
	}

	if rules.MinPlayers > rules.MaxPlayers {
		return fmt.Errorf("minPlayers (%d) exceeds maxPlayers (%d)", rules.MinPlayers, rules.MaxPlayers)
	}
	return nil
}

// ParseRules returns a copy of current with newRules applied.
func ParseRules(newRules map[string]interface{}, current Rules) (Rules, error) {
	rules := current
	err := rules.Update(newRules)
	return rules, err
}
