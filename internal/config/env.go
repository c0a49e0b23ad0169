// internal/config/env.go
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/jason-s-yu/dealroom/internal/game"
)

// GetEnv reads an environment variable or returns def.
func GetEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt parses an environment variable as an integer, else returns def.
func GetEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// GetEnvBool parses an environment variable with strconv.ParseBool, else returns def.
func GetEnvBool(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}

// GetEnvDuration parses an environment variable as a time.Duration ("500ms", "10m").
func GetEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return v
}

// LoadRules starts from the default ruleset and applies any DEALROOM_* overrides:
//
//	DEALROOM_MAX_TURN_ACTIONS, DEALROOM_HAND_LIMIT, DEALROOM_INITIAL_HAND,
//	DEALROOM_TURN_DRAW, DEALROOM_EMPTY_HAND_DRAW, DEALROOM_SETS_TO_WIN,
//	DEALROOM_MIN_PLAYERS, DEALROOM_MAX_PLAYERS, DEALROOM_FREE_MONEY_PLAYS,
//	DEALROOM_SETTLE_WITH_PROPERTIES, DEALROOM_RESHUFFLE_DISCARD, DEALROOM_AUTO_DRAW
//
// The result is validated the same way as a client rules update.
func LoadRules() (game.Rules, error) {
	def := game.DefaultRules()
	overrides := map[string]interface{}{
		"maxTurnActions":       GetEnvInt("DEALROOM_MAX_TURN_ACTIONS", def.MaxTurnActions),
		"handLimit":            GetEnvInt("DEALROOM_HAND_LIMIT", def.HandLimit),
		"initialHand":          GetEnvInt("DEALROOM_INITIAL_HAND", def.InitialHand),
		"turnDraw":             GetEnvInt("DEALROOM_TURN_DRAW", def.TurnDraw),
		"emptyHandDraw":        GetEnvInt("DEALROOM_EMPTY_HAND_DRAW", def.EmptyHandDraw),
		"setsToWin":            GetEnvInt("DEALROOM_SETS_TO_WIN", def.SetsToWin),
		"minPlayers":           GetEnvInt("DEALROOM_MIN_PLAYERS", def.MinPlayers),
		"maxPlayers":           GetEnvInt("DEALROOM_MAX_PLAYERS", def.MaxPlayers),
		"freeMoneyPlays":       GetEnvBool("DEALROOM_FREE_MONEY_PLAYS", def.FreeMoneyPlays),
		"settleWithProperties": GetEnvBool("DEALROOM_SETTLE_WITH_PROPERTIES", def.SettleWithProperties),
		"reshuffleDiscard":     GetEnvBool("DEALROOM_RESHUFFLE_DISCARD", def.ReshuffleDiscard),
		"autoDraw":             GetEnvBool("DEALROOM_AUTO_DRAW", def.AutoDraw),
	}
	return game.ParseRules(overrides, def)
}
