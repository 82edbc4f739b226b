// Package narrative enriches combat outcomes with flavor text and reward
// suggestions from an external text-generation service. Everything it
// returns is untrusted; the combat engine clamps numbers and never waits on
// it beyond a bounded timeout.
package narrative

import (
	"context"
	"fmt"
)

// Kind names the event being narrated.
type Kind string

const (
	KindVictory Kind = "victory"
	KindDefeat  Kind = "defeat"
	KindFlee    Kind = "flee"
	KindLevelUp Kind = "level_up"
)

// Request is the structured context sent to a Narrator.
type Request struct {
	Kind      Kind   `json:"kind"`
	Subject   string `json:"subject"`
	Floor     int    `json:"floor"`
	Level     int    `json:"level"`
	Health    int    `json:"health"`
	MaxHealth int    `json:"max_health"`
	BaseXP    int    `json:"base_xp"`
	BaseGold  int    `json:"base_gold"`
}

// Result is a narration. XP and Gold are suggestions; zero means none.
type Result struct {
	Text     string `json:"text"`
	XP       int    `json:"xp"`
	Gold     int    `json:"gold"`
	Fallback bool   `json:"-"`
}

// Narrator generates a Result for a Request.
type Narrator interface {
	Narrate(ctx context.Context, req Request) (Result, error)
}

// Fallback returns the deterministic narration used whenever the narrator is
// disabled, slow, or failing. Its rewards equal the request's base values.
//
// Postcondition: Result.Fallback is true; Text is non-empty.
func Fallback(req Request) Result {
	var text string
	switch req.Kind {
	case KindVictory:
		text = fmt.Sprintf("%s falls. You gain %d XP and %d gold.", req.Subject, req.BaseXP, req.BaseGold)
	case KindDefeat:
		text = fmt.Sprintf("You fall to %s on floor %d.", req.Subject, req.Floor)
	case KindFlee:
		text = fmt.Sprintf("You escape from %s.", req.Subject)
	case KindLevelUp:
		text = fmt.Sprintf("You reach level %d.", req.Level)
	default:
		text = "The dungeon is silent."
	}
	return Result{Text: text, XP: req.BaseXP, Gold: req.BaseGold, Fallback: true}
}
