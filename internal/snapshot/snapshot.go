// Package snapshot converts combatants to and from a stable JSON document.
// Everything the engines need to resume a combatant is captured: effects
// with their remaining durations and stacks, cooldown and level maps,
// sustained toggles, combo progress and the role record.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/combo"
	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/stats"
	"github.com/cory-johannsen/delve/internal/game/sustained"
)

// Version is the current document version. Deserialize rejects others.
const Version = 1

// ErrVersion is returned for documents of an unsupported version.
var ErrVersion = errors.New("unsupported snapshot version")

// Snapshot is the serialized form of a combat.Combatant.
type Snapshot struct {
	Version      int                   `json:"version"`
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Kind         combat.Kind           `json:"kind"`
	Role         json.RawMessage       `json:"role"`
	Level        int                   `json:"level"`
	ClassID      string                `json:"class_id,omitempty"`
	Tags         []string              `json:"tags,omitempty"`
	Base         stats.Stats           `json:"base"`
	Equipment    []stats.Equipment     `json:"equipment,omitempty"`
	Resource     stats.Resource        `json:"resource"`
	RegenPerTurn int                   `json:"regen_per_turn"`
	Effects      *effect.Set           `json:"effects"`
	Abilities    *ability.Book         `json:"abilities"`
	Sustained    []*sustained.Instance `json:"sustained,omitempty"`
	Combo        combo.State           `json:"combo"`
	Stance       combat.Stance         `json:"stance"`
}

// Take captures c.
//
// Precondition: c and c.Role must be non-nil.
func Take(c *combat.Combatant) (*Snapshot, error) {
	role, err := json.Marshal(c.Role)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encoding %s role: %w", c.Kind(), err)
	}
	return &Snapshot{
		Version:      Version,
		ID:           c.ID,
		Name:         c.Name,
		Kind:         c.Kind(),
		Role:         role,
		Level:        c.Level,
		ClassID:      c.ClassID,
		Tags:         c.Tags,
		Base:         c.Base,
		Equipment:    c.Equipment,
		Resource:     c.Resource,
		RegenPerTurn: c.RegenPerTurn,
		Effects:      c.Effects,
		Abilities:    c.Abilities,
		Sustained:    c.Sustained,
		Combo:        c.Combo,
		Stance:       c.Stance,
	}, nil
}

// Restore rebuilds the combatant. Nil effect sets and ability books come back
// empty rather than nil.
//
// Postcondition: returns ErrVersion for a foreign version and an error for
// an unknown role kind.
func (s *Snapshot) Restore() (*combat.Combatant, error) {
	if s.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	role, err := decodeRole(s.Kind, s.Role)
	if err != nil {
		return nil, err
	}
	c := &combat.Combatant{
		ID:           s.ID,
		Name:         s.Name,
		Role:         role,
		Level:        s.Level,
		ClassID:      s.ClassID,
		Tags:         s.Tags,
		Base:         s.Base,
		Equipment:    s.Equipment,
		Resource:     s.Resource,
		RegenPerTurn: s.RegenPerTurn,
		Effects:      s.Effects,
		Abilities:    s.Abilities,
		Sustained:    s.Sustained,
		Combo:        s.Combo,
		Stance:       s.Stance,
	}
	if c.Effects == nil {
		c.Effects = effect.NewSet()
	}
	if c.Abilities == nil {
		c.Abilities = ability.NewBook()
	}
	return c, nil
}

func decodeRole(kind combat.Kind, raw json.RawMessage) (combat.Role, error) {
	var role combat.Role
	switch kind {
	case combat.KindPlayer:
		role = &combat.Player{}
	case combat.KindEnemy:
		role = &combat.Enemy{}
	case combat.KindBoss:
		role = &combat.Boss{}
	case combat.KindCompanion:
		role = &combat.Companion{}
	default:
		return nil, fmt.Errorf("snapshot: unknown role kind %q", kind)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, role); err != nil {
			return nil, fmt.Errorf("snapshot: decoding %s role: %w", kind, err)
		}
	}
	return role, nil
}

// Serialize encodes c as a JSON document.
func Serialize(c *combat.Combatant) ([]byte, error) {
	s, err := Take(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// Deserialize decodes a document produced by Serialize.
func Deserialize(data []byte) (*combat.Combatant, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: decoding: %w", err)
	}
	return s.Restore()
}
