package effect

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cory-johannsen/delve/internal/game/stats"
)

// Set is the ordered list of effects on one combatant. Order is insertion
// order and is the order ticks and triggers are evaluated in.
// It is not safe for concurrent use; the caller must serialise access.
//
// Invariant: no two instances share an ID.
type Set struct {
	effects []*Instance
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{}
}

// Apply adds inst, or merges it into the existing instance with the same ID
// according to that instance's stacking policy:
//   - refresh: the remaining duration is reset to inst's duration.
//   - stack: stacks grow by inst.Stacks up to the cap, the duration becomes the
//     longer of the two (permanent wins), and each modifier field keeps the
//     larger magnitude.
//
// Precondition: inst must not be nil and must have Duration == -1 or >= 1.
// Postcondition: Has(inst.ID); returns the live instance now in the set.
func (s *Set) Apply(inst *Instance) (*Instance, error) {
	if inst == nil {
		return nil, errors.New("effect.Set.Apply: instance must not be nil")
	}
	if inst.Duration != Permanent && inst.Duration < 1 {
		return nil, fmt.Errorf("effect.Set.Apply: %q has invalid duration %d", inst.ID, inst.Duration)
	}
	existing := s.Get(inst.ID)
	if existing == nil {
		if inst.Stacks < 1 {
			inst.Stacks = 1
		}
		inst.Stacks = min(inst.Stacks, inst.stackCap())
		s.effects = append(s.effects, inst)
		return inst, nil
	}

	switch existing.Stacking {
	case Stack:
		existing.Stacks = min(existing.Stacks+max(1, inst.Stacks), existing.stackCap())
		existing.Duration = longer(existing.Duration, inst.Duration)
		existing.Modifiers = stats.Severest(existing.Modifiers, inst.Modifiers)
	default:
		existing.Duration = inst.Duration
	}
	return existing, nil
}

func longer(a, b int) int {
	if a == Permanent || b == Permanent {
		return Permanent
	}
	return max(a, b)
}

// Get returns the instance with the given effect id, or nil.
func (s *Set) Get(id string) *Instance {
	for _, e := range s.effects {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Has reports whether an effect with id is active.
func (s *Set) Has(id string) bool { return s.Get(id) != nil }

// Stacks returns the stack count for id, or 0 if absent.
func (s *Set) Stacks(id string) int {
	if e := s.Get(id); e != nil {
		return e.Stacks
	}
	return 0
}

// Len returns the number of active effects.
func (s *Set) Len() int { return len(s.effects) }

// All returns the active effects in order. The slice is a copy; the
// instances are shared and must not be mutated by the caller.
func (s *Set) All() []*Instance {
	out := make([]*Instance, len(s.effects))
	copy(out, s.effects)
	return out
}

// Remove deletes the effect with id and returns it, or nil if absent.
//
// Postcondition: !Has(id).
func (s *Set) Remove(id string) *Instance {
	return s.removeWhere(func(e *Instance) bool { return e.ID == id })
}

// RemoveInstance deletes the instance with the given instance ID.
func (s *Set) RemoveInstance(instanceID string) *Instance {
	return s.removeWhere(func(e *Instance) bool { return e.InstanceID == instanceID })
}

// RemoveBySource deletes every instance attributed to src and returns them.
// Instances with the same name from other sources are untouched.
func (s *Set) RemoveBySource(src Source) []*Instance {
	var removed []*Instance
	kept := s.effects[:0]
	for _, e := range s.effects {
		if e.Source == src {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	clear(s.effects[len(kept):])
	s.setEffects(kept)
	return removed
}

func (s *Set) removeWhere(match func(*Instance) bool) *Instance {
	for i, e := range s.effects {
		if match(e) {
			s.setEffects(append(s.effects[:i], s.effects[i+1:]...))
			return e
		}
	}
	return nil
}

// Clear removes every effect.
func (s *Set) Clear() { s.effects = nil }

// Modifiers returns the additive sum of every active effect's modifiers.
// Modifiers are not multiplied by stacks.
func (s *Set) Modifiers() stats.Modifiers {
	var total stats.Modifiers
	for _, e := range s.effects {
		total = total.Add(e.Modifiers)
	}
	return total
}

// TickResult reports one end-of-turn pass over a Set. Damage and Heal are
// summed separately so the caller can apply damage before healing.
type TickResult struct {
	Damage        int
	Heal          int
	ResourceDrain int
	Expired       []*Instance
	Narratives    []string
}

// Tick evaluates every effect once in insertion order: tick payloads are
// multiplied by stacks and summed, non-permanent durations drop by one, and
// any effect reaching 0 is removed in this same pass. Health is not touched.
//
// Postcondition: every instance in result.Expired is no longer in the set;
// permanent effects are never decremented or expired.
func (s *Set) Tick() TickResult {
	var res TickResult
	kept := s.effects[:0]
	for _, e := range s.effects {
		if !e.Tick.IsZero() {
			dmg := e.Tick.Damage * e.Stacks
			heal := e.Tick.Heal * e.Stacks
			drain := e.Tick.ResourceDrain * e.Stacks
			res.Damage += dmg
			res.Heal += heal
			res.ResourceDrain += drain
			res.Narratives = append(res.Narratives, tickNarrative(e, dmg, heal, drain))
		}
		if !e.Permanent() {
			e.Duration--
			if e.Duration <= 0 {
				res.Expired = append(res.Expired, e)
				res.Narratives = append(res.Narratives, fmt.Sprintf("%s wears off.", e.Name))
				continue
			}
		}
		kept = append(kept, e)
	}
	clear(s.effects[len(kept):])
	s.setEffects(kept)
	return res
}

// setEffects stores effects, normalising an empty list to nil.
func (s *Set) setEffects(effects []*Instance) {
	if len(effects) == 0 {
		effects = nil
	}
	s.effects = effects
}

func tickNarrative(e *Instance, dmg, heal, drain int) string {
	switch {
	case dmg > 0 && heal > 0:
		return fmt.Sprintf("%s deals %d damage and restores %d health.", e.Name, dmg, heal)
	case dmg > 0:
		return fmt.Sprintf("%s deals %d damage.", e.Name, dmg)
	case heal > 0:
		return fmt.Sprintf("%s restores %d health.", e.Name, heal)
	default:
		return fmt.Sprintf("%s drains %d resource.", e.Name, drain)
	}
}

// MarshalJSON encodes the set as its ordered instance list.
func (s *Set) MarshalJSON() ([]byte, error) {
	if s.effects == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.effects)
}

// UnmarshalJSON restores a set encoded by MarshalJSON.
func (s *Set) UnmarshalJSON(data []byte) error {
	var effects []*Instance
	if err := json.Unmarshal(data, &effects); err != nil {
		return err
	}
	s.setEffects(effects)
	return nil
}
