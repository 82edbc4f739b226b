// Package combo tracks chains of ability tags. Each use either advances the
// active chain, completes it, or breaks it; an idle decay timer breaks a
// chain that is not continued in time.
package combo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// ID identifies a combo definition.
type ID string

// Finisher is the reward for completing a chain.
type Finisher struct {
	BonusDamage int    `yaml:"bonus_damage"`
	Effect      string `yaml:"effect"`
	// Target is "enemy" (default) or "self".
	Target string `yaml:"target"`
}

// Def is a combo chain: each step names a tag the next ability must carry.
type Def struct {
	ID            ID       `yaml:"id"`
	Name          string   `yaml:"name"`
	Steps         []string `yaml:"steps"`
	DecayTurns    int      `yaml:"decay_turns"`
	BonusPerStack float64  `yaml:"bonus_per_stack"`
	Finisher      Finisher `yaml:"finisher"`
}

// Validate checks the definition's invariants.
func (d *Def) Validate() error {
	if d.ID == "" {
		return errors.New("combo def: id must not be empty")
	}
	if len(d.Steps) < 2 {
		return fmt.Errorf("combo def %q: needs at least 2 steps", d.ID)
	}
	for i, s := range d.Steps {
		if s == "" {
			return fmt.Errorf("combo def %q: step %d is empty", d.ID, i)
		}
	}
	if d.DecayTurns < 1 {
		return fmt.Errorf("combo def %q: decay_turns must be >= 1", d.ID)
	}
	if d.BonusPerStack < 0 {
		return fmt.Errorf("combo def %q: bonus_per_stack must be >= 0", d.ID)
	}
	if t := d.Finisher.Target; t != "" && t != "enemy" && t != "self" {
		return fmt.Errorf("combo def %q: finisher target must be enemy or self, got %q", d.ID, t)
	}
	return nil
}

// State is a combatant's chain progress. The zero value is "no chain".
//
// Invariant: Active == "" implies Stacks == 0, Step == 0 and DecayTimer == 0.
type State struct {
	Active     ID   `json:"active,omitempty"`
	Stacks     int  `json:"stacks"`
	Step       int  `json:"step"`
	DecayTimer int  `json:"decay_timer"`
	Advanced   bool `json:"advanced,omitempty"`
}

// Reset clears the chain.
func (s *State) Reset() { *s = State{} }

// Event names what Check did.
type Event string

const (
	EventNone      Event = ""
	EventStarted   Event = "started"
	EventAdvanced  Event = "advanced"
	EventCompleted Event = "completed"
	EventBroken    Event = "broken"
)

// Result reports one Check call. Multiplier applies to the damage of the
// ability that produced it.
type Result struct {
	Event      Event
	Combo      ID
	Name       string
	Stacks     int
	Multiplier float64
	Finisher   *Finisher
	Narrative  string
}

// Registry holds combo definitions in declaration order; the first matching
// definition wins when starting a chain.
type Registry struct {
	defs  map[ID]*Def
	order []ID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[ID]*Def)}
}

// Register adds def.
func (r *Registry) Register(def *Def) {
	if _, exists := r.defs[def.ID]; !exists {
		r.order = append(r.order, def.ID)
	}
	r.defs[def.ID] = def
}

// Get returns the definition for id.
func (r *Registry) Get(id ID) (*Def, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// All returns every definition in declaration order.
func (r *Registry) All() []*Def {
	out := make([]*Def, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// Check feeds the tags of a just-used ability into state.
//
// With a chain active, a match on the next step advances it and resets the
// decay timer; matching the last step completes it, grants the finisher and
// resets state. A mismatch breaks the chain and does not start a new one on
// the same use. With no chain active, the first definition whose first step
// matches is started at one stack.
//
// Precondition: state and reg must be non-nil.
// Postcondition: Result.Multiplier >= 1.
func Check(tags []string, state *State, reg *Registry) Result {
	if state.Active != "" {
		def, ok := reg.Get(state.Active)
		if !ok {
			state.Reset()
			return Result{Event: EventBroken, Multiplier: 1}
		}
		next := def.Steps[state.Step]
		if !hasTag(tags, next) {
			res := Result{Event: EventBroken, Combo: def.ID, Name: def.Name, Multiplier: 1,
				Narrative: fmt.Sprintf("The %s chain breaks.", def.Name)}
			state.Reset()
			return res
		}
		state.Stacks++
		state.Step++
		mult := 1 + float64(state.Stacks)*def.BonusPerStack
		if state.Step >= len(def.Steps) {
			fin := def.Finisher
			res := Result{Event: EventCompleted, Combo: def.ID, Name: def.Name, Stacks: state.Stacks,
				Multiplier: mult, Finisher: &fin, Narrative: fmt.Sprintf("%s complete!", def.Name)}
			state.Reset()
			return res
		}
		state.DecayTimer = def.DecayTurns
		state.Advanced = true
		return Result{Event: EventAdvanced, Combo: def.ID, Name: def.Name, Stacks: state.Stacks, Multiplier: mult,
			Narrative: fmt.Sprintf("%s x%d.", def.Name, state.Stacks)}
	}

	for _, def := range reg.All() {
		if !hasTag(tags, def.Steps[0]) {
			continue
		}
		*state = State{Active: def.ID, Stacks: 1, Step: 1, DecayTimer: def.DecayTurns, Advanced: true}
		return Result{Event: EventStarted, Combo: def.ID, Name: def.Name, Stacks: 1,
			Multiplier: 1 + def.BonusPerStack, Narrative: fmt.Sprintf("%s begins.", def.Name)}
	}
	return Result{Event: EventNone, Multiplier: 1}
}

// Tick runs end-of-turn decay. The turn a chain started or advanced it does
// not decay; otherwise the timer drops by one and the chain breaks at zero.
// It reports whether the chain broke.
func Tick(state *State) bool {
	if state.Active == "" {
		return false
	}
	if state.Advanced {
		state.Advanced = false
		return false
	}
	state.DecayTimer--
	if state.DecayTimer <= 0 {
		state.Reset()
		return true
	}
	return false
}

type defFile struct {
	Combos []*Def `yaml:"combos"`
}

// LoadFS parses every *.yaml file under dir holding a "combos" list. Files
// are read in lexical order, which fixes declaration order.
func LoadFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading combo dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".yaml") {
			continue
		}
		p := path.Join(dir, ent.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		var f defFile
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		for _, def := range f.Combos {
			if err := def.Validate(); err != nil {
				return nil, fmt.Errorf("loading %q: %w", p, err)
			}
			reg.Register(def)
		}
	}
	return reg, nil
}

// LoadDirectory is LoadFS over the host directory dir.
func LoadDirectory(dir string) (*Registry, error) {
	return LoadFS(os.DirFS(dir), ".")
}
