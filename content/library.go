package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/ai"
	"github.com/cory-johannsen/delve/internal/game/class"
	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/combo"
	"github.com/cory-johannsen/delve/internal/game/dice"
	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/hazard"
	"github.com/cory-johannsen/delve/internal/game/npc"
	"github.com/cory-johannsen/delve/internal/game/sustained"
	"github.com/cory-johannsen/delve/internal/scripting"
)

// Directory layout shared by the embedded FS and on-disk overrides.
const (
	EffectsDir       = "effects"
	AbilitiesDir     = "abilities"
	SustainedDir     = "sustained"
	CombosDir        = "combos"
	HazardsDir       = "hazards"
	ClassesDir       = "classes"
	EnemiesDir       = "enemies"
	DomainsDir       = "ai"
	EffectScriptsDir = "scripts/effects"
	AIScriptsDir     = "scripts/ai"
)

// Library is every definition the engines need, loaded from one tree.
type Library struct {
	Effects   *effect.Registry
	Abilities *ability.Registry
	Sustained *sustained.Registry
	Combos    *combo.Registry
	Hazards   *hazard.Registry
	Classes   *class.Registry
	Enemies   []*npc.Template
	Domains   []*ai.Domain

	fsys fs.FS
}

// Default loads the embedded definitions.
func Default() (*Library, error) {
	return Load(FS)
}

// LoadDir loads definitions from the host directory dir.
//
// Precondition: dir must be a readable directory laid out like FS.
func LoadDir(dir string) (*Library, error) {
	return Load(os.DirFS(dir))
}

// Open returns LoadDir(dir) when dir is non-empty and Default otherwise.
func Open(dir string) (*Library, error) {
	if dir == "" {
		return Default()
	}
	return LoadDir(dir)
}

// Load reads every definition directory in fsys. A missing directory yields
// an empty registry; a malformed file is an error.
//
// Postcondition: on success every cross reference between definitions
// resolves (see Validate).
func Load(fsys fs.FS) (*Library, error) {
	lib := &Library{
		Effects:   effect.NewRegistry(),
		Abilities: ability.NewRegistry(),
		Sustained: sustained.NewRegistry(),
		Combos:    combo.NewRegistry(),
		Hazards:   hazard.NewRegistry(),
		Classes:   class.NewRegistry(),
		fsys:      fsys,
	}

	var err error
	if present(fsys, EffectsDir) {
		if lib.Effects, err = effect.LoadFS(fsys, EffectsDir); err != nil {
			return nil, fmt.Errorf("loading effects: %w", err)
		}
	}
	if present(fsys, AbilitiesDir) {
		if lib.Abilities, err = ability.LoadFS(fsys, AbilitiesDir); err != nil {
			return nil, fmt.Errorf("loading abilities: %w", err)
		}
	}
	if present(fsys, SustainedDir) {
		if lib.Sustained, err = sustained.LoadFS(fsys, SustainedDir); err != nil {
			return nil, fmt.Errorf("loading sustained abilities: %w", err)
		}
	}
	if present(fsys, CombosDir) {
		if lib.Combos, err = combo.LoadFS(fsys, CombosDir); err != nil {
			return nil, fmt.Errorf("loading combos: %w", err)
		}
	}
	if present(fsys, HazardsDir) {
		if lib.Hazards, err = hazard.LoadFS(fsys, HazardsDir); err != nil {
			return nil, fmt.Errorf("loading hazards: %w", err)
		}
	}
	if present(fsys, ClassesDir) {
		if lib.Classes, err = class.LoadFS(fsys, ClassesDir); err != nil {
			return nil, fmt.Errorf("loading classes: %w", err)
		}
	}
	if present(fsys, EnemiesDir) {
		if lib.Enemies, err = npc.LoadFS(fsys, EnemiesDir); err != nil {
			return nil, fmt.Errorf("loading enemies: %w", err)
		}
	}
	if present(fsys, DomainsDir) {
		if lib.Domains, err = ai.LoadFS(fsys, DomainsDir); err != nil {
			return nil, fmt.Errorf("loading ai domains: %w", err)
		}
	}

	if err := lib.Validate(); err != nil {
		return nil, err
	}
	return lib, nil
}

func present(fsys fs.FS, dir string) bool {
	info, err := fs.Stat(fsys, dir)
	return err == nil && info.IsDir()
}

// Validate checks that every id one definition names is defined: ability and
// self effects, sustained constant effects, combo finisher effects, class
// abilities and sustained abilities, enemy abilities, innate effects, enrage
// effects and AI domains, and AI operator abilities.
//
// Postcondition: Returns nil, or one error listing every dangling reference.
func (l *Library) Validate() error {
	var errs []error
	needEffect := func(owner, id string) {
		if _, ok := l.Effects.Get(id); !ok {
			errs = append(errs, fmt.Errorf("%s: unknown effect %q", owner, id))
		}
	}
	needAbility := func(owner string, id ability.ID) {
		if _, ok := l.Abilities.Get(id); !ok {
			errs = append(errs, fmt.Errorf("%s: unknown ability %q", owner, id))
		}
	}

	for _, a := range l.Abilities.All() {
		for _, id := range a.AppliesEffects {
			needEffect("ability "+string(a.ID), id)
		}
		for _, id := range a.SelfEffects {
			needEffect("ability "+string(a.ID), id)
		}
	}
	for _, s := range l.Sustained.All() {
		needEffect("sustained "+string(s.ID), s.ConstantEffect)
	}
	for _, c := range l.Combos.All() {
		if c.Finisher.Effect != "" {
			needEffect("combo "+string(c.ID), c.Finisher.Effect)
		}
	}
	for _, c := range l.Classes.All() {
		for _, id := range c.Abilities {
			needAbility("class "+c.ID, id)
		}
		for _, id := range c.Sustained {
			if _, ok := l.Sustained.Get(id); !ok {
				errs = append(errs, fmt.Errorf("class %s: unknown sustained ability %q", c.ID, id))
			}
		}
	}

	domains := make(map[string]bool, len(l.Domains))
	for _, d := range l.Domains {
		domains[d.ID] = true
		for _, op := range d.Operators {
			if op.Action == ai.OpAbility {
				needAbility("ai domain "+d.ID, ability.ID(op.Ability))
			}
		}
	}
	for _, t := range l.Enemies {
		owner := "enemy " + t.ID
		for _, id := range t.Abilities {
			needAbility(owner, id)
		}
		for _, id := range t.Effects {
			needEffect(owner, id)
		}
		if t.Boss != nil && t.Boss.EnrageEffect != "" {
			needEffect(owner, t.Boss.EnrageEffect)
		}
		if t.AIDomain != "" && !domains[t.AIDomain] {
			errs = append(errs, fmt.Errorf("%s: unknown ai domain %q", owner, t.AIDomain))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("content validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// LoadScripts loads the effect trigger hooks into combat.ScriptScope and the
// AI preconditions into ai.ScriptScope. Missing script directories are
// skipped.
//
// Precondition: m must be non-nil.
func (l *Library) LoadScripts(m *scripting.Manager) error {
	scopes := []struct{ scope, dir string }{
		{combat.ScriptScope, EffectScriptsDir},
		{ai.ScriptScope, AIScriptsDir},
	}
	for _, s := range scopes {
		if !present(l.fsys, s.dir) {
			continue
		}
		if err := m.LoadFS(s.scope, l.fsys, s.dir); err != nil {
			return fmt.Errorf("loading %s scripts: %w", s.scope, err)
		}
	}
	return nil
}

// Planners registers every AI domain against caller.
func (l *Library) Planners(caller ai.ScriptCaller) (*ai.Registry, error) {
	reg := ai.NewRegistry()
	if err := reg.RegisterAll(l.Domains, caller, ai.ScriptScope); err != nil {
		return nil, err
	}
	return reg, nil
}

// NPCs returns an npc.Manager holding every enemy template.
//
// Precondition: roller and logger must be non-nil.
func (l *Library) NPCs(roller *dice.Roller, logger *zap.Logger) *npc.Manager {
	m := npc.NewManager(l.Effects, roller, logger)
	m.Add(l.Enemies...)
	return m
}

// Themes returns the distinct enemy themes in first-seen order.
func (l *Library) Themes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range l.Enemies {
		for _, th := range t.Themes {
			if !seen[th] {
				seen[th] = true
				out = append(out, th)
			}
		}
	}
	return out
}
