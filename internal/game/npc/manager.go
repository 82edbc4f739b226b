package npc

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/dice"
	"github.com/cory-johannsen/delve/internal/game/effect"
)

// ErrNoTemplate is returned when no template fits a generation request.
var ErrNoTemplate = errors.New("no enemy template fits")

// Manager indexes enemy templates and generates floor-scaled enemies.
// All methods are safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]*Template
	effects   *effect.Registry
	roller    *dice.Roller
	logger    *zap.Logger
}

// NewManager creates an empty Manager. effects resolves innate template
// effects and may be nil.
//
// Precondition: roller and logger must be non-nil.
func NewManager(effects *effect.Registry, roller *dice.Roller, logger *zap.Logger) *Manager {
	if roller == nil {
		panic("npc.NewManager: roller must not be nil")
	}
	if logger == nil {
		panic("npc.NewManager: logger must not be nil")
	}
	return &Manager{
		templates: make(map[string]*Template),
		effects:   effects,
		roller:    roller,
		logger:    logger,
	}
}

// Add registers templates, replacing any with the same ID.
//
// Precondition: every template must have passed Validate.
func (m *Manager) Add(templates ...*Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range templates {
		m.templates[t.ID] = t
	}
}

// Get returns the template with the given ID.
//
// Postcondition: Returns (tmpl, true) if found, or (nil, false) otherwise.
func (m *Manager) Get(id string) (*Template, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	return t, ok
}

// Spawn creates an enemy from template id scaled to floor.
//
// Postcondition: Returns an error if id is unknown.
func (m *Manager) Spawn(id string, floor int, theme string) (*combat.Combatant, error) {
	t, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("npc template %q not found", id)
	}
	return t.Spawn(floor, theme, m.effects)
}

// Candidates returns the templates that fit floor and theme, sorted by ID.
// Bosses are returned only when boss is true, regular enemies only when it
// is false.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (m *Manager) Candidates(floor int, theme string, boss bool) []*Template {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Template, 0, len(m.templates))
	for _, t := range m.templates {
		if t.IsBoss() == boss && t.Fits(floor, theme) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Generate picks a weighted random regular enemy for floor and theme and
// spawns it.
//
// Postcondition: Returns an error wrapping ErrNoTemplate when nothing fits.
func (m *Manager) Generate(floor int, theme string) (*combat.Combatant, error) {
	return m.generate(floor, theme, false)
}

// GenerateBoss is Generate over boss templates.
func (m *Manager) GenerateBoss(floor int, theme string) (*combat.Combatant, error) {
	return m.generate(floor, theme, true)
}

func (m *Manager) generate(floor int, theme string, boss bool) (*combat.Combatant, error) {
	cands := m.Candidates(floor, theme, boss)
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: floor %d theme %q boss %t", ErrNoTemplate, floor, theme, boss)
	}
	total := 0
	for _, t := range cands {
		total += max(1, t.Weight)
	}
	pick := m.roller.Between("enemy", 1, total)
	chosen := cands[len(cands)-1]
	for _, t := range cands {
		pick -= max(1, t.Weight)
		if pick <= 0 {
			chosen = t
			break
		}
	}
	c, err := chosen.Spawn(floor, theme, m.effects)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("enemy generated",
		zap.String("template", chosen.ID),
		zap.Int("floor", floor),
		zap.String("theme", theme),
		zap.Int("level", c.Level),
	)
	return c, nil
}
