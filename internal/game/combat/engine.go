package combat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/combo"
	"github.com/cory-johannsen/delve/internal/game/dice"
	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/hazard"
	"github.com/cory-johannsen/delve/internal/game/sustained"
	"github.com/cory-johannsen/delve/internal/narrative"
)

var (
	// ErrEncounterNotFound is returned for an unknown encounter id.
	ErrEncounterNotFound = errors.New("encounter not found")
	// ErrNotPlayerTurn is returned when a player command arrives outside
	// the player's turn.
	ErrNotPlayerTurn = errors.New("not the player's turn")
	// ErrInvalidCombatant is returned when Start receives a combatant of the
	// wrong role or already at zero health.
	ErrInvalidCombatant = errors.New("invalid combatant")
)

// ScriptScope is the scripting scope trigger hooks are resolved in.
const ScriptScope = "effects"

// Rules are the tunable numbers of combat resolution.
type Rules struct {
	CritMultiplier float64
	DefenseFactor  float64
	Variance       int
	FleeBaseChance float64
	FleePerLevel   float64
	FleeMaxChance  float64
	XPPerLevel     int
	// RewardFloor and RewardCeil bound narrator reward suggestions as a
	// fraction of the base reward.
	RewardFloor float64
	RewardCeil  float64
}

// DefaultRules returns the standard combat numbers.
func DefaultRules() Rules {
	return Rules{
		CritMultiplier: 1.5,
		DefenseFactor:  0.5,
		Variance:       2,
		FleeBaseChance: 0.4,
		FleePerLevel:   0.05,
		FleeMaxChance:  1,
		XPPerLevel:     100,
		RewardFloor:    0.5,
		RewardCeil:     1.5,
	}
}

// Enricher supplies narration for encounter outcomes. Implementations must
// not fail; *narrative.Service satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, req narrative.Request) narrative.Result
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Effects   *effect.Registry
	Abilities *ability.Registry
	Combos    *combo.Registry
	// Scripts resolves Lua trigger hooks; may be nil.
	Scripts effect.ScriptCaller
	// Narrator may be nil, in which case narrative.Fallback is used.
	Narrator Enricher
	// Brain picks enemy actions; nil means AttackBrain.
	Brain  Brain
	Roller *dice.Roller
	Rules  Rules
	Logger *zap.Logger
	// Tracer may be nil, in which case the global provider is used.
	Tracer trace.Tracer
}

// Engine manages active encounters keyed by encounter id.
// All methods are safe for concurrent use; commands against one encounter
// are serialised by that encounter's lock.
type Engine struct {
	mu         sync.RWMutex
	encounters map[string]*Encounter

	effects    *effect.Registry
	abilities  *ability.Engine
	sustained  *sustained.Engine
	combos     *combo.Registry
	dispatcher *effect.Dispatcher
	narrator   Enricher
	brain      Brain
	roller     *dice.Roller
	rules      Rules
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewEngine creates an Engine.
//
// Precondition: d.Effects, d.Abilities, d.Combos, d.Roller and d.Logger must be non-nil.
// Postcondition: Returns an Engine with no encounters.
func NewEngine(d Deps) *Engine {
	brain := d.Brain
	if brain == nil {
		brain = AttackBrain{}
	}
	tracer := d.Tracer
	if tracer == nil {
		tracer = otel.Tracer("delve/combat")
	}
	return &Engine{
		encounters: make(map[string]*Encounter),
		effects:    d.Effects,
		abilities:  ability.NewEngine(d.Abilities, d.Effects, d.Logger),
		sustained:  sustained.NewEngine(d.Effects, d.Logger),
		combos:     d.Combos,
		dispatcher: effect.NewDispatcher(d.Scripts, ScriptScope, d.Logger),
		narrator:   d.Narrator,
		brain:      brain,
		roller:     d.Roller,
		rules:      d.Rules,
		logger:     d.Logger,
		tracer:     tracer,
	}
}

// Abilities returns the ability engine used for validation and execution.
func (e *Engine) Abilities() *ability.Engine { return e.abilities }

// Rules returns the engine's rules.
func (e *Engine) Rules() Rules { return e.rules }

// Start opens an encounter between player and enemy with optional companions
// in room. Room hazards are applied to every participant and combat_start
// triggers fire.
//
// Precondition: player has a *Player role; enemy has an *Enemy or *Boss role;
// both are alive. room may be nil.
// Postcondition: the encounter is in PhasePlayerTurn at turn 1.
func (e *Engine) Start(ctx context.Context, player, enemy *Combatant, companions []*Combatant, room *hazard.Room) (*Encounter, *TurnReport, error) {
	if player == nil || !player.IsPlayer() || !player.Alive() {
		return nil, nil, fmt.Errorf("%w: player must be a living player", ErrInvalidCombatant)
	}
	if enemy == nil || !enemy.Alive() {
		return nil, nil, fmt.Errorf("%w: enemy must be alive", ErrInvalidCombatant)
	}
	switch enemy.Role.(type) {
	case *Enemy, *Boss:
	case *Player, *Companion:
		return nil, nil, fmt.Errorf("%w: %s cannot be the opponent", ErrInvalidCombatant, enemy.Kind())
	}
	for _, c := range companions {
		if _, ok := c.Role.(*Companion); !ok {
			return nil, nil, fmt.Errorf("%w: %s is not a companion", ErrInvalidCombatant, c.Name)
		}
	}
	if room == nil {
		room = hazard.NewRoom("")
	}

	_, span := e.tracer.Start(ctx, "combat.start", trace.WithAttributes(
		attribute.String("combat.enemy", enemy.Name),
		attribute.String("combat.enemy_kind", string(enemy.Kind())),
		attribute.Int("combat.floor", enemy.Floor()),
	))
	defer span.End()

	player.ResetForEncounter()
	enemy.ResetForEncounter()
	enc := &Encounter{
		ID:         uuid.NewString(),
		Floor:      enemy.Floor(),
		Phase:      PhasePlayerTurn,
		Turn:       1,
		Player:     player,
		Enemy:      enemy,
		Companions: append([]*Combatant(nil), companions...),
		Room:       room,
		guard:      effect.NewGuard(),
	}
	span.SetAttributes(attribute.String("combat.encounter", enc.ID))
	e.beginReport(enc)
	enc.emit(Event{Kind: EventStart, ActorID: player.ID, TargetID: enemy.ID,
		Narrative: fmt.Sprintf("%s faces %s.", player.Name, enemy.Name)})

	for _, c := range enc.participants() {
		e.applyRoomHazards(enc, c)
	}
	for _, c := range enc.participants() {
		e.fire(enc, c, enc.opponentOf(c), effect.CombatStart, 0, 0)
	}
	e.settle(enc)
	e.conclude(ctx, enc, false)

	e.mu.Lock()
	e.encounters[enc.ID] = enc
	e.mu.Unlock()

	e.logger.Info("encounter started",
		zap.String("encounter", enc.ID),
		zap.String("player", player.Name),
		zap.String("enemy", enemy.Name),
		zap.Int("floor", enc.Floor),
	)
	return enc, e.finishReport(enc), nil
}

// Get returns the encounter with id.
func (e *Engine) Get(id string) (*Encounter, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	enc, ok := e.encounters[id]
	return enc, ok
}

// End forgets encounter id. The enemy is discarded with it; the player and
// companions live on with their effects and cooldowns.
func (e *Engine) End(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.encounters, id)
}

// Len returns the number of tracked encounters.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.encounters)
}

// Attack resolves a player basic attack as the player's turn.
func (e *Engine) Attack(ctx context.Context, id string) (*TurnReport, error) {
	return e.Act(ctx, id, Action{Type: ActionAttack})
}

// UseAbility resolves a player ability as the player's turn. A rejected
// ability returns a *stats.ValidationError, consumes no turn and changes
// nothing.
func (e *Engine) UseAbility(ctx context.Context, id string, abilityID ability.ID) (*TurnReport, error) {
	return e.Act(ctx, id, Action{Type: ActionAbility, Ability: abilityID})
}

// Flee attempts to escape as the player's turn.
func (e *Engine) Flee(ctx context.Context, id string) (*TurnReport, error) {
	return e.Act(ctx, id, Action{Type: ActionFlee})
}

// Act resolves one full turn driven by the player's action: ResolveAction,
// EnemyTurn, ResolveEnemyAction, EndOfTurn, then the win/loss check. Free
// actions are handed to ChangeStance or ToggleSustained and leave the turn
// open.
//
// Precondition: the encounter is in PhasePlayerTurn.
// Postcondition: on error nothing changed; otherwise the encounter is in
// PhasePlayerTurn of the next turn or a terminal phase.
func (e *Engine) Act(ctx context.Context, id string, a Action) (*TurnReport, error) {
	if a.Type.Free() {
		if a.Type == ActionChangeStance {
			return e.ChangeStance(id, a.Stance)
		}
		return e.ToggleSustained(id, a.Sustained)
	}
	enc, err := e.lockTurn(id)
	if err != nil {
		return nil, err
	}
	defer enc.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "combat.turn", trace.WithAttributes(
		attribute.String("combat.encounter", enc.ID),
		attribute.Int("combat.turn", enc.Turn),
		attribute.String("combat.action", a.Type.String()),
	))
	defer span.End()

	switch a.Type {
	case ActionAttack, ActionAbility, ActionFlee, ActionPass:
	default:
		return nil, fmt.Errorf("unsupported player action %q", a.Type)
	}
	if a.Type == ActionAbility {
		if _, err := e.abilities.Check(enc.Player.caster(), a.Ability); err != nil {
			e.logger.Info("ability rejected",
				zap.String("encounter", enc.ID),
				zap.String("ability", string(a.Ability)),
				zap.Error(err),
			)
			return nil, err
		}
	}

	e.beginReport(enc)
	enc.guard.Reset()

	enc.Phase = PhaseResolveAction
	enemyActs := true
	switch a.Type {
	case ActionAttack:
		e.basicAttack(enc, enc.Player, enc.Enemy, 0)
	case ActionAbility:
		if err := e.useAbility(enc, enc.Player, a.Ability); err != nil {
			enc.Phase = PhasePlayerTurn
			enc.report = nil
			return nil, err
		}
	case ActionFlee:
		if e.attemptFlee(ctx, enc) {
			span.SetAttributes(attribute.String("combat.phase", enc.Phase.String()))
			return e.finishReport(enc), nil
		}
		// The free attack on a failed flee is the enemy's action this turn.
		enc.Phase = PhaseResolveEnemyAction
		e.basicAttack(enc, enc.Enemy, enc.Player, 0)
		enemyActs = false
	case ActionPass:
		enc.emit(Event{Kind: EventPass, ActorID: enc.Player.ID, Narrative: fmt.Sprintf("%s waits.", enc.Player.Name)})
	}

	if enemyActs && enc.Enemy.Alive() && enc.Player.Alive() {
		enc.Phase = PhaseEnemyTurn
		choice := e.brain.Choose(enc, enc.Enemy)
		enc.Phase = PhaseResolveEnemyAction
		e.enemyAction(enc, enc.Enemy, choice)
	}
	if enc.Enemy.Alive() && enc.Player.Alive() {
		e.companionActions(enc)
	}

	enc.Phase = PhaseEndOfTurn
	e.endOfTurn(enc)
	e.conclude(ctx, enc, true)

	span.SetAttributes(attribute.String("combat.phase", enc.Phase.String()))
	return e.finishReport(enc), nil
}

// ChangeStance switches the player's stance. It is a free action.
func (e *Engine) ChangeStance(id string, s Stance) (*TurnReport, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown stance %q", s)
	}
	enc, err := e.lockTurn(id)
	if err != nil {
		return nil, err
	}
	defer enc.mu.Unlock()
	e.beginReport(enc)
	enc.Player.Stance = s
	enc.emit(Event{Kind: EventStance, ActorID: enc.Player.ID, Narrative: fmt.Sprintf("%s takes a %s stance.", enc.Player.Name, s)})
	return e.finishReport(enc), nil
}

// ToggleSustained activates an inactive sustained ability or deactivates an
// active one. It is a free action. Activation failures are validation errors
// and change nothing.
func (e *Engine) ToggleSustained(id string, sid sustained.ID) (*TurnReport, error) {
	enc, err := e.lockTurn(id)
	if err != nil {
		return nil, err
	}
	defer enc.mu.Unlock()
	p := enc.Player
	inst := sustained.Find(p.Sustained, sid)
	if inst == nil {
		return nil, fmt.Errorf("%q is not a sustained ability of %s", sid, p.Name)
	}
	e.beginReport(enc)
	if inst.Active {
		e.sustained.Deactivate(inst, p.Effects)
		enc.emit(Event{Kind: EventSustained, ActorID: p.ID, Narrative: fmt.Sprintf("%s ends %s.", p.Name, inst.Def.Name)})
		return e.finishReport(enc), nil
	}
	pools, err := e.sustained.Activate(inst, p.pools(), p.Sustained, p.Effects)
	if err != nil {
		e.logger.Info("sustained rejected",
			zap.String("encounter", enc.ID),
			zap.String("ability", string(sid)),
			zap.Error(err),
		)
		enc.report = nil
		return nil, err
	}
	p.setPools(pools)
	enc.emit(Event{Kind: EventSustained, ActorID: p.ID, Narrative: fmt.Sprintf("%s begins %s.", p.Name, inst.Def.Name)})
	e.settle(enc)
	return e.finishReport(enc), nil
}

// lockTurn looks up id and locks it, failing unless it is the player's turn.
// On success the caller must unlock enc.mu.
func (e *Engine) lockTurn(id string) (*Encounter, error) {
	enc, ok := e.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEncounterNotFound, id)
	}
	enc.mu.Lock()
	if enc.Phase != PhasePlayerTurn {
		phase := enc.Phase
		enc.mu.Unlock()
		return nil, fmt.Errorf("%w: encounter is in %s", ErrNotPlayerTurn, phase)
	}
	return enc, nil
}

func (e *Engine) beginReport(enc *Encounter) *TurnReport {
	enc.report = &TurnReport{EncounterID: enc.ID, Turn: enc.Turn}
	return enc.report
}

func (e *Engine) finishReport(enc *Encounter) *TurnReport {
	rep := enc.report
	enc.report = nil
	if rep == nil {
		rep = &TurnReport{EncounterID: enc.ID, Turn: enc.Turn}
	}
	rep.Phase = enc.Phase
	rep.Rewards = enc.Rewards
	return rep
}
