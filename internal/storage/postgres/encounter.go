package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/delve/internal/game/combat"
)

// ErrResultRecorded is returned when an encounter's outcome was already stored.
var ErrResultRecorded = errors.New("encounter result already recorded")

// EncounterResult is the stored outcome of one finished encounter.
type EncounterResult struct {
	ID          int64
	EncounterID string
	PlayerID    string
	EnemyName   string
	Floor       int
	Outcome     string
	Turns       int
	XP          int
	Gold        int
	Narrative   string
	RecordedAt  time.Time
}

// ResultOf summarises a finished encounter.
//
// Precondition: enc must be non-nil with Player and Enemy set.
// Postcondition: Returns an error if enc has not reached a terminal phase.
func ResultOf(enc *combat.Encounter) (EncounterResult, error) {
	if !enc.Phase.Over() {
		return EncounterResult{}, fmt.Errorf("encounter %s is still in phase %s", enc.ID, enc.Phase)
	}
	res := EncounterResult{
		EncounterID: enc.ID,
		PlayerID:    enc.Player.ID,
		EnemyName:   enc.Enemy.Name,
		Floor:       max(1, enc.Floor),
		Outcome:     enc.Phase.String(),
		Turns:       enc.Turn,
	}
	if enc.Rewards != nil {
		res.XP = enc.Rewards.XP
		res.Gold = enc.Rewards.Gold
		res.Narrative = enc.Rewards.Narrative
	}
	return res, nil
}

// EncounterResultRepository records finished encounters.
type EncounterResultRepository struct {
	db *pgxpool.Pool
}

// NewEncounterResultRepository creates an EncounterResultRepository backed by
// the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewEncounterResultRepository(db *pgxpool.Pool) *EncounterResultRepository {
	return &EncounterResultRepository{db: db}
}

// Record inserts res.
//
// Postcondition: Returns res with ID and RecordedAt set, or ErrResultRecorded
// if the encounter was recorded before.
func (r *EncounterResultRepository) Record(ctx context.Context, res EncounterResult) (EncounterResult, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO encounter_results
			(encounter_id, player_id, enemy_name, floor, outcome, turns, xp, gold, narrative)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, recorded_at`,
		res.EncounterID, res.PlayerID, res.EnemyName, res.Floor, res.Outcome,
		res.Turns, res.XP, res.Gold, res.Narrative,
	).Scan(&res.ID, &res.RecordedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return EncounterResult{}, ErrResultRecorded
		}
		return EncounterResult{}, fmt.Errorf("inserting encounter result: %w", err)
	}
	return res, nil
}

// ListByPlayer returns up to limit results for playerID, newest first.
//
// Precondition: limit must be > 0.
// Postcondition: Returns a non-nil slice (may be empty).
func (r *EncounterResultRepository) ListByPlayer(ctx context.Context, playerID string, limit int) ([]EncounterResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, encounter_id, player_id, enemy_name, floor, outcome, turns, xp, gold, narrative, recorded_at
		FROM encounter_results
		WHERE player_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2`,
		playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing encounter results: %w", err)
	}
	defer rows.Close()

	out := make([]EncounterResult, 0)
	for rows.Next() {
		var res EncounterResult
		if err := rows.Scan(&res.ID, &res.EncounterID, &res.PlayerID, &res.EnemyName, &res.Floor,
			&res.Outcome, &res.Turns, &res.XP, &res.Gold, &res.Narrative, &res.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning encounter result: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing encounter results: %w", err)
	}
	return out, nil
}

// Tally counts outcomes for playerID keyed by outcome name.
//
// Postcondition: Returns a non-nil map (may be empty).
func (r *EncounterResultRepository) Tally(ctx context.Context, playerID string) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT outcome, COUNT(*)
		FROM encounter_results
		WHERE player_id = $1
		GROUP BY outcome`,
		playerID,
	)
	if err != nil {
		return nil, fmt.Errorf("tallying encounter results: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning tally: %w", err)
		}
		out[outcome] = n
	}
	return out, rows.Err()
}
