package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/snapshot"
)

// ErrSnapshotNotFound is returned when a save slot is empty.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotInfo summarises one save slot without decoding its document.
type SnapshotInfo struct {
	Slot        string
	CombatantID string
	Name        string
	Kind        combat.Kind
	Level       int
	UpdatedAt   time.Time
}

// SnapshotRepository stores serialized combatants in named save slots.
type SnapshotRepository struct {
	db *pgxpool.Pool
}

// NewSnapshotRepository creates a SnapshotRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewSnapshotRepository(db *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save writes c into slot, replacing whatever the slot held.
//
// Precondition: slot must be non-empty; c must be non-nil with a role.
// Postcondition: a subsequent Load(slot) returns an equivalent combatant.
func (r *SnapshotRepository) Save(ctx context.Context, slot string, c *combat.Combatant) error {
	if slot == "" {
		return fmt.Errorf("saving snapshot: slot must not be empty")
	}
	doc, err := snapshot.Serialize(c)
	if err != nil {
		return fmt.Errorf("saving snapshot %q: %w", slot, err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO combatant_snapshots (slot, combatant_id, name, kind, level, document)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slot) DO UPDATE SET
			combatant_id = EXCLUDED.combatant_id,
			name         = EXCLUDED.name,
			kind         = EXCLUDED.kind,
			level        = EXCLUDED.level,
			document     = EXCLUDED.document,
			updated_at   = NOW()`,
		slot, c.ID, c.Name, string(c.Kind()), c.Level, doc,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %q: %w", slot, err)
	}
	return nil
}

// Load reads and restores the combatant in slot.
//
// Postcondition: Returns ErrSnapshotNotFound if the slot is empty.
func (r *SnapshotRepository) Load(ctx context.Context, slot string) (*combat.Combatant, error) {
	var doc []byte
	err := r.db.QueryRow(ctx,
		`SELECT document FROM combatant_snapshots WHERE slot = $1`, slot,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("loading snapshot %q: %w", slot, err)
	}
	c, err := snapshot.Deserialize(doc)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %q: %w", slot, err)
	}
	return c, nil
}

// Delete empties slot.
//
// Postcondition: Returns ErrSnapshotNotFound if the slot was already empty.
func (r *SnapshotRepository) Delete(ctx context.Context, slot string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM combatant_snapshots WHERE slot = $1`, slot)
	if err != nil {
		return fmt.Errorf("deleting snapshot %q: %w", slot, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSnapshotNotFound
	}
	return nil
}

// List returns every occupied slot, most recently saved first.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (r *SnapshotRepository) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := r.db.Query(ctx, `
		SELECT slot, combatant_id, name, kind, level, updated_at
		FROM combatant_snapshots
		ORDER BY updated_at DESC, slot`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]SnapshotInfo, 0)
	for rows.Next() {
		var (
			info SnapshotInfo
			kind string
		)
		if err := rows.Scan(&info.Slot, &info.CombatantID, &info.Name, &kind, &info.Level, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		info.Kind = combat.Kind(kind)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return out, nil
}
