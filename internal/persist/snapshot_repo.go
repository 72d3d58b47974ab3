package persist

import (
	"context"
	"fmt"
)

// EntityRow is one persisted entity record. The spatial grid is never
// stored; it is rebuilt by relinking after a restore.
type EntityRow struct {
	ID        int32
	Archetype string
	Solid     int16
	OriginX   float64
	OriginY   float64
	OriginZ   float64
	VelX      float64
	VelY      float64
	VelZ      float64
}

type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// LoadAll returns every persisted entity, ordered by id.
func (r *SnapshotRepo) LoadAll(ctx context.Context) ([]EntityRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, archetype, solid,
		        origin_x, origin_y, origin_z,
		        vel_x, vel_y, vel_z
		 FROM entities
		 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EntityRow
	for rows.Next() {
		var e EntityRow
		if err := rows.Scan(
			&e.ID, &e.Archetype, &e.Solid,
			&e.OriginX, &e.OriginY, &e.OriginZ,
			&e.VelX, &e.VelY, &e.VelZ,
		); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// SaveAll upserts the given rows in one transaction.
func (r *SnapshotRepo) SaveAll(ctx context.Context, entities []EntityRow) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entities {
		if _, err := tx.Exec(ctx,
			`INSERT INTO entities (
				id, archetype, solid,
				origin_x, origin_y, origin_z,
				vel_x, vel_y, vel_z, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
			ON CONFLICT (id) DO UPDATE SET
				archetype = EXCLUDED.archetype,
				solid = EXCLUDED.solid,
				origin_x = EXCLUDED.origin_x,
				origin_y = EXCLUDED.origin_y,
				origin_z = EXCLUDED.origin_z,
				vel_x = EXCLUDED.vel_x,
				vel_y = EXCLUDED.vel_y,
				vel_z = EXCLUDED.vel_z,
				updated_at = now()`,
			e.ID, e.Archetype, e.Solid,
			e.OriginX, e.OriginY, e.OriginZ,
			e.VelX, e.VelY, e.VelZ,
		); err != nil {
			return fmt.Errorf("upsert entity %d: %w", e.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

// Delete removes one persisted entity record.
func (r *SnapshotRepo) Delete(ctx context.Context, id int32) error {
	if _, err := r.db.Pool.Exec(ctx,
		`DELETE FROM entities WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("delete entity %d: %w", id, err)
	}
	return nil
}
