package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no snapshot exists for the key.
var ErrNotFound = errors.New("snapshot not found")

// Repository stores agent and grid snapshots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository connects to PostgreSQL and returns a repository.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// SaveAgent upserts an encoded agent snapshot.
func (r *Repository) SaveAgent(ctx context.Context, rec AgentRecord) error {
	data, err := EncodeAgent(rec)
	if err != nil {
		return fmt.Errorf("encoding agent %d: %w", rec.ID, err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO ai_agents (id, type_name, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE
		 SET type_name = EXCLUDED.type_name, data = EXCLUDED.data, updated_at = now()`,
		int64(rec.ID), rec.TypeName, data,
	)
	if err != nil {
		return fmt.Errorf("saving agent %d: %w", rec.ID, err)
	}
	return nil
}

// LoadAgent fetches and decodes an agent snapshot.
func (r *Repository) LoadAgent(ctx context.Context, id uint64) (AgentRecord, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM ai_agents WHERE id = $1`, int64(id),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AgentRecord{}, ErrNotFound
		}
		return AgentRecord{}, fmt.Errorf("loading agent %d: %w", id, err)
	}
	return DecodeAgent(data)
}

// DeleteAgent removes an agent snapshot. Missing rows are not an
// error.
func (r *Repository) DeleteAgent(ctx context.Context, id uint64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM ai_agents WHERE id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("deleting agent %d: %w", id, err)
	}
	return nil
}

// ListAgentIDs returns the ids of all stored agent snapshots.
func (r *Repository) ListAgentIDs(ctx context.Context) ([]uint64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM ai_agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning agent id: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

// SaveGrid upserts a named grid snapshot.
func (r *Repository) SaveGrid(ctx context.Context, name string, rec GridRecord) error {
	data, err := EncodeGrid(rec)
	if err != nil {
		return fmt.Errorf("encoding grid %q: %w", name, err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO ai_grids (name, version, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (name) DO UPDATE
		 SET version = EXCLUDED.version, data = EXCLUDED.data, updated_at = now()`,
		name, int64(rec.Version), data,
	)
	if err != nil {
		return fmt.Errorf("saving grid %q: %w", name, err)
	}
	return nil
}

// LoadGrid fetches and decodes a named grid snapshot.
func (r *Repository) LoadGrid(ctx context.Context, name string) (GridRecord, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM ai_grids WHERE name = $1`, name,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GridRecord{}, ErrNotFound
		}
		return GridRecord{}, fmt.Errorf("loading grid %q: %w", name, err)
	}
	return DecodeGrid(data)
}
