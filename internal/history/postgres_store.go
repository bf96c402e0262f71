package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps stacks in the cart_history table.
type PostgresStore struct {
	db DB
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Name implements Store.
func (s *PostgresStore) Name() string { return "postgres" }

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, key string) (Stacks, bool, error) {
	if s == nil || s.db == nil {
		return Stacks{}, false, ErrStoreUnavailable
	}
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT stacks FROM cart_history WHERE session_key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stacks{}, false, nil
		}
		return Stacks{}, false, err
	}
	var st Stacks
	if err := json.Unmarshal(data, &st); err != nil {
		return Stacks{}, false, err
	}
	return st, true, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, key string, st Stacks) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO cart_history (session_key, stacks, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (session_key) DO UPDATE SET stacks = EXCLUDED.stacks, updated_at = now()`,
		key, string(data))
	return err
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	_, err := s.db.Exec(ctx, `DELETE FROM cart_history WHERE session_key = $1`, key)
	return err
}

// PurgeOlderThan removes histories not written since cutoff and returns how many were removed.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrStoreUnavailable
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM cart_history WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
