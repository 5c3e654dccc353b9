package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type syncLogRepo struct {
	db DBTX
}

func (r *syncLogRepo) Reserve(ctx context.Context, key string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_messages (idempotency_key, processed_at) VALUES (?, ?)`,
		key, unix(at),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *syncLogRepo) Version(ctx context.Context, id int64) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx,
		`SELECT version FROM identity_versions WHERE identity_id = ?`, id,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (r *syncLogRepo) SetVersion(ctx context.Context, id, version int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identity_versions (identity_id, version) VALUES (?, ?)
		ON CONFLICT (identity_id) DO UPDATE SET version = excluded.version`,
		id, version,
	)
	return err
}

func (r *syncLogRepo) PruneProcessed(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM processed_messages WHERE processed_at < ?`, unix(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
