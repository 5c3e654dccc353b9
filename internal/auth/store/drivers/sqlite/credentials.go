package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/auth/domain"
)

type credentialsRepo struct {
	db DBTX
}

func (r *credentialsRepo) Create(ctx context.Context, c domain.Credential) (int64, error) {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (owner_id, token_hash, revoked, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.OwnerID, c.TokenHash, c.Revoked, unix(c.ExpiresAt), unix(createdAt),
	)
	if err != nil {
		return 0, mapUniqueViolation(err)
	}
	return res.LastInsertId()
}

func (r *credentialsRepo) GetByTokenHash(ctx context.Context, hash string) (domain.Credential, error) {
	var (
		c                    domain.Credential
		expiresAt, createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, token_hash, revoked, expires_at, created_at
		FROM credentials WHERE token_hash = ?`, hash,
	).Scan(&c.ID, &c.OwnerID, &c.TokenHash, &c.Revoked, &expiresAt, &createdAt)
	if err != nil {
		return domain.Credential{}, mapNotFound(err)
	}
	c.ExpiresAt = fromUnix(expiresAt)
	c.CreatedAt = fromUnix(createdAt)
	return c, nil
}

func (r *credentialsRepo) ListActiveByOwner(ctx context.Context, ownerID int64) ([]domain.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, token_hash, revoked, expires_at, created_at
		FROM credentials WHERE owner_id = ? AND revoked = 0
		ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Credential
	for rows.Next() {
		var (
			c                    domain.Credential
			expiresAt, createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.TokenHash, &c.Revoked, &expiresAt, &createdAt); err != nil {
			return nil, err
		}
		c.ExpiresAt = fromUnix(expiresAt)
		c.CreatedAt = fromUnix(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *credentialsRepo) Revoke(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET revoked = 1 WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func (r *credentialsRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE expires_at < ?`, unix(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
