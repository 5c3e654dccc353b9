package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/auth/domain"
	"github.com/aussiebroadwan/backoffice/internal/auth/store"
)

type identitiesRepo struct {
	db DBTX
}

const identityColumns = `id, username, password_hash, roles, deleted_at, updated_at`

func scanIdentity(row *sql.Row) (domain.Identity, error) {
	var (
		i         domain.Identity
		roles     string
		deletedAt sql.NullInt64
		updatedAt int64
	)
	if err := row.Scan(&i.ID, &i.Username, &i.PasswordHash, &roles, &deletedAt, &updatedAt); err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	i.Roles = splitRoles(roles)
	i.DeletedAt = mapNullTimePtr(deletedAt)
	i.UpdatedAt = fromUnix(updatedAt)
	return i, nil
}

func (r *identitiesRepo) GetByID(ctx context.Context, id int64) (domain.Identity, error) {
	return scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = ?`, id))
}

func (r *identitiesRepo) GetByUsername(ctx context.Context, username string) (domain.Identity, error) {
	return scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE username = ?`, username))
}

func (r *identitiesRepo) Upsert(ctx context.Context, i domain.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, username, password_hash, roles, deleted_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, ?)
		ON CONFLICT (id) DO UPDATE SET
			username      = excluded.username,
			password_hash = excluded.password_hash,
			roles         = excluded.roles,
			updated_at    = excluded.updated_at`,
		i.ID, i.Username, i.PasswordHash, strings.Join(i.Roles, " "), unix(time.Now()),
	)
	return mapUniqueViolation(err)
}

func (r *identitiesRepo) SetDeletedAt(ctx context.Context, id int64, at *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE identities SET deleted_at = ?, updated_at = ? WHERE id = ?`,
		mapOptionalTime(at), unix(time.Now()), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *identitiesRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	return err
}
