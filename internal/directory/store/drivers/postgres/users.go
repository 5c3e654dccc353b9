package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/directory/domain"
)

type usersRepo struct {
	db DBTX
}

const userColumns = `id, username, password_hash, roles, deleted_at, version, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u         domain.User
		roles     string
		deletedAt sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &roles, &deletedAt, &u.Version, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Roles = splitRoles(roles)
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return u, nil
}

func (r *usersRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, roles)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		u.Username, u.PasswordHash, joinRoles(u.Roles),
	)
	created, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapUniqueViolation(err)
	}
	return created, nil
}

func (r *usersRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *usersRepo) Update(ctx context.Context, u domain.User) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET username = $2, password_hash = $3, roles = $4,
		    version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.Username, u.PasswordHash, joinRoles(u.Roles),
	)
	updated, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapUniqueViolation(err)
	}
	return updated, nil
}

func (r *usersRepo) SetDeletedAt(ctx context.Context, id int64, at *time.Time) (domain.User, error) {
	var deletedAt sql.NullTime
	if at != nil {
		deletedAt = sql.NullTime{Time: *at, Valid: true}
	}
	return scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET deleted_at = $2, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, deletedAt,
	))
}

func (r *usersRepo) Delete(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `DELETE FROM users WHERE id = $1 RETURNING `+userColumns, id))
}
