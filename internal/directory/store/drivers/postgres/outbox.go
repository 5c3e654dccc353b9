package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/backoffice/internal/directory/domain"
	"github.com/aussiebroadwan/backoffice/internal/directory/store"
)

type outboxRepo struct {
	db DBTX
}

const outboxColumns = `id, destination, identity_id, version, payload, created_at, published_at, attempts, last_error`

func scanOutbox(row interface{ Scan(...any) error }) (domain.OutboxMessage, error) {
	var (
		m           domain.OutboxMessage
		publishedAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.Destination, &m.IdentityID, &m.Version, &m.Payload, &m.CreatedAt, &publishedAt, &m.Attempts, &m.LastError); err != nil {
		return domain.OutboxMessage{}, mapNotFound(err)
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		m.PublishedAt = &t
	}
	return m, nil
}

func (r *outboxRepo) Enqueue(ctx context.Context, m domain.OutboxMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox (id, destination, identity_id, version, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Destination, m.IdentityID, m.Version, string(m.Payload),
	)
	return mapUniqueViolation(err)
}

// headOfLine keeps a row back while an earlier version of the same identity
// is still unpublished.
const headOfLine = `NOT EXISTS (
			SELECT 1 FROM outbox prev
			WHERE prev.identity_id = o.identity_id
			  AND prev.version < o.version
			  AND prev.published_at IS NULL)`

func (r *outboxRepo) ClaimPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox o
		WHERE published_at IS NULL AND `+headOfLine+`
		ORDER BY created_at, identity_id, version
		LIMIT $1
		FOR UPDATE OF o SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OutboxMessage
	for rows.Next() {
		m, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *outboxRepo) ClaimByID(ctx context.Context, id uuid.UUID) (domain.OutboxMessage, error) {
	m, err := scanOutbox(r.db.QueryRowContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox o
		WHERE id = $1 AND published_at IS NULL AND `+headOfLine+`
		FOR UPDATE OF o SKIP LOCKED`, id))
	if !errors.Is(err, store.ErrNotFound) {
		return m, err
	}

	var queued bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM outbox o
			WHERE id = $1 AND published_at IS NULL AND NOT `+headOfLine+`)`, id,
	).Scan(&queued); err != nil {
		return domain.OutboxMessage{}, err
	}
	if queued {
		return domain.OutboxMessage{}, store.ErrQueued
	}
	return domain.OutboxMessage{}, store.ErrNotFound
}

func (r *outboxRepo) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE outbox SET published_at = $2, attempts = attempts + 1, last_error = ''
		WHERE id = $1`, id, at))
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = attempts + 1, last_error = $2
		WHERE id = $1`, id, reason))
}

func (r *outboxRepo) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM outbox WHERE published_at IS NULL`).Scan(&n)
	return n, err
}

func (r *outboxRepo) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func expectOne(res sql.Result, err error) error {
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
