package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/backoffice/internal/directory/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrQueued        = errors.New("store: queued behind an earlier version")
)

// Users mutations bump version and return the updated row.
type Users interface {
	Create(ctx context.Context, u domain.User) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	Update(ctx context.Context, u domain.User) (domain.User, error)
	SetDeletedAt(ctx context.Context, id int64, at *time.Time) (domain.User, error)
	// Delete removes the row and returns it as it was.
	Delete(ctx context.Context, id int64) (domain.User, error)
}

type Outbox interface {
	Enqueue(ctx context.Context, m domain.OutboxMessage) error
	// ClaimPending locks up to limit unpublished rows, oldest first, skipping
	// rows another transaction holds. A row is only returned once every
	// earlier version of its identity is published, so one call yields at
	// most one row per identity. Only meaningful inside WithTx.
	ClaimPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	// ClaimByID locks one unpublished row. ErrNotFound means it is already
	// published or held by someone else. ErrQueued means an earlier version
	// of the same identity is still unpublished.
	ClaimByID(ctx context.Context, id uuid.UUID) (domain.OutboxMessage, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	CountPending(ctx context.Context) (int64, error)
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Repos interface {
	Users() Users
	Outbox() Outbox
}

type Store interface {
	Repos

	ApplyMigrations(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

type Tx interface {
	Repos
}
