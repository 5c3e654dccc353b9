package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Repos groups the repositories available both on the root store and inside
// a transaction.
type Repos interface {
	Identities() Identities
	Credentials() Credentials
	SyncLog() SyncLog
}

// Store is the root data access interface implemented by drivers.
type Store interface {
	Repos

	ApplyMigrations() error

	// WithTx runs fn in one transaction, committing when fn returns nil.
	// Only use the Tx handed to fn inside it; the root store's repos bypass
	// the transaction.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx exposes the repos bound to one transaction. It cannot start another.
type Tx interface {
	Repos
}

type Identities interface {
	// GetByID includes soft-deleted identities.
	GetByID(ctx context.Context, id int64) (domain.Identity, error)

	// GetByUsername includes soft-deleted identities.
	GetByUsername(ctx context.Context, username string) (domain.Identity, error)

	// Upsert inserts or replaces the credential fields of an identity. A
	// soft-deleted identity stays soft-deleted.
	Upsert(ctx context.Context, i domain.Identity) error

	// SetDeletedAt soft-deletes (non-nil) or restores (nil) an identity. It
	// returns ErrNotFound when the identity is not mirrored.
	SetDeletedAt(ctx context.Context, id int64, at *time.Time) error

	// Delete removes the row. Missing rows are not an error.
	Delete(ctx context.Context, id int64) error
}

type Credentials interface {
	// Create inserts a record and returns its id.
	Create(ctx context.Context, c domain.Credential) (int64, error)

	GetByTokenHash(ctx context.Context, hash string) (domain.Credential, error)

	// ListActiveByOwner returns the owner's non-revoked records.
	ListActiveByOwner(ctx context.Context, ownerID int64) ([]domain.Credential, error)

	Revoke(ctx context.Context, ids ...int64) error

	// DeleteExpired removes records that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SyncLog holds the consumer's idempotency keys and per-identity versions.
type SyncLog interface {
	// Reserve records key and reports false when it was already present.
	Reserve(ctx context.Context, key string, at time.Time) (bool, error)

	// Version returns the last applied version for id, 0 when none.
	Version(ctx context.Context, id int64) (int64, error)

	SetVersion(ctx context.Context, id, version int64) error

	// PruneProcessed removes idempotency keys recorded before cutoff.
	PruneProcessed(ctx context.Context, cutoff time.Time) (int64, error)
}
