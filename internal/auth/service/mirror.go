package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/auth/domain"
	"github.com/aussiebroadwan/backoffice/internal/auth/store"
	"github.com/aussiebroadwan/backoffice/internal/identitysync"
	"github.com/aussiebroadwan/backoffice/pkg/cryptox"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

// Outcome says what Apply did with a message.
type Outcome int

const (
	Applied Outcome = iota
	Duplicate
	Stale
	Rejected
	Deferred
)

// ErrOutOfOrder means an earlier version of the identity has not been
// applied yet. The message is left pending and redelivered.
var ErrOutOfOrder = errors.New("sync message ahead of mirrored version")

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	case Rejected:
		return "rejected"
	case Deferred:
		return "deferred"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MirrorService keeps the local identity mirror in step with the Identity
// Directory.
type MirrorService struct {
	Store  store.Store
	Tokens *TokenService
	Now    func() time.Time
}

func NewMirrorService(st store.Store, tokens *TokenService) *MirrorService {
	return &MirrorService{Store: st, Tokens: tokens, Now: time.Now}
}

// Handle adapts Apply to identitysync.Handler.
func (m *MirrorService) Handle(ctx context.Context, env identitysync.Envelope) error {
	_, err := m.Apply(ctx, env)
	return err
}

// Apply records the message's idempotency key, drops it if already seen or
// older than the mirrored version, and otherwise applies it, all in one
// transaction. Versions must arrive contiguously per identity: a message
// that skips ahead is deferred with ErrOutOfOrder and nothing is recorded.
// Version 0 means the sender does not version and always applies.
func (m *MirrorService) Apply(ctx context.Context, env identitysync.Envelope) (Outcome, error) {
	l := slogx.FromContext(ctx).With(
		slog.String("op", string(env.Op)),
		slog.Int64("identity_id", env.IdentityID),
		slog.Int64("version", env.Version),
	)

	if err := env.Validate(); err != nil {
		l.Error("rejecting sync message", slog.Any("error", err))
		return Rejected, nil
	}
	if env.Snapshot != nil && !cryptox.IsPasswordHash(env.Snapshot.Password) {
		l.Error("rejecting sync message", slog.String("error", "snapshot password is not a bcrypt hash"))
		return Rejected, nil
	}

	outcome := Applied
	err := m.Store.WithTx(ctx, func(tx store.Tx) error {
		fresh, err := tx.SyncLog().Reserve(ctx, env.IdempotencyKey(), m.Now())
		if err != nil {
			return err
		}
		if !fresh {
			outcome = Duplicate
			return nil
		}

		if env.Version > 0 {
			current, err := tx.SyncLog().Version(ctx, env.IdentityID)
			if err != nil {
				return err
			}
			if env.Version <= current {
				outcome = Stale
				return nil
			}
			if env.Version > current+1 {
				outcome = Deferred
				return fmt.Errorf("%w: have %d, got %d", ErrOutOfOrder, current, env.Version)
			}
			if err := tx.SyncLog().SetVersion(ctx, env.IdentityID, env.Version); err != nil {
				return err
			}
		}

		return m.mutate(ctx, tx, env)
	})
	if err != nil {
		if outcome == Deferred {
			l.Info("deferring sync message", slog.Any("error", err))
		}
		return outcome, fmt.Errorf("apply %s: %w", env.IdempotencyKey(), err)
	}

	// Runs on redelivery too, so a cache failure here is retried.
	if err := m.revokeIfGone(ctx, env); err != nil {
		return outcome, err
	}

	l.Info("sync message processed", slog.String("outcome", outcome.String()))
	return outcome, nil
}

func (m *MirrorService) mutate(ctx context.Context, tx store.Tx, env identitysync.Envelope) error {
	ids := tx.Identities()

	switch env.Op {
	case identitysync.OpCreate, identitysync.OpUpdate:
		return ids.Upsert(ctx, domain.Identity{
			ID:           env.IdentityID,
			Username:     env.Snapshot.Username,
			PasswordHash: env.Snapshot.Password,
			Roles:        env.Snapshot.Roles,
		})
	case identitysync.OpDelete:
		at := env.OccurredAt
		if at.IsZero() {
			at = m.Now()
		}
		return ids.SetDeletedAt(ctx, env.IdentityID, &at)
	case identitysync.OpRestore:
		return ids.SetDeletedAt(ctx, env.IdentityID, nil)
	case identitysync.OpDeletePermanent:
		return ids.Delete(ctx, env.IdentityID)
	}
	return fmt.Errorf("%w: unknown op %q", identitysync.ErrInvalidEnvelope, env.Op)
}

// revokeIfGone revokes the identity's tokens after a delete when the mirror
// still shows it deleted or absent.
func (m *MirrorService) revokeIfGone(ctx context.Context, env identitysync.Envelope) error {
	if env.Op != identitysync.OpDelete && env.Op != identitysync.OpDeletePermanent {
		return nil
	}
	if m.Tokens == nil {
		return nil
	}

	ident, err := m.Store.Identities().GetByID(ctx, env.IdentityID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	case !ident.Deleted():
		return nil
	}

	return m.Tokens.RevokeAllForUser(ctx, env.IdentityID)
}
