// Package service implements identity directory mutations. Every mutation
// commits together with its sync message (transactional outbox) and then
// tries to publish it straight away.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/backoffice/internal/directory/domain"
	"github.com/aussiebroadwan/backoffice/internal/directory/store"
	"github.com/aussiebroadwan/backoffice/internal/identitysync"
	"github.com/aussiebroadwan/backoffice/pkg/cryptox"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrUsernameTaken  = errors.New("username already in use")
	ErrInvalidInput   = errors.New("invalid user input")
	ErrAlreadyInState = errors.New("user already in requested state")

	// ErrSynchronizationDispatchFailed means the mutation is committed but
	// its sync message could not be published yet. The relay retries it.
	ErrSynchronizationDispatchFailed = errors.New("synchronization dispatch failed")
)

const (
	maxUsernameLen    = 64
	minPasswordLength = 8
)

var roleName = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Dispatcher publishes one outbox row now. It returns nil when another
// worker already holds or published the row, and an error when the row
// stays pending.
type Dispatcher interface {
	Dispatch(ctx context.Context, id uuid.UUID) error
}

// UserInput is a create or update request. An empty Password on update
// keeps the current hash.
type UserInput struct {
	Username string
	Password string
	Roles    []string
}

// Result is a committed mutation. Published is false when the sync message
// is still waiting in the outbox.
type Result struct {
	User      domain.User
	Published bool
}

type Service struct {
	Store      store.Store
	Dispatcher Dispatcher
	Hasher     cryptox.Hasher
	Now        func() time.Time
}

func New(st store.Store, d Dispatcher, hasher cryptox.Hasher) *Service {
	return &Service{Store: st, Dispatcher: d, Hasher: hasher, Now: time.Now}
}

func (s *Service) GetUser(ctx context.Context, id int64) (domain.User, error) {
	u, err := s.Store.Users().GetByID(ctx, id)
	return u, mapStoreErr(err)
}

func (s *Service) CreateUser(ctx context.Context, in UserInput) (Result, error) {
	in, err := normalize(in, true)
	if err != nil {
		return Result{}, err
	}
	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return Result{}, err
	}

	return s.mutate(ctx, identitysync.OpCreate, func(tx store.Tx) (domain.User, error) {
		return tx.Users().Create(ctx, domain.User{Username: in.Username, PasswordHash: hash, Roles: in.Roles})
	})
}

func (s *Service) UpdateUser(ctx context.Context, id int64, in UserInput) (Result, error) {
	in, err := normalize(in, false)
	if err != nil {
		return Result{}, err
	}
	var hash string
	if in.Password != "" {
		if hash, err = s.Hasher.Hash(in.Password); err != nil {
			return Result{}, err
		}
	}

	return s.mutate(ctx, identitysync.OpUpdate, func(tx store.Tx) (domain.User, error) {
		current, err := tx.Users().GetByID(ctx, id)
		if err != nil {
			return domain.User{}, err
		}
		current.Username = in.Username
		current.Roles = in.Roles
		if hash != "" {
			current.PasswordHash = hash
		}
		return tx.Users().Update(ctx, current)
	})
}

// SoftDeleteUser marks the user deleted. Their tokens are revoked once the
// credential service applies the message.
func (s *Service) SoftDeleteUser(ctx context.Context, id int64) (Result, error) {
	return s.mutate(ctx, identitysync.OpDelete, func(tx store.Tx) (domain.User, error) {
		current, err := tx.Users().GetByID(ctx, id)
		if err != nil {
			return domain.User{}, err
		}
		if current.Deleted() {
			return domain.User{}, ErrAlreadyInState
		}
		now := s.Now().UTC()
		return tx.Users().SetDeletedAt(ctx, id, &now)
	})
}

func (s *Service) RestoreUser(ctx context.Context, id int64) (Result, error) {
	return s.mutate(ctx, identitysync.OpRestore, func(tx store.Tx) (domain.User, error) {
		current, err := tx.Users().GetByID(ctx, id)
		if err != nil {
			return domain.User{}, err
		}
		if !current.Deleted() {
			return domain.User{}, ErrAlreadyInState
		}
		return tx.Users().SetDeletedAt(ctx, id, nil)
	})
}

// DeleteUserPermanently removes the row. The message carries the version
// the row would have had next so it orders after every earlier mutation.
func (s *Service) DeleteUserPermanently(ctx context.Context, id int64) (Result, error) {
	return s.mutate(ctx, identitysync.OpDeletePermanent, func(tx store.Tx) (domain.User, error) {
		gone, err := tx.Users().Delete(ctx, id)
		if err != nil {
			return domain.User{}, err
		}
		gone.Version++
		return gone, nil
	})
}

// mutate runs apply and enqueues its sync message in one transaction, then
// dispatches the message.
func (s *Service) mutate(ctx context.Context, op identitysync.Op, apply func(tx store.Tx) (domain.User, error)) (Result, error) {
	var (
		user  domain.User
		msgID = uuid.New()
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if user, err = apply(tx); err != nil {
			return err
		}

		env := identitysync.NewEnvelope(op, user.ID, user.Version, &identitysync.Snapshot{
			Username: user.Username,
			Password: user.PasswordHash,
			Roles:    user.Roles,
		})
		payload, err := json.Marshal(env)
		if err != nil {
			return err
		}

		return tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			ID:          msgID,
			Destination: op.Destination(),
			IdentityID:  user.ID,
			Version:     user.Version,
			Payload:     payload,
		})
	})
	if err != nil {
		return Result{}, mapStoreErr(err)
	}

	log := slogx.FromContext(ctx).With(
		slog.String("op", string(op)),
		slog.Int64("identity_id", user.ID),
		slog.Int64("version", user.Version),
	)

	if err := s.Dispatcher.Dispatch(ctx, msgID); err != nil {
		log.Warn("sync dispatch failed, left for relay", slog.Any("error", err))
		return Result{User: user}, fmt.Errorf("%w: %w", ErrSynchronizationDispatchFailed, err)
	}

	log.Info("user mutated")
	return Result{User: user, Published: true}, nil
}

func normalize(in UserInput, create bool) (UserInput, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || len(in.Username) > maxUsernameLen || strings.ContainsAny(in.Username, " \t\r\n") {
		return in, fmt.Errorf("%w: username must be 1-%d characters without spaces", ErrInvalidInput, maxUsernameLen)
	}
	if (create || in.Password != "") && len(in.Password) < minPasswordLength {
		return in, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	roles := make([]string, 0, len(in.Roles))
	for _, r := range in.Roles {
		r = strings.ToUpper(strings.TrimSpace(r))
		if !roleName.MatchString(r) {
			return in, fmt.Errorf("%w: role %q", ErrInvalidInput, r)
		}
		if !slices.Contains(roles, r) {
			roles = append(roles, r)
		}
	}
	in.Roles = roles
	return in, nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrUsernameTaken
	}
	return err
}
