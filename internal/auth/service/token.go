package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/auth/domain"
	"github.com/aussiebroadwan/backoffice/internal/auth/store"
	"github.com/aussiebroadwan/backoffice/internal/revocation"
	"github.com/aussiebroadwan/backoffice/pkg/cryptox"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidRefresh       = errors.New("invalid refresh token")
	ErrUsernameExtraction   = errors.New("username extraction failed")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidToken         = errors.New("invalid token")
)

// RefreshRotation is the refresh token policy. When false, refresh returns
// the presented refresh token unchanged and it stays usable until it
// expires; logout revokes only the access credential.
const RefreshRotation = false

// Introspection is the result of Validate.
type Introspection struct {
	Claims    jwtx.Claims
	LoggedOut bool
}

// TokenService issues, validates and revokes bearer tokens for mirrored
// identities.
type TokenService struct {
	Codec      jwtx.Codec
	Store      store.Store
	Cache      revocation.Cache
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	locks userLocks
}

func NewTokenService(codec jwtx.Codec, st store.Store, cache revocation.Cache, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	return &TokenService{
		Codec:      codec,
		Store:      st,
		Cache:      cache,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
	}
}

// Login checks the password against the mirrored identity, revokes every
// token the user holds and issues a new access and refresh token.
func (s *TokenService) Login(ctx context.Context, username, password string) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.TokenPair{}, ErrAuthenticationFailed
	}

	ident, err := s.Store.Identities().GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		l.Info("login failed", slog.String("reason", "unknown user"))
		return domain.TokenPair{}, ErrAuthenticationFailed
	}
	if err != nil {
		return domain.TokenPair{}, err
	}
	if ident.Deleted() {
		l.Info("login failed", slog.String("reason", "deleted user"), slog.Int64("identity_id", ident.ID))
		return domain.TokenPair{}, ErrAuthenticationFailed
	}

	if err := cryptox.VerifyPassword(password, ident.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Error("stored password hash unusable", slog.Int64("identity_id", ident.ID), slog.Any("error", err))
		}
		return domain.TokenPair{}, ErrAuthenticationFailed
	}

	refresh, _, err := s.Codec.SignRefresh(ident.Username, s.RefreshTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}

	pair, err := s.issue(ctx, ident, refresh)
	if err != nil {
		return domain.TokenPair{}, err
	}

	l.Info("login succeeded", slog.Int64("identity_id", ident.ID))
	return pair, nil
}

// Refresh issues a new access token for the subject of refreshToken. The
// refresh token itself is returned unchanged.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	if refreshToken == "" {
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	claims, err := s.Codec.Validate(refreshToken)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidRefresh, err)
	}
	// Access tokens carry authorities; refresh tokens never do.
	if claims.Authorities != nil {
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	username := strings.TrimSpace(claims.Username())
	if username == "" {
		return domain.TokenPair{}, ErrUsernameExtraction
	}

	ident, err := s.Store.Identities().GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) || (err == nil && ident.Deleted()) {
		return domain.TokenPair{}, ErrUserNotFound
	}
	if err != nil {
		return domain.TokenPair{}, err
	}

	return s.issue(ctx, ident, refreshToken)
}

// issue revokes the owner's active credentials and mints a new access
// token. Old tokens are flagged in the cache before anything else changes,
// so a failure part way leaves them rejected rather than usable.
func (s *TokenService) issue(ctx context.Context, ident domain.Identity, refresh string) (domain.TokenPair, error) {
	unlock := s.locks.Lock(ident.ID)
	defer unlock()

	active, err := s.Store.Credentials().ListActiveByOwner(ctx, ident.ID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	flagged := credentialIDs(active)
	if err := s.Cache.MarkLoggedOut(ctx, flagged...); err != nil {
		return domain.TokenPair{}, fmt.Errorf("revoke cached tokens: %w", err)
	}

	access, claims, err := s.Codec.SignAccess(ident.Username, ident.Roles, s.AccessTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}

	var (
		credID int64
		late   []int64
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// Another instance may have issued since the list above.
		current, err := tx.Credentials().ListActiveByOwner(ctx, ident.ID)
		if err != nil {
			return err
		}
		ids := credentialIDs(current)
		for _, id := range ids {
			if !slices.Contains(flagged, id) {
				late = append(late, id)
			}
		}
		if err := tx.Credentials().Revoke(ctx, ids...); err != nil {
			return err
		}

		credID, err = tx.Credentials().Create(ctx, domain.Credential{
			OwnerID:   ident.ID,
			TokenHash: cryptox.FingerprintToken(access),
			ExpiresAt: claims.ExpiresAt.Time,
		})
		return err
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	if err := s.Cache.MarkLoggedOut(ctx, late...); err != nil {
		return domain.TokenPair{}, fmt.Errorf("revoke cached tokens: %w", err)
	}
	// Until this lands the new token reads as not found and is rejected.
	if err := s.Cache.RecordIssuedToken(ctx, credID, access, s.AccessTTL); err != nil {
		return domain.TokenPair{}, fmt.Errorf("record issued token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessTTL.Seconds()),
	}, nil
}

// Validate verifies the token and reports whether it was logged out. A token
// the cache does not know is reported as logged out.
func (s *TokenService) Validate(ctx context.Context, token string) (Introspection, error) {
	claims, err := s.Codec.Validate(token)
	if err != nil {
		return Introspection{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	loggedOut, err := s.Cache.IsLoggedOut(ctx, token)
	if errors.Is(err, revocation.ErrTokenNotFound) {
		loggedOut, err = true, nil
	}
	if err != nil {
		return Introspection{}, err
	}
	return Introspection{Claims: claims, LoggedOut: loggedOut}, nil
}

// IsExpired reports whether a correctly signed token is past its exp.
func (s *TokenService) IsExpired(token string) (bool, error) {
	expired, err := s.Codec.IsExpired(token)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return expired, nil
}

// Logout revokes the credential behind token, flagging the cache first. An
// expired but correctly signed token is accepted. Unknown or already revoked
// tokens are a no-op.
func (s *TokenService) Logout(ctx context.Context, token string) error {
	if _, err := s.IsExpired(token); err != nil {
		return err
	}

	cred, err := s.Store.Credentials().GetByTokenHash(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cred.Revoked {
		return nil
	}

	unlock := s.locks.Lock(cred.OwnerID)
	defer unlock()

	if err := s.Cache.MarkLoggedOut(ctx, cred.ID); err != nil {
		return fmt.Errorf("revoke cached token: %w", err)
	}
	if err := s.Store.Credentials().Revoke(ctx, cred.ID); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("logout", slog.Int64("identity_id", cred.OwnerID), slog.String("token_fp", cryptox.FingerprintToken(token)))
	return nil
}

// RevokeAllForUser revokes every active credential owned by ownerID.
func (s *TokenService) RevokeAllForUser(ctx context.Context, ownerID int64) error {
	unlock := s.locks.Lock(ownerID)
	defer unlock()

	active, err := s.Store.Credentials().ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return nil
	}

	ids := credentialIDs(active)
	if err := s.Cache.MarkLoggedOut(ctx, ids...); err != nil {
		return fmt.Errorf("revoke cached tokens: %w", err)
	}
	return s.Store.Credentials().Revoke(ctx, ids...)
}

func credentialIDs(creds []domain.Credential) []int64 {
	ids := make([]int64, len(creds))
	for i, c := range creds {
		ids[i] = c.ID
	}
	return ids
}
