// ABOUTME: Credential verification and session lifecycle service
// ABOUTME: Signup, signin with refresh rotation and reuse detection, password flows

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/persception/gateway/internal/store"
)

// Free-tier starting balances by creation method.
const (
	emailSignupCredits  = 5
	googleSignupCredits = 2
)

const minPasswordLength = 8

// Session is the result of a successful authentication: the principal plus a
// freshly issued token pair. The refresh token has already been appended to
// the principal's active set.
type Session struct {
	Principal    *store.Principal
	AccessToken  string
	RefreshToken string
}

// SignupRequest carries the fields of an account-creation attempt.
type SignupRequest struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
	Type            string // creation method: "email" or "google"
	Role            string // optional, defaults to "user"
}

// SigninRequest carries the fields of a signin attempt.
type SigninRequest struct {
	Email    string
	Password string
	Type     string
}

// Service implements the session lifecycle over the store and token issuer.
type Service struct {
	store  store.Store
	issuer *Issuer
	logger *slog.Logger

	now func() time.Time
}

// NewService creates the session service.
func NewService(st store.Store, issuer *Issuer) *Service {
	return &Service{
		store:  st,
		issuer: issuer,
		logger: slog.Default().With("component", "auth"),
		now:    time.Now,
	}
}

// NormalizeEmail lowercases and trims an email address so lookups and the
// uniqueness constraint agree on identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates a new principal and issues its first session.
//
// Duplicate email is rejected except for the google-over-google case, which
// is treated as an identity confirmation and issues a fresh session for the
// existing account.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	method := store.CreationMethod(req.Type)
	if !method.Valid() {
		// Unknown creation methods are denied outright, not defaulted.
		return nil, AuthenticationError("unsupported signup type")
	}

	email := NormalizeEmail(req.Email)
	if req.Name == "" || email == "" {
		return nil, ValidationError("name and email are required")
	}

	role := store.RoleUser
	if req.Role != "" {
		role = store.Role(req.Role)
		if !role.Valid() {
			return nil, ValidationError("unknown role")
		}
	}

	p := &store.Principal{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         req.Name,
		Role:         role,
		CreatedUsing: method,
		CreatedAt:    s.now().UTC(),
	}

	switch method {
	case store.CreatedViaEmail:
		if err := validatePassword(req.Password, req.PasswordConfirm); err != nil {
			return nil, err
		}
		hash, err := HashPassword(req.Password)
		if err != nil {
			return nil, InternalError(err)
		}
		p.PasswordHash = hash
		p.Credits = emailSignupCredits
	case store.CreatedViaGoogle:
		p.Credits = googleSignupCredits
	}

	err := s.store.CreatePrincipal(ctx, p)
	if errors.Is(err, store.ErrDuplicateEmail) {
		existing, gerr := s.store.GetPrincipalByEmail(ctx, email)
		if gerr != nil {
			return nil, InternalError(gerr)
		}
		if method == store.CreatedViaGoogle && existing.CreatedUsing == store.CreatedViaGoogle {
			// Repeat google signup confirms the same identity; issue a fresh
			// session with a replaced token set.
			if _, cerr := s.store.ClearRefreshTokens(ctx, existing.ID); cerr != nil {
				return nil, InternalError(cerr)
			}
			s.logger.Info("google signup matched existing principal", "principal_id", existing.ID)
			return s.issueSession(ctx, existing)
		}
		return nil, AuthenticationError("email already in use")
	}
	if err != nil {
		return nil, InternalError(err)
	}

	s.logger.Info("principal signed up", "principal_id", p.ID, "created_using", method)
	return s.issueSession(ctx, p)
}

// Signin authenticates a principal and rotates its refresh-token set.
//
// priorRefreshToken is the refresh cookie presented with the request, empty
// when the client has none. A presented token that is no longer in any
// principal's set, or that belongs to a different principal, trips reuse
// detection: the affected sets are cleared before the fresh session is
// issued.
func (s *Service) Signin(ctx context.Context, req SigninRequest, priorRefreshToken string) (*Session, error) {
	method := store.CreationMethod(req.Type)
	if !method.Valid() {
		return nil, AuthenticationError("unsupported signin type")
	}

	email := NormalizeEmail(req.Email)
	if email == "" {
		return nil, ValidationError("email is required")
	}
	if method == store.CreatedViaEmail && req.Password == "" {
		return nil, ValidationError("password is required")
	}

	p, err := s.store.GetPrincipalByEmail(ctx, email)
	if errors.Is(err, store.ErrPrincipalNotFound) {
		return nil, AuthenticationError("incorrect email or password")
	}
	if err != nil {
		return nil, InternalError(err)
	}

	// An account only authenticates through the method that created it.
	if p.CreatedUsing != method {
		return nil, AuthenticationError("incorrect email or password")
	}

	if method == store.CreatedViaEmail && !CheckPassword(p.PasswordHash, req.Password) {
		return nil, AuthenticationError("incorrect email or password")
	}

	if priorRefreshToken != "" {
		if err := s.rotate(ctx, p, priorRefreshToken); err != nil {
			return nil, err
		}
	}

	s.logger.Info("principal signed in", "principal_id", p.ID)
	return s.issueSession(ctx, p)
}

// rotate removes the presented refresh token from circulation, applying
// reuse detection when the token is not where it should be.
func (s *Service) rotate(ctx context.Context, p *store.Principal, prior string) error {
	owner, err := s.store.FindRefreshToken(ctx, prior)
	if errors.Is(err, store.ErrRefreshTokenNotFound) {
		// The token was rotated out already. Someone replayed it, so the
		// whole set is suspect.
		s.logger.Warn("refresh token reuse detected", "principal_id", p.ID)
		if _, cerr := s.store.ClearRefreshTokens(ctx, p.ID); cerr != nil {
			return InternalError(cerr)
		}
		return nil
	}
	if err != nil {
		return InternalError(err)
	}

	if owner != p.ID {
		// A token minted for one account was presented while signing in to
		// another. Both sets are compromised.
		s.logger.Warn("refresh token presented across principals",
			"principal_id", p.ID, "token_owner", owner)
		if _, cerr := s.store.ClearRefreshTokens(ctx, owner); cerr != nil {
			return InternalError(cerr)
		}
		if _, cerr := s.store.ClearRefreshTokens(ctx, p.ID); cerr != nil {
			return InternalError(cerr)
		}
		return nil
	}

	consumed, err := s.store.ConsumeRefreshToken(ctx, p.ID, prior)
	if err != nil {
		return InternalError(err)
	}
	if !consumed {
		// A concurrent rotation won the delete between lookup and consume.
		// The token is gone either way; the winner's replacement stands.
		s.logger.Debug("refresh token consumed by concurrent rotation", "principal_id", p.ID)
	}
	return nil
}

// ForgotPassword generates a one-time reset token for the account and
// returns the plaintext for delivery. Only the hash is stored.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	p, err := s.store.GetPrincipalByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrPrincipalNotFound) {
		return "", NotFoundError("no account with that email address")
	}
	if err != nil {
		return "", InternalError(err)
	}

	plaintext, hash, err := NewResetToken()
	if err != nil {
		return "", InternalError(err)
	}

	expires := s.now().Add(ResetTokenTTL).UTC()
	if err := s.store.SetResetToken(ctx, p.ID, hash, expires); err != nil {
		return "", InternalError(err)
	}

	s.logger.Info("reset token issued", "principal_id", p.ID, "expires_at", expires)
	return plaintext, nil
}

// ResetPassword consumes a reset token and replaces the account password.
// All outstanding refresh tokens are revoked; the caller signs in again
// with the new password. Invalid and expired tokens fail identically to
// the caller.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword, confirm string) error {
	if err := validatePassword(newPassword, confirm); err != nil {
		return err
	}

	p, err := s.store.GetPrincipalByResetToken(ctx, HashResetToken(token))
	if errors.Is(err, store.ErrResetTokenNotFound) {
		s.logger.Warn("reset attempted with invalid or expired token")
		return ValidationError("token is invalid or has expired")
	}
	if err != nil {
		return InternalError(err)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return InternalError(err)
	}
	if err := s.store.UpdatePassword(ctx, p.ID, hash); err != nil {
		return InternalError(err)
	}
	if err := s.store.ClearResetToken(ctx, p.ID); err != nil {
		return InternalError(err)
	}
	if _, err := s.store.ClearRefreshTokens(ctx, p.ID); err != nil {
		return InternalError(err)
	}

	s.logger.Info("password reset", "principal_id", p.ID)
	return nil
}

// UpdatePassword changes the password of a signed-in principal after
// verifying the current one. Outstanding sessions are revoked the same way
// a reset revokes them.
func (s *Service) UpdatePassword(ctx context.Context, principalID, current, newPassword, confirm string) (*Session, error) {
	if err := validatePassword(newPassword, confirm); err != nil {
		return nil, err
	}

	p, err := s.store.GetPrincipal(ctx, principalID)
	if errors.Is(err, store.ErrPrincipalNotFound) {
		return nil, AuthenticationError("account not found")
	}
	if err != nil {
		return nil, InternalError(err)
	}

	if p.CreatedUsing != store.CreatedViaEmail {
		return nil, AuthenticationError("account has no password")
	}
	if !CheckPassword(p.PasswordHash, current) {
		return nil, AuthenticationError("current password is incorrect")
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return nil, InternalError(err)
	}
	if err := s.store.UpdatePassword(ctx, p.ID, hash); err != nil {
		return nil, InternalError(err)
	}
	if _, err := s.store.ClearRefreshTokens(ctx, p.ID); err != nil {
		return nil, InternalError(err)
	}

	s.logger.Info("password updated", "principal_id", p.ID)

	p, err = s.store.GetPrincipal(ctx, p.ID)
	if err != nil {
		return nil, InternalError(err)
	}
	return s.issueSession(ctx, p)
}

// issueSession mints a token pair and appends the refresh token to the
// principal's active set.
func (s *Service) issueSession(ctx context.Context, p *store.Principal) (*Session, error) {
	access, err := s.issuer.IssueAccess(p.ID)
	if err != nil {
		return nil, InternalError(fmt.Errorf("signing access token: %w", err))
	}
	refresh, err := s.issuer.IssueRefresh(p.ID)
	if err != nil {
		return nil, InternalError(fmt.Errorf("signing refresh token: %w", err))
	}
	if err := s.store.AddRefreshToken(ctx, p.ID, refresh, s.now().UTC()); err != nil {
		return nil, InternalError(err)
	}

	return &Session{Principal: p, AccessToken: access, RefreshToken: refresh}, nil
}

func validatePassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return ValidationError("password must be at least 8 characters")
	}
	if password != confirm {
		return ValidationError("passwords do not match")
	}
	return nil
}
