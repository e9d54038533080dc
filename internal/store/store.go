// ABOUTME: Store interface and data types for persception-gateway persistence
// ABOUTME: Defines Principal, RefreshTokenRecord and the store interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrPrincipalNotFound is returned when a requested principal does not exist.
var ErrPrincipalNotFound = errors.New("principal not found")

// ErrDuplicateEmail is returned when creating a principal with an email that
// is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrRefreshTokenNotFound is returned when a refresh token is not present in
// any principal's active set.
var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// ErrResetTokenNotFound is returned when no principal carries the given reset
// token hash.
var ErrResetTokenNotFound = errors.New("reset token not found")

// Role is the closed set of authorization roles a principal can hold.
type Role string

const (
	RoleUser      Role = "user"
	RoleSuperUser Role = "super-user"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSuperUser, RoleAdmin:
		return true
	}
	return false
}

// CreationMethod identifies how a principal account was created. It is
// immutable after signup.
type CreationMethod string

const (
	CreatedViaEmail  CreationMethod = "email"
	CreatedViaGoogle CreationMethod = "google"
)

// Valid reports whether m is a known creation method.
func (m CreationMethod) Valid() bool {
	switch m {
	case CreatedViaEmail, CreatedViaGoogle:
		return true
	}
	return false
}

// Principal represents an authenticated user account.
//
// PasswordHash is set if and only if CreatedUsing is CreatedViaEmail.
// ResetTokenHash/ResetTokenExpiresAt are present only between a
// forgot-password request and its consumption or expiry.
type Principal struct {
	ID                  string
	Email               string // unique, case-normalized
	Name                string
	Role                Role
	PasswordHash        string
	CreatedUsing        CreationMethod
	Credits             int64
	CreatedAt           time.Time
	PasswordChangedAt   *time.Time
	ResetTokenHash      string
	ResetTokenExpiresAt *time.Time
}

// RefreshTokenRecord is one live session entry in a principal's active set.
// Records are keyed by the token's SHA-256 hash so membership checks and
// global lookups are index hits rather than scans.
type RefreshTokenRecord struct {
	TokenHash   string
	Token       string
	PrincipalID string
	IssuedAt    time.Time
}

// PrincipalStore defines principal account persistence.
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error)

	// UpdatePassword replaces the password hash and stamps
	// password_changed_at, which invalidates access tokens issued earlier.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	GetPrincipalByResetToken(ctx context.Context, tokenHash string) (*Principal, error)
	ClearResetToken(ctx context.Context, id string) error

	DecrementCredits(ctx context.Context, id string) (int64, error)
}

// RefreshTokenStore defines the per-principal active refresh-token set.
type RefreshTokenStore interface {
	AddRefreshToken(ctx context.Context, principalID, token string, issuedAt time.Time) error

	// FindRefreshToken looks the token up across all principals and returns
	// the owning principal's id.
	FindRefreshToken(ctx context.Context, token string) (string, error)

	// ConsumeRefreshToken atomically removes the token from the principal's
	// set. It reports whether this call removed the row; a concurrent
	// rotation racing on the same token sees false.
	ConsumeRefreshToken(ctx context.Context, principalID, token string) (bool, error)

	HasRefreshToken(ctx context.Context, principalID, token string) (bool, error)

	// ClearRefreshTokens removes every token in the principal's set and
	// returns the number removed. Used for theft response and password
	// reset revocation.
	ClearRefreshTokens(ctx context.Context, principalID string) (int64, error)

	// ListRefreshTokens returns the set in issuance order.
	ListRefreshTokens(ctx context.Context, principalID string) ([]RefreshTokenRecord, error)
}

// Store is the full persistence interface backed by SQLite.
type Store interface {
	PrincipalStore
	RefreshTokenStore

	// Close releases any resources held by the store.
	Close() error
}
