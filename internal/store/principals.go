// ABOUTME: Principal persistence methods on SQLiteStore
// ABOUTME: Covers account CRUD, password changes, reset tokens, and credit spend

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const principalColumns = `id, email, name, role, password_hash, created_using, credits,
	created_at, password_changed_at, reset_token_hash, reset_token_expires_at`

// CreatePrincipal inserts a new principal.
// Returns ErrDuplicateEmail if the email is already registered.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	query := `
		INSERT INTO principals (id, email, name, role, password_hash, created_using, credits, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.Email,
		p.Name,
		string(p.Role),
		nullString(p.PasswordHash),
		string(p.CreatedUsing),
		p.Credits,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("inserting principal: %w", err)
	}

	s.logger.Info("created principal", "id", p.ID, "created_using", p.CreatedUsing, "role", p.Role)
	return nil
}

// GetPrincipal retrieves a principal by ID.
// Returns ErrPrincipalNotFound if the principal doesn't exist.
func (s *SQLiteStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`, id)
	return scanPrincipal(row)
}

// GetPrincipalByEmail retrieves a principal by normalized email.
// Returns ErrPrincipalNotFound if no account uses the email.
func (s *SQLiteStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = ?`, email)
	return scanPrincipal(row)
}

// UpdatePassword replaces the principal's password hash and stamps
// password_changed_at so earlier access tokens fail the issued-at check.
func (s *SQLiteStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, `
		UPDATE principals
		SET password_hash = ?, password_changed_at = ?
		WHERE id = ?
	`, passwordHash, now, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}

	s.logger.Info("updated principal password", "id", id)
	return nil
}

// SetResetToken stores a hashed password-reset token and its expiry.
// Any previous reset token for the principal is overwritten.
func (s *SQLiteStore) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE principals
		SET reset_token_hash = ?, reset_token_expires_at = ?
		WHERE id = ?
	`, tokenHash, expiresAt.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("setting reset token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}

	s.logger.Debug("set reset token", "id", id, "expires_at", expiresAt)
	return nil
}

// GetPrincipalByResetToken retrieves the principal holding the given
// unexpired reset token hash. Returns ErrResetTokenNotFound when no
// principal carries the hash or the token has expired.
func (s *SQLiteStore) GetPrincipalByResetToken(ctx context.Context, tokenHash string) (*Principal, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+principalColumns+`
		FROM principals
		WHERE reset_token_hash = ? AND reset_token_expires_at > ?
	`, tokenHash, now)

	p, err := scanPrincipal(row)
	if errors.Is(err, ErrPrincipalNotFound) {
		return nil, ErrResetTokenNotFound
	}
	return p, err
}

// ClearResetToken removes any pending reset token from the principal.
func (s *SQLiteStore) ClearResetToken(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE principals
		SET reset_token_hash = NULL, reset_token_expires_at = NULL
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("clearing reset token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// DecrementCredits decrements the principal's credit balance by one and
// returns the remaining balance. The balance check happens before the
// metered call; this records the spend.
func (s *SQLiteStore) DecrementCredits(ctx context.Context, id string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE principals SET credits = credits - 1 WHERE id = ?
	`, id)
	if err != nil {
		return 0, fmt.Errorf("decrementing credits: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, ErrPrincipalNotFound
	}

	var remaining int64
	if err := s.db.QueryRowContext(ctx, `SELECT credits FROM principals WHERE id = ?`, id).Scan(&remaining); err != nil {
		return 0, fmt.Errorf("reading credits: %w", err)
	}

	s.logger.Debug("decremented credits", "id", id, "remaining", remaining)
	return remaining, nil
}

// scanPrincipal reads a principal row, handling nullable columns.
func scanPrincipal(row *sql.Row) (*Principal, error) {
	var p Principal
	var role, createdUsing, createdAtStr string
	var passwordHash, passwordChangedAt, resetHash, resetExpires sql.NullString

	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.Name,
		&role,
		&passwordHash,
		&createdUsing,
		&p.Credits,
		&createdAtStr,
		&passwordChangedAt,
		&resetHash,
		&resetExpires,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning principal: %w", err)
	}

	p.Role = Role(role)
	p.CreatedUsing = CreationMethod(createdUsing)
	p.PasswordHash = passwordHash.String
	p.ResetTokenHash = resetHash.String

	p.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if passwordChangedAt.Valid {
		t, err := time.Parse(time.RFC3339, passwordChangedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing password_changed_at: %w", err)
		}
		p.PasswordChangedAt = &t
	}

	if resetExpires.Valid {
		t, err := time.Parse(time.RFC3339, resetExpires.String)
		if err != nil {
			return nil, fmt.Errorf("parsing reset_token_expires_at: %w", err)
		}
		p.ResetTokenExpiresAt = &t
	}

	return &p, nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
