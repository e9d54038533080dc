// ABOUTME: Refresh-token set persistence methods on SQLiteStore
// ABOUTME: Rows are keyed by token hash for O(1) membership and global lookup

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// hashToken returns the hex SHA-256 of a refresh token, used as the row key.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// AddRefreshToken appends a token to the principal's active set.
func (s *SQLiteStore) AddRefreshToken(ctx context.Context, principalID, token string, issuedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, token, principal_id, issued_at)
		VALUES (?, ?, ?, ?)
	`, hashToken(token), token, principalID, issuedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}

	s.logger.Debug("added refresh token", "principal_id", principalID)
	return nil
}

// FindRefreshToken looks the token up across all principals and returns the
// owning principal's id. Returns ErrRefreshTokenNotFound when no principal's
// set contains the token.
func (s *SQLiteStore) FindRefreshToken(ctx context.Context, token string) (string, error) {
	var principalID string
	err := s.db.QueryRowContext(ctx,
		`SELECT principal_id FROM refresh_tokens WHERE token_hash = ?`,
		hashToken(token)).Scan(&principalID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRefreshTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying refresh token: %w", err)
	}
	return principalID, nil
}

// ConsumeRefreshToken atomically removes the token from the principal's set.
// The rows-affected result resolves concurrent rotations racing on the same
// token: exactly one caller observes true.
func (s *SQLiteStore) ConsumeRefreshToken(ctx context.Context, principalID, token string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE token_hash = ? AND principal_id = ?
	`, hashToken(token), principalID)
	if err != nil {
		return false, fmt.Errorf("consuming refresh token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// HasRefreshToken reports whether the token is in the principal's active set.
func (s *SQLiteStore) HasRefreshToken(ctx context.Context, principalID, token string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM refresh_tokens WHERE token_hash = ? AND principal_id = ?
	`, hashToken(token), principalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking refresh token: %w", err)
	}
	return true, nil
}

// ClearRefreshTokens removes every token in the principal's set and returns
// the number removed.
func (s *SQLiteStore) ClearRefreshTokens(ctx context.Context, principalID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE principal_id = ?`, principalID)
	if err != nil {
		return 0, fmt.Errorf("clearing refresh tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("cleared refresh tokens", "principal_id", principalID, "count", rowsAffected)
	}
	return rowsAffected, nil
}

// ListRefreshTokens returns the principal's active set in issuance order.
func (s *SQLiteStore) ListRefreshTokens(ctx context.Context, principalID string) ([]RefreshTokenRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_hash, token, principal_id, issued_at
		FROM refresh_tokens
		WHERE principal_id = ?
		ORDER BY issued_at ASC, rowid ASC
	`, principalID)
	if err != nil {
		return nil, fmt.Errorf("querying refresh tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []RefreshTokenRecord
	for rows.Next() {
		var rec RefreshTokenRecord
		var issuedAtStr string

		if err := rows.Scan(&rec.TokenHash, &rec.Token, &rec.PrincipalID, &issuedAtStr); err != nil {
			return nil, fmt.Errorf("scanning refresh token row: %w", err)
		}

		rec.IssuedAt, err = time.Parse(time.RFC3339, issuedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing issued_at: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating refresh token rows: %w", err)
	}
	return records, nil
}
