// ABOUTME: Dual-secret JWT issuance and verification for access and refresh tokens
// ABOUTME: Verification returns an explicit outcome instead of error matching

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Outcome classifies the result of verifying a token.
type Outcome int

const (
	// OutcomeValid means the signature checked out and the token is unexpired.
	OutcomeValid Outcome = iota
	// OutcomeExpired means the signature checked out but the token aged out.
	OutcomeExpired
	// OutcomeInvalid means the signature check failed.
	OutcomeInvalid
	// OutcomeMalformed means the string is not a parseable JWT at all.
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeExpired:
		return "expired"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeMalformed:
		return "malformed"
	}
	return "unknown"
}

// Claims carries the identity extracted from a verified (or expired) token.
type Claims struct {
	PrincipalID string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Issuer signs and verifies access and refresh tokens with two independent
// HS256 secrets. An access token never verifies against the refresh secret
// and vice versa.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration

	now func() time.Time
}

// NewIssuer creates a token issuer. Secrets must be distinct; config
// validation enforces that before we get here.
func NewIssuer(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// AccessTTL returns the configured access-token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess signs a new access token for the principal.
func (i *Issuer) IssueAccess(principalID string) (string, error) {
	return i.sign(principalID, i.accessSecret, i.accessTTL)
}

// IssueRefresh signs a new refresh token for the principal.
func (i *Issuer) IssueRefresh(principalID string) (string, error) {
	return i.sign(principalID, i.refreshSecret, i.refreshTTL)
}

func (i *Issuer) sign(principalID string, secret []byte, ttl time.Duration) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"sub": principalID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyAccess verifies a token against the access secret.
func (i *Issuer) VerifyAccess(tokenString string) (*Claims, Outcome) {
	return verify(tokenString, i.accessSecret)
}

// VerifyRefresh verifies a token against the refresh secret.
func (i *Issuer) VerifyRefresh(tokenString string) (*Claims, Outcome) {
	return verify(tokenString, i.refreshSecret)
}

func verify(tokenString string, secret []byte) (*Claims, Outcome) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			claims, cerr := extractClaims(token)
			if cerr != nil {
				return nil, OutcomeMalformed
			}
			return claims, OutcomeExpired
		}
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, OutcomeMalformed
		}
		return nil, OutcomeInvalid
	}

	if !token.Valid {
		return nil, OutcomeInvalid
	}

	claims, err := extractClaims(token)
	if err != nil {
		return nil, OutcomeInvalid
	}
	return claims, OutcomeValid
}

// DecodeUnverified extracts the claims of a token without checking its
// signature or expiry. The renewal path uses this to recover the subject of
// an expired access token; callers must never trust the result for
// authentication on its own.
func DecodeUnverified(tokenString string) (*Claims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return extractClaims(token)
}

func extractClaims(token *jwt.Token) (*Claims, error) {
	if token == nil {
		return nil, ErrInvalidToken
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := mapClaims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	c := &Claims{PrincipalID: sub}
	if iat, ok := mapClaims["iat"].(float64); ok {
		c.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		c.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return c, nil
}
