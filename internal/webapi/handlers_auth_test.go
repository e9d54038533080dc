// ABOUTME: Tests for the account and session HTTP handlers
// ABOUTME: Covers signup/signin cookies, rotation, and the password flows

package webapi

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/persception/gateway/internal/auth"
)

func TestSignup(t *testing.T) {
	f := setup(t)

	resp, cookie := f.signup(t, "alice@example.com")

	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "alice@example.com", resp.Data.User.Email)
	assert.Equal(t, "user", resp.Data.User.Role)
	assert.Equal(t, int64(5), resp.Data.User.Credits)

	// Refresh cookie attributes
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Positive(t, cookie.MaxAge)

	// Password material never appears in the response body
	rec := f.do(t, "POST", "/api/v1/auth/signin", map[string]string{
		"email": "alice@example.com", "password": "hunter2hunter2", "signIn_type": "email",
	})
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func TestSignup_Duplicate(t *testing.T) {
	f := setup(t)
	f.signup(t, "alice@example.com")

	rec := f.do(t, "POST", "/api/v1/auth/signup", map[string]string{
		"name":            "Alice Again",
		"email":           "alice@example.com",
		"password":        "hunter2hunter2",
		"confirmPassword": "hunter2hunter2",
		"created_using":   "email",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignup_BadBody(t *testing.T) {
	f := setup(t)

	rec := f.do(t, "POST", "/api/v1/auth/signup", map[string]any{
		"name": "Alice", "unexpected": true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignin_RotatesCookie(t *testing.T) {
	f := setup(t)
	_, cookie := f.signup(t, "alice@example.com")

	rec := f.do(t, "POST", "/api/v1/auth/signin", map[string]string{
		"email": "alice@example.com", "password": "hunter2hunter2", "signIn_type": "email",
	}, func(r *http.Request) { r.AddCookie(cookie) })
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// The presented token was rotated out: exactly one live session remains
	records, err := f.store.ListRefreshTokens(context.Background(), resp.Data.User.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEqual(t, cookie.Value, records[0].Token)
}

func TestSignin_WrongPassword(t *testing.T) {
	f := setup(t)
	f.signup(t, "alice@example.com")

	rec := f.do(t, "POST", "/api/v1/auth/signin", map[string]string{
		"email": "alice@example.com", "password": "not-the-password", "signIn_type": "email",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "fail", envelope.Status)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := setup(t)
	f.signup(t, "alice@example.com")

	rec := f.do(t, "POST", "/api/v1/auth/forgot-password", map[string]string{
		"email": "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var forgot struct {
		ResetURL string `json:"resetURL"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &forgot))

	tokenRe := regexp.MustCompile(`reset-password/([0-9a-f]{64})$`)
	m := tokenRe.FindStringSubmatch(forgot.ResetURL)
	require.Len(t, m, 2, "reset URL should end with the plaintext token")

	rec = f.do(t, "PATCH", "/api/v1/auth/reset-password/"+m[1], map[string]string{
		"password": "brand-new-pass1", "confirmPassword": "brand-new-pass1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Reset acknowledges success only: no access token, no refresh cookie
	assert.JSONEq(t, `{"status": "success"}`, rec.Body.String())
	assert.Empty(t, rec.Result().Cookies())

	// Old password no longer works, new one does
	rec = f.do(t, "POST", "/api/v1/auth/signin", map[string]string{
		"email": "alice@example.com", "password": "hunter2hunter2", "signIn_type": "email",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, "POST", "/api/v1/auth/signin", map[string]string{
		"email": "alice@example.com", "password": "brand-new-pass1", "signIn_type": "email",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetPassword_BadToken(t *testing.T) {
	f := setup(t)

	rec := f.do(t, "PATCH", "/api/v1/auth/reset-password/deadbeef", map[string]string{
		"password": "brand-new-pass1", "confirmPassword": "brand-new-pass1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	f := setup(t)

	rec := f.do(t, "POST", "/api/v1/auth/forgot-password", map[string]string{
		"email": "nobody@example.com",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePassword(t *testing.T) {
	f := setup(t)
	f.signup(t, "alice@example.com")

	rec := f.do(t, "POST", "/api/v1/auth/update-password", map[string]string{
		"email":       "alice@example.com",
		"password":    "hunter2hunter2",
		"newPassword": "brand-new-pass1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)

	rec = f.do(t, "POST", "/api/v1/auth/signin", map[string]string{
		"email": "alice@example.com", "password": "brand-new-pass1", "signIn_type": "email",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdatePassword_WrongCurrent(t *testing.T) {
	f := setup(t)
	f.signup(t, "alice@example.com")

	rec := f.do(t, "POST", "/api/v1/auth/update-password", map[string]string{
		"email":       "alice@example.com",
		"password":    "wrong-password",
		"newPassword": "brand-new-pass1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdatePassword_StoreFailure(t *testing.T) {
	f := setup(t)
	f.signup(t, "alice@example.com")

	// A store outage is an internal error, not a credentials failure
	require.NoError(t, f.store.Close())

	rec := f.do(t, "POST", "/api/v1/auth/update-password", map[string]string{
		"email":       "alice@example.com",
		"password":    "hunter2hunter2",
		"newPassword": "brand-new-pass1",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "error", envelope.Status)
}

func TestUpdatePassword_MissingFields(t *testing.T) {
	f := setup(t)

	rec := f.do(t, "POST", "/api/v1/auth/update-password", map[string]string{
		"email": "alice@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignup_Google(t *testing.T) {
	f := setup(t)

	rec := f.do(t, "POST", "/api/v1/auth/signup", map[string]string{
		"name":          "Bob",
		"email":         "bob@example.com",
		"created_using": "google",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Data.User.Credits)
	assert.Equal(t, "google", resp.Data.User.CreatedUsing)
}

func TestRefreshCookieName(t *testing.T) {
	// The cookie name is part of the client contract
	assert.Equal(t, "jwt", auth.RefreshCookieName)
}
