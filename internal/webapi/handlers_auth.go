// ABOUTME: Account and session HTTP handlers
// ABOUTME: Signup, signin, forgot/reset/update password, refresh cookie management

package webapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/persception/gateway/internal/auth"
	"github.com/persception/gateway/internal/store"
)

// principalView is the client-visible shape of a principal. Password and
// reset fields never leave the server.
type principalView struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	CreatedUsing string    `json:"created_using"`
	Credits      int64     `json:"credits"`
	CreatedAt    time.Time `json:"created_at"`
}

func viewOf(p *store.Principal) principalView {
	return principalView{
		ID:           p.ID,
		Email:        p.Email,
		Name:         p.Name,
		Role:         string(p.Role),
		CreatedUsing: string(p.CreatedUsing),
		Credits:      p.Credits,
		CreatedAt:    p.CreatedAt,
	}
}

// sessionResponse is the success body of every session-issuing endpoint.
type sessionResponse struct {
	AccessToken string `json:"accessToken"`
	Data        struct {
		User principalView `json:"user"`
	} `json:"data"`
}

// writeSession sets the refresh cookie and sends the token-bearing body.
func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.RefreshCookieName,
		Value:    session.RefreshToken,
		Path:     "/",
		MaxAge:   s.refreshCookieMaxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	resp := sessionResponse{AccessToken: session.AccessToken}
	resp.Data.User = viewOf(session.Principal)
	writeJSON(w, http.StatusOK, resp)
}

// refreshCookie returns the presented refresh token, empty when absent.
func refreshCookie(r *http.Request) string {
	cookie, err := r.Cookie(auth.RefreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
		CreatedUsing    string `json:"created_using"`
		Role            string `json:"role"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, auth.ValidationError("invalid request body"))
		return
	}

	session, err := s.service.Signup(r.Context(), auth.SignupRequest{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.ConfirmPassword,
		Type:            req.CreatedUsing,
		Role:            req.Role,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, session)
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		SignInType string `json:"signIn_type"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, auth.ValidationError("invalid request body"))
		return
	}

	session, err := s.service.Signin(r.Context(), auth.SigninRequest{
		Email:    req.Email,
		Password: req.Password,
		Type:     req.SignInType,
	}, refreshCookie(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, session)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Email == "" {
		s.writeError(w, r, auth.ValidationError("email is required"))
		return
	}

	plaintext, err := s.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	resetURL := fmt.Sprintf("%s://%s/api/v1/auth/reset-password/%s", scheme, r.Host, plaintext)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"resetURL": resetURL,
		"message": fmt.Sprintf("Forgot your password? Submit a PATCH request with your new password and confirmPassword to: %s.\n"+
			"If you didn't forget your password, please ignore this message.", resetURL),
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, auth.ValidationError("invalid request body"))
		return
	}

	if err := s.service.ResetPassword(r.Context(), r.PathValue("token"), req.Password, req.ConfirmPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	// No auto-login: the client signs in with the new password.
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, auth.ValidationError("invalid request body"))
		return
	}
	if req.Email == "" || req.Password == "" || req.NewPassword == "" {
		s.writeError(w, r, auth.ValidationError("email, password and newPassword are required"))
		return
	}

	p, err := s.store.GetPrincipalByEmail(r.Context(), auth.NormalizeEmail(req.Email))
	if errors.Is(err, store.ErrPrincipalNotFound) {
		s.writeError(w, r, auth.AuthenticationError("incorrect email or password"))
		return
	}
	if err != nil {
		s.writeError(w, r, auth.InternalError(err))
		return
	}

	session, err := s.service.UpdatePassword(r.Context(), p.ID, req.Password, req.NewPassword, req.NewPassword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, session)
}
