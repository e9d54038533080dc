// ABOUTME: HTTP server for the persception gateway API
// ABOUTME: Wires routes, the access guard, CORS, and the not-found fallback

package webapi

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/persception/gateway/internal/auth"
	"github.com/persception/gateway/internal/devices"
	"github.com/persception/gateway/internal/imagegen"
	"github.com/persception/gateway/internal/organizer"
	"github.com/persception/gateway/internal/store"
)

// Server hosts the web API handlers.
type Server struct {
	store     store.Store
	service   *auth.Service
	guard     *auth.Guard
	devices   *devices.Store
	generator imagegen.Generator
	organizer organizer.Organizer

	refreshCookieMaxAge int // seconds, matches the refresh TTL
	allowedOrigin       string
	development         bool

	logger *slog.Logger
}

// Options collects the server's collaborators and settings.
type Options struct {
	Store         store.Store
	Issuer        *auth.Issuer
	Devices       *devices.Store
	Generator     imagegen.Generator
	Organizer     organizer.Organizer
	AllowedOrigin string
	Development   bool
}

// NewServer creates the API server and its access guard.
func NewServer(opts Options) *Server {
	s := &Server{
		store:               opts.Store,
		devices:             opts.Devices,
		generator:           opts.Generator,
		organizer:           opts.Organizer,
		refreshCookieMaxAge: int(opts.Issuer.RefreshTTL().Seconds()),
		allowedOrigin:       opts.AllowedOrigin,
		development:         opts.Development,
		logger:              slog.Default().With("component", "webapi"),
	}
	s.service = auth.NewService(opts.Store, opts.Issuer)
	s.guard = auth.NewGuard(opts.Store, opts.Issuer, s.writeError)
	return s
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.cors(mux)
}

// RegisterRoutes registers all API routes on the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/v1/auth/signin", s.handleSignin)
	mux.HandleFunc("POST /api/v1/auth/update-password", s.handleUpdatePassword)
	mux.HandleFunc("POST /api/v1/auth/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("PATCH /api/v1/auth/reset-password/{token}", s.handleResetPassword)

	textToImage := s.guard.Require(
		s.guard.RequireRoles(store.RoleUser, store.RoleAdmin)(
			http.HandlerFunc(s.handleTextToImage)))
	mux.Handle("POST /api/v1/ai/text-to-image", textToImage)

	mux.HandleFunc("POST /api/v1/free/access", s.handleFreeAccess)
	mux.HandleFunc("POST /api/v1/free/getCredits", s.handleFreeCredits)

	mux.HandleFunc("POST /api/v1/grouphug/organize", s.handleOrganize)

	mux.HandleFunc("GET /{$}", s.handleOverview)
	mux.HandleFunc("/", s.handleNotFound)
}

// cors applies the single-origin CORS policy with credentials.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "persception gateway is running",
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, auth.NotFoundError(
		fmt.Sprintf("can't find %s on the server", r.URL.Path)))
}
