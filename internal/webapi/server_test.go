// ABOUTME: Shared fixture and base route tests for the web API
// ABOUTME: Real sqlite store, miniredis device store, stubbed upstream clients

package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/persception/gateway/internal/auth"
	"github.com/persception/gateway/internal/devices"
	"github.com/persception/gateway/internal/imagegen"
	"github.com/persception/gateway/internal/store"
)

type stubGenerator struct {
	err error
}

func (g *stubGenerator) TextToImage(ctx context.Context, req imagegen.Request) ([]imagegen.Artifact, error) {
	if g.err != nil {
		return nil, g.err
	}
	return []imagegen.Artifact{{Base64: "aW1hZ2U=", FinishReason: "SUCCESS"}}, nil
}

type stubOrganizer struct {
	result json.RawMessage
	err    error
}

func (o *stubOrganizer) Organize(ctx context.Context, transcript string) (json.RawMessage, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.result, nil
}

type fixture struct {
	server  *Server
	handler http.Handler
	store   *store.SQLiteStore
	issuer  *auth.Issuer
}

func setup(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	issuer := auth.NewIssuer(
		[]byte("access-secret-for-tests"),
		[]byte("refresh-secret-for-tests"),
		15*time.Minute,
		7*24*time.Hour,
	)

	srv := NewServer(Options{
		Store:         st,
		Issuer:        issuer,
		Devices:       devices.NewStore(client),
		Generator:     &stubGenerator{},
		Organizer:     &stubOrganizer{result: json.RawMessage(`{"Summaries":"ok"}`)},
		AllowedOrigin: "https://app.example.com",
	})

	return &fixture{server: srv, handler: srv.Handler(), store: st, issuer: issuer}
}

func (f *fixture) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// signup creates an email account and returns the parsed session response
// plus the refresh cookie.
func (f *fixture) signup(t *testing.T, email string) (sessionResponse, *http.Cookie) {
	t.Helper()
	rec := f.do(t, "POST", "/api/v1/auth/signup", map[string]string{
		"name":            "Alice",
		"email":           email,
		"password":        "hunter2hunter2",
		"confirmPassword": "hunter2hunter2",
		"created_using":   "email",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.RefreshCookieName {
			return resp, c
		}
	}
	t.Fatal("refresh cookie not set")
	return resp, nil
}

func TestOverview(t *testing.T) {
	f := setup(t)

	rec := f.do(t, "GET", "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "success")
}

func TestNotFound(t *testing.T) {
	f := setup(t)

	rec := f.do(t, "GET", "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "fail", envelope.Status)
	assert.Contains(t, envelope.Message, "/api/v1/nope")
}

func TestCORS(t *testing.T) {
	f := setup(t)

	rec := f.do(t, "OPTIONS", "/api/v1/auth/signin", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = f.do(t, "GET", "/", nil)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestErrorDetail_DevelopmentOnly(t *testing.T) {
	f := setup(t)

	// Production mode keeps detail out of the envelope
	rec := f.do(t, "POST", "/api/v1/auth/signin", map[string]string{
		"email": "nobody@example.com", "password": "hunter2hunter2", "signIn_type": "email",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Empty(t, envelope.Detail)
	assert.Empty(t, envelope.Stack)

	// Development mode includes it
	f.server.development = true
	rec = f.do(t, "POST", "/api/v1/auth/signin", map[string]string{
		"email": "nobody@example.com", "password": "hunter2hunter2", "signIn_type": "email",
	})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.NotEmpty(t, envelope.Detail)
	assert.NotEmpty(t, envelope.Stack)
}
