// ABOUTME: Tests for configuration loading
// ABOUTME: Covers env expansion, duration parsing, and validation failures

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
server:
  http_addr: ":8080"
  environment: development
database:
  path: /tmp/persception.db
redis:
  addr: localhost:6379
auth:
  access_secret: access-secret
  refresh_secret: refresh-secret
  access_ttl: 10m
  refresh_ttl: 48h
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.True(t, cfg.Development())
	assert.Equal(t, "/tmp/persception.db", cfg.Database.Path)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 48*time.Hour, cfg.Auth.RefreshTTL)
}

func TestLoad_DefaultTTLs(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: /tmp/persception.db
redis:
  addr: localhost:6379
auth:
  access_secret: access-secret
  refresh_secret: refresh-secret
`))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.False(t, cfg.Development())
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_ACCESS_SECRET", "secret-from-env")

	cfg, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: /tmp/persception.db
redis:
  addr: localhost:6379
auth:
  access_secret: ${TEST_ACCESS_SECRET}
  refresh_secret: refresh-secret
`))
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", cfg.Auth.AccessSecret)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing http addr",
			content: `
database:
  path: /tmp/p.db
redis:
  addr: localhost:6379
auth:
  access_secret: a
  refresh_secret: b
`,
			wantErr: "server.http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: ":8080"
redis:
  addr: localhost:6379
auth:
  access_secret: a
  refresh_secret: b
`,
			wantErr: "database.path",
		},
		{
			name: "identical secrets",
			content: `
server:
  http_addr: ":8080"
database:
  path: /tmp/p.db
redis:
  addr: localhost:6379
auth:
  access_secret: same
  refresh_secret: same
`,
			wantErr: "must differ",
		},
		{
			name: "bad environment",
			content: `
server:
  http_addr: ":8080"
  environment: staging
database:
  path: /tmp/p.db
redis:
  addr: localhost:6379
auth:
  access_secret: a
  refresh_secret: b
`,
			wantErr: "environment",
		},
		{
			name: "bad duration",
			content: `
server:
  http_addr: ":8080"
database:
  path: /tmp/p.db
redis:
  addr: localhost:6379
auth:
  access_secret: a
  refresh_secret: b
  access_ttl: fifteen minutes
`,
			wantErr: "access_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
