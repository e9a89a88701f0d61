package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("foreignPrincipal:\n  secret: s3cret\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Repository.Backend)
	assert.Equal(t, "http://test.media.berkeley.edu:8080", cfg.CalDAV.ServerRoot)
	assert.Equal(t, "admin", cfg.CalDAV.AdminUsername)
	assert.Equal(t, 2*time.Hour, cfg.ForeignPrincipal.TTL)
	assert.Equal(t, "foreignprincipal", cfg.ForeignPrincipal.CookieName)
	assert.Equal(t, "localhost", cfg.SMTP.Server)
	assert.Equal(t, 25, cfg.SMTP.Port)
	assert.Equal(t, 30*time.Minute, cfg.SMTP.RetryInterval)
	assert.Equal(t, 240, cfg.SMTP.MaxRetries)
	assert.Equal(t, "myb", cfg.Notifications.EmailStyle)
	assert.Equal(t, "prod", cfg.Notices.Environment)
	assert.Equal(t, "g-ced-advisors", cfg.Notices.AdvisorGroup)
	assert.Equal(t, 4, cfg.Provision.Workers)
	assert.False(t, cfg.Oracle.Enabled())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "embedded caldav keeps empty server root",
			yaml: "foreignPrincipal: {secret: x}\ncaldav: {embedded: true}\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.CalDAV.ServerRoot)
			},
		},
		{
			name: "oracle server gets default port",
			yaml: "foreignPrincipal: {secret: x}\noracle: {server: db.example.edu, service: CSPROD}\n",
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Oracle.Enabled())
				assert.Equal(t, 1521, cfg.Oracle.Port)
			},
		},
		{
			name:    "missing secret",
			yaml:    "server: {addr: ':9090'}\n",
			wantErr: true,
		},
		{
			name:    "badger without path",
			yaml:    "foreignPrincipal: {secret: x}\nrepository: {backend: badger}\n",
			wantErr: true,
		},
		{
			name:    "unknown email style",
			yaml:    "foreignPrincipal: {secret: x}\nnotifications: {emailStyle: plain}\n",
			wantErr: true,
		},
		{
			name:    "oracle server without service",
			yaml:    "foreignPrincipal: {secret: x}\noracle: {server: db.example.edu}\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "server: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "myberkeley.yaml")
	require.NoError(t, os.WriteFile(path, []byte("foreignPrincipal: {secret: x}\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) { reloaded <- cfg },
			slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("foreignPrincipal: {secret: x}\nroot: {path: /dev/index.html}\n"), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "/dev/index.html", cfg.Root.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	assert.NoError(t, <-done)
}
