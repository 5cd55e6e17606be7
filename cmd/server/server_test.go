package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"whatsapp-panel-server/internal/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.DSN = fmt.Sprintf("file:server-%s?mode=memory&cache=shared&_fk=1", uuid.NewString())
	cfg.JWT.Secret = "server-test-secret"
	cfg.Scheduler.Enabled = false
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestSetupServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 8080

	srv, err := SetupServer(cfg)
	require.NoError(t, err)
	assert.Equal(t, ":8080", srv.Addr)
	assert.Zero(t, srv.WriteTimeout)
	srv.closeResources()

	// Test with empty configuration
	srv, err = SetupServer(nil)
	assert.Error(t, err)
	assert.Nil(t, srv)

	// Test with invalid port
	cfg = testConfig(t)
	cfg.Server.Port = -1
	srv, err = SetupServer(cfg)
	assert.Error(t, err)
	assert.Nil(t, srv)

	// Test with an unsupported driver
	cfg = testConfig(t)
	cfg.Database.Driver = "mysql"
	srv, err = SetupServer(cfg)
	assert.Error(t, err)
	assert.Nil(t, srv)

	// Test with a TOTP key of the wrong length
	cfg = testConfig(t)
	cfg.Security.TOTPEncryptionKey = "short"
	srv, err = SetupServer(cfg)
	assert.Error(t, err)
	assert.Nil(t, srv)
}

func TestSetupServer_Routes(t *testing.T) {
	srv, err := SetupServer(testConfig(t))
	require.NoError(t, err)
	defer srv.closeResources()

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"protected without token", http.MethodGet, "/api/connections", http.StatusUnauthorized},
		{"cron without secret configured", http.MethodPost, "/api/cron/process-scheduled-messages", http.StatusOK},
		{"unknown path", http.MethodGet, "/healthz", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/health", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			srv.Handler.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestWebhookURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.PublicURL = "https://panel.example.com/"
	assert.Equal(t, "https://panel.example.com/webhooks/evolution", webhookURL(cfg))

	cfg.Security.WebhookSecret = "a b&c"
	assert.Equal(t, "https://panel.example.com/webhooks/evolution?token=a+b%26c", webhookURL(cfg))
}

func TestStartServerWithContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = freePort(t)
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Interval = config.Duration(50 * time.Millisecond)

	srv, err := SetupServer(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- StartServerWithContext(ctx, srv)
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body map[string]interface{}
		if json.NewDecoder(resp.Body).Decode(&body) != nil {
			return false
		}
		return resp.StatusCode == http.StatusOK && body["version"] == version
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStartServerWithContext_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := testConfig(t)
	cfg.Server.Port = l.Addr().(*net.TCPAddr).Port

	srv, err := SetupServer(cfg)
	require.NoError(t, err)
	srv.Addr = l.Addr().String()

	err = StartServerWithContext(context.Background(), srv)
	assert.Error(t, err)
}
