package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-users/internal/config"
	"github.com/celerix-dev/celerix-users/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Backend:        config.BackendFile,
		DataDir:        t.TempDir(),
		Origin:         "daemon",
		TCPPort:        "0",
		HTTPPort:       "0",
		DisableTLS:     true,
		CORSOrigins:    "http://localhost:5173, http://example.test",
		AdminPassword:  "s3cret",
		PasswordScheme: "bcrypt",
		SessionTimeout: time.Minute,
		SessionPoll:    10 * time.Millisecond,
	}
}

func TestApp_ServesAPI(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t), logger.NewNoOpLogger())
	require.NoError(t, err)
	defer app.backend.Close()

	_, ok := app.store.ValidateCredentials("admin", "s3cret")
	require.True(t, ok, "admin uses the configured password and scheme")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.test")
	w := httptest.NewRecorder()
	app.http.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "http://example.test", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t), logger.NewNoOpLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return app.router.Addr() != nil }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_InvalidScheme(t *testing.T) {
	cfg := testConfig(t)
	cfg.PasswordScheme = "md5"

	_, err := NewApp(context.Background(), cfg, logger.NewNoOpLogger())
	require.Error(t, err)
}

func TestCorsConfig(t *testing.T) {
	require.True(t, corsConfig("*").AllowAllOrigins)
	require.True(t, corsConfig("").AllowAllOrigins)

	c := corsConfig("http://a.test, ,http://b.test")
	require.False(t, c.AllowAllOrigins)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, c.AllowOrigins)
}
