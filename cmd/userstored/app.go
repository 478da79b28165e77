package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-users/internal/api"
	"github.com/celerix-dev/celerix-users/internal/backend"
	"github.com/celerix-dev/celerix-users/internal/config"
	"github.com/celerix-dev/celerix-users/internal/logger"
	"github.com/celerix-dev/celerix-users/internal/server"
	"github.com/celerix-dev/celerix-users/internal/session"
	"github.com/celerix-dev/celerix-users/internal/userstore"
	"github.com/celerix-dev/celerix-users/internal/vault"
)

const shutdownTimeout = 5 * time.Second

// App wires storage, the user store, the session watcher, the HTTP API and
// the TCP storage server.
type App struct {
	cfg     *config.Config
	log     logger.Logger
	backend *backend.Backend
	store   *userstore.Store
	session *session.Session
	router  *server.Router
	http    *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	b, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	matcher, err := userstore.MatcherFor(cfg.PasswordScheme)
	if err != nil {
		b.Close()
		return nil, err
	}

	store := userstore.New(b, userstore.Options{
		AdminPassword: cfg.AdminPassword,
		Matcher:       matcher,
		Logger:        log,
	})
	if err := store.Initialize(); err != nil {
		b.Close()
		return nil, err
	}

	sess := session.New(store, session.Options{Timeout: cfg.SessionTimeout, Logger: log})

	router := server.NewRouter(b, log)
	if cfg.DisableTLS {
		log.Warn("TLS encryption disabled for the storage protocol")
	} else {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			b.Close()
			return nil, err
		}
		router.SetCertificate(cert)
	}

	gin.SetMode(gin.ReleaseMode)
	h := &api.Handler{Store: store, Session: sess, Log: log.With("component", "http")}
	engine := api.NewEngine(h, cors.New(corsConfig(cfg.CORSOrigins)))

	return &App{
		cfg:     cfg,
		log:     log,
		backend: b,
		store:   store,
		session: sess,
		router:  router,
		http: &http.Server{
			Addr:              ":" + cfg.HTTPPort,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func corsConfig(origins string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", api.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Type", api.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if origins == "" || origins == "*" {
		c.AllowAllOrigins = true
		return c
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			c.AllowOrigins = append(c.AllowOrigins, o)
		}
	}
	return c
}

// Run serves until ctx is cancelled or a server fails, then shuts everything
// down and releases the backend.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		a.log.Info("http api listening", "addr", a.http.Addr)
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	go func() {
		if err := a.router.Listen(a.cfg.TCPPort); err != nil {
			errs <- err
		}
	}()

	watchDone := make(chan struct{})
	go func() {
		a.session.Watch(ctx, a.cfg.SessionPoll)
		close(watchDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-errs:
		a.log.Error("server failed", "error", runErr)
	}
	cancel()

	timeoutCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := a.http.Shutdown(timeoutCtx); err != nil {
		a.log.Error("http shutdown", "error", err)
	}
	if err := a.router.Stop(); err != nil {
		a.log.Warn("tcp shutdown", "error", err)
	}
	<-watchDone

	if err := a.backend.Close(); err != nil {
		a.log.Warn("closing storage", "error", err)
	}
	a.log.Info("shutdown complete")
	return runErr
}
