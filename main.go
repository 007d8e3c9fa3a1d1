package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailo-app/mailo/internal/auth"
	"github.com/mailo-app/mailo/internal/config"
	"github.com/mailo-app/mailo/internal/mailapi"
	"github.com/mailo-app/mailo/internal/oauth"
	"github.com/mailo-app/mailo/internal/ratelimit"
	"github.com/mailo-app/mailo/internal/store"
	"github.com/mailo-app/mailo/internal/token"
	"github.com/mailo-app/mailo/internal/vault"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	// Set up slog to output as json with configured level
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	ps, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to set up postgres store: %w", err)
	}
	defer ps.Close()

	// Run database migrations
	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	if err := ps.Migrate(ctx, migrationsFS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Redis is optional. Without it every session lookup falls through to
	// Postgres, which is fine for a single-user deployment.
	var cache token.SessionCache = store.NoopCache{}
	var cacheHealth auth.HealthChecker = store.NoopCache{}
	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis client: %w", err)
		}
		defer rdb.Close()
		rc := store.NewRedisCache(rdb)
		cache, cacheHealth = rc, rc
	} else {
		slog.Info("REDIS_URL not set, session caching disabled")
	}

	v, err := vault.New(cfg.SessionSecret)
	if err != nil {
		return fmt.Errorf("failed to set up token vault: %w", err)
	}

	// OIDC discovery hits the network once at startup.
	provider, err := oauth.NewGoogleProvider(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	if err != nil {
		return fmt.Errorf("failed to set up google provider: %w", err)
	}

	tm := token.New(ps, cache, v, provider)
	tm.SessionTTL = cfg.SessionTTL

	rl := ratelimit.New(cfg.RateVerifyMax, cfg.RateVerifyWindow)
	defer rl.Stop()

	// Hash the shared password once; request handling never sees the plaintext.
	passwordHash, err := auth.HashPassword(cfg.AppPassword)
	if err != nil {
		return fmt.Errorf("failed to hash app password: %w", err)
	}

	h := auth.AuthHandler{
		TM:            tm,
		RL:            rl,
		Provider:      provider,
		PasswordHash:  passwordHash,
		SigningSecret: []byte(cfg.SessionSecret),
		BaseURL:       cfg.BaseURL,
		SessionTTL:    cfg.SessionTTL,
	}
	mh := mailapi.MailHandler{NewClient: mailapi.DefaultClientFactory}
	hh := auth.HealthHandler{PS: ps, Cache: cacheHealth}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{Handler: buildRouter(&h, &mh, &hh, cfg.BaseURL)}

	// Session reaper goroutine; lazy deletes handle correctness, this bounds
	// table growth for sessions nobody ever touches again. Runs every 24h.
	reaperCtx, cancelReaper := context.WithCancel(ctx)
	defer cancelReaper()
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := ps.CleanupExpiredSessions(reaperCtx)
				if err != nil {
					slog.Warn("session cleanup failed", "error", err)
				} else {
					slog.Info("session cleanup complete", "deleted", n)
				}
			case <-reaperCtx.Done():
				return
			}
		}
	}()

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("mailo listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(h *auth.AuthHandler, mh *mailapi.MailHandler, hh *auth.HealthHandler, frontendOrigin string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// The frontend lives on its own origin and sends cookies cross-site.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{frontendOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", hh.CheckHealth)

	r.Post("/auth/verify-password", h.VerifyPassword)
	r.Get("/auth/login", h.Login)
	r.Get("/auth/callback", h.Callback)
	r.Post("/auth/logout", h.Logout)

	// Authentication required routes
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/auth/me", h.Me)
		r.Get("/api/messages", mh.List)
		r.Get("/api/messages/{id}", mh.Get)
		r.Post("/api/messages/send", mh.Send)
	})

	return r
}
