// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and routes.
// It decides:
//   - Which URL patterns map to which handler functions
//   - What middleware runs on which routes
//   - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go creates:
//
//	config.Config, logger, filestore.Store → passed to Server
//	Server.New() creates: sqlite.DB → Identity/CatalogService → handlers
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/photoshare/internal/auth"
	"github.com/sakif/photoshare/internal/config"
	"github.com/sakif/photoshare/internal/filestore"
	"github.com/sakif/photoshare/internal/handler"
	"github.com/sakif/photoshare/internal/middleware"
	sqliteRepo "github.com/sakif/photoshare/internal/repository/sqlite"
	"github.com/sakif/photoshare/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after the HTTP
// server has drained, so in-flight requests never see a closed pool.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	files  filestore.Store
	tokens *auth.TokenService // nil when JWT_SECRET is unset
}

// New opens the database and builds the router.
//
// files is chosen by the caller (local disk or MinIO). When it is a
// *filestore.Local, its root is served at /uploads/.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo to avoid confusion with the
// sqlite driver package.
func New(cfg config.Config, logger *slog.Logger, files filestore.Store) (*Server, error) {
	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath, sqliteRepo.Options{MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var tokens *auth.TokenService
	if cfg.JWTSecret != "" {
		tokens, err = auth.NewTokenService(cfg.JWTSecret)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring tokens: %w", err)
		}
	} else {
		logger.Warn("JWT_SECRET not set: sessions and /api/me are disabled")
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		files:  files,
		tokens: tokens,
	}
	s.setupRoutes()

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /api/signup              → create account
// POST   /api/login               → sign in with password
// POST   /api/login/recover       → sign in with security answer
// POST   /api/logout              → clear session cookie
// GET    /api/me                  → current user (JWT required)
// GET    /api/photos              → list photos with likes
// POST   /api/photos/upload       → upload photo (multipart)
// POST   /api/photos/like         → toggle like
// PUT    /api/photos/{id}         → edit photo
// DELETE /api/photos/{id}         → delete photo
// GET    /api/users/{username}    → public profile
// POST   /api/users/update        → rename
// POST   /api/profile/upload      → profile picture (multipart)
// GET    /uploads/*               → stored files (local storage only)
// GET    /metrics                 → Prometheus
// GET    /healthz                 → health check
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Logger: logs each request with timing info
// 4. Recoverer: catches panics and returns 500 instead of crashing
// 5. Metrics: per-route latency histogram
// 6. CORS: the web client is served from another origin
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Metrics)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !allowsAnyOrigin(s.config.CORSOrigins),
		MaxAge:           300,
	}))

	// === Services ===
	// s.db implements all three repository interfaces.
	identity := service.NewIdentityService(
		s.db,
		auth.NewPasswordService(s.config.BcryptCost),
		s.tokens,
		auth.NewAttemptLimiter(s.config.AuthAttemptsPerMinute, s.config.AuthAttemptBurst),
		s.files,
		s.logger,
	)
	catalog := service.NewCatalogService(s.db, s.db, s.db, s.files, s.logger)

	// === Handlers ===
	var sessionTTL time.Duration
	if s.tokens != nil {
		sessionTTL = s.tokens.TTL()
	}
	authHandler := handler.NewAuthHandler(identity, sessionTTL, s.logger)
	userHandler := handler.NewUserHandler(identity, s.files, s.logger)
	photoHandler := handler.NewPhotoHandler(catalog, s.files, s.logger)

	checks := map[string]handler.Pinger{"database": s.db}
	if p, ok := s.files.(handler.Pinger); ok {
		checks["storage"] = p
	}
	healthHandler := handler.NewHealthHandler(checks, s.logger)

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/login/recover", authHandler.HandleRecover)
		r.Post("/logout", authHandler.HandleLogout)
		if s.tokens != nil {
			r.With(auth.RequireAuth(s.tokens)).Get("/me", authHandler.HandleMe)
		}

		r.Get("/photos", photoHandler.HandleList)
		r.Post("/photos/upload", photoHandler.HandleUpload)
		r.Post("/photos/like", photoHandler.HandleLike)
		r.Put("/photos/{id}", photoHandler.HandleEdit)
		r.Delete("/photos/{id}", photoHandler.HandleDelete)

		r.Get("/users/{username}", userHandler.HandleGet)
		r.Post("/users/update", userHandler.HandleRename)
		r.Post("/profile/upload", userHandler.HandleProfilePicUpload)
	})

	// === Uploaded files ===
	// http.StripPrefix removes "/uploads/" before the file lookup, so
	// GET /uploads/photo/x.jpg → serves {root}/photo/x.jpg
	// Directory paths answer 404.
	if local, ok := s.files.(*filestore.Local); ok {
		fileServer := http.FileServer(local.FileSystem())
		s.router.Handle(filestore.URLPrefix+"*", http.StripPrefix(filestore.URLPrefix, fileServer))
	}

	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", healthHandler.HandleHealth)
}

// A credentialed CORS response may not use the "*" origin.
func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	// WriteTimeout is generous because uploads of up to 50 MB share it.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("storage", s.config.StorageBackend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
