// Package server wires the dependency graph and runs the HTTP server.
//
// The wiring order mirrors the layering:
//
//	DB → repositories → services → handlers → router
//
// Everything is constructed here once at startup; handlers never reach for
// globals.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/clipmark/clipmark/internal/auth"
	"github.com/clipmark/clipmark/internal/handler"
	"github.com/clipmark/clipmark/internal/middleware"
	"github.com/clipmark/clipmark/internal/render"
	sqliteRepo "github.com/clipmark/clipmark/internal/repository/sqlite"
	"github.com/clipmark/clipmark/internal/service"
	"github.com/clipmark/clipmark/internal/snapshot"
)

// Config carries everything the server needs from the environment.
type Config struct {
	Port               int
	DBPath             string
	JWTSecret          string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database, builds the dependency graph, and registers the
// routes. The returned server owns the DB handle and closes it on shutdown.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	github := auth.NewGitHubProvider(
		s.config.GitHubClientID,
		s.config.GitHubClientSecret,
		s.config.GitHubCallbackURL,
	)

	authService := service.NewAuthService(s.db, s.db, tokens, auth.NewClipTokenService(), s.logger)
	cache := render.NewFeedCache(s.db)
	fetcher := snapshot.NewFetcher(s.db, s.logger)
	bookmarkService := service.NewBookmarkService(s.db, s.db, cache, fetcher, s.logger)

	authHandler := handler.NewAuthHandler(github, authService, s.logger)
	clipHandler := handler.NewClipHandler(bookmarkService, s.logger)
	bookmarkHandler := handler.NewBookmarkHandler(bookmarkService, s.logger)
	feedHandler := handler.NewFeedHandler(bookmarkService, s.db, s.logger)

	requireAuth := auth.RequireAuth(tokens, authService)

	s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
	s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	s.router.Post("/auth/logout", authHandler.HandleLogout)

	s.router.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/feed", feedHandler.HandleFeed)
		r.Get("/comments", feedHandler.HandleCommentsFeed)
		// Per-comment pages, addressed the way rendered fragments link to
		// them: by id from the feed, by sibling position from the prev/next
		// navigation.
		r.Get("/comments/{id}", feedHandler.HandleCommentPage)
		r.Get("/comments/{id}/edit", feedHandler.HandleCommentEditPage)
		r.Get("/bookmarks/{bookmarkID}/comments/{idx}", feedHandler.HandleCommentBySibling)
		// Mirrored snapshot assets; the wildcard is the escaped origin URL.
		r.Get("/media/{bookmarkID}/*", feedHandler.HandleMedia)

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", authHandler.HandleMe)
			r.Post("/clip-token", authHandler.HandleIssueClipToken)

			r.Post("/clip", clipHandler.HandleClip)
			r.Get("/bookmarks/{id}", bookmarkHandler.HandleGet)
			r.Delete("/bookmarks/{id}", bookmarkHandler.HandleDelete)
			r.Post("/bookmarks/{id}/merge", bookmarkHandler.HandleMerge)
			r.Get("/bookmarks/{id}/snapshot", bookmarkHandler.HandleSnapshot)
			r.Put("/comments/{id}", bookmarkHandler.HandleEditComment)
		})
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully with a 30 second drain window.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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
