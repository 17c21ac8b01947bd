// Package server wires the application together: database, notifier,
// services, middleware, routes, and graceful shutdown. main.go stays
// minimal; everything composition-related lives here.
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

	"github.com/botarena/apiserver/internal/auth"
	"github.com/botarena/apiserver/internal/config"
	"github.com/botarena/apiserver/internal/handler"
	"github.com/botarena/apiserver/internal/middleware"
	"github.com/botarena/apiserver/internal/notify"
	sqliteRepo "github.com/botarena/apiserver/internal/repository/sqlite"
	"github.com/botarena/apiserver/internal/service"
)

// Server owns the router and the resources behind it. The database
// connection is closed during shutdown.
type Server struct {
	router *chi.Mux
	cfg    config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency chain: storage, notifier, token and key
// services, the service layer, handlers, and routes.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}
	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router; tests mount it directly on httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	keys := auth.NewKeyService()
	authn := auth.NewAuthenticator(tokens, s.db)

	var notifier notify.Notifier
	if s.cfg.SMTPConfigured() {
		notifier = notify.NewSMTP(notify.SMTPConfig{
			Host:     s.cfg.SMTPHost,
			Port:     s.cfg.SMTPPort,
			Username: s.cfg.SMTPUsername,
			Password: s.cfg.SMTPPassword,
			From:     s.cfg.EmailFrom,
			FromName: s.cfg.EmailName,
		}, s.logger)
	} else {
		s.logger.Warn("SMTP not configured, email delivery is log-only")
		notifier = notify.NewLog(s.logger)
	}

	affiliation := service.NewAffiliationService(s.db.Orgs())
	users := service.NewUserService(
		s.db, s.db.Orgs(), s.db, s.db, s.db,
		affiliation, notifier, keys, s.cfg.SiteURL, s.logger,
	)

	userHandler := handler.NewUserHandler(users, s.logger)

	github := auth.NewGitHubProvider(s.cfg.GitHubClientID, s.cfg.GitHubClientSecret, s.cfg.GitHubCallbackURL)
	login := service.NewLoginService(s.db, github, tokens, s.logger)
	authHandler := handler.NewAuthHandler(login, s.cfg.SiteURL, s.logger)

	if github.Configured() {
		s.router.Get("/github", authHandler.HandleLogin)
		s.router.Get("/response/github", authHandler.HandleCallback)
	} else {
		s.logger.Warn("GitHub OAuth not configured, login routes disabled")
	}
	s.router.With(authn.Optional(false)).Get("/me", authHandler.HandleMe)
	s.router.Post("/logout", authHandler.HandleLogout)

	s.router.Route("/user", func(r chi.Router) {
		r.Get("/", userHandler.HandleList)
		r.With(authn.Require(false)).Post("/", userHandler.HandleCreate)
		r.Post("/addsubscriber/{email}", userHandler.HandleSubscribe)

		r.Route("/{id}", func(r chi.Router) {
			r.With(authn.Optional(true)).Get("/", userHandler.HandleGet)
			r.With(authn.Require(true)).Put("/", userHandler.HandleUpdate)
			r.With(authn.RequireAdmin()).Delete("/", userHandler.HandleDelete)
			r.Get("/season1", userHandler.HandleSeason1)
			r.Get("/history", userHandler.HandleHistory)
			r.Post("/verify", userHandler.HandleVerify)
			r.With(authn.Require(false)).Post("/verify/resend", userHandler.HandleResendVerification)
			r.With(authn.Require(false)).Post("/api_key", userHandler.HandleResetAPIKey)
		})
	})
	s.router.With(authn.Require(false)).Post("/api_key", userHandler.HandleResetAPIKey)
	s.router.With(authn.Require(false)).Post("/invitation/user/{email}", userHandler.HandleInvite)

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
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
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
