package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
	"github.com/sarah-ghe/Job-Tracker/internal/app"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	"github.com/sarah-ghe/Job-Tracker/internal/guard"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/config"
	"github.com/sarah-ghe/Job-Tracker/web"
)

type workspaceRegistry interface {
	Acquire(ctx context.Context, id string) (*app.Workspace, error)
	Discard(id string)
}

type categorySource interface {
	Get(ctx context.Context) ([]domain.Category, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	workspaces workspaceRegistry
	categories categorySource
	guard      *guard.Guard

	templates      *template.Template
	sessionStore   *sessions.CookieStore
	healthChecks   []HealthCheck
	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler
	startTime      time.Time
}

type Option func(*Server)

func WithHealthChecks(checks ...HealthCheck) Option {
	return func(s *Server) { s.healthChecks = append(s.healthChecks, checks...) }
}

// WithMetrics records request metrics and serves h on /metrics.
func WithMetrics(m *metrics.HTTPMetrics, h http.Handler) Option {
	return func(s *Server) {
		s.httpMetrics = m
		s.metricsHandler = h
	}
}

func NewServer(cfg *config.Config, workspaces workspaceRegistry, categories categorySource, opts ...Option) (*Server, error) {
	templates, err := template.New("").Funcs(templateFuncs).ParseFS(web.TemplateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		workspaces:   workspaces,
		categories:   categories,
		sessionStore: setupSessionStore(cfg),
		templates:    templates,
		startTime:    time.Now(),
	}
	srv.guard = guard.New(srv.sessionState)
	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName           = "jobtracker-session"
	sessionKeyWorkspaceID = "workspace_id"
)

func (s *Server) renderTemplate(c echo.Context, name string, data any) error {
	return s.renderTemplateStatus(c, http.StatusOK, name, data)
}

func (s *Server) renderTemplateStatus(c echo.Context, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("Template execution failed", "path", c.Request().URL.Path, "error", err)
		if err := c.String(http.StatusInternalServerError, "Failed to render page"); err != nil {
			return fmt.Errorf("failed to send error response: %w", err)
		}
		return nil
	}
	if err := c.HTMLBlob(status, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}

func (s *Server) redirect(c echo.Context, to string) error {
	if err := c.Redirect(http.StatusFound, to); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return sessionStore
}
