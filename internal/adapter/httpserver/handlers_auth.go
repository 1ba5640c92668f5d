package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
	apperrors "github.com/sarah-ghe/Job-Tracker/internal/platform/errors"
)

func (s *Server) registerAuthRoutes(pages *echo.Group, rateLimiter echo.MiddlewareFunc) {
	toDashboard := s.guard.RedirectAuthenticated("/dashboard")

	pages.GET("/login", s.handleLoginPage, toDashboard)
	pages.POST("/login", s.handleLogin, rateLimiter, toDashboard)
	pages.GET("/signup", s.handleSignupPage, toDashboard)
	pages.POST("/signup", s.handleSignup, rateLimiter, toDashboard)
	pages.POST("/logout", s.handleLogout)
}

type authPage struct {
	CSRFToken any
	Flashes   flashes
	Error     string
	Fields    map[string]any
	Form      map[string]string
}

func (s *Server) handleLanding(c echo.Context) error {
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}
	if ws.Session.IsAuthenticated() {
		return s.redirect(c, "/dashboard")
	}
	return s.renderTemplate(c, "landing.html", map[string]any{"CSRFToken": c.Get("csrf")})
}

func (s *Server) handleLoginPage(c echo.Context) error {
	return s.renderTemplate(c, "login.html", authPage{
		CSRFToken: c.Get("csrf"),
		Flashes:   s.takeFlashes(c),
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	ctx := c.Request().Context()
	email := strings.TrimSpace(c.FormValue("email"))
	password := c.FormValue("password")

	page := authPage{CSRFToken: c.Get("csrf"), Form: map[string]string{"email": email}}
	if email == "" || password == "" {
		page.Error = "Email and password are required."
		return s.renderTemplateStatus(c, http.StatusBadRequest, "login.html", page)
	}

	// Log in on a fresh workspace so a workspace id planted before login is never authenticated.
	fresh, err := s.workspaces.Acquire(ctx, "")
	if err != nil {
		return apperrors.InternalError("failed to create workspace", err)
	}

	user, err := fresh.Session.Login(ctx, email, password)
	if err != nil {
		s.workspaces.Discard(fresh.ID)
		structured := fromAPIError(err, "Login failed. Please try again.")
		if errors.Is(err, api.ErrUnauthorized) {
			structured.Message = api.Detail(err, "Invalid email or password.")
		}
		logError(c, structured)
		page.Error = structured.Message
		return s.renderTemplateStatus(c, structured.HTTPStatus(), "login.html", page)
	}

	if old, err := workspaceFrom(c); err == nil && old.ID != fresh.ID {
		if err := old.Logout(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to clear previous workspace", "workspace_id", old.ID, "error", err)
		}
	}
	if err := s.switchWorkspace(c, fresh); err != nil {
		return err
	}

	slog.InfoContext(ctx, "User logged in", "user_id", user.ID, "workspace_id", fresh.ID)
	return s.redirect(c, "/dashboard")
}

func (s *Server) handleSignupPage(c echo.Context) error {
	return s.renderTemplate(c, "signup.html", authPage{
		CSRFToken: c.Get("csrf"),
		Flashes:   s.takeFlashes(c),
	})
}

func (s *Server) handleSignup(c echo.Context) error {
	ctx := c.Request().Context()
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}

	req := domain.SignupRequest{
		Username:  strings.TrimSpace(c.FormValue("username")),
		Email:     strings.TrimSpace(c.FormValue("email")),
		Password:  c.FormValue("password"),
		FirstName: strings.TrimSpace(c.FormValue("first_name")),
		LastName:  strings.TrimSpace(c.FormValue("last_name")),
	}
	page := authPage{
		CSRFToken: c.Get("csrf"),
		Form: map[string]string{
			"username":   req.Username,
			"email":      req.Email,
			"first_name": req.FirstName,
			"last_name":  req.LastName,
		},
	}

	switch {
	case req.Username == "" || req.Email == "" || req.Password == "":
		page.Error = "Username, email and password are required."
		return s.renderTemplateStatus(c, http.StatusBadRequest, "signup.html", page)
	case req.Password != c.FormValue("confirm_password"):
		page.Error = "Passwords do not match."
		return s.renderTemplateStatus(c, http.StatusBadRequest, "signup.html", page)
	}

	user, err := ws.Session.Signup(ctx, req)
	if err != nil {
		structured := fromAPIError(err, "Signup failed. Please try again.")
		logError(c, structured)
		page.Error = structured.Message
		page.Fields = structured.Context
		return s.renderTemplateStatus(c, structured.HTTPStatus(), "signup.html", page)
	}

	slog.InfoContext(ctx, "Account created", "user_id", user.ID)
	s.addFlash(c, flashNotice, "Account created. Please log in.")
	return s.redirect(c, "/login")
}

func (s *Server) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}

	if err := ws.Logout(ctx); err != nil {
		return apperrors.InternalError("failed to log out", err)
	}

	slog.InfoContext(ctx, "User logged out", "workspace_id", ws.ID)
	s.addFlash(c, flashNotice, "You have been logged out.")
	return s.redirect(c, "/login")
}
