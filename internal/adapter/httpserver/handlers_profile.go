package httpserver

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
)

func (s *Server) registerProfileRoutes(pages *echo.Group) {
	pages.GET("/profile", s.handleProfile, s.guard.Protect)
	pages.POST("/profile", s.handleUpdateProfile, s.guard.Protect)
}

type profilePage struct {
	CSRFToken any
	Flashes   flashes
	User      *domain.User
	Error     string
}

func (s *Server) handleProfile(c echo.Context) error {
	ctx := c.Request().Context()
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}

	page := profilePage{CSRFToken: c.Get("csrf"), Flashes: s.takeFlashes(c)}
	user, err := ws.Session.FetchProfile(ctx)
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return s.sessionExpired(c)
	case err != nil:
		structured := fromAPIError(err, "Failed to refresh profile.")
		logError(c, structured)
		page.Error = structured.Message
		user = ws.Session.Snapshot().User
	}
	page.User = user

	return s.renderTemplate(c, "profile.html", page)
}

// profileUpdateFromForm only sets the fields present in the submitted form.
func profileUpdateFromForm(c echo.Context) domain.ProfileUpdate {
	form, err := c.FormParams()
	if err != nil {
		return domain.ProfileUpdate{}
	}
	field := func(name string) *string {
		if _, ok := form[name]; !ok {
			return nil
		}
		v := strings.TrimSpace(form.Get(name))
		return &v
	}
	return domain.ProfileUpdate{
		Username:  field("username"),
		FirstName: field("first_name"),
		LastName:  field("last_name"),
		Bio:       field("bio"),
		Location:  field("location"),
	}
}

func (s *Server) handleUpdateProfile(c echo.Context) error {
	ctx := c.Request().Context()
	ws, err := workspaceFrom(c)
	if err != nil {
		return err
	}

	user, err := ws.Session.UpdateProfile(ctx, profileUpdateFromForm(c))
	if errors.Is(err, api.ErrUnauthorized) {
		return s.sessionExpired(c)
	}
	if err != nil {
		structured := fromAPIError(err, "Failed to update profile.")
		if errors.Is(err, api.ErrValidation) {
			structured.Message = api.Detail(err, "Failed to update profile.")
		}
		logError(c, structured)
		return s.renderTemplateStatus(c, structured.HTTPStatus(), "profile.html", profilePage{
			CSRFToken: c.Get("csrf"),
			User:      ws.Session.Snapshot().User,
			Error:     structured.Message,
		})
	}

	slog.InfoContext(ctx, "Profile updated", "user_id", user.ID)
	s.addFlash(c, flashNotice, "Profile updated.")
	return s.redirect(c, "/profile")
}
