// Package guard decides which routes a session may enter.
package guard

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sarah-ghe/Job-Tracker/internal/session"
)

const LoginPath = "/login"

// Route describes a page for access decisions.
type Route struct {
	Path      string
	Protected bool
}

// CanEnter reports whether a session in state auth may render route. A session that is still
// bootstrapping is treated as signed out.
func CanEnter(auth session.State, route Route) bool {
	if !route.Protected {
		return true
	}
	return auth == session.Authenticated
}

// Guard wraps CanEnter as echo middleware.
type Guard struct {
	// StateFor returns the session state of the request. It must not mutate the session.
	StateFor func(c echo.Context) (session.State, error)
}

func New(stateFor func(c echo.Context) (session.State, error)) *Guard {
	return &Guard{StateFor: stateFor}
}

// Protect redirects signed-out requests to the login page. Requests that expect JSON get a
// 401 instead of a redirect.
func (g *Guard) Protect(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		state, err := g.StateFor(c)
		if err != nil {
			return err
		}
		if CanEnter(state, Route{Path: c.Path(), Protected: true}) {
			return next(c)
		}
		if wantsJSON(c.Request()) {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		return c.Redirect(http.StatusFound, LoginPath)
	}
}

// RedirectAuthenticated sends signed-in users away from pages like login and signup.
func (g *Guard) RedirectAuthenticated(to string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			state, err := g.StateFor(c)
			if err != nil {
				return err
			}
			if state == session.Authenticated {
				return c.Redirect(http.StatusFound, to)
			}
			return next(c)
		}
	}
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
