package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api"
	"github.com/sarah-ghe/Job-Tracker/internal/app"
	"github.com/sarah-ghe/Job-Tracker/internal/platform/correlation"
	apperrors "github.com/sarah-ghe/Job-Tracker/internal/platform/errors"
	"github.com/sarah-ghe/Job-Tracker/internal/session"
)

const (
	ctxKeyWorkspace     = "workspace"
	ctxKeyCookieSession = "cookie_session"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			if _, ok := errors.AsType[*echo.HTTPError](err); ok {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if ws, ok := c.Get(ctxKeyWorkspace).(*app.Workspace); ok {
		attrs = append(attrs, "workspace_id", ws.ID)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeUnauthorized:
		slog.InfoContext(ctx, "Unauthorized", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Job API error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// fromAPIError maps a remote API failure onto the structured error the browser sees.
func fromAPIError(err error, fallback string) *apperrors.Error {
	if _, ok := errors.AsType[*apperrors.Error](err); ok {
		return apperrors.AsStructuredError(err)
	}

	apiErr, ok := errors.AsType[*api.Error](err)
	if !ok {
		return apperrors.InternalError(fallback, err)
	}

	msg := api.Detail(err, fallback)
	var out *apperrors.Error
	switch apiErr.Kind {
	case api.KindAuthenticationFailed:
		out = apperrors.UnauthorizedError(msg)
	case api.KindValidationFailed:
		out = apperrors.ValidationError(msg)
		for field, fieldMsg := range apiErr.Fields {
			out.WithField(field, fieldMsg)
		}
	case api.KindNotFound:
		out = apperrors.NotFoundError(msg)
	case api.KindNetworkUnreachable, api.KindServerFault:
		out = apperrors.ExternalError(fallback, err)
	default:
		out = apperrors.InternalError(fallback, err)
	}
	return out.WithField("api_path", apiErr.Path)
}

// loadWorkspace resolves the browser's workspace from its cookie, creating one on first visit.
func (s *Server) loadWorkspace(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// On a decode failure gorilla still hands back a fresh session.
		sess, err := s.sessionStore.Get(c.Request(), sessionName)
		if err != nil {
			slog.DebugContext(c.Request().Context(), "Discarding unreadable session cookie", "error", err)
		}

		id, _ := sess.Values[sessionKeyWorkspaceID].(string)
		ws, err := s.workspaces.Acquire(c.Request().Context(), id)
		if err != nil {
			return apperrors.InternalError("failed to load workspace", err)
		}

		if ws.ID != id {
			sess.Values[sessionKeyWorkspaceID] = ws.ID
			if err := sess.Save(c.Request(), c.Response().Writer); err != nil {
				return apperrors.InternalError("failed to save session", err)
			}
		}

		c.Set(ctxKeyWorkspace, ws)
		c.Set(ctxKeyCookieSession, sess)
		return next(c)
	}
}

func workspaceFrom(c echo.Context) (*app.Workspace, error) {
	ws, ok := c.Get(ctxKeyWorkspace).(*app.Workspace)
	if !ok {
		return nil, apperrors.InternalError("workspace missing from request context", nil)
	}
	return ws, nil
}

func (s *Server) sessionState(c echo.Context) (session.State, error) {
	ws, err := workspaceFrom(c)
	if err != nil {
		return session.Anonymous, err
	}
	return ws.Session.State(), nil
}

// switchWorkspace points the browser cookie at a different workspace.
func (s *Server) switchWorkspace(c echo.Context, ws *app.Workspace) error {
	sess := cookieSession(c)
	if sess == nil {
		return apperrors.InternalError("cookie session missing from request context", nil)
	}
	sess.Values[sessionKeyWorkspaceID] = ws.ID
	if err := sess.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}
	c.Set(ctxKeyWorkspace, ws)
	return nil
}

func cookieSession(c echo.Context) *sessions.Session {
	sess, _ := c.Get(ctxKeyCookieSession).(*sessions.Session)
	return sess
}

const (
	flashNotice = "notice"
	flashError  = "error"
)

func (s *Server) addFlash(c echo.Context, kind, message string) {
	sess := cookieSession(c)
	if sess == nil {
		return
	}
	sess.AddFlash(message, kind)
	if err := sess.Save(c.Request(), c.Response().Writer); err != nil {
		slog.WarnContext(c.Request().Context(), "Failed to save flash message", "error", err)
	}
}

type flashes struct {
	Notices []string
	Errors  []string
}

func (s *Server) takeFlashes(c echo.Context) flashes {
	sess := cookieSession(c)
	if sess == nil {
		return flashes{}
	}
	var f flashes
	for _, v := range sess.Flashes(flashNotice) {
		if msg, ok := v.(string); ok {
			f.Notices = append(f.Notices, msg)
		}
	}
	for _, v := range sess.Flashes(flashError) {
		if msg, ok := v.(string); ok {
			f.Errors = append(f.Errors, msg)
		}
	}
	if len(f.Notices)+len(f.Errors) > 0 {
		if err := sess.Save(c.Request(), c.Response().Writer); err != nil {
			slog.WarnContext(c.Request().Context(), "Failed to clear flash messages", "error", err)
		}
	}
	return f
}

// sessionExpired sends the browser to the login page after the API rejected its token.
func (s *Server) sessionExpired(c echo.Context) error {
	s.addFlash(c, flashError, "Your session has expired. Please log in again.")
	return s.redirect(c, "/login")
}

// handleActionError turns a failed form action into a flash message and a redirect back.
func (s *Server) handleActionError(c echo.Context, err error, fallback, back string) error {
	if errors.Is(err, api.ErrUnauthorized) {
		return s.sessionExpired(c)
	}
	structured := fromAPIError(err, fallback)
	logError(c, structured)
	s.addFlash(c, flashError, structured.Message)
	return s.redirect(c, back)
}

func (s *Server) writeJSON(c echo.Context, status int, v any) error {
	if err := c.JSON(status, v); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
