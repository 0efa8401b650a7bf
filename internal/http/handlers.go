package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/router"
	"github.com/fyrsmithlabs/opsagent/internal/session"
)

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Policy:   string(s.services.Router().Gate().Policy()),
		Sessions: s.services.Sessions().Len(),
	}
	if cloud, local := s.services.Models(); cloud != "" || local != "" {
		resp.Models = map[string]string{}
		if cloud != "" {
			resp.Models["cloud"] = cloud
		}
		if local != "" {
			resp.Models["local"] = local
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) bindText(c echo.Context) (string, error) {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid request body", zap.Error(err))
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return req.Text, nil
}

// handlePlan plans text and reports the safety decision without running
// anything.
func (s *Server) handlePlan(c echo.Context) error {
	text, err := s.bindText(c)
	if err != nil {
		return err
	}
	preview, err := s.services.Router().Preview(c.Request().Context(), text)
	if errors.Is(err, router.ErrEmptyInput) {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, preview)
}

func (s *Server) handleCreateSession(c echo.Context) error {
	sess, err := s.services.Sessions().Create(c.Request().Context())
	if errors.Is(err, session.ErrLimitReached) {
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, SessionResponse{ID: sess.ID})
}

func (s *Server) session(c echo.Context) (*session.Session, error) {
	sess, err := s.services.Sessions().Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return sess, err
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

// handleProcess runs one request. Every pipeline outcome is a 200; the kind
// field says what happened.
func (s *Server) handleProcess(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	text, err := s.bindText(c)
	if err != nil {
		return err
	}
	ctx := logging.WithSessionID(c.Request().Context(), sess.ID)
	res := s.services.Router().Process(ctx, sess, strings.TrimSpace(text))
	return c.JSON(http.StatusOK, newProcessResponse(sess.ID, res))
}

func (s *Server) handleClearContext(c echo.Context) error {
	err := s.services.Sessions().ClearContext(c.Request().Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	err := s.services.Sessions().Delete(c.Request().Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
