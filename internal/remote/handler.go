package remote

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
)

const maxRequestBody = 1 << 20

// Handler serves the server over HTTP.
func (s *MemoryServer) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s.Register(e)
	return e
}

// Register wires the task routes on e.
func (s *MemoryServer) Register(e *echo.Echo) {
	e.GET("/tasks", s.listTasks)
	e.POST("/tasks", s.createTask)
	e.POST("/tasks/reorder", s.reorderTasks)
	e.PUT("/tasks/:id", s.updateTask)
	e.DELETE("/tasks/:id", s.deleteTask)
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
}

func (s *MemoryServer) listTasks(c echo.Context) error {
	if !s.authenticated(c) {
		return c.String(http.StatusUnauthorized, "invalid bearer token")
	}
	tasks, err := s.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *MemoryServer) createTask(c echo.Context) error {
	if !s.authenticated(c) {
		return c.String(http.StatusUnauthorized, "invalid bearer token")
	}
	var req CreateRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	task, err := s.Create(c.Request().Context(), req, c.Request().Header.Get(IdempotencyKeyHeader))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, task)
}

func (s *MemoryServer) updateTask(c echo.Context) error {
	if !s.authenticated(c) {
		return c.String(http.StatusUnauthorized, "invalid bearer token")
	}
	var req UpdateRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	task, err := s.Update(c.Request().Context(), c.Param("id"), req, c.Request().Header.Get(IdempotencyKeyHeader))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *MemoryServer) deleteTask(c echo.Context) error {
	if !s.authenticated(c) {
		return c.String(http.StatusUnauthorized, "invalid bearer token")
	}
	if err := s.Delete(c.Request().Context(), c.Param("id"), c.Request().Header.Get(IdempotencyKeyHeader)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *MemoryServer) reorderTasks(c echo.Context) error {
	if !s.authenticated(c) {
		return c.String(http.StatusUnauthorized, "invalid bearer token")
	}
	order := make([]domain.PositionUpdate, 0, 16)
	if err := decodeBody(c, &order); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	tasks, err := s.Reorder(c.Request().Context(), order, c.Request().Header.Get(IdempotencyKeyHeader))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, tasks)
}

// authenticated reports whether the request carries the configured bearer
// token. Without one every request is accepted.
func (s *MemoryServer) authenticated(c echo.Context) bool {
	if s.token == "" {
		return true
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
}

func decodeBody(c echo.Context, v interface{}) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respondError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	if appErr, ok := errors.AsAppError(err); ok {
		switch appErr.Type {
		case errors.ErrorTypeAuth:
			status = http.StatusUnauthorized
		case errors.ErrorTypeConflict, errors.ErrorTypeNotFound:
			status = http.StatusNotFound
		case errors.ErrorTypeRemoteUnavailable:
			status = http.StatusServiceUnavailable
		case errors.ErrorTypeValidation, errors.ErrorTypeInvalidInput:
			status = http.StatusBadRequest
		}
	}
	return c.String(status, err.Error())
}
