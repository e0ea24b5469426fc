package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chemoward/api/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	users := api.Group("/users")
	// Login is a public path for auth.AuthSkipper and is reached without a token.
	users.POST("/login", h.Login)
	users.GET("/me", h.Me)
	users.POST("/register", h.Register, auth.RequireRole(auth.AdminOnly...))

	links := api.Group("/links")
	links.GET("", h.ListLinks)
	linkWrite := links.Group("", auth.RequireRole(auth.AdminOnly...))
	linkWrite.POST("", h.CreateLink)
	linkWrite.PUT("/:id", h.UpdateLink)
	linkWrite.DELETE("/:id", h.DeleteLink)
}

func (h *Handler) httpError(c echo.Context, err error, fallbackStatus int, fallback string) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Msg)
	case errors.Is(err, ErrDuplicateEmail):
		return echo.NewHTTPError(http.StatusConflict, ErrDuplicateEmail.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidCredentials.Error())
	case errors.Is(err, ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrUserNotFound.Error())
	case errors.Is(err, ErrLinkNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrLinkNotFound.Error())
	}
	h.logger.Error().Err(err).Str("route", c.Path()).Msg(fallback)
	return echo.NewHTTPError(fallbackStatus, fallback).SetInternal(err)
}

// -- Users --

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not register user.")
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not log in.")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Me(c echo.Context) error {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "access token required")
	}
	u, err := h.svc.GetUser(c.Request().Context(), id.UserID)
	if err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not fetch user.")
	}
	return c.JSON(http.StatusOK, u)
}

// -- Links --

func parseLinkID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) ListLinks(c echo.Context) error {
	links, err := h.svc.ListLinks(c.Request().Context())
	if err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not fetch links.")
	}
	return c.JSON(http.StatusOK, links)
}

func (h *Handler) CreateLink(c echo.Context) error {
	var l Link
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	l.ID = 0
	if err := h.svc.CreateLink(c.Request().Context(), &l); err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not create link.")
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) UpdateLink(c echo.Context) error {
	id, err := parseLinkID(c)
	if err != nil {
		return err
	}
	var l Link
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	l.ID = id
	if err := h.svc.UpdateLink(c.Request().Context(), &l); err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not update link.")
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) DeleteLink(c echo.Context) error {
	id, err := parseLinkID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteLink(c.Request().Context(), id); err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not delete link.")
	}
	return c.NoContent(http.StatusNoContent)
}
