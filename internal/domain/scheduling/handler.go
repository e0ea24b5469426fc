package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chemoward/api/internal/platform/auth"
	"github.com/chemoward/api/pkg/datetime"
	"github.com/chemoward/api/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
	now    func() time.Time
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments")

	clinical := g.Group("", auth.RequireRole(auth.ClinicalRoles...))
	clinical.GET("", h.ListAppointments)
	clinical.GET("/board", h.GetBoard)
	clinical.GET("/:id", h.GetAppointment)
	clinical.POST("", h.CreateAppointment)
	clinical.PUT("/:id", h.UpdateAppointment)
	clinical.PATCH("/:id/status", h.UpdateStatus)

	// Hard delete: ADMIN only
	admin := g.Group("", auth.RequireRole(auth.AdminOnly...))
	admin.DELETE("/:id", h.DeleteAppointment)
}

func (h *Handler) httpError(c echo.Context, err error, fallbackStatus int, fallback string) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Msg)
	case errors.Is(err, ErrUnknownPatient):
		return echo.NewHTTPError(http.StatusBadRequest, ErrUnknownPatient.Error())
	case errors.Is(err, ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, ErrConflict.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	}
	h.logger.Error().Err(err).Str("route", c.Path()).Msg(fallback)
	return echo.NewHTTPError(fallbackStatus, fallback).SetInternal(err)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// ListAppointments supports ?status=a,b&patientId=&from=&to= plus paging.
func (h *Handler) ListAppointments(c echo.Context) error {
	f := Filter{Page: pagination.FromContext(c)}
	if v := c.QueryParam("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			if st = strings.TrimSpace(st); st != "" {
				f.Statuses = append(f.Statuses, st)
			}
		}
	}
	if v := c.QueryParam("patientId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patientId")
		}
		f.PatientID = id
	}
	var err error
	if f.From, err = datetime.ParseOptional(c.QueryParam("from")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from is not a valid date")
	}
	if f.To, err = datetime.ParseOptional(c.QueryParam("to")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to is not a valid date")
	}

	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return h.httpError(c, err, http.StatusBadRequest, "Could not fetch appointments.")
	}
	f.Page.SetTotal(c, total)
	return c.JSON(http.StatusOK, items)
}

// GetBoard returns the ward board for ?date=YYYY-MM-DD, default today.
func (h *Handler) GetBoard(c echo.Context) error {
	day := h.now()
	if v := c.QueryParam("date"); v != "" {
		d, err := datetime.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date is not a valid date")
		}
		day = d
	}
	board, err := h.svc.Board(c.Request().Context(), day)
	if err != nil {
		return h.httpError(c, err, http.StatusBadRequest, "Could not build ward board.")
	}
	return c.JSON(http.StatusOK, board)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.httpError(c, err, http.StatusBadRequest, "Could not fetch appointment.")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return h.httpError(c, err, http.StatusBadRequest, "Could not create appointment.")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return h.httpError(c, err, http.StatusBadRequest, "Could not update appointment.")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req TransitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Transition(c.Request().Context(), id, req)
	if err != nil {
		return h.httpError(c, err, http.StatusBadRequest, "Could not update appointment status.")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return h.httpError(c, err, http.StatusBadRequest, "Could not delete appointment.")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
