package patient

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chemoward/api/internal/platform/auth"
	"github.com/chemoward/api/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients")

	// Read and clinical write endpoints: ADMIN, DOCTOR, NURSE
	clinical := g.Group("", auth.RequireRole(auth.ClinicalRoles...))
	clinical.GET("", h.ListPatients)
	clinical.GET("/id/:id", h.GetPatient)
	clinical.GET("/search/:query", h.SearchPatients)
	clinical.GET("/id/:id/attachments/:attachmentId", h.DownloadAttachment)
	clinical.POST("", h.CreatePatient)
	clinical.PUT("/id/:id", h.UpdatePatient)
	clinical.POST("/id/:id/attachments", h.UploadAttachments)
	clinical.DELETE("/id/:id/attachments/:attachmentId", h.DeleteAttachment)
	clinical.DELETE("/id/:id/attachments", h.DeleteAttachmentByPath)

	admin := g.Group("", auth.RequireRole(auth.AdminOnly...))
	admin.DELETE("/id/:id", h.DeletePatient)
}

// httpError translates service errors into API responses. fallback is the
// message used for unexpected store failures.
func (h *Handler) httpError(c echo.Context, err error, fallbackStatus int, fallback string) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Msg)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrAttachmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrAttachmentNotFound.Error())
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

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err := h.svc.Create(c.Request().Context(), &p)
	if errors.Is(err, ErrDuplicateHN) {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("Patient with HN %s already exists.", p.HN))
	}
	if err != nil {
		return h.httpError(c, err, http.StatusBadRequest, "Could not create patient.")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg)
	if err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not fetch patients.")
	}
	pg.SetTotal(c, total)
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not fetch patient.")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), c.Param("query"), pg)
	if err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not search patients.")
	}
	pg.SetTotal(c, total)
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var u Update
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Update(c.Request().Context(), id, u)
	if errors.Is(err, ErrDuplicateHN) && u.HN != nil {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("Patient with HN %s already exists.", *u.HN))
	}
	if err != nil {
		return h.httpError(c, err, http.StatusBadRequest, "Could not update patient.")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return h.httpError(c, err, http.StatusBadRequest, "Could not delete patient.")
	}
	return c.NoContent(http.StatusNoContent)
}

// UploadAttachments accepts multipart "files" plus an optional
// "attachmentNames" JSON array giving display names by position.
func (h *Handler) UploadAttachments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "expected multipart form with files")
	}
	defer form.RemoveAll()

	files := form.File["files"]
	var names []string
	if raw := form.Value["attachmentNames"]; len(raw) > 0 && raw[0] != "" {
		if err := json.Unmarshal([]byte(raw[0]), &names); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "attachmentNames must be a JSON array of strings")
		}
	}

	uploads := make([]Upload, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			closeAll(uploads)
			return h.httpError(c, err, http.StatusBadRequest, "Could not read uploaded file.")
		}
		name := fh.Filename
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		uploads = append(uploads, Upload{Name: name, Content: f})
	}
	defer closeAll(uploads)

	p, err := h.svc.AddAttachments(c.Request().Context(), id, uploads)
	if err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not save attachments.")
	}
	return c.JSON(http.StatusOK, p)
}

func closeAll(uploads []Upload) {
	for _, u := range uploads {
		if f, ok := u.Content.(multipart.File); ok {
			f.Close()
		}
	}
}

func (h *Handler) DeleteAttachment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.RemoveAttachment(c.Request().Context(), id, c.Param("attachmentId"))
	if err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not delete attachment.")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteAttachmentByPath(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		AttachmentPath string `json:"attachmentPath"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.RemoveAttachmentsByPath(c.Request().Context(), id, body.AttachmentPath)
	if err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not delete attachment.")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DownloadAttachment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rc, att, err := h.svc.OpenAttachment(c.Request().Context(), id, c.Param("attachmentId"))
	if err != nil {
		return h.httpError(c, err, http.StatusInternalServerError, "Could not read attachment.")
	}
	defer rc.Close()

	contentType := att.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": att.Name}))
	return c.Stream(http.StatusOK, contentType, rc)
}
