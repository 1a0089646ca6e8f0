package patient

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/dedup/internal/dedup"
	"github.com/ehr/dedup/internal/domain/pcr"
	"github.com/ehr/dedup/internal/platform/auth"
	"github.com/ehr/dedup/internal/platform/middleware"
	"github.com/ehr/dedup/pkg/pagination"
)

const defaultPreviewTimeout = 30 * time.Second

type Handler struct {
	svc            *Service
	previewTimeout time.Duration
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, previewTimeout: defaultPreviewTimeout}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dedup")

	read := g.Group("", auth.RequireRole(auth.RoleDataSteward, auth.RoleViewer))
	read.GET("/runs/latest", h.LatestRun)
	read.GET("/runs/:id", h.GetRun)
	read.GET("/runs/:id/patients", h.ListRunPatients)
	read.GET("/runs/:id/matches", h.ListRunMatches)

	write := g.Group("", auth.RequireRole(auth.RoleDataSteward))
	write.POST("/runs", h.CreateRun)
	write.POST("/preview", h.Preview, middleware.RequestTimeout(h.previewTimeout))
}

type runResponse struct {
	Run   *Run         `json:"run"`
	Clean CleanReport  `json:"clean"`
	PCR   *pcr.Summary `json:"pcr,omitempty"`
}

func (h *Handler) CreateRun(c echo.Context) error {
	persist := true
	if v := c.QueryParam("persist"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "persist must be a boolean")
		}
		persist = b
	}

	out, err := h.svc.Deduplicate(c.Request().Context(), persist)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, runResponse{Run: out.Run, Clean: out.Clean, PCR: out.PCR})
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}
	run, err := h.svc.GetRun(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) LatestRun(c echo.Context) error {
	run, err := h.svc.LatestRun(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) ListRunPatients(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListCanonical(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg))
}

func (h *Handler) ListRunMatches(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}
	matches, err := h.svc.ListMatches(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if matches == nil {
		matches = []Match{}
	}
	return c.JSON(http.StatusOK, map[string]any{"data": matches, "total": len(matches)})
}

type previewRequest struct {
	Patients []*Patient `json:"patients"`
}

func (h *Handler) Preview(c echo.Context) error {
	var req previewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for i, p := range req.Patients {
		if p == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "patients["+strconv.Itoa(i)+"] is null")
		}
	}

	out, err := h.svc.DeduplicatePatients(c.Request().Context(), req.Patients)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	case errors.Is(err, ErrNoStore):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, dedup.ErrDuplicateID), errors.Is(err, dedup.ErrFieldType), errors.Is(err, dedup.ErrInvalidRule):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
