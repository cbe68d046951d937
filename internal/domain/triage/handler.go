package triage

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/ertriage/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.AdmitPatient)

	api.GET("/queue", h.ListQueue)
	api.GET("/queue/next", h.PeekNext)
	api.GET("/queue/estimate", h.EstimateWait)
	api.POST("/queue/discharge", h.DischargeNext)

	api.GET("/resources", h.GetResources)
	api.GET("/resources/:kind", h.GetResource)

	api.GET("/discharges", h.ListDischarges)
}

// DischargeResponse carries the record plus whether the sink accepted it.
type DischargeResponse struct {
	Record    *DischargeRecord `json:"record"`
	Persisted bool             `json:"persisted"`
	Warning   string           `json:"warning,omitempty"`
}

func (h *Handler) AdmitPatient(c echo.Context) error {
	var attrs Attributes
	if err := c.Bind(&attrs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Admit(c.Request().Context(), attrs)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		case errors.Is(err, ErrInsufficientResources):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries": h.svc.Queue(),
		"stats":   h.svc.Stats(),
	})
}

func (h *Handler) PeekNext(c echo.Context) error {
	p, ok := h.svc.Peek()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, ErrQueueEmpty.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) EstimateWait(c echo.Context) error {
	mins, err := h.svc.EstimateWait()
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"minutes": mins})
}

func (h *Handler) DischargeNext(c echo.Context) error {
	rec, err := h.svc.Discharge(c.Request().Context())
	switch {
	case errors.Is(err, ErrQueueEmpty):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPersistFailed):
		return c.JSON(http.StatusOK, DischargeResponse{Record: rec, Persisted: false, Warning: err.Error()})
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, DischargeResponse{Record: rec, Persisted: true})
}

func (h *Handler) GetResources(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Resources())
}

func (h *Handler) GetResource(c echo.Context) error {
	kind, err := ParseResourceKind(c.Param("kind"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	avail, capacity, err := h.svc.Availability(kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"kind":      kind.String(),
		"available": avail,
		"capacity":  capacity,
	})
}

func (h *Handler) ListDischarges(c echo.Context) error {
	lister, ok := h.svc.Sink().(DischargeLister)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "discharge history is not available for this sink")
	}
	pg := pagination.FromContext(c)
	items, total, err := lister.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	var links []string
	if prev := pg.PrevURL(c.Request().URL.Path); prev != "" {
		links = append(links, `<`+prev+`>; rel="prev"`)
	}
	if next := pg.NextURL(c.Request().URL.Path, total); next != "" {
		links = append(links, `<`+next+`>; rel="next"`)
	}
	if len(links) > 0 {
		c.Response().Header().Set("Link", strings.Join(links, ", "))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
