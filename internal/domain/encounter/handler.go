package encounter

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/radarhealth/timeline/internal/domain/timeline"
	"github.com/radarhealth/timeline/internal/platform/recordsource"
	"github.com/radarhealth/timeline/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:cpmrn/encounters/:encounter/timeline", h.GetTimeline)
	api.GET("/patients/:cpmrn/encounters/:encounter/events", h.ListEvents)
}

// GetTimeline returns the consolidated encounter view. Analysis runs by
// default and can be skipped with ?analysis=false.
func (h *Handler) GetTimeline(c echo.Context) error {
	cpmrn, encounterID, err := pathParams(c)
	if err != nil {
		return err
	}

	withAnalysis := c.QueryParam("analysis") != "false"

	view, err := h.svc.BuildView(c.Request().Context(), cpmrn, encounterID, withAnalysis)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, view)
}

// ListEvents returns the flat chronological event list, paginated.
func (h *Handler) ListEvents(c echo.Context) error {
	cpmrn, encounterID, err := pathParams(c)
	if err != nil {
		return err
	}

	events, err := h.svc.Events(c.Request().Context(), cpmrn, encounterID)
	if err != nil {
		return mapServiceError(err)
	}

	pg := pagination.FromContext(c)
	start, end := pg.Window(len(events))
	page := events[start:end]
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(events), pg.Limit, pg.Offset))
}

func pathParams(c echo.Context) (string, int, error) {
	cpmrn := c.Param("cpmrn")
	if cpmrn == "" {
		return "", 0, echo.NewHTTPError(http.StatusBadRequest, "cpmrn is required")
	}
	encounterID, err := strconv.Atoi(c.Param("encounter"))
	if err != nil || encounterID <= 0 {
		return "", 0, echo.NewHTTPError(http.StatusBadRequest, "invalid encounter")
	}
	return cpmrn, encounterID, nil
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, recordsource.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient record not found")
	case errors.Is(err, timeline.ErrInvalidRecord):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "patient record is not usable")
	default:
		return echo.NewHTTPError(http.StatusBadGateway, "record source unavailable")
	}
}
