package agenda

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/diegoabad/front-consul-sub001/internal/platform/auth"
)

// LocalDateHeader lets the client state which calendar day it considers today.
const LocalDateHeader = "X-Local-Date"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Reads – any clinic staff
	readGroup := api.Group("", auth.RequireRole(auth.RoleSecretary, auth.RoleProfessional))
	readGroup.GET("/professionals/:id/agenda/entries", h.ListEntries)
	readGroup.GET("/professionals/:id/agenda/periods", h.ListPeriods)
	readGroup.GET("/professionals/:id/exceptions", h.ListExceptions)
	readGroup.GET("/professionals/:id/blocks", h.ListBlocks)
	readGroup.GET("/professionals/:id/availability", h.GetAvailability)

	// Agenda writes – secretaries, or the professional for their own agenda
	writeGroup := api.Group("", auth.RequireSelfOrRole("id", auth.RoleSecretary))
	writeGroup.PUT("/professionals/:id/agenda/weekdays", h.UpsertWeekdays)
	writeGroup.POST("/professionals/:id/agenda/periods", h.ReplacePeriod)
	writeGroup.PUT("/professionals/:id/agenda/periods/:valid_from", h.EditPeriod)
	writeGroup.DELETE("/professionals/:id/agenda/periods/:valid_from", h.DeletePeriod)
	writeGroup.POST("/professionals/:id/exceptions", h.CreateException)
	writeGroup.POST("/professionals/:id/blocks", h.CreateBlock)

	// Deletes by row id carry no professional in the path
	staffGroup := api.Group("", auth.RequireRole(auth.RoleSecretary))
	staffGroup.DELETE("/agenda/entries/:entry_id", h.DeleteEntry)
	staffGroup.DELETE("/exceptions/:exception_id", h.DeleteException)
	staffGroup.DELETE("/blocks/:block_id", h.DeleteBlock)
}

// -- Weekly entries --

func (h *Handler) ListEntries(c echo.Context) error {
	pid, err := professionalParam(c)
	if err != nil {
		return err
	}
	today, err := h.today(c)
	if err != nil {
		return err
	}
	historical, err := includeHistorical(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListEntries(c.Request().Context(), pid, historical, today)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"entries": items})
}

func (h *Handler) UpsertWeekdays(c echo.Context) error {
	pid, err := professionalParam(c)
	if err != nil {
		return err
	}
	today, err := h.today(c)
	if err != nil {
		return err
	}
	var req UpsertWeekdaysRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ProfessionalID = pid
	res, err := h.svc.UpsertWeekdays(c.Request().Context(), req, today)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("entry_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entry_id")
	}
	today, err := h.today(c)
	if err != nil {
		return err
	}
	expected, err := expectedVersion(c)
	if err != nil {
		return err
	}
	version, err := h.svc.DeleteEntry(c.Request().Context(), id, expected, today)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"version": version})
}

// -- Periods --

func (h *Handler) ListPeriods(c echo.Context) error {
	pid, err := professionalParam(c)
	if err != nil {
		return err
	}
	today, err := h.today(c)
	if err != nil {
		return err
	}
	out, err := h.svc.ListPeriods(c.Request().Context(), pid, today)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ReplacePeriod(c echo.Context) error {
	pid, err := professionalParam(c)
	if err != nil {
		return err
	}
	today, err := h.today(c)
	if err != nil {
		return err
	}
	var req PeriodRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ProfessionalID = pid
	res, err := h.svc.ReplacePeriod(c.Request().Context(), req, today)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) EditPeriod(c echo.Context) error {
	pid, err := professionalParam(c)
	if err != nil {
		return err
	}
	start, err := ParseDate(c.Param("valid_from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid valid_from")
	}
	today, err := h.today(c)
	if err != nil {
		return err
	}
	var req EditPeriodRequest
	if err := c.Bind(&req.PeriodRequest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ProfessionalID = pid
	req.PeriodStart = start
	res, err := h.svc.EditFuturePeriod(c.Request().Context(), req, today)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) DeletePeriod(c echo.Context) error {
	pid, err := professionalParam(c)
	if err != nil {
		return err
	}
	start, err := ParseDate(c.Param("valid_from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid valid_from")
	}
	today, err := h.today(c)
	if err != nil {
		return err
	}
	expected, err := expectedVersion(c)
	if err != nil {
		return err
	}
	res, err := h.svc.DeletePeriod(c.Request().Context(), pid, start, expected, today)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// -- Exceptions --

func (h *Handler) ListExceptions(c echo.Context) error {
	pid, err := professionalParam(c)
	if err != nil {
		return err
	}
	r, err := rangeParams(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListExceptions(c.Request().Context(), pid, r)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"exceptions": items})
}

func (h *Handler) CreateException(c echo.Context) error {
	pid, err := professionalParam(c)
	if err != nil {
		return err
	}
	var x ExceptionDate
	if err := c.Bind(&x); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	x.ProfessionalID = pid
	if err := h.svc.CreateException(c.Request().Context(), &x); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, x)
}

func (h *Handler) DeleteException(c echo.Context) error {
	id, err := uuid.Parse(c.Param("exception_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid exception_id")
	}
	if err := h.svc.DeleteException(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Blocks --

func (h *Handler) ListBlocks(c echo.Context) error {
	pid, err := professionalParam(c)
	if err != nil {
		return err
	}
	r, err := rangeParams(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListBlocks(c.Request().Context(), pid, r)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"blocks": items})
}

func (h *Handler) CreateBlock(c echo.Context) error {
	pid, err := professionalParam(c)
	if err != nil {
		return err
	}
	today, err := h.today(c)
	if err != nil {
		return err
	}
	var req BlockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ProfessionalID = pid
	b, err := h.svc.CreateBlock(c.Request().Context(), req, today)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) DeleteBlock(c echo.Context) error {
	id, err := uuid.Parse(c.Param("block_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid block_id")
	}
	if err := h.svc.DeleteBlock(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Availability --

// GetAvailability resolves ?date= for one day or ?from=&to= for a range.
func (h *Handler) GetAvailability(c echo.Context) error {
	pid, err := professionalParam(c)
	if err != nil {
		return err
	}
	if raw := c.QueryParam("date"); raw != "" {
		d, err := ParseDate(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
		}
		a, err := h.svc.Resolve(c.Request().Context(), pid, d)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, a)
	}
	r, err := rangeParams(c)
	if err != nil {
		return err
	}
	days, err := h.svc.ResolveRange(c.Request().Context(), pid, r)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"days": days})
}

// -- helpers --

// today is read once per request so every decision of the request agrees.
func (h *Handler) today(c echo.Context) (Date, error) {
	raw := c.QueryParam("today")
	if raw == "" {
		raw = c.Request().Header.Get(LocalDateHeader)
	}
	if raw == "" {
		return h.svc.Today(), nil
	}
	d, err := ParseDate(raw)
	if err != nil {
		return Date{}, echo.NewHTTPError(http.StatusBadRequest, "invalid today")
	}
	return d, nil
}

func professionalParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid professional id")
	}
	return id, nil
}

func rangeParams(c echo.Context) (DateRange, error) {
	from, err := ParseDate(c.QueryParam("from"))
	if err != nil {
		return DateRange{}, echo.NewHTTPError(http.StatusBadRequest, "invalid from")
	}
	to := from
	if raw := c.QueryParam("to"); raw != "" {
		if to, err = ParseDate(raw); err != nil {
			return DateRange{}, echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
	}
	return DateRange{From: from, To: to}, nil
}

func expectedVersion(c echo.Context) (*int, error) {
	raw := c.QueryParam("expected_version")
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid expected_version")
	}
	return &v, nil
}

func includeHistorical(c echo.Context) (bool, error) {
	raw := c.QueryParam("include_historical")
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "invalid include_historical")
	}
	return v, nil
}

// httpError maps engine errors onto HTTP responses with structured bodies.
func httpError(err error) error {
	var (
		verr *ValidationError
		oerr *OverlapError
		ierr *InvalidPeriodStartError
		derr *IllegalDeletionError
		terr *TransactionFailure
	)
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{
			"message": verr.Error(), "fields": verr.Fields})
	case errors.As(err, &oerr):
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"message": oerr.Error(), "conflicts": oerr.Conflicts})
	case errors.As(err, &ierr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": ierr.Error(), "requested": ierr.Requested, "minimum_start": ierr.Minimum})
	case errors.As(err, &derr):
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"message": derr.Error(), "valid_from": derr.ValidFrom, "reason": derr.Reason})
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrDuplicateException):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &terr):
		return echo.NewHTTPError(http.StatusInternalServerError, "the change could not be saved; nothing was modified").SetInternal(err)
	default:
		// The cause reaches the request log through Internal, never the client.
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
