package prescription

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rxcare/rxcare/internal/platform/auth"
	"github.com/rxcare/rxcare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Customers submit and read their own prescriptions.
	customerGroup := api.Group("", auth.RequireRole("admin", "pharmacist", "customer"))
	customerGroup.POST("/prescriptions", h.Create)
	customerGroup.GET("/prescriptions/:id", h.Get)
	customerGroup.GET("/prescriptions", h.List)

	// Workflow actions – staff only.
	staffGroup := api.Group("", auth.RequireRole("admin", "pharmacist"))
	staffGroup.POST("/prescriptions/:id/review", h.Review)
	staffGroup.POST("/prescriptions/:id/dispense", h.MarkDispensed)
	staffGroup.POST("/prescriptions/:id/complete", h.Complete)
	staffGroup.PUT("/prescriptions/:id/pharmacist", h.AssignPharmacist)
	staffGroup.GET("/prescriptions/:id/fulfillable", h.CanBeFulfilled)
}

func (h *Handler) Create(c echo.Context) error {
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if p.CustomerID == uuid.Nil {
		if uid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
			p.CustomerID = uid
		}
	}
	if err := h.svc.Create(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	if v := c.QueryParam("customer_id"); v != "" {
		customerID, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid customer_id")
		}
		items, total, err := h.svc.ListByCustomer(c.Request().Context(), customerID, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	status := c.QueryParam("status")
	if status == "" {
		status = StatusPending
	}
	items, total, err := h.svc.ListByStatus(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

func (h *Handler) Review(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pharmacistID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown reviewer")
	}

	p, err := h.svc.Review(c.Request().Context(), id, pharmacistID, req.Decision, req.Note)
	if err != nil {
		return transitionHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) MarkDispensed(c echo.Context) error {
	return h.applyTransition(c, h.svc.MarkDispensed)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.applyTransition(c, h.svc.Complete)
}

func (h *Handler) applyTransition(c echo.Context, fn func(context.Context, uuid.UUID) (*Prescription, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := fn(c.Request().Context(), id)
	if err != nil {
		return transitionHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type assignRequest struct {
	PharmacistID uuid.UUID `json:"pharmacist_id"`
}

func (h *Handler) AssignPharmacist(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PharmacistID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "pharmacist_id is required")
	}
	if err := h.svc.AssignPharmacist(c.Request().Context(), id, req.PharmacistID); err != nil {
		if errors.Is(err, ErrPrescriptionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CanBeFulfilled(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ok, err := h.svc.CanBeFulfilled(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrPrescriptionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"id": id, "fulfillable": ok})
}

func transitionHTTPError(err error) error {
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) {
		return echo.NewHTTPError(http.StatusConflict, invalid.Error())
	}
	if errors.Is(err, ErrPrescriptionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
