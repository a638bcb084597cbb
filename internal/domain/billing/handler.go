package billing

import (
	"errors"
	"net/http"
	"time"

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
	readGroup := api.Group("", auth.RequireRole("admin", "pharmacist", "customer"))
	readGroup.GET("/bills/:id", h.Get)
	readGroup.GET("/bills", h.List)
	readGroup.PUT("/bills/:id/payment-type", h.SetPaymentType)
	readGroup.POST("/bills/:id/pay", h.MarkAsPaid)

	staffGroup := api.Group("", auth.RequireRole("admin", "pharmacist"))
	staffGroup.PUT("/bills/:id/status", h.UpdateStatus)
	staffGroup.GET("/bills/reports/revenue", h.Revenue)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "bill not found")
	}
	return c.JSON(http.StatusOK, b)
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

type payRequest struct {
	Method string `json:"method"`
}

func (h *Handler) MarkAsPaid(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req payRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.MarkAsPaid(c.Request().Context(), id, req.Method)
	if err != nil {
		return statusHTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return statusHTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

type paymentTypeRequest struct {
	PaymentType string `json:"payment_type"`
}

func (h *Handler) SetPaymentType(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req paymentTypeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.SetPaymentType(c.Request().Context(), id, req.PaymentType)
	if err != nil {
		return statusHTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Revenue(c echo.Context) error {
	start, err := time.Parse("2006-01-02", c.QueryParam("start"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "start must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", c.QueryParam("end"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "end must be YYYY-MM-DD")
	}

	ctx := c.Request().Context()
	revenue, err := h.svc.TotalRevenue(ctx, start, end)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	count, err := h.svc.BillCount(ctx, start, end)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"start":   start.Format("2006-01-02"),
		"end":     end.Format("2006-01-02"),
		"revenue": revenue,
		"bills":   count,
	})
}

func statusHTTPError(err error) error {
	var invalid *InvalidStatusError
	if errors.As(err, &invalid) {
		return echo.NewHTTPError(http.StatusConflict, invalid.Error())
	}
	if errors.Is(err, ErrBillNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "bill not found")
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
