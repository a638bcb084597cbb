package reconcile

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rxcare/rxcare/internal/platform/auth"
)

// Handler exposes the manual trigger surface for operators.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.POST("/reconcile/expired-bills", h.RunExpiredBills)
	adminGroup.POST("/reconcile/low-stock", h.RunLowStock)
	adminGroup.POST("/reconcile/expiry", h.RunExpiry)
	adminGroup.GET("/reconcile/counts", h.Counts)
}

func (h *Handler) RunExpiredBills(c echo.Context) error {
	result, err := h.svc.RunExpiredBillReconciliation(c.Request().Context())
	if err != nil {
		return jobHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) RunLowStock(c echo.Context) error {
	result, err := h.svc.RunLowStockScan(c.Request().Context())
	if err != nil {
		return jobHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) RunExpiry(c echo.Context) error {
	result, err := h.svc.RunExpiryScan(c.Request().Context())
	if err != nil {
		return jobHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// Counts handles GET /reconcile/counts?days=30.
func (h *Handler) Counts(c echo.Context) error {
	ctx := c.Request().Context()
	days, err := strconv.Atoi(c.QueryParam("days"))
	if err != nil || days <= 0 {
		days = 30
	}

	pendingExpired, err := h.svc.CountPendingExpiredBills(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	lowStock, err := h.svc.CountLowStock(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	expiring, err := h.svc.CountExpiringWithin(ctx, days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"pending_expired_bills": pendingExpired,
		"low_stock":             lowStock,
		"expiring_within":       expiring,
		"days":                  days,
	})
}

func jobHTTPError(err error) error {
	if errors.Is(err, ErrJobRunning) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
