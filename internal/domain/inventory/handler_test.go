package inventory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func setupHandler() (*Handler, *mockMedicineRepo) {
	repo := newMockMedicineRepo()
	return NewHandler(NewService(repo, nil)), repo
}

func TestCreateMedicine_Handler(t *testing.T) {
	h, _ := setupHandler()
	e := echo.New()

	body := `{"name":"Paracetamol","unit_price":2.5,"quantity":100,"reorder_level":10}`
	req := httptest.NewRequest(http.MethodPost, "/medicines", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateMedicine(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestCreateMedicine_Handler_Invalid(t *testing.T) {
	h, _ := setupHandler()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/medicines", strings.NewReader(`{"unit_price":-1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateMedicine(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestGetMedicine_Handler_BadID(t *testing.T) {
	h, _ := setupHandler()
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/medicines/abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetMedicine(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestDeduct_Handler_Conflict(t *testing.T) {
	h, repo := setupHandler()
	e := echo.New()

	med := &Medicine{Name: "Amoxicillin", UnitPrice: 4, Quantity: 2}
	if err := repo.Create(context.Background(), med); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/medicines/x/deduct", strings.NewReader(`{"amount":5}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(med.ID.String())

	err := h.Deduct(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %v", err)
	}
}

func TestListLowStock_Handler(t *testing.T) {
	h, repo := setupHandler()
	e := echo.New()

	if err := repo.Create(context.Background(), &Medicine{Name: "Low", Quantity: 1, ReorderLevel: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/medicines/low-stock", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListLowStock(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one low-stock medicine, body: %s", rec.Body.String())
	}
}
