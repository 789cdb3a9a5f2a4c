package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace-order-service/internal/auth"
	"marketplace-order-service/internal/models"
	"marketplace-order-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

// stubEngine returns canned values and records the actor it was called
// with.
type stubEngine struct {
	lastActor models.Actor

	buyNowID  int64
	buyNowErr error

	cartOrderID int64
	cartErr     error

	validatedIDs []int64
	validateErr  error

	carts []models.CartOrder

	order    *models.Order
	orderErr error

	detail    *models.OrderDetail
	detailErr error

	orders    []models.Order
	ordersErr error

	removeErr error
	clearErr  error
}

func (s *stubEngine) BuyNow(_ context.Context, actor models.Actor, _ *service.BuyNowRequest) (int64, error) {
	s.lastActor = actor
	return s.buyNowID, s.buyNowErr
}

func (s *stubEngine) AddToCart(_ context.Context, actor models.Actor, _ *service.AddToCartRequest) (int64, error) {
	s.lastActor = actor
	return s.cartOrderID, s.cartErr
}

func (s *stubEngine) ValidateCart(_ context.Context, actor models.Actor, _ *service.CheckoutRequest) ([]int64, error) {
	s.lastActor = actor
	return s.validatedIDs, s.validateErr
}

func (s *stubEngine) GetCart(_ context.Context, actor models.Actor) ([]models.CartOrder, error) {
	s.lastActor = actor
	return s.carts, nil
}

func (s *stubEngine) UpdateCartLine(_ context.Context, actor models.Actor, _ *service.UpdateCartLineRequest) (int64, error) {
	s.lastActor = actor
	return s.cartOrderID, s.cartErr
}

func (s *stubEngine) RemoveCartLine(_ context.Context, actor models.Actor, _, _ int64) error {
	s.lastActor = actor
	return s.removeErr
}

func (s *stubEngine) ClearCart(_ context.Context, actor models.Actor) error {
	s.lastActor = actor
	return s.clearErr
}

func (s *stubEngine) UpdateOrderStatus(_ context.Context, actor models.Actor, _ int64, _ string) (*models.Order, error) {
	s.lastActor = actor
	return s.order, s.orderErr
}

func (s *stubEngine) GetOrder(_ context.Context, actor models.Actor, _ int64) (*models.OrderDetail, error) {
	s.lastActor = actor
	return s.detail, s.detailErr
}

func (s *stubEngine) OrdersByUser(_ context.Context, actor models.Actor, _ int64) ([]models.Order, error) {
	s.lastActor = actor
	return s.orders, s.ordersErr
}

func (s *stubEngine) OrdersBySupplier(_ context.Context, actor models.Actor, _ int64) ([]models.Order, error) {
	s.lastActor = actor
	return s.orders, s.ordersErr
}

func setupRouter(t *testing.T, engine *stubEngine) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(engine, testSecret).SetupRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func customerToken(t *testing.T, userID int64) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, 0)
	require.NoError(t, err)
	return token
}

func checkoutBody() map[string]any {
	return map[string]any{
		"full_name":    "Amine B",
		"phone_number": "0550123456",
		"wilaya_id":    16,
		"commune_id":   1601,
	}
}

func TestAuthRequired(t *testing.T) {
	router := setupRouter(t, &stubEngine{})

	w := doJSON(t, router, http.MethodGet, "/api/v1/orders/cart", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/orders/cart", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestActorFromToken(t *testing.T) {
	engine := &stubEngine{}
	router := setupRouter(t, engine)

	w := doJSON(t, router, http.MethodGet, "/api/v1/orders/cart", nil, customerToken(t, 42))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), engine.lastActor.UserID)
}

func TestBuyNow(t *testing.T) {
	engine := &stubEngine{buyNowID: 9}
	router := setupRouter(t, engine)

	body := checkoutBody()
	body["product_id"] = 1
	body["quantity"] = 2

	w := doJSON(t, router, http.MethodPost, "/api/v1/orders/buy-now", body, customerToken(t, 7))
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(9), resp["order_id"])
}

func TestBuyNowValidationErrors(t *testing.T) {
	router := setupRouter(t, &stubEngine{})

	// Missing required fields trips binding before the engine.
	w := doJSON(t, router, http.MethodPost, "/api/v1/orders/buy-now",
		map[string]any{"product_id": 1}, customerToken(t, 7))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Errors map[string][]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors, "quantity")
	assert.Contains(t, resp.Errors, "full_name")
}

func TestBuyNowInsufficientStock(t *testing.T) {
	engine := &stubEngine{buyNowErr: &service.ValidationError{
		Message: "Validation error",
		Fields:  map[string][]string{"quantity": {"Insufficient stock for the requested quantity"}},
	}}
	router := setupRouter(t, engine)

	body := checkoutBody()
	body["product_id"] = 1
	body["quantity"] = 50

	w := doJSON(t, router, http.MethodPost, "/api/v1/orders/buy-now", body, customerToken(t, 7))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", service.ErrOrderNotFound, http.StatusNotFound},
		{"forbidden", service.ErrNotAuthorized, http.StatusForbidden},
		{"validated order", service.ErrValidatedOrder, http.StatusForbidden},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubEngine{detailErr: tt.err}
			router := setupRouter(t, engine)

			w := doJSON(t, router, http.MethodGet, "/api/v1/supplier-orders/1", nil, customerToken(t, 7))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	engine := &stubEngine{detailErr: context.DeadlineExceeded}
	router := setupRouter(t, engine)

	w := doJSON(t, router, http.MethodGet, "/api/v1/supplier-orders/1", nil, customerToken(t, 7))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Database error occurred", resp["error"])
	assert.NotContains(t, w.Body.String(), "deadline")
}

func TestGetCartWrapsData(t *testing.T) {
	engine := &stubEngine{carts: []models.CartOrder{}}
	router := setupRouter(t, engine)

	w := doJSON(t, router, http.MethodGet, "/api/v1/orders/cart", nil, customerToken(t, 7))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data": []}`, w.Body.String())
}

func TestValidateCart(t *testing.T) {
	engine := &stubEngine{validatedIDs: []int64{3, 4}}
	router := setupRouter(t, engine)

	w := doJSON(t, router, http.MethodPut, "/api/v1/orders/validate-cart", checkoutBody(), customerToken(t, 7))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OrderIDs []int64 `json:"order_ids"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []int64{3, 4}, resp.OrderIDs)
}

func TestRemoveCartLineBadIDs(t *testing.T) {
	router := setupRouter(t, &stubEngine{})
	token := customerToken(t, 7)

	w := doJSON(t, router, http.MethodDelete, "/api/v1/orders/cart/remove/abc", nil, token)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/orders/cart/remove/1?order_id=abc", nil, token)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	engine := &stubEngine{order: &models.Order{ID: 1, Status: models.OrderStatusDelivered}}
	router := setupRouter(t, engine)

	w := doJSON(t, router, http.MethodPatch, "/api/v1/orders/1/status",
		map[string]any{"status": "delivered"}, customerToken(t, 7))
	assert.Equal(t, http.StatusOK, w.Code)

	// Missing status body.
	w = doJSON(t, router, http.MethodPatch, "/api/v1/orders/1/status",
		map[string]any{}, customerToken(t, 7))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHealthEndpointsOpen(t *testing.T) {
	router := setupRouter(t, &stubEngine{})

	w := doJSON(t, router, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
