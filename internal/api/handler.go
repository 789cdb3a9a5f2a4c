package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketplace-order-service/internal/auth"
	"marketplace-order-service/internal/models"
	"marketplace-order-service/internal/service"
	"marketplace-order-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Engine is the cart/order surface the handlers call.
// *service.OrderEngine is the production implementation.
type Engine interface {
	BuyNow(ctx context.Context, actor models.Actor, req *service.BuyNowRequest) (int64, error)
	AddToCart(ctx context.Context, actor models.Actor, req *service.AddToCartRequest) (int64, error)
	ValidateCart(ctx context.Context, actor models.Actor, req *service.CheckoutRequest) ([]int64, error)
	GetCart(ctx context.Context, actor models.Actor) ([]models.CartOrder, error)
	UpdateCartLine(ctx context.Context, actor models.Actor, req *service.UpdateCartLineRequest) (int64, error)
	RemoveCartLine(ctx context.Context, actor models.Actor, productID, orderID int64) error
	ClearCart(ctx context.Context, actor models.Actor) error
	UpdateOrderStatus(ctx context.Context, actor models.Actor, orderID int64, status string) (*models.Order, error)
	GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.OrderDetail, error)
	OrdersByUser(ctx context.Context, actor models.Actor, userID int64) ([]models.Order, error)
	OrdersBySupplier(ctx context.Context, actor models.Actor, supplierID int64) ([]models.Order, error)
}

// Handler contains HTTP handlers
type Handler struct {
	engine    Engine
	jwtSecret []byte
}

// NewHandler creates a new HTTP handler
func NewHandler(engine Engine, jwtSecret []byte) *Handler {
	return &Handler{
		engine:    engine,
		jwtSecret: jwtSecret,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.authRequired())
	{
		orders := v1.Group("/orders")
		orders.POST("/buy-now", h.buyNow)
		orders.POST("/add-to-cart", h.addToCart)
		orders.PUT("/validate-cart", h.validateCart)
		orders.GET("/cart", h.getCart)
		orders.PUT("/cart/update", h.updateCartLine)
		orders.DELETE("/cart/remove/:product_id", h.removeCartLine)
		orders.DELETE("/cart/clear", h.clearCart)
		orders.PATCH("/:id/status", h.updateOrderStatus)

		supplierOrders := v1.Group("/supplier-orders")
		supplierOrders.GET("/:id", h.showOrder)
		supplierOrders.GET("/user/:user_id", h.ordersByUser)
		supplierOrders.GET("/supplier/:supplier_id", h.ordersBySupplier)
	}
}

const actorKey = "actor"

// authRequired resolves the bearer token into an Actor for downstream
// handlers.
func (h *Handler) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated"})
			return
		}

		actor, err := auth.ValidateToken(h.jwtSecret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated"})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func currentActor(c *gin.Context) models.Actor {
	actor, _ := c.MustGet(actorKey).(models.Actor)
	return actor
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// buyNow handles POST /orders/buy-now
func (h *Handler) buyNow(c *gin.Context) {
	var req service.BuyNowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	orderID, err := h.engine.BuyNow(c.Request.Context(), currentActor(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Order created successfully",
		"order_id": orderID,
	})
}

// addToCart handles POST /orders/add-to-cart
func (h *Handler) addToCart(c *gin.Context) {
	var req service.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	orderID, err := h.engine.AddToCart(c.Request.Context(), currentActor(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Product added to cart",
		"order_id": orderID,
	})
}

// validateCart handles PUT /orders/validate-cart
func (h *Handler) validateCart(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	orderIDs, err := h.engine.ValidateCart(c.Request.Context(), currentActor(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "All carts validated successfully",
		"order_ids": orderIDs,
	})
}

// getCart handles GET /orders/cart
func (h *Handler) getCart(c *gin.Context) {
	carts, err := h.engine.GetCart(c.Request.Context(), currentActor(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": carts})
}

// updateCartLine handles PUT /orders/cart/update
func (h *Handler) updateCartLine(c *gin.Context) {
	var req service.UpdateCartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	orderID, err := h.engine.UpdateCartLine(c.Request.Context(), currentActor(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Product quantity updated",
		"order_id": orderID,
	})
}

// removeCartLine handles DELETE /orders/cart/remove/:product_id
func (h *Handler) removeCartLine(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Invalid product ID"})
		return
	}

	var orderID int64
	if raw := c.Query("order_id"); raw != "" {
		orderID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Invalid order ID"})
			return
		}
	}

	if err := h.engine.RemoveCartLine(c.Request.Context(), currentActor(c), productID, orderID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Product removed from cart"})
}

// clearCart handles DELETE /orders/cart/clear
func (h *Handler) clearCart(c *gin.Context) {
	if err := h.engine.ClearCart(c.Request.Context(), currentActor(c)); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// updateOrderStatus handles PATCH /orders/:id/status
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Invalid order ID"})
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	order, err := h.engine.UpdateOrderStatus(c.Request.Context(), currentActor(c), orderID, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated",
		"order":   order,
	})
}

// showOrder handles GET /supplier-orders/:id
func (h *Handler) showOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Invalid order ID"})
		return
	}

	order, err := h.engine.GetOrder(c.Request.Context(), currentActor(c), orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

// ordersByUser handles GET /supplier-orders/user/:user_id
func (h *Handler) ordersByUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Invalid user ID"})
		return
	}

	orders, err := h.engine.OrdersByUser(c.Request.Context(), currentActor(c), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orders})
}

// ordersBySupplier handles GET /supplier-orders/supplier/:supplier_id
func (h *Handler) ordersBySupplier(c *gin.Context) {
	supplierID, err := strconv.ParseInt(c.Param("supplier_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Invalid supplier ID"})
		return
	}

	orders, err := h.engine.OrdersBySupplier(c.Request.Context(), currentActor(c), supplierID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orders})
}

// writeError translates engine errors into the response taxonomy:
// 404 for missing/invisible records, 403 for missing ownership and
// validated-order mutation, 422 for validation problems, 500 (with the
// detail kept server-side) for everything else.
func writeError(c *gin.Context, err error) {
	var notFound *service.NotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": notFound.Message})
		return
	}

	var forbidden *service.ForbiddenError
	if errors.As(err, &forbidden) {
		c.JSON(http.StatusForbidden, gin.H{"message": forbidden.Message})
		return
	}

	var validation *service.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": validation.Message,
			"errors":  validation.Fields,
		})
		return
	}

	util.GetLogger().Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"message": "Request failed",
		"error":   "Database error occurred",
	})
}

// writeBindingError translates gin binding failures into 422 responses
// with per-field messages.
func writeBindingError(c *gin.Context, err error) {
	fields := map[string][]string{}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := snakeCase(fe.Field())
			fields[field] = append(fields[field],
				"The "+field+" field failed on the "+fe.Tag()+" rule")
		}
	}

	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"message": "Validation error",
		"errors":  fields,
	})
}

// snakeCase turns a struct field name into its JSON form, e.g.
// "PhoneNumber" -> "phone_number", "WilayaID" -> "wilaya_id".
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && (name[i-1] < 'A' || name[i-1] > 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
