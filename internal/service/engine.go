package service

import (
	"context"
	"errors"
	"fmt"

	"marketplace-order-service/internal/models"
	"marketplace-order-service/internal/store"
	"marketplace-order-service/internal/util"

	"go.uber.org/zap"
)

// Store is the persistence surface the engine needs. *store.Store is the
// production implementation.
type Store interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	WilayaExists(ctx context.Context, id int64) (bool, error)
	CommuneExists(ctx context.Context, id int64) (bool, error)
	SupplierOwnedBy(ctx context.Context, supplierID, userID int64) (bool, error)

	PlaceImmediateOrder(ctx context.Context, order *models.Order, line *models.OrderLine) error
	AddProductToCart(ctx context.Context, userID int64, product *models.Product, quantity int) (int64, error)
	ValidateOrders(ctx context.Context, userID int64, profile models.ShippingProfile) ([]models.ValidatedOrder, error)

	ActiveOrders(ctx context.Context, userID int64) ([]models.Order, error)
	ActiveOrderByID(ctx context.Context, orderID, userID int64) (*models.Order, error)
	OrderByID(ctx context.Context, orderID int64) (*models.Order, error)
	CartContents(ctx context.Context, userID int64) ([]models.CartOrder, error)
	OrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error)
	ValidatedOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	ValidatedOrdersBySupplier(ctx context.Context, supplierID int64) ([]models.Order, error)

	SetLineQuantity(ctx context.Context, orderID, productID int64, quantity int) error
	RemoveLine(ctx context.Context, orderID, productID int64) (bool, error)
	ClearActiveOrders(ctx context.Context, userID int64) (int64, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
}

var _ Store = (*store.Store)(nil)

// EventPublisher hands order events to the notification dispatcher.
// Publishing is fire-and-forget: failures are logged and never roll back
// the order write.
type EventPublisher interface {
	PublishOrderValidated(ctx context.Context, event *models.OrderValidatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// Cache is the Redis surface the engine uses: a stock fast path for
// buy-now and a cart payload cache for reads.
type Cache interface {
	ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error)
	ReleaseStock(ctx context.Context, productID int64, quantity int) error
	InitStock(ctx context.Context, productID int64, available int) error
	GetCachedCart(ctx context.Context, userID int64) ([]models.CartOrder, bool)
	SetCachedCart(ctx context.Context, userID int64, carts []models.CartOrder)
	InvalidateCart(ctx context.Context, userID int64)
}

// OrderEngine implements the cart/order lifecycle: buy-now, cart
// mutations, checkout validation, status transitions, and the query
// operations. Every call takes the acting principal explicitly.
type OrderEngine struct {
	store  Store
	cache  Cache
	events EventPublisher
	logger *zap.Logger
}

// NewOrderEngine creates a new order engine
func NewOrderEngine(store Store, cache Cache, events EventPublisher) *OrderEngine {
	return &OrderEngine{
		store:  store,
		cache:  cache,
		events: events,
		logger: util.GetLogger(),
	}
}

// CheckoutRequest carries the shipping profile attached at checkout.
type CheckoutRequest struct {
	FullName    string  `json:"full_name" binding:"required,max=255"`
	PhoneNumber string  `json:"phone_number" binding:"required,max=20"`
	Address     *string `json:"address" binding:"omitempty,max=255"`
	WilayaID    int64   `json:"wilaya_id" binding:"required"`
	CommuneID   int64   `json:"commune_id" binding:"required"`
}

func (r *CheckoutRequest) profile() models.ShippingProfile {
	return models.ShippingProfile{
		FullName:    r.FullName,
		PhoneNumber: r.PhoneNumber,
		Address:     r.Address,
		WilayaID:    r.WilayaID,
		CommuneID:   r.CommuneID,
	}
}

// BuyNowRequest creates a validated order for a single product,
// bypassing the cart.
type BuyNowRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
	CheckoutRequest
}

// AddToCartRequest adds a product to the actor's cart for the product's
// supplier.
type AddToCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// UpdateCartLineRequest overwrites a line's quantity in a cart.
type UpdateCartLineRequest struct {
	OrderID   int64 `json:"order_id" binding:"required"`
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// checkRegions verifies the wilaya/commune references of a shipping
// profile.
func (e *OrderEngine) checkRegions(ctx context.Context, profile models.ShippingProfile) error {
	ok, err := e.store.WilayaExists(ctx, profile.WilayaID)
	if err != nil {
		return err
	}
	if !ok {
		return errUnknownRegion("wilaya_id")
	}
	ok, err = e.store.CommuneExists(ctx, profile.CommuneID)
	if err != nil {
		return err
	}
	if !ok {
		return errUnknownRegion("commune_id")
	}
	return nil
}

// BuyNow creates a validated order for a single product and decrements
// catalog stock in one transaction. Purchases that would oversell are
// rejected.
func (e *OrderEngine) BuyNow(ctx context.Context, actor models.Actor, req *BuyNowRequest) (int64, error) {
	ctx, span := util.StartSpan(ctx, "OrderEngine.BuyNow")
	defer span.End()

	if err := e.checkRegions(ctx, req.profile()); err != nil {
		return 0, err
	}

	product, err := e.store.GetProduct(ctx, req.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, err
	}

	// Redis fast path: reject obviously overselling purchases before
	// opening the transaction. The row lock in the store remains the
	// source of truth.
	reserved := false
	if e.cache != nil {
		ok, err := e.cache.ReserveStock(ctx, product.ID, req.Quantity)
		if err != nil {
			e.logger.Warn("Stock cache unavailable, relying on DB check",
				zap.Int64("product_id", product.ID),
				zap.Error(err))
		} else if !ok {
			util.StockRejectionsTotal.WithLabelValues("cache").Inc()
			return 0, errInsufficientStock()
		} else {
			reserved = true
		}
	}

	order := &models.Order{
		UserID:      actor.UserID,
		SupplierID:  product.SupplierID,
		WilayaID:    &req.WilayaID,
		CommuneID:   &req.CommuneID,
		FullName:    &req.FullName,
		PhoneNumber: &req.PhoneNumber,
		Address:     req.Address,
		Status:      models.OrderStatusPending,
		IsValidated: true,
	}
	line := &models.OrderLine{
		ProductID:  product.ID,
		SupplierID: product.SupplierID,
		Quantity:   req.Quantity,
		UnitPrice:  product.Price,
	}

	if err := e.store.PlaceImmediateOrder(ctx, order, line); err != nil {
		if reserved {
			e.releaseStock(product.ID, req.Quantity)
		}
		if errors.Is(err, store.ErrInsufficientStock) {
			util.StockRejectionsTotal.WithLabelValues("db").Inc()
			return 0, errInsufficientStock()
		}
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrProductNotFound
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return 0, fmt.Errorf("failed to place order: %w", err)
	}

	util.BuyNowOrdersTotal.Inc()
	e.logger.Info("Buy-now order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", actor.UserID),
		zap.Int64("product_id", product.ID),
		zap.Int("quantity", req.Quantity))

	return order.ID, nil
}

// releaseStock compensates a cache reservation after a failed write.
func (e *OrderEngine) releaseStock(productID int64, quantity int) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := e.cache.ReleaseStock(ctx, productID, quantity); err != nil {
		e.logger.Error("Failed to release reserved stock",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}

// AddToCart merges a product into the actor's unvalidated order for the
// product's supplier, creating the order when none exists.
func (e *OrderEngine) AddToCart(ctx context.Context, actor models.Actor, req *AddToCartRequest) (int64, error) {
	ctx, span := util.StartSpan(ctx, "OrderEngine.AddToCart")
	defer span.End()

	product, err := e.store.GetProduct(ctx, req.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, err
	}

	orderID, err := e.store.AddProductToCart(ctx, actor.UserID, product, req.Quantity)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return 0, fmt.Errorf("failed to add product to cart: %w", err)
	}

	e.invalidateCart(ctx, actor.UserID)
	util.CartAddsTotal.Inc()
	e.logger.Info("Product added to cart",
		zap.Int64("order_id", orderID),
		zap.Int64("user_id", actor.UserID),
		zap.Int64("product_id", product.ID),
		zap.Int("quantity", req.Quantity))

	return orderID, nil
}

// ValidateCart checks out every unvalidated order of the actor at once,
// attaching one shared shipping profile to all of them.
func (e *OrderEngine) ValidateCart(ctx context.Context, actor models.Actor, req *CheckoutRequest) ([]int64, error) {
	ctx, span := util.StartSpan(ctx, "OrderEngine.ValidateCart")
	defer span.End()

	profile := req.profile()
	if err := e.checkRegions(ctx, profile); err != nil {
		return nil, err
	}

	validated, err := e.store.ValidateOrders(ctx, actor.UserID, profile)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoOrdersToValidate
	}
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to validate orders: %w", err)
	}

	e.invalidateCart(ctx, actor.UserID)

	ids := make([]int64, len(validated))
	for i, v := range validated {
		ids[i] = v.ID
		e.logger.Info("Order validated",
			zap.Int64("user_id", actor.UserID),
			zap.Int64("order_id", v.ID),
			zap.Int64("supplier_id", v.SupplierID))

		event := &models.OrderValidatedEvent{
			BaseEvent:     newBaseEvent(models.EventTypeOrderValidated),
			OrderID:       v.ID,
			SupplierID:    v.SupplierID,
			CustomerName:  profile.FullName,
			CustomerPhone: profile.PhoneNumber,
			TotalItems:    v.TotalItems,
			Status:        v.Status,
		}
		if err := e.events.PublishOrderValidated(ctx, event); err != nil {
			e.logger.Error("Failed to publish OrderValidated event",
				zap.Int64("order_id", v.ID),
				zap.Error(err))
		}
	}

	util.OrdersValidatedTotal.Add(float64(len(ids)))
	return ids, nil
}

// GetCart returns the actor's unvalidated orders with nested lines,
// products, and pictures. An empty cart is an empty list, not an error.
func (e *OrderEngine) GetCart(ctx context.Context, actor models.Actor) ([]models.CartOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderEngine.GetCart")
	defer span.End()

	if e.cache != nil {
		if carts, ok := e.cache.GetCachedCart(ctx, actor.UserID); ok {
			util.CartCacheHitsTotal.Inc()
			return carts, nil
		}
	}

	carts, err := e.store.CartContents(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	if e.cache != nil {
		e.cache.SetCachedCart(ctx, actor.UserID, carts)
	}
	return carts, nil
}

// UpdateCartLine overwrites the quantity of a product line in one of the
// actor's carts. The ownership check is folded into the scoped lookup.
func (e *OrderEngine) UpdateCartLine(ctx context.Context, actor models.Actor, req *UpdateCartLineRequest) (int64, error) {
	ctx, span := util.StartSpan(ctx, "OrderEngine.UpdateCartLine")
	defer span.End()

	order, err := e.store.ActiveOrderByID(ctx, req.OrderID, actor.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrCartNotFoundOrValidated
	}
	if err != nil {
		return 0, err
	}

	err = e.store.SetLineQuantity(ctx, order.ID, req.ProductID, req.Quantity)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrLineNotFound
	}
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return 0, fmt.Errorf("failed to update cart line: %w", err)
	}

	e.invalidateCart(ctx, actor.UserID)
	return order.ID, nil
}

// RemoveCartLine removes a product line from a cart, deleting the cart
// when its last line goes. When orderID is zero the first unvalidated
// order of the actor is targeted.
func (e *OrderEngine) RemoveCartLine(ctx context.Context, actor models.Actor, productID, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderEngine.RemoveCartLine")
	defer span.End()

	var order *models.Order
	if orderID != 0 {
		ord, err := e.store.OrderByID(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrCartNotFound
		}
		if err != nil {
			return err
		}
		if ord.UserID != actor.UserID {
			return ErrCartNotFound
		}
		if ord.IsValidated {
			return ErrValidatedOrder
		}
		order = ord
	} else {
		orders, err := e.store.ActiveOrders(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return ErrCartNotFound
		}
		order = &orders[0]
	}

	orderDeleted, err := e.store.RemoveLine(ctx, order.ID, productID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrLineNotFound
	}
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return fmt.Errorf("failed to remove cart line: %w", err)
	}

	e.invalidateCart(ctx, actor.UserID)
	if orderDeleted {
		e.logger.Info("Cart deleted with its last line",
			zap.Int64("order_id", order.ID),
			zap.Int64("user_id", actor.UserID))
	}
	return nil
}

// ClearCart deletes all of the actor's unvalidated orders and their
// lines.
func (e *OrderEngine) ClearCart(ctx context.Context, actor models.Actor) error {
	ctx, span := util.StartSpan(ctx, "OrderEngine.ClearCart")
	defer span.End()

	removed, err := e.store.ClearActiveOrders(ctx, actor.UserID)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	if removed == 0 {
		return ErrNoActiveCart
	}

	e.invalidateCart(ctx, actor.UserID)
	e.logger.Info("Cart cleared",
		zap.Int64("user_id", actor.UserID),
		zap.Int64("orders_removed", removed))
	return nil
}

// UpdateOrderStatus overwrites an order's status. Allowed only for the
// placing customer or the owner of the order's supplier; any status may
// move to any other status.
func (e *OrderEngine) UpdateOrderStatus(ctx context.Context, actor models.Actor, orderID int64, status string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderEngine.UpdateOrderStatus")
	defer span.End()

	if !models.ValidStatus(status) {
		return nil, errInvalidStatus()
	}

	order, err := e.store.OrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := e.authorizeOrderAccess(ctx, actor, order); err != nil {
		return nil, err
	}

	oldStatus := order.Status
	if err := e.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = status

	util.StatusUpdatesTotal.WithLabelValues(status).Inc()
	e.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("old_status", oldStatus),
		zap.String("new_status", status))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   order.ID,
		UserID:    order.UserID,
		OldStatus: oldStatus,
		NewStatus: status,
	}
	if err := e.events.PublishOrderStatusChanged(ctx, event); err != nil {
		e.logger.Error("Failed to publish OrderStatusChanged event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	return order, nil
}

// GetOrder returns a placed order with its lines. Unvalidated orders are
// not visible here.
func (e *OrderEngine) GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderEngine.GetOrder")
	defer span.End()

	order, err := e.store.OrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if !order.IsValidated {
		return nil, ErrOrderNotFound
	}

	if err := e.authorizeOrderAccess(ctx, actor, order); err != nil {
		return nil, err
	}

	lines, err := e.store.OrderLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	return &models.OrderDetail{Order: *order, Lines: lines}, nil
}

// OrdersByUser returns a user's placed orders; callers may only list
// their own.
func (e *OrderEngine) OrdersByUser(ctx context.Context, actor models.Actor, userID int64) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderEngine.OrdersByUser")
	defer span.End()

	if actor.UserID != userID {
		return nil, ErrNotAuthorized
	}
	return e.store.ValidatedOrdersByUser(ctx, userID)
}

// OrdersBySupplier returns a supplier's placed orders; callers must own
// the supplier record.
func (e *OrderEngine) OrdersBySupplier(ctx context.Context, actor models.Actor, supplierID int64) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderEngine.OrdersBySupplier")
	defer span.End()

	owned, err := e.store.SupplierOwnedBy(ctx, supplierID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, ErrNotAuthorized
	}
	return e.store.ValidatedOrdersBySupplier(ctx, supplierID)
}

// WarmStockCache seeds the Redis stock counters from the catalog at
// startup so the buy-now fast path has something to check.
func (e *OrderEngine) WarmStockCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}

	products, err := e.store.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}

	for _, p := range products {
		if err := e.cache.InitStock(ctx, p.ID, p.Quantity); err != nil {
			e.logger.Error("Failed to seed stock counter",
				zap.Int64("product_id", p.ID),
				zap.Error(err))
		}
	}

	e.logger.Info("Stock cache warmed", zap.Int("products", len(products)))
	return nil
}

// authorizeOrderAccess allows the placing customer and the owner of the
// order's supplier.
func (e *OrderEngine) authorizeOrderAccess(ctx context.Context, actor models.Actor, order *models.Order) error {
	if order.UserID == actor.UserID {
		return nil
	}
	owned, err := e.store.SupplierOwnedBy(ctx, order.SupplierID, actor.UserID)
	if err != nil {
		return err
	}
	if !owned {
		return ErrNotAuthorized
	}
	return nil
}

func (e *OrderEngine) invalidateCart(ctx context.Context, userID int64) {
	if e.cache != nil {
		e.cache.InvalidateCart(ctx, userID)
	}
}
