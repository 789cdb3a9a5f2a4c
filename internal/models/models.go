package models

import "time"

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusDelivered  = "delivered"
)

// ValidStatus reports whether s is one of the known order statuses.
func ValidStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusDelivered:
		return true
	}
	return false
}

// Actor is the authenticated principal behind a request. SupplierID is
// zero when the caller does not own a supplier account.
type Actor struct {
	UserID     int64
	SupplierID int64
}

// Product is a catalog entry owned by a supplier.
type Product struct {
	ID         int64     `db:"id" json:"id"`
	SupplierID int64     `db:"supplier_id" json:"supplier_id"`
	Name       string    `db:"name" json:"name"`
	Price      float64   `db:"price" json:"price"`
	Quantity   int       `db:"quantity" json:"quantity"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ProductPicture is an image attached to a product.
type ProductPicture struct {
	ID        int64  `db:"id" json:"id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	Picture   string `db:"picture" json:"picture"`
}

// Supplier is the selling party behind products and orders.
type Supplier struct {
	ID     int64 `db:"id" json:"id"`
	UserID int64 `db:"user_id" json:"user_id"`
}

// Order is either an in-progress cart (unvalidated) or a placed order
// (validated). Shipping fields stay null while the order is a cart.
type Order struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	SupplierID  int64     `db:"supplier_id" json:"supplier_id"`
	WilayaID    *int64    `db:"wilaya_id" json:"wilaya_id"`
	CommuneID   *int64    `db:"commune_id" json:"commune_id"`
	FullName    *string   `db:"full_name" json:"full_name"`
	PhoneNumber *string   `db:"phone_number" json:"phone_number"`
	Address     *string   `db:"address" json:"address"`
	Status      string    `db:"status" json:"status"`
	OrderDate   time.Time `db:"order_date" json:"order_date"`
	IsValidated bool      `db:"is_validated" json:"is_validated"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// OrderLine is one product entry within an order. UnitPrice is a
// snapshot of the catalog price taken when the line was first added.
type OrderLine struct {
	ID         int64   `db:"id" json:"id"`
	OrderID    int64   `db:"order_id" json:"order_id"`
	ProductID  int64   `db:"product_id" json:"product_id"`
	SupplierID int64   `db:"supplier_id" json:"supplier_id"`
	Quantity   int     `db:"quantity" json:"quantity"`
	UnitPrice  float64 `db:"unit_price" json:"unit_price"`
}

// ShippingProfile is the customer/destination information attached to
// orders at checkout.
type ShippingProfile struct {
	FullName    string  `json:"full_name"`
	PhoneNumber string  `json:"phone_number"`
	Address     *string `json:"address"`
	WilayaID    int64   `json:"wilaya_id"`
	CommuneID   int64   `json:"commune_id"`
}

// CartLine is an order line enriched with its product and pictures for
// cart responses.
type CartLine struct {
	OrderLine
	Product  Product          `json:"product"`
	Pictures []ProductPicture `json:"pictures"`
}

// CartOrder is an unvalidated order with its nested lines.
type CartOrder struct {
	Order
	Lines []CartLine `json:"items"`
}

// OrderDetail is an order with its lines, returned by the query
// operations.
type OrderDetail struct {
	Order
	Lines []OrderLine `json:"items"`
}

// ValidatedOrder is the per-order result of a checkout, carrying the
// item count used by supplier notifications.
type ValidatedOrder struct {
	Order
	TotalItems int `db:"total_items" json:"total_items"`
}

// Notification recipient kinds
const (
	RecipientSupplier = "supplier"
	RecipientCustomer = "customer"
)

// Notification is a dispatcher output row addressed to a supplier or a
// customer.
type Notification struct {
	ID            int64     `db:"id" json:"id"`
	RecipientKind string    `db:"recipient_kind" json:"recipient_kind"`
	RecipientID   int64     `db:"recipient_id" json:"recipient_id"`
	EventType     string    `db:"event_type" json:"event_type"`
	Payload       []byte    `db:"payload" json:"payload"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
